package models

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ResetToken is an issued password reset token. The bearer string is only
// ever emailed; the row keeps its SHA-256 digest.
type ResetToken struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	TokenHash string     `json:"-" db:"token"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	IsUsed    bool       `json:"is_used" db:"is_used"`
	IPAddress string     `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
}

// TableName returns the database table name for the ResetToken model.
func (t *ResetToken) TableName() string {
	return "password_reset_tokens"
}

// IsLive reports whether the token can still be redeemed at now.
func (t *ResetToken) IsLive(now time.Time) bool {
	return !t.IsUsed && now.Before(t.ExpiresAt)
}

// IssueRequest is the forgot-password input after decoding.
type IssueRequest struct {
	Identity  Identity
	IPAddress string
}

// RedeemRequest is the password update input after decoding.
type RedeemRequest struct {
	Token           string
	UserID          int64
	NewPassword     string
	ConfirmPassword string
}

// ForgotPasswordRequest is the body of POST /api/forgot-password.
type ForgotPasswordRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
}

// ResetPasswordRequest is the body of POST /api/reset-password/update.
type ResetPasswordRequest struct {
	Token           string     `json:"token" validate:"required"`
	UserID          FlexibleID `json:"userId" validate:"required"`
	NewPassword     string     `json:"newPassword" validate:"required"`
	ConfirmPassword string     `json:"confirmPassword" validate:"required"`
}

// FlexibleID is a user id that arrives either as a JSON number or as a
// string of digits. Null and the empty string decode to zero.
type FlexibleID int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*f = 0
			return nil
		}
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return &json.UnmarshalTypeError{
			Value: "userId " + string(data),
			Type:  reflect.TypeOf(FlexibleID(0)),
		}
	}
	*f = FlexibleID(n)
	return nil
}

// SessionInfo describes a validated portal session.
type SessionInfo struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}
