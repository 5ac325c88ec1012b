package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/utils"
)

// ErrInvalidSigningMethod is returned when a token is not signed with HMAC.
var ErrInvalidSigningMethod = errors.New("invalid signing method")

// SessionClaims represents the claims in a portal session token
type SessionClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SessionService signs and validates the session tokens the admin portal
// presents on protected pages.
type SessionService struct {
	Config *config.SessionSettings
	now    func() time.Time
}

// NewSessionService creates a new SessionService instance
func NewSessionService(cfg *config.SessionSettings) *SessionService {
	return &SessionService{
		Config: cfg,
		now:    time.Now,
	}
}

// WithClock replaces the clock used to stamp and check tokens.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// GetConfig returns the session settings, falling back to defaults.
func (s *SessionService) GetConfig() *config.SessionSettings {
	if s.Config == nil {
		return &config.SessionSettings{
			Expiry: constants.DefaultSessionExpiry,
			Issuer: constants.DefaultSessionIssuer,
		}
	}
	return s.Config
}

// Issue signs a session token for the user and returns it with its expiry.
// The portal's login endpoint is its caller; this service only validates
// the tokens it produces.
func (s *SessionService) Issue(userID int64, username string) (string, time.Time, error) {
	cfg := s.GetConfig()
	now := s.now()
	expiresAt := now.Add(cfg.Expiry)

	claims := SessionClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate parses a session token and returns its claims if it is valid.
// Every failure is reported as the same unauthorized error.
func (s *SessionService) Validate(tokenString string) (*SessionClaims, error) {
	cfg := s.GetConfig()

	// Time based claims are checked below against the service clock
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, utils.NewUnauthorizedError(constants.MsgSessionInvalid)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, utils.NewUnauthorizedError(constants.MsgSessionInvalid)
	}

	now := s.now()
	if !claims.VerifyExpiresAt(now, true) || !claims.VerifyNotBefore(now, false) {
		return nil, utils.NewUnauthorizedError(constants.MsgSessionInvalid)
	}
	if cfg.Issuer != "" && !claims.VerifyIssuer(cfg.Issuer, true) {
		return nil, utils.NewUnauthorizedError(constants.MsgSessionInvalid)
	}

	return claims, nil
}
