// Package client is a typed HTTP client for the password reset API, used by
// resetctl and the portal's login gate.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/models"
	"github.com/fleetportal/passreset/internal/utils"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 1 << 20

// APIError is a failure response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the machine-readable code back to the service's sentinel, so
// callers can use errors.Is(err, utils.ErrInvalidOrExpiredToken).
func (e *APIError) Unwrap() error {
	switch e.Code {
	case constants.CodeValidationError:
		return utils.ErrValidation
	case constants.CodeNotFound:
		return utils.ErrNotFound
	case constants.CodeInvalidOrExpiredToken:
		return utils.ErrInvalidOrExpiredToken
	case constants.CodePasswordMismatch:
		return utils.ErrPasswordMismatch
	case constants.CodePasswordPolicy:
		return utils.ErrPasswordPolicy
	case constants.CodeRateLimited:
		return utils.ErrRateLimited
	case constants.CodeDeliveryFailed:
		return utils.ErrDelivery
	case constants.CodeUnauthorized:
		return utils.ErrUnauthorized
	case constants.CodeInternalError:
		return utils.ErrInternalServer
	default:
		return nil
	}
}

// Client calls the password reset API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the API at baseURL, e.g. "http://localhost:5000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: constants.DefaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForgotPassword asks for a reset link for the account matching all three
// fields and returns the server's confirmation message.
func (c *Client) ForgotPassword(ctx context.Context, username, email, phone string) (string, error) {
	body := models.ForgotPasswordRequest{Username: username, Email: email, Phone: phone}

	resp, err := c.do(ctx, http.MethodPost, constants.ForgotPasswordPath, nil, body, "")
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// VerifyToken returns the user id a live reset token belongs to.
func (c *Client) VerifyToken(ctx context.Context, token string) (int64, error) {
	query := url.Values{constants.QueryParamToken: []string{token}}

	resp, err := c.do(ctx, http.MethodGet, constants.VerifyResetTokenPath, query, nil, "")
	if err != nil {
		return 0, err
	}
	return resp.UserID, nil
}

// UpdatePassword redeems the token and sets the new password.
func (c *Client) UpdatePassword(ctx context.Context, token string, userID int64, newPassword, confirmPassword string) (string, error) {
	body := models.ResetPasswordRequest{
		Token:           token,
		UserID:          models.FlexibleID(userID),
		NewPassword:     newPassword,
		ConfirmPassword: confirmPassword,
	}

	resp, err := c.do(ctx, http.MethodPost, constants.UpdatePasswordPath, nil, body, "")
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Session validates a portal session token and returns the server's view of
// it, including the expiry to cache it with.
func (c *Client) Session(ctx context.Context, sessionToken string) (*models.SessionInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, constants.SessionPath, nil, nil, sessionToken)
	if err != nil {
		return nil, err
	}
	if resp.ExpiresAt == nil {
		return nil, errors.New("session response has no expiry")
	}
	return &models.SessionInfo{Username: resp.Username, ExpiresAt: resp.ExpiresAt.UTC()}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, bearer string) (*utils.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", constants.ContentTypeJSON)
	if body != nil {
		req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}
	if bearer != "" {
		req.Header.Set(constants.HeaderAuthorization, constants.BearerTokenPrefix+bearer)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope utils.Response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if res.StatusCode >= 300 {
			return nil, &APIError{StatusCode: res.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 || !envelope.Success {
		return nil, &APIError{
			StatusCode: res.StatusCode,
			Code:       envelope.Code,
			Message:    envelope.Message,
			Details:    envelope.Details,
		}
	}

	return &envelope, nil
}
