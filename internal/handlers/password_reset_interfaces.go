// Package handlers provides HTTP request handlers for the password reset API.
package handlers

import (
	"context"

	"github.com/fleetportal/passreset/internal/models"
)

// PasswordResetServiceInterface defines the token lifecycle operations the
// reset handlers depend on.
type PasswordResetServiceInterface interface {
	// Issue creates a reset token for the account matching the identity and
	// emails the reset link.
	//
	// Parameters:
	//   - ctx: Context for the operation
	//   - req: The identity triple and the caller's IP address
	//
	// Returns:
	//   - An error if the identity is incomplete or unknown, or delivery fails
	Issue(ctx context.Context, req models.IssueRequest) error

	// Verify reports the user a live token belongs to.
	//
	// Parameters:
	//   - ctx: Context for the operation
	//   - token: The bearer token from the reset link
	//
	// Returns:
	//   - The user id the token was issued for
	//   - An error if the token is missing, unknown, used or expired
	Verify(ctx context.Context, token string) (int64, error)

	// Redeem consumes the token and replaces the user's password.
	//
	// Parameters:
	//   - ctx: Context for the operation
	//   - req: The token, user id and the new password twice
	//
	// Returns:
	//   - An error if validation fails, the token is unusable or the user is gone
	Redeem(ctx context.Context, req models.RedeemRequest) error
}
