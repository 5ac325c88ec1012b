// Package service implements the password reset token lifecycle and the
// notifiers that deliver reset links.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/auth"
	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/models"
	"github.com/fleetportal/passreset/internal/repository"
	"github.com/fleetportal/passreset/internal/utils"
)

// UserStore finds the account a reset request refers to.
type UserStore interface {
	FindByIdentity(ctx context.Context, identity models.Identity) (*models.User, error)
}

// TokenStore persists reset tokens. Issue and Redeem are atomic.
type TokenStore interface {
	Issue(ctx context.Context, token *models.ResetToken) error
	FindLive(ctx context.Context, tokenHash string, now time.Time) (*models.ResetToken, error)
	Redeem(ctx context.Context, tokenHash string, userID int64, passwordHash string, now time.Time) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PasswordResetService issues, verifies and redeems reset tokens.
type PasswordResetService struct {
	users    UserStore
	tokens   TokenStore
	notifier Notifier

	hashCfg   *auth.PasswordConfig
	tokenTTL  time.Duration
	timeout   time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	users UserStore,
	tokens TokenStore,
	notifier Notifier,
	hashCfg *auth.PasswordConfig,
	settings config.ResetSettings,
) *PasswordResetService {
	s := &PasswordResetService{
		users:     users,
		tokens:    tokens,
		notifier:  notifier,
		hashCfg:   hashCfg,
		tokenTTL:  settings.TokenTTL,
		timeout:   settings.OperationTimeout,
		retention: settings.Retention,
		now:       time.Now,
	}
	if s.hashCfg == nil {
		s.hashCfg = auth.DefaultPasswordConfig()
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = time.Duration(constants.DefaultResetTokenTTL) * time.Second
	}
	if s.timeout <= 0 {
		s.timeout = constants.DefaultOperationTimeout
	}
	if s.retention <= 0 {
		s.retention = time.Duration(constants.DefaultResetTokenRetentionDays) * 24 * time.Hour
	}
	return s
}

// WithClock replaces the service clock.
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	s.now = now
	return s
}

// clock returns the current time in UTC, truncated to what DATETIME stores.
func (s *PasswordResetService) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// Issue creates a reset token for the account matching all three identity
// fields and emails the link. The token never leaves the service otherwise.
func (s *PasswordResetService) Issue(ctx context.Context, req models.IssueRequest) error {
	if !req.Identity.Complete() {
		return utils.NewBadRequestError(constants.MsgMissingIdentity)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.FindByIdentity(ctx, req.Identity)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			utils.LogResetEvent(constants.LogEventIssue, 0, false, "identity_mismatch")
			return utils.NewNotFoundError(http.StatusBadRequest, constants.MsgIdentityMismatch)
		}
		return internalError("find user", err)
	}

	bearer, tokenHash, err := repository.GenerateToken()
	if err != nil {
		return internalError("generate token", err)
	}

	now := s.clock()
	token := &models.ResetToken{
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(s.tokenTTL),
		IPAddress: req.IPAddress,
		CreatedAt: now,
	}

	if err := s.tokens.Issue(ctx, token); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			utils.LogResetEvent(constants.LogEventIssue, user.ID, false, "user_removed")
			return utils.NewNotFoundError(http.StatusBadRequest, constants.MsgIdentityMismatch)
		}
		return internalError("store token", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, bearer); err != nil {
		utils.LogResetEvent(constants.LogEventIssue, user.ID, false, "delivery_failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return internalError("deliver token", err)
		}
		return utils.NewDeliveryError(err)
	}

	utils.LogResetEvent(constants.LogEventIssue, user.ID, true, "")
	return nil
}

// Verify reports the user a live token belongs to. It has no side effects.
func (s *PasswordResetService) Verify(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, utils.NewBadRequestError(constants.MsgMissingToken)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row, err := s.tokens.FindLive(ctx, repository.HashToken(token), s.clock())
	if err != nil {
		if errors.Is(err, utils.ErrInvalidOrExpiredToken) {
			utils.LogResetEvent(constants.LogEventVerify, 0, false, "invalid_or_expired")
			return 0, utils.NewInvalidOrExpiredTokenError(constants.MsgResetLinkInvalid)
		}
		return 0, internalError("find token", err)
	}

	utils.LogResetEvent(constants.LogEventVerify, row.UserID, true, "")
	return row.UserID, nil
}

// Redeem consumes the token and replaces the user's password. The token is
// marked used and the password replaced together or not at all.
func (s *PasswordResetService) Redeem(ctx context.Context, req models.RedeemRequest) error {
	if req.Token == "" || req.UserID == 0 || req.NewPassword == "" || req.ConfirmPassword == "" {
		return utils.NewBadRequestError(constants.MsgMissingResetFields)
	}
	if req.NewPassword != req.ConfirmPassword {
		return utils.NewPasswordMismatchError()
	}
	if err := utils.ValidateResetPassword(req.NewPassword); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Hash before the transaction opens so row locks are held briefly.
	passwordHash, err := auth.HashPassword(req.NewPassword, s.hashCfg)
	if err != nil {
		return internalError("hash password", err)
	}

	err = s.tokens.Redeem(ctx, repository.HashToken(req.Token), req.UserID, passwordHash, s.clock())
	switch {
	case err == nil:
		utils.LogResetEvent(constants.LogEventRedeem, req.UserID, true, "")
		return nil
	case errors.Is(err, utils.ErrInvalidOrExpiredToken):
		utils.LogResetEvent(constants.LogEventRedeem, req.UserID, false, "invalid_or_expired")
		return utils.NewInvalidOrExpiredTokenError(constants.MsgResetTokenInvalid)
	case errors.Is(err, utils.ErrNotFound):
		utils.LogResetEvent(constants.LogEventRedeem, req.UserID, false, "user_not_found")
		return utils.NewNotFoundError(http.StatusNotFound, constants.MsgUserNotFound)
	default:
		return internalError("redeem token", err)
	}
}

// Prune deletes tokens that were used or expired longer than the retention
// period ago.
func (s *PasswordResetService) Prune(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cutoff := s.clock().Add(-s.retention)
	n, err := s.tokens.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune reset tokens: %w", err)
	}

	log.Info().
		Str(utils.LogFieldCategory, constants.LogCategoryReset).
		Str(utils.LogFieldEvent, constants.LogEventPrune).
		Int64("deleted", n).
		Time("cutoff", cutoff).
		Msg("Pruned reset tokens")
	return n, nil
}

func internalError(op string, err error) *utils.AppError {
	return utils.NewInternalServerError(fmt.Errorf("%s: %w", op, err))
}
