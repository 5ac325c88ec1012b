package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/database"
	"github.com/fleetportal/passreset/internal/models"
	"github.com/fleetportal/passreset/internal/utils"
)

var (
	// ErrUserNotFound is returned when no account matches.
	ErrUserNotFound = fmt.Errorf("user not found: %w", utils.ErrNotFound)

	// ErrTokenNotFound is returned for a token that is unknown, used or expired.
	ErrTokenNotFound = fmt.Errorf("token not found, used or expired: %w", utils.ErrInvalidOrExpiredToken)
)

// GenerateToken generates a secure random token and its SHA256 hash.
// It returns the plain token (to be sent to the user) and its hash (to be stored).
func GenerateToken() (string, string, error) {
	tokenBytes := make([]byte, constants.ResetTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate token bytes: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// HashToken returns the stored form of a bearer token.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// PasswordResetRepository handles database operations for password reset tokens.
type PasswordResetRepository struct {
	db *database.Pool
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(db *database.Pool) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Issue stores a new token as the user's only live token. Within one
// transaction the user row is locked, the user's unused and unexpired tokens
// are deleted and the new row is inserted, so concurrent issuances for the
// same user serialise and exactly one token stays live.
func (r *PasswordResetRepository) Issue(ctx context.Context, token *models.ResetToken) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, token.UserID); err != nil {
			return err
		}

		startTime := time.Now()
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = 0 AND %s > ?",
			constants.TablePasswordResetTokens,
			constants.ColumnUserID, constants.ColumnIsUsed, constants.ColumnExpiresAt)

		result, err := tx.ExecContext(ctx, deleteQuery, token.UserID, token.CreatedAt)
		utils.LogDBQuery(deleteQuery, []interface{}{token.UserID, token.CreatedAt}, time.Since(startTime), err)
		if err != nil {
			return fmt.Errorf("failed to supersede live tokens: %w", err)
		}
		if superseded, _ := result.RowsAffected(); superseded > 0 {
			log.Debug().
				Int64(utils.LogFieldUserID, token.UserID).
				Int64("superseded", superseded).
				Msg("Superseded live reset tokens")
		}

		startTime = time.Now()
		insertQuery := fmt.Sprintf(`
			INSERT INTO %s (%s, %s, %s, %s, %s, %s)
			VALUES (?, ?, ?, 0, ?, ?)
		`,
			constants.TablePasswordResetTokens,
			constants.ColumnUserID, constants.ColumnToken, constants.ColumnExpiresAt,
			constants.ColumnIsUsed, constants.ColumnIPAddress, constants.ColumnCreatedAt,
		)
		ip := sql.NullString{String: token.IPAddress, Valid: token.IPAddress != ""}
		args := []interface{}{token.UserID, token.TokenHash, token.ExpiresAt, ip, token.CreatedAt}

		result, err = tx.ExecContext(ctx, insertQuery, args...)
		utils.LogDBQuery(insertQuery, args, time.Since(startTime), err)
		if err != nil {
			return fmt.Errorf("failed to insert reset token: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get reset token id: %w", err)
		}
		token.ID = id
		token.IsUsed = false
		return nil
	})
}

// FindLive returns the token with the given hash if it is unused and
// unexpired at now. Every other case is ErrTokenNotFound.
func (r *PasswordResetRepository) FindLive(ctx context.Context, tokenHash string, now time.Time) (*models.ResetToken, error) {
	startTime := time.Now()
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = ? AND %s = 0 AND %s > ?
	`,
		constants.ColumnID, constants.ColumnUserID, constants.ColumnToken, constants.ColumnExpiresAt,
		constants.ColumnIsUsed, constants.ColumnIPAddress, constants.ColumnCreatedAt,
		constants.TablePasswordResetTokens,
		constants.ColumnToken, constants.ColumnIsUsed, constants.ColumnExpiresAt,
	)

	token := &models.ResetToken{}
	var ip sql.NullString
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.IsUsed,
		&ip,
		&token.CreatedAt,
	)
	utils.LogDBQuery(query, []interface{}{tokenHash, now}, time.Since(startTime), err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reset token: %w", err)
	}

	token.IPAddress = ip.String
	return token, nil
}

// Redeem consumes the token and replaces the user's password as one unit.
// The conditional update is the only gate: of two concurrent callers one
// flips is_used and the other sees zero rows and gets ErrTokenNotFound.
// The user row is locked before the token row, the same order Issue uses,
// so a redeem racing a reissue for the same user waits instead of
// deadlocking and then finds its token superseded.
func (r *PasswordResetRepository) Redeem(ctx context.Context, tokenHash string, userID int64, passwordHash string, now time.Time) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		startTime := time.Now()
		query := fmt.Sprintf(`
			UPDATE %s SET %s = 1, %s = ?
			WHERE %s = ? AND %s = ? AND %s = 0 AND %s > ?
		`,
			constants.TablePasswordResetTokens,
			constants.ColumnIsUsed, constants.ColumnUsedAt,
			constants.ColumnToken, constants.ColumnUserID, constants.ColumnIsUsed, constants.ColumnExpiresAt,
		)
		args := []interface{}{now, tokenHash, userID, now}

		result, err := tx.ExecContext(ctx, query, args...)
		utils.LogDBQuery(query, args, time.Since(startTime), err)
		if err != nil {
			return fmt.Errorf("failed to consume reset token: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrTokenNotFound
		}

		return updatePassword(ctx, tx, userID, passwordHash)
	})
}

// Prune deletes tokens that were used or expired before cutoff. Live tokens
// are never touched because cutoff is in the past.
func (r *PasswordResetRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	startTime := time.Now()
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE (%s = 1 AND COALESCE(%s, %s) < ?) OR %s < ?
	`,
		constants.TablePasswordResetTokens,
		constants.ColumnIsUsed, constants.ColumnUsedAt, constants.ColumnCreatedAt, constants.ColumnExpiresAt,
	)

	result, err := r.db.ExecContext(ctx, query, cutoff, cutoff)
	utils.LogDBQuery(query, []interface{}{cutoff, cutoff}, time.Since(startTime), err)
	if err != nil {
		return 0, fmt.Errorf("failed to prune reset tokens: %w", err)
	}

	return result.RowsAffected()
}
