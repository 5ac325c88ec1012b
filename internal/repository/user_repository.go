// Package repository holds the MySQL stores for fleet admin accounts and
// password reset tokens.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/database"
	"github.com/fleetportal/passreset/internal/models"
	"github.com/fleetportal/passreset/internal/utils"
)

// UserRepository reads fleet admin accounts and replaces their passwords.
type UserRepository struct {
	db *database.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *database.Pool) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

// FindByIdentity returns the single account whose username, email and phone
// all match. Any mismatch, or an ambiguous match, is ErrUserNotFound.
func (r *UserRepository) FindByIdentity(ctx context.Context, identity models.Identity) (*models.User, error) {
	startTime := time.Now()

	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = ? AND %s = ? AND %s = ?
		LIMIT 2
	`,
		constants.ColumnID, constants.ColumnUsername, constants.ColumnEmail, constants.ColumnPhone, constants.ColumnPassword,
		constants.TableUsers,
		constants.ColumnUsername, constants.ColumnEmail, constants.ColumnPhone,
	)
	args := []interface{}{identity.Username, identity.Email, identity.Phone}

	rows, err := r.db.QueryContext(ctx, query, args...)
	utils.LogDBQuery(query, args, time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by identity: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close rows")
		}
	}()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.Phone, &user.Password); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	switch len(users) {
	case 0:
		return nil, ErrUserNotFound
	case 1:
		return users[0], nil
	default:
		log.Warn().Str("username", identity.Username).Msg("Identity matches more than one user")
		return nil, ErrUserNotFound
	}
}

// lockUser takes a row lock on the user for the rest of the transaction.
func lockUser(ctx context.Context, q database.Querier, userID int64) error {
	startTime := time.Now()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? FOR UPDATE",
		constants.ColumnID, constants.TableUsers, constants.ColumnID)

	var id int64
	err := q.QueryRowContext(ctx, query, userID).Scan(&id)
	utils.LogDBQuery(query, []interface{}{userID}, time.Since(startTime), err)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock user %d: %w", userID, err)
	}
	return nil
}

// updatePassword replaces the stored credential of a user.
func updatePassword(ctx context.Context, q database.Querier, userID int64, passwordHash string) error {
	startTime := time.Now()
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		constants.TableUsers, constants.ColumnPassword, constants.ColumnID)

	_, err := q.ExecContext(ctx, query, passwordHash, userID)
	utils.LogDBQuery(query, []interface{}{passwordHash, userID}, time.Since(startTime), err)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}
