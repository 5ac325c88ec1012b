// Package scripts provides utility scripts for database management.
//
// The seeder inserts the development accounts listed in the configuration so
// the reset flow can be exercised locally. Accounts that already exist are left
// untouched, making the seeder safe to run on every start.
package scripts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/auth"
	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/database"
	"github.com/fleetportal/passreset/internal/utils"
)

// Seeder handles database seeding.
type Seeder struct {
	db      *database.Pool
	hashCfg *auth.PasswordConfig
}

// NewSeeder creates a new seeder.
func NewSeeder(db *database.Pool, hashCfg *auth.PasswordConfig) *Seeder {
	return &Seeder{
		db:      db,
		hashCfg: hashCfg,
	}
}

// SeedDatabase inserts the given accounts if absent, in one transaction.
func (s *Seeder) SeedDatabase(ctx context.Context, users []config.SeedUser) error {
	if len(users) == 0 {
		log.Debug().Msg("No seed users configured")
		return nil
	}

	log.Info().Int("users", len(users)).Msg("Seeding database")
	startTime := time.Now()

	// Hash outside the transaction so row locks are not held during argon2.
	hashed := make([]string, len(users))
	for i, u := range users {
		if u.Username == "" || u.Email == "" || u.Phone == "" || u.Password == "" {
			return fmt.Errorf("seed user %d is incomplete", i)
		}
		h, err := auth.HashPassword(u.Password, s.hashCfg)
		if err != nil {
			return fmt.Errorf("failed to hash password for seed user %s: %w", u.Username, err)
		}
		hashed[i] = h
	}

	inserted := int64(0)
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for i, u := range users {
			n, err := s.seedUser(ctx, tx, u, hashed[i])
			if err != nil {
				return err
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed users failed: %w", err)
	}

	log.Info().
		Int64("inserted", inserted).
		Int("skipped", len(users)-int(inserted)).
		Dur("duration", time.Since(startTime)).
		Msg("Database seeding completed")

	return nil
}

// seedUser inserts one account unless its username is already taken.
func (s *Seeder) seedUser(ctx context.Context, tx *sql.Tx, u config.SeedUser, passwordHash string) (int64, error) {
	query := fmt.Sprintf(
		"INSERT IGNORE INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)",
		constants.TableUsers,
		constants.ColumnUsername, constants.ColumnEmail, constants.ColumnPhone, constants.ColumnPassword,
	)

	start := time.Now()
	result, err := tx.ExecContext(ctx, query, u.Username, u.Email, u.Phone, passwordHash)
	utils.LogDBQuery(query, []interface{}{u.Username, u.Email, u.Phone, passwordHash}, time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to insert seed user %s: %w", u.Username, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		log.Debug().Str("username", u.Username).Msg("Seed user already exists")
	}
	return n, nil
}
