package migrations

import (
	"context"
	"database/sql"
)

// createUsersTable creates the users table
func createUsersTable() Migration {
	return Migration{
		Name:        "create_users_table",
		Description: "Creates the users table",
		TableName:   "users",
		RunSQL: func(ctx context.Context, tx *sql.Tx) error {
			query := `
				CREATE TABLE IF NOT EXISTS users (
					id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
					username VARCHAR(100) NOT NULL,
					email VARCHAR(255) NOT NULL,
					phone VARCHAR(50) NOT NULL,
					password VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE KEY idx_users_username (username),
					KEY idx_users_email (email)
				) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
			`
			_, err := tx.ExecContext(ctx, query)
			return err
		},
	}
}

// createPasswordResetTokensTable creates the password_reset_tokens table.
// The token column holds the SHA-256 hex digest of the bearer token.
func createPasswordResetTokensTable() Migration {
	return Migration{
		Name:        "create_password_reset_tokens_table",
		Description: "Creates the password_reset_tokens table",
		TableName:   "password_reset_tokens",
		RunSQL: func(ctx context.Context, tx *sql.Tx) error {
			query := `
				CREATE TABLE IF NOT EXISTS password_reset_tokens (
					id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
					user_id BIGINT NOT NULL,
					token CHAR(64) NOT NULL,
					expires_at DATETIME NOT NULL,
					is_used TINYINT(1) NOT NULL DEFAULT 0,
					ip_address VARCHAR(50) NULL,
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
					used_at DATETIME NULL DEFAULT NULL,
					UNIQUE KEY idx_password_reset_token (token),
					KEY idx_password_reset_user_id (user_id),
					KEY idx_password_reset_expires_at (expires_at),
					CONSTRAINT fk_password_reset_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
				) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
			`
			_, err := tx.ExecContext(ctx, query)
			return err
		},
	}
}
