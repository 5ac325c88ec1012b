package migrations

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createMockDBAndTx creates a mock database with an open transaction
func createMockDBAndTx(t *testing.T) (*sql.Tx, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = tx.Rollback()
		db.Close()
	})

	return tx, mock
}

func TestCreateUsersTable(t *testing.T) {
	tx, mock := createMockDBAndTx(t)

	migration := createUsersTable()

	assert.Equal(t, "create_users_table", migration.Name)
	assert.Equal(t, "Creates the users table", migration.Description)
	assert.Equal(t, "users", migration.TableName)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := migration.RunSQL(context.Background(), tx)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePasswordResetTokensTable(t *testing.T) {
	tx, mock := createMockDBAndTx(t)

	migration := createPasswordResetTokensTable()

	assert.Equal(t, "create_password_reset_tokens_table", migration.Name)
	assert.Equal(t, "password_reset_tokens", migration.TableName)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS password_reset_tokens(.|\n)*UNIQUE KEY idx_password_reset_token \(token\)(.|\n)*REFERENCES users\(id\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := migration.RunSQL(context.Background(), tx)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTable_Error(t *testing.T) {
	tx, mock := createMockDBAndTx(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnError(errors.New("disk full"))

	err := createUsersTable().RunSQL(context.Background(), tx)

	assert.EqualError(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
