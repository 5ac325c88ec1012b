package migrations_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetportal/passreset/internal/database"
	"github.com/fleetportal/passreset/migrations"
)

// createMockPool creates a pool backed by sqlmock for testing
func createMockPool(t *testing.T) (*database.Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &database.Pool{DB: db}, mock
}

func expectTableCheck(mock sqlmock.Sqlmock, table string, count int) {
	mock.ExpectQuery("FROM information_schema.tables").
		WithArgs(table).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func expectUsedAtCheck(mock sqlmock.Sqlmock, count int) {
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("password_reset_tokens", "used_at").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestNewMigrator(t *testing.T) {
	pool, _ := createMockPool(t)
	assert.NotNil(t, migrations.NewMigrator(pool))
}

func TestGetMigrations(t *testing.T) {
	all := migrations.GetMigrations()

	require.Len(t, all, 2)
	assert.Equal(t, "create_users_table", all[0].Name)
	assert.Equal(t, "users", all[0].TableName)
	assert.Equal(t, "create_password_reset_tokens_table", all[1].Name)
	assert.Equal(t, "password_reset_tokens", all[1].TableName)

	for _, m := range all {
		assert.NotNil(t, m.RunSQL, m.Name)
		assert.NotEmpty(t, m.Description, m.Name)
	}
}

func TestRunMigrations(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		wantErr bool
	}{
		{
			name: "Error - Create migrations table fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
					WillReturnError(errors.New("permission denied"))
			},
			wantErr: true,
		},
		{
			name: "Error - Get executed migrations fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT name FROM schema_migrations").
					WillReturnError(errors.New("query failed"))
			},
			wantErr: true,
		},
		{
			name: "Error - Table exists check fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT name FROM schema_migrations").
					WillReturnRows(sqlmock.NewRows([]string{"name"}))
				mock.ExpectQuery("FROM information_schema.tables").
					WillReturnError(errors.New("information_schema unavailable"))
			},
			wantErr: true,
		},
		{
			name: "Success - Fresh database",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT name FROM schema_migrations").
					WillReturnRows(sqlmock.NewRows([]string{"name"}))

				expectTableCheck(mock, "users", 0)
				mock.ExpectBegin()
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("INSERT INTO schema_migrations").
					WithArgs("create_users_table", "Creates the users table").
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()

				expectTableCheck(mock, "password_reset_tokens", 0)
				mock.ExpectBegin()
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS password_reset_tokens").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec("INSERT INTO schema_migrations").
					WithArgs("create_password_reset_tokens_table", "Creates the password_reset_tokens table").
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()

				expectUsedAtCheck(mock, 1)
			},
			wantErr: false,
		},
		{
			name: "Success - Portal owned users table is recorded, not recreated",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT name FROM schema_migrations").
					WillReturnRows(sqlmock.NewRows([]string{"name"}))

				expectTableCheck(mock, "users", 1)
				mock.ExpectExec("INSERT INTO schema_migrations").
					WithArgs("create_users_table", "Creates the users table").
					WillReturnResult(sqlmock.NewResult(1, 1))

				expectTableCheck(mock, "password_reset_tokens", 1)
				mock.ExpectExec("INSERT INTO schema_migrations").
					WithArgs("create_password_reset_tokens_table", "Creates the password_reset_tokens table").
					WillReturnResult(sqlmock.NewResult(1, 1))

				// legacy token table without used_at
				expectUsedAtCheck(mock, 0)
				mock.ExpectExec("ALTER TABLE password_reset_tokens ADD COLUMN used_at").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: false,
		},
		{
			name: "Success - Everything already applied",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT name FROM schema_migrations").
					WillReturnRows(sqlmock.NewRows([]string{"name"}).
						AddRow("create_users_table").
						AddRow("create_password_reset_tokens_table"))
				expectUsedAtCheck(mock, 1)
			},
			wantErr: false,
		},
		{
			name: "Error - Migration SQL fails and is rolled back",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT name FROM schema_migrations").
					WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("create_users_table"))

				expectTableCheck(mock, "password_reset_tokens", 0)
				mock.ExpectBegin()
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS password_reset_tokens").
					WillReturnError(errors.New("foreign key target missing"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
		{
			name: "Error - Recording existing table fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery("SELECT name FROM schema_migrations").
					WillReturnRows(sqlmock.NewRows([]string{"name"}))
				expectTableCheck(mock, "users", 1)
				mock.ExpectExec("INSERT INTO schema_migrations").
					WillReturnError(errors.New("insert failed"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, mock := createMockPool(t)
			tt.setup(mock)

			err := migrations.NewMigrator(pool).RunMigrations(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
