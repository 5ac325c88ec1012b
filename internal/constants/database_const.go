// Package constants provides shared constant values used throughout the application.
//
// The database_const.go file defines table and column names so SQL in the
// repositories and migrations stays consistent.
package constants

// Table Names define the names of database tables used in the application.
const (
	// TableUsers is the fleet admin account table. It is owned by the portal;
	// this service only reads identities and replaces passwords.
	TableUsers = "users"

	// TablePasswordResetTokens holds issued reset tokens.
	TablePasswordResetTokens = "password_reset_tokens"

	// TableSchemaMigrations records which migrations have been applied.
	TableSchemaMigrations = "schema_migrations"
)

// Column names shared by the queries.
const (
	ColumnID        = "id"
	ColumnUserID    = "user_id"
	ColumnUsername  = "username"
	ColumnEmail     = "email"
	ColumnPhone     = "phone"
	ColumnPassword  = "password"
	ColumnToken     = "token"
	ColumnExpiresAt = "expires_at"
	ColumnIsUsed    = "is_used"
	ColumnIPAddress = "ip_address"
	ColumnCreatedAt = "created_at"
	ColumnUsedAt    = "used_at"
)

// MySQL error numbers recognised by utils.ParseError.
const (
	MySQLErrDuplicateEntry   = 1062
	MySQLErrForeignKeyParent = 1452
	MySQLErrLockWaitTimeout  = 1205
	MySQLErrDeadlock         = 1213
)
