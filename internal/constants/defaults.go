// Package constants provides shared constant values used throughout the application.
//
// The defaults.go file defines default values and limits used when the
// configuration leaves a setting empty. Changes to these values affect how
// long reset links live, how often a requester may ask for one, and how new
// passwords are hashed.
package constants

// Default Configuration Values define fallback settings when not specified in configuration.
const (
	// DefaultServerPort is the default HTTP server port.
	DefaultServerPort = 5000

	// DefaultDBPort is the default MySQL port.
	DefaultDBPort = 3306

	// DefaultDBName is the database holding users and reset tokens.
	DefaultDBName = "fleet_management"

	// DefaultDBMaxConnections is the default maximum number of database connections.
	DefaultDBMaxConnections = 20

	// DefaultDBMinConnections is the default minimum number of idle database connections.
	DefaultDBMinConnections = 5

	// DefaultRedisPort is the default Redis port.
	DefaultRedisPort = 6379

	// DefaultLogLevel is the default logging verbosity level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default logging output format.
	DefaultLogFormat = "json"

	// DefaultConfigPath is where the service looks for its YAML file.
	DefaultConfigPath = "./configs/config.yaml"
)

// Database drivers accepted by database.driver.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Environment Types define the recognized application running environments.
const (
	// EnvDevelopment identifies a development environment with debugging features enabled.
	EnvDevelopment = "development"

	// EnvTesting identifies a testing environment for automated tests.
	EnvTesting = "testing"

	// EnvProduction identifies a production environment with optimized settings.
	EnvProduction = "production"
)

// MaxRequestBodySize is the maximum size in bytes for HTTP request bodies.
const MaxRequestBodySize = 64 * 1024

// Reset token settings.
const (
	// ResetTokenBytes is the number of random bytes in a reset token (256 bits).
	ResetTokenBytes = 32

	// DefaultResetTokenTTL is how long an issued token stays redeemable.
	DefaultResetTokenTTL = 24 * 60 * 60 // seconds

	// DefaultResetTokenRetentionDays is how long used or expired tokens are kept before pruning.
	DefaultResetTokenRetentionDays = 7

	// ResetPasswordPath is appended to the reset base URL to build the emailed link.
	ResetPasswordPath = "/reset-password"
)

// Rate limit settings for forgot-password requests.
const (
	// DefaultRateLimit is the number of requests allowed per window.
	DefaultRateLimit = 5

	// DefaultRateWindowSeconds is the fixed window length.
	DefaultRateWindowSeconds = 3600

	// RateLimitKeyForgotPassword prefixes the per-IP counter key.
	RateLimitKeyForgotPassword = "forgot-password"
)

// Password policy applied to new passwords.
const (
	MinResetPasswordLength = 8
	MaxResetPasswordLength = 20
)

// Default Password Hash Settings define the parameters for Argon2id hashing.
const (
	// DefaultPasswordHashMemory is the memory cost parameter in KiB.
	DefaultPasswordHashMemory = 64 * 1024

	// DefaultPasswordHashIterations is the number of passes over memory.
	DefaultPasswordHashIterations = 3

	// DefaultPasswordHashParallelism is the number of lanes.
	DefaultPasswordHashParallelism = 2

	// DefaultPasswordHashSaltLength is the length in bytes of the random salt.
	DefaultPasswordHashSaltLength = 16

	// DefaultPasswordHashKeyLength is the length in bytes of the derived key.
	DefaultPasswordHashKeyLength = 32

	// DevPasswordHashMemory is a reduced memory setting for development environments.
	DevPasswordHashMemory = 16 * 1024

	// DevPasswordHashIterations is a reduced iteration count for development environments.
	DevPasswordHashIterations = 1
)

// Session token settings.
const (
	// DefaultSessionIssuer is the issuer claim value for session tokens.
	DefaultSessionIssuer = "fleet-portal"

	// BearerTokenPrefix is the prefix for Authorization header bearer tokens.
	BearerTokenPrefix = "Bearer "
)

// Notifier providers accepted by notifier.provider.
const (
	NotifierSMTP     = "smtp"
	NotifierSendGrid = "sendgrid"
	NotifierLog      = "log"
)

// Default SMTP settings, matching the hosted mail account the portal uses.
const (
	DefaultSMTPHost = "smtp.gmail.com"
	DefaultSMTPPort = 465
)
