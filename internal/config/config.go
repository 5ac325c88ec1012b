package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fleetportal/passreset/internal/constants"
)

// AppConfig represents the entire application configuration
type AppConfig struct {
	App          AppSettings       `yaml:"app"`
	Database     DatabaseSettings  `yaml:"database"`
	Server       ServerSettings    `yaml:"server"`
	Redis        RedisSettings     `yaml:"redis"`
	RateLimit    RateLimitSettings `yaml:"rate_limit"`
	Reset        ResetSettings     `yaml:"reset"`
	Notifier     NotifierSettings  `yaml:"notifier"`
	Session      SessionSettings   `yaml:"session"`
	Logging      LoggingSettings   `yaml:"logging"`
	CORS         CORSSettings      `yaml:"cors"`
	PasswordHash HashSettings      `yaml:"password_hash"`
}

// AppSettings contains general application settings
type AppSettings struct {
	Environment string `yaml:"environment" env:"APP_ENV,NODE_ENV"`
	Name        string `yaml:"name" env:"APP_NAME"`
	Version     string `yaml:"version" env:"APP_VERSION"`
}

// DatabaseSettings contains database connection settings
type DatabaseSettings struct {
	Driver   string `yaml:"driver" env:"DB_DRIVER"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	Name     string `yaml:"name" env:"DB_NAME"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD,DB_PASS"`
	// TLS is passed to the driver's tls parameter: "", "true", "false",
	// "skip-verify" or "preferred".
	TLS      string `yaml:"tls" env:"DB_TLS"`
	MaxConns int    `yaml:"max_conns" env:"DB_MAX_CONNS"`
	MinConns int    `yaml:"min_conns" env:"DB_MIN_CONNS"`
	// SeedUsers lists development accounts inserted on startup outside production.
	SeedUsers []SeedUser `yaml:"seed_users"`
}

// SeedUser is a development account created by the seeder.
type SeedUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Password string `yaml:"password"`
}

// ServerSettings contains HTTP server settings
type ServerSettings struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT,PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// RedisSettings configures the shared rate limit counter store.
// An empty Host selects the in-process counter.
type RedisSettings struct {
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     int    `yaml:"port" env:"REDIS_PORT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// RateLimitSettings contains the forgot-password throttle
type RateLimitSettings struct {
	Limit      int           `yaml:"limit" env:"RATE_LIMIT"`
	Window     time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
	FailClosed bool          `yaml:"fail_closed" env:"RATE_LIMIT_FAIL_CLOSED"`
}

// ResetSettings contains the token lifecycle settings
type ResetSettings struct {
	BaseURL          string        `yaml:"base_url" env:"RESET_BASE_URL,FRONTEND_URL"`
	TokenTTL         time.Duration `yaml:"token_ttl" env:"RESET_TOKEN_TTL"`
	OperationTimeout time.Duration `yaml:"operation_timeout" env:"RESET_OPERATION_TIMEOUT"`
	Retention        time.Duration `yaml:"retention" env:"RESET_RETENTION"`
}

// NotifierSettings selects and configures the reset email transport
type NotifierSettings struct {
	Provider       string        `yaml:"provider" env:"NOTIFIER_PROVIDER"`
	From           string        `yaml:"from" env:"EMAIL_FROM"`
	FromName       string        `yaml:"from_name" env:"EMAIL_FROM_NAME"`
	SMTP           SMTPSettings  `yaml:"smtp"`
	SendGridAPIKey string        `yaml:"sendgrid_api_key" env:"SENDGRID_API_KEY"`
	Timeout        time.Duration `yaml:"timeout" env:"NOTIFIER_TIMEOUT"`
}

// SMTPSettings configures the SMTP transport
type SMTPSettings struct {
	Host     string `yaml:"host" env:"EMAIL_HOST"`
	Port     int    `yaml:"port" env:"EMAIL_PORT"`
	Username string `yaml:"username" env:"EMAIL_USER"`
	Password string `yaml:"password" env:"EMAIL_PASS"`
	// SSL selects implicit TLS; otherwise STARTTLS is required.
	SSL bool `yaml:"ssl" env:"EMAIL_SSL"`
}

// SessionSettings contains the session token settings shared with the portal login
type SessionSettings struct {
	Secret string        `yaml:"secret" env:"SESSION_SECRET,JWT_SECRET"`
	Expiry time.Duration `yaml:"expiry" env:"SESSION_EXPIRY"`
	Issuer string        `yaml:"issuer" env:"SESSION_ISSUER"`
}

// LoggingSettings contains logging configuration
type LoggingSettings struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	RequestLog bool   `yaml:"request_log" env:"LOG_REQUESTS"`
}

// CORSSettings contains CORS configuration
type CORSSettings struct {
	AllowedOrigins   []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	AllowCredentials bool     `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS"`
}

// HashSettings contains password hashing settings
type HashSettings struct {
	Memory      uint32 `yaml:"memory" env:"HASH_MEMORY"`
	Iterations  uint32 `yaml:"iterations" env:"HASH_ITERATIONS"`
	Parallelism uint8  `yaml:"parallelism" env:"HASH_PARALLELISM"`
	SaltLength  uint32 `yaml:"salt_length" env:"HASH_SALT_LENGTH"`
	KeyLength   uint32 `yaml:"key_length" env:"HASH_KEY_LENGTH"`
}

// MySQLConfig builds the driver configuration. The database name is left
// empty when withDB is false so the bootstrap connection can create it.
func (dbs *DatabaseSettings) MySQLConfig(withDB bool) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = dbs.User
	mc.Passwd = dbs.Password
	mc.Net = "tcp"
	mc.Addr = dbs.Host + ":" + strconv.Itoa(dbs.Port)
	if withDB {
		mc.DBName = dbs.Name
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Collation = "utf8mb4_unicode_ci"
	mc.Timeout = constants.DBConnectionTimeout
	if dbs.TLS != "" {
		mc.TLSConfig = dbs.TLS
	}
	return mc
}

// ConnectionString returns the database connection string
func (dbs *DatabaseSettings) ConnectionString() string {
	return dbs.MySQLConfig(true).FormatDSN()
}

// IsMemory reports whether the in-process stores are selected.
func (dbs *DatabaseSettings) IsMemory() bool {
	return strings.ToLower(dbs.Driver) == constants.DriverMemory
}

// ServerAddress returns the complete server address
func (ss *ServerSettings) ServerAddress() string {
	return fmt.Sprintf("%s:%d", ss.Host, ss.Port)
}

// Address returns host:port, or "" when Redis is not configured.
func (rs *RedisSettings) Address() string {
	if rs.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", rs.Host, rs.Port)
}

// IsDevelopment checks if the application is running in development mode
func (as *AppSettings) IsDevelopment() bool {
	return strings.ToLower(as.Environment) == constants.EnvDevelopment
}

// IsProduction checks if the application is running in production mode
func (as *AppSettings) IsProduction() bool {
	return strings.ToLower(as.Environment) == constants.EnvProduction
}

// IsTesting checks if the application is running in testing mode
func (as *AppSettings) IsTesting() bool {
	return strings.ToLower(as.Environment) == constants.EnvTesting
}

var (
	// cfg holds the current application configuration
	cfg *AppConfig
)

// Load loads the configuration from a config file and environment variables
func Load(configPath string) (*AppConfig, error) {
	config := &AppConfig{}

	// A missing file is fine; environment variables can carry everything.
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := LoadEnv(config); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	setDefaults(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = config

	logConfig(config)

	return config, nil
}

// Get returns the current application configuration
func Get() *AppConfig {
	if cfg == nil {
		log.Fatal().Msg("configuration not loaded")
	}
	return cfg
}

// setDefaults sets default values for any missing configuration
func setDefaults(config *AppConfig) {
	if config.App.Environment == "" {
		config.App.Environment = constants.EnvDevelopment
	}
	if config.App.Name == "" {
		config.App.Name = "passreset"
	}
	if config.App.Version == "" {
		config.App.Version = "1.0.0"
	}

	if config.Server.Port == 0 {
		config.Server.Port = constants.DefaultServerPort
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = constants.DefaultReadTimeout
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = constants.DefaultWriteTimeout
	}
	if config.Server.IdleTimeout == 0 {
		config.Server.IdleTimeout = constants.DefaultIdleTimeout
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = constants.DefaultShutdownTimeout
	}

	if config.Database.Driver == "" {
		config.Database.Driver = constants.DriverMySQL
	}
	if config.Database.Host == "" {
		config.Database.Host = "localhost"
	}
	if config.Database.Port == 0 {
		config.Database.Port = constants.DefaultDBPort
	}
	if config.Database.Name == "" {
		config.Database.Name = constants.DefaultDBName
	}
	if config.Database.MaxConns == 0 {
		config.Database.MaxConns = constants.DefaultDBMaxConnections
	}
	if config.Database.MinConns == 0 {
		config.Database.MinConns = constants.DefaultDBMinConnections
	}

	if config.Redis.Host != "" && config.Redis.Port == 0 {
		config.Redis.Port = constants.DefaultRedisPort
	}

	if config.RateLimit.Limit == 0 {
		config.RateLimit.Limit = constants.DefaultRateLimit
	}
	if config.RateLimit.Window == 0 {
		config.RateLimit.Window = constants.DefaultRateWindowSeconds * time.Second
	}

	if config.Reset.TokenTTL == 0 {
		config.Reset.TokenTTL = constants.DefaultResetTokenTTL * time.Second
	}
	if config.Reset.OperationTimeout == 0 {
		config.Reset.OperationTimeout = constants.DefaultOperationTimeout
	}
	if config.Reset.Retention == 0 {
		config.Reset.Retention = constants.DefaultResetTokenRetentionDays * 24 * time.Hour
	}
	config.Reset.BaseURL = strings.TrimRight(config.Reset.BaseURL, "/")

	if config.Notifier.Provider == "" {
		if config.App.IsProduction() {
			config.Notifier.Provider = constants.NotifierSMTP
		} else {
			config.Notifier.Provider = constants.NotifierLog
		}
	}
	if config.Notifier.SMTP.Host == "" {
		config.Notifier.SMTP.Host = constants.DefaultSMTPHost
	}
	if config.Notifier.SMTP.Port == 0 {
		config.Notifier.SMTP.Port = constants.DefaultSMTPPort
		config.Notifier.SMTP.SSL = true
	}
	if config.Notifier.From == "" {
		config.Notifier.From = config.Notifier.SMTP.Username
	}
	if config.Notifier.FromName == "" {
		config.Notifier.FromName = "Fleet Management System"
	}
	if config.Notifier.Timeout == 0 {
		config.Notifier.Timeout = constants.DefaultNotifierTimeout
	}

	if config.Session.Expiry == 0 {
		config.Session.Expiry = constants.DefaultSessionExpiry
	}
	if config.Session.Issuer == "" {
		config.Session.Issuer = constants.DefaultSessionIssuer
	}

	if config.Logging.Level == "" {
		config.Logging.Level = constants.DefaultLogLevel
	}
	if config.Logging.Format == "" {
		config.Logging.Format = constants.DefaultLogFormat
	}

	if len(config.CORS.AllowedOrigins) == 0 {
		config.CORS.AllowedOrigins = []string{"*"}
	}

	// Lower hashing cost outside production
	if config.PasswordHash.Memory == 0 {
		if config.App.IsProduction() {
			config.PasswordHash.Memory = constants.DefaultPasswordHashMemory
		} else {
			config.PasswordHash.Memory = constants.DevPasswordHashMemory
		}
	}
	if config.PasswordHash.Iterations == 0 {
		if config.App.IsProduction() {
			config.PasswordHash.Iterations = constants.DefaultPasswordHashIterations
		} else {
			config.PasswordHash.Iterations = constants.DevPasswordHashIterations
		}
	}
	if config.PasswordHash.Parallelism == 0 {
		config.PasswordHash.Parallelism = constants.DefaultPasswordHashParallelism
	}
	if config.PasswordHash.SaltLength == 0 {
		config.PasswordHash.SaltLength = constants.DefaultPasswordHashSaltLength
	}
	if config.PasswordHash.KeyLength == 0 {
		config.PasswordHash.KeyLength = constants.DefaultPasswordHashKeyLength
	}
}

// validateConfig validates that the configuration has all required values
func validateConfig(config *AppConfig) error {
	env := strings.ToLower(config.App.Environment)
	if env != constants.EnvDevelopment && env != constants.EnvTesting && env != constants.EnvProduction {
		log.Warn().Str("environment", config.App.Environment).Msg("Unknown environment, defaulting to development")
		config.App.Environment = constants.EnvDevelopment
	}

	switch strings.ToLower(config.Database.Driver) {
	case constants.DriverMySQL:
		if config.Database.User == "" {
			return fmt.Errorf("database user must be set")
		}
	case constants.DriverMemory:
		if config.App.IsProduction() {
			return fmt.Errorf("memory database driver is not allowed in production")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", config.Database.Driver)
	}

	if config.Reset.BaseURL == "" {
		return fmt.Errorf("reset base URL must be set")
	}
	if u, err := url.Parse(config.Reset.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("reset base URL must be an absolute URL: %s", config.Reset.BaseURL)
	}

	if config.RateLimit.Limit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	switch strings.ToLower(config.Notifier.Provider) {
	case constants.NotifierSMTP:
		if config.Notifier.SMTP.Username == "" || config.Notifier.SMTP.Password == "" {
			return fmt.Errorf("smtp username and password must be set")
		}
	case constants.NotifierSendGrid:
		if config.Notifier.SendGridAPIKey == "" {
			return fmt.Errorf("sendgrid API key must be set")
		}
	case constants.NotifierLog:
		if config.App.IsProduction() {
			return fmt.Errorf("log notifier is not allowed in production")
		}
	default:
		return fmt.Errorf("unsupported notifier provider: %s", config.Notifier.Provider)
	}
	if config.Notifier.Provider != constants.NotifierLog && config.Notifier.From == "" {
		return fmt.Errorf("notifier sender address must be set")
	}

	if config.App.IsProduction() && (config.Session.Secret == "" || config.Session.Secret == "changeme") {
		return fmt.Errorf("session secret must be set in production")
	}

	logLevel := strings.ToLower(config.Logging.Level)
	validLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	validLevel := false
	for _, level := range validLevels {
		if logLevel == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// logConfig logs the current configuration without sensitive values
func logConfig(config *AppConfig) {
	log.Info().
		Str("environment", config.App.Environment).
		Str("version", config.App.Version).
		Str("server", config.Server.ServerAddress()).
		Str("db_driver", config.Database.Driver).
		Str("db_host", config.Database.Host).
		Int("db_port", config.Database.Port).
		Str("db_name", config.Database.Name).
		Str("db_password", mask(config.Database.Password)).
		Str("redis", config.Redis.Address()).
		Int("rate_limit", config.RateLimit.Limit).
		Dur("rate_window", config.RateLimit.Window).
		Bool("rate_fail_closed", config.RateLimit.FailClosed).
		Str("reset_base_url", config.Reset.BaseURL).
		Dur("token_ttl", config.Reset.TokenTTL).
		Str("notifier", config.Notifier.Provider).
		Str("smtp_password", mask(config.Notifier.SMTP.Password)).
		Str("sendgrid_api_key", mask(config.Notifier.SendGridAPIKey)).
		Str("session_secret", mask(config.Session.Secret)).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return constants.LogRedactedValue
}
