package constants

import "time"

// Server Timeouts
const (
	DefaultReadTimeout     = 5 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
)

// Database Timeouts
const (
	DBConnectionTimeout  = 30 * time.Second
	DBHealthCheckTimeout = 5 * time.Second
	DBConnMaxLifetime    = 1 * time.Hour
	DBConnMaxIdleTime    = 30 * time.Minute
)

// Reset flow
const (
	DefaultOperationTimeout = 10 * time.Second
	DefaultNotifierTimeout  = 15 * time.Second
	MaintenanceInterval     = 1 * time.Hour
)

// Rate limiter
const (
	RateLimitCleanupInterval = 5 * time.Minute
	RedisDialTimeout         = 5 * time.Second
)

// Client
const (
	DefaultClientTimeout = 15 * time.Second
	DefaultSessionExpiry = 24 * time.Hour
)
