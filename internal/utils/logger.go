package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/constants"
)

// Log field names shared by the middleware and services.
const (
	LogFieldRequestID = "request_id"
	LogFieldUserID    = "user_id"
	LogFieldCategory  = "category"
	LogFieldEvent     = "event"
)

// InitLogger initializes the application logger with the given configuration
func InitLogger(cfg *config.AppConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	log.Logger = newLogger(cfg, os.Stdout)

	log.Info().Msg("Logger initialized")
}

// newLogger builds the service logger writing to out. Console output is only
// honoured outside production.
func newLogger(cfg *config.AppConfig, out io.Writer) zerolog.Logger {
	var output = out
	if strings.ToLower(cfg.Logging.Format) == "console" && !cfg.App.IsProduction() {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("app", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("env", cfg.App.Environment).
		Logger()
}

// LogHTTPRequest logs an HTTP request with request details
func LogHTTPRequest(requestID, method, path, remoteAddr, userAgent string, statusCode int, latency time.Duration) {
	// Health probes only show up at debug level
	if path == constants.HealthPath && zerolog.GlobalLevel() > zerolog.DebugLevel {
		return
	}

	event := log.Debug()
	switch {
	case statusCode >= 500:
		event = log.Error()
	case statusCode >= 400:
		event = log.Warn()
	case strings.HasPrefix(path, constants.APIBasePath):
		event = log.Info()
	}

	event.
		Str(LogFieldRequestID, requestID).
		Str("method", method).
		Str("path", path).
		Str("remote_addr", remoteAddr).
		Str("user_agent", userAgent).
		Int("status", statusCode).
		Dur("latency", latency).
		Msg("HTTP Request")
}

// LogPanic logs a recovered panic value
func LogPanic(recovered interface{}, stack []byte) {
	log.Error().
		Interface("panic", recovered).
		Str("stack", string(stack)).
		Msg("Panic recovered")
}

// LogDBQuery logs a database query for debugging. String arguments of
// queries touching credentials or tokens are redacted.
func LogDBQuery(query string, args []interface{}, duration time.Duration, err error) {
	lower := strings.ToLower(query)
	sensitive := strings.Contains(lower, constants.ColumnPassword) ||
		strings.Contains(lower, constants.ColumnToken)

	safeArgs := make([]interface{}, len(args))
	for i, arg := range args {
		if _, ok := arg.(string); ok && sensitive {
			safeArgs[i] = constants.LogRedactedValue
			continue
		}
		safeArgs[i] = arg
	}

	event := log.Debug()
	if err != nil {
		event = log.Error().Err(err)
	}

	event.
		Str("query", query).
		Interface("args", safeArgs).
		Dur("duration", duration).
		Msg("Database query executed")
}

// LogResetEvent records a password reset lifecycle event. It never carries
// the token or password.
func LogResetEvent(event string, userID int64, success bool, reason string) {
	logEvent := log.Info()
	if !success {
		logEvent = log.Warn()
	}

	logEvent = logEvent.
		Str(LogFieldCategory, constants.LogCategoryReset).
		Str(LogFieldEvent, event).
		Bool("success", success)
	if userID > 0 {
		logEvent = logEvent.Int64(LogFieldUserID, userID)
	}
	if reason != "" {
		logEvent = logEvent.Str("reason", reason)
	}

	logEvent.Msg("Password reset event")
}

