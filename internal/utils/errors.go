package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/fleetportal/passreset/internal/constants"
)

// Custom error types for the application
var (
	ErrValidation            = errors.New(constants.ErrorValidation)
	ErrNotFound              = errors.New(constants.ErrorNotFound)
	ErrInvalidOrExpiredToken = errors.New(constants.ErrorInvalidOrExpired)
	ErrPasswordMismatch      = errors.New(constants.ErrorPasswordMismatch)
	ErrPasswordPolicy        = errors.New(constants.ErrorPasswordPolicy)
	ErrRateLimited           = errors.New(constants.ErrorRateLimited)
	ErrDelivery              = errors.New(constants.ErrorDelivery)
	ErrUnauthorized          = errors.New(constants.ErrorUnauthorized)
	ErrInternalServer        = errors.New(constants.ErrorInternalServer)
	ErrDuplicate             = errors.New(constants.ErrorDuplicate)
)

// AppError represents an application error with additional context
type AppError struct {
	Err        error  // The underlying error
	StatusCode int    // HTTP status code
	Message    string // User-friendly error message
	Code       string // Machine-readable code, derived from Err when empty
	DevInfo    string // Additional information for logs, never sent to clients
	Field      string // Field related to the error (for validation errors)
	Details    map[string]any
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorCode returns the machine-readable code for the error.
func (e *AppError) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return codeFor(e.Err)
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return constants.CodeValidationError
	case errors.Is(err, ErrNotFound):
		return constants.CodeNotFound
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return constants.CodeInvalidOrExpiredToken
	case errors.Is(err, ErrPasswordMismatch):
		return constants.CodePasswordMismatch
	case errors.Is(err, ErrPasswordPolicy):
		return constants.CodePasswordPolicy
	case errors.Is(err, ErrRateLimited):
		return constants.CodeRateLimited
	case errors.Is(err, ErrDelivery):
		return constants.CodeDeliveryFailed
	case errors.Is(err, ErrUnauthorized):
		return constants.CodeUnauthorized
	case errors.Is(err, ErrDuplicate):
		return constants.CodeDuplicateResource
	default:
		return constants.CodeInternalError
	}
}

// New creates a new AppError with the given error and status code
func New(err error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewValidationError creates a new validation error for a specific field
func NewValidationError(field, message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Field:      field,
	}
}

// NewBadRequestError creates a validation error that is not tied to a field
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

// NewValidationErrorWithDetails creates a validation error with multiple field details
func NewValidationErrorWithDetails(message string, details map[string]string) *AppError {
	detailsMap := make(map[string]any, len(details))
	for k, v := range details {
		detailsMap[k] = v
	}

	return &AppError{
		Err:        ErrValidation,
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Details:    detailsMap,
	}
}

// NewNotFoundError creates a not found error. The status is chosen by the
// caller: issuance answers 400 so a miss looks like any other bad input,
// redemption answers 404.
func NewNotFoundError(statusCode int, message string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewInvalidOrExpiredTokenError is the single error for unknown, used and expired tokens.
func NewInvalidOrExpiredTokenError(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidOrExpiredToken,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

// NewPasswordMismatchError creates a new password mismatch error
func NewPasswordMismatchError() *AppError {
	return &AppError{
		Err:        ErrPasswordMismatch,
		StatusCode: http.StatusBadRequest,
		Message:    constants.MsgPasswordsDoNotMatch,
		Field:      "confirmPassword",
	}
}

// NewPasswordPolicyError creates a new password policy error
func NewPasswordPolicyError() *AppError {
	return &AppError{
		Err:        ErrPasswordPolicy,
		StatusCode: http.StatusBadRequest,
		Message:    constants.MsgPasswordPolicy,
		Field:      "newPassword",
	}
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		StatusCode: http.StatusTooManyRequests,
		Message:    constants.MsgRateLimited,
	}
}

// NewDeliveryError wraps a notifier failure
func NewDeliveryError(err error) *AppError {
	devInfo := ""
	if err != nil {
		devInfo = err.Error()
	}
	return &AppError{
		Err:        ErrDelivery,
		StatusCode: http.StatusInternalServerError,
		Message:    constants.MsgDeliveryFailed,
		DevInfo:    devInfo,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = constants.MsgAuthRequired
	}
	return &AppError{
		Err:        ErrUnauthorized,
		StatusCode: http.StatusUnauthorized,
		Message:    message,
	}
}

// NewInternalServerError creates a new internal server error
func NewInternalServerError(err error) *AppError {
	devInfo := ""
	if err != nil {
		devInfo = err.Error()
	}
	return &AppError{
		Err:        ErrInternalServer,
		StatusCode: http.StatusInternalServerError,
		Message:    constants.MsgInternalServerError,
		DevInfo:    devInfo,
	}
}

// NewDuplicateError creates a new duplicate resource error
func NewDuplicateError(devInfo string) *AppError {
	return &AppError{
		Err:        ErrDuplicate,
		StatusCode: http.StatusConflict,
		Message:    constants.MsgResourceAlreadyExists,
		DevInfo:    devInfo,
	}
}

// ParseError attempts to parse various types of errors into an AppError
func ParseError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrValidation):
		return NewBadRequestError(err.Error())
	case errors.Is(err, ErrNotFound):
		return NewNotFoundError(http.StatusNotFound, constants.MsgResourceNotFound)
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return NewInvalidOrExpiredTokenError(constants.MsgResetTokenInvalid)
	case errors.Is(err, ErrPasswordMismatch):
		return NewPasswordMismatchError()
	case errors.Is(err, ErrPasswordPolicy):
		return NewPasswordPolicyError()
	case errors.Is(err, ErrRateLimited):
		return NewRateLimitedError()
	case errors.Is(err, ErrDelivery):
		return NewDeliveryError(err)
	case errors.Is(err, ErrUnauthorized):
		return NewUnauthorizedError("")
	case errors.Is(err, ErrDuplicate):
		return NewDuplicateError(err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewInternalServerError(err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case constants.MySQLErrDuplicateEntry:
			return NewDuplicateError(mysqlErr.Error())
		case constants.MySQLErrForeignKeyParent:
			return &AppError{
				Err:        ErrValidation,
				StatusCode: http.StatusBadRequest,
				Message:    "This operation references a record that does not exist",
				DevInfo:    mysqlErr.Error(),
			}
		}
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "duplicate entry") {
		return NewDuplicateError(err.Error())
	}

	return NewInternalServerError(err)
}

// IsDuplicateKeyError reports whether err is a MySQL duplicate entry error.
func IsDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == constants.MySQLErrDuplicateEntry
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// StatusCode returns the HTTP status code for an error
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
