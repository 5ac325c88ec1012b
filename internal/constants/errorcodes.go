// Package constants provides shared constant values used throughout the application.
//
// The errorcodes.go file defines constants related to error handling, categorization,
// and messaging. User-facing messages are deliberately generic: a forgot-password
// request that matches no account gets the same text whichever field was wrong,
// and every unusable reset token gets the same text whether it was unknown, used
// or expired.
package constants

// Error Types define the categories of errors that can occur in the application.
const (
	ErrorValidation       = "validation error"
	ErrorNotFound         = "resource not found"
	ErrorInvalidOrExpired = "invalid or expired token"
	ErrorPasswordMismatch = "password mismatch"
	ErrorPasswordPolicy   = "password policy violation"
	ErrorRateLimited      = "rate limited"
	ErrorDelivery         = "delivery failed"
	ErrorUnauthorized     = "unauthorized access"
	ErrorInternalServer   = "internal server error"
	ErrorDuplicate        = "duplicate resource"
)

// Machine-readable codes returned in the "code" field of failed responses.
const (
	CodeValidationError       = "validation_error"
	CodeNotFound              = "not_found"
	CodeInvalidOrExpiredToken = "invalid_or_expired_token"
	CodePasswordMismatch      = "password_mismatch"
	CodePasswordPolicy        = "password_policy"
	CodeRateLimited           = "rate_limited"
	CodeDeliveryFailed        = "delivery_failed"
	CodeUnauthorized          = "unauthorized"
	CodeInternalError         = "internal_error"
	CodeDuplicateResource     = "duplicate_resource"
	CodeMethodNotAllowed      = "method_not_allowed"
)

// User-Facing Messages define standardized messages that can be safely presented to users.
const (
	// MsgMissingIdentity is returned when any of username, email or phone is empty.
	MsgMissingIdentity = "Please provide your username, email and phone number"

	// MsgIdentityMismatch is returned for every kind of identity mismatch.
	MsgIdentityMismatch = "The username does not match the email or phone on record, please check and try again"

	// MsgResetLinkSent confirms issuance without revealing the token.
	MsgResetLinkSent = "A reset link has been sent to your registered email and is valid for 24 hours"

	// MsgDeliveryFailed is returned when the reset email could not be sent.
	MsgDeliveryFailed = "The email could not be sent, please try again later"

	// MsgMissingToken is returned when the verify call carries no token.
	MsgMissingToken = "The reset token is missing, please request a new one"

	// MsgResetLinkInvalid is returned by verify for any unusable token.
	MsgResetLinkInvalid = "The reset link has expired or is invalid, please request a new one"

	// MsgTokenValid confirms a usable token.
	MsgTokenValid = "Token is valid, please set a new password"

	// MsgMissingResetFields is returned when the update body is incomplete.
	MsgMissingResetFields = "Please provide all required fields"

	// MsgPasswordsDoNotMatch indicates that the new and confirm passwords differ.
	MsgPasswordsDoNotMatch = "The new password and confirmation do not match"

	// MsgPasswordPolicy describes the password policy.
	MsgPasswordPolicy = "Password must be 8-20 characters and contain letters and digits"

	// MsgResetTokenInvalid is returned by update for any unusable token.
	MsgResetTokenInvalid = "The reset token is invalid or has expired, please request a new one"

	// MsgUserNotFound is returned when the token's user no longer exists.
	MsgUserNotFound = "User does not exist"

	// MsgPasswordReset confirms a successful redemption.
	MsgPasswordReset = "Password has been reset, please log in with your new password"

	// MsgRateLimited is returned with HTTP 429.
	MsgRateLimited = "Too many requests, please try again in an hour"

	// MsgInternalServerError provides a generic server error message.
	MsgInternalServerError = "Internal server error, please try again later"

	// MsgSessionValid confirms a valid session token.
	MsgSessionValid = "Session is valid"

	// MsgAuthRequired indicates that a session token is required.
	MsgAuthRequired = "Authentication required"

	// MsgSessionInvalid indicates that the session token is invalid or expired.
	MsgSessionInvalid = "Session is invalid or has expired, please log in again"

	// MsgRequestBodyTooLarge indicates that the request payload exceeds size limits.
	MsgRequestBodyTooLarge = "Request body too large"

	// MsgEmptyRequestBody indicates that a request body was expected but not provided.
	MsgEmptyRequestBody = "Request body must not be empty"

	// MsgMalformedJSON indicates that the request body contains invalid JSON.
	MsgMalformedJSON = "Request body contains malformed JSON"

	// MsgResourceNotFound indicates that the requested route does not exist.
	MsgResourceNotFound = "The requested resource could not be found"

	// MsgMethodNotAllowed indicates that the HTTP method is not supported for the endpoint.
	MsgMethodNotAllowed = "This method is not allowed for this resource"

	// MsgResourceAlreadyExists indicates a duplicate resource conflict.
	MsgResourceAlreadyExists = "A resource with the same unique identifier already exists"
)

// Logger Constants define values used for structured logging.
const (
	LogCategoryReset   = "password_reset"
	LogCategorySession = "session"

	LogEventIssue  = "issue"
	LogEventVerify = "verify"
	LogEventRedeem = "redeem"
	LogEventPrune  = "prune"

	// LogRedactedValue is used to replace sensitive values in logs.
	LogRedactedValue = "[REDACTED]"
)
