package constants

// Base Routes
const (
	APIBasePath = "/api"
	HealthPath  = "/health"
	ReadyPath   = "/health/ready"
)

// Password Reset Routes
const (
	ForgotPasswordPath   = "/api/forgot-password"
	VerifyResetTokenPath = "/api/reset-password/verify-token"
	UpdatePasswordPath   = "/api/reset-password/update"
	SessionPath          = "/api/session"
)

// QueryParamToken carries the reset token on the verify endpoint.
const QueryParamToken = "token"
