package auth

// SessionValidator defines the interface for session token validation
type SessionValidator interface {
	// Validate parses a session token and returns its claims if valid
	Validate(tokenString string) (*SessionClaims, error)
}

var _ SessionValidator = (*SessionService)(nil)
