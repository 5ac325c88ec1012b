package server

import (
	"context"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	// HealthCheck verifies the connection is working properly
	//
	// Parameters:
	//   - ctx: Context for the health check operation
	//
	// Returns:
	//   - An error if the store is unreachable or unhealthy
	HealthCheck(ctx context.Context) error
}
