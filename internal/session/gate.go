package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/models"
	"github.com/fleetportal/passreset/internal/utils"
)

// Cache keys for the logged-in admin. The backup key is read when the primary
// is missing.
const (
	KeyLoggedIn = "loggedInFleetAdmin"
	KeyBackup   = "currentFleetAdmin"
)

// ErrNotLoggedIn is returned by Check when there is no usable session.
var ErrNotLoggedIn = errors.New("not logged in or session expired")

// Admin is the cached login of a fleet admin.
type Admin struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Validator checks a session token with the server.
type Validator interface {
	Session(ctx context.Context, sessionToken string) (*models.SessionInfo, error)
}

// Gate decides whether admin pages may be used.
type Gate struct {
	cache     *Cache
	validator Validator
}

// NewGate creates a gate over cache that validates through validator.
func NewGate(cache *Cache, validator Validator) *Gate {
	return &Gate{cache: cache, validator: validator}
}

// Login caches a session issued by the portal login until expiresAt.
func (g *Gate) Login(admin Admin, expiresAt time.Time) error {
	if admin.Username == "" || admin.Token == "" {
		return ErrNotLoggedIn
	}
	if err := g.cache.SetUntil(KeyLoggedIn, admin, expiresAt); err != nil {
		return err
	}
	return g.cache.SetUntil(KeyBackup, admin, expiresAt)
}

// Check validates the cached session with the server and re-caches it with
// the expiry the server reports. The expiry is never extended locally. A
// rejected or missing session clears all fleet data; a transport failure is
// returned as is and leaves the cache alone.
func (g *Gate) Check(ctx context.Context) (*Admin, error) {
	admin, ok := g.cached()
	if !ok {
		if err := g.cache.ClearFleetData(); err != nil {
			return nil, err
		}
		return nil, ErrNotLoggedIn
	}

	info, err := g.validator.Session(ctx, admin.Token)
	if err != nil {
		if errors.Is(err, utils.ErrUnauthorized) {
			log.Info().Str("username", admin.Username).Msg("Cached session rejected by server")
			if clearErr := g.cache.ClearFleetData(); clearErr != nil {
				return nil, clearErr
			}
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}

	admin.Username = info.Username
	if err := g.Login(admin, info.ExpiresAt); err != nil {
		return nil, err
	}
	return &admin, nil
}

// Logout drops the session and every other piece of fleet data.
func (g *Gate) Logout() error {
	return g.cache.ClearFleetData()
}

func (g *Gate) cached() (Admin, bool) {
	for _, key := range []string{KeyLoggedIn, KeyBackup} {
		var admin Admin
		found, err := g.cache.Get(key, &admin)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to read session cache")
			continue
		}
		if found && admin.Username != "" && admin.Token != "" {
			return admin, true
		}
	}
	return Admin{}, false
}
