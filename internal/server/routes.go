package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/auth"
	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/middleware"
	"github.com/fleetportal/passreset/internal/utils"
)

// SetupRoutes configures the routes for the application.
//
// The configured routes include:
// - Liveness, readiness and version endpoints
// - Forgot password, rate limited per client IP
// - Reset token verification and password update
// - Session validation for the portal's login gate
func (s *Server) SetupRoutes() {
	r := chi.NewRouter()

	// RealIP first so every later middleware sees the client address
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	if s.Config.Logging.RequestLog {
		r.Use(middleware.RequestLogger)
	}
	r.Use(middleware.Recovery())
	r.Use(corsMiddleware(s.Config.CORS.AllowedOrigins, s.Config.CORS.AllowCredentials))
	r.Use(middleware.SecurityHeaders())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.NotFound(w, constants.MsgResourceNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.MethodNotAllowed(w)
	})

	r.Get(constants.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get(constants.ReadyPath, s.readinessCheck)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSON(w, http.StatusOK, map[string]string{
			"version":     s.Config.App.Version,
			"environment": s.Config.App.Environment,
		})
	})

	r.With(middleware.RateLimit(s.limiter)).
		Post(constants.ForgotPasswordPath, s.Handlers.PasswordResetHandler.ForgotPassword)
	r.Get(constants.VerifyResetTokenPath, s.Handlers.PasswordResetHandler.VerifyToken)
	r.Post(constants.UpdatePasswordPath, s.Handlers.PasswordResetHandler.UpdatePassword)

	r.With(auth.RequireSession(s.sessions)).
		Get(constants.SessionPath, s.Handlers.SessionHandler.GetSession)

	s.router = r
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() chi.Router {
	return s.router
}

// readinessCheck answers {"status":"ok"} when the store is reachable.
func (s *Server) readinessCheck(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.HealthCheck(r.Context()); err != nil {
			log.Error().Err(err).Msg("Readiness check failed")
			utils.SendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	utils.SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// corsMiddleware adds CORS headers for allowed origins and answers
// preflight requests. "*" allows every origin; the origin is echoed back so
// credentials mode keeps working.
func corsMiddleware(allowedOrigins []string, allowCredentials bool) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !(allowAll || allowed[origin]) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Origin", origin)
			if allowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
			h.Set("Access-Control-Max-Age", "300")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
