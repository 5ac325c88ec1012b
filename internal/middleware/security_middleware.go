// Package middleware provides HTTP middleware for the reset API: request ids
// and logging, panic recovery, security headers and the forgot-password rate
// limit.
package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/utils"
	"github.com/fleetportal/passreset/internal/utils/ratelimit"
)

// RateLimit throttles requests per client IP using limiter. Rejected
// requests get 429 with Retry-After and never reach next. When the counter
// store fails the limiter's fault policy decides and the error is logged.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := utils.ClientIP(r)

			decision, err := limiter.Allow(r.Context(), clientIP)
			if err != nil {
				log.Error().
					Err(err).
					Str("key", limiter.Key(clientIP)).
					Bool("allowed", decision.Allowed).
					Msg("Rate limit check failed")
			}

			w.Header().Set(constants.HeaderXRateLimitLimit, strconv.Itoa(decision.Limit))
			w.Header().Set(constants.HeaderXRateLimitRemaining, strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))

				log.Warn().
					Str("ip", clientIP).
					Str("path", r.URL.Path).
					Int("retry_after", retryAfter).
					Msg("Rate limit exceeded")

				utils.ErrorFromAppError(w, utils.NewRateLimitedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds security-related headers to all responses. Responses
// are never cached since they may describe reset tokens.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set(constants.HeaderXContentTypeOptions, constants.ContentTypeOptionsNoSniff)
			h.Set(constants.HeaderXFrameOptions, constants.FrameOptionsDeny)
			h.Set(constants.HeaderXXSSProtection, constants.XSSProtectionModeBlock)
			h.Set(constants.HeaderReferrerPolicy, constants.ReferrerPolicyNoReferrer)
			h.Set(constants.HeaderContentSecurityPolicy, constants.CSPDefaultSrc)
			h.Set(constants.HeaderCacheControl, constants.CacheControlNoStore)
			h.Set(constants.HeaderPragma, constants.PragmaNoCache)
			h.Set(constants.HeaderExpires, constants.ExpiresZero)

			next.ServeHTTP(w, r)
		})
	}
}
