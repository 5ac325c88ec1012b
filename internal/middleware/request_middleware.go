package middleware

import (
	"context"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/utils"
)

// maxRequestIDLength bounds client supplied request ids.
const maxRequestIDLength = 64

// RequestID assigns every request an id, reusing a well-formed X-Request-ID
// header from the caller. The id is stored under chi's key so
// chimiddleware.GetReqID works downstream, and echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(constants.HeaderXRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		w.Header().Set(constants.HeaderXRequestID, requestID)
		ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs method, path, status and latency of every request.
// Query strings are left out so reset tokens never reach the log.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		utils.LogHTTPRequest(
			chimiddleware.GetReqID(r.Context()),
			r.Method,
			r.URL.Path,
			utils.ClientIP(r),
			r.UserAgent(),
			status,
			time.Since(start),
		)
	})
}
