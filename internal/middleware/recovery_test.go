package middleware_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/middleware"
)

func TestRecovery(t *testing.T) {
	tests := []struct {
		name           string
		handler        http.Handler
		expectedStatus int
		expectPanicLog bool
	}{
		{
			name: "No panic occurs",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("Success"))
			}),
			expectedStatus: http.StatusOK,
		},
		{
			name: "Panic with error",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(errors.New("test error"))
			}),
			expectedStatus: http.StatusInternalServerError,
			expectPanicLog: true,
		},
		{
			name: "Panic with string",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			}),
			expectedStatus: http.StatusInternalServerError,
			expectPanicLog: true,
		},
	}

	var logBuf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&logBuf)
	defer func() { log.Logger = original }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logBuf.Reset()

			handler := middleware.RequestID(middleware.Recovery()(tt.handler))
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if !tt.expectPanicLog {
				assert.Equal(t, "Success", rr.Body.String())
				assert.NotContains(t, logBuf.String(), "Panic recovered")
				return
			}

			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, constants.CodeInternalError, body["code"])
			assert.Equal(t, constants.MsgInternalServerError, body["message"])

			assert.Contains(t, logBuf.String(), "Panic recovered")
			assert.Contains(t, logBuf.String(), rr.Header().Get(constants.HeaderXRequestID))
		})
	}
}

func TestRecovery_AbortHandlerIsRepanicked(t *testing.T) {
	handler := middleware.Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
