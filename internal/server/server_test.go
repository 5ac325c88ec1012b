package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetportal/passreset/internal/auth"
	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/constants"
)

// recordingNotifier keeps the tokens it was asked to deliver
type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[string][]string)}
}

func (n *recordingNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[email] = append(n.sent[email], token)
	return nil
}

func (n *recordingNotifier) last(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	tokens := n.sent[email]
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}

// Create a simplified test config
func createTestConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{
			Environment: constants.EnvTesting,
			Name:        "passreset-test",
			Version:     "test-version",
		},
		Database: config.DatabaseSettings{
			Driver: constants.DriverMemory,
			SeedUsers: []config.SeedUser{
				{Username: "fleetadmin", Email: "admin@fleet.test", Phone: "5550100", Password: "start1234"},
			},
		},
		Server: config.ServerSettings{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			IdleTimeout:     5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		RateLimit: config.RateLimitSettings{Limit: 5, Window: time.Hour},
		Reset: config.ResetSettings{
			BaseURL:          "https://fleet.example.com",
			TokenTTL:         24 * time.Hour,
			OperationTimeout: 5 * time.Second,
			Retention:        7 * 24 * time.Hour,
		},
		Notifier: config.NotifierSettings{Provider: constants.NotifierLog},
		Session: config.SessionSettings{
			Secret: "test-secret",
			Expiry: time.Hour,
			Issuer: constants.DefaultSessionIssuer,
		},
		CORS: config.CORSSettings{
			AllowedOrigins:   []string{"https://portal.fleet.test"},
			AllowCredentials: true,
		},
		PasswordHash: config.HashSettings{
			Memory:      1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

type testServer struct {
	*Server
	notifier *recordingNotifier
	now      time.Time
	mu       sync.Mutex
}

func (ts *testServer) clock() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.now
}

func (ts *testServer) advance(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.now = ts.now.Add(d)
}

func newTestServer(t *testing.T, cfg *config.AppConfig) *testServer {
	t.Helper()

	ts := &testServer{
		notifier: newRecordingNotifier(),
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	s, err := NewServer(cfg, WithNotifier(ts.notifier), WithClock(ts.clock))
	require.NoError(t, err)
	ts.Server = s

	t.Cleanup(func() { s.closeStores() })
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body, remoteAddr string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	ts.GetRouter().ServeHTTP(rr, req)

	var decoded map[string]any
	if strings.HasPrefix(rr.Header().Get(constants.HeaderContentType), constants.ContentTypeJSON) {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded), rr.Body.String())
	}
	return rr, decoded
}

const identityBody = `{"username":"fleetadmin","email":"admin@fleet.test","phone":"5550100"}`

func TestServer_ResetFlow(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	rr, body := ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.1:1000", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, constants.MsgResetLinkSent, body["message"])
	assert.NotContains(t, rr.Body.String(), ts.notifier.last("admin@fleet.test"))

	token := ts.notifier.last("admin@fleet.test")
	require.Len(t, token, 2*constants.ResetTokenBytes)

	rr, body = ts.do(t, http.MethodGet, constants.VerifyResetTokenPath+"?token="+token, "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), body["userId"])

	update := `{"token":"` + token + `","userId":"1","newPassword":"fleet2026","confirmPassword":"fleet2026"}`
	rr, body = ts.do(t, http.MethodPost, constants.UpdatePasswordPath, update, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, constants.MsgPasswordReset, body["message"])

	user, ok := ts.Memory.User(1)
	require.True(t, ok)
	matches, err := auth.VerifyPassword("fleet2026", user.Password)
	require.NoError(t, err)
	assert.True(t, matches)

	// The token is single use
	rr, body = ts.do(t, http.MethodGet, constants.VerifyResetTokenPath+"?token="+token, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, constants.MsgResetLinkInvalid, body["message"])

	rr, body = ts.do(t, http.MethodPost, constants.UpdatePasswordPath, update, "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, constants.CodeInvalidOrExpiredToken, body["code"])
}

func TestServer_ReissueSupersedesAndExpires(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	rr, _ := ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.2:1000", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	first := ts.notifier.last("admin@fleet.test")

	rr, _ = ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.2:1000", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	second := ts.notifier.last("admin@fleet.test")
	require.NotEqual(t, first, second)

	rr, _ = ts.do(t, http.MethodGet, constants.VerifyResetTokenPath+"?token="+first, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = ts.do(t, http.MethodGet, constants.VerifyResetTokenPath+"?token="+second, "", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	ts.advance(24 * time.Hour)
	rr, _ = ts.do(t, http.MethodGet, constants.VerifyResetTokenPath+"?token="+second, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Expired rows are pruned once the retention period has passed
	assert.Len(t, ts.Memory.Tokens(1), 1)
	ts.advance(8 * 24 * time.Hour)
	ts.runMaintenance(context.Background())
	assert.Empty(t, ts.Memory.Tokens(1))
}

func TestServer_IdentityMismatch(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	bodies := []string{
		`{"username":"fleetadmin","email":"other@fleet.test","phone":"5550100"}`,
		`{"username":"fleetadmin","email":"admin@fleet.test","phone":"5550199"}`,
		`{"username":"nobody","email":"admin@fleet.test","phone":"5550100"}`,
	}

	for _, b := range bodies {
		rr, body := ts.do(t, http.MethodPost, constants.ForgotPasswordPath, b, "192.0.2.3:1000", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, constants.MsgIdentityMismatch, body["message"])
	}
	assert.Empty(t, ts.notifier.last("admin@fleet.test"))
}

func TestServer_ForgotPasswordRateLimit(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	for i := 0; i < 5; i++ {
		rr, _ := ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.4:1000", nil)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}

	rr, body := ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.4:1000", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, constants.MsgRateLimited, body["message"])
	assert.Equal(t, "3600", rr.Header().Get(constants.HeaderRetryAfter))

	// The proxy supplied address is a different client
	rr, _ = ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.4:1000",
		map[string]string{"X-Real-IP": "198.51.100.77"})
	assert.Equal(t, http.StatusOK, rr.Code)

	// Verify and update are not throttled
	for i := 0; i < 7; i++ {
		rr, _ = ts.do(t, http.MethodGet, constants.VerifyResetTokenPath+"?token=x", "", "192.0.2.4:1000", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}

	ts.advance(time.Hour)
	rr, _ = ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.4:1000", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_RedisRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	cfg := createTestConfig()
	cfg.Redis.Host = host
	cfg.Redis.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	ts := newTestServer(t, cfg)
	require.NotNil(t, ts.redisClient)

	for i := 0; i < 5; i++ {
		rr, _ := ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.50:1000", nil)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}

	rr, _ := ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.50:1000", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	count, err := mr.Get("forgot-password:192.0.2.50")
	require.NoError(t, err)
	assert.Equal(t, "5", count)

	// A dead Redis fails open
	mr.Close()
	rr, _ = ts.do(t, http.MethodPost, constants.ForgotPasswordPath, identityBody, "192.0.2.51:1000", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_Session(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	token, expiresAt, err := ts.Sessions().Issue(1, "fleetadmin")
	require.NoError(t, err)

	rr, body := ts.do(t, http.MethodGet, constants.SessionPath, "", "", map[string]string{
		constants.HeaderAuthorization: constants.BearerTokenPrefix + token,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "fleetadmin", body["username"])
	assert.Equal(t, expiresAt.UTC().Format(time.RFC3339), body["expiresAt"])

	rr, _ = ts.do(t, http.MethodGet, constants.SessionPath, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	ts.advance(2 * time.Hour)
	rr, body = ts.do(t, http.MethodGet, constants.SessionPath, "", "", map[string]string{
		constants.HeaderAuthorization: constants.BearerTokenPrefix + token,
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, constants.MsgSessionInvalid, body["message"])
}

func TestServer_Routes(t *testing.T) {
	ts := newTestServer(t, createTestConfig())

	t.Run("Health", func(t *testing.T) {
		rr, body := ts.do(t, http.MethodGet, constants.HealthPath, "", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", body["status"])
		assert.NotEmpty(t, rr.Header().Get(constants.HeaderXRequestID))
		assert.Equal(t, constants.ContentTypeOptionsNoSniff, rr.Header().Get(constants.HeaderXContentTypeOptions))
	})

	t.Run("Ready", func(t *testing.T) {
		rr, body := ts.do(t, http.MethodGet, constants.ReadyPath, "", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("Version", func(t *testing.T) {
		rr, body := ts.do(t, http.MethodGet, "/version", "", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "test-version", body["version"])
	})

	t.Run("Unknown route", func(t *testing.T) {
		rr, body := ts.do(t, http.MethodGet, "/api/users", "", "", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, constants.CodeNotFound, body["code"])
	})

	t.Run("Wrong method", func(t *testing.T) {
		rr, body := ts.do(t, http.MethodGet, constants.ForgotPasswordPath, "", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		assert.Equal(t, constants.CodeMethodNotAllowed, body["code"])
	})

	t.Run("CORS preflight from allowed origin", func(t *testing.T) {
		rr, _ := ts.do(t, http.MethodOptions, constants.UpdatePasswordPath, "", "", map[string]string{
			"Origin":                        "https://portal.fleet.test",
			"Access-Control-Request-Method": http.MethodPost,
		})
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "https://portal.fleet.test", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("CORS from unknown origin", func(t *testing.T) {
		rr, _ := ts.do(t, http.MethodGet, constants.HealthPath, "", "", map[string]string{
			"Origin": "https://evil.example",
		})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

type failingHealthChecker struct{}

func (failingHealthChecker) HealthCheck(ctx context.Context) error {
	return context.DeadlineExceeded
}

func TestServer_ReadinessUnavailable(t *testing.T) {
	s := &Server{health: failingHealthChecker{}}
	rr := httptest.NewRecorder()

	s.readinessCheck(rr, httptest.NewRequest(http.MethodGet, constants.ReadyPath, nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"unavailable"`)
}

func TestServer_Shutdown(t *testing.T) {
	ts := newTestServer(t, createTestConfig())
	ts.SetupMaintenanceTasks()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, ts.Shutdown(ctx))
	// A second shutdown must not panic on the closed maintenance channel
	assert.NotPanics(t, func() { _ = ts.Shutdown(ctx) })
}

func TestNewServer_InvalidNotifier(t *testing.T) {
	cfg := createTestConfig()
	cfg.Notifier.Provider = "pigeon"

	_, err := NewServer(cfg)
	assert.Error(t, err)
}
