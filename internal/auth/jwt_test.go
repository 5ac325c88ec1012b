package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/fleetportal/passreset/internal/auth"
	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/utils"
)

func testSessionConfig() *config.SessionSettings {
	return &config.SessionSettings{
		Secret: "test-secret",
		Expiry: time.Hour,
		Issuer: "test-issuer",
	}
}

func TestNewSessionService(t *testing.T) {
	cfg := testSessionConfig()
	service := auth.NewSessionService(cfg)

	if service == nil {
		t.Fatal("Expected service to be created, got nil")
	}
	if service.Config != cfg {
		t.Errorf("Expected Config to be %v, got %v", cfg, service.Config)
	}
}

func TestGetConfig_Defaults(t *testing.T) {
	service := &auth.SessionService{Config: nil}
	cfg := service.GetConfig()

	if cfg.Expiry != 24*time.Hour {
		t.Errorf("Expected default Expiry to be 24h, got %v", cfg.Expiry)
	}
	if cfg.Issuer != "fleet-portal" {
		t.Errorf("Expected default Issuer to be 'fleet-portal', got %v", cfg.Issuer)
	}
}

func TestIssueAndValidate(t *testing.T) {
	service := auth.NewSessionService(testSessionConfig())

	token, expiresAt, err := service.Issue(42, "fleetadmin")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if token == "" {
		t.Fatal("Expected a token")
	}
	if until := time.Until(expiresAt); until < 59*time.Minute || until > time.Hour {
		t.Errorf("Expected expiry about an hour away, got %v", until)
	}

	claims, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("Expected UserID 42, got %d", claims.UserID)
	}
	if claims.Username != "fleetadmin" {
		t.Errorf("Expected username 'fleetadmin', got %s", claims.Username)
	}
	if claims.Subject != "42" {
		t.Errorf("Expected subject '42', got %s", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("Expected a token ID")
	}
}

func TestIssue_UniqueIDs(t *testing.T) {
	service := auth.NewSessionService(testSessionConfig())

	first, _, _ := service.Issue(1, "a")
	second, _, _ := service.Issue(1, "a")

	c1, _ := service.Validate(first)
	c2, _ := service.Validate(second)
	if c1.ID == c2.ID {
		t.Error("Expected distinct token IDs")
	}
}

func TestValidate_Failures(t *testing.T) {
	cfg := testSessionConfig()
	service := auth.NewSessionService(cfg)

	expired, _, _ := auth.NewSessionService(cfg).
		WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }).
		Issue(1, "old")

	otherSecret := *cfg
	otherSecret.Secret = "another-secret"
	forged, _, _ := auth.NewSessionService(&otherSecret).Issue(1, "forged")

	otherIssuer := *cfg
	otherIssuer.Issuer = "someone-else"
	foreign, _, _ := auth.NewSessionService(&otherIssuer).Issue(1, "foreign")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, auth.SessionClaims{UserID: 1})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	good, _, _ := service.Issue(1, "ok")
	sigStart := strings.LastIndex(good, ".") + 1
	flipped := byte('A')
	if good[sigStart] == 'A' {
		flipped = 'B'
	}
	tampered := good[:sigStart] + string(flipped) + good[sigStart+1:]

	tests := []struct {
		name  string
		token string
	}{
		{"Empty", ""},
		{"Garbage", "not-a-jwt"},
		{"Expired", expired},
		{"Wrong secret", forged},
		{"Wrong issuer", foreign},
		{"Unsigned", unsigned},
		{"Tampered signature", tampered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.Validate(tt.token)

			if claims != nil {
				t.Errorf("Expected no claims, got %+v", claims)
			}
			if !errors.Is(err, utils.ErrUnauthorized) {
				t.Errorf("Expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestIssue_TokenShape(t *testing.T) {
	token, _, err := auth.NewSessionService(testSessionConfig()).Issue(7, "x")
	if err != nil {
		t.Fatal(err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("Expected a three part JWT, got %d parts", len(parts))
	}
}

func TestValidate_UsesServiceClock(t *testing.T) {
	issuedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := issuedAt
	service := auth.NewSessionService(testSessionConfig()).WithClock(func() time.Time { return now })

	token, expiresAt, err := service.Issue(4, "clock")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := service.Validate(token); err != nil {
		t.Errorf("Expected token to be valid at issue time, got %v", err)
	}

	now = expiresAt
	if _, err := service.Validate(token); !errors.Is(err, utils.ErrUnauthorized) {
		t.Errorf("Expected token to be rejected at expiry, got %v", err)
	}
}
