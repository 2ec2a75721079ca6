package credential

import (
	"context"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/autohub/internal/model"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestParseSessionWorkshop(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":        "user-7",
		"role":       "Workshop",
		"workshopId": "12",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	s, err := ParseSession(token)
	if err != nil {
		t.Fatalf("ParseSession: %v", err)
	}
	if s.UserID != "user-7" {
		t.Errorf("Expected UserID user-7, got %s", s.UserID)
	}
	if s.Role != model.RoleWorkshop {
		t.Errorf("Expected workshop role, got %s", s.Role)
	}
	if s.WorkshopID == nil || *s.WorkshopID != 12 {
		t.Errorf("Expected WorkshopID 12, got %v", s.WorkshopID)
	}
	if !s.Authenticated(time.Now()) {
		t.Error("Expected session to be authenticated")
	}
}

func TestParseSessionAspNetClaims(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		claimNameID: "owner-1",
		claimRole:   "CarOwner",
	})

	s, err := ParseSession(token)
	if err != nil {
		t.Fatalf("ParseSession: %v", err)
	}
	if s.UserID != "owner-1" || s.Role != model.RoleCarOwner {
		t.Errorf("Unexpected session %+v", s)
	}
	if s.WorkshopID != nil {
		t.Errorf("Expected no workshop id, got %d", *s.WorkshopID)
	}
}

func TestParseSessionRejectsGarbage(t *testing.T) {
	if _, err := ParseSession("not-a-token"); err == nil {
		t.Error("Expected error for malformed token")
	}
}

func TestCurrentSessionExpiredToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "user-7",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	factory := func(context.Context) (string, error) { return token, nil }

	if s := CurrentSession(context.Background(), factory); s != nil {
		t.Errorf("Expected nil session for expired token, got %+v", s)
	}
}

func TestStoreAccessTokenReadsEachCall(t *testing.T) {
	t.Setenv(TokenEnv, "")
	s := NewStore(keyring.NewArrayKeyring(nil))

	if _, err := s.AccessToken(context.Background()); err != ErrNoToken {
		t.Fatalf("Expected ErrNoToken, got %v", err)
	}

	if err := s.Set(AccessTokenKey, "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ := s.AccessToken(context.Background())
	if got != "first" {
		t.Errorf("Expected first, got %s", got)
	}

	if err := s.Set(AccessTokenKey, "refreshed"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ = s.AccessToken(context.Background())
	if got != "refreshed" {
		t.Errorf("Expected refreshed token, got %s", got)
	}
}

func TestStoreAccessTokenEnvOverride(t *testing.T) {
	t.Setenv(TokenEnv, "from-env")
	s := NewStore(keyring.NewArrayKeyring(nil))

	got, err := s.AccessToken(context.Background())
	if err != nil || got != "from-env" {
		t.Errorf("Expected from-env, got %q (%v)", got, err)
	}
}
