package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"inkwell.dev/internal/kv"
)

var testNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func newTestSessionStore(t *testing.T, clock *time.Time) (*SessionStore, *kv.Memory) {
	t.Helper()
	store := kv.NewMemory()
	store.SetClock(func() time.Time { return *clock })
	s, err := NewSessionStore(store, SessionConfig{
		GlobalSecret: "global-secret",
		Namespace:    testNamespace,
		TTL:          time.Hour,
	}, WithSessionClock(func() time.Time { return *clock }))
	if err != nil {
		t.Fatalf("NewSessionStore failed: %v", err)
	}
	return s, store
}

func TestSessionIssueAndVerify(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSessionStore(t, &clock)
	ctx := context.Background()

	sess, err := s.Issue(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("expected a signed token")
	}
	if !sess.IssuedAt.Equal(clock) {
		t.Fatalf("issued at %v, want %v", sess.IssuedAt, clock)
	}
	if !sess.ExpiresAt.Equal(clock.Add(time.Hour)) {
		t.Fatalf("expires at %v, want %v", sess.ExpiresAt, clock.Add(time.Hour))
	}

	wantID := uuid.NewSHA1(testNamespace, []byte(fmt.Sprintf("user-1.%d", clock.UnixMilli()))).String()
	if sess.ID != wantID {
		t.Fatalf("session id %q, want deterministic %q", sess.ID, wantID)
	}

	got, err := s.Verify(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got.ID != sess.ID || got.UserID != "user-1" {
		t.Fatalf("verified session mismatch: %+v", got)
	}
}

func TestSessionVerifyCarriesAPICredentials(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSessionStore(t, &clock)
	ctx := context.Background()

	creds := &APICredentials{APIKey: "key-1"}
	sess, err := s.Issue(ctx, "user-1", creds)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	got, err := s.Verify(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got.APICredentials == nil || got.APICredentials.APIKey != "key-1" {
		t.Fatalf("credentials not carried: %+v", got.APICredentials)
	}
	if got.APICredentials.HasSecret() {
		t.Fatal("credentials without secret must be read-only")
	}
}

func TestSessionVerifyRejectsForgedToken(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSessionStore(t, &clock)
	ctx := context.Background()

	sess, err := s.Issue(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Same jti, wrong signing key: the persisted secret must gate it.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sess.ID,
		IssuedAt:  jwt.NewNumericDate(clock),
		ExpiresAt: jwt.NewNumericDate(clock.Add(time.Hour)),
	}).SignedString([]byte("attacker-key"))
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}

	if _, err := s.Verify(ctx, forged); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestSessionVerifyUnknownJTI(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSessionStore(t, &clock)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID: "never-issued",
	}).SignedString([]byte("whatever"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := s.Verify(context.Background(), tok); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRevoke(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSessionStore(t, &clock)
	ctx := context.Background()

	sess, err := s.Issue(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := s.Revoke(ctx, sess.ID, "user-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := s.Verify(ctx, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}
	ids, err := s.UserSessionIDs(ctx, "user-1")
	if err != nil {
		t.Fatalf("UserSessionIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty session index, got %v", ids)
	}
	// Idempotent.
	if err := s.Revoke(ctx, sess.ID, "user-1"); err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}
}

func TestSessionRevokeAll(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSessionStore(t, &clock)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		sess, err := s.Issue(ctx, "user-1", nil)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		tokens = append(tokens, sess.Token)
		clock = clock.Add(time.Millisecond) // distinct issue instants
	}
	other, err := s.Issue(ctx, "user-2", nil)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	n, err := s.RevokeAll(ctx, "user-1")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d sessions, want 3", n)
	}
	for _, tok := range tokens {
		if _, err := s.Verify(ctx, tok); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after RevokeAll, got %v", err)
		}
	}
	if _, err := s.Verify(ctx, other.Token); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSessionStore(t, &clock)
	ctx := context.Background()

	sess, err := s.Issue(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	clock = clock.Add(59 * time.Minute)
	if _, err := s.Verify(ctx, sess.Token); err != nil {
		t.Fatalf("session should still be valid: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := s.Verify(ctx, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestSessionConfigValidation(t *testing.T) {
	store := kv.NewMemory()
	if _, err := NewSessionStore(nil, SessionConfig{GlobalSecret: "x", Namespace: testNamespace}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewSessionStore(store, SessionConfig{Namespace: testNamespace}); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewSessionStore(store, SessionConfig{GlobalSecret: "x"}); err == nil {
		t.Fatal("expected error for nil namespace")
	}
	s, err := NewSessionStore(store, SessionConfig{GlobalSecret: "x", Namespace: testNamespace})
	if err != nil {
		t.Fatalf("NewSessionStore failed: %v", err)
	}
	if s.TTL() != 24*time.Hour {
		t.Fatalf("default TTL %v, want 24h", s.TTL())
	}
}

func TestSessionIssueRequiresUser(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestSessionStore(t, &clock)
	if _, err := s.Issue(context.Background(), "  ", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
