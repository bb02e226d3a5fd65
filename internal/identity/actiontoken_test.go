package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"inkwell.dev/internal/kv"
)

func newTestIssuer(t *testing.T, clock *time.Time) *ActionTokenIssuer {
	t.Helper()
	store := kv.NewMemory()
	store.SetClock(func() time.Time { return *clock })
	i, err := NewActionTokenIssuer(store, ActionTokenConfig{Secret: "action-secret"},
		WithActionTokenClock(func() time.Time { return *clock }))
	if err != nil {
		t.Fatalf("NewActionTokenIssuer failed: %v", err)
	}
	return i
}

func TestActionTokenCreateAndVerify(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &clock)
	ctx := context.Background()

	encoded, err := issuer.Create(ctx, ActionMagicLogin, map[string]any{"email": "user@example.com"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tok, err := issuer.Verify(ctx, ActionMagicLogin, encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if tok.Action != ActionMagicLogin {
		t.Fatalf("action %q, want %q", tok.Action, ActionMagicLogin)
	}
	if tok.Claims["email"] != "user@example.com" {
		t.Fatalf("payload not preserved: %v", tok.Claims)
	}
	if tok.ID != ActionMagicLogin+":"+tok.JTI {
		t.Fatalf("composite id %q does not embed jti %q", tok.ID, tok.JTI)
	}

	// Verification does not consume.
	if _, err := issuer.Verify(ctx, ActionMagicLogin, encoded); err != nil {
		t.Fatalf("second Verify failed: %v", err)
	}
}

func TestActionTokenWrongActionNamespace(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &clock)
	ctx := context.Background()

	encoded, err := issuer.Create(ctx, ActionPasswordReset, nil, 15*time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := issuer.Verify(ctx, ActionMagicLogin, encoded); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong action, got %v", err)
	}
}

func TestActionTokenInvalidate(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &clock)
	ctx := context.Background()

	encoded, err := issuer.Create(ctx, ActionInvitation, map[string]any{"org": "org-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	tok, err := issuer.Verify(ctx, ActionInvitation, encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := issuer.Invalidate(ctx, tok.ID); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := issuer.Verify(ctx, ActionInvitation, encoded); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Invalidate, got %v", err)
	}
	// Idempotent.
	if err := issuer.Invalidate(ctx, tok.ID); err != nil {
		t.Fatalf("second Invalidate failed: %v", err)
	}
}

func TestActionTokenExpires(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &clock)
	ctx := context.Background()

	encoded, err := issuer.Create(ctx, ActionMagicLogin, nil, 15*time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	clock = clock.Add(16 * time.Minute)
	if _, err := issuer.Verify(ctx, ActionMagicLogin, encoded); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestActionTokenPayloadOverridesDefaults(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &clock)
	ctx := context.Background()

	encoded, err := issuer.Create(ctx, ActionMagicLogin, map[string]any{"jti": "fixed-jti"}, time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	tok, err := issuer.Verify(ctx, ActionMagicLogin, encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if tok.JTI != "fixed-jti" {
		t.Fatalf("jti %q, want caller-supplied fixed-jti", tok.JTI)
	}
}

func TestActionTokenRejectsEmptyJTI(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, &clock)

	if _, err := issuer.Create(context.Background(), ActionMagicLogin, map[string]any{"jti": 42}, time.Hour); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for non-string jti, got %v", err)
	}
}
