package identity

import (
	"errors"
	"testing"
)

func TestApiKeyGate(t *testing.T) {
	base := ApiKey{
		ID:             "key-1",
		Value:          "pk_live_abc",
		Scope:          ScopeProject,
		Purpose:        PurposePublic,
		Enabled:        true,
		OrganizationID: "org-1",
		ProjectID:      "proj-1",
	}

	cases := []struct {
		name     string
		mutate   func(*ApiKey)
		canRead  bool
		canWrite bool
	}{
		{"public project key reads only", nil, true, false},
		{"private key reads and writes", func(k *ApiKey) { k.Purpose = PurposePrivate }, true, true},
		{"disabled key fails closed", func(k *ApiKey) { k.Enabled = false }, false, false},
		{"org scope has project access", func(k *ApiKey) { k.Scope = ScopeOrganization }, true, false},
		{"user scope has no project access", func(k *ApiKey) { k.Scope = ScopeUser }, false, false},
		{"unknown purpose fails closed", func(k *ApiKey) { k.Purpose = "internal" }, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := base
			if tc.mutate != nil {
				tc.mutate(&key)
			}
			gate := NewApiKeyAuthorizationContext(&key, nil)
			if got := gate.CanRead() == nil; got != tc.canRead {
				t.Fatalf("CanRead=%v, want %v (%v)", got, tc.canRead, gate.CanRead())
			}
			if got := gate.CanWrite() == nil; got != tc.canWrite {
				t.Fatalf("CanWrite=%v, want %v (%v)", got, tc.canWrite, gate.CanWrite())
			}
		})
	}
}

func TestApiKeyGateUnusable(t *testing.T) {
	missing := NewApiKeyAuthorizationContext(nil, nil)
	if missing.IsValid() {
		t.Fatal("nil key must be invalid")
	}
	if err := missing.CanRead(); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}

	upstream := NewApiKeyAuthorizationContext(nil, errors.New("lookup failed"))
	if err := upstream.Err(); err == nil || errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected the upstream error, got %v", err)
	}

	noProject := NewApiKeyAuthorizationContext(&ApiKey{
		ID:      "key-2",
		Scope:   ScopeProject,
		Purpose: PurposePrivate,
		Enabled: true,
	}, nil)
	if err := noProject.CanRead(); !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("expected ErrAuthorizationDenied without project, got %v", err)
	}

	var nilGate *ApiKeyAuthorizationContext
	if nilGate.IsValid() {
		t.Fatal("nil gate must be invalid")
	}
}
