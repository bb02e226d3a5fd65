package httpapi

import (
	"net/http"
	"testing"
	"time"
)

func TestRegisterLoginLogout(t *testing.T) {
	f := newAPIFixture(t)

	userID, token := f.registerAndLogin(t, "ada@example.com", "correct-horse")
	if userID == "" {
		t.Fatal("register returned empty user id")
	}

	// Duplicate registration conflicts.
	rec := f.do(t, http.MethodPost, "/v1/auth/register", nil, map[string]any{
		"email":    "ada@example.com",
		"password": "another-pass",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: got %d, want 409", rec.Code)
	}

	// Wrong password never reveals which half was wrong.
	rec = f.do(t, http.MethodPost, "/v1/auth/login", nil, map[string]any{
		"email":    "ada@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password login: got %d, want 401", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/v1/auth/login", nil, map[string]any{
		"email":    "nobody@example.com",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email login: got %d, want 401", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/v1/auth/session", bearerHeader(token), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session: got %d, body %s", rec.Code, rec.Body)
	}
	var sr sessionResponse
	decodeBody(t, rec, &sr)
	if sr.User == nil || sr.User.Email != "ada@example.com" {
		t.Fatalf("session user = %+v, want ada@example.com", sr.User)
	}

	rec = f.do(t, http.MethodPost, "/v1/auth/logout", bearerHeader(token), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: got %d, body %s", rec.Code, rec.Body)
	}

	// The revoked token no longer resolves a session.
	rec = f.do(t, http.MethodGet, "/v1/auth/session", bearerHeader(token), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("session after logout: got %d, want 404", rec.Code)
	}
}

func TestSessionRequiresBearer(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/auth/session", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no header: got %d, want 401", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/v1/auth/session", map[string]string{
		"Authorization": "Token abcdef",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong scheme: got %d, want 401", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/v1/auth/session", bearerHeader("not-a-jwt"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed token: got %d, want 400", rec.Code)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	f := newAPIFixture(t)
	_, token1 := f.registerAndLogin(t, "grace@example.com", "long-password")

	// Session ids derive from the issue millisecond; space the logins
	// out so the second login yields a distinct session.
	time.Sleep(2 * time.Millisecond)
	rec := f.do(t, http.MethodPost, "/v1/auth/login", nil, map[string]any{
		"email":    "grace@example.com",
		"password": "long-password",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("second login: got %d", rec.Code)
	}
	var second sessionResponse
	decodeBody(t, rec, &second)

	rec = f.do(t, http.MethodPost, "/v1/auth/logout-all", bearerHeader(second.Session.Token), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout-all: got %d, body %s", rec.Code, rec.Body)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if n, _ := body["revoked"].(float64); n != 2 {
		t.Errorf("revoked = %v, want 2", body["revoked"])
	}

	for _, token := range []string{token1, second.Session.Token} {
		rec = f.do(t, http.MethodGet, "/v1/auth/session", bearerHeader(token), nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("session after logout-all: got %d, want 404", rec.Code)
		}
	}
}

func TestMagicLinkFlow(t *testing.T) {
	f := newAPIFixture(t)
	_, _ = f.registerAndLogin(t, "linus@example.com", "magic-password")

	rec := f.do(t, http.MethodPost, "/v1/auth/magic-link", nil, map[string]any{
		"email": "linus@example.com",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("magic-link request: got %d, want 202", rec.Code)
	}
	token := tokenFromMail(t, f.sender.last(t))

	rec = f.do(t, http.MethodPost, "/v1/auth/magic-link/consume", nil, map[string]any{
		"token": token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("consume: got %d, body %s", rec.Code, rec.Body)
	}
	var sr sessionResponse
	decodeBody(t, rec, &sr)

	rec = f.do(t, http.MethodGet, "/v1/auth/session", bearerHeader(sr.Session.Token), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session from magic link: got %d", rec.Code)
	}

	// Single use: the same link cannot mint a second session.
	rec = f.do(t, http.MethodPost, "/v1/auth/magic-link/consume", nil, map[string]any{
		"token": token,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second consume: got %d, want 404", rec.Code)
	}
}

func TestMagicLinkDoesNotEnumerateAccounts(t *testing.T) {
	f := newAPIFixture(t)
	before := f.sender.count()

	rec := f.do(t, http.MethodPost, "/v1/auth/magic-link", nil, map[string]any{
		"email": "ghost@example.com",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d, want 202 for unknown account", rec.Code)
	}
	if f.sender.count() != before {
		t.Error("mail was sent for an unknown account")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAPIFixture(t)
	_, oldToken := f.registerAndLogin(t, "margaret@example.com", "old-password")

	rec := f.do(t, http.MethodPost, "/v1/auth/password-reset", nil, map[string]any{
		"email": "margaret@example.com",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("reset request: got %d, want 202", rec.Code)
	}
	token := tokenFromMail(t, f.sender.last(t))

	rec = f.do(t, http.MethodPost, "/v1/auth/password-reset/confirm", nil, map[string]any{
		"token":    token,
		"password": "new-password",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reset confirm: got %d, body %s", rec.Code, rec.Body)
	}

	// A reset revokes every open session.
	rec = f.do(t, http.MethodGet, "/v1/auth/session", bearerHeader(oldToken), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("old session after reset: got %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/v1/auth/login", nil, map[string]any{
		"email":    "margaret@example.com",
		"password": "old-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password after reset: got %d, want 401", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/v1/auth/login", nil, map[string]any{
		"email":    "margaret@example.com",
		"password": "new-password",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("new password login: got %d, body %s", rec.Code, rec.Body)
	}

	// The reset token is single use.
	rec = f.do(t, http.MethodPost, "/v1/auth/password-reset/confirm", nil, map[string]any{
		"token":    token,
		"password": "third-password",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second confirm: got %d, want 404", rec.Code)
	}
}
