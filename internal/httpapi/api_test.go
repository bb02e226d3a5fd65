package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"inkwell.dev/internal/content"
	"inkwell.dev/internal/identity"
	"inkwell.dev/internal/kv"
	"inkwell.dev/internal/mail"
)

// captureSender records outbound mail instead of delivering it.
type captureSender struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (c *captureSender) Send(ctx context.Context, msg mail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *captureSender) last(t *testing.T) mail.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("expected at least one sent message")
	}
	return c.sent[len(c.sent)-1]
}

func tokenFromMail(t *testing.T, msg mail.Message) string {
	t.Helper()
	_, token, ok := strings.Cut(msg.TextBody, "token=")
	if !ok {
		t.Fatalf("no token in mail body: %q", msg.TextBody)
	}
	return token
}

type apiFixture struct {
	api     *API
	handler http.Handler

	users       *identity.MemoryUsers
	memberships *identity.MemoryMemberships
	keys        *identity.MemoryApiKeys
	content     *content.InMemory
	sender      *captureSender
}

func newAPIFixture(t *testing.T, hooks ...func(*Config)) *apiFixture {
	t.Helper()

	store := kv.NewMemory()
	sessions, err := identity.NewSessionStore(store, identity.SessionConfig{
		GlobalSecret: "test-global-secret",
		Namespace:    uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		TTL:          time.Hour,
	})
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	actions, err := identity.NewActionTokenIssuer(store, identity.ActionTokenConfig{
		Secret: "test-action-secret",
	})
	if err != nil {
		t.Fatalf("action token issuer: %v", err)
	}

	contentSvc := content.NewInMemory()
	memberships := identity.NewMemoryMemberships()
	resolver, err := identity.NewRoleResolver(memberships, contentSvc, identity.DefaultResolverConfig())
	if err != nil {
		t.Fatalf("role resolver: %v", err)
	}

	users := identity.NewMemoryUsers()
	keys := identity.NewMemoryApiKeys()
	sender := &captureSender{}

	cfg := Config{
		Version:     "test",
		BaseURL:     "http://api.test",
		Sessions:    sessions,
		Actions:     actions,
		Resolver:    resolver,
		Users:       users,
		Memberships: memberships,
		Keys:        keys,
		Content:     contentSvc,
		Sender:      sender,
	}
	for _, hook := range hooks {
		hook(&cfg)
	}

	api, err := New(cfg)
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	return &apiFixture{
		api:         api,
		handler:     api.Handler(),
		users:       users,
		memberships: memberships,
		keys:        keys,
		content:     contentSvc,
		sender:      sender,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (f *apiFixture) registerAndLogin(t *testing.T, email, password string) (userID, token string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/auth/register", nil, map[string]any{
		"email":    email,
		"name":     "Test User",
		"password": password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: got %d, body %s", email, rec.Code, rec.Body)
	}
	var u identity.User
	decodeBody(t, rec, &u)

	rec = f.do(t, http.MethodPost, "/v1/auth/login", nil, map[string]any{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: got %d, body %s", email, rec.Code, rec.Body)
	}
	var sr sessionResponse
	decodeBody(t, rec, &sr)
	if sr.Session.Token == "" {
		t.Fatal("login returned empty session token")
	}
	return u.ID, sr.Session.Token
}

func (f *apiFixture) createOrganization(t *testing.T, token, slug string) content.Organization {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/organizations", bearerHeader(token), map[string]any{
		"slug": slug,
		"name": "Org " + slug,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create organization %s: got %d, body %s", slug, rec.Code, rec.Body)
	}
	var org content.Organization
	decodeBody(t, rec, &org)
	return org
}

func (f *apiFixture) createProject(t *testing.T, token, orgID, slug string) content.Project {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/organizations/"+orgID+"/projects", bearerHeader(token), map[string]any{
		"slug": slug,
		"name": "Project " + slug,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project %s: got %d, body %s", slug, rec.Code, rec.Body)
	}
	var p content.Project
	decodeBody(t, rec, &p)
	return p
}
