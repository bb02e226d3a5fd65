// Package httpapi exposes the identity and content planes over HTTP.
// Handlers never touch stores directly for authorization decisions;
// every request goes through an authorization context built by the
// identity middleware.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"inkwell.dev/internal/content"
	"inkwell.dev/internal/identity"
	"inkwell.dev/internal/mail"
	"inkwell.dev/internal/obs"
)

// Tenant scope headers.
const (
	headerOrganization = "X-Inkwell-Organization"
	headerProject      = "X-Inkwell-Project"
	headerApiKey       = "X-Api-Key"
)

// ReadyProbe checks backing-store readiness for /readyz.
type ReadyProbe struct {
	DB   *sql.DB
	Ping func(ctx context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Ping != nil {
		return rp.Ping(ctx)
	}
	return nil
}

// Config wires the API's collaborators.
type Config struct {
	Version    string
	BaseURL    string // absolute base for links embedded in mail
	ReadyProbe ReadyProbe

	Sessions    *identity.SessionStore
	Actions     *identity.ActionTokenIssuer
	Resolver    *identity.RoleResolver
	Users       identity.UserStore
	Memberships identity.MembershipStore
	Keys        identity.ApiKeyStore
	Content     content.Service
	Sender      mail.Sender
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	ready   ReadyProbe
	version string
	baseURL string

	sessions    *identity.SessionStore
	actions     *identity.ActionTokenIssuer
	resolver    *identity.RoleResolver
	users       identity.UserStore
	memberships identity.MembershipStore
	keys        identity.ApiKeyStore
	content     content.Service
	sender      mail.Sender

	now func() time.Time
}

// Option configures API.
type Option func(*API)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(a *API) {
		if fn != nil {
			a.now = fn
		}
	}
}

// New validates config and builds the router.
func New(cfg Config, opts ...Option) (*API, error) {
	switch {
	case cfg.Sessions == nil:
		return nil, errors.New("httpapi: session store is required")
	case cfg.Actions == nil:
		return nil, errors.New("httpapi: action token issuer is required")
	case cfg.Resolver == nil:
		return nil, errors.New("httpapi: role resolver is required")
	case cfg.Users == nil:
		return nil, errors.New("httpapi: user store is required")
	case cfg.Memberships == nil:
		return nil, errors.New("httpapi: membership store is required")
	case cfg.Keys == nil:
		return nil, errors.New("httpapi: api key store is required")
	case cfg.Content == nil:
		return nil, errors.New("httpapi: content service is required")
	}
	a := &API{
		mux:         http.NewServeMux(),
		ready:       cfg.ReadyProbe,
		version:     cfg.Version,
		baseURL:     cfg.BaseURL,
		sessions:    cfg.Sessions,
		actions:     cfg.Actions,
		resolver:    cfg.Resolver,
		users:       cfg.Users,
		memberships: cfg.Memberships,
		keys:        cfg.Keys,
		content:     cfg.Content,
		sender:      cfg.Sender,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sender == nil {
		a.sender = mail.LogSender{}
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/logout-all", a.handleLogoutAll)
	a.mux.HandleFunc("/v1/auth/session", a.handleSession)
	a.mux.HandleFunc("/v1/auth/magic-link", a.handleMagicLinkRequest)
	a.mux.HandleFunc("/v1/auth/magic-link/consume", a.handleMagicLinkConsume)
	a.mux.HandleFunc("/v1/auth/password-reset", a.handlePasswordResetRequest)
	a.mux.HandleFunc("/v1/auth/password-reset/confirm", a.handlePasswordResetConfirm)

	a.mux.HandleFunc("/v1/organizations", a.handleOrganizations)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationScoped)
	a.mux.HandleFunc("/v1/projects/", a.handleProjectScoped)
	a.mux.HandleFunc("/v1/stories/", a.handleStoryScoped)
	a.mux.HandleFunc("/v1/entries/", a.handleEntryScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler returns the fully wrapped http.Handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withIdentity(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
