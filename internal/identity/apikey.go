package identity

import (
	"context"
	"fmt"
)

// ApiKeyStore looks up keys by their client-presented value. Keys are
// created and rotated elsewhere; this core only reads them.
type ApiKeyStore interface {
	// FindByValue returns the key matching value. ErrNotFound if
	// absent.
	FindByValue(ctx context.Context, value string) (*ApiKey, error)
}

// ApiKeyAuthorizationContext is the session-less gate for raw API-key
// access. Request-scoped, like AuthorizationContext.
type ApiKeyAuthorizationContext struct {
	key *ApiKey
	err error
}

// NewApiKeyAuthorizationContext assembles the gate. err carries any
// upstream key-lookup failure.
func NewApiKeyAuthorizationContext(key *ApiKey, err error) *ApiKeyAuthorizationContext {
	return &ApiKeyAuthorizationContext{key: key, err: err}
}

// Key returns the resolved key, if any.
func (a *ApiKeyAuthorizationContext) Key() *ApiKey { return a.key }

// ProjectID returns the project the key is bound to, when present.
func (a *ApiKeyAuthorizationContext) ProjectID() string {
	if a == nil || a.key == nil {
		return ""
	}
	return a.key.ProjectID
}

// Err returns the reason the context is unusable, or nil.
func (a *ApiKeyAuthorizationContext) Err() error {
	if a == nil {
		return fmt.Errorf("%w: no api key context", ErrAuthenticationRequired)
	}
	if a.err != nil {
		return a.err
	}
	if a.key == nil {
		return fmt.Errorf("%w: no api key", ErrAuthenticationRequired)
	}
	if a.ProjectID() == "" {
		return fmt.Errorf("%w: api key resolves no project", ErrAuthorizationDenied)
	}
	return nil
}

// IsValid reports whether the key context can gate anything at all.
func (a *ApiKeyAuthorizationContext) IsValid() bool { return a.Err() == nil }

// HasProjectAccess reports whether the key's scope can reach
// project-bound resources. User-scoped keys cannot.
func (a *ApiKeyAuthorizationContext) HasProjectAccess() bool {
	if !a.IsValid() {
		return false
	}
	return a.key.Scope == ScopeOrganization || a.key.Scope == ScopeProject
}

// CanRead authorizes read access. Disabled keys fail closed.
func (a *ApiKeyAuthorizationContext) CanRead() error {
	if err := a.Err(); err != nil {
		return err
	}
	if !a.key.Enabled {
		return fmt.Errorf("%w: api key disabled", ErrAuthorizationDenied)
	}
	if !a.HasProjectAccess() {
		return fmt.Errorf("%w: api key scope %s has no project access", ErrAuthorizationDenied, a.key.Scope)
	}
	if a.key.Purpose != PurposePublic && a.key.Purpose != PurposePrivate {
		return fmt.Errorf("%w: unknown api key purpose %s", ErrAuthorizationDenied, a.key.Purpose)
	}
	return nil
}

// CanWrite authorizes write access: private keys only.
func (a *ApiKeyAuthorizationContext) CanWrite() error {
	if err := a.CanRead(); err != nil {
		return err
	}
	if a.key.Purpose != PurposePrivate {
		return fmt.Errorf("%w: public api keys are read-only", ErrAuthorizationDenied)
	}
	return nil
}
