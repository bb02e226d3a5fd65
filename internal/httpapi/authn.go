package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"inkwell.dev/internal/identity"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withIdentity resolves request credentials into authorization
// contexts. It never rejects by itself: failed extraction produces a
// poisoned context, and each handler's Check* decides the response.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()

		if header := r.Header.Get(authHeader); header != "" {
			gate := a.resolveSession(r, header)
			ctx = identity.ContextWithAuthorization(ctx, gate)
		}
		if value := strings.TrimSpace(r.Header.Get(headerApiKey)); value != "" {
			key, err := a.keys.FindByValue(ctx, value)
			if errors.Is(err, identity.ErrNotFound) {
				key, err = nil, fmt.Errorf("%w: unknown api key", identity.ErrAuthenticationRequired)
			}
			ctx = identity.ContextWithApiKey(ctx, identity.NewApiKeyAuthorizationContext(key, err))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) resolveSession(r *http.Request, header string) *identity.AuthorizationContext {
	tenant := a.tenantFromHeaders(r)

	token, err := extractBearerToken(header)
	if err != nil {
		return identity.NewAuthorizationContext(nil, nil, tenant, a.resolver, err)
	}
	session, err := a.sessions.Verify(r.Context(), token)
	if err != nil {
		return identity.NewAuthorizationContext(nil, nil, tenant, a.resolver, err)
	}
	user, err := a.users.Find(r.Context(), session.UserID)
	if err != nil {
		return identity.NewAuthorizationContext(nil, &session, tenant, a.resolver, err)
	}
	return identity.NewAuthorizationContext(user, &session, tenant, a.resolver, nil)
}

func (a *API) tenantFromHeaders(r *http.Request) *identity.Tenant {
	return identity.NewTenant(
		strings.TrimSpace(r.Header.Get(headerOrganization)),
		strings.TrimSpace(r.Header.Get(headerProject)),
		a.content, a.content,
	)
}

// sessionGate returns the request's session-based gate rescoped to the
// given tenant ids. Path ids beat header ids.
func (a *API) sessionGate(r *http.Request, organizationID, projectID string) *identity.AuthorizationContext {
	base, ok := identity.AuthorizationFromContext(r.Context())
	if !ok {
		return identity.NewAuthorizationContext(nil, nil, nil, a.resolver,
			fmt.Errorf("%w: missing bearer token", identity.ErrAuthenticationRequired))
	}
	if organizationID == "" && projectID == "" {
		return base
	}
	tenant := identity.NewTenant(organizationID, projectID, a.content, a.content)
	return identity.NewAuthorizationContext(base.User(), base.Session(), tenant, a.resolver, base.Err())
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", fmt.Errorf("%w: missing bearer token", identity.ErrAuthenticationRequired)
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", fmt.Errorf("%w: invalid authorization scheme", identity.ErrAuthenticationRequired)
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", identity.ErrAuthenticationRequired)
	}
	return token, nil
}
