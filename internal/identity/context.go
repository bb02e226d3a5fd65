package identity

import "context"

type authzContextKey struct{}
type apiKeyContextKey struct{}

// ContextWithAuthorization attaches the session-based gate to the
// request context.
func ContextWithAuthorization(ctx context.Context, authz *AuthorizationContext) context.Context {
	if authz == nil {
		return ctx
	}
	return context.WithValue(ctx, authzContextKey{}, authz)
}

// AuthorizationFromContext extracts the session-based gate.
func AuthorizationFromContext(ctx context.Context) (*AuthorizationContext, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(authzContextKey{}).(*AuthorizationContext)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ContextWithApiKey attaches the API-key gate to the request context.
func ContextWithApiKey(ctx context.Context, authz *ApiKeyAuthorizationContext) context.Context {
	if authz == nil {
		return ctx
	}
	return context.WithValue(ctx, apiKeyContextKey{}, authz)
}

// ApiKeyFromContext extracts the API-key gate.
func ApiKeyFromContext(ctx context.Context) (*ApiKeyAuthorizationContext, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(apiKeyContextKey{}).(*ApiKeyAuthorizationContext)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// UserIDFromContext returns the authenticated user's id when a valid
// session-based gate is present. Used by audit logging.
func UserIDFromContext(ctx context.Context) (string, bool) {
	authz, ok := AuthorizationFromContext(ctx)
	if !ok || !authz.IsValid() {
		return "", false
	}
	return authz.User().ID, true
}
