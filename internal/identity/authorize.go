package identity

import (
	"context"
	"fmt"
)

// AuthorizationContext is the session-based gate. It is built once per
// request from whatever credential verification produced and discarded
// afterwards; it never crosses requests.
type AuthorizationContext struct {
	user     *User
	session  *Session
	tenant   *Tenant
	resolver *RoleResolver
	err      error
}

// NewAuthorizationContext assembles the gate. err carries any upstream
// credential-extraction failure and poisons every check.
func NewAuthorizationContext(user *User, session *Session, tenant *Tenant, resolver *RoleResolver, err error) *AuthorizationContext {
	return &AuthorizationContext{user: user, session: session, tenant: tenant, resolver: resolver, err: err}
}

// User returns the authenticated user, if any.
func (a *AuthorizationContext) User() *User { return a.user }

// Session returns the verified session, if any.
func (a *AuthorizationContext) Session() *Session { return a.session }

// Tenant returns the request's tenant scope.
func (a *AuthorizationContext) Tenant() *Tenant { return a.tenant }

// Err returns the upstream credential error, if any.
func (a *AuthorizationContext) Err() error { return a.err }

// IsValid reports whether the context represents an authenticated
// caller. The session must belong to the user: a mismatched
// cached-user/session pairing is treated as unauthenticated.
func (a *AuthorizationContext) IsValid() bool {
	if a == nil || a.err != nil || a.user == nil || a.session == nil {
		return false
	}
	return a.session.UserID == a.user.ID
}

// Check fails with ErrAuthenticationRequired unless the context is
// valid.
func (a *AuthorizationContext) Check() error {
	if !a.IsValid() {
		return fmt.Errorf("%w: no valid session", ErrAuthenticationRequired)
	}
	return nil
}

// readOnlyCredentials reports whether the session was minted from API
// credentials lacking the write-enabling secret.
func (a *AuthorizationContext) readOnlyCredentials() bool {
	return a.session.APICredentials != nil && !a.session.APICredentials.HasSecret()
}

func (a *AuthorizationContext) orgID() (string, error) {
	if a.tenant == nil || a.tenant.OrganizationID == "" {
		return "", fmt.Errorf("%w: no organization in scope", ErrAuthorizationDenied)
	}
	return a.tenant.OrganizationID, nil
}

func (a *AuthorizationContext) projectID() (string, error) {
	if a.tenant == nil || a.tenant.ProjectID == "" {
		return "", fmt.Errorf("%w: no project in scope", ErrAuthorizationDenied)
	}
	return a.tenant.ProjectID, nil
}

// CheckOrgRead requires any role in the tenant organization.
func (a *AuthorizationContext) CheckOrgRead(ctx context.Context) error {
	if err := a.Check(); err != nil {
		return err
	}
	orgID, err := a.orgID()
	if err != nil {
		return err
	}
	role, err := a.resolver.GetOrgRole(ctx, a.user.ID, orgID)
	if err != nil {
		return err
	}
	if role == "" {
		return fmt.Errorf("%w: not a member of organization %s", ErrAuthorizationDenied, orgID)
	}
	return nil
}

// CheckOrgWrite requires an org-admin role. Sessions created from API
// credentials must additionally have supplied the key secret:
// read-only keys never write, even for org admins.
func (a *AuthorizationContext) CheckOrgWrite(ctx context.Context) error {
	if err := a.Check(); err != nil {
		return err
	}
	orgID, err := a.orgID()
	if err != nil {
		return err
	}
	ok, err := a.resolver.CanWriteToOrg(ctx, a.user.ID, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: write to organization %s requires an admin role", ErrAuthorizationDenied, orgID)
	}
	if a.readOnlyCredentials() {
		return fmt.Errorf("%w: read-only api credentials cannot write", ErrAuthorizationDenied)
	}
	return nil
}

// CheckProjectRead requires any effective role in the tenant project;
// org admins pass unconditionally.
func (a *AuthorizationContext) CheckProjectRead(ctx context.Context) error {
	if err := a.Check(); err != nil {
		return err
	}
	orgID, err := a.orgID()
	if err != nil {
		return err
	}
	projectID, err := a.projectID()
	if err != nil {
		return err
	}
	role, err := a.resolver.GetProjectRole(ctx, a.user.ID, orgID, projectID)
	if err != nil {
		return err
	}
	if role == "" {
		return fmt.Errorf("%w: no role in project %s", ErrAuthorizationDenied, projectID)
	}
	return nil
}

// CheckProjectWrite requires an admin-tier effective role in the
// project, applying the same API-secret rule as CheckOrgWrite.
func (a *AuthorizationContext) CheckProjectWrite(ctx context.Context) error {
	if err := a.Check(); err != nil {
		return err
	}
	orgID, err := a.orgID()
	if err != nil {
		return err
	}
	projectID, err := a.projectID()
	if err != nil {
		return err
	}
	ok, err := a.resolver.CanWriteToProject(ctx, a.user.ID, orgID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: write to project %s requires an admin role", ErrAuthorizationDenied, projectID)
	}
	if a.readOnlyCredentials() {
		return fmt.Errorf("%w: read-only api credentials cannot write", ErrAuthorizationDenied)
	}
	return nil
}

// HasRole reports whether the user's org-level role equals name.
func (a *AuthorizationContext) HasRole(ctx context.Context, name Role) (bool, error) {
	if !a.IsValid() {
		return false, nil
	}
	orgID, err := a.orgID()
	if err != nil {
		return false, nil
	}
	role, err := a.resolver.GetOrgRole(ctx, a.user.ID, orgID)
	if err != nil {
		return false, err
	}
	return role == name, nil
}
