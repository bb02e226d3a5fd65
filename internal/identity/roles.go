package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MembershipStore describes the persistence the resolver relies on.
// Memberships are unique per (user, organization).
type MembershipStore interface {
	// Create persists a membership. ErrAlreadyExists on a duplicate
	// (user, organization) pair.
	Create(ctx context.Context, m *OrganizationMembership) error

	// Find returns the membership for the pair. ErrNotFound if absent.
	Find(ctx context.Context, userID, organizationID string) (*OrganizationMembership, error)

	// ListByUser returns every membership the user holds.
	ListByUser(ctx context.Context, userID string) ([]OrganizationMembership, error)

	// UpdateRole replaces the organization-level role.
	UpdateRole(ctx context.Context, userID, organizationID string, role Role) error

	// SetProjectRole upserts one project-role entry on the membership.
	SetProjectRole(ctx context.Context, userID, organizationID string, pr ProjectRole) error
}

// ProjectDirectory lists project ids per organization; satisfied by the
// content store. Needed so org admins can enumerate every project.
type ProjectDirectory interface {
	ProjectIDsByOrganization(ctx context.Context, organizationID string) ([]string, error)
}

// ResolverConfig holds the two admin role sets. They are configured
// independently: the project set may carry tiers (Developer) that grant
// project writes without organization-level administration.
type ResolverConfig struct {
	OrgAdminRoles     []Role
	ProjectAdminRoles []Role
}

// DefaultResolverConfig mirrors production defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		OrgAdminRoles:     []Role{RoleOwner, RoleAdministrator},
		ProjectAdminRoles: []Role{RoleOwner, RoleAdministrator, RoleDeveloper},
	}
}

// RoleResolver answers organization/project authorization questions.
// No other component inspects membership documents directly.
type RoleResolver struct {
	memberships MembershipStore
	projects    ProjectDirectory
	cfg         ResolverConfig
	now         func() time.Time
}

// ResolverOption configures RoleResolver.
type ResolverOption func(*RoleResolver)

// WithResolverClock overrides the time source (useful for tests).
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *RoleResolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRoleResolver constructs the resolver.
func NewRoleResolver(memberships MembershipStore, projects ProjectDirectory, cfg ResolverConfig, opts ...ResolverOption) (*RoleResolver, error) {
	if memberships == nil {
		return nil, errors.New("identity: membership store is required")
	}
	if len(cfg.OrgAdminRoles) == 0 || len(cfg.ProjectAdminRoles) == 0 {
		cfg = DefaultResolverConfig()
	}
	r := &RoleResolver{memberships: memberships, projects: projects, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func containsRole(set []Role, role Role) bool {
	for _, r := range set {
		if r == role {
			return true
		}
	}
	return false
}

// GetMembership loads the membership for (userID, organizationID).
// Missing memberships yield (nil, nil): absence is an answer, not an
// error, so callers can branch cheaply.
func (r *RoleResolver) GetMembership(ctx context.Context, userID, organizationID string) (*OrganizationMembership, error) {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	if userID == "" || organizationID == "" {
		return nil, fmt.Errorf("%w: user id and organization id are required", ErrValidation)
	}
	m, err := r.memberships.Find(ctx, userID, organizationID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetOrgRole returns the organization-level role, or empty when the
// user is not a member.
func (r *RoleResolver) GetOrgRole(ctx context.Context, userID, organizationID string) (Role, error) {
	m, err := r.GetMembership(ctx, userID, organizationID)
	if err != nil || m == nil {
		return "", err
	}
	return m.Role, nil
}

// GetProjectRole resolves the effective role within a project. An
// org-admin role applies to every project in the organization,
// bypassing explicit assignment; otherwise the membership's project
// roles are scanned.
func (r *RoleResolver) GetProjectRole(ctx context.Context, userID, organizationID, projectID string) (Role, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", fmt.Errorf("%w: project id is required", ErrValidation)
	}
	m, err := r.GetMembership(ctx, userID, organizationID)
	if err != nil || m == nil {
		return "", err
	}
	if containsRole(r.cfg.OrgAdminRoles, m.Role) {
		return m.Role, nil
	}
	for _, pr := range m.ProjectRoles {
		if pr.ProjectID == projectID {
			return pr.Role, nil
		}
	}
	return "", nil
}

// IsOrgMember reports whether the user holds any role in the org.
func (r *RoleResolver) IsOrgMember(ctx context.Context, userID, organizationID string) (bool, error) {
	role, err := r.GetOrgRole(ctx, userID, organizationID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

// IsProjectMember reports whether the user holds any effective role in
// the project.
func (r *RoleResolver) IsProjectMember(ctx context.Context, userID, organizationID, projectID string) (bool, error) {
	role, err := r.GetProjectRole(ctx, userID, organizationID, projectID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

// CanWriteToOrg reports whether the user's org role is in the
// org-admin set.
func (r *RoleResolver) CanWriteToOrg(ctx context.Context, userID, organizationID string) (bool, error) {
	role, err := r.GetOrgRole(ctx, userID, organizationID)
	if err != nil {
		return false, err
	}
	return role != "" && containsRole(r.cfg.OrgAdminRoles, role), nil
}

// CanWriteToProject reports whether the user's effective project role
// is in the project-admin set.
func (r *RoleResolver) CanWriteToProject(ctx context.Context, userID, organizationID, projectID string) (bool, error) {
	role, err := r.GetProjectRole(ctx, userID, organizationID, projectID)
	if err != nil {
		return false, err
	}
	return role != "" && containsRole(r.cfg.ProjectAdminRoles, role), nil
}

// GetUserOrgIDs lists the ids of every organization the user belongs to.
func (r *RoleResolver) GetUserOrgIDs(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	memberships, err := r.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, m.OrganizationID)
	}
	return out, nil
}

// GetUserProjectIDs lists the project ids the user can reach within an
// organization: every project for org admins, otherwise only those
// with an explicit assignment.
func (r *RoleResolver) GetUserProjectIDs(ctx context.Context, userID, organizationID string) ([]string, error) {
	m, err := r.GetMembership(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	if containsRole(r.cfg.OrgAdminRoles, m.Role) && r.projects != nil {
		return r.projects.ProjectIDsByOrganization(ctx, organizationID)
	}
	out := make([]string, 0, len(m.ProjectRoles))
	for _, pr := range m.ProjectRoles {
		out = append(out, pr.ProjectID)
	}
	return out, nil
}

// CreateOrgOwner creates the founding membership for a new
// organization. ErrAlreadyExists when the pair already has one.
func (r *RoleResolver) CreateOrgOwner(ctx context.Context, userID, organizationID string) (*OrganizationMembership, error) {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	if userID == "" || organizationID == "" {
		return nil, fmt.Errorf("%w: user id and organization id are required", ErrValidation)
	}
	existing, err := r.GetMembership(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: membership for user %s in organization %s", ErrAlreadyExists, userID, organizationID)
	}
	now := r.now().UTC()
	m := &OrganizationMembership{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           RoleOwner,
		AcceptedAt:     &now,
	}
	if err := r.memberships.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
