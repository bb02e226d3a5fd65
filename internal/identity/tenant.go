package identity

import (
	"context"
	"sync"

	"inkwell.dev/internal/content"
)

// OrganizationSource loads organizations by id.
type OrganizationSource interface {
	GetOrganization(ctx context.Context, id string) (content.Organization, error)
}

// ProjectSource loads projects by id.
type ProjectSource interface {
	GetProject(ctx context.Context, id string) (content.Project, error)
}

// Tenant is the organization/project pair scoping a request. Ids come
// from request headers; the backing entities are loaded lazily and
// memoized. Tenant makes no decisions itself; it feeds RoleResolver
// and the handlers.
type Tenant struct {
	OrganizationID string
	ProjectID      string

	orgs     OrganizationSource
	projects ProjectSource

	orgOnce  sync.Once
	org      *content.Organization
	orgErr   error
	projOnce sync.Once
	proj     *content.Project
	projErr  error
}

// NewTenant builds a tenant for the given scope ids.
func NewTenant(organizationID, projectID string, orgs OrganizationSource, projects ProjectSource) *Tenant {
	return &Tenant{
		OrganizationID: organizationID,
		ProjectID:      projectID,
		orgs:           orgs,
		projects:       projects,
	}
}

// Organization resolves and memoizes the backing organization.
func (t *Tenant) Organization(ctx context.Context) (*content.Organization, error) {
	t.orgOnce.Do(func() {
		if t.OrganizationID == "" || t.orgs == nil {
			t.orgErr = ErrNotFound
			return
		}
		org, err := t.orgs.GetOrganization(ctx, t.OrganizationID)
		if err != nil {
			t.orgErr = err
			return
		}
		t.org = &org
	})
	return t.org, t.orgErr
}

// Project resolves and memoizes the backing project.
func (t *Tenant) Project(ctx context.Context) (*content.Project, error) {
	t.projOnce.Do(func() {
		if t.ProjectID == "" || t.projects == nil {
			t.projErr = ErrNotFound
			return
		}
		proj, err := t.projects.GetProject(ctx, t.ProjectID)
		if err != nil {
			t.projErr = err
			return
		}
		t.proj = &proj
	})
	return t.proj, t.projErr
}
