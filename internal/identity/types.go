// Package identity implements the identity & access core: revocable
// sessions, single-use action tokens, membership role resolution and
// the request-scoped authorization contexts gating every operation.
package identity

import "time"

// User is an authenticated principal.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is an organization- or project-level role name.
type Role string

const (
	RoleOwner         Role = "owner"
	RoleAdministrator Role = "administrator"
	RoleDeveloper     Role = "developer"
	RoleEditor        Role = "editor"
	RoleMember        Role = "member"
)

// ProjectRole assigns a role within a single project.
type ProjectRole struct {
	ProjectID string `json:"project_id"`
	Role      Role   `json:"role"`
}

// OrganizationMembership records a user's standing in an organization,
// including explicit per-project roles. Unique per (user, organization).
type OrganizationMembership struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	OrganizationID string        `json:"organization_id"`
	Role           Role          `json:"role"`
	ProjectRoles   []ProjectRole `json:"project_roles,omitempty"`
	InvitedAt      *time.Time    `json:"invited_at,omitempty"`
	AcceptedAt     *time.Time    `json:"accepted_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ApiKeyScope is the entity type a key is bound to.
type ApiKeyScope string

const (
	ScopeUser         ApiKeyScope = "user"
	ScopeOrganization ApiKeyScope = "organization"
	ScopeProject      ApiKeyScope = "project"
)

// ApiKeyPurpose splits keys into read-only and read-write.
type ApiKeyPurpose string

const (
	PurposePublic  ApiKeyPurpose = "public"  // read-only
	PurposePrivate ApiKeyPurpose = "private" // read-write
)

// ApiKey is consumed read-only by this core; creation and rotation
// happen elsewhere.
type ApiKey struct {
	ID             string        `json:"id"`
	Value          string        `json:"-"`
	Scope          ApiKeyScope   `json:"scope"`
	Purpose        ApiKeyPurpose `json:"purpose"`
	Enabled        bool          `json:"enabled"`
	UserID         string        `json:"user_id,omitempty"`
	OrganizationID string        `json:"organization_id,omitempty"`
	ProjectID      string        `json:"project_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// APICredentials travel with a session created by exchanging an API
// key. A missing Secret marks the session read-only regardless of the
// user's roles.
type APICredentials struct {
	APIKey string `json:"api_key"`
	Secret string `json:"secret,omitempty"`
}

// HasSecret reports whether the write-enabling secret was supplied.
func (c *APICredentials) HasSecret() bool {
	return c != nil && c.Secret != ""
}

// Session is the public view returned by SessionStore. The client
// holds Token; the per-session secret never leaves the store.
type Session struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	IssuedAt       time.Time       `json:"issued_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Token          string          `json:"token"`
	APICredentials *APICredentials `json:"api_credentials,omitempty"`
}
