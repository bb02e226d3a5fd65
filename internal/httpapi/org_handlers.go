package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"inkwell.dev/internal/audit"
	"inkwell.dev/internal/identity"
	"inkwell.dev/internal/mail"
	"inkwell.dev/internal/obs"
)

const invitationTTL = 7 * 24 * time.Hour

type createOrganizationRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type createProjectRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type updateRoleRequest struct {
	Role identity.Role `json:"role"`
}

type setProjectRoleRequest struct {
	ProjectID string        `json:"project_id"`
	Role      identity.Role `json:"role"`
}

type inviteRequest struct {
	Email string        `json:"email"`
	Role  identity.Role `json:"role"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	gate := a.sessionGate(r, "", "")
	if err := gate.Check(); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.content.CreateOrganization(r.Context(), req.Slug, req.Name)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	if _, err := a.resolver.CreateOrgOwner(r.Context(), gate.User().ID, org.ID); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "content.organization.create", map[string]any{
		"organization_id": org.ID,
		"slug":            org.Slug,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s", org.ID))
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/organizations/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	orgID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleOrganizationGet(w, r, orgID)
	case parts[1] == "projects" && len(parts) == 2:
		a.handleOrganizationProjects(w, r, orgID)
	case parts[1] == "members" && len(parts) == 3:
		a.handleMemberGet(w, r, orgID, parts[2])
	case parts[1] == "members" && len(parts) == 4 && parts[3] == "role":
		a.handleMemberRole(w, r, orgID, parts[2])
	case parts[1] == "members" && len(parts) == 4 && parts[3] == "project-role":
		a.handleMemberProjectRole(w, r, orgID, parts[2])
	case parts[1] == "invitations" && len(parts) == 2:
		a.handleInvitationCreate(w, r, orgID)
	case parts[1] == "invitations" && len(parts) == 3 && parts[2] == "accept":
		a.handleInvitationAccept(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrganizationGet(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	gate := a.sessionGate(r, orgID, "")
	if err := gate.CheckOrgRead(r.Context()); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	org, err := gate.Tenant().Organization(r.Context())
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) handleOrganizationProjects(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		gate := a.sessionGate(r, orgID, "")
		if err := gate.CheckOrgRead(r.Context()); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		// Members see only the projects their roles reach.
		ids, err := a.resolver.GetUserProjectIDs(r.Context(), gate.User().ID, orgID)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		projects := make([]any, 0, len(ids))
		for _, id := range ids {
			p, err := a.content.GetProject(r.Context(), id)
			if err != nil {
				handleContentError(w, r, err)
				return
			}
			projects = append(projects, p)
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case http.MethodPost:
		gate := a.sessionGate(r, orgID, "")
		if err := gate.CheckOrgWrite(r.Context()); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		var req createProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p, err := a.content.CreateProject(r.Context(), orgID, req.Slug, req.Name)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "content.project.create", map[string]any{
			"project_id": p.ID,
			"slug":       p.Slug,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s", p.ID))
		writeJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleMemberGet(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	gate := a.sessionGate(r, orgID, "")
	if err := gate.CheckOrgRead(r.Context()); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	m, err := a.resolver.GetMembership(r.Context(), userID, orgID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	if m == nil {
		writeError(w, r, http.StatusNotFound, "membership not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleMemberRole(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	gate := a.sessionGate(r, orgID, "")
	if err := gate.CheckOrgWrite(r.Context()); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role == "" {
		writeError(w, r, http.StatusBadRequest, "role is required")
		return
	}
	if err := a.memberships.UpdateRole(r.Context(), userID, orgID, req.Role); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.membership.role_update", map[string]any{
		"member_user_id": userID,
		"role":           string(req.Role),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMemberProjectRole(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	gate := a.sessionGate(r, orgID, "")
	if err := gate.CheckOrgWrite(r.Context()); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	var req setProjectRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectID == "" || req.Role == "" {
		writeError(w, r, http.StatusBadRequest, "project_id and role are required")
		return
	}
	pr := identity.ProjectRole{ProjectID: req.ProjectID, Role: req.Role}
	if err := a.memberships.SetProjectRole(r.Context(), userID, orgID, pr); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.membership.project_role_update", map[string]any{
		"member_user_id": userID,
		"project_id":     req.ProjectID,
		"role":           string(req.Role),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleInvitationCreate(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	gate := a.sessionGate(r, orgID, "")
	if err := gate.CheckOrgWrite(r.Context()); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	role := req.Role
	if role == "" {
		role = identity.RoleMember
	}
	token, err := a.actions.Create(r.Context(), identity.ActionInvitation, map[string]any{
		"organization_id": orgID,
		"email":           email,
		"role":            string(role),
	}, invitationTTL)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	obs.CountActionToken(identity.ActionInvitation, "issued")
	_ = a.sender.Send(r.Context(), mail.Message{
		To:       email,
		Subject:  "You have been invited",
		TextBody: fmt.Sprintf("Join the organization: %s/invite?token=%s", a.baseURL, token),
	})
	_ = audit.LogEvent(r.Context(), "identity.invitation.create", map[string]any{
		"email": email,
		"role":  string(role),
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
}

func (a *API) handleInvitationAccept(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	gate := a.sessionGate(r, orgID, "")
	if err := gate.Check(); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := a.actions.Verify(r.Context(), identity.ActionInvitation, req.Token)
	if err != nil {
		obs.CountActionToken(identity.ActionInvitation, "rejected")
		handleIdentityError(w, r, err)
		return
	}
	tokenOrg, _ := tok.Claims["organization_id"].(string)
	tokenEmail, _ := tok.Claims["email"].(string)
	if tokenOrg != orgID || !strings.EqualFold(tokenEmail, gate.User().Email) {
		writeError(w, r, http.StatusForbidden, "invitation does not match this account")
		return
	}
	roleName, _ := tok.Claims["role"].(string)
	role := identity.Role(roleName)
	if role == "" {
		role = identity.RoleMember
	}
	if err := a.actions.Invalidate(r.Context(), tok.ID); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	obs.CountActionToken(identity.ActionInvitation, "verified")

	now := a.now().UTC()
	m := &identity.OrganizationMembership{
		UserID:         gate.User().ID,
		OrganizationID: orgID,
		Role:           role,
		AcceptedAt:     &now,
	}
	if err := a.memberships.Create(r.Context(), m); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.invitation.accept", map[string]any{
		"role": string(role),
	})
	writeJSON(w, http.StatusCreated, m)
}
