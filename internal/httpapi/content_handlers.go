package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"inkwell.dev/internal/audit"
	"inkwell.dev/internal/content"
	"inkwell.dev/internal/identity"
)

type createStoryRequest struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type createEntryRequest struct {
	Locale string         `json:"locale"`
	Data   map[string]any `json:"data"`
}

type updateEntryRequest struct {
	Data map[string]any `json:"data"`
}

// authorizeProject gates project-bound content access. A raw API key
// takes precedence when presented; otherwise the session gate applies.
func (a *API) authorizeProject(r *http.Request, p content.Project, write bool) error {
	if keyGate, ok := identity.ApiKeyFromContext(r.Context()); ok {
		var err error
		if write {
			err = keyGate.CanWrite()
		} else {
			err = keyGate.CanRead()
		}
		if err != nil {
			return err
		}
		key := keyGate.Key()
		if key.Scope == identity.ScopeOrganization {
			if key.OrganizationID != p.OrganizationID {
				return fmt.Errorf("%w: api key is bound to another organization", identity.ErrAuthorizationDenied)
			}
			return nil
		}
		if keyGate.ProjectID() != p.ID {
			return fmt.Errorf("%w: api key is bound to another project", identity.ErrAuthorizationDenied)
		}
		return nil
	}

	gate := a.sessionGate(r, p.OrganizationID, p.ID)
	if write {
		return gate.CheckProjectWrite(r.Context())
	}
	return gate.CheckProjectRead(r.Context())
}

func (a *API) handleProjectScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/projects/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	project, err := a.content.GetProject(r.Context(), parts[0])
	if err != nil {
		handleContentError(w, r, err)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if err := a.authorizeProject(r, project, false); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case parts[1] == "stories" && len(parts) == 2:
		a.handleProjectStories(w, r, project)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleProjectStories(w http.ResponseWriter, r *http.Request, project content.Project) {
	switch r.Method {
	case http.MethodGet:
		if err := a.authorizeProject(r, project, false); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		stories, err := a.content.ListStories(r.Context(), project.ID)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stories": stories})
	case http.MethodPost:
		if err := a.authorizeProject(r, project, true); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		var req createStoryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		st, err := a.content.CreateStory(r.Context(), project.ID, req.Slug, req.Title)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "content.story.create", map[string]any{
			"story_id": st.ID,
			"slug":     st.Slug,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/stories/%s", st.ID))
		writeJSON(w, http.StatusCreated, st)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// projectForStory resolves the owning project for authorization.
func (a *API) projectForStory(r *http.Request, storyID string) (content.Story, content.Project, error) {
	st, err := a.content.GetStory(r.Context(), storyID)
	if err != nil {
		return content.Story{}, content.Project{}, err
	}
	p, err := a.content.GetProject(r.Context(), st.ProjectID)
	if err != nil {
		return content.Story{}, content.Project{}, err
	}
	return st, p, nil
}

func (a *API) handleStoryScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/stories/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	story, project, err := a.projectForStory(r, parts[0])
	if err != nil {
		handleContentError(w, r, err)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if err := a.authorizeProject(r, project, false); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, story)
	case parts[1] == "entries" && len(parts) == 2:
		a.handleStoryEntries(w, r, story, project)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleStoryEntries(w http.ResponseWriter, r *http.Request, story content.Story, project content.Project) {
	switch r.Method {
	case http.MethodGet:
		if err := a.authorizeProject(r, project, false); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		entries, err := a.content.ListEntries(r.Context(), story.ID)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	case http.MethodPost:
		if err := a.authorizeProject(r, project, true); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		var req createEntryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		e, err := a.content.CreateEntry(r.Context(), story.ID, req.Locale, req.Data)
		if err != nil {
			handleContentError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "content.entry.create", map[string]any{
			"entry_id": e.ID,
			"locale":   e.Locale,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/entries/%s", e.ID))
		writeJSON(w, http.StatusCreated, e)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEntryScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/entries/"), "/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	entry, err := a.content.GetEntry(r.Context(), path)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	_, project, err := a.projectForStory(r, entry.StoryID)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	if err := a.authorizeProject(r, project, true); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	var req updateEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, err := a.content.UpdateEntry(r.Context(), entry.ID, req.Data)
	if err != nil {
		handleContentError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "content.entry.update", map[string]any{
		"entry_id": e.ID,
	})
	writeJSON(w, http.StatusOK, e)
}
