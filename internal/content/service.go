package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"inkwell.dev/internal/ids"
)

var (
	ErrNotFound     = errors.New("content: not found")
	ErrConflict     = errors.New("content: resource conflict")
	ErrInvalidInput = errors.New("content: invalid input")
)

// Service defines the content data-plane operations.
type Service interface {
	CreateOrganization(ctx context.Context, slug, name string) (Organization, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)

	CreateProject(ctx context.Context, organizationID, slug, name string) (Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context, organizationID string) ([]Project, error)
	ProjectIDsByOrganization(ctx context.Context, organizationID string) ([]string, error)

	CreateStory(ctx context.Context, projectID, slug, title string) (Story, error)
	GetStory(ctx context.Context, id string) (Story, error)
	ListStories(ctx context.Context, projectID string) ([]Story, error)

	CreateEntry(ctx context.Context, storyID, locale string, data map[string]any) (Entry, error)
	GetEntry(ctx context.Context, id string) (Entry, error)
	UpdateEntry(ctx context.Context, id string, data map[string]any) (Entry, error)
	ListEntries(ctx context.Context, storyID string) ([]Entry, error)
}

// InMemory implements Service with in-process maps. Used by tests and
// single-node dev mode; deployments use the Postgres store.
type InMemory struct {
	mu       sync.RWMutex
	orgs     map[string]Organization
	projects map[string]Project
	stories  map[string]Story
	entries  map[string]Entry
	now      func() time.Time
}

// NewInMemory creates an empty content store.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:     make(map[string]Organization),
		projects: make(map[string]Project),
		stories:  make(map[string]Story),
		entries:  make(map[string]Entry),
		now:      time.Now,
	}
}

var _ Service = (*InMemory)(nil)

func normalizeSlug(slug string) (string, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" {
		return "", fmt.Errorf("%w: slug is required", ErrInvalidInput)
	}
	return slug, nil
}

func (s *InMemory) CreateOrganization(ctx context.Context, slug, name string) (Organization, error) {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return Organization{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, org := range s.orgs {
		if org.Slug == slug {
			return Organization{}, fmt.Errorf("%w: organization slug %s", ErrConflict, slug)
		}
	}
	now := s.now().UTC()
	org := Organization{ID: ids.New(), Slug: slug, Name: name, CreatedAt: now, UpdatedAt: now}
	s.orgs[org.ID] = org
	return org, nil
}

func (s *InMemory) GetOrganization(ctx context.Context, id string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (s *InMemory) CreateProject(ctx context.Context, organizationID, slug, name string) (Project, error) {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return Project{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[organizationID]; !ok {
		return Project{}, ErrNotFound
	}
	for _, p := range s.projects {
		if p.OrganizationID == organizationID && p.Slug == slug {
			return Project{}, fmt.Errorf("%w: project slug %s", ErrConflict, slug)
		}
	}
	now := s.now().UTC()
	p := Project{ID: ids.New(), OrganizationID: organizationID, Slug: slug, Name: name, CreatedAt: now, UpdatedAt: now}
	s.projects[p.ID] = p
	return p, nil
}

func (s *InMemory) GetProject(ctx context.Context, id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemory) ListProjects(ctx context.Context, organizationID string) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Project
	for _, p := range s.projects {
		if p.OrganizationID == organizationID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemory) ProjectIDsByOrganization(ctx context.Context, organizationID string) ([]string, error) {
	projects, err := s.ListProjects(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	idsOut := make([]string, 0, len(projects))
	for _, p := range projects {
		idsOut = append(idsOut, p.ID)
	}
	return idsOut, nil
}

func (s *InMemory) CreateStory(ctx context.Context, projectID, slug, title string) (Story, error) {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return Story{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Story{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return Story{}, ErrNotFound
	}
	for _, st := range s.stories {
		if st.ProjectID == projectID && st.Slug == slug {
			return Story{}, fmt.Errorf("%w: story slug %s", ErrConflict, slug)
		}
	}
	now := s.now().UTC()
	st := Story{ID: ids.New(), ProjectID: projectID, Slug: slug, Title: title, CreatedAt: now, UpdatedAt: now}
	s.stories[st.ID] = st
	return st, nil
}

func (s *InMemory) GetStory(ctx context.Context, id string) (Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stories[id]
	if !ok {
		return Story{}, ErrNotFound
	}
	return st, nil
}

func (s *InMemory) ListStories(ctx context.Context, projectID string) ([]Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Story
	for _, st := range s.stories {
		if st.ProjectID == projectID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *InMemory) CreateEntry(ctx context.Context, storyID, locale string, data map[string]any) (Entry, error) {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = "en"
	}
	if data == nil {
		data = map[string]any{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stories[storyID]; !ok {
		return Entry{}, ErrNotFound
	}
	now := s.now().UTC()
	e := Entry{ID: ids.New(), StoryID: storyID, Locale: locale, Data: data, CreatedAt: now, UpdatedAt: now}
	s.entries[e.ID] = e
	return e, nil
}

func (s *InMemory) GetEntry(ctx context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *InMemory) UpdateEntry(ctx context.Context, id string, data map[string]any) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if data != nil {
		e.Data = data
	}
	e.UpdatedAt = s.now().UTC()
	s.entries[id] = e
	return e, nil
}

func (s *InMemory) ListEntries(ctx context.Context, storyID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.StoryID == storyID {
			out = append(out, e)
		}
	}
	return out, nil
}
