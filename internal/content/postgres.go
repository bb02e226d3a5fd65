package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"inkwell.dev/internal/ids"
)

// PGStore implements Service using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Service = (*PGStore)(nil)

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func isUniqueViolation(err error) bool {
	// 23505 is unique_violation; the pgx stdlib driver surfaces it in
	// the error string without requiring a pgconn type assertion here.
	return err != nil && strings.Contains(err.Error(), "23505")
}

func (s *PGStore) CreateOrganization(ctx context.Context, slug, name string) (Organization, error) {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return Organization{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	org := Organization{ID: ids.New(), Slug: slug, Name: name}
	err = s.db.QueryRowContext(ctx, `
		insert into organizations(id, slug, name)
		values ($1,$2,$3)
		returning created_at, updated_at
	`, org.ID, org.Slug, org.Name).Scan(&org.CreatedAt, &org.UpdatedAt)
	if isUniqueViolation(err) {
		return Organization{}, ErrConflict
	}
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *PGStore) GetOrganization(ctx context.Context, id string) (Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx, `
		select id, slug, name, created_at, updated_at
		from organizations where id=$1
	`, id).Scan(&org.ID, &org.Slug, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Organization{}, ErrNotFound
	}
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

func (s *PGStore) CreateProject(ctx context.Context, organizationID, slug, name string) (Project, error) {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return Project{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	p := Project{ID: ids.New(), OrganizationID: organizationID, Slug: slug, Name: name}
	err = s.db.QueryRowContext(ctx, `
		insert into projects(id, organization_id, slug, name)
		values ($1,$2,$3,$4)
		returning created_at, updated_at
	`, p.ID, p.OrganizationID, p.Slug, p.Name).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return Project{}, ErrConflict
	}
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *PGStore) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, slug, name, created_at, updated_at
		from projects where id=$1
	`, id).Scan(&p.ID, &p.OrganizationID, &p.Slug, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *PGStore) ListProjects(ctx context.Context, organizationID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, slug, name, created_at, updated_at
		from projects where organization_id=$1 order by created_at asc
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Slug, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) ProjectIDsByOrganization(ctx context.Context, organizationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id from projects where organization_id=$1 order by created_at asc`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PGStore) CreateStory(ctx context.Context, projectID, slug, title string) (Story, error) {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return Story{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Story{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	st := Story{ID: ids.New(), ProjectID: projectID, Slug: slug, Title: title}
	err = s.db.QueryRowContext(ctx, `
		insert into stories(id, project_id, slug, title)
		values ($1,$2,$3,$4)
		returning created_at, updated_at
	`, st.ID, st.ProjectID, st.Slug, st.Title).Scan(&st.CreatedAt, &st.UpdatedAt)
	if isUniqueViolation(err) {
		return Story{}, ErrConflict
	}
	if err != nil {
		return Story{}, err
	}
	return st, nil
}

func (s *PGStore) GetStory(ctx context.Context, id string) (Story, error) {
	var st Story
	err := s.db.QueryRowContext(ctx, `
		select id, project_id, slug, title, created_at, updated_at
		from stories where id=$1
	`, id).Scan(&st.ID, &st.ProjectID, &st.Slug, &st.Title, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Story{}, ErrNotFound
	}
	if err != nil {
		return Story{}, err
	}
	return st, nil
}

func (s *PGStore) ListStories(ctx context.Context, projectID string) ([]Story, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, project_id, slug, title, created_at, updated_at
		from stories where project_id=$1 order by created_at asc
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Story
	for rows.Next() {
		var st Story
		if err := rows.Scan(&st.ID, &st.ProjectID, &st.Slug, &st.Title, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PGStore) CreateEntry(ctx context.Context, storyID, locale string, data map[string]any) (Entry, error) {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = "en"
	}
	if data == nil {
		data = map[string]any{}
	}
	doc, err := json.Marshal(data)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{ID: ids.New(), StoryID: storyID, Locale: locale, Data: data}
	err = s.db.QueryRowContext(ctx, `
		insert into entries(id, story_id, locale, data)
		values ($1,$2,$3,$4)
		returning created_at, updated_at
	`, e.ID, e.StoryID, e.Locale, doc).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *PGStore) GetEntry(ctx context.Context, id string) (Entry, error) {
	var (
		e   Entry
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, story_id, locale, data, created_at, updated_at
		from entries where id=$1
	`, id).Scan(&e.ID, &e.StoryID, &e.Locale, &raw, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	_ = json.Unmarshal(raw, &e.Data)
	return e, nil
}

func (s *PGStore) UpdateEntry(ctx context.Context, id string, data map[string]any) (Entry, error) {
	if data == nil {
		data = map[string]any{}
	}
	doc, err := json.Marshal(data)
	if err != nil {
		return Entry{}, err
	}
	var (
		e   Entry
		raw []byte
	)
	err = s.db.QueryRowContext(ctx, `
		update entries set data=$2, updated_at=now()
		where id=$1
		returning id, story_id, locale, data, created_at, updated_at
	`, id, doc).Scan(&e.ID, &e.StoryID, &e.Locale, &raw, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	_ = json.Unmarshal(raw, &e.Data)
	return e, nil
}

func (s *PGStore) ListEntries(ctx context.Context, storyID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, story_id, locale, data, created_at, updated_at
		from entries where story_id=$1 order by created_at asc
	`, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e   Entry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.StoryID, &e.Locale, &raw, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(raw, &e.Data)
		out = append(out, e)
	}
	return out, rows.Err()
}
