package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"inkwell.dev/internal/ids"
)

// PGStore implements UserStore, MembershipStore and ApiKeyStore over a
// single *sql.DB. Project roles live in a jsonb column on the
// membership row so the pair stays one document, matching how the
// resolver consumes it.
type PGStore struct {
	db  *sql.DB
	now func() time.Time
}

// PGOption configures PGStore.
type PGOption func(*PGStore)

// WithPGClock overrides the time source (useful for tests).
func WithPGClock(fn func() time.Time) PGOption {
	return func(s *PGStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB, opts ...PGOption) (*PGStore, error) {
	if db == nil {
		return nil, errors.New("identity: db is required")
	}
	s := &PGStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var (
	_ UserStore   = (*PGStore)(nil)
	_ ApiKeyStore = (*PGStore)(nil)
)

// pgMemberships adapts PGStore's membership methods to MembershipStore;
// the interface's Create/Find names collide with UserStore's.
type pgMemberships struct {
	s *PGStore
}

var _ MembershipStore = pgMemberships{}

// Memberships returns the MembershipStore view of the store.
func (s *PGStore) Memberships() MembershipStore {
	return pgMemberships{s: s}
}

func (v pgMemberships) Create(ctx context.Context, m *OrganizationMembership) error {
	return v.s.CreateMembership(ctx, m)
}

func (v pgMemberships) Find(ctx context.Context, userID, organizationID string) (*OrganizationMembership, error) {
	return v.s.FindMembership(ctx, userID, organizationID)
}

func (v pgMemberships) ListByUser(ctx context.Context, userID string) ([]OrganizationMembership, error) {
	return v.s.ListMembershipsByUser(ctx, userID)
}

func (v pgMemberships) UpdateRole(ctx context.Context, userID, organizationID string, role Role) error {
	return v.s.UpdateMembershipRole(ctx, userID, organizationID, role)
}

func (v pgMemberships) SetProjectRole(ctx context.Context, userID, organizationID string, pr ProjectRole) error {
	return v.s.SetMembershipProjectRole(ctx, userID, organizationID, pr)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	if u.Email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s", ErrAlreadyExists, u.Email)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PGStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at, updated_at
		 FROM users WHERE id = $1`, id)
	return s.scanUser(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at, updated_at
		 FROM users WHERE email = $1`, email)
	return s.scanUser(row)
}

func (s *PGStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, s.now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}

func (s *PGStore) CreateMembership(ctx context.Context, m *OrganizationMembership) error {
	if m.ID == "" {
		m.ID = ids.New()
	}
	now := s.now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	roles, err := json.Marshal(m.ProjectRoles)
	if err != nil {
		return fmt.Errorf("encode project roles: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO organization_memberships
		 (id, user_id, organization_id, role, project_roles, invited_at, accepted_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.UserID, m.OrganizationID, m.Role, roles, m.InvitedAt, m.AcceptedAt, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: membership for user %s in organization %s", ErrAlreadyExists, m.UserID, m.OrganizationID)
	}
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func scanMembership(scan func(dest ...any) error) (*OrganizationMembership, error) {
	var (
		m     OrganizationMembership
		roles []byte
	)
	err := scan(&m.ID, &m.UserID, &m.OrganizationID, &m.Role, &roles,
		&m.InvitedAt, &m.AcceptedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &m.ProjectRoles); err != nil {
			return nil, fmt.Errorf("decode project roles: %w", err)
		}
	}
	return &m, nil
}

func (s *PGStore) FindMembership(ctx context.Context, userID, organizationID string) (*OrganizationMembership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, organization_id, role, project_roles, invited_at, accepted_at, created_at, updated_at
		 FROM organization_memberships WHERE user_id = $1 AND organization_id = $2`,
		userID, organizationID)
	m, err := scanMembership(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: membership", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	return m, nil
}

func (s *PGStore) ListMembershipsByUser(ctx context.Context, userID string) ([]OrganizationMembership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, organization_id, role, project_roles, invited_at, accepted_at, created_at, updated_at
		 FROM organization_memberships WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []OrganizationMembership
	for rows.Next() {
		m, err := scanMembership(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return out, nil
}

func (s *PGStore) UpdateMembershipRole(ctx context.Context, userID, organizationID string, role Role) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE organization_memberships SET role = $1, updated_at = $2
		 WHERE user_id = $3 AND organization_id = $4`,
		role, s.now().UTC(), userID, organizationID)
	if err != nil {
		return fmt.Errorf("update membership role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update membership role: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: membership", ErrNotFound)
	}
	return nil
}

func (s *PGStore) SetMembershipProjectRole(ctx context.Context, userID, organizationID string, pr ProjectRole) error {
	m, err := s.FindMembership(ctx, userID, organizationID)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range m.ProjectRoles {
		if existing.ProjectID == pr.ProjectID {
			m.ProjectRoles[i] = pr
			replaced = true
			break
		}
	}
	if !replaced {
		m.ProjectRoles = append(m.ProjectRoles, pr)
	}
	roles, err := json.Marshal(m.ProjectRoles)
	if err != nil {
		return fmt.Errorf("encode project roles: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE organization_memberships SET project_roles = $1, updated_at = $2
		 WHERE user_id = $3 AND organization_id = $4`,
		roles, s.now().UTC(), userID, organizationID)
	if err != nil {
		return fmt.Errorf("update project roles: %w", err)
	}
	return nil
}

func (s *PGStore) FindByValue(ctx context.Context, value string) (*ApiKey, error) {
	var k ApiKey
	err := s.db.QueryRowContext(ctx,
		`SELECT id, value, scope, purpose, enabled, user_id, organization_id, project_id, created_at
		 FROM api_keys WHERE value = $1`, value).
		Scan(&k.ID, &k.Value, &k.Scope, &k.Purpose, &k.Enabled,
			&k.UserID, &k.OrganizationID, &k.ProjectID, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: api key", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	return &k, nil
}
