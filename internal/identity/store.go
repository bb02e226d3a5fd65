package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"inkwell.dev/internal/ids"
)

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// MemoryUsers implements UserStore in process, for tests and dev mode.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]User
	now   func() time.Time
}

// NewMemoryUsers creates an empty user store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]User), now: time.Now}
}

var _ UserStore = (*MemoryUsers)(nil)

func (s *MemoryUsers) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	if u.Email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: user %s", ErrAlreadyExists, u.Email)
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryUsers) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return &u, nil
}

func (s *MemoryUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
}

func (s *MemoryUsers) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now().UTC()
	s.users[userID] = u
	return nil
}

// MemoryMemberships implements MembershipStore in process.
type MemoryMemberships struct {
	mu          sync.RWMutex
	memberships map[string]OrganizationMembership // keyed userID+"/"+orgID
	now         func() time.Time
}

// NewMemoryMemberships creates an empty membership store.
func NewMemoryMemberships() *MemoryMemberships {
	return &MemoryMemberships{
		memberships: make(map[string]OrganizationMembership),
		now:         time.Now,
	}
}

var _ MembershipStore = (*MemoryMemberships)(nil)

func membershipKey(userID, organizationID string) string {
	return userID + "/" + organizationID
}

func (s *MemoryMemberships) Create(ctx context.Context, m *OrganizationMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey(m.UserID, m.OrganizationID)
	if _, ok := s.memberships[key]; ok {
		return fmt.Errorf("%w: membership %s", ErrAlreadyExists, key)
	}
	if m.ID == "" {
		m.ID = ids.New()
	}
	now := s.now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.memberships[key] = *m
	return nil
}

func (s *MemoryMemberships) Find(ctx context.Context, userID, organizationID string) (*OrganizationMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey(userID, organizationID)]
	if !ok {
		return nil, fmt.Errorf("%w: membership", ErrNotFound)
	}
	out := m
	out.ProjectRoles = append([]ProjectRole(nil), m.ProjectRoles...)
	return &out, nil
}

func (s *MemoryMemberships) ListByUser(ctx context.Context, userID string) ([]OrganizationMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OrganizationMembership
	for _, m := range s.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryMemberships) UpdateRole(ctx context.Context, userID, organizationID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey(userID, organizationID)
	m, ok := s.memberships[key]
	if !ok {
		return fmt.Errorf("%w: membership", ErrNotFound)
	}
	m.Role = role
	m.UpdatedAt = s.now().UTC()
	s.memberships[key] = m
	return nil
}

func (s *MemoryMemberships) SetProjectRole(ctx context.Context, userID, organizationID string, pr ProjectRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey(userID, organizationID)
	m, ok := s.memberships[key]
	if !ok {
		return fmt.Errorf("%w: membership", ErrNotFound)
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
	m.UpdatedAt = s.now().UTC()
	s.memberships[key] = m
	return nil
}

// MemoryApiKeys implements ApiKeyStore in process.
type MemoryApiKeys struct {
	mu   sync.RWMutex
	keys map[string]ApiKey // keyed by value
}

// NewMemoryApiKeys creates an empty key store.
func NewMemoryApiKeys() *MemoryApiKeys {
	return &MemoryApiKeys{keys: make(map[string]ApiKey)}
}

var _ ApiKeyStore = (*MemoryApiKeys)(nil)

// Put registers a key; used by fixtures and dev seeding.
func (s *MemoryApiKeys) Put(key ApiKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.Value] = key
}

func (s *MemoryApiKeys) FindByValue(ctx context.Context, value string) (*ApiKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[value]
	if !ok {
		return nil, fmt.Errorf("%w: api key", ErrNotFound)
	}
	return &k, nil
}
