package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"inkwell.dev/internal/kv"
)

const (
	sessionKeyPrefix   = "sess:"
	userSessionsPrefix = "usersess:"
	sessionSigningAlg  = "HS256"
	defaultSessionTTL  = 24 * time.Hour
)

// SessionConfig carries the signing and derivation parameters. All of
// it is supplied at construction; nothing is read from the environment
// below cmd.
type SessionConfig struct {
	// GlobalSecret is appended to every per-session secret to form the
	// signing key, so a leaked store record alone cannot forge tokens.
	GlobalSecret string

	// Namespace is the fixed UUID namespace for deriving session ids.
	Namespace uuid.UUID

	// TTL bounds both the signed token expiry and the store record.
	TTL time.Duration
}

// SessionStore issues, verifies and revokes revocable sessions. The
// client holds a signed token; validating its signature requires the
// server-held per-session secret, so deleting the record revokes the
// session immediately.
type SessionStore struct {
	store kv.Store
	cfg   SessionConfig
	now   func() time.Time
}

// SessionOption configures SessionStore.
type SessionOption func(*SessionStore)

// WithSessionClock overrides the time source (useful for tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSessionStore validates config and constructs the store.
func NewSessionStore(store kv.Store, cfg SessionConfig, opts ...SessionOption) (*SessionStore, error) {
	if store == nil {
		return nil, errors.New("identity: kv store is required")
	}
	if strings.TrimSpace(cfg.GlobalSecret) == "" {
		return nil, errors.New("identity: session global secret is required")
	}
	if cfg.Namespace == uuid.Nil {
		return nil, errors.New("identity: session namespace is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSessionTTL
	}
	s := &SessionStore{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// sessionRecord is the persisted, server-only half of a session.
type sessionRecord struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	IssuedAtMillis int64           `json:"issued_at_ms"`
	Secret         string          `json:"secret"`
	APICredentials *APICredentials `json:"api_credentials,omitempty"`
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func userSessionsKey(userID string) string { return userSessionsPrefix + userID }

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Issue creates a fresh session for userID. The session id is
// deterministic for a given (userID, issue millisecond); the
// per-session secret is random.
func (s *SessionStore) Issue(ctx context.Context, userID string, creds *APICredentials) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	millis := s.now().UTC().UnixMilli()
	issuedAt := time.UnixMilli(millis).UTC()
	expiresAt := issuedAt.Add(s.cfg.TTL)
	id := uuid.NewSHA1(s.cfg.Namespace, []byte(fmt.Sprintf("%s.%d", userID, millis))).String()
	secret := sha256Hex(uuid.NewString())

	claims := jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(secret + s.cfg.GlobalSecret))
	if err != nil {
		return Session{}, fmt.Errorf("sign session token: %w", err)
	}

	rec := sessionRecord{
		ID:             id,
		UserID:         userID,
		IssuedAtMillis: millis,
		Secret:         secret,
		APICredentials: creds,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.Set(ctx, sessionKey(id), raw, s.cfg.TTL); err != nil {
		return Session{}, err
	}
	if err := s.store.SAdd(ctx, userSessionsKey(userID), id); err != nil {
		return Session{}, err
	}
	// Refresh the set TTL so it outlives the newest session.
	if err := s.store.Expire(ctx, userSessionsKey(userID), s.cfg.TTL); err != nil {
		return Session{}, err
	}

	return Session{
		ID:             id,
		UserID:         userID,
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
		Token:          token,
		APICredentials: creds,
	}, nil
}

// Verify authenticates a client-held token. The claimed jti is read
// without signature verification, the persisted record supplies the
// per-session secret, and only then is the signature checked. Both the
// store TTL and the embedded expiry gate admission.
func (s *SessionStore) Verify(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, fmt.Errorf("%w: token is required", ErrValidation)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{sessionSigningAlg}),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	)

	unverified := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, unverified); err != nil {
		return Session{}, fmt.Errorf("%w: malformed session token", ErrValidation)
	}
	if unverified.ID == "" {
		return Session{}, fmt.Errorf("%w: session token missing jti", ErrValidation)
	}

	raw, err := s.store.Get(ctx, sessionKey(unverified.ID))
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: session revoked or expired", ErrNotFound)
	}
	if err != nil {
		return Session{}, err
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Session{}, err
	}

	verified := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(token, verified, func(*jwt.Token) (any, error) {
		return []byte(rec.Secret + s.cfg.GlobalSecret), nil
	}); err != nil {
		return Session{}, fmt.Errorf("%w: session token rejected", ErrSignatureInvalid)
	}
	if verified.ID != rec.ID {
		return Session{}, fmt.Errorf("%w: session token rejected", ErrSignatureInvalid)
	}

	issuedAt := time.UnixMilli(rec.IssuedAtMillis).UTC()
	expiresAt := issuedAt.Add(s.cfg.TTL)
	// A lingering store entry past its logical lifetime still fails.
	if s.now().UTC().After(expiresAt) {
		return Session{}, fmt.Errorf("%w: session expired", ErrNotFound)
	}

	return Session{
		ID:             rec.ID,
		UserID:         rec.UserID,
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
		Token:          token,
		APICredentials: rec.APICredentials,
	}, nil
}

// Revoke deletes a session. Both ids are required: knowing a session id
// alone must not suffice to revoke it. Idempotent.
func (s *SessionStore) Revoke(ctx context.Context, sessionID, userID string) error {
	sessionID = strings.TrimSpace(sessionID)
	userID = strings.TrimSpace(userID)
	if sessionID == "" || userID == "" {
		return fmt.Errorf("%w: session id and user id are required", ErrValidation)
	}
	if err := s.store.Delete(ctx, sessionKey(sessionID)); err != nil {
		return err
	}
	return s.store.SRem(ctx, userSessionsKey(userID), sessionID)
}

// RevokeAll revokes every session indexed in the user's session set.
// Returns the number of sessions removed.
func (s *SessionStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	members, err := s.store.SMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return 0, err
	}
	for _, id := range members {
		if err := s.Revoke(ctx, id, userID); err != nil {
			return 0, err
		}
	}
	return len(members), nil
}

// UserSessionIDs lists the ids currently indexed for the user.
func (s *SessionStore) UserSessionIDs(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.store.SMembers(ctx, userSessionsKey(userID))
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration { return s.cfg.TTL }
