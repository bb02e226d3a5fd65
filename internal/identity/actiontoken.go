package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"inkwell.dev/internal/kv"
)

const actionTokenKeyPrefix = "acttok:"

// Well-known action namespaces minted by the HTTP layer.
const (
	ActionMagicLogin    = "magic-login"
	ActionPasswordReset = "password-reset"
	ActionInvitation    = "org-invitation"
)

// ActionTokenConfig carries the signing secret for action tokens.
type ActionTokenConfig struct {
	Secret string
}

// ActionTokenIssuer mints namespaced, single-use, time-bounded tokens
// for out-of-band actions (magic login, password reset, invitations).
// The persisted row, not the signature alone, is the source of truth:
// verification never deletes; Invalidate consumes.
type ActionTokenIssuer struct {
	store kv.Store
	cfg   ActionTokenConfig
	now   func() time.Time
}

// ActionTokenOption configures ActionTokenIssuer.
type ActionTokenOption func(*ActionTokenIssuer)

// WithActionTokenClock overrides the time source (useful for tests).
func WithActionTokenClock(fn func() time.Time) ActionTokenOption {
	return func(i *ActionTokenIssuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewActionTokenIssuer validates config and constructs the issuer.
func NewActionTokenIssuer(store kv.Store, cfg ActionTokenConfig, opts ...ActionTokenOption) (*ActionTokenIssuer, error) {
	if store == nil {
		return nil, errors.New("identity: kv store is required")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("identity: action token secret is required")
	}
	i := &ActionTokenIssuer{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// ActionToken is the verified view of a persisted token row.
type ActionToken struct {
	// ID is the composite row identifier ("action:jti") accepted by
	// Invalidate.
	ID     string
	Action string
	JTI    string
	Claims map[string]any
}

func actionTokenID(action, jti string) string { return action + ":" + jti }

func actionTokenKey(id string) string { return actionTokenKeyPrefix + id }

// Create mints a signed token under the given action namespace and
// persists its row before returning the encoded string. Payload fields
// override the generated jti/iat/exp defaults; callers own payload
// hygiene for reserved keys.
func (i *ActionTokenIssuer) Create(ctx context.Context, action string, payload map[string]any, ttl time.Duration) (string, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return "", fmt.Errorf("%w: action is required", ErrValidation)
	}

	now := i.now().UTC()
	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"iat": now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	for k, v := range payload {
		claims[k] = v
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return "", fmt.Errorf("%w: jti must be a non-empty string", ErrValidation)
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign action token: %w", err)
	}

	raw, err := json.Marshal(map[string]any(claims))
	if err != nil {
		return "", err
	}
	// Row TTL mirrors the embedded expiry when one exists; rows for
	// unbounded tokens stay until invalidated.
	if err := i.store.Set(ctx, actionTokenKey(actionTokenID(action, jti)), raw, ttl); err != nil {
		return "", err
	}
	return encoded, nil
}

// Verify checks signature and expiry cryptographically, then requires
// the persisted row to still exist. It does not consume the token.
func (i *ActionTokenIssuer) Verify(ctx context.Context, action, encoded string) (ActionToken, error) {
	action = strings.TrimSpace(action)
	encoded = strings.TrimSpace(encoded)
	if action == "" || encoded == "" {
		return ActionToken{}, fmt.Errorf("%w: action and token are required", ErrValidation)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(func() time.Time { return i.now().UTC() }),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(encoded, claims, func(*jwt.Token) (any, error) {
		return []byte(i.cfg.Secret), nil
	}); err != nil {
		return ActionToken{}, fmt.Errorf("%w: action token rejected", ErrSignatureInvalid)
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return ActionToken{}, fmt.Errorf("%w: action token missing jti", ErrSignatureInvalid)
	}

	id := actionTokenID(action, jti)
	raw, err := i.store.Get(ctx, actionTokenKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return ActionToken{}, fmt.Errorf("%w: action token consumed or never issued", ErrNotFound)
	}
	if err != nil {
		return ActionToken{}, err
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return ActionToken{}, err
	}

	return ActionToken{ID: id, Action: action, JTI: jti, Claims: row}, nil
}

// Invalidate deletes the persisted row, making the token permanently
// unverifiable. Idempotent.
func (i *ActionTokenIssuer) Invalidate(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: token id is required", ErrValidation)
	}
	return i.store.Delete(ctx, actionTokenKey(id))
}
