// Package kv abstracts the TTL-capable key-value store backing sessions
// and action tokens. Implementations: Redis for deployments, Memory for
// tests and single-node development.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key does not exist or already expired.
var ErrNotFound = errors.New("kv: not found")

// Store defines the operations the identity layer needs from the
// backing store. Every key is owned by exactly one writer, so no
// cross-key transactional guarantees are required.
type Store interface {
	// Get returns the value stored under key. ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// SAdd adds member to the set stored under key.
	SAdd(ctx context.Context, key, member string) error

	// SRem removes member from the set stored under key.
	SRem(ctx context.Context, key, member string) error

	// SMembers returns all members of the set stored under key.
	// A missing set yields an empty slice, not an error.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Expire refreshes the TTL on key. Unknown keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
