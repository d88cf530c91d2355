// Package store defines the shared session store used to coordinate
// chunked uploads across request-serving workers. All mutual exclusion
// is pushed into the store's atomic primitives, so no in-process lock
// is ever held across a store call.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyMissing is returned by read primitives when the key does not
// exist or has expired.
var ErrKeyMissing = errors.New("store: key missing")

// SessionStore is the minimal primitive surface the upload pipeline
// needs. SetIfAbsent is the only serialization device: both session
// resume-detection and the completion guard rely on its atomic
// create-if-absent semantics instead of a check-then-set sequence.
type SessionStore interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, val string, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key, val string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error

	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashSetAll(ctx context.Context, key string, fields map[string]string) error

	AddToSet(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetCard(ctx context.Context, key string) (int64, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error
}
