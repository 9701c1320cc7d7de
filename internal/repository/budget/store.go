// Package budget persists embedding token counters so spend limits survive restarts
// and are shared by every replica pointing at the same database.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/profdex/internal/db"
)

// store is the consumer interface for counter operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps token counters as plain integer keys (INCRBY + EXPIRE NX).
type Store struct {
	store store
}

// New creates a counter store.
func New(s store) *Store {
	return &Store{store: s}
}

// Add increments key by tokens. The TTL is set on first write only, so a counter
// expires relative to the start of its period.
func (s *Store) Add(ctx context.Context, key string, tokens int64, ttl time.Duration) error {
	if err := s.store.IncrBy(ctx, key, tokens); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.store.Expire(ctx, key, ttl, true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}
	return nil
}

// Load returns the counter at key, 0 when absent.
func (s *Store) Load(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s: parse %q: %w", key, data, err)
	}
	return val, nil
}
