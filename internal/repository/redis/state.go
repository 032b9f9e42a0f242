// Package redis implements the anti-forgery state store on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/glamly/auth-service/pkg/errors"
)

const stateKeyPrefix = "oauth:state:"

// StateStore holds single-use state nonces with a TTL. The value under
// each key is the provider name the redirect was issued for.
type StateStore struct {
	client *goredis.Client
}

// NewStateStore creates a Redis-backed state store.
func NewStateStore(client *goredis.Client) *StateStore {
	return &StateStore{client: client}
}

// Save stores the state nonce with the given TTL.
func (s *StateStore) Save(ctx context.Context, state, provider string, ttl time.Duration) error {
	if err := s.client.Set(ctx, stateKeyPrefix+state, provider, ttl).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// Consume atomically reads and deletes the state nonce, returning the
// provider it was issued for. A replayed or expired state misses and
// returns ErrNotFound.
func (s *StateStore) Consume(ctx context.Context, state string) (string, error) {
	provider, err := s.client.GetDel(ctx, stateKeyPrefix+state).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("consume oauth state: %w", err)
	}
	return provider, nil
}
