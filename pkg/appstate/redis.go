package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps app state as JSON values under prefix+ownerID.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. A zero ttl stores keys without expiry.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(ownerID string) string {
	return r.prefix + ownerID
}

// Load implements Store. Reading refreshes the key's TTL.
func (r *RedisStore) Load(ctx context.Context, ownerID string) (*State, error) {
	key := r.key(ownerID)
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Empty(ownerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load app state: %w", err)
	}

	var st State
	if err := json.Unmarshal(val, &st); err != nil {
		return nil, fmt.Errorf("failed to decode app state: %w", err)
	}
	if st.SavedWisdom == nil {
		st.SavedWisdom = []WisdomEntry{}
	}

	if r.ttl > 0 {
		_ = r.client.Expire(ctx, key, r.ttl).Err()
	}
	return &st, nil
}

// Save implements Store with WATCH/MULTI: the write is discarded if the key
// changes between the version check and EXEC.
func (r *RedisStore) Save(ctx context.Context, state *State) (*State, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	key := r.key(state.OwnerID)

	var saved *State
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		val, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored State
			if err := json.Unmarshal(val, &stored); err != nil {
				return fmt.Errorf("failed to decode app state: %w", err)
			}
			current = stored.Version
		}

		if state.Version != current {
			return ErrVersionConflict
		}

		next := state.clone()
		next.Version = current + 1
		next.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode app state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		saved = next
		return nil
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return nil, ErrVersionConflict
	case errors.Is(err, ErrVersionConflict):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("failed to save app state: %w", err)
	}
	return saved, nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
