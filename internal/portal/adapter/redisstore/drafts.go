// Package redisstore keeps permission drafts in Redis so any portal replica
// can serve the next request of an edit session.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"portal/internal/permission"
)

const keyPrefix = "portal:draft:"

// Connect creates a Redis client and verifies it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	return client, nil
}

// DraftStore stores drafts as JSON with a sliding ttl.
type DraftStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewDraftStore wraps client.
func NewDraftStore(client redis.UniversalClient, ttl time.Duration) *DraftStore {
	return &DraftStore{client: client, ttl: ttl}
}

// Get loads the draft under key and extends its ttl.
func (s *DraftStore) Get(ctx context.Context, key string) (permission.Draft, error) {
	raw, err := s.client.GetEx(ctx, keyPrefix+key, s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return permission.Draft{}, permission.ErrDraftNotFound
	}
	if err != nil {
		return permission.Draft{}, fmt.Errorf("redisstore: get: %w", err)
	}
	var d permission.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return permission.Draft{}, fmt.Errorf("redisstore: decode: %w", err)
	}
	return d, nil
}

// Put stores d under key.
func (s *DraftStore) Put(ctx context.Context, key string, d permission.Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redisstore: encode: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

// Delete removes the draft under key.
func (s *DraftStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redisstore: del: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *DraftStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
