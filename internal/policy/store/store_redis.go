package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"consentis/pkg/platform/sentinel"
)

const redisKeyPrefix = "policy:"

// RedisStore keeps one JSON value per policy hash.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis constructs a Redis-backed policy store.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

func (s *RedisStore) key(policyHash string) string {
	return s.prefix + policyHash
}

func (s *RedisStore) Save(ctx context.Context, doc *Document) error {
	if doc == nil || doc.PolicyHash == "" {
		return fmt.Errorf("policy document with hash is required")
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(doc.PolicyHash), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) GetByHash(ctx context.Context, policyHash string) (*Document, error) {
	payload, err := s.client.Get(ctx, s.key(policyHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find policy: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return &doc, nil
}

func (s *RedisStore) Delete(ctx context.Context, policyHash string) error {
	n, err := s.client.Del(ctx, s.key(policyHash)).Result()
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
