package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manacity/address-service/internal/domain"
	apperrors "github.com/manacity/address-service/pkg/errors"
)

const keyPrefix = "addresses:"

// ListCache keeps a user's rendered address list in Redis so repeated
// checkout visits do not hit PostgreSQL. Entries expire after the configured
// TTL and are invalidated on every write to the user's address book.
type ListCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewListCache creates a new Redis-backed address list cache.
func NewListCache(client *redis.Client, ttl time.Duration) *ListCache {
	return &ListCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cached address list by user ID.
func (c *ListCache) Get(ctx context.Context, userID string) ([]domain.AddressResponse, error) {
	key := keyPrefix + userID

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("address list", userID)
		}
		return nil, fmt.Errorf("redis get address list: %w", err)
	}

	var addresses []domain.AddressResponse
	if err := json.Unmarshal(data, &addresses); err != nil {
		return nil, fmt.Errorf("unmarshal address list: %w", err)
	}

	return addresses, nil
}

// Set stores a user's address list with the configured TTL.
func (c *ListCache) Set(ctx context.Context, userID string, addresses []domain.AddressResponse) error {
	key := keyPrefix + userID

	data, err := json.Marshal(addresses)
	if err != nil {
		return fmt.Errorf("marshal address list: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set address list: %w", err)
	}

	return nil
}

// Invalidate removes a user's cached address list.
func (c *ListCache) Invalidate(ctx context.Context, userID string) error {
	key := keyPrefix + userID

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del address list: %w", err)
	}

	return nil
}
