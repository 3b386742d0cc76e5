// Package headcache caches each tenant's chain head so the ledger's
// read-then-write append sequence usually skips the head query. The cache is
// advisory: a stale head only costs one compare-and-swap retry, never a
// corrupt chain.
package headcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "docket/pkg/domain"
	"docket/pkg/platform/sentinel"
)

// Head is the cached tip of a tenant's chain.
type Head struct {
	EntryID   id.EntryID `json:"entry_id"`
	EntryHash string     `json:"entry_hash"`
}

// Redis implements the head cache on go-redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func key(tenantID id.TenantID) string {
	return "docket:ledger:head:" + tenantID.String()
}

// Get returns the cached head or sentinel.ErrNotFound on a miss.
func (c *Redis) Get(ctx context.Context, tenantID id.TenantID) (*Head, error) {
	raw, err := c.client.Get(ctx, key(tenantID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get chain head: %w", err)
	}
	var head Head
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode chain head: %w", err)
	}
	return &head, nil
}

// Set records the new head after a successful append.
func (c *Redis) Set(ctx context.Context, tenantID id.TenantID, head Head) error {
	raw, err := json.Marshal(head)
	if err != nil {
		return fmt.Errorf("encode chain head: %w", err)
	}
	if err := c.client.Set(ctx, key(tenantID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set chain head: %w", err)
	}
	return nil
}

// Invalidate drops the cached head after a lost compare-and-swap.
func (c *Redis) Invalidate(ctx context.Context, tenantID id.TenantID) error {
	if err := c.client.Del(ctx, key(tenantID)).Err(); err != nil {
		return fmt.Errorf("invalidate chain head: %w", err)
	}
	return nil
}
