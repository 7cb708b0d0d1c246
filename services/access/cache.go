package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/config"
	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MembershipCache caches positive membership lookups in Redis with a short
// TTL. Only active memberships are cached: a negative result or a
// suspension must always be re-checked against the database, so revocation
// takes effect within one TTL at worst for reads that hit the cache.
type MembershipCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewMembershipCache creates a membership cache. Returns nil when no Redis
// address is configured; the validator treats a nil cache as a no-op.
func NewMembershipCache(cfg config.RedisConfig, logger *zap.Logger) *MembershipCache {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &MembershipCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}
}

func membershipKey(userID, companyID string) string {
	return fmt.Sprintf("membership:%s:%s", companyID, userID)
}

// Get returns a cached active membership, or nil on miss. Cache errors are
// treated as misses.
func (c *MembershipCache) Get(ctx context.Context, userID, companyID string) *models.Membership {
	if c == nil {
		return nil
	}

	data, err := c.client.Get(ctx, membershipKey(userID, companyID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("membership cache read failed", zap.Error(err))
		}
		return nil
	}

	m := &models.Membership{}
	if err := json.Unmarshal(data, m); err != nil {
		c.logger.Warn("membership cache entry corrupt", zap.Error(err))
		return nil
	}
	return m
}

// Set caches an active membership. Anything else is ignored.
func (c *MembershipCache) Set(ctx context.Context, m *models.Membership) {
	if c == nil || m == nil || !m.IsActive() {
		return
	}

	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, membershipKey(m.UserID, m.CompanyID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("membership cache write failed", zap.Error(err))
	}
}

// Invalidate drops a cached membership. Called on every membership
// mutation so role and status changes are visible immediately.
func (c *MembershipCache) Invalidate(ctx context.Context, userID, companyID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, membershipKey(userID, companyID)).Err(); err != nil {
		c.logger.Warn("membership cache invalidation failed", zap.Error(err))
	}
}

// Close closes the underlying Redis client
func (c *MembershipCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
