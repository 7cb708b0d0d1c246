package access

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fieldbeam/fieldbeam/backend/config"
	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestCache(t *testing.T) (*MembershipCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cache := NewMembershipCache(config.RedisConfig{
		Addr: mr.Addr(),
		TTL:  30 * time.Second,
	}, zaptest.NewLogger(t))
	require.NotNil(t, cache)
	t.Cleanup(func() { cache.Close() })

	return cache, mr
}

func TestNewMembershipCache_DisabledWithoutAddr(t *testing.T) {
	cache := NewMembershipCache(config.RedisConfig{}, zaptest.NewLogger(t))
	assert.Nil(t, cache)

	// A nil cache is safe to use everywhere.
	ctx := context.Background()
	assert.Nil(t, cache.Get(ctx, "user-1", "tenant-1"))
	cache.Set(ctx, models.NewMembership("user-1", "tenant-1", models.MembershipRoleMember))
	cache.Invalidate(ctx, "user-1", "tenant-1")
	assert.NoError(t, cache.Close())
}

func TestMembershipCache_SetGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	m := models.NewMembership("user-1", "tenant-1", models.MembershipRoleAdmin)
	m.Status = models.MembershipStatusActive

	cache.Set(ctx, m)

	got := cache.Get(ctx, "user-1", "tenant-1")
	require.NotNil(t, got)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, models.MembershipRoleAdmin, got.Role)
}

func TestMembershipCache_OnlyActiveCached(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	invited := models.NewMembership("user-1", "tenant-1", models.MembershipRoleMember)
	cache.Set(ctx, invited)
	assert.Nil(t, cache.Get(ctx, "user-1", "tenant-1"))

	suspended := models.NewMembership("user-2", "tenant-1", models.MembershipRoleMember)
	suspended.Status = models.MembershipStatusSuspended
	cache.Set(ctx, suspended)
	assert.Nil(t, cache.Get(ctx, "user-2", "tenant-1"))
}

func TestMembershipCache_Invalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	m := models.NewMembership("user-1", "tenant-1", models.MembershipRoleMember)
	m.Status = models.MembershipStatusActive
	cache.Set(ctx, m)
	require.NotNil(t, cache.Get(ctx, "user-1", "tenant-1"))

	cache.Invalidate(ctx, "user-1", "tenant-1")
	assert.Nil(t, cache.Get(ctx, "user-1", "tenant-1"))
}

func TestMembershipCache_TTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	m := models.NewMembership("user-1", "tenant-1", models.MembershipRoleMember)
	m.Status = models.MembershipStatusActive
	cache.Set(ctx, m)

	mr.FastForward(time.Minute)
	assert.Nil(t, cache.Get(ctx, "user-1", "tenant-1"))
}

func TestMembershipCache_KeysAreTenantScoped(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	m := models.NewMembership("user-1", "tenant-1", models.MembershipRoleMember)
	m.Status = models.MembershipStatusActive
	cache.Set(ctx, m)

	// The same user under another tenant misses.
	assert.Nil(t, cache.Get(ctx, "user-1", "tenant-2"))
}
