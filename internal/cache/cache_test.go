package cache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdesk/internal/domain"
)

func sampleEntry() *Entry {
	return &Entry{
		Products:   []domain.Product{{ID: 1, Name: "Tea", Price: decimal.NewFromInt(1000), Stock: 4}},
		Accounts:   []domain.Account{{ID: 5, Username: "shop-5", Role: domain.RoleShop}},
		Warehouses: []domain.Warehouse{{ID: 2, Name: "Main", ResponsibleID: 3}},
		LoadedAt:   time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}
}

func TestMemorySnapshotCacheRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	c := NewMemorySnapshotCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, Key("dealer:3"), sampleEntry(), time.Minute))

	got, ok, err := c.Get(ctx, Key("dealer:3"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Tea", got.Products[0].Name)

	got.Products[0].Name = "mutated"
	again, _, _ := c.Get(ctx, Key("dealer:3"))
	assert.Equal(t, "Tea", again.Products[0].Name)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, Key("dealer:3"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySnapshotCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySnapshotCache()
	require.NoError(t, c.Set(ctx, "k", sampleEntry(), 0))
	require.NoError(t, c.Delete(ctx, "k"))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopSnapshotCacheNeverHits(t *testing.T) {
	var c SnapshotCache = NoopSnapshotCache{}
	require.NoError(t, c.Set(context.Background(), "k", sampleEntry(), time.Minute))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSnapshotCacheIntegration(t *testing.T) {
	addr := os.Getenv("SALESDESK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SALESDESK_TEST_REDIS_ADDR is not set")
	}
	db, _ := strconv.Atoi(os.Getenv("SALESDESK_TEST_REDIS_DB"))

	ctx := context.Background()
	c := NewRedisSnapshotCache(addr, os.Getenv("SALESDESK_TEST_REDIS_PASSWORD"), db)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	key := Key("test:" + strconv.FormatInt(time.Now().UnixNano(), 10))
	require.NoError(t, c.Set(ctx, key, sampleEntry(), time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Products[0].Price.Equal(decimal.NewFromInt(1000)))

	require.NoError(t, c.Delete(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
