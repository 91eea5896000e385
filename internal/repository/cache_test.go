package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/logging"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisOrderCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisOrderCache(client, ttl, logging.New("test")), mr
}

func TestRedisOrderCache_RoundTrip(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	order := &models.Order{
		ID:              42,
		OrderFields:     models.OrderFields{FirstName: "Ada", City: "Oslo"},
		TotalPriceCents: 2500,
		Currency:        "usd",
		PaymentStatus:   models.PaymentStatusPending,
		LineItems:       []models.LineItem{{ID: 1, OrderID: 42, ProductID: 1, Quantity: 2, UnitPriceCents: 1000}},
	}
	require.NoError(t, cache.Set(ctx, order, 0))
	assert.True(t, mr.Exists("order:42"))
	assert.Equal(t, time.Minute, mr.TTL("order:42"))

	got, err := cache.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2500), got.TotalPriceCents)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Len(t, got.LineItems, 1)

	require.NoError(t, cache.Delete(ctx, 42))
	assert.False(t, mr.Exists("order:42"))
}

func TestRedisOrderCache_StaleSetSkipped(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	version, err := cache.Version(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	// A write lands between the reader's version read and its cache fill.
	require.NoError(t, cache.Delete(ctx, 9))
	current, err := cache.Version(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
	assert.Equal(t, versionKeyTTL, mr.TTL("order:9:version"))

	stale := &models.Order{ID: 9, PaymentStatus: models.PaymentStatusPending}
	require.NoError(t, cache.Set(ctx, stale, version))
	assert.False(t, mr.Exists("order:9"))

	fresh := &models.Order{ID: 9, PaymentStatus: models.PaymentStatusPaid}
	require.NoError(t, cache.Set(ctx, fresh, current))
	got, err := cache.Get(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
}

func TestRedisOrderCache_Miss(t *testing.T) {
	cache, _ := newTestCache(t, 0)

	got, err := cache.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, defaultCacheTTL, cache.ttl)
}

func TestRedisOrderCache_Expiry(t *testing.T) {
	cache, mr := newTestCache(t, time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &models.Order{ID: 1}, 0))
	mr.FastForward(2 * time.Second)

	got, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisOrderCache_Unavailable(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	mr.Close()

	_, err := cache.Get(context.Background(), 1)
	assert.Error(t, err)
	assert.Error(t, cache.Ping(context.Background()))
}
