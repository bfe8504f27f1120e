package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunEffectStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := setup(t)

	now := time.Now()
	clock := func() time.Time { return now }
	store := redis.NewFromClient(client, redis.WithTTL(time.Second), redis.WithClock(clock))
	ctx := context.Background()
	e := domain.NewEffect("fetch", "ttl")

	require.NoError(t, store.Resolve(ctx, e, "v"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, e.ID)

	mr.FastForward(2 * time.Second)
	now = now.Add(2 * time.Second)

	_, ok, err := store.Lookup(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, ok, "expired resolution reads as pending")

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := setup(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()
	e := domain.NewEffect("fetch", "prefix")

	require.NoError(t, store.Resolve(ctx, e, 1))

	assert.True(t, mr.Exists("custom:app:effect:"+e.ID.String()), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:effects"), "Expected index with custom prefix to exist")

	require.NoError(t, store.Forget(ctx, e.ID))
	assert.False(t, mr.Exists("custom:app:effect:"+e.ID.String()))
}

func TestRedisStore_ValuesRoundTripAsJSON(t *testing.T) {
	_, client := setup(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()
	e := domain.NewEffect("fetch", "json")

	require.NoError(t, store.Resolve(ctx, e, map[string]any{"n": 1}))

	expr, ok, err := store.Lookup(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.NewResult(map[string]any{"n": float64(1)}), expr)
}

func TestRedisStore_FeedsInterpreter(t *testing.T) {
	_, client := setup(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()
	e := domain.NewEffect("greeting", nil)

	require.NoError(t, store.Resolve(ctx, e, "hi"))
	expr, ok, err := store.Lookup(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.KindResult, expr.Kind())
}
