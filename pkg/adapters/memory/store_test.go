package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunEffectStoreContract(t, store)
}

func TestMemoryStore_RejectsNonHashableValues(t *testing.T) {
	store := memory.NewStore()
	e := domain.NewEffect("fetch", 1)

	err := store.Resolve(context.Background(), e, func() {})
	assert.Error(t, err)

	_, ok, err := store.Lookup(context.Background(), e.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	e := domain.NewEffect("fetch", 1)
	require.NoError(t, store.Resolve(ctx, e, "v"))

	got, err := store.Get(ctx, e.ID)
	require.NoError(t, err)
	got.Value = "mutated"

	again, err := store.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "v", again.Value)
	assert.False(t, again.UpdatedAt.IsZero())
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	locker := memory.NewLocker()

	unlock, err := locker.Lock(ctx, "sub", time.Second)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "sub", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Lock(ctx, "other", time.Second)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	acquired := make(chan struct{})
	go func() {
		u, err := locker.Lock(ctx, "sub", time.Second)
		if err == nil {
			_ = u(ctx)
		}
		close(acquired)
	}()

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx), "unlocking twice is a no-op")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}
