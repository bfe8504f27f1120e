package ports

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunEffectStoreContract runs a suite of tests to verify that an EffectStore
// implementation adheres to the defined interface contract.
func RunEffectStoreContract(t *testing.T, store EffectStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	effect := func(name string) *domain.Effect {
		return domain.NewEffect("contract", fmt.Sprintf("%s-%s", name, suffix))
	}

	t.Run("Resolve and Lookup", func(t *testing.T) {
		e := effect("resolve")
		require.NoError(t, store.Resolve(ctx, e, "bar"), "Resolve should not return error")

		expr, ok, err := store.Lookup(ctx, e.ID)
		require.NoError(t, err, "Lookup should not return error")
		require.True(t, ok)
		res, isResult := expr.(*domain.Result)
		require.True(t, isResult)
		assert.Equal(t, "bar", res.Value)

		got, err := store.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.EffectID)
		assert.Equal(t, e.Type, got.Type)
		assert.False(t, got.Failed)
	})

	t.Run("Reject", func(t *testing.T) {
		e := effect("reject")
		require.NoError(t, store.Reject(ctx, e, "boom"))

		expr, ok, err := store.Lookup(ctx, e.ID)
		require.NoError(t, err)
		require.True(t, ok)
		f, isFailure := expr.(*domain.Failure)
		require.True(t, isFailure)
		assert.Equal(t, "boom", f.Err.Error())
	})

	t.Run("Resolve Replaces Rejection", func(t *testing.T) {
		e := effect("replace")
		require.NoError(t, store.Reject(ctx, e, "boom"))
		require.NoError(t, store.Resolve(ctx, e, "ok"))

		got, err := store.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.False(t, got.Failed)
		assert.Equal(t, "ok", got.Value)
	})

	t.Run("Lookup Pending", func(t *testing.T) {
		_, ok, err := store.Lookup(ctx, effect("missing").ID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Get(ctx, effect("missing").ID)
		assert.True(t, errors.Is(err, domain.ErrResolutionNotFound))
	})

	t.Run("Forget", func(t *testing.T) {
		e := effect("forget")
		require.NoError(t, store.Resolve(ctx, e, 1))

		require.NoError(t, store.Forget(ctx, e.ID, effect("never-stored").ID), "Forget should not return error")

		_, ok, err := store.Lookup(ctx, e.ID)
		require.NoError(t, err)
		assert.False(t, ok, "Lookup after Forget should report pending")
	})

	t.Run("List", func(t *testing.T) {
		e1, e2 := effect("list-1"), effect("list-2")
		_ = store.Resolve(ctx, e1, "a")
		_ = store.Reject(ctx, e2, "b")

		defer func() {
			_ = store.Forget(ctx, e1.ID, e2.ID)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, e1.ID)
		assert.Contains(t, ids, e2.ID)
		assert.IsType(t, []hash.Hash{}, ids)
	})
}
