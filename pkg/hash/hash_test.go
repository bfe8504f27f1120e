package hash_test

import (
	"errors"
	"math"
	"testing"

	"github.com/aretw0/weft/pkg/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixed hash.Hash

func (f fixed) Hash() hash.Hash { return hash.Hash(f) }

type point struct {
	X, Y int
}

func TestSum_Deterministic(t *testing.T) {
	a, err := hash.Sum(map[string]any{"a": 1, "b": []any{"x", true}, "c": nil})
	require.NoError(t, err)
	b, err := hash.Sum(map[string]any{"c": nil, "b": []any{"x", true}, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b, "map key order must not affect the hash")

	c, err := hash.Sum(map[string]any{"a": 2, "b": []any{"x", true}, "c": nil})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSum_DistinguishesKinds(t *testing.T) {
	values := []any{nil, "1", 1, uint(1), 1.5, true, []any{"1"}, map[string]any{"1": nil}, point{1, 0}}
	seen := map[hash.Hash]any{}
	for _, v := range values {
		h, err := hash.Sum(v)
		require.NoError(t, err)
		if prev, ok := seen[h]; ok {
			t.Fatalf("collision between %#v and %#v", prev, v)
		}
		seen[h] = v
	}
}

func TestSum_ListOrderMatters(t *testing.T) {
	a := hash.Must([]any{"a", "b"})
	b := hash.Must([]any{"b", "a"})
	assert.NotEqual(t, a, b)
}

func TestSum_Hashable(t *testing.T) {
	a := hash.Must([]any{fixed(42)})
	b := hash.Must([]any{fixed(42)})
	c := hash.Must([]any{fixed(43)})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSum_Errors(t *testing.T) {
	a := hash.Must(errors.New("boom"))
	b := hash.Must(errors.New("boom"))
	c := hash.Must(errors.New("bang"))
	assert.Equal(t, a, b, "errors hash by type and message")
	assert.NotEqual(t, a, c)
}

func TestSum_ZeroSigns(t *testing.T) {
	assert.Equal(t, hash.Must(0.0), hash.Must(math.Copysign(0, -1)))
}

func TestSum_NonHashable(t *testing.T) {
	_, err := hash.Sum(func() {})
	var nh *hash.NonHashableError
	require.ErrorAs(t, err, &nh)
	assert.Equal(t, "func()", nh.Type)

	_, err = hash.Sum(map[string]any{"ch": make(chan int)})
	require.ErrorAs(t, err, &nh)

	type node struct{ Next *node }
	n := &node{}
	n.Next = n
	_, err = hash.Sum(n)
	require.ErrorAs(t, err, &nh)
	assert.Equal(t, "cyclic reference", nh.Reason)
}

func TestSum_CyclicSlice(t *testing.T) {
	loop := []any{nil}
	loop[0] = loop
	_, err := hash.Sum(loop)
	var nh *hash.NonHashableError
	require.ErrorAs(t, err, &nh)
	assert.Equal(t, "cyclic reference", nh.Reason)

	nested := []any{1, nil}
	nested[1] = map[string]any{"back": nested}
	_, err = hash.Sum(nested)
	require.ErrorAs(t, err, &nh)
}

func TestSum_SharedPointersAreNotCycles(t *testing.T) {
	shared := &point{1, 2}
	_, err := hash.Sum([]*point{shared, shared})
	assert.NoError(t, err)

	inner := []any{"x"}
	_, err = hash.Sum([]any{inner, inner})
	assert.NoError(t, err, "a slice repeated among siblings is not a cycle")

	whole := []any{1, 2, 3}
	_, err = hash.Sum([]any{whole, whole[:2]})
	assert.NoError(t, err)
}

func TestTuple(t *testing.T) {
	a, err := hash.Tuple("effect", "http", "/a")
	require.NoError(t, err)
	b, err := hash.Tuple("effect", "http", "/b")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a.String(), 16)
}

func TestParse_RoundTrip(t *testing.T) {
	h := hash.Must([]any{"round", 1})
	got, err := hash.Parse(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = hash.Parse("not-hex")
	assert.Error(t, err)
}
