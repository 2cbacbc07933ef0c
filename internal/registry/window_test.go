package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidgate/internal/merkle"
)

func rootN(n uint64) SignedRoot {
	return SignedRoot{Scope: "issuer", Version: n, Root: merkle.HashLeaf([]byte{byte(n)})}
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for v := uint64(1); v <= 5; v++ {
		w.Push(rootN(v))
	}

	require.Equal(t, 3, w.Len())
	assert.Equal(t, int64(2), w.Evicted())

	roots := w.Roots()
	require.Len(t, roots, 3)
	assert.Equal(t, []uint64{5, 4, 3}, []uint64{roots[0].Version, roots[1].Version, roots[2].Version})

	_, ok := w.Find(rootN(2).Root)
	assert.False(t, ok, "evicted root must not be found")
	got, ok := w.Find(rootN(3).Root)
	require.True(t, ok)
	assert.Equal(t, uint64(3), got.Version)

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), latest.Version)
}

func TestWindowEmpty(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, defaultWindowSize, w.Capacity())
	_, ok := w.Latest()
	assert.False(t, ok)
	assert.Empty(t, w.Roots())
}
