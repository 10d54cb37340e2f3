package arena_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/types"
)

func TestAllocateGrowsAndReusesFreedSlots(t *testing.T) {
	a := arena.New(2)

	first, err := a.Allocate(2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 2, a.Len())

	a.Free(first[0])

	second, err := a.Allocate(1)
	require.NoError(t, err)
	require.Equal(t, first[0], second[0], "freed slot should be reused before growing")
	require.Equal(t, 2, a.Len())

	third, err := a.Allocate(1)
	require.NoError(t, err)
	require.Equal(t, 3, a.Len())
	require.NotEqual(t, first[1], third[0])
}

func TestAllocateReturnsZeroedCells(t *testing.T) {
	a := arena.New(1)
	idxs, err := a.Allocate(1)
	require.NoError(t, err)

	c := a.Get(idxs[0])
	c.HMax = 42
	c.Split = true

	a.Free(idxs[0])
	reused, err := a.Allocate(1)
	require.NoError(t, err)
	require.Equal(t, idxs[0], reused[0])

	c = a.Get(reused[0])
	require.Equal(t, 0.0, c.HMax)
	require.False(t, c.Split)
	require.Equal(t, types.NoCell, c.Parent)
}

func TestGetPointerSurvivesAllocateTriggeredGrowth(t *testing.T) {
	a := arena.New(1)
	idxs, err := a.Allocate(1)
	require.NoError(t, err)
	parent := a.Get(idxs[0])

	// Force the arena past its initial capacity, the way Subdivide does
	// when it allocates progeny after already holding the parent's pointer.
	_, err = a.Allocate(8)
	require.NoError(t, err)

	parent.Split = true
	parent.HMax = 7

	got := a.Get(idxs[0])
	require.True(t, got.Split, "growth-triggering Allocate must not orphan a previously-Get cell")
	require.Equal(t, 7.0, got.HMax)
}

func TestFreeSubtreeFreesAllDescendants(t *testing.T) {
	a := arena.New(4)
	idxs, err := a.Allocate(3)
	require.NoError(t, err)
	root, child, grandchild := idxs[0], idxs[1], idxs[2]

	rc := a.Get(root)
	rc.Split = true
	rc.Progeny[0] = child
	cc := a.Get(child)
	cc.Split = true
	cc.Progeny[0] = grandchild

	a.FreeSubtree(root)

	// All three slots should now be reusable without growing the arena.
	reused, err := a.Allocate(3)
	require.NoError(t, err)
	require.ElementsMatch(t, idxs, reused)
}
