package cellspace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/cellspace"
	"github.com/outofforest/sphtree/types"
)

func newTree(t *testing.T, nGas, nGrav, nStar int) (*cellspace.Tree, types.CellIndex) {
	t.Helper()
	a := arena.New(4)
	idxs, err := a.Allocate(1)
	require.NoError(t, err)
	root := idxs[0]

	c := a.Get(root)
	c.Loc = types.Vec3{0, 0, 0}
	c.Width = types.Vec3{1, 1, 1}
	c.Dmin = 1
	c.Windows[types.KindGas] = types.Window{Offset: 0, Count: types.ParticleIndex(nGas)}
	c.Windows[types.KindGrav] = types.Window{Offset: 0, Count: types.ParticleIndex(nGrav)}
	c.Windows[types.KindStar] = types.Window{Offset: 0, Count: types.ParticleIndex(nStar)}

	ps := &types.ParticleStore{
		Gas:    make([]types.GasParticle, nGas),
		GasExt: make([]types.ExtendedGas, nGas),
		Grav:   make([]types.GravParticle, nGrav),
		Star:   make([]types.StarParticle, nStar),
	}
	return &cellspace.Tree{Cells: a, Particles: ps}, root
}

func TestOctantClassificationCoversAllEightCells(t *testing.T) {
	center := types.Vec3{0.5, 0.5, 0.5}
	seen := map[int]bool{}
	for _, pos := range []types.Vec3{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{1, 1, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
	} {
		seen[cellspace.Octant(pos, center)] = true
	}
	require.Len(t, seen, 8)
}

func TestOctantTieBreaksHigh(t *testing.T) {
	center := types.Vec3{0.5, 0.5, 0.5}
	require.Equal(t, 7, cellspace.Octant(center, center), "a point exactly on center must classify into the high octant")
}

func TestSubdividePartitionsParticlesIntoContiguousOctants(t *testing.T) {
	tr, root := newTree(t, 8, 8, 4)

	ps := tr.Particles
	positions := []types.Vec3{
		{0.1, 0.1, 0.1}, {0.9, 0.1, 0.1}, {0.1, 0.9, 0.1}, {0.1, 0.1, 0.9},
		{0.9, 0.9, 0.1}, {0.9, 0.1, 0.9}, {0.1, 0.9, 0.9}, {0.9, 0.9, 0.9},
	}
	for i, p := range positions {
		ps.Gas[i].Pos = p
		ps.Grav[i].Pos = p
	}
	for i := 0; i < 4; i++ {
		ps.Star[i].Pos = positions[i]
		ps.Grav[i+4].Pos = positions[i]
	}

	require.NoError(t, tr.Subdivide(root))

	c := tr.Cells.Get(root)
	require.True(t, c.Split)

	totalGas, totalGrav, totalStar := types.ParticleIndex(0), types.ParticleIndex(0), types.ParticleIndex(0)
	center := c.Center()
	for oct, childIdx := range c.Progeny {
		require.NotEqual(t, types.NoCell, childIdx)
		child := tr.Cells.Get(childIdx)
		totalGas += child.Windows[types.KindGas].Count
		totalGrav += child.Windows[types.KindGrav].Count
		totalStar += child.Windows[types.KindStar].Count

		for i := child.Windows[types.KindGas].Offset; i < child.Windows[types.KindGas].End(); i++ {
			require.Equal(t, oct, cellspace.Octant(ps.Gas[i].Pos, center))
		}
	}
	require.Equal(t, types.ParticleIndex(8), totalGas)
	require.Equal(t, types.ParticleIndex(8), totalGrav)
	require.Equal(t, types.ParticleIndex(4), totalStar)
}

func TestSubdivideRelinksGasAndStarOwnedGravityWindows(t *testing.T) {
	tr, root := newTree(t, 2, 3, 1)
	ps := tr.Particles

	// One gas particle and one star particle share the low octant, each with
	// its own gravity particle; the other gas particle and its gravity
	// particle occupy the high octant alone.
	ps.Gas[0].Pos = types.Vec3{0.1, 0.1, 0.1}
	ps.Gas[1].Pos = types.Vec3{0.9, 0.9, 0.9}
	ps.Star[0].Pos = types.Vec3{0.2, 0.2, 0.2}
	ps.Grav[0].Pos = types.Vec3{0.1, 0.1, 0.1}
	ps.Grav[1].Pos = types.Vec3{0.9, 0.9, 0.9}
	ps.Grav[2].Pos = types.Vec3{0.2, 0.2, 0.2}

	require.NoError(t, tr.Subdivide(root))

	c := tr.Cells.Get(root)
	lowOct := cellspace.Octant(types.Vec3{0.1, 0.1, 0.1}, c.Center())
	low := tr.Cells.Get(c.Progeny[lowOct])

	require.Equal(t, types.ParticleIndex(1), low.Windows[types.KindGas].Count)
	require.Equal(t, types.ParticleIndex(1), low.Windows[types.KindStar].Count)
	require.Equal(t, types.ParticleIndex(2), low.Windows[types.KindGrav].Count)

	gasIdx := low.Windows[types.KindGas].Offset
	starIdx := low.Windows[types.KindStar].Offset
	gravBase := low.Windows[types.KindGrav].Offset

	require.Equal(t, gravBase, ps.Gas[gasIdx].GravID, "gas-owned gravity particle must sit at the window's prefix")
	require.Equal(t, gravBase+1, ps.Star[starIdx].GravID, "star-owned gravity particle must sit right after the gas prefix")
}

func TestSubtreeSizeCountsAllDescendants(t *testing.T) {
	tr, root := newTree(t, 0, 0, 0)
	require.Equal(t, 1, cellspace.SubtreeSize(tr.Cells, root))

	require.NoError(t, tr.Subdivide(root))
	require.Equal(t, 9, cellspace.SubtreeSize(tr.Cells, root))
}

func TestLinkParticlesLaysOutContiguousDepthFirstWindows(t *testing.T) {
	tr, root := newTree(t, 8, 0, 0)
	ps := tr.Particles
	positions := []types.Vec3{
		{0.1, 0.1, 0.1}, {0.9, 0.1, 0.1}, {0.1, 0.9, 0.1}, {0.1, 0.1, 0.9},
		{0.9, 0.9, 0.1}, {0.9, 0.1, 0.9}, {0.1, 0.9, 0.9}, {0.9, 0.9, 0.9},
	}
	for i, p := range positions {
		ps.Gas[i].Pos = p
	}
	require.NoError(t, tr.Subdivide(root))

	total := cellspace.LinkParticles(tr.Cells, root, [types.NumParticleKinds]types.ParticleIndex{})
	require.Equal(t, types.ParticleIndex(8), total[types.KindGas])

	c := tr.Cells.Get(root)
	require.Equal(t, types.ParticleIndex(0), c.Windows[types.KindGas].Offset)
	cursor := types.ParticleIndex(0)
	for _, childIdx := range c.Progeny {
		child := tr.Cells.Get(childIdx)
		require.Equal(t, cursor, child.Windows[types.KindGas].Offset)
		cursor += child.Windows[types.KindGas].Count
	}
}

func TestNewTreeAllocatesMmapBackedParticleStoreAtRequestedCapacity(t *testing.T) {
	tr, release, err := cellspace.NewTree(4, 8, 8, 2, false)
	require.NoError(t, err)
	defer release()

	require.Equal(t, 0, len(tr.Particles.Gas))
	require.Equal(t, 8, cap(tr.Particles.Gas))
	require.Equal(t, 8, cap(tr.Particles.GasExt))
	require.Equal(t, 8, cap(tr.Particles.Grav))
	require.Equal(t, 2, cap(tr.Particles.Star))

	idxs, err := tr.Cells.Allocate(1)
	require.NoError(t, err)
	root := idxs[0]
	tr.Particles.Gas = tr.Particles.Gas[:1]
	tr.Particles.Gas[0].Pos = types.Vec3{1, 2, 3}
	tr.Cells.Get(root).Windows[types.KindGas] = types.Window{Offset: 0, Count: 1}

	require.Equal(t, types.Vec3{1, 2, 3}, tr.Particles.Gas[0].Pos)
}
