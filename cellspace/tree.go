// Package cellspace implements the Cell Tree: recursive oct-subdivision of
// a periodic cubical domain, where each node owns disjoint, contiguous
// slices of the particle arrays. It is grounded on the teacher's space
// package (node allocation, pointer/address bookkeeping), generalised from
// a byte-addressed hash-table node to a typed, arena-indexed octree cell.
package cellspace

import (
	"github.com/pkg/errors"

	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/types"
)

// SubtreeSize counts the nodes in the subtree rooted at idx: 1 + the sum of
// its progeny's sizes. Constant work per node, single recursion.
func SubtreeSize(cells *arena.Arena, idx types.CellIndex) int {
	c := cells.Get(idx)
	n := 1
	if c.Split {
		for _, p := range c.Progeny {
			if p != types.NoCell {
				n += SubtreeSize(cells, p)
			}
		}
	}
	return n
}

// LinkParticles assigns root's particle window to base, then lays out the
// windows of every present descendant by a depth-first walk so that
// progeny windows stay contiguous and partition the parent's window. It is
// required after any rebuild (where counts come out of subdivide itself, so
// this just confirms the invariant) or after unpack, where only per-node
// counts survived the wire format and offsets must be re-derived. Returns
// the total count linked, per particle kind.
func LinkParticles(
	cells *arena.Arena,
	root types.CellIndex,
	base [types.NumParticleKinds]types.ParticleIndex,
) [types.NumParticleKinds]types.ParticleIndex {
	cursor := base
	linkRecursive(cells, root, &cursor)
	total := [types.NumParticleKinds]types.ParticleIndex{}
	for k := range total {
		total[k] = cursor[k] - base[k]
	}
	return total
}

func linkRecursive(cells *arena.Arena, idx types.CellIndex, cursor *[types.NumParticleKinds]types.ParticleIndex) {
	c := cells.Get(idx)
	start := *cursor
	for k := 0; k < types.NumParticleKinds; k++ {
		c.Windows[k].Offset = cursor[k]
	}
	if c.Split {
		for _, p := range c.Progeny {
			if p != types.NoCell {
				linkRecursive(cells, p, cursor)
			}
		}
	}
	for k := 0; k < types.NumParticleKinds; k++ {
		cursor[k] = start[k] + c.Windows[k].Count
	}
}

// Octant classifies pos against center using the cell's 3-bit classifier
// (x>=cx)<<2 | (y>=cy)<<1 | (z>=cz). Tie-breaking is deterministic by the
// strict >= comparison and must never be normalised to a plain >.
func Octant(pos, center types.Vec3) int {
	bit := func(p, c float64) int {
		if p >= c {
			return 1
		}
		return 0
	}
	return bit(pos[0], center[0])<<2 | bit(pos[1], center[1])<<1 | bit(pos[2], center[2])
}

// Tree bundles the arena and particle store that Subdivide needs; it holds
// no per-cell state of its own.
type Tree struct {
	Cells     *arena.Arena
	Particles *types.ParticleStore
}

// NewTree constructs a production Tree: a cell arena pre-sized for
// cellCapacity nodes, backed by a particle store mmap'd for the requested
// per-kind capacities via arena.NewParticleStore. The returned func tears
// down the mmap and must be called exactly once when the tree is retired;
// the cell arena needs no matching teardown, since it lives in ordinary
// Go-managed memory (see arena.Arena's doc comment).
func NewTree(cellCapacity, maxGas, maxGrav, maxStar int, useHugePages bool) (*Tree, func(), error) {
	ps, release, err := arena.NewParticleStore(maxGas, maxGrav, maxStar, useHugePages)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "allocating particle store")
	}
	return &Tree{Cells: arena.New(cellCapacity), Particles: ps}, release, nil
}

// Subdivide partitions c's gas, gravity and star windows into eight octants
// around the cell's center, allocates the eight progeny cells, and sets
// their geometry and windows. The partition is in place, using a bucket
// cycle: each particle below its bucket's current boundary is cyclically
// swapped with whatever occupies its target bucket's next free slot, the
// target bucket's cursor advances, and this repeats until the cycle returns
// to the slot it started from, at which point the particle displaced by the
// very first swap is deposited there. This keeps classification O(n) with
// O(1) extra bookkeeping. An empty octant still gets a child cell, with an
// empty window at its pivot-derived Loc.
func (tr *Tree) Subdivide(idx types.CellIndex) error {
	c := tr.Cells.Get(idx)
	if c.Split {
		return errors.Errorf("cell %d is already split", idx)
	}

	progeny, err := tr.Cells.Allocate(8)
	if err != nil {
		return errors.WithMessagef(err, "allocating progeny of cell %d", idx)
	}

	center := c.Center()
	halfWidth := types.Vec3{c.Width[0] / 2, c.Width[1] / 2, c.Width[2] / 2}

	ps := tr.Particles
	gasWin := c.Windows[types.KindGas]
	gravWin := c.Windows[types.KindGrav]
	starWin := c.Windows[types.KindStar]

	gasBuckets := bucketCycle(gasWin, func(i types.ParticleIndex) int {
		return Octant(ps.Gas[i].Pos, center)
	}, func(i, j types.ParticleIndex) {
		ps.Gas[i], ps.Gas[j] = ps.Gas[j], ps.Gas[i]
		ps.GasExt[i], ps.GasExt[j] = ps.GasExt[j], ps.GasExt[i]
	})
	gravBuckets := bucketCycle(gravWin, func(i types.ParticleIndex) int {
		return Octant(ps.Grav[i].Pos, center)
	}, func(i, j types.ParticleIndex) {
		ps.Grav[i], ps.Grav[j] = ps.Grav[j], ps.Grav[i]
	})
	starBuckets := bucketCycle(starWin, func(i types.ParticleIndex) int {
		return Octant(ps.Star[i].Pos, center)
	}, func(i, j types.ParticleIndex) {
		ps.Star[i], ps.Star[j] = ps.Star[j], ps.Star[i]
	})

	for oct := 0; oct < 8; oct++ {
		child := tr.Cells.Get(progeny[oct])
		child.Parent = idx
		child.Depth = c.Depth + 1
		child.Dmin = c.Dmin / 2
		child.Loc = types.Vec3{
			c.Loc[0] + halfWidth[0]*float64(oct>>2&1),
			c.Loc[1] + halfWidth[1]*float64(oct>>1&1),
			c.Loc[2] + halfWidth[2]*float64(oct&1),
		}
		child.Width = halfWidth
		child.Windows[types.KindGas] = gasBuckets[oct]
		child.Windows[types.KindGrav] = gravBuckets[oct]
		child.Windows[types.KindStar] = starBuckets[oct]
		child.TiOldPart = c.TiOldPart
		child.TiOldGpart = c.TiOldGpart
		child.TiOldMultipole = c.TiOldMultipole
		child.HMax = c.HMax

		// Gravity particles are partitioned independently of their gas/star
		// owners by the same spatial classifier, so they land in the same
		// octant; only their order within it can differ from their owners'.
		// Back-links are therefore re-derived rather than assumed preserved,
		// per the data model's "logical relation reconstructed after any
		// in-place permutation" rule. This engine models every gravity
		// particle as owned by exactly one gas or star particle, so each
		// child's gravity window is, by convention, a gas-owned prefix
		// followed by a star-owned suffix.
		ps.RelinkGasGrav(child.Windows[types.KindGas].Offset, child.Windows[types.KindGas].Count,
			child.Windows[types.KindGrav].Offset)
		ps.RelinkStarGrav(child.Windows[types.KindStar].Offset, child.Windows[types.KindStar].Count,
			child.Windows[types.KindGrav].Offset+child.Windows[types.KindGas].Count)
	}

	c.Progeny = [8]types.CellIndex{}
	copy(c.Progeny[:], progeny)
	c.Split = true
	return nil
}

// bucketCycle partitions the half-open range [w.Offset, w.Offset+w.Count)
// into up to eight contiguous buckets according to classify, swapping
// elements via swap. It returns each bucket's resulting window.
func bucketCycle(
	w types.Window,
	classify func(types.ParticleIndex) int,
	swap func(i, j types.ParticleIndex),
) [8]types.Window {
	var counts [8]types.ParticleIndex
	for i := w.Offset; i < w.End(); i++ {
		counts[classify(i)]++
	}

	var starts [9]types.ParticleIndex
	starts[0] = w.Offset
	for b := 0; b < 8; b++ {
		starts[b+1] = starts[b] + counts[b]
	}

	cursor := starts // copy; cursor[b] tracks the next free slot in bucket b
	for b := 0; b < 8; b++ {
		for cursor[b] < starts[b+1] {
			i := cursor[b]
			// Keep swapping whatever currently occupies i into its own
			// bucket's next free slot until the particle that lands at i
			// belongs in bucket b, closing the cycle.
			for classify(i) != b {
				target := classify(i)
				j := cursor[target]
				cursor[target]++
				swap(i, j)
			}
			cursor[b]++
		}
	}

	var out [8]types.Window
	for b := 0; b < 8; b++ {
		out[b] = types.Window{Offset: starts[b], Count: counts[b]}
	}
	return out
}
