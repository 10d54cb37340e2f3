// Package arena provides the cell-node arena: a pool of 32-bit-indexed
// types.Cell slots allocated at rebuild time and returned when the tree is
// torn down, per the lifecycle rule in the data model. Cells carry atomic
// lock words and Go slices (multipole coefficients, sort caches), so unlike
// the particle arrays (see particles.go) they live in ordinary Go-managed
// memory rather than mmap'd bytes: the garbage collector must be able to
// see the pointers inside them.
package arena

import (
	"sync"

	"github.com/outofforest/mass"
	"github.com/pkg/errors"

	"github.com/outofforest/sphtree/types"
)

// Arena owns the flat cell-node storage for one engine instance. It hands
// out CellIndex values rather than pointers (Design Notes §9) so that the
// parent<->progeny relationship never forms an owning Go pointer cycle. Cell
// storage itself is a mass.Mass pool of stable, individually heap-allocated
// cells (the same technique tasklist.Arena uses for types.Task) rather than
// one contiguous []types.Cell: a growing slice of values would relocate
// every existing cell's backing memory on reallocation and silently
// invalidate any *types.Cell a caller obtained from Get before the growth,
// exactly the hazard Subdivide's "get parent, then allocate progeny, then
// write back through the stale pointer" pattern depends on not happening.
type Arena struct {
	mu    sync.Mutex
	pool  *mass.Mass[types.Cell]
	slots []*types.Cell
	free  []types.CellIndex
}

// New creates an arena pre-sized for capacity cells. The arena grows beyond
// capacity on demand (bump allocation), matching the teacher allocator's
// bump-pointer Allocate but reusing freed slots first, like its Pool
// free-list.
func New(capacity int) *Arena {
	if capacity < 1 {
		capacity = 1
	}
	return &Arena{
		pool:  mass.New[types.Cell](uint64(capacity)),
		slots: make([]*types.Cell, 0, capacity),
		free:  make([]types.CellIndex, 0, capacity/4),
	}
}

// Get returns the cell at idx. The returned pointer is stable for the
// lifetime of the arena (the pool never relocates a cell once allocated);
// callers must still not retain it past a Free of the same slot, since a
// later Allocate may hand the same index back out with Reset state.
func (a *Arena) Get(idx types.CellIndex) *types.Cell {
	return a.slots[idx]
}

// Len returns the number of cell slots ever allocated (including currently
// free ones); it is the valid range of CellIndex values.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}

// Allocate implements the Space collaborator's get_cells(n): it returns n
// fresh, zeroed cell indices, preferring freed slots over growing the pool.
func (a *Arena) Allocate(n int) ([]types.CellIndex, error) {
	if n <= 0 {
		return nil, errors.Errorf("n must be positive, got %d", n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]types.CellIndex, 0, n)
	for len(out) < n && len(a.free) > 0 {
		idx := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		a.slots[idx].Reset()
		out = append(out, idx)
	}
	for len(out) < n {
		if len(a.slots) >= int(types.NoCell) {
			return nil, errors.New("cell arena exhausted")
		}
		idx := types.CellIndex(len(a.slots))
		c := a.pool.New()
		c.Reset()
		a.slots = append(a.slots, c)
		out = append(out, idx)
	}
	return out, nil
}

// Free returns idx to the arena's free list. The cell is not cleared until
// it is handed out again by Allocate, so stale state is never observed by a
// concurrent reader holding the index from a prior step (callers must not
// do that across a rebuild boundary).
func (a *Arena) Free(idx types.CellIndex) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, idx)
}

// FreeSubtree walks c and every present descendant, freeing each one. It is
// the teardown counterpart of a rebuild's allocation burst.
func (a *Arena) FreeSubtree(root types.CellIndex) {
	if root == types.NoCell {
		return
	}
	c := a.Get(root)
	if c.Split {
		for _, p := range c.Progeny {
			a.FreeSubtree(p)
		}
	}
	a.Free(root)
}
