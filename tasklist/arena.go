// Package tasklist provides the arena-backed storage for task stubs and the
// singly linked per-phase lists that hang off each cell. It is grounded on
// the teacher's list package (github.com/outofforest/quantum/list): an
// arena-allocated node payload chained by a Next link, rather than a
// separately heap-allocated container per list. The teacher's list nodes
// hold several pointer-sized slots per node (a B-tree side-list node); here
// a cell's task list only ever needs one task per slot, so the node and the
// payload collapse into a single types.Task chained directly by its own
// Next field.
package tasklist

import (
	"github.com/outofforest/mass"
	"github.com/pkg/errors"

	"github.com/outofforest/sphtree/types"
)

// Arena owns the per-step pool of types.Task values, handed out as stable
// TaskHandle indices rather than pointers, so Task.Next (and every other
// cross-reference to a task) stays a small integer instead of growing the
// GC's pointer-tracing surface. Grounded on quantum's space.Config.MassEntry
// (a mass.Mass[Entry[K, V]] handed out via MassEntry.New()); unlike cell
// storage, tasks live for exactly one step, so the arena is thrown away and
// rebuilt every step rather than reusing a free list.
type Arena struct {
	pool  *mass.Mass[types.Task]
	slots []*types.Task
}

// NewArena creates a task arena sized for capacity tasks. Handle 0
// (types.NoTask) is reserved and never handed out by Allocate.
func NewArena(capacity int) *Arena {
	if capacity < 1 {
		capacity = 1
	}
	return &Arena{
		pool:  mass.New[types.Task](uint64(capacity)),
		slots: make([]*types.Task, 1, capacity+1),
	}
}

// Allocate reserves a fresh, zeroed task and returns its handle.
func (a *Arena) Allocate() types.TaskHandle {
	t := a.pool.New()
	*t = types.Task{}
	a.slots = append(a.slots, t)
	return types.TaskHandle(len(a.slots) - 1)
}

// Get returns the task for handle. handle must not be types.NoTask.
func (a *Arena) Get(handle types.TaskHandle) *types.Task {
	return a.slots[handle]
}

// Len returns the number of tasks allocated this step, including the
// reserved zero slot.
func (a *Arena) Len() int { return len(a.slots) }

var errNoTask = errors.New("handle is types.NoTask")

// Validate returns errNoTask if handle is the sentinel; callers walking a
// chain should check this only at construction time, never on Next, since
// types.NoTask is the well-formed end-of-chain marker there.
func Validate(handle types.TaskHandle) error {
	if handle == types.NoTask {
		return errNoTask
	}
	return nil
}
