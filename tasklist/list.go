package tasklist

import "github.com/outofforest/sphtree/types"

// List is a thin, stateless view over chains of tasks linked through
// Task.Next. The chain's head is owned by the caller (typically one slot of
// Cell.PhaseTasks or one of Cell.Tasks' named fields), not by List itself,
// mirroring the teacher's ListRoot-is-owned-by-the-caller convention in
// list.Config.
type List struct {
	arena *Arena
}

// NewList creates a list view backed by arena.
func NewList(arena *Arena) *List {
	return &List{arena: arena}
}

// Prepend allocates nothing; it links handle in front of whatever *head
// currently points to and updates *head to handle. O(1), matching the
// activator's need to grow a cell's per-phase list one task at a time as it
// walks the tree.
func (l *List) Prepend(head *types.TaskHandle, handle types.TaskHandle) {
	l.arena.Get(handle).Next = *head
	*head = handle
}

// Each walks the chain rooted at head in link order, calling fn with each
// handle and its task. fn may change Next of the handle it is visiting:
// Each reads the next link before calling fn, so the walk continues along
// the chain as it was before fn ran.
func (l *List) Each(head types.TaskHandle, fn func(types.TaskHandle, *types.Task)) {
	for h := head; h != types.NoTask; {
		t := l.arena.Get(h)
		next := t.Next
		fn(h, t)
		h = next
	}
}

// Len counts the tasks in the chain rooted at head.
func (l *List) Len(head types.TaskHandle) int {
	n := 0
	l.Each(head, func(types.TaskHandle, *types.Task) { n++ })
	return n
}
