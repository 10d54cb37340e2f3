// Package schedule implements the engine-wide ready-task queue: a batched,
// lock-free producer/consumer list of task handles the activator pushes onto
// and the worker pool drains from. Grounded directly on the teacher's
// pipeline package (github.com/outofforest/quantum/pipeline): the same
// tail-indirection Push, the same 96-item atomic batching, the same
// Count/Read/Acknowledge/NewReader reader protocol — generalised from
// *pipeline.TransactionRequest chains to tasklist.Arena-backed
// types.TaskHandle chains.
package schedule

import (
	"sync/atomic"
	"time"

	"github.com/outofforest/sphtree/tasklist"
	"github.com/outofforest/sphtree/types"
)

// batchSize mirrors the teacher's pipeline.StoreCapacity-adjacent constant:
// the number of pushes that accumulate before newly available work is
// published to readers in one atomic add.
const batchSize = 96

// Queue is the global ready-task list for one step. It is built fresh each
// step from the step's tasklist.Arena and discarded with it.
type Queue struct {
	arena    *tasklist.Arena
	tailNext *types.TaskHandle

	availableCount *uint64
	count          uint64
}

// NewQueue creates an empty queue backed by arena. A dummy sentinel task is
// allocated to anchor the tail-indirection trick (mirroring the teacher's
// `head := &TransactionRequest{}` in pipeline.New), so Push never needs to
// special-case "the queue was empty".
func NewQueue(arena *tasklist.Arena) *Queue {
	sentinel := arena.Allocate()
	var available uint64
	return &Queue{
		arena:          arena,
		tailNext:       &arena.Get(sentinel).Next,
		availableCount: &available,
	}
}

// Push appends handle to the queue. Every batchSize pushes (or an explicit
// Flush) publishes the accumulated count to readers in one atomic add, so a
// reader never needs to poll on every single push.
func (q *Queue) Push(handle types.TaskHandle) {
	*q.tailNext = handle
	q.tailNext = &q.arena.Get(handle).Next
	q.count++

	if q.count == batchSize {
		atomic.AddUint64(q.availableCount, q.count)
		q.count = 0
	}
}

// Flush publishes any pushes accumulated since the last batch boundary.
// Callers must call this after the last Push of a phase so that a reader
// waiting in Count does not block forever on a partial batch.
func (q *Queue) Flush() {
	if q.count > 0 {
		atomic.AddUint64(q.availableCount, q.count)
		q.count = 0
	}
}

// NewReader creates a reader that starts wherever the next Push will land.
// Like the teacher's Pipeline.NewReader, it must be created before the first
// Push if it is meant to observe the whole queue from the start.
func (q *Queue) NewReader() *Reader {
	var processed uint64
	return (&Reader{
		head:           q.tailNext,
		availableCount: q.availableCount,
		processedCount: &processed,
	}).bind(q.arena)
}

// Reader reads handles from a Queue (or from another Reader's output, via
// NewReader, forming a pipeline stage).
type Reader struct {
	head           *types.TaskHandle
	availableCount *uint64
	processedCount *uint64

	currentAvailableCount uint64
	currentProcessedCount uint64

	arena *tasklist.Arena
}

// bind attaches the arena a reader needs to dereference Next links; Queue
// readers get it from NewReader automatically, dependent readers inherit it
// in their own NewReader.
func (r *Reader) bind(arena *tasklist.Arena) *Reader {
	r.arena = arena
	return r
}

// Count returns the number of handles currently available to read, capped at
// one batch. It blocks, polling at a fixed short interval, until at least one
// handle is available — matching the teacher's busy-wait protocol for a
// worker pool that has no other useful work while idle.
func (r *Reader) Count() uint64 {
	atomic.StoreUint64(r.processedCount, r.currentProcessedCount)
	if toProcess := r.currentAvailableCount - r.currentProcessedCount; toProcess > 0 {
		if toProcess > batchSize {
			return batchSize
		}
		return toProcess
	}

	for {
		r.currentAvailableCount = atomic.LoadUint64(r.availableCount)
		if toProcess := r.currentAvailableCount - r.currentProcessedCount; toProcess > 0 {
			if toProcess > batchSize {
				return batchSize
			}
			return toProcess
		}
		time.Sleep(10 * time.Microsecond)
	}
}

// Acknowledge publishes the reader's current read position to any dependent
// reader chained onto it via NewReader.
func (r *Reader) Acknowledge() {
	atomic.StoreUint64(r.processedCount, r.currentProcessedCount)
}

// Read returns the next handle and advances the reader.
func (r *Reader) Read() types.TaskHandle {
	h := *r.head
	r.head = &r.arena.Get(h).Next
	r.currentProcessedCount++
	return h
}

// NewReader creates a dependent reader that starts where r is and becomes
// available to read only as r acknowledges progress past it, chaining
// pipeline stages the same way the teacher's Reader.NewReader does.
func (r *Reader) NewReader() *Reader {
	var processed uint64
	return (&Reader{
		head:           r.head,
		availableCount: r.processedCount,
		processedCount: &processed,
	}).bind(r.arena)
}
