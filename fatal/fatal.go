// Package fatal is the single process-abort path: every programming-
// invariant violation and every transport failure ends here, never in a
// returned error a caller might swallow. Grounded on quantum's pervasive
// github.com/pkg/errors usage (errors.New/errors.Wrapf/errors.Errorf across
// db.go, space/alloc.go, alloc/state.go) combined with
// github.com/outofforest/logger's structured zap logging, which quantum
// wires into its contexts (alloc/test.go, benchmark_test.go) but never
// itself needed a fatal-abort helper for, since a single-process B+tree
// store has no notion of "one rank's failure kills the whole run" — that
// notion belongs to this engine's distributed step loop, not the teacher's.
package fatal

import (
	"context"

	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/sphtree/types"
	"github.com/outofforest/sphtree/xferhash"
)

// Field is a structured diagnostic attached to an Abort call.
type Field = zap.Field

// Cell names a cell's index and depth in an Abort's log line.
func Cell(idx types.CellIndex, depth int) Field {
	return zap.Dict("cell", zap.Uint32("index", uint32(idx)), zap.Int("depth", depth))
}

// Task names a task's cell pair and kind in an Abort's log line via a
// cheap in-process fingerprint (xferhash.TaskKey) rather than dumping the
// whole types.Task struct.
func Task(ci, cj types.CellIndex, typ types.TaskType, subtype types.TaskSubtype) Field {
	return zap.Uint64("task_key", xferhash.TaskKey(ci, cj, typ, subtype))
}

// Abort logs msg at fatal severity, naming err and any additional
// structured fields, then terminates the process. Per spec.md §7, a failed
// rank is a fatal condition and aborts the whole run; there is no recovery
// path, so nothing in this package returns an error for a caller to handle.
func Abort(ctx context.Context, msg string, err error, fields ...Field) {
	all := append([]Field{zap.Error(err)}, fields...)
	logger.Get(ctx).Fatal(msg, all...)
}
