// Package engine wires the Cell Tree, Subtree Lock Manager, Drift Engine,
// Multipole Maintainer and Task Graph Activator into one per-step runner,
// and folds the result through the Step Reducer. Grounded on the teacher's
// root-level lifecycle split: db.go's Config/DB pairing for construction,
// and alloc/state.go's State.Run for the fixed worker pool, generalised
// from a snapshot-store lifecycle and a node-eraser pool to a simulation
// step lifecycle and a task-drain pool.
package engine

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/outofforest/parallel"

	"github.com/outofforest/sphtree/activate"
	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/cellspace"
	"github.com/outofforest/sphtree/collab"
	"github.com/outofforest/sphtree/config"
	"github.com/outofforest/sphtree/drift"
	"github.com/outofforest/sphtree/fatal"
	"github.com/outofforest/sphtree/multipole"
	"github.com/outofforest/sphtree/reduce"
	"github.com/outofforest/sphtree/schedule"
	"github.com/outofforest/sphtree/tasklist"
	"github.com/outofforest/sphtree/types"
)

// cellSpace adapts *arena.Arena's Allocate to the collab.Space interface's
// GetCells name; Arena predates collab and is also consumed directly by
// cellspace.Tree.Subdivide, so the adapter lives here rather than renaming
// Arena's own method.
type cellSpace struct {
	arena *arena.Arena
}

// GetCells implements collab.Space.
func (s cellSpace) GetCells(n int) ([]types.CellIndex, error) {
	return s.arena.Allocate(n)
}

// Config bundles everything one Engine instance needs beyond the numeric
// collaborators themselves (passed separately to New, since Go cannot infer
// an Engine's type parameters from interface-typed struct fields): the tree
// it steps and the integration-scheme scalars (drift's base dt, h_max cap)
// Params does not otherwise own.
type Config struct {
	Params config.Params
	Tree   *cellspace.Tree
	Root   types.CellIndex
	Drift  drift.Config
}

// Engine drives one subtree's step loop: activate, drift, fold. I, H and G
// are monomorphised at construction per Design Notes §9, so the hot drift
// and activation paths never dispatch through an interface value per
// particle or per cell.
type Engine[I collab.Integrator, H collab.Hydro, G collab.Gravity] struct {
	params config.Params
	tree   *cellspace.Tree
	root   types.CellIndex
	space  collab.Space

	integrator I
	hydro      H
	gravity    G

	activateCfg  activate.Config
	multipoleCfg multipole.Config
	driftCfg     drift.Config

	rank reduce.RankState
}

// New validates cfg.Params and constructs an Engine ready to Step.
func New[I collab.Integrator, H collab.Hydro, G collab.Gravity](
	cfg Config,
	integrator I,
	hydro H,
	gravity G,
) (*Engine[I, H, G], error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Engine[I, H, G]{
		params:       cfg.Params,
		tree:         cfg.Tree,
		root:         cfg.Root,
		space:        cellSpace{arena: cfg.Tree.Cells},
		integrator:   integrator,
		hydro:        hydro,
		gravity:      gravity,
		activateCfg:  cfg.Params.Activate(),
		multipoleCfg: cfg.Params.Multipole(),
		driftCfg:     cfg.Drift,
	}, nil
}

// RankState exposes the engine's accumulated per-kind horizons and pending
// rebuild flag, as written by the most recent Step's reduce.Apply.
func (e *Engine[I, H, G]) RankState() reduce.RankState { return e.rank }

// Space returns the collab.Space collaborator backing this engine's tree, for
// a caller driving a rebuild between steps.
func (e *Engine[I, H, G]) Space() collab.Space { return e.space }

// Step runs one engine step to integer time t: it refreshes the subtree's
// multipoles and super pointers, unskips the hydro and gravity task graphs
// into a freshly built task arena, drains the resulting ready queue through
// a fixed worker pool, and folds the per-worker types.StepSummary values
// through the Step Reducer before writing the combined result back onto the
// engine's RankState.
//
// The worker pool executes exactly one runnable operation: TaskDrift,
// dispatched to drift.Gas or drift.Gravity by the task's recorded kind. Every
// other task type the activator reaches (pairs, sorts, sends, receives, the
// gravity and hydro phase tasks) is graph structure only here — their
// numeric bodies are hydro-scheme and transport-layer concerns the core does
// not own, per the flux-solver and thread-pool Non-goals, and are not
// fabricated. A production collaborator wiring those bodies in does so by
// composing its own runnable atop the same activated graph this Step builds.
func (e *Engine[I, H, G]) Step(ctx context.Context, t types.IntTime) error {
	if err := multipole.MakeMultipoles[G](e.tree.Cells, e.tree.Particles, e.root, t, e.multipoleCfg, e.gravity); err != nil {
		fatal.Abort(ctx, "multipole maintenance failed", err, fatal.Cell(e.root, 0))
		return errors.WithStack(err)
	}

	tasks, drifts := e.buildDriftTasks()
	// SuperPointers runs after buildDriftTasks so every leaf's Tasks.DriftPart/
	// DriftGpart is already set: ownsHydroTasks/ownsGravityTasks then see each
	// leaf as owning its own drift task, making the leaf both its own
	// SuperHydro and SuperGravity anchor, exactly what drift.ActivateDrift
	// below looks up per kind.
	activate.SuperPointers(e.tree.Cells, e.root)

	queue := schedule.NewQueue(tasks)
	// The reader must exist before the first Push to observe the whole
	// queue (schedule.Queue.NewReader's documented requirement); Step
	// creates it here, before activateTree does any pushing.
	reader := queue.NewReader()
	sched := &queueScheduler{tasks: tasks, queue: queue}
	rebuild := e.activateTree(tasks, sched, e.root, t)
	queue.Flush()

	summary, err := e.drainDrift(ctx, tasks, reader, drifts, sched.pushed, t)
	if err != nil {
		return err
	}
	summary.Rebuild = summary.Rebuild || rebuild

	// Every drift task this call processes targets the same t, so a cell
	// kind's horizon is simply "t, if anything of that kind moved this
	// step" — a conservative, single-step stand-in for a full per-bin
	// next-wake scheduler, which is its own subsystem beyond what the core
	// builds here (see DESIGN.md).
	if summary.UpdatedGas > 0 {
		summary.HydroEndMin = t
	}
	if summary.UpdatedGrav > 0 || summary.UpdatedStar > 0 {
		summary.GravityEndMin = t
	}

	// summary is already this rank's combined outcome (drainDrift folded
	// every worker's partial StepSummary through reduce.Combine); a
	// multi-rank deployment gathers sibling ranks' summaries and calls
	// reduce.Combine again one level up before reduce.Apply, which is
	// exactly what this single-rank call collapses to here.
	reduce.Apply(&e.rank, summary)
	return nil
}

// activateTree visits every cell of the subtree, running UnskipHydro and
// UnskipGravity at each one so their per-cell task-set activation and
// rebuild detection run against whatever pair/phase task chains a hydro
// neighbour-stencil builder has populated into PhaseTasks. Constructing that
// stencil itself is SPH-scheme-specific graph construction with no teacher
// or pack grounding and is out of scope here (see DESIGN.md); what Step can
// still guarantee unconditionally is that every locally active leaf's drift
// task is activated directly through drift.ActivateDrift, which is always
// correct regardless of what neighbour graph, if any, surrounds it.
func (e *Engine[I, H, G]) activateTree(
	tasks *tasklist.Arena,
	sched collab.Scheduler,
	idx types.CellIndex,
	t types.IntTime,
) bool {
	rebuild := activate.UnskipHydro(e.tree.Cells, tasks, idx, t, e.activateCfg, sched)
	if activate.UnskipGravity[I, G](e.tree.Cells, tasks, idx, t, e.activateCfg, sched, e.integrator, e.gravity) {
		rebuild = true
	}

	c := e.tree.Cells.Get(idx)
	if c.Split {
		for _, p := range c.Progeny {
			if p != types.NoCell {
				if e.activateTree(tasks, sched, p, t) {
					rebuild = true
				}
			}
		}
		return rebuild
	}

	if c.Owner == e.params.LocalRank {
		if c.Active(types.KindGas, t) {
			drift.ActivateDrift(e.tree.Cells, idx, types.KindGas, sched)
		}
		if c.Active(types.KindGrav, t) {
			drift.ActivateDrift(e.tree.Cells, idx, types.KindGrav, sched)
		}
	}
	return rebuild
}

// driftTarget records what a TaskDrift handle actually drifts: buildDriftTasks
// is the one place that knows, since Cell.Tasks only stores the handle, not
// the (cell, kind) pair it was built for.
type driftTarget struct {
	cell types.CellIndex
	kind types.ParticleKind
}

// buildDriftTasks allocates one drift task per locally owned leaf per
// driftable kind (gas; gravity, which also carries the subtree's star
// particles per [[reduce]]'s "no separate star stamp" decision), wires each
// handle into its cell's Tasks slot so drift.ActivateDrift can find it, and
// returns the lookup Step's worker pool uses to dispatch a ready handle to
// drift.Gas or drift.Gravity.
func (e *Engine[I, H, G]) buildDriftTasks() (*tasklist.Arena, map[types.TaskHandle]driftTarget) {
	n := e.tree.Cells.Len()
	tasks := tasklist.NewArena(2*n + 1)
	drifts := make(map[types.TaskHandle]driftTarget, n)
	e.allocateDriftTasks(tasks, drifts, e.root)
	return tasks, drifts
}

func (e *Engine[I, H, G]) allocateDriftTasks(
	tasks *tasklist.Arena,
	drifts map[types.TaskHandle]driftTarget,
	idx types.CellIndex,
) {
	c := e.tree.Cells.Get(idx)
	if c.Split {
		for _, p := range c.Progeny {
			if p != types.NoCell {
				e.allocateDriftTasks(tasks, drifts, p)
			}
		}
		return
	}
	if c.Owner != e.params.LocalRank {
		return
	}

	partHandle := tasks.Allocate()
	task := tasks.Get(partHandle)
	task.Type, task.Subtype, task.CI, task.Skip = types.TaskDrift, types.SubtypeNone, idx, true
	c.Tasks.DriftPart = partHandle
	drifts[partHandle] = driftTarget{cell: idx, kind: types.KindGas}

	gpartHandle := tasks.Allocate()
	gtask := tasks.Get(gpartHandle)
	gtask.Type, gtask.Subtype, gtask.CI, gtask.Skip = types.TaskDrift, types.SubtypeGravity, idx, true
	c.Tasks.DriftGpart = gpartHandle
	drifts[gpartHandle] = driftTarget{cell: idx, kind: types.KindGrav}
}

// drainDrift drains exactly totalPushed handles off reader — safe to do in
// one pass here because activateTree's pushing has already finished and
// queue.Flush has already published every one of them — then splits that
// fixed slice round-robin across e.params.Workers goroutines, dispatching
// each TaskDrift handle through drifts and folding every worker's local
// counts into one types.StepSummary. Grounded on the teacher's
// alloc/state.go State.Run: parallel.Run plus one spawn per fixed worker,
// parallel.Fail propagating the first worker's error to every sibling.
func (e *Engine[I, H, G]) drainDrift(
	ctx context.Context,
	tasks *tasklist.Arena,
	reader *schedule.Reader,
	drifts map[types.TaskHandle]driftTarget,
	totalPushed int64,
	t types.IntTime,
) (types.StepSummary, error) {
	handles := make([]types.TaskHandle, 0, totalPushed)
	for int64(len(handles)) < totalPushed {
		n := reader.Count()
		for i := uint64(0); i < n; i++ {
			handles = append(handles, reader.Read())
		}
		reader.Acknowledge()
	}

	summaries := make([]types.StepSummary, e.params.Workers)
	err := parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for w := 0; w < e.params.Workers; w++ {
			w := w
			spawn(fmt.Sprintf("drift-worker-%02d", w), parallel.Fail, func(ctx context.Context) error {
				for i := w; i < len(handles); i += e.params.Workers {
					h := handles[i]
					task := tasks.Get(h)
					if task.Skip {
						continue
					}
					if err := e.runDrift(h, task, drifts, t, &summaries[w]); err != nil {
						return err
					}
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		fatal.Abort(ctx, "drift worker pool failed", err)
		return types.StepSummary{}, errors.WithStack(err)
	}
	return reduce.Combine(summaries), nil
}

func (e *Engine[I, H, G]) runDrift(
	h types.TaskHandle,
	task *types.Task,
	drifts map[types.TaskHandle]driftTarget,
	t types.IntTime,
	summary *types.StepSummary,
) error {
	target, ok := drifts[h]
	if !ok {
		// Every other task type the activator can ready is graph structure
		// only here; see Step's doc comment.
		return nil
	}

	switch target.kind {
	case types.KindGas:
		if err := drift.Gas[I, H](e.tree.Cells, e.tree.Particles, target.cell, t, true, e.driftCfg, e.integrator, e.hydro); err != nil {
			return errors.WithStack(err)
		}
		summary.UpdatedGas++
	case types.KindGrav:
		if err := drift.Gravity[I](e.tree.Cells, e.tree.Particles, target.cell, t, true, e.driftCfg, e.integrator); err != nil {
			return errors.WithStack(err)
		}
		summary.UpdatedGrav++
		summary.UpdatedStar++
	}
	return nil
}

// queueScheduler implements collab.Scheduler over a schedule.Queue: Activate
// clears the handle's Skip flag and pushes it; ActivateSend additionally
// records the destination rank on the task, since send tasks are graph
// structure handed to the (out of scope) transport layer, not executed here.
// It is only ever driven from the single activation pass in Step, never
// concurrently, so pushed is a plain counter rather than an atomic one.
type queueScheduler struct {
	tasks  *tasklist.Arena
	queue  *schedule.Queue
	pushed int64
}

func (s *queueScheduler) Activate(handle types.TaskHandle) {
	if handle == types.NoTask {
		return
	}
	s.tasks.Get(handle).Skip = false
	s.queue.Push(handle)
	s.pushed++
}

func (s *queueScheduler) ActivateSend(handle types.TaskHandle, target types.RankID) {
	if handle == types.NoTask {
		return
	}
	task := s.tasks.Get(handle)
	task.Skip = false
	task.Target = target
	s.queue.Push(handle)
	s.pushed++
}
