// Package activate implements the Task Graph Activator: given a tree of
// pre-constructed task stubs, it decides which ones must run this step,
// inserts the minimal set of supporting drifts/sorts/sends/receives, and
// reports whether the tree must be rebuilt before the next step. Grounded
// on the teacher's recursive-descent style in space/space.go, generalised
// from tree construction to tree-shaped decision-making; no single teacher
// file plays this role since quantum has no task scheduler of its own, so
// the subcell recursion shape (not its content) is what transplants.
package activate

import (
	"math"

	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/cellock"
	"github.com/outofforest/sphtree/collab"
	"github.com/outofforest/sphtree/drift"
	"github.com/outofforest/sphtree/tasklist"
	"github.com/outofforest/sphtree/types"
)

// Config bundles the scalars the activator's predicates need.
type Config struct {
	// ThetaCritSq is the squared opening angle for the gravity MAC.
	ThetaCritSq float64
	// MaxRelDx is the fraction of a cell's dmin that dx_max_sort may reach
	// before the pair is flagged for rebuild.
	MaxRelDx float64
	// BoxSize is the periodic box side length; zero disables minimum-image
	// wrapping (for tests that do not model periodicity).
	BoxSize float64
	// LocalRank is this process's rank, used to decide local-vs-foreign
	// ownership at cross-rank pairs.
	LocalRank types.RankID
}

// canonicalDirections are the 13 canonical sort-stencil directions a
// 27-neighbour offset folds to by antisymmetry (opposite offsets share one
// bit) — the same 13-direction convention SPH tree codes in this domain use
// for their pairwise sort cache. Not grounded on any teacher or pack file
// (quantum has no spatial stencil); this is domain convention applied
// directly, flagged here rather than silently invented.
var canonicalDirections = [types.NumSortDirections][3]int{
	{1, -1, -1}, {1, -1, 0}, {1, -1, 1},
	{1, 0, -1}, {1, 0, 0}, {1, 0, 1},
	{1, 1, -1}, {1, 1, 0}, {1, 1, 1},
	{0, 1, -1}, {0, 1, 0}, {0, 1, 1},
	{0, 0, 1},
}

func wrap(d, boxSize float64) float64 {
	if boxSize > 0 {
		d -= boxSize * math.Round(d/boxSize)
	}
	return d
}

func squaredDistance(a, b types.Vec3, boxSize float64) float64 {
	var s float64
	for i := 0; i < 3; i++ {
		d := wrap(b[i]-a[i], boxSize)
		s += d * d
	}
	return s
}

func canonicalize(sign [3]int) [3]int {
	if sign[0] < 0 || (sign[0] == 0 && (sign[1] < 0 || (sign[1] == 0 && sign[2] < 0))) {
		return [3]int{-sign[0], -sign[1], -sign[2]}
	}
	return sign
}

// sortDirection returns the canonical sort-stencil bit for the offset from
// ci to cj.
func sortDirection(ci, cj *types.Cell, boxSize float64) types.SortMask {
	var sign [3]int
	a, b := ci.Center(), cj.Center()
	for i := 0; i < 3; i++ {
		switch d := wrap(b[i]-a[i], boxSize); {
		case d > 1e-12:
			sign[i] = 1
		case d < -1e-12:
			sign[i] = -1
		}
	}
	sign = canonicalize(sign)
	for i, cand := range canonicalDirections {
		if cand == sign {
			return types.SortMask(1) << uint(i)
		}
	}
	return 0
}

// adjacentAtThisLevel reports whether ci and cj's bounding boxes, grown by
// their smoothing-length envelopes, touch — the geometric criterion that
// decides whether a hydro sub-pair interacts at this tree level or is a
// non-neighbour pair the self-type recursion will never need to pair again.
func adjacentAtThisLevel(ci, cj *types.Cell, boxSize float64) bool {
	a, b := ci.Center(), cj.Center()
	for i := 0; i < 3; i++ {
		d := math.Abs(wrap(b[i]-a[i], boxSize))
		limit := 0.5*(ci.Width[i]+cj.Width[i]) + math.Max(ci.HMax, cj.HMax)
		if d > limit {
			return false
		}
	}
	return true
}

// NeedRebuild reports whether ci (and cj, if present) has drifted far
// enough since its last valid sort that the pair's neighbour geometry can
// no longer be trusted. This is a scoped rendition of spec.md's rebuild
// test: it checks the dx_max_sort-vs-dmin invariant exactly, and omits the
// companion smoothing-length/buffer invariant (which depends on hydro
// kernel parameters the core does not own) — see DESIGN.md.
func NeedRebuild(cells *arena.Arena, ci, cj types.CellIndex, cfg Config) bool {
	if overflowsSort(cells.Get(ci), cfg) {
		return true
	}
	if cj != types.NoCell && overflowsSort(cells.Get(cj), cfg) {
		return true
	}
	return false
}

func overflowsSort(c *types.Cell, cfg Config) bool {
	return c.DxMaxSort > cfg.MaxRelDx*c.Dmin
}

// SuperPointers performs the top-down pass that sets every cell's Super,
// SuperHydro and SuperGravity to the shallowest self-or-ancestor owning
// tasks of the relevant class, per spec.md §4.5.
func SuperPointers(cells *arena.Arena, root types.CellIndex) {
	superPointers(cells, root, types.NoCell, types.NoCell, types.NoCell)
}

func superPointers(cells *arena.Arena, idx, inHydro, inGravity, inAny types.CellIndex) {
	c := cells.Get(idx)
	if ownsHydroTasks(c) {
		inHydro = idx
	}
	if ownsGravityTasks(c) {
		inGravity = idx
	}
	if inHydro == idx || inGravity == idx || ownsOtherTasks(c) {
		inAny = idx
	}
	c.SuperHydro, c.SuperGravity, c.Super = inHydro, inGravity, inAny
	if c.Split {
		for _, p := range c.Progeny {
			if p != types.NoCell {
				superPointers(cells, p, inHydro, inGravity, inAny)
			}
		}
	}
}

func ownsHydroTasks(c *types.Cell) bool {
	return c.Tasks.DriftPart != types.NoTask ||
		c.PhaseTasks[types.PhaseDensity] != types.NoTask ||
		c.PhaseTasks[types.PhaseGradient] != types.NoTask ||
		c.PhaseTasks[types.PhaseForce] != types.NoTask
}

func ownsGravityTasks(c *types.Cell) bool {
	return c.Tasks.DriftGpart != types.NoTask ||
		c.PhaseTasks[types.PhaseGravity] != types.NoTask ||
		c.Tasks.InitGrav != types.NoTask ||
		c.Tasks.GravDown != types.NoTask ||
		c.Tasks.GravLongRange != types.NoTask
}

func ownsOtherTasks(c *types.Cell) bool {
	if c.Tasks.Ghost != types.NoTask || c.Tasks.Kick1 != types.NoTask || c.Tasks.Kick2 != types.NoTask ||
		c.Tasks.Timestep != types.NoTask || c.Tasks.EndForce != types.NoTask ||
		c.Tasks.Cooling != types.NoTask || c.Tasks.SourceTerms != types.NoTask {
		return true
	}
	for _, h := range c.Tasks.Send {
		if h != types.NoTask {
			return true
		}
	}
	for _, h := range c.Tasks.Recv {
		if h != types.NoTask {
			return true
		}
	}
	return false
}

func localActive(c *types.Cell, kind types.ParticleKind, t types.IntTime, rank types.RankID) bool {
	return c.Owner == rank && c.Active(kind, t)
}

func activateHandle(tasks *tasklist.Arena, sched collab.Scheduler, h types.TaskHandle) {
	if h == types.NoTask {
		return
	}
	tasks.Get(h).Skip = false
	sched.Activate(h)
}

func activateAll(tasks *tasklist.Arena, list *tasklist.List, head types.TaskHandle, sched collab.Scheduler) {
	list.Each(head, func(h types.TaskHandle, _ *types.Task) {
		activateHandle(tasks, sched, h)
	})
}

// pairPrereqs records the sort-direction requirement and snapshots
// dx_max_sort_old on both cells unconditionally, but only activates a
// cell's part-drift when that cell itself has an active gas particle this
// step — an inactive side does not move, so it needs no fresh drift, per
// spec.md §8 scenario 2 ("activates part-drift on ci (local) only").
func pairPrereqs(cells *arena.Arena, ci, cj types.CellIndex, dir types.SortMask, t types.IntTime, cfg Config, sched collab.Scheduler) {
	for _, idx := range [2]types.CellIndex{ci, cj} {
		if idx == types.NoCell {
			continue
		}
		c := cells.Get(idx)
		c.RequiresSorts |= dir
		c.DxMaxSortOld = c.DxMaxSort
		c.DoSort |= dir
		if localActive(c, types.KindGas, t, cfg.LocalRank) {
			drift.ActivateDrift(cells, idx, types.KindGas, sched)
		}
	}
}

// UnskipHydro implements spec.md's unskip_hydro for cell idx: it walks the
// density-phase task list linked to idx, activating local-active pairs and
// their prerequisites, then (if idx itself is locally active) activates its
// gradient- and force-phase tasks and the per-cell hydro task set. Returns
// whether any pair it visited requires a tree rebuild.
func UnskipHydro(
	cells *arena.Arena,
	tasks *tasklist.Arena,
	idx types.CellIndex,
	t types.IntTime,
	cfg Config,
	sched collab.Scheduler,
) bool {
	c := cells.Get(idx)
	list := tasklist.NewList(tasks)
	rebuild := false

	list.Each(c.PhaseTasks[types.PhaseDensity], func(h types.TaskHandle, task *types.Task) {
		ciActive := localActive(cells.Get(task.CI), types.KindGas, t, cfg.LocalRank)
		cjActive := task.CJ != types.NoCell && localActive(cells.Get(task.CJ), types.KindGas, t, cfg.LocalRank)
		if !ciActive && !cjActive {
			return
		}
		activateHandle(tasks, sched, h)

		switch task.Type {
		case types.TaskPair:
			pairPrereqs(cells, task.CI, task.CJ, task.Flags, t, cfg, sched)
			if NeedRebuild(cells, task.CI, task.CJ, cfg) {
				rebuild = true
			}
		case types.TaskSubSelf, types.TaskSubPair:
			if subcellHydro(cells, task.CI, task.CJ, t, cfg, sched) {
				rebuild = true
			}
		}

		if crossRank(cells, task.CI, task.CJ, cfg) {
			crossRankHydro(cells, tasks, task, t, cfg, sched)
		}
	})

	if localActive(c, types.KindGas, t, cfg.LocalRank) {
		activateAll(tasks, list, c.PhaseTasks[types.PhaseGradient], sched)
		activateAll(tasks, list, c.PhaseTasks[types.PhaseForce], sched)
		for _, h := range [...]types.TaskHandle{
			c.Tasks.Ghost, c.Tasks.Kick1, c.Tasks.Kick2, c.Tasks.Timestep,
			c.Tasks.EndForce, c.Tasks.Cooling, c.Tasks.SourceTerms,
		} {
			activateHandle(tasks, sched, h)
		}
	}

	return rebuild
}

// subcellHydro is the hydro subcell activator of spec.md §4.5: a self-type
// subtree (cj == NoCell) recurses over every pair of ci's children with
// a <= b, activating a leaf's part-drift directly; a pair-type subtree
// consults the adjacency predicate and either activates the pair's
// prerequisites or, finding the pair not a neighbour at this level, does
// nothing further (the 27-direction stencil is already fully enumerated by
// the self-type recursion, so a non-adjacent pair-type subtree needs no
// further descent).
func subcellHydro(cells *arena.Arena, ci, cj types.CellIndex, t types.IntTime, cfg Config, sched collab.Scheduler) bool {
	c := cells.Get(ci)
	if cj == types.NoCell {
		if !c.Split {
			if localActive(c, types.KindGas, t, cfg.LocalRank) {
				drift.ActivateDrift(cells, ci, types.KindGas, sched)
			}
			return false
		}
		rebuild := false
		for a := 0; a < 8; a++ {
			pa := c.Progeny[a]
			if pa == types.NoCell {
				continue
			}
			for b := a; b < 8; b++ {
				pb := c.Progeny[b]
				if pb == types.NoCell {
					continue
				}
				other := pb
				if a == b {
					other = types.NoCell
				}
				if subcellHydro(cells, pa, other, t, cfg, sched) {
					rebuild = true
				}
			}
		}
		return rebuild
	}

	cc := cells.Get(cj)
	if !adjacentAtThisLevel(c, cc, cfg.BoxSize) {
		return false
	}
	dir := sortDirection(c, cc, cfg.BoxSize)
	pairPrereqs(cells, ci, cj, dir, t, cfg, sched)
	return NeedRebuild(cells, ci, cj, cfg)
}

func crossRank(cells *arena.Arena, ci, cj types.CellIndex, cfg Config) bool {
	if cj == types.NoCell {
		return false
	}
	return cells.Get(ci).Owner != cells.Get(cj).Owner
}

// crossRankHydro activates the recv_xv/recv_rho/recv_ti and send_xv/
// send_rho/send_ti endpoints of a cross-rank hydro pair, per spec.md
// §4.5's cross-rank clause. recv_gradient's "extra loop" variant is a
// configurable hydro scheme detail the core does not own and is out of
// scope here (see DESIGN.md).
func crossRankHydro(
	cells *arena.Arena,
	tasks *tasklist.Arena,
	task *types.Task,
	t types.IntTime,
	cfg Config,
	sched collab.Scheduler,
) {
	ci, cj := cells.Get(task.CI), cells.Get(task.CJ)
	local, foreign, localIdx := ci, cj, task.CI
	if ci.Owner != cfg.LocalRank {
		local, foreign, localIdx = cj, ci, task.CJ
	}

	localOn := local.Active(types.KindGas, t)
	foreignOn := foreign.Active(types.KindGas, t)

	if localOn {
		activateHandle(tasks, sched, foreign.Tasks.Recv[types.EndpointXV])
		activateHandle(tasks, sched, foreign.Tasks.Recv[types.EndpointRho])
	}
	if foreignOn {
		drift.ActivateDrift(cells, localIdx, types.KindGas, sched)
		if h := local.Tasks.Send[types.EndpointXV]; h != types.NoTask {
			tasks.Get(h).Skip = false
			sched.ActivateSend(h, foreign.Owner)
		}
		if h := local.Tasks.Send[types.EndpointRho]; h != types.NoTask {
			tasks.Get(h).Skip = false
			sched.ActivateSend(h, foreign.Owner)
		}
	}
	if localOn || foreignOn {
		activateHandle(tasks, sched, foreign.Tasks.Recv[types.EndpointTi])
		if h := local.Tasks.Send[types.EndpointTi]; h != types.NoTask {
			tasks.Get(h).Skip = false
			sched.ActivateSend(h, foreign.Owner)
		}
	}
}

// UnskipGravity is the gravity analogue of UnskipHydro: self-gravity
// internal traversal uses the MAC admission test instead of a fixed
// adjacency predicate, and the cooperating cross-rank set is
// send_grav/recv_grav plus send_ti/recv_ti.
func UnskipGravity[I collab.Integrator, G collab.Gravity](
	cells *arena.Arena,
	tasks *tasklist.Arena,
	idx types.CellIndex,
	t types.IntTime,
	cfg Config,
	sched collab.Scheduler,
	integrator I,
	gravity G,
) bool {
	c := cells.Get(idx)
	list := tasklist.NewList(tasks)
	rebuild := false

	list.Each(c.PhaseTasks[types.PhaseGravity], func(h types.TaskHandle, task *types.Task) {
		ciActive := localActive(cells.Get(task.CI), types.KindGrav, t, cfg.LocalRank)
		cjActive := task.CJ != types.NoCell && localActive(cells.Get(task.CJ), types.KindGrav, t, cfg.LocalRank)
		if !ciActive && !cjActive {
			return
		}
		activateHandle(tasks, sched, h)

		if task.Type == types.TaskSubSelf || task.Type == types.TaskSubPair {
			if subcellGravity(cells, task.CI, task.CJ, t, cfg, sched, integrator, gravity) {
				rebuild = true
			}
		}

		if crossRank(cells, task.CI, task.CJ, cfg) {
			crossRankGravity(cells, tasks, task, t, cfg, sched)
		}
	})

	if localActive(c, types.KindGrav, t, cfg.LocalRank) {
		for _, h := range [...]types.TaskHandle{c.Tasks.InitGrav, c.Tasks.GravDown, c.Tasks.GravLongRange} {
			activateHandle(tasks, sched, h)
		}
	}

	return rebuild
}

// subcellGravity is the gravity subcell activator of spec.md §4.5: at every
// (ci, cj) pair it atomically drifts both multipoles to t under mlock, then
// applies the Multipole Acceptance Criterion; on rejection it descends into
// the larger of the two cells (ties broken to cj), activating gpart-drifts
// only at a leaf-leaf rejection.
func subcellGravity[I collab.Integrator, G collab.Gravity](
	cells *arena.Arena,
	ci, cj types.CellIndex,
	t types.IntTime,
	cfg Config,
	sched collab.Scheduler,
	integrator I,
	gravity G,
) bool {
	if cj == types.NoCell {
		c := cells.Get(ci)
		if !c.Split {
			return false
		}
		rebuild := false
		for a := 0; a < 8; a++ {
			pa := c.Progeny[a]
			if pa == types.NoCell {
				continue
			}
			for b := a; b < 8; b++ {
				pb := c.Progeny[b]
				if pb == types.NoCell {
					continue
				}
				other := pb
				if a == b {
					other = types.NoCell
				}
				if subcellGravity(cells, pa, other, t, cfg, sched, integrator, gravity) {
					rebuild = true
				}
			}
		}
		return rebuild
	}

	if !cellock.TryLock(cells, ci, types.LockMultipole) {
		return false
	}
	if !cellock.TryLock(cells, cj, types.LockMultipole) {
		cellock.Unlock(cells, ci, types.LockMultipole)
		return false
	}
	_ = drift.Multipole(cells, ci, t, integrator)
	_ = drift.Multipole(cells, cj, t, integrator)
	cellock.Unlock(cells, cj, types.LockMultipole)
	cellock.Unlock(cells, ci, types.LockMultipole)

	c, cc := cells.Get(ci), cells.Get(cj)
	r2 := squaredDistance(c.Multipole.CoM, cc.Multipole.CoM, cfg.BoxSize)
	if gravity.M2LAccept(c.Multipole.RMax, cc.Multipole.RMax, cfg.ThetaCritSq, r2) {
		return false
	}

	if !c.Split && !cc.Split {
		if c.Owner == cfg.LocalRank {
			drift.ActivateDrift(cells, ci, types.KindGrav, sched)
		}
		if cc.Owner == cfg.LocalRank {
			drift.ActivateDrift(cells, cj, types.KindGrav, sched)
		}
		return false
	}

	larger, smaller := cj, ci
	if c.Split && (!cc.Split || c.Multipole.RMax > cc.Multipole.RMax) {
		larger, smaller = ci, cj
	}

	rebuild := false
	for _, p := range cells.Get(larger).Progeny {
		if p == types.NoCell {
			continue
		}
		if subcellGravity(cells, p, smaller, t, cfg, sched, integrator, gravity) {
			rebuild = true
		}
	}
	return rebuild
}

// crossRankGravity is crossRankHydro's gravity analogue: send_grav/
// recv_grav replace send_xv/recv_rho, ti exchange is unchanged.
func crossRankGravity(
	cells *arena.Arena,
	tasks *tasklist.Arena,
	task *types.Task,
	t types.IntTime,
	cfg Config,
	sched collab.Scheduler,
) {
	ci, cj := cells.Get(task.CI), cells.Get(task.CJ)
	local, foreign, localIdx := ci, cj, task.CI
	if ci.Owner != cfg.LocalRank {
		local, foreign, localIdx = cj, ci, task.CJ
	}

	localOn := local.Active(types.KindGrav, t)
	foreignOn := foreign.Active(types.KindGrav, t)

	if localOn {
		activateHandle(tasks, sched, foreign.Tasks.Recv[types.EndpointGrav])
	}
	if foreignOn {
		drift.ActivateDrift(cells, localIdx, types.KindGrav, sched)
		if h := local.Tasks.Send[types.EndpointGrav]; h != types.NoTask {
			tasks.Get(h).Skip = false
			sched.ActivateSend(h, foreign.Owner)
		}
	}
	if localOn || foreignOn {
		activateHandle(tasks, sched, foreign.Tasks.Recv[types.EndpointTi])
		if h := local.Tasks.Send[types.EndpointTi]; h != types.NoTask {
			tasks.Get(h).Skip = false
			sched.ActivateSend(h, foreign.Owner)
		}
	}
}
