package drift_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/collab/fake"
	"github.com/outofforest/sphtree/drift"
	"github.com/outofforest/sphtree/types"
)

func leafCell(t *testing.T, nGas int) (*arena.Arena, *types.ParticleStore, types.CellIndex) {
	t.Helper()
	a := arena.New(2)
	idxs, err := a.Allocate(1)
	require.NoError(t, err)
	c := a.Get(idxs[0])
	c.Windows[types.KindGas] = types.Window{Offset: 0, Count: types.ParticleIndex(nGas)}
	ps := &types.ParticleStore{
		Gas:    make([]types.GasParticle, nGas),
		GasExt: make([]types.ExtendedGas, nGas),
	}
	return a, ps, idxs[0]
}

func TestGasDriftAdvancesPositionsAndStamp(t *testing.T) {
	a, ps, root := leafCell(t, 2)
	ps.Gas[0].Vel = types.Vec3{1, 0, 0}
	ps.Gas[1].Vel = types.Vec3{0, 2, 0}

	cfg := drift.Config{Base: 1, HMaxCap: 100}
	require.NoError(t, drift.Gas(a, ps, root, 5, true, cfg, fake.Integrator{}, fake.Hydro{}))

	require.Equal(t, types.Vec3{5, 0, 0}, ps.Gas[0].Pos)
	require.Equal(t, types.Vec3{0, 10, 0}, ps.Gas[1].Pos)
	require.Equal(t, types.IntTime(5), a.Get(root).TiOldPart)
	for _, p := range ps.Gas {
		require.Equal(t, types.IntTime(5), p.TiDrift)
	}
}

func TestGasDriftIsIdempotentAtTheSameTime(t *testing.T) {
	a, ps, root := leafCell(t, 1)
	ps.Gas[0].Vel = types.Vec3{1, 0, 0}
	cfg := drift.Config{Base: 1, HMaxCap: 100}

	require.NoError(t, drift.Gas(a, ps, root, 5, true, cfg, fake.Integrator{}, fake.Hydro{}))
	posAfterFirst := ps.Gas[0].Pos

	require.NoError(t, drift.Gas(a, ps, root, 5, true, cfg, fake.Integrator{}, fake.Hydro{}))
	require.Equal(t, posAfterFirst, ps.Gas[0].Pos, "repeating the same target time must not move the particle again")
}

func TestGasDriftRejectsTimeBeforeTiOldPart(t *testing.T) {
	a, ps, root := leafCell(t, 1)
	cfg := drift.Config{Base: 1, HMaxCap: 100}

	require.NoError(t, drift.Gas(a, ps, root, 5, true, cfg, fake.Integrator{}, fake.Hydro{}))
	err := drift.Gas(a, ps, root, 3, true, cfg, fake.Integrator{}, fake.Hydro{})
	require.Error(t, err)
}

func TestGasDriftClampsSmoothingLengthToGlobalCap(t *testing.T) {
	a, ps, root := leafCell(t, 1)
	ps.Gas[0].H = 50
	cfg := drift.Config{Base: 1, HMaxCap: 10}

	require.NoError(t, drift.Gas(a, ps, root, 1, true, cfg, fake.Integrator{}, fake.Hydro{}))
	require.Equal(t, 10.0, ps.Gas[0].H)
	require.Equal(t, 10.0, a.Get(root).HMax)
}

func TestActivateDriftShortCircuitsWhenAlreadyFlagged(t *testing.T) {
	a := arena.New(2)
	idxs, err := a.Allocate(1)
	require.NoError(t, err)
	root := idxs[0]
	a.Get(root).SuperHydro = root
	a.Get(root).DoDrift[types.KindGas] = true

	sched := &fake.Scheduler{}
	drift.ActivateDrift(a, root, types.KindGas, sched)
	require.Empty(t, sched.Activated, "already-flagged cell must short-circuit without touching the scheduler")
}

func TestActivateDriftEnqueuesAtTheSuperAnchor(t *testing.T) {
	a := arena.New(4)
	idxs, err := a.Allocate(2)
	require.NoError(t, err)
	parent, child := idxs[0], idxs[1]
	a.Get(child).Parent = parent
	a.Get(parent).SuperHydro = parent
	a.Get(child).SuperHydro = parent
	a.Get(parent).Tasks.DriftPart = types.TaskHandle(7)

	sched := &fake.Scheduler{}
	drift.ActivateDrift(a, child, types.KindGas, sched)

	require.True(t, a.Get(child).DoDrift[types.KindGas])
	require.True(t, a.Get(parent).DoSubDrift[types.KindGas])
	require.Equal(t, []types.TaskHandle{7}, sched.Activated)
}

func TestActivateDriftUsesKindSpecificSuperAnchor(t *testing.T) {
	a := arena.New(4)
	idxs, err := a.Allocate(2)
	require.NoError(t, err)
	hydroAnchor, child := idxs[0], idxs[1]
	gravAnchor, err := a.Allocate(1)
	require.NoError(t, err)

	a.Get(child).Parent = hydroAnchor
	a.Get(hydroAnchor).SuperHydro = hydroAnchor
	a.Get(child).SuperHydro = hydroAnchor
	a.Get(hydroAnchor).Tasks.DriftPart = types.TaskHandle(3)

	a.Get(child).SuperGravity = gravAnchor[0]
	a.Get(gravAnchor[0]).Tasks.DriftGpart = types.TaskHandle(9)

	sched := &fake.Scheduler{}
	drift.ActivateDrift(a, child, types.KindGas, sched)
	require.Equal(t, []types.TaskHandle{3}, sched.Activated, "gas drift must anchor at SuperHydro")

	sched2 := &fake.Scheduler{}
	drift.ActivateDrift(a, child, types.KindGrav, sched2)
	require.Equal(t, []types.TaskHandle{9}, sched2.Activated, "gravity drift must anchor at SuperGravity, not SuperHydro")
}
