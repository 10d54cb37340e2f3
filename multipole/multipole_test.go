package multipole_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/collab/fake"
	"github.com/outofforest/sphtree/multipole"
	"github.com/outofforest/sphtree/types"
)

func TestMakeMultipolesOnLeafMatchesDirectCentroid(t *testing.T) {
	a := arena.New(2)
	idxs, err := a.Allocate(1)
	require.NoError(t, err)
	root := idxs[0]
	c := a.Get(root)
	c.Loc, c.Width = types.Vec3{0, 0, 0}, types.Vec3{2, 2, 2}
	c.Windows[types.KindGrav] = types.Window{Offset: 0, Count: 2}

	ps := &types.ParticleStore{Grav: []types.GravParticle{
		{Pos: types.Vec3{0, 0, 0}, Mass: 1},
		{Pos: types.Vec3{2, 0, 0}, Mass: 1},
	}}

	cfg := multipole.Config{Order: 4}
	require.NoError(t, multipole.MakeMultipoles(a, ps, root, 1, cfg, fake.Gravity{}))

	require.Equal(t, 2.0, c.Multipole.Mass)
	require.Equal(t, types.Vec3{1, 0, 0}, c.Multipole.CoM)
	require.Equal(t, types.IntTime(1), c.TiOldMultipole)
	require.Greater(t, c.Multipole.RMax, 0.0)
}

func TestMakeMultipolesOnEmptyLeafZeroesExpansion(t *testing.T) {
	a := arena.New(2)
	idxs, err := a.Allocate(1)
	require.NoError(t, err)
	root := idxs[0]
	c := a.Get(root)
	c.Loc, c.Width = types.Vec3{0, 0, 0}, types.Vec3{1, 1, 1}

	ps := &types.ParticleStore{}
	cfg := multipole.Config{Order: 2}
	require.NoError(t, multipole.MakeMultipoles(a, ps, root, 1, cfg, fake.Gravity{}))

	require.Equal(t, 0.0, c.Multipole.Mass)
	require.Equal(t, 0.0, c.Multipole.RMax)
	require.Equal(t, c.Center(), c.Multipole.CoM)
}

func TestMakeMultipolesOnSplitCellFoldsChildrenMass(t *testing.T) {
	a := arena.New(4)
	idxs, err := a.Allocate(3)
	require.NoError(t, err)
	root, left, right := idxs[0], idxs[1], idxs[2]

	rc := a.Get(root)
	rc.Split = true
	rc.Progeny[0], rc.Progeny[1] = left, right
	rc.Loc, rc.Width = types.Vec3{0, 0, 0}, types.Vec3{4, 4, 4}

	lc := a.Get(left)
	lc.Loc, lc.Width = types.Vec3{0, 0, 0}, types.Vec3{2, 2, 2}
	lc.Windows[types.KindGrav] = types.Window{Offset: 0, Count: 1}

	rcChild := a.Get(right)
	rcChild.Loc, rcChild.Width = types.Vec3{2, 0, 0}, types.Vec3{2, 2, 2}
	rcChild.Windows[types.KindGrav] = types.Window{Offset: 1, Count: 1}

	ps := &types.ParticleStore{Grav: []types.GravParticle{
		{Pos: types.Vec3{0, 0, 0}, Mass: 1},
		{Pos: types.Vec3{2, 0, 0}, Mass: 3},
	}}

	cfg := multipole.Config{Order: 2}
	require.NoError(t, multipole.MakeMultipoles(a, ps, root, 5, cfg, fake.Gravity{}))

	require.Equal(t, 4.0, rc.Multipole.Mass)
	require.InDelta(t, 1.5, rc.Multipole.CoM[0], 1e-9)
}

func TestMakeMultipolesDebugVerifyCatchesDisagreement(t *testing.T) {
	a := arena.New(2)
	idxs, err := a.Allocate(1)
	require.NoError(t, err)
	root := idxs[0]
	c := a.Get(root)
	c.Loc, c.Width = types.Vec3{0, 0, 0}, types.Vec3{2, 2, 2}
	c.Windows[types.KindGrav] = types.Window{Offset: 0, Count: 1}

	ps := &types.ParticleStore{Grav: []types.GravParticle{{Pos: types.Vec3{0, 0, 0}, Mass: 1}}}
	cfg := multipole.Config{Order: 1, DebugVerify: true}

	require.NoError(t, multipole.MakeMultipoles(a, ps, root, 1, cfg, fake.Gravity{}))

	// Move the particle out of the cell: the rebuilt r_max then exceeds the
	// cell diagonal, which verification must reject.
	ps.Grav[0].Pos = types.Vec3{10, 0, 0}
	require.Error(t, multipole.MakeMultipoles(a, ps, root, 2, cfg, fake.Gravity{}))
}
