package cellspace_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/sphtree/cellspace"
	"github.com/outofforest/sphtree/types"
)

func TestSanitizeClampsZeroAndOversizedSmoothingLengths(t *testing.T) {
	tr, root := newTree(t, 3, 0, 0)
	c := tr.Cells.Get(root)
	c.Dmin = 1.2 * 1.825 // so the clamp ceiling is exactly 1.0

	ps := tr.Particles
	ps.Gas[0].H = 0     // must be clamped up to the ceiling
	ps.Gas[1].H = 5     // must be clamped down to the ceiling
	ps.Gas[2].H = 0.5   // already within bounds, must be untouched

	tr.Sanitize(root, cellspace.DefaultSanitizeConfig())

	require.InDelta(t, 1.0, ps.Gas[0].H, 1e-9)
	require.InDelta(t, 1.0, ps.Gas[1].H, 1e-9)
	require.InDelta(t, 0.5, ps.Gas[2].H, 1e-9)
}

func TestSanitizeSkipsSubtreesAboveThreshold(t *testing.T) {
	tr, root := newTree(t, 1, 0, 0)
	c := tr.Cells.Get(root)
	c.Dmin = 1.2 * 1.825
	tr.Particles.Gas[0].H = 5

	tr.Sanitize(root, cellspace.SanitizeConfig{Threshold: 0, KernelGamma: 1.825})

	require.Equal(t, 5.0, tr.Particles.Gas[0].H, "a subtree at or above threshold must not be clamped")
}

func TestSanitizeRecomputesHMaxBottomUp(t *testing.T) {
	tr, root := newTree(t, 2, 0, 0)
	ps := tr.Particles
	ps.Gas[0].Pos = types.Vec3{0.1, 0.1, 0.1}
	ps.Gas[1].Pos = types.Vec3{0.9, 0.9, 0.9}
	require.NoError(t, tr.Subdivide(root))

	c := tr.Cells.Get(root)
	lowOct := cellspace.Octant(types.Vec3{0.1, 0.1, 0.1}, c.Center())
	highOct := cellspace.Octant(types.Vec3{0.9, 0.9, 0.9}, c.Center())
	low := tr.Cells.Get(c.Progeny[lowOct])
	high := tr.Cells.Get(c.Progeny[highOct])

	ps.Gas[low.Windows[types.KindGas].Offset].H = 0.3
	ps.Gas[high.Windows[types.KindGas].Offset].H = 0.7

	tr.Sanitize(root, cellspace.SanitizeConfig{Threshold: 0, KernelGamma: 1.825})

	require.InDelta(t, 0.7, c.HMax, 1e-9)
}

func TestAssertFiniteRejectsNaNAndInf(t *testing.T) {
	require.True(t, cellspace.AssertFinite(1.0))
	require.False(t, cellspace.AssertFinite(math.NaN()))
	require.False(t, cellspace.AssertFinite(math.Inf(1)))
}
