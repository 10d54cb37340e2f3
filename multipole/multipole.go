// Package multipole implements the Multipole Maintainer: bottom-up
// construction of each cell's gravitational multipole expansion, with an
// optional brute-force debug cross-check. Grounded on the teacher's
// bottom-up accumulation style in space/space.go's subtree statistics
// folding, generalised from count/hash aggregation to mass/CoM/expansion
// aggregation.
package multipole

import (
	"math"

	"github.com/pkg/errors"

	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/collab"
	"github.com/outofforest/sphtree/types"
)

// Config gates the expensive debug verification pass.
type Config struct {
	// DebugVerify runs a brute-force P2M cross-check at every cell
	// MakeMultipoles visits and returns an error if it disagrees beyond
	// tolerance. Gated by a plain bool (teacher idiom: quantum gates
	// expensive asm cross-checks behind build tags; a bool lets this run
	// inside ordinary `go test` without a platform-specific tag).
	DebugVerify bool
	// Order is the configured multipole expansion order, used to size
	// Coeff on every (re)zero.
	Order int
}

const verifyTolerance = 1e-3

// MakeMultipoles builds cell idx's multipole expansion bottom-up: leaves
// call the Gravity collaborator's P2M on their particle window, empty
// leaves zero the expansion, and split cells fold their children's
// expansions in via M2M. Stamps ti_old_multipole = t on every visited cell.
func MakeMultipoles[G collab.Gravity](
	cells *arena.Arena,
	ps *types.ParticleStore,
	idx types.CellIndex,
	t types.IntTime,
	cfg Config,
	gravity G,
) error {
	c := cells.Get(idx)

	if c.Split {
		for _, p := range c.Progeny {
			if p != types.NoCell {
				if err := MakeMultipoles[G](cells, ps, p, t, cfg, gravity); err != nil {
					return err
				}
			}
		}

		c.Multipole.EnsureOrder(cfg.Order)
		for i := range c.Multipole.Coeff {
			c.Multipole.Coeff[i] = 0
		}

		var totalMass float64
		var com types.Vec3
		for _, p := range c.Progeny {
			if p == types.NoCell {
				continue
			}
			child := cells.Get(p)
			totalMass += child.Multipole.Mass
			for i := 0; i < 3; i++ {
				com[i] += child.Multipole.Mass * child.Multipole.CoM[i]
			}
		}
		if totalMass > 0 {
			for i := 0; i < 3; i++ {
				com[i] /= totalMass
			}
		} else {
			com = c.Center()
		}
		c.Multipole.Mass = totalMass
		c.Multipole.CoM = com

		var shiftBound, cornerBound float64
		for _, p := range c.Progeny {
			if p == types.NoCell {
				continue
			}
			child := cells.Get(p)
			gravity.M2M(&c.Multipole, &child.Multipole, com, child.Multipole.CoM)
			if b := child.Multipole.RMax + distance(com, child.Multipole.CoM); b > shiftBound {
				shiftBound = b
			}
		}
		cornerBound = maxCornerDistance(c, com)
		c.Multipole.RMax = math.Min(shiftBound, cornerBound)

		c.TiOldMultipole = t
		return verify(cells, ps, idx, cfg, gravity)
	}

	w := c.Windows[types.KindGrav]
	c.Multipole.EnsureOrder(cfg.Order)
	if w.Count == 0 {
		c.Multipole.Zero(c.Center())
		c.TiOldMultipole = t
		return nil
	}

	gravity.P2M(&c.Multipole, ps.Grav[w.Offset:w.End()])
	c.Multipole.RMax = maxCornerDistance(c, c.Multipole.CoM)
	c.TiOldMultipole = t
	return verify(cells, ps, idx, cfg, gravity)
}

func distance(a, b types.Vec3) float64 {
	return math.Sqrt(squaredDistance(a, b))
}

func squaredDistance(a, b types.Vec3) float64 {
	var s float64
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// maxCornerDistance returns the maximum distance from com to any of the
// cell's eight bounding-box corners.
func maxCornerDistance(c *types.Cell, com types.Vec3) float64 {
	var maxD float64
	for oct := 0; oct < 8; oct++ {
		corner := types.Vec3{
			c.Loc[0] + c.Width[0]*float64(oct>>2&1),
			c.Loc[1] + c.Width[1]*float64(oct>>1&1),
			c.Loc[2] + c.Width[2]*float64(oct&1),
		}
		if d := distance(com, corner); d > maxD {
			maxD = d
		}
	}
	return maxD
}

// verify cross-checks the just-built expansion against a brute-force P2M
// over every gravity particle in the subtree, when cfg.DebugVerify is set.
func verify[G collab.Gravity](
	cells *arena.Arena,
	ps *types.ParticleStore,
	idx types.CellIndex,
	cfg Config,
	gravity G,
) error {
	if !cfg.DebugVerify {
		return nil
	}

	c := cells.Get(idx)
	var brute types.Multipole
	brute.EnsureOrder(cfg.Order)
	gravity.P2M(&brute, subtreeGravParticles(cells, ps, idx, nil))

	if brute.Mass > 0 {
		if rel := math.Abs(c.Multipole.Mass-brute.Mass) / brute.Mass; rel > verifyTolerance {
			return errors.Errorf("cell %d: mass mismatch %.6g vs brute-force %.6g (rel %.3g)",
				idx, c.Multipole.Mass, brute.Mass, rel)
		}
	}

	bruteRMax := maxCornerDistance(c, brute.CoM)
	if c.Multipole.RMax < bruteRMax-verifyTolerance*bruteRMax {
		return errors.Errorf("cell %d: r_max %.6g does not majorise brute-force bound %.6g", idx, c.Multipole.RMax, bruteRMax)
	}
	diag2 := 3 * c.Width[0] * c.Width[0]
	if c.Multipole.RMax*c.Multipole.RMax > diag2 {
		return errors.Errorf("cell %d: r_max^2 %.6g exceeds 3*width^2 bound %.6g", idx, c.Multipole.RMax*c.Multipole.RMax, diag2)
	}
	return nil
}

func subtreeGravParticles(cells *arena.Arena, ps *types.ParticleStore, idx types.CellIndex, out []types.GravParticle) []types.GravParticle {
	c := cells.Get(idx)
	if c.Split {
		for _, p := range c.Progeny {
			if p != types.NoCell {
				out = subtreeGravParticles(cells, ps, p, out)
			}
		}
		return out
	}
	w := c.Windows[types.KindGrav]
	return append(out, ps.Grav[w.Offset:w.End()]...)
}
