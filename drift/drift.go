// Package drift implements the Drift Engine: bringing a subtree's particle
// and multipole state up to the current integer time, idempotently and
// monotonically, with per-cell envelopes folded upward as it goes. Grounded
// on the teacher's recursive descent style in space/space.go (explicit
// recursion, no iterative worklist, matching Design Notes §9's "keep the
// recursion explicit" instruction).
package drift

import (
	"math"

	"github.com/pkg/errors"

	"github.com/outofforest/sphtree/arena"
	"github.com/outofforest/sphtree/collab"
	"github.com/outofforest/sphtree/types"
)

// Config bundles the scalar parameters the drift algorithm needs beyond the
// tree and particle store.
type Config struct {
	// Base converts an integer-time difference into a physical dt.
	Base float64
	// HMaxCap is the configured global ceiling gas smoothing lengths are
	// clamped to after integration.
	HMaxCap float64
}

// IsActiveParticle reports whether a particle on the given time bin wakes up
// at integer time t: bin b wakes every 2^b steps, synchronised on multiples
// of 2^b.
func IsActiveParticle(bin types.TimeBin, t types.IntTime) bool {
	step := types.IntTime(1) << uint(bin)
	return t%step == 0
}

func squaredDisplacement(a, b types.Vec3) float64 {
	var s float64
	for i := 0; i < 3; i++ {
		d := b[i] - a[i]
		s += d * d
	}
	return s
}

// Gas drifts cell idx's gas particles — recursing into its subtree first
// when force or the cell's sub-drift flag is set — to integer time t.
// Calling it twice with the same t is a no-op (idempotent); t may never
// precede the cell's ti_old_part (monotonic), which is reported as an
// error rather than silently clamped, matching spec.md §4.3's "fatal error"
// characterisation via the caller's error-handling convention.
func Gas[I collab.Integrator, H collab.Hydro](
	cells *arena.Arena,
	ps *types.ParticleStore,
	idx types.CellIndex,
	t types.IntTime,
	force bool,
	cfg Config,
	integrator I,
	hydro H,
) error {
	c := cells.Get(idx)
	if t < c.TiOldPart {
		return errors.Errorf("cell %d: drift target %d precedes ti_old_part %d", idx, t, c.TiOldPart)
	}

	if c.Split && (force || c.DoSubDrift[types.KindGas]) {
		var hmax, maxDx float64
		for _, p := range c.Progeny {
			if p == types.NoCell {
				continue
			}
			if err := Gas[I, H](cells, ps, p, t, force, cfg, integrator, hydro); err != nil {
				return err
			}
			child := cells.Get(p)
			if child.HMax > hmax {
				hmax = child.HMax
			}
			if child.DxMaxPart > maxDx {
				maxDx = child.DxMaxPart
			}
		}
		c.HMax = hmax
		c.DxMaxPart = maxDx
		c.TiOldPart = t
		c.DoSubDrift[types.KindGas] = false
		return nil
	}

	if !force || t <= c.TiOldPart {
		return nil
	}

	dt := float64(t-c.TiOldPart) * cfg.Base
	w := c.Windows[types.KindGas]
	var hmax, maxSq float64
	for i := w.Offset; i < w.End(); i++ {
		p := &ps.Gas[i]
		ext := &ps.GasExt[i]
		before := p.Pos
		integrator.DriftPart(p, ext, dt, c.TiOldPart, t)
		if p.H > cfg.HMaxCap {
			p.H = cfg.HMaxCap
		}
		d2 := squaredDisplacement(before, p.Pos)
		ext.DxSinceRebuild += math.Sqrt(d2)
		if d2 > maxSq {
			maxSq = d2
		}
		if p.H > hmax {
			hmax = p.H
		}
		if IsActiveParticle(p.TimeBin, t) {
			hydro.InitDensityAccumulator(p, ext)
		}
	}
	c.HMax = hmax
	c.DxMaxPart = math.Sqrt(maxSq)
	c.TiOldPart = t
	c.DoDrift[types.KindGas] = false
	return nil
}

// Gravity drifts cell idx's gravity and star particles to t. Star particles
// share the gravity stamp (ti_old_gpart) and envelope (dx_max_gpart): the
// data model tracks no separate "ti_old_spart", since a star's motion is
// always driven by its owned gravity particle (see DESIGN.md's Open
// Question decisions).
func Gravity[I collab.Integrator](
	cells *arena.Arena,
	ps *types.ParticleStore,
	idx types.CellIndex,
	t types.IntTime,
	force bool,
	cfg Config,
	integrator I,
) error {
	c := cells.Get(idx)
	if t < c.TiOldGpart {
		return errors.Errorf("cell %d: drift target %d precedes ti_old_gpart %d", idx, t, c.TiOldGpart)
	}

	if c.Split && (force || c.DoSubDrift[types.KindGrav]) {
		var maxDx float64
		for _, p := range c.Progeny {
			if p == types.NoCell {
				continue
			}
			if err := Gravity[I](cells, ps, p, t, force, cfg, integrator); err != nil {
				return err
			}
			if child := cells.Get(p); child.DxMaxGpart > maxDx {
				maxDx = child.DxMaxGpart
			}
		}
		c.DxMaxGpart = maxDx
		c.TiOldGpart = t
		c.DoSubDrift[types.KindGrav] = false
		return nil
	}

	if !force || t <= c.TiOldGpart {
		return nil
	}

	dt := float64(t-c.TiOldGpart) * cfg.Base
	gw := c.Windows[types.KindGrav]
	var maxSq float64
	for i := gw.Offset; i < gw.End(); i++ {
		g := &ps.Grav[i]
		before := g.Pos
		integrator.DriftGpart(g, dt, c.TiOldGpart, t)
		if d2 := squaredDisplacement(before, g.Pos); d2 > maxSq {
			maxSq = d2
		}
	}
	sw := c.Windows[types.KindStar]
	for i := sw.Offset; i < sw.End(); i++ {
		integrator.DriftSpart(&ps.Star[i], dt, c.TiOldGpart, t)
	}
	c.DxMaxGpart = math.Sqrt(maxSq)
	c.TiOldGpart = t
	c.DoDrift[types.KindGrav] = false
	return nil
}

// ActivateDrift records the intent to drift kind on idx: it sets idx's
// do_drift flag, walks up setting do_sub_drift on each strict ancestor up to
// and including idx's registered super-cell for kind (SuperHydro for KindGas,
// SuperGravity otherwise — the anchor that actually owns the drift task),
// then activates that anchor's drift task through sched. When idx is its own
// anchor no ancestor is flagged. It short-circuits
// the moment it finds a cell that is already flagged, which is intentional
// (Design Notes §9's Open Questions): without it, repeated activation of the
// same subtree from many leaves would cost O(active tasks) instead of
// O(active cells).
func ActivateDrift(cells *arena.Arena, idx types.CellIndex, kind types.ParticleKind, sched collab.Scheduler) {
	c := cells.Get(idx)
	if c.DoDrift[kind] {
		return
	}
	c.DoDrift[kind] = true

	anchor := c.SuperHydro
	if kind != types.KindGas {
		anchor = c.SuperGravity
	}
	if idx != anchor {
		for cur := c.Parent; cur != types.NoCell; cur = cells.Get(cur).Parent {
			cc := cells.Get(cur)
			if cc.DoSubDrift[kind] {
				return
			}
			cc.DoSubDrift[kind] = true
			if cur == anchor {
				break
			}
		}
	}

	if anchor == types.NoCell {
		return
	}
	anchorCell := cells.Get(anchor)
	handle := anchorCell.Tasks.DriftPart
	if kind != types.KindGas {
		handle = anchorCell.Tasks.DriftGpart
	}
	if handle != types.NoTask {
		sched.Activate(handle)
	}
}

// Multipole advances cell idx's own multipole expansion to t via the
// Integrator collaborator's GravityDrift, optionally inflating r_max by the
// cell's gravity displacement envelope. Idempotent and monotonic exactly
// like Gas/Gravity.
func Multipole[I collab.Integrator](cells *arena.Arena, idx types.CellIndex, t types.IntTime, integrator I) error {
	c := cells.Get(idx)
	if t < c.TiOldMultipole {
		return errors.Errorf("cell %d: multipole drift target %d precedes ti_old_multipole %d", idx, t, c.TiOldMultipole)
	}
	if t == c.TiOldMultipole {
		return nil
	}
	dt := float64(t - c.TiOldMultipole)
	integrator.GravityDrift(&c.Multipole, dt, c.DxMaxGpart)
	c.TiOldMultipole = t
	return nil
}

// AllMultipoles recurses Multipole over idx's whole subtree.
func AllMultipoles[I collab.Integrator](cells *arena.Arena, idx types.CellIndex, t types.IntTime, integrator I) error {
	if err := Multipole[I](cells, idx, t, integrator); err != nil {
		return err
	}
	c := cells.Get(idx)
	if c.Split {
		for _, p := range c.Progeny {
			if p != types.NoCell {
				if err := AllMultipoles[I](cells, p, t, integrator); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
