// Package fake provides deterministic collab implementations for tests: a
// forward-Euler Integrator, a no-op Hydro, a brute-force Gravity, and a
// recording Scheduler. None of these are production collaborators; they
// exist only so drift/multipole/activate tests can exercise the core
// against known numerics instead of a stub that always returns zero.
package fake

import (
	"math"

	"github.com/outofforest/sphtree/types"
)

// Integrator is a plain forward-Euler stepper: position += velocity * dt.
type Integrator struct{}

// DriftPart advances position by velocity * dt; ext is left untouched,
// since extended gas state's evolution is a Hydro concern.
func (Integrator) DriftPart(p *types.GasParticle, _ *types.ExtendedGas, dt float64, _, tCur types.IntTime) {
	for i := 0; i < 3; i++ {
		p.Pos[i] += p.Vel[i] * dt
	}
	p.TiDrift = tCur
}

// DriftGpart is the gravity-particle analogue of DriftPart.
func (Integrator) DriftGpart(g *types.GravParticle, dt float64, _, tCur types.IntTime) {
	for i := 0; i < 3; i++ {
		g.Pos[i] += g.Vel[i] * dt
	}
	g.TiDrift = tCur
}

// DriftSpart is the star-particle analogue of DriftPart.
func (Integrator) DriftSpart(s *types.StarParticle, dt float64, _, _ types.IntTime) {
	for i := 0; i < 3; i++ {
		s.Pos[i] += s.Vel[i] * dt
	}
}

// KickPart is a no-op placeholder: velocity updates from accumulated forces
// are a Hydro/Gravity concern the fake does not model.
func (Integrator) KickPart(*types.GasParticle, float64) {}

// GravityDrift advances a multipole's CoM by its bulk velocity is not
// tracked by Multipole, so this only inflates r_max by the motion envelope,
// matching the spec's "optionally inflating r_max by dx_max_gpart" note.
func (Integrator) GravityDrift(m *types.Multipole, _ float64, dxEnvelope float64) {
	m.RMax += dxEnvelope
}

// Hydro is a no-op: it leaves ExtendedGas untouched, since the density
// accumulator's actual contents are out of the core's scope.
type Hydro struct{}

// InitDensityAccumulator is a no-op.
func (Hydro) InitDensityAccumulator(*types.GasParticle, *types.ExtendedGas) {}

// ConvertAfterDensity is a no-op.
func (Hydro) ConvertAfterDensity(*types.GasParticle, *types.ExtendedGas) {}

// Gravity is a brute-force point-mass multipole: P2M computes the exact
// centre of mass and total mass from the particle window (Coeff is left
// empty, since the expansion's polynomial terms are out of scope); M2M
// folds a child's Coeff into the parent's by identity passthrough and leaves
// Mass and CoM alone, sufficient for the monopole term the fake's M2LAccept
// test actually exercises.
type Gravity struct{}

// P2M computes the exact mass and centre of mass of gparts.
func (Gravity) P2M(m *types.Multipole, gparts []types.GravParticle) {
	var mass float64
	var com types.Vec3
	for _, g := range gparts {
		mass += g.Mass
		for i := 0; i < 3; i++ {
			com[i] += g.Mass * g.Pos[i]
		}
	}
	if mass > 0 {
		for i := 0; i < 3; i++ {
			com[i] /= mass
		}
	}
	m.Mass = mass
	m.CoM = com
}

// M2M shifts src's expansion coefficients onto dest's frame and accumulates
// them. Mass and CoM are computed by the multipole maintainer itself (the
// mass-weighted centroid is not collaborator-specific math), so M2M here
// only ever touches Coeff, summed elementwise as a stand-in for the real
// translation operator.
func (Gravity) M2M(dest, src *types.Multipole, _, _ types.Vec3) {
	for i := range dest.Coeff {
		if i < len(src.Coeff) {
			dest.Coeff[i] += src.Coeff[i]
		}
	}
}

// MultipoleAdd accumulates src's mass and coefficients into dest.
func (Gravity) MultipoleAdd(dest, src *types.Multipole) {
	dest.Mass += src.Mass
	for i := range dest.Coeff {
		if i < len(src.Coeff) {
			dest.Coeff[i] += src.Coeff[i]
		}
	}
}

// MultipoleInit zeroes m at the origin.
func (Gravity) MultipoleInit(m *types.Multipole) {
	m.Zero(types.Vec3{})
}

// M2LAccept implements the exact MAC test spec.md §4.5 specifies:
// (r_max_i + r_max_j)^2 <= theta_crit_sq * r_sq.
func (Gravity) M2LAccept(rMaxI, rMaxJ, thetaCritSq, rSq float64) bool {
	sum := rMaxI + rMaxJ
	return sum*sum <= thetaCritSq*rSq
}

// Scheduler records every activation in call order, for tests to assert
// against, rather than feeding a real schedule.Queue.
type Scheduler struct {
	Activated []types.TaskHandle
	Sent      []SendRecord
}

// SendRecord is one recorded ActivateSend call.
type SendRecord struct {
	Handle types.TaskHandle
	Target types.RankID
}

// Activate records handle.
func (s *Scheduler) Activate(handle types.TaskHandle) {
	s.Activated = append(s.Activated, handle)
}

// ActivateSend records handle and its destination.
func (s *Scheduler) ActivateSend(handle types.TaskHandle, target types.RankID) {
	s.Sent = append(s.Sent, SendRecord{Handle: handle, Target: target})
}

// Distance2 is a small helper tests use to compute the minimum-image squared
// distance between two points in a periodic cube of the given side length.
func Distance2(a, b types.Vec3, boxSize float64) float64 {
	var d2 float64
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		if boxSize > 0 {
			d -= boxSize * math.Round(d/boxSize)
		}
		d2 += d * d
	}
	return d2
}
