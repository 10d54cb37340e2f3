// Package collab defines the narrow interfaces the core consumes from
// external collaborators: the SPH kernel numerics, the gravity-expansion
// math, the scheduler's actual queueing mechanism, and cell allocation.
// None of these are implemented here — only deterministic fakes live under
// collab/fake, for tests. Grounded on the teacher's narrow-interface style
// (e.g. quantum's store.Driver/types.DataHub split between mechanism and
// policy) generalised to the five collaborators spec.md §6 names.
package collab

import "github.com/outofforest/sphtree/types"

// Integrator advances particle and multipole state by a timestep. The core
// never inspects the numerics; it only calls these at the points the drift
// algorithm specifies.
type Integrator interface {
	DriftPart(p *types.GasParticle, ext *types.ExtendedGas, dt float64, tOld, tCur types.IntTime)
	DriftGpart(g *types.GravParticle, dt float64, tOld, tCur types.IntTime)
	DriftSpart(s *types.StarParticle, dt float64, tOld, tCur types.IntTime)
	KickPart(p *types.GasParticle, dt float64)
	GravityDrift(m *types.Multipole, dt float64, dxEnvelope float64)
}

// Hydro exposes the two drift-time hooks into opaque per-particle
// thermodynamic state; the core treats ExtendedGas as opaque beyond this.
type Hydro interface {
	InitDensityAccumulator(p *types.GasParticle, ext *types.ExtendedGas)
	ConvertAfterDensity(p *types.GasParticle, ext *types.ExtendedGas)
}

// Gravity exposes the multipole expansion operators. The polynomial form of
// Coeff is entirely opaque to the core; P2M/M2M/MultipoleAdd are the only
// code that ever reads or writes it.
type Gravity interface {
	P2M(m *types.Multipole, gparts []types.GravParticle)
	M2M(dest, src *types.Multipole, destCoM, srcCoM types.Vec3)
	MultipoleAdd(dest, src *types.Multipole)
	MultipoleInit(m *types.Multipole)
	M2LAccept(rMaxI, rMaxJ, thetaCritSq, rSq float64) bool
}

// Scheduler is how the activator hands work to the worker pool without
// depending on the pool's actual queue type.
type Scheduler interface {
	Activate(handle types.TaskHandle)
	ActivateSend(handle types.TaskHandle, target types.RankID)
}

// Space allocates cell nodes from a pool, the one call the cell tree needs
// from whatever owns the arena.
type Space interface {
	GetCells(n int) ([]types.CellIndex, error)
}
