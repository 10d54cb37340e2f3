// Package config holds the engine's tunable parameters as a single plain
// struct, the same idiom quantum uses for AllocatorConfig/SpaceConfig: no
// file or environment parser exists anywhere in the teacher, so none is
// invented here either — a caller builds a Params value directly (from
// flags, a YAML file, whatever its own entry point wants) and passes it in.
// The one addition over the teacher's struct idiom is Validate, since this
// engine's parameters carry physical meaning a caller can easily get wrong
// (a negative box size, an opening angle outside (0,1]) in a way quantum's
// byte-count fields never could.
package config

import (
	"github.com/pkg/errors"

	"github.com/outofforest/sphtree/activate"
	"github.com/outofforest/sphtree/multipole"
	"github.com/outofforest/sphtree/types"
)

// Params is the full set of engine tunables. Every field here is read by
// exactly one component; Params exists to give a caller one struct to
// build instead of one per component.
type Params struct {
	// BoxSize is the periodic cube's side length.
	BoxSize float64
	// ThetaCrit is the opening angle for the gravity multipole acceptance
	// criterion; smaller is more accurate and more expensive. Squared once
	// here rather than by every M2L test (activate.Config.ThetaCritSq).
	ThetaCrit float64
	// MaxRelDx bounds dx_max_sort as a fraction of a cell's dmin before a
	// rebuild is required.
	MaxRelDx float64
	// MultipoleOrder is the configured gravity multipole expansion order.
	MultipoleOrder int
	// DebugVerifyMultipoles gates multipole's brute-force cross-check.
	DebugVerifyMultipoles bool
	// Workers is the fixed OS-thread worker pool size draining the ready
	// queue.
	Workers int
	// LocalRank is this process's rank among the engine's distributed
	// ranks.
	LocalRank types.RankID
}

// Validate rejects parameter combinations that are nonsensical regardless
// of what simulation they're meant to drive.
func (p Params) Validate() error {
	if p.BoxSize <= 0 {
		return errors.Errorf("box size must be positive, got %g", p.BoxSize)
	}
	if p.ThetaCrit <= 0 || p.ThetaCrit > 1 {
		return errors.Errorf("theta_crit must be in (0, 1], got %g", p.ThetaCrit)
	}
	if p.MaxRelDx <= 0 || p.MaxRelDx > 1 {
		return errors.Errorf("max_rel_dx must be in (0, 1], got %g", p.MaxRelDx)
	}
	if p.MultipoleOrder < 0 {
		return errors.Errorf("multipole order must be non-negative, got %d", p.MultipoleOrder)
	}
	if p.Workers <= 0 {
		return errors.Errorf("workers must be positive, got %d", p.Workers)
	}
	return nil
}

// Activate projects the activator's slice of Params into an activate.Config.
func (p Params) Activate() activate.Config {
	return activate.Config{
		ThetaCritSq: p.ThetaCrit * p.ThetaCrit,
		MaxRelDx:    p.MaxRelDx,
		BoxSize:     p.BoxSize,
		LocalRank:   p.LocalRank,
	}
}

// Multipole projects the multipole maintainer's slice of Params into a
// multipole.Config.
func (p Params) Multipole() multipole.Config {
	return multipole.Config{
		DebugVerify: p.DebugVerifyMultipoles,
		Order:       p.MultipoleOrder,
	}
}
