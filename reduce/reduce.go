// Package reduce implements the Step Reducer: folding every rank's per-step
// summary into one global summary, then applying that global result back to
// each rank's own notion of its next wake horizon. Grounded on the teacher's
// Snapshot.Commit fold in snapshot.go, which walks a deterministically
// sorted key set and folds many per-space records into one singularity-node
// update; here the fold is over rank index (already a deterministic slice
// order) rather than a sorted map, but the shape — walk in a fixed order,
// accumulate into one running result, write back once at the end — is the
// same.
package reduce

import (
	"github.com/outofforest/sphtree/types"
)

// RankState is the subset of a rank's engine-level bookkeeping the Step
// Reducer reads and updates. It is deliberately narrow rather than the full
// engine state, so this package stays usable from both the engine (which
// embeds it) and tests (which construct it directly).
type RankState struct {
	TiEndMin      [types.NumParticleKinds]types.IntTime
	RebuildNeeded bool
}

// Combine folds every rank's step summary into one global summary: update
// counts sum, both per-kind ti_end_min take the minimum seen, and the
// rebuild flag is true if any rank raised it. An empty slice returns the
// zero value, which callers should treat as "no ranks reported" rather than
// a legitimate result.
func Combine(summaries []types.StepSummary) types.StepSummary {
	var out types.StepSummary
	for i, s := range summaries {
		if i == 0 {
			out.HydroEndMin = s.HydroEndMin
			out.GravityEndMin = s.GravityEndMin
		} else {
			if s.HydroEndMin < out.HydroEndMin {
				out.HydroEndMin = s.HydroEndMin
			}
			if s.GravityEndMin < out.GravityEndMin {
				out.GravityEndMin = s.GravityEndMin
			}
		}
		out.UpdatedGas += s.UpdatedGas
		out.UpdatedGrav += s.UpdatedGrav
		out.UpdatedStar += s.UpdatedStar
		out.Rebuild = out.Rebuild || s.Rebuild
	}
	return out
}

// Apply writes the global summary back onto a rank's own state: gas takes
// the hydro horizon, gravity takes the gravity horizon, and stars — which
// have no temporal stamp of their own and ride their owning gravity
// particle's (see drift.Gravity's doc comment) — take the gravity horizon
// too. The rebuild flag is latched: Apply sets it when the global summary
// raises it and never clears it.
func Apply(state *RankState, global types.StepSummary) {
	state.TiEndMin[types.KindGas] = global.HydroEndMin
	state.TiEndMin[types.KindGrav] = global.GravityEndMin
	state.TiEndMin[types.KindStar] = global.GravityEndMin
	if global.Rebuild {
		state.RebuildNeeded = true
	}
}
