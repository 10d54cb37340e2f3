package cellspace

import (
	"math"

	"github.com/outofforest/sphtree/types"
)

// SanitizeConfig controls the pre-step smoothing-length clamp.
type SanitizeConfig struct {
	// Threshold is the local particle count below which a subtree is
	// eligible for clamping. Default 1000.
	Threshold int
	// KernelGamma is the kernel's support-radius factor; the clamp ceiling
	// is Dmin/(1.2*KernelGamma).
	KernelGamma float64
}

// DefaultSanitizeConfig matches the spec's stated default threshold.
func DefaultSanitizeConfig() SanitizeConfig {
	return SanitizeConfig{Threshold: 1000, KernelGamma: 1.825}
}

// Sanitize clamps absurd smoothing lengths (h==0 or h too large for the
// cell's minimum half-side) within any subtree whose local gas count is
// below cfg.Threshold, skipping subtrees whose parent was already
// sanitised at this level so the clamp is applied exactly once per
// affected region. HMax is recomputed bottom-up afterwards.
func (tr *Tree) Sanitize(idx types.CellIndex, cfg SanitizeConfig) {
	tr.sanitizeRecursive(idx, cfg, false)
}

func (tr *Tree) sanitizeRecursive(idx types.CellIndex, cfg SanitizeConfig, parentSanitised bool) {
	c := tr.Cells.Get(idx)
	sanitisedHere := parentSanitised

	if !parentSanitised && int(c.Windows[types.KindGas].Count) < cfg.Threshold {
		tr.clampWindow(c.Windows[types.KindGas], c.Dmin, cfg.KernelGamma)
		sanitisedHere = true
	}

	if c.Split {
		for _, p := range c.Progeny {
			if p != types.NoCell {
				tr.sanitizeRecursive(p, cfg, sanitisedHere)
			}
		}
	}

	tr.recomputeHMax(idx)
}

func (tr *Tree) clampWindow(w types.Window, dmin, kernelGamma float64) {
	upper := dmin / (1.2 * kernelGamma)
	gas := tr.Particles.Gas
	for i := w.Offset; i < w.End(); i++ {
		h := gas[i].H
		if h == 0 || h > upper {
			gas[i].H = upper
		}
	}
}

func (tr *Tree) recomputeHMax(idx types.CellIndex) {
	c := tr.Cells.Get(idx)
	if c.Split {
		hmax := 0.0
		for _, p := range c.Progeny {
			if p != types.NoCell {
				if ph := tr.Cells.Get(p).HMax; ph > hmax {
					hmax = ph
				}
			}
		}
		c.HMax = hmax
		return
	}

	hmax := 0.0
	for i := c.Windows[types.KindGas].Offset; i < c.Windows[types.KindGas].End(); i++ {
		if h := tr.Particles.Gas[i].H; h > hmax {
			hmax = h
		}
	}
	c.HMax = hmax
}

// AssertFinite reports whether v is neither NaN nor infinite, for flagging
// smoothing lengths or radii that slipped past sanitisation.
func AssertFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
