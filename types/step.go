package types

// StepSummary is one rank's outcome for the step just executed: the
// per-kind next-wake horizon, update counts, and whether this rank observed
// a condition requiring a global rebuild.
type StepSummary struct {
	HydroEndMin    IntTime
	GravityEndMin  IntTime
	UpdatedGas     uint64
	UpdatedGrav    uint64
	UpdatedStar    uint64
	Rebuild        bool
}
