package types

// Multipole is a truncated gravitational potential expansion around a
// cell's centre of mass. The polynomial form of the expansion coefficients
// is out of scope for the core (spec Non-goals); Coeff is opaque storage
// sized by the engine's configured order and populated only through the
// Gravity collaborator's P2M/M2M operators.
type Multipole struct {
	Order int
	Coeff []float64
	Mass  float64
	CoM   Vec3
	RMax  float64
}

// Zero resets the expansion to the empty-leaf state: zero mass, cell centre
// as CoM, zero radius. Coeff is cleared in place so the backing array is
// reused rather than reallocated every rebuild.
func (m *Multipole) Zero(center Vec3) {
	m.Mass = 0
	m.CoM = center
	m.RMax = 0
	for i := range m.Coeff {
		m.Coeff[i] = 0
	}
}

// EnsureOrder grows Coeff to hold the configured order's coefficients
// without reallocating on every call once warmed up.
func (m *Multipole) EnsureOrder(order int) {
	m.Order = order
	if cap(m.Coeff) < order {
		m.Coeff = make([]float64, order)
		return
	}
	m.Coeff = m.Coeff[:order]
}
