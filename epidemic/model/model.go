// Package model holds the SIR rate-law parameters and the pure functions
// that compute dS/dt, dI/dt, dR/dt for a cell given its neighbor-coupled
// infection pressure.
package model

// DefaultMixingWeight is used when no mixing weight is configured.
const DefaultMixingWeight = 0.5

// UnsetMixingWeight is a sentinel callers pass to NewParams to request
// DefaultMixingWeight. It is out of the valid [0,1] range, so it can
// never be confused with a caller's deliberate choice of w=0.
const UnsetMixingWeight = -1

// Params holds the immutable, global step parameters shared by every
// rank for the duration of a run.
type Params struct {
	Beta  float64 // transmission rate
	Gamma float64 // recovery rate
	DT    float64 // step size
	Steps int     // total simulated steps (N)
	W     float64 // mixing weight in [0,1]
}

// NewParams validates and returns Params, applying DefaultMixingWeight
// when w is UnsetMixingWeight. A caller-supplied w=0 is a valid,
// distinct choice (no neighbor mixing) and is never overridden.
func NewParams(beta, gamma, dt float64, steps int, w float64) (Params, error) {
	if w == UnsetMixingWeight {
		w = DefaultMixingWeight
	}
	p := Params{Beta: beta, Gamma: gamma, DT: dt, Steps: steps, W: w}
	return p, p.Validate()
}

// Validate reports a configuration error for out-of-range parameters.
func (p Params) Validate() error {
	if p.Beta < 0 || p.Gamma < 0 {
		return ErrNegativeRate
	}
	if p.DT <= 0 {
		return ErrNonPositiveStep
	}
	if p.Steps < 0 {
		return ErrNegativeStepCount
	}
	if p.W < 0 || p.W > 1 {
		return ErrMixingWeightRange
	}
	return nil
}

// EffectiveInfection blends a cell's own infection fraction with the mean
// infection fraction of its neighbors:
// I_eff = (1-w)*I_self + w*I_neighbors_mean.
func (p Params) EffectiveInfection(iSelf, iNeighborsMean float64) float64 {
	return (1-p.W)*iSelf + p.W*iNeighborsMean
}

// Rates computes (dS, dI, dR) for the well-mixed SIR rate law, given a
// cell's current (S, I, R) and its effective infection pressure iEff.
func (p Params) Rates(s, i, r, iEff float64) (dS, dI, dR float64) {
	dS = -p.Beta * s * iEff
	dI = p.Beta*s*iEff - p.Gamma*i
	dR = p.Gamma * i
	return dS, dI, dR
}

// Step applies one forward-Euler step to (s, i, r) given effective
// infection pressure iEff, returning the unclamped next state.
// Clamping/renormalization is the caller's responsibility
// (epidemic/cell.State.ClampAndRenormalize).
func (p Params) Step(s, i, r, iEff float64) (nextS, nextI, nextR float64) {
	dS, dI, dR := p.Rates(s, i, r, iEff)
	return s + p.DT*dS, i + p.DT*dI, r + p.DT*dR
}
