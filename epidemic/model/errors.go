package model

import "errors"

// Configuration errors detected on the coordinator during setup, fatal
// before any collective work begins.
var (
	ErrNegativeRate      = errors.New("model: beta and gamma must be non-negative")
	ErrNonPositiveStep   = errors.New("model: dt must be positive")
	ErrNegativeStepCount = errors.New("model: step count must be non-negative")
	ErrMixingWeightRange = errors.New("model: mixing weight w must be within [0,1]")
)
