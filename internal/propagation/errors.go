package propagation

import "errors"

// Typed propagation failures. Callers treat all of these as "no position
// available this tick" and retry naturally on the next tick; none is fatal.
var (
	// ErrDecayed indicates the propagated radius fell below the decay floor:
	// the object has reentered or the element set is no longer meaningful.
	ErrDecayed = errors.New("orbit decayed")

	// ErrNumerical indicates the SGP4 iteration blew up: NaN/Inf output or a
	// physically absurd position magnitude.
	ErrNumerical = errors.New("numerical error")

	// ErrEpochRange indicates the requested time is too far from the element
	// set epoch for a short-arc element set to be trusted.
	ErrEpochRange = errors.New("time outside element epoch validity window")
)
