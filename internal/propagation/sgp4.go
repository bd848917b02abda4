// Package propagation turns element sets into time-stamped ECI positions and
// velocities using the SGP4 perturbation model.
//
// SGP4 library choice: github.com/joshuaferrara/go-satellite. Pure Go (no
// CGO), most community adoption, explicit TEME output.
//
// Note: the library's Propagate() takes Satellite by value, so SGP4 error
// codes from the iteration are not visible to the caller. Failures are
// detected by classifying the output: NaN/Inf, decayed radius, and
// unreasonable magnitudes each map to a typed error.
package propagation

import (
	"fmt"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/AJ-EN/xenonite-mission-control/internal/elements"
	"github.com/AJ-EN/xenonite-mission-control/internal/transform"
)

const (
	// decayFloorKm is the geocentric radius below which a propagated state is
	// treated as decayed rather than merely inaccurate.
	decayFloorKm = 6300.0

	// maxRadiusKm bounds plausible Earth orbits; anything beyond it is a
	// numerical blow-up, not a real trajectory.
	maxRadiusKm = 100000.0

	// DefaultEpochWindow is how far from the element epoch propagation is
	// trusted. Short-arc element sets degrade badly past a few weeks.
	DefaultEpochWindow = 30 * 24 * time.Hour
)

// State is one propagated position/velocity in the ECI (TEME) frame.
// Ephemeral: recomputed every call, never cached beyond one tick.
type State struct {
	Position transform.Vec3 // km
	Velocity transform.Vec3 // km/s
}

// SGP4Propagator propagates a single element set. Construction runs the SGP4
// initialization once; At is then a pure function of time and is safe for
// concurrent use.
type SGP4Propagator struct {
	sat         satellite.Satellite
	set         elements.ElementSet
	epochWindow time.Duration
}

// New initializes an SGP4 propagator for an ingested element set.
// The element set has already passed structural validation in the elements
// package, which matters because go-satellite calls log.Fatal on garbage.
func New(set elements.ElementSet, epochWindow time.Duration) (*SGP4Propagator, error) {
	if len(set.Line1) < 69 || len(set.Line2) < 69 {
		return nil, fmt.Errorf("element set %d not validated: short lines", set.CatalogNumber)
	}
	if epochWindow <= 0 {
		epochWindow = DefaultEpochWindow
	}

	sat := satellite.TLEToSat(set.Line1, set.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %d: code=%d %s: %w",
			set.CatalogNumber, sat.Error, sat.ErrorStr, ErrNumerical)
	}

	return &SGP4Propagator{sat: sat, set: set, epochWindow: epochWindow}, nil
}

// Set returns the element set this propagator was built from.
func (p *SGP4Propagator) Set() elements.ElementSet {
	return p.set
}

// At computes the ECI state at the given absolute time.
// Deterministic: identical inputs yield identical outputs.
func (p *SGP4Propagator) At(t time.Time) (State, error) {
	if age := t.Sub(p.set.Epoch); age > p.epochWindow || age < -p.epochWindow {
		return State{}, fmt.Errorf("object %d: epoch age %.1f days: %w",
			p.set.CatalogNumber, age.Hours()/24, ErrEpochRange)
	}

	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	position := transform.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
	velocity := transform.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z}

	if !position.IsFinite() || !velocity.IsFinite() {
		return State{}, fmt.Errorf("object %d: NaN/Inf output: %w", p.set.CatalogNumber, ErrNumerical)
	}

	r := position.Norm()
	if r < decayFloorKm {
		return State{}, fmt.Errorf("object %d: radius %.1f km below decay floor: %w",
			p.set.CatalogNumber, r, ErrDecayed)
	}
	if r > maxRadiusKm {
		return State{}, fmt.Errorf("object %d: radius %.1f km implausible: %w",
			p.set.CatalogNumber, r, ErrNumerical)
	}

	return State{Position: position, Velocity: velocity}, nil
}

// AltitudeKm returns the altitude above the mean Earth radius for a state.
func (s State) AltitudeKm() float64 {
	return s.Position.Norm() - transform.EarthRadiusKm
}

// SpeedKmS returns the velocity magnitude.
func (s State) SpeedKmS() float64 {
	return s.Velocity.Norm()
}
