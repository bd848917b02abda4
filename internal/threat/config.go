// Package threat converts player/debris proximity into a single bounded risk
// score with rolling history, status bands, and a human-readable summary.
package threat

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Tuning carries the scoring policy constants. These are empirically chosen
// business policy, not physics, so they live in configuration rather than
// code.
type Tuning struct {
	DangerRadiusKm   float64 `yaml:"danger_radius_km"`
	CriticalRadiusKm float64 `yaml:"critical_radius_km"`
	ExtremeRadiusKm  float64 `yaml:"extreme_radius_km"`
	SoftWarningKm    float64 `yaml:"soft_warning_km"`

	DangerWeight  float64 `yaml:"danger_weight"`
	CriticalBonus float64 `yaml:"critical_bonus"`
	ExtremeBonus  float64 `yaml:"extreme_bonus"`

	HistoryCapacity int `yaml:"history_capacity"`
	ClosestRetained int `yaml:"closest_retained"`
}

// DefaultTuning returns the stock scoring policy.
func DefaultTuning() Tuning {
	return Tuning{
		DangerRadiusKm:   100,
		CriticalRadiusKm: 10,
		ExtremeRadiusKm:  5,
		SoftWarningKm:    50,
		DangerWeight:     0.5,
		CriticalBonus:    50,
		ExtremeBonus:     80,
		HistoryCapacity:  120,
		ClosestRetained:  5,
	}
}

// LoadTuning reads a YAML tuning file, applying values over the defaults.
func LoadTuning(r io.Reader) (Tuning, error) {
	t := DefaultTuning()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && err != io.EOF {
		return Tuning{}, fmt.Errorf("decoding tuning: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

// Validate checks the tuning for internally consistent, positive values.
func (t Tuning) Validate() error {
	if t.DangerRadiusKm <= 0 || t.CriticalRadiusKm <= 0 || t.ExtremeRadiusKm <= 0 {
		return fmt.Errorf("threat radii must be positive")
	}
	if t.ExtremeRadiusKm > t.CriticalRadiusKm || t.CriticalRadiusKm > t.DangerRadiusKm {
		return fmt.Errorf("threat radii must nest: extreme <= critical <= danger")
	}
	if t.DangerWeight < 0 || t.CriticalBonus < 0 || t.ExtremeBonus < 0 {
		return fmt.Errorf("threat weights must be non-negative")
	}
	if t.HistoryCapacity <= 0 {
		return fmt.Errorf("history capacity must be positive")
	}
	if t.ClosestRetained <= 0 {
		return fmt.Errorf("closest retained must be positive")
	}
	return nil
}
