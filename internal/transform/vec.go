// Package transform provides the frame conversions and vector math used by
// the simulation core: Greenwich sidereal time, ECI to render-space
// conversion, and the spherical geodetic projection.
//
// All angles are radians internally; degrees appear only in the types handed
// to the presentation boundary.
package transform

import "math"

// Vec3 is a 3-component vector. Units depend on context (km for positions,
// km/s for velocities, dimensionless scene units after conversion).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{v.X * k, v.Y * k, v.Z * k}
}

// Norm returns the Euclidean magnitude of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Distance returns the Euclidean distance between v and w.
func (v Vec3) Distance(w Vec3) float64 {
	return v.Sub(w).Norm()
}

// IsFinite reports whether all components are finite (no NaN or Inf).
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
