package transform

import (
	"math"
	"time"
)

// SceneScaleKm is the uniform divisor applied when converting ECI kilometers
// into render-space units: 1 scene unit = 1000 km.
const SceneScaleKm = 1000.0

// ToSceneSpace converts an ECI position (km) into render-space units.
// Axis permutation: inertial X → render X, inertial Z → render Y,
// inertial Y → render −Z (Y-up, right-handed render frame).
// Returns false for any input containing a non-finite component.
func ToSceneSpace(eci Vec3) (Vec3, bool) {
	if !eci.IsFinite() {
		return Vec3{}, false
	}
	return Vec3{
		X: eci.X / SceneScaleKm,
		Y: eci.Z / SceneScaleKm,
		Z: -eci.Y / SceneScaleKm,
	}, true
}

// SceneDistanceKm returns the distance between two render-space positions
// converted back to kilometers using the same scale factor.
func SceneDistanceKm(a, b Vec3) float64 {
	return a.Distance(b) * SceneScaleKm
}

// Geodetic is a sub-satellite point: latitude/longitude in degrees and
// altitude above the mean Earth radius in kilometers.
type Geodetic struct {
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	AltitudeKm   float64 `json:"altitude_km"`
}

// ToGeodetic projects an ECI position (km) to the rotating Earth at time t.
// Spherical Earth model: latitude from the Z component, longitude from the
// equatorial angle minus Greenwich sidereal time, altitude as |r| minus the
// mean radius.
func ToGeodetic(eci Vec3, t time.Time) Geodetic {
	r := eci.Norm()
	lat := math.Asin(eci.Z / r)

	lon := math.Atan2(eci.Y, eci.X) - GMST(t)
	// Normalize longitude to (-π, π].
	lon = math.Mod(lon, 2*math.Pi)
	if lon > math.Pi {
		lon -= 2 * math.Pi
	} else if lon <= -math.Pi {
		lon += 2 * math.Pi
	}

	return Geodetic{
		LatitudeDeg:  lat * 180 / math.Pi,
		LongitudeDeg: lon * 180 / math.Pi,
		AltitudeKm:   r - EarthRadiusKm,
	}
}
