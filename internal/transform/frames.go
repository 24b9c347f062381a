// Package transform converts SGP4 output into Earth-fixed and geodetic coordinates.
//
// TEME → ECEF uses a GMST-only rotation (no polar motion, no equation of the
// equinoxes). The error is tens of meters, well below what a ground track or
// orbit plot can show.
package transform

import "math"

// Vector is a Cartesian position in kilometers.
type Vector struct {
	X, Y, Z float64
}

// Norm returns the vector magnitude in kilometers.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Finite reports whether every component is a finite number.
func (v Vector) Finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Array returns the components as [x, y, z].
func (v Vector) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Orbit radius bounds for an Earth-orbiting satellite, in km.
const (
	MinOrbitRadiusKm = 6200.0
	MaxOrbitRadiusKm = 50000.0
)

// PlausibleOrbit reports whether v is finite and between the surface and
// beyond-GEO radius bounds.
func PlausibleOrbit(v Vector) bool {
	if !v.Finite() {
		return false
	}
	r := v.Norm()
	return r >= MinOrbitRadiusKm && r <= MaxOrbitRadiusKm
}

// TEMEToECEF rotates a TEME position about the Z axis by the given GMST angle.
//
//	r_ECEF = R3(θ) · r_TEME
func TEMEToECEF(teme Vector, gmst float64) Vector {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	return Vector{
		X: teme.X*cosG + teme.Y*sinG,
		Y: -teme.X*sinG + teme.Y*cosG,
		Z: teme.Z,
	}
}
