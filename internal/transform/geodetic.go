package transform

import "math"

// WGS-84 ellipsoid, km.
const (
	wgs84A  = 6378.137
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// Geodetic is a point above the WGS-84 ellipsoid.
type Geodetic struct {
	LatDeg, LonDeg float64
	AltKm          float64
}

// ECEFToGeodetic converts an Earth-fixed position (km) to geodetic latitude,
// longitude in (-180, 180] and altitude, iterating Bowring's formula.
// Converges in 2-3 iterations for Earth orbits.
func ECEFToGeodetic(ecef Vector) Geodetic {
	lon := math.Atan2(ecef.Y, ecef.X)
	p := math.Hypot(ecef.X, ecef.Y)

	lat := math.Atan2(ecef.Z, p*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(ecef.Z+wgs84E2*n*sinLat, p)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(ecef.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltKm:  alt,
	}
}

// GeodeticToECEF is the closed-form inverse of ECEFToGeodetic.
func GeodeticToECEF(g Geodetic) Vector {
	lat := g.LatDeg * math.Pi / 180.0
	lon := g.LonDeg * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Vector{
		X: (n + g.AltKm) * cosLat * math.Cos(lon),
		Y: (n + g.AltKm) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + g.AltKm) * sinLat,
	}
}
