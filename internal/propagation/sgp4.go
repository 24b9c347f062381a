package propagation

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/orbitrack/internal/transform"
)

// SGP4 is provided by github.com/joshuaferrara/go-satellite.
//
// Propagate() takes Satellite by value so SGP4 error codes are not visible
// to the caller. Failures are detected from the output instead: NaN/Inf or a
// radius outside transform.MinOrbitRadiusKm..MaxOrbitRadiusKm.

// SGP4Propagator wraps an initialized go-satellite model for one element set.
// It is safe for concurrent use.
type SGP4Propagator struct {
	sat  satellite.Satellite
	name string
}

// NewSGP4Propagator initializes SGP4 from the two element lines.
//
// The lines are validated first because go-satellite calls log.Fatal on
// malformed input.
func NewSGP4Propagator(name, line1, line2 string) (*SGP4Propagator, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for %s: %w", name, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %s: code=%d %s", name, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, name: name}, nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if !strings.HasPrefix(line1, "1 ") {
		return fmt.Errorf("line1 must start with \"1 \", got %q", line1[:2])
	}
	if !strings.HasPrefix(line2, "2 ") {
		return fmt.Errorf("line2 must start with \"2 \", got %q", line2[:2])
	}
	return nil
}

// PositionTEME returns the TEME position (km) at t, truncated to whole seconds.
func (p *SGP4Propagator) PositionTEME(t time.Time) (transform.Vector, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	v := transform.Vector{X: pos.X, Y: pos.Y, Z: pos.Z}
	if !v.Finite() {
		return transform.Vector{}, fmt.Errorf("sgp4 propagation failed for %s at %s: output is NaN/Inf", p.name, t.Format(time.RFC3339))
	}
	if !transform.PlausibleOrbit(v) {
		return transform.Vector{}, fmt.Errorf("sgp4 propagation failed for %s at %s: unreasonable position magnitude %.1f km", p.name, t.Format(time.RFC3339), v.Norm())
	}
	return v, nil
}

// Sample propagates to t and derives the sub-satellite point.
func (p *SGP4Propagator) Sample(t time.Time) (Sample, error) {
	teme, err := p.PositionTEME(t)
	if err != nil {
		return Sample{}, err
	}

	// Match the whole-second instant SGP4 was evaluated at.
	gmst := transform.GMST(t.UTC().Truncate(time.Second))
	geo := transform.ECEFToGeodetic(transform.TEMEToECEF(teme, gmst))
	return Sample{
		Time:       t,
		LatDeg:     geo.LatDeg,
		LonDeg:     geo.LonDeg,
		AltKm:      geo.AltKm,
		PositionKm: teme.Array(),
	}, nil
}
