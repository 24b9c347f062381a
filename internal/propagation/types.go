package propagation

import (
	"context"
	"time"

	"github.com/star/orbitrack/internal/timegrid"
	"github.com/star/orbitrack/internal/tle"
)

// Sample is one propagated point of a trajectory.
type Sample struct {
	Time       time.Time  `json:"time"`
	LatDeg     float64    `json:"latitude"`
	LonDeg     float64    `json:"longitude"`
	AltKm      float64    `json:"altitude_km"`
	PositionKm [3]float64 `json:"position_km"` // geocentric TEME (X, Y, Z)
}

// SampleSet holds a trajectory whose entries are index-aligned with the
// time grid that produced it.
type SampleSet struct {
	Satellite string   `json:"satellite"`
	Samples   []Sample `json:"samples"`
}

// Len returns the number of samples.
func (s *SampleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Samples)
}

// Latitudes returns the sub-point latitudes in degrees.
func (s *SampleSet) Latitudes() []float64 {
	out := make([]float64, s.Len())
	for i, p := range s.Samples {
		out[i] = p.LatDeg
	}
	return out
}

// Longitudes returns the sub-point longitudes in degrees.
func (s *SampleSet) Longitudes() []float64 {
	out := make([]float64, s.Len())
	for i, p := range s.Samples {
		out[i] = p.LonDeg
	}
	return out
}

// Oracle turns an element set and a time grid into a trajectory.
type Oracle interface {
	Propagate(ctx context.Context, rec tle.Record, grid timegrid.Grid) (*SampleSet, error)
}

// Config holds oracle configuration.
type Config struct {
	Workers int // worker pool size (default: runtime.NumCPU())
}
