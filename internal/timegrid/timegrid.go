// Package timegrid builds fixed-step timestamp sequences over a prediction window.
package timegrid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultStep is the sampling interval used when none is configured.
const DefaultStep = 5 * time.Minute

// MaxHours approximates the longest window a time.Duration can hold (about
// 292 years).
const MaxHours = float64(math.MaxInt64) / float64(time.Hour)

var (
	// ErrInvalidDuration matches every DurationError.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidStep is returned for a non-positive step.
	ErrInvalidStep = errors.New("step must be positive")
	// ErrEmptyGrid is returned by consumers that require at least one point.
	ErrEmptyGrid = errors.New("time grid is empty")
)

// DurationError reports a prediction window that is not a positive number of
// hours or is too long to represent as a time.Duration.
type DurationError struct {
	Input string // raw user text, empty when the value came in numerically
	Value float64
}

func (e *DurationError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("invalid duration %q: must be a positive number of hours up to %.0f", e.Input, MaxHours)
	}
	return fmt.Sprintf("invalid duration %v hours: must be positive and at most %.0f", e.Value, MaxHours)
}

func (e *DurationError) Unwrap() error { return ErrInvalidDuration }

// Grid is a strictly increasing sequence of UTC instants with a fixed step.
type Grid []time.Time

// Start returns the first instant, or the zero time for an empty grid.
func (g Grid) Start() time.Time {
	if len(g) == 0 {
		return time.Time{}
	}
	return g[0]
}

// End returns the last instant, or the zero time for an empty grid.
func (g Grid) End() time.Time {
	if len(g) == 0 {
		return time.Time{}
	}
	return g[len(g)-1]
}

// Generate returns start, start+step, start+2·step, … for every instant that
// is not after start+hours. The boundary itself is included when it falls
// exactly on a step.
func Generate(start time.Time, hours float64, step time.Duration) (Grid, error) {
	window, ok := windowOf(hours)
	if !ok {
		return nil, &DurationError{Value: hours}
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStep, step)
	}

	start = start.UTC()
	end := start.Add(window)

	var grid Grid
	for t := start; !t.After(end); t = t.Add(step) {
		grid = append(grid, t)
	}
	return grid, nil
}

// windowOf converts hours to a Duration rounded to the nearest nanosecond.
// It fails for non-positive, non-finite or unrepresentable windows.
func windowOf(hours float64) (time.Duration, bool) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return 0, false
	}
	ns := math.Round(hours * float64(time.Hour))
	if ns >= float64(math.MaxInt64) {
		return 0, false
	}
	return time.Duration(ns), true
}

// ParseHours converts user text into a positive number of hours.
func ParseHours(s string) (float64, error) {
	s = strings.TrimSpace(s)
	hours, err := strconv.ParseFloat(s, 64)
	if _, ok := windowOf(hours); err != nil || !ok {
		return 0, &DurationError{Input: s, Value: hours}
	}
	return hours, nil
}
