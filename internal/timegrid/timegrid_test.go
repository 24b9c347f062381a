package timegrid

import (
	"errors"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

func TestGenerateOneHour(t *testing.T) {
	grid, err := Generate(t0, 1, DefaultStep)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// 0, 5, ..., 60 minutes = 13 points.
	if len(grid) != 13 {
		t.Fatalf("got %d points, want 13", len(grid))
	}
	for i, ts := range grid {
		want := t0.Add(time.Duration(i) * DefaultStep)
		if !ts.Equal(want) {
			t.Errorf("point %d = %v, want %v", i, ts, want)
		}
	}
	if !grid.End().Equal(t0.Add(time.Hour)) {
		t.Errorf("End = %v, want boundary included", grid.End())
	}
}

func TestGenerateInclusiveScan(t *testing.T) {
	tests := []struct {
		name    string
		hours   float64
		step    time.Duration
		want    int
		wantEnd time.Duration
	}{
		{"24 hours default step", 24, DefaultStep, 289, 24 * time.Hour},
		{"boundary between steps", 0.1, DefaultStep, 2, 5 * time.Minute},
		{"window shorter than a step", 1.0 / 60, DefaultStep, 1, 0},
		{"exact multiple", 0.25, DefaultStep, 4, 15 * time.Minute},
		{"custom step", 1, 7 * time.Minute, 9, 56 * time.Minute},
		{"ten minute steps", 0.5, 10 * time.Minute, 4, 30 * time.Minute},
		{"fractional hours", 1.5, 30 * time.Minute, 4, 90 * time.Minute},
		{"just under boundary", 59.0 / 60, DefaultStep, 12, 55 * time.Minute},
		{"thirteen steps", 13.0 / 12, DefaultStep, 14, 65 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid, err := Generate(t0, tt.hours, tt.step)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if len(grid) != tt.want {
				t.Fatalf("got %d points, want %d", len(grid), tt.want)
			}
			if !grid.Start().Equal(t0) {
				t.Errorf("Start = %v, want %v", grid.Start(), t0)
			}
			if got := grid.End().Sub(t0); got != tt.wantEnd {
				t.Errorf("End offset = %v, want %v", got, tt.wantEnd)
			}
			for i := 1; i < len(grid); i++ {
				if !grid[i].After(grid[i-1]) {
					t.Fatalf("grid not strictly increasing at %d", i)
				}
				if grid[i].Sub(grid[i-1]) != tt.step {
					t.Fatalf("step at %d = %v, want %v", i, grid[i].Sub(grid[i-1]), tt.step)
				}
			}
		})
	}
}

// TestGenerateStepMultiples checks that a window of exactly k steps, given
// as an inexact float number of hours, still ends on its boundary.
func TestGenerateStepMultiples(t *testing.T) {
	for k := 1; k <= 288; k++ {
		hours := float64(k) / 12
		grid, err := Generate(t0, hours, DefaultStep)
		if err != nil {
			t.Fatalf("Generate(%v) failed: %v", hours, err)
		}
		if len(grid) != k+1 {
			t.Errorf("hours=%v: got %d points, want %d", hours, len(grid), k+1)
			continue
		}
		if got, want := grid.End().Sub(t0), time.Duration(k)*DefaultStep; got != want {
			t.Errorf("hours=%v: End offset = %v, want %v", hours, got, want)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(t0, 3, DefaultStep)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(t0, 3, DefaultStep)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("point %d differs", i)
		}
	}
}

func TestGenerateNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	grid, err := Generate(t0.In(loc), 1, DefaultStep)
	if err != nil {
		t.Fatal(err)
	}
	if grid.Start().Location() != time.UTC {
		t.Errorf("location = %v, want UTC", grid.Start().Location())
	}
	if !grid.Start().Equal(t0) {
		t.Errorf("Start = %v, want %v", grid.Start(), t0)
	}
}

func TestGenerateInvalidDuration(t *testing.T) {
	for _, hours := range []float64{0, -1, -0.001, math.NaN(), math.Inf(1), 3e6, 1e7} {
		_, err := Generate(t0, hours, DefaultStep)
		if !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Generate(hours=%v) error = %v, want ErrInvalidDuration", hours, err)
		}
		var de *DurationError
		if errors.As(err, &de) && !math.IsNaN(hours) && de.Value != hours {
			t.Errorf("DurationError.Value = %v, want %v", de.Value, hours)
		}
	}
}

func TestGenerateInvalidStep(t *testing.T) {
	for _, step := range []time.Duration{0, -time.Minute} {
		if _, err := Generate(t0, 1, step); !errors.Is(err, ErrInvalidStep) {
			t.Errorf("Generate(step=%v) error = %v, want ErrInvalidStep", step, err)
		}
	}
}

func TestParseHours(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"24", 24, false},
		{" 1.5 ", 1.5, false},
		{"0.25", 0.25, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"1e7", 0, true},
		{"2.5e6", 2.5e6, false},
		{"", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHours(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDuration) {
					t.Fatalf("ParseHours(%q) error = %v, want ErrInvalidDuration", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHours(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseHours(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEmptyGridBounds(t *testing.T) {
	var g Grid
	if !g.Start().IsZero() || !g.End().IsZero() {
		t.Error("empty grid bounds should be zero times")
	}
}
