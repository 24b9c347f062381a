// Package session holds the tracking state machine: a loaded catalog, the
// selected record and the most recent sample set.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/timegrid"
	"github.com/star/orbitrack/internal/tle"
)

var tracer = otel.Tracer("github.com/star/orbitrack/internal/session")

var (
	// ErrIndexOutOfRange matches every IndexError.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrNoSelection is returned by Compute before a record is selected.
	ErrNoSelection = errors.New("no satellite selected")
	// ErrNotReady is returned when a query needs a step that has not run yet.
	ErrNotReady = errors.New("compute orbit first")
)

// IndexError reports a selection outside the catalog.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// State is the session lifecycle position.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateSelected
	StateComputed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateSelected:
		return "selected"
	case StateComputed:
		return "computed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Snapshot is an immutable view of the session published after every
// transition. Selected is -1 when nothing is selected.
type Snapshot struct {
	State     State
	Catalog   tle.Catalog
	Selected  int
	Samples   *propagation.SampleSet
	UpdatedAt time.Time
}

// Record returns the selected record, if any.
func (s *Snapshot) Record() (tle.Record, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Catalog) {
		return tle.Record{}, false
	}
	return s.Catalog[s.Selected], true
}

// Session serializes transitions with a mutex and publishes a Snapshot for
// lock-free readers.
type Session struct {
	mu       sync.Mutex
	state    State
	catalog  tle.Catalog
	selected int
	samples  *propagation.SampleSet

	snap   atomic.Pointer[Snapshot]
	logger *slog.Logger
}

// New creates an empty session.
func New(logger *slog.Logger) *Session {
	s := &Session{
		selected: -1,
		logger:   logger.With("component", "session"),
	}
	s.publish()
	return s
}

// publish stores a snapshot of the current fields. Callers hold s.mu, except
// New.
func (s *Session) publish() {
	s.snap.Store(&Snapshot{
		State:     s.state,
		Catalog:   s.catalog,
		Selected:  s.selected,
		Samples:   s.samples,
		UpdatedAt: time.Now(),
	})
	n := 0
	if s.samples != nil {
		n = s.samples.Len()
	}
	metrics.SetSamples(n)
}

// Snapshot returns the most recently published view.
func (s *Session) Snapshot() *Snapshot {
	return s.snap.Load()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.Snapshot().State
}

// Catalog returns the loaded catalog, nil when empty.
func (s *Session) Catalog() tle.Catalog {
	return s.Snapshot().Catalog
}

// LoadCatalog replaces the catalog and clears any selection and samples.
func (s *Session) LoadCatalog(c tle.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalog = slices.Clip(slices.Clone(c))
	if s.catalog == nil {
		s.catalog = tle.Catalog{}
	}
	s.selected = -1
	s.samples = nil
	s.state = StateLoaded
	s.publish()

	metrics.SetCatalogSize(len(s.catalog))
	s.logger.Info("catalog loaded", "satellites", len(s.catalog))
}

// Select picks the record at index i and clears any samples.
func (s *Session) Select(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.catalog) {
		return &IndexError{Index: i, Len: len(s.catalog)}
	}

	s.selected = i
	s.samples = nil
	s.state = StateSelected
	s.publish()

	s.logger.Info("satellite selected", "index", i, "satellite", s.catalog[i].Name)
	return nil
}

// Selected returns the selected record.
func (s *Session) Selected() (tle.Record, error) {
	snap := s.Snapshot()
	if snap.State != StateSelected && snap.State != StateComputed {
		return tle.Record{}, ErrNotReady
	}
	rec, _ := snap.Record()
	return rec, nil
}

// Samples returns the most recent sample set.
func (s *Session) Samples() (*propagation.SampleSet, error) {
	snap := s.Snapshot()
	if snap.State != StateComputed {
		return nil, ErrNotReady
	}
	return snap.Samples, nil
}

// Compute evaluates the selected record over grid and stores the result.
// A failed computation leaves the session unchanged.
func (s *Session) Compute(ctx context.Context, grid timegrid.Grid, oracle propagation.Oracle) (*propagation.SampleSet, error) {
	ctx, span := tracer.Start(ctx, "session.Compute")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSelected && s.state != StateComputed {
		return nil, ErrNoSelection
	}
	if len(grid) == 0 {
		return nil, timegrid.ErrEmptyGrid
	}

	rec := s.catalog[s.selected]
	span.SetAttributes(
		attribute.String("satellite", rec.Name),
		attribute.Int("grid_points", len(grid)),
	)

	set, err := oracle.Propagate(ctx, rec, grid)
	if err == nil && set.Len() != len(grid) {
		err = fmt.Errorf("oracle returned %d samples for %d grid points", set.Len(), len(grid))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("compute failed", "satellite", rec.Name, "error", err)
		return nil, err
	}

	s.samples = set
	s.state = StateComputed
	s.publish()

	s.logger.Info("orbit computed",
		"satellite", rec.Name,
		"points", set.Len(),
		"from", grid.Start().Format(time.RFC3339),
		"to", grid.End().Format(time.RFC3339),
	)
	return set, nil
}
