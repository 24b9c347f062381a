package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/timegrid"
	"github.com/star/orbitrack/internal/tle"
)

var tracer = otel.Tracer("github.com/star/orbitrack/internal/propagation")

// sgp4Cache holds the initialized propagator for the most recently used
// element set. Immutable after construction.
type sgp4Cache struct {
	rec  tle.Record
	prop *SGP4Propagator
}

// SGP4Oracle implements Oracle with go-satellite and a worker pool.
type SGP4Oracle struct {
	pool   *WorkerPool
	config Config
	logger *slog.Logger
	sgp4   atomic.Pointer[sgp4Cache]
	sgp4Mu sync.Mutex // serializes cache rebuilds
}

// NewSGP4Oracle creates an SGP4-backed oracle.
func NewSGP4Oracle(config Config, logger *slog.Logger) *SGP4Oracle {
	if config.Workers < 1 {
		config.Workers = runtime.NumCPU()
	}
	return &SGP4Oracle{
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// cachedProp returns an initialized propagator for rec, reusing the previous
// one when the element set is unchanged (double-checked locking).
func (o *SGP4Oracle) cachedProp(rec tle.Record) (*SGP4Propagator, error) {
	if c := o.sgp4.Load(); c != nil && c.rec == rec {
		return c.prop, nil
	}

	o.sgp4Mu.Lock()
	defer o.sgp4Mu.Unlock()

	if c := o.sgp4.Load(); c != nil && c.rec == rec {
		return c.prop, nil
	}

	prop, err := NewSGP4Propagator(rec.Name, rec.Line1, rec.Line2)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("sgp4 propagator initialized", "satellite", rec.Name)
	o.sgp4.Store(&sgp4Cache{rec: rec, prop: prop})
	return prop, nil
}

// Propagate evaluates rec at every grid instant.
func (o *SGP4Oracle) Propagate(ctx context.Context, rec tle.Record, grid timegrid.Grid) (*SampleSet, error) {
	ctx, span := tracer.Start(ctx, "propagation.Propagate")
	defer span.End()
	span.SetAttributes(
		attribute.String("satellite", rec.Name),
		attribute.Int("grid_points", len(grid)),
	)

	if len(grid) == 0 {
		return nil, timegrid.ErrEmptyGrid
	}

	prop, err := o.cachedProp(rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	samples, err := o.pool.SampleGrid(ctx, prop, grid)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("propagating %s: %w", rec.Name, err)
	}

	metrics.RecordPropagation(duration)

	o.logger.Debug("propagation complete",
		"satellite", rec.Name,
		"points", len(samples),
		"from", grid.Start().Format(time.RFC3339),
		"to", grid.End().Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)

	return &SampleSet{Satellite: rec.Name, Samples: samples}, nil
}
