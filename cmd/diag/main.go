// Command diag propagates one satellite from an element set file and prints
// a summary, without the interactive shell.
//
//	diag <file> [n] [hours]
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/star/orbitrack/internal/acquire"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/session"
	"github.com/star/orbitrack/internal/timegrid"
	"github.com/star/orbitrack/internal/tle"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	os.Exit(run(os.Args[1:], os.Stdout, logger, time.Now()))
}

// run executes one diagnostic pass and returns the process exit code. The
// file path is taken as given, relative to the working directory.
func run(args []string, out io.Writer, logger *slog.Logger, now time.Time) int {
	if len(args) < 1 {
		fmt.Fprintln(out, "usage: diag <file> [n] [hours]")
		return 2
	}

	index, hours := 1, 24.0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintln(out, "ERROR satellite number:", err)
			return 2
		}
		index = n
	}
	if len(args) > 2 {
		h, err := timegrid.ParseHours(args[2])
		if err != nil {
			fmt.Fprintln(out, "ERROR:", err)
			return 2
		}
		hours = h
	}

	acq := acquire.NewManager(acquire.Config{}, logger)
	src, err := acq.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(out, "ERROR reading element sets:", err)
		return 1
	}

	catalog, err := tle.Parse(src.Text)
	if err != nil {
		fmt.Fprintln(out, "ERROR parsing element sets:", err)
		return 1
	}
	fmt.Fprintf(out, "Loaded %d records from %s\n", len(catalog), src.Label)

	sess := session.New(logger)
	sess.LoadCatalog(catalog)
	if err := sess.Select(index - 1); err != nil {
		fmt.Fprintln(out, "ERROR:", err)
		return 1
	}
	rec, _ := sess.Selected()
	if id, err := rec.NORADID(); err == nil {
		epoch, _ := rec.Epoch()
		fmt.Fprintf(out, "Selected %s (NORAD %d) epoch %s\n", rec.Name, id, epoch.Format(time.RFC3339))
	}

	grid, err := timegrid.Generate(now.UTC().Truncate(time.Second), hours, timegrid.DefaultStep)
	if err != nil {
		fmt.Fprintln(out, "ERROR:", err)
		return 1
	}

	oracle := propagation.NewSGP4Oracle(propagation.Config{}, logger)
	start := time.Now()
	set, err := sess.Compute(context.Background(), grid, oracle)
	if err != nil {
		fmt.Fprintln(out, "ERROR propagating:", err)
		return 1
	}
	fmt.Fprintf(out, "Computed %d points in %v\n", set.Len(), time.Since(start).Round(time.Millisecond))

	minAlt, maxAlt := set.Samples[0].AltKm, set.Samples[0].AltKm
	for _, s := range set.Samples[1:] {
		minAlt = min(minAlt, s.AltKm)
		maxAlt = max(maxAlt, s.AltKm)
	}
	first, last := set.Samples[0], set.Samples[set.Len()-1]
	fmt.Fprintf(out, "  start %s lat=%.3f lon=%.3f alt=%.1f km\n", first.Time.Format(time.RFC3339), first.LatDeg, first.LonDeg, first.AltKm)
	fmt.Fprintf(out, "  end   %s lat=%.3f lon=%.3f alt=%.1f km\n", last.Time.Format(time.RFC3339), last.LatDeg, last.LonDeg, last.AltKm)
	fmt.Fprintf(out, "  altitude range %.1f-%.1f km\n", minAlt, maxAlt)
	return 0
}
