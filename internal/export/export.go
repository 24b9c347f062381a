// Package export writes sample sets as CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitrack/internal/propagation"
)

// Format selects the output encoding.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// csvHeader is the first row of every CSV export.
var csvHeader = []string{"time", "latitude_deg", "longitude_deg", "altitude_km", "x_km", "y_km", "z_km"}

// FormatFromPath picks JSON for a .json extension and CSV otherwise.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return CSV
}

// Write encodes set to w.
func Write(w io.Writer, format Format, set *propagation.SampleSet) error {
	if set == nil {
		return fmt.Errorf("no samples to export")
	}
	switch format {
	case CSV:
		return writeCSV(w, set)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func writeCSV(w io.Writer, set *propagation.SampleSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for _, s := range set.Samples {
		row := []string{
			s.Time.UTC().Format(time.RFC3339),
			f(s.LatDeg),
			f(s.LonDeg),
			f(s.AltKm),
			f(s.PositionKm[0]),
			f(s.PositionKm[1]),
			f(s.PositionKm[2]),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates path and writes set in the format implied by its
// extension.
func WriteFile(path string, set *propagation.SampleSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := Write(f, FormatFromPath(path), set); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
