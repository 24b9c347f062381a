package acquire

import (
	"fmt"
	"sort"
)

const celestrakGP = "https://celestrak.org/NORAD/elements/gp.php?GROUP=%s&FORMAT=tle"

// presets maps short names to CelesTrak GP groups.
var presets = map[string]string{
	"starlink": "starlink",
	"noaa":     "noaa",
	"gps-ops":  "gps-ops",
	"stations": "stations",
	"geo":      "geo",
	"weather":  "weather",
}

// Preset returns the download URL for a named source.
func Preset(name string) (string, bool) {
	group, ok := presets[name]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(celestrakGP, group), true
}

// Presets lists the known source names in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
