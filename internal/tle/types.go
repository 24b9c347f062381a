package tle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record represents a single satellite's named two-line element set.
// Line1 always begins with "1 " and Line2 with "2 ".
type Record struct {
	Name  string
	Line1 string
	Line2 string
}

// NORADID extracts the catalog number from line 1 (columns 3-7).
func (r Record) NORADID() (int, error) {
	if len(r.Line1) < 7 {
		return 0, fmt.Errorf("line1 too short for NORAD ID: %d chars", len(r.Line1))
	}
	noradStr := strings.TrimSpace(r.Line1[2:7])
	id, err := strconv.Atoi(noradStr)
	if err != nil {
		return 0, fmt.Errorf("invalid NORAD ID %q: %w", noradStr, err)
	}
	return id, nil
}

// Epoch extracts the element set epoch from line 1 (columns 19-32).
func (r Record) Epoch() (time.Time, error) {
	if len(r.Line1) < 32 {
		return time.Time{}, fmt.Errorf("line1 too short for epoch: %d chars", len(r.Line1))
	}
	return parseEpoch(strings.TrimSpace(r.Line1[18:32]))
}

// Catalog is an ordered set of records in the order they appeared in the source text.
type Catalog []Record

// Names returns the display names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, r := range c {
		names[i] = r.Name
	}
	return names
}

// Format serializes the catalog back into three-line text.
func (c Catalog) Format() string {
	var b strings.Builder
	for _, r := range c {
		b.WriteString(r.Name)
		b.WriteByte('\n')
		b.WriteString(r.Line1)
		b.WriteByte('\n')
		b.WriteString(r.Line2)
		b.WriteByte('\n')
	}
	return b.String()
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	t = t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour)))

	return t, nil
}
