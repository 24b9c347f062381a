// Package tle parses three-line NORAD element sets into an ordered catalog.
package tle

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrFormat matches every FormatError.
var ErrFormat = errors.New("tle format error")

// FormatError reports malformed element-set text.
// Index is the 0-based triple index of the offending entry, or -1 when the
// line count itself is wrong.
type FormatError struct {
	Index int
	Lines int
	Msg   string
}

func (e *FormatError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s (%d lines)", e.Msg, e.Lines)
	}
	return e.Msg
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// Parse reads three-line NORAD TLE text and returns the records in source order.
// Any structural violation fails the whole parse; nothing is skipped.
func Parse(text string) (Catalog, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines)%3 != 0 {
		return nil, &FormatError{
			Index: -1,
			Lines: len(lines),
			Msg:   "line count not a multiple of three",
		}
	}

	catalog := make(Catalog, 0, len(lines)/3)
	for i := 0; i < len(lines); i += 3 {
		name, line1, line2 := lines[i], lines[i+1], lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			pos := i / 3
			return nil, &FormatError{
				Index: pos,
				Lines: len(lines),
				Msg:   fmt.Sprintf("invalid element line at position %d", pos),
			}
		}

		catalog = append(catalog, Record{Name: name, Line1: line1, Line2: line2})
	}

	return catalog, nil
}

// ParseReader reads all of r and parses it.
func ParseReader(r io.Reader) (Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}
	return Parse(string(data))
}
