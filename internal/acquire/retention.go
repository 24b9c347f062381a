package acquire

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// savedFile is a completed download found on disk.
type savedFile struct {
	name string
	ts   time.Time
	seq  int
}

// commit moves a finished temp file to {label}_{YYYYMMDD_HHMMSS}.tle. When
// that name is taken by a download in the same second, _2, _3, ... is
// appended before the extension.
func (m *Manager) commit(tmpPath, label string) (string, error) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	stamp := m.now().Format(timestampLayout)
	for seq := 1; ; seq++ {
		name := fmt.Sprintf("%s_%s.tle", label, stamp)
		if seq > 1 {
			name = fmt.Sprintf("%s_%s_%d.tle", label, stamp, seq)
		}
		final := filepath.Join(m.config.Root, name)

		_, err := os.Lstat(final)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", &IOError{Op: "stat", Path: final, Err: err}
		}
		if err := os.Rename(tmpPath, final); err != nil {
			return "", &IOError{Op: "rename", Path: final, Err: err}
		}
		return final, nil
	}
}

// parseSaved splits the part of a saved name after "{label}_" into its
// timestamp and collision sequence (1 when there is no suffix).
func parseSaved(rest string) (time.Time, int, bool) {
	stamp, seq := rest, 1
	if len(rest) > len(timestampLayout) {
		if rest[len(timestampLayout)] != '_' {
			return time.Time{}, 0, false
		}
		n, err := strconv.Atoi(rest[len(timestampLayout)+1:])
		if err != nil || n < 2 {
			return time.Time{}, 0, false
		}
		stamp, seq = rest[:len(timestampLayout)], n
	}
	ts, err := time.ParseInLocation(timestampLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, 0, false
	}
	return ts, seq, true
}

// Downloads lists the saved files for label, oldest first.
func (m *Manager) Downloads(label string) ([]string, error) {
	files, err := m.listDownloads(sanitizeLabel(label))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

// listDownloads returns files named {label}_{YYYYMMDD_HHMMSS}[_N].tle sorted
// by their embedded timestamp and sequence.
func (m *Manager) listDownloads(label string) ([]savedFile, error) {
	entries, err := os.ReadDir(m.config.Root)
	if err != nil {
		return nil, &IOError{Op: "scan", Path: m.config.Root, Err: err}
	}

	prefix := label + "_"
	var files []savedFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".tle") {
			continue
		}
		ts, seq, ok := parseSaved(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".tle"))
		if !ok {
			continue
		}
		files = append(files, savedFile{name: name, ts: ts, seq: seq})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].ts.Equal(files[j].ts) {
			return files[i].ts.Before(files[j].ts)
		}
		return files[i].seq < files[j].seq
	})
	return files, nil
}

// prune removes the oldest downloads for label beyond KeepDownloads.
func (m *Manager) prune(label string) error {
	if m.config.KeepDownloads <= 0 {
		return nil
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	files, err := m.listDownloads(label)
	if err != nil {
		return err
	}
	if len(files) <= m.config.KeepDownloads {
		return nil
	}

	for _, f := range files[:len(files)-m.config.KeepDownloads] {
		if err := os.Remove(filepath.Join(m.config.Root, f.name)); err != nil {
			return fmt.Errorf("pruning download %s: %w", f.name, err)
		}
		m.logger.Debug("pruned old download", "file", f.name)
	}
	return nil
}
