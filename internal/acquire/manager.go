// Package acquire obtains element set text from local files and remote URLs.
//
// Downloads run on their own goroutine and report back through a Job: zero or
// more progress callbacks followed by exactly one Outcome. Nothing in this
// package touches a tracking session; the caller decides what to do with a
// finished file.
package acquire

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Defaults applied to zero Config fields.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 50 << 20
	DefaultChunkSize    = 8 << 10
)

// Config controls where files live and how downloads behave.
type Config struct {
	Root         string
	Timeout      time.Duration
	MaxBodyBytes int64
	ChunkSize    int
	// KeepDownloads bounds the saved files per label; 0 keeps all.
	KeepDownloads int
}

// Source is the text of an element set file.
type Source struct {
	Text  string
	Label string
	Path  string
}

// Manager reads, lists and downloads element set files under one root
// directory.
type Manager struct {
	config Config
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	saveMu sync.Mutex // serializes naming and pruning of saved downloads
}

// NewManager creates a Manager. Zero Config fields take their defaults.
func NewManager(config Config, logger *slog.Logger) *Manager {
	if config.Root == "" {
		config.Root = "."
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	return &Manager{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With("component", "acquire"),
		now:    time.Now,
	}
}

// Root returns the directory used for scans, relative reads and downloads.
func (m *Manager) Root() string {
	return m.config.Root
}

// Resolve maps a relative path under the root directory. Absolute paths are
// returned unchanged.
func (m *Manager) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.config.Root, path)
}

// ReadFile reads a whole element set file. Relative paths resolve under the
// root directory.
func (m *Manager) ReadFile(path string) (Source, error) {
	full := m.Resolve(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return Source{}, &IOError{Op: "read", Path: full, Err: err}
	}
	if !utf8.Valid(data) {
		return Source{}, &IOError{Op: "read", Path: full, Err: errInvalidUTF8}
	}

	base := filepath.Base(full)
	return Source{
		Text:  string(data),
		Label: strings.TrimSuffix(base, filepath.Ext(base)),
		Path:  full,
	}, nil
}

// Scan lists regular files (or symlinks to them) in the root directory with a .tle or .txt
// extension, compared case-insensitively, sorted by name.
func (m *Manager) Scan() ([]string, error) {
	entries, err := os.ReadDir(m.config.Root)
	if err != nil {
		return nil, &IOError{Op: "scan", Path: m.config.Root, Err: err}
	}

	files := []string{}
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".tle", ".txt":
		default:
			continue
		}
		if m.isRegular(e) {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

// isRegular reports whether e is a regular file, following symlinks.
func (m *Manager) isRegular(e fs.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(m.config.Root, e.Name()))
	return err == nil && info.Mode().IsRegular()
}

// sanitizeLabel makes label safe to embed in a file name.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, label)
	if label == "" || label == "." || label == ".." {
		return "download"
	}
	return label
}
