package acquire

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const issText = "ISS (ZARYA)\n" +
	"1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n" +
	"2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"

var fixedNow = time.Date(2024, 4, 10, 15, 4, 5, 0, time.Local)

func newTestManager(t *testing.T, config Config) *Manager {
	t.Helper()
	if config.Root == "" {
		config.Root = t.TempDir()
	}
	m := NewManager(config, testLogger)
	m.now = func() time.Time { return fixedNow }
	return m
}

func waitOutcome(t *testing.T, job *Job) Outcome {
	t.Helper()
	select {
	case out := <-job.Done():
		return out
	case <-time.After(10 * time.Second):
		t.Fatal("download did not finish")
		return Outcome{}
	}
}

// assertNoPartials fails if a temp file was left behind in dir.
func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("unexpected file left in root: %s", e.Name())
	}
}

func TestDownloadSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(issText)))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(issText))
	}))
	defer server.Close()

	m := newTestManager(t, Config{ChunkSize: 16})

	var progress []float64
	job := m.Download(context.Background(), server.URL, "ISS", func(pct float64) {
		progress = append(progress, pct)
	})
	out := waitOutcome(t, job)
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}

	wantPath := filepath.Join(m.Root(), "ISS_20240410_150405.tle")
	if out.Path != wantPath {
		t.Errorf("Path = %q, want %q", out.Path, wantPath)
	}
	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != issText {
		t.Errorf("file content mismatch: got %d bytes, want %d", len(data), len(issText))
	}
	if out.Bytes != int64(len(issText)) || job.Bytes() != int64(len(issText)) {
		t.Errorf("Bytes = %d/%d, want %d", out.Bytes, job.Bytes(), len(issText))
	}

	// Progress is read after Done, so the worker's writes are visible.
	if len(progress) < 2 {
		t.Fatalf("expected several progress values, got %v", progress)
	}
	for i, p := range progress {
		if p < 0 || p > 100 {
			t.Errorf("progress[%d] = %v out of range", i, p)
		}
		if i > 0 && p < progress[i-1] {
			t.Errorf("progress decreased: %v -> %v", progress[i-1], p)
		}
	}
	if last := progress[len(progress)-1]; last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}

	files, err := m.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "ISS_20240410_150405.tle" {
		t.Errorf("Scan after download = %v", files)
	}
}

func TestDownloadUnknownLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, line := range strings.SplitAfter(issText, "\n") {
			w.Write([]byte(line))
			flusher.Flush()
		}
	}))
	defer server.Close()

	m := newTestManager(t, Config{})
	calls := 0
	job := m.Download(context.Background(), server.URL, "chunked", func(float64) { calls++ })
	out := waitOutcome(t, job)
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if calls != 0 {
		t.Errorf("progress called %d times without a content length", calls)
	}
	if out.Bytes != int64(len(issText)) {
		t.Errorf("Bytes = %d, want %d", out.Bytes, len(issText))
	}
}

func TestDownloadHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such group", http.StatusNotFound)
	}))
	defer server.Close()

	m := newTestManager(t, Config{})
	out := waitOutcome(t, m.Download(context.Background(), server.URL, "missing", nil))

	if !errors.Is(out.Err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", out.Err)
	}
	if errors.Is(out.Err, ErrTimeout) {
		t.Error("404 must not be reported as a timeout")
	}
	var netErr *NetworkError
	if !errors.As(out.Err, &netErr) || netErr.Reason != ReasonTransport {
		t.Errorf("expected transport reason, got %v", out.Err)
	}
	if !strings.Contains(out.Err.Error(), "404") {
		t.Errorf("error should carry the status: %v", out.Err)
	}
	if out.Path != "" {
		t.Errorf("Path = %q on failure", out.Path)
	}
	assertNoPartials(t, m.Root())
}

func TestDownloadTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	m := newTestManager(t, Config{Timeout: 100 * time.Millisecond})
	out := waitOutcome(t, m.Download(context.Background(), server.URL, "slow", nil))

	if !errors.Is(out.Err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", out.Err)
	}
	if !errors.Is(out.Err, ErrNetwork) {
		t.Errorf("timeout should also match ErrNetwork: %v", out.Err)
	}
	assertNoPartials(t, m.Root())
}

func TestDownloadConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	m := newTestManager(t, Config{})
	out := waitOutcome(t, m.Download(context.Background(), url, "gone", nil))
	var netErr *NetworkError
	if !errors.As(out.Err, &netErr) || netErr.Reason != ReasonTransport {
		t.Fatalf("expected transport failure, got %v", out.Err)
	}
	if netErr.URL != url {
		t.Errorf("URL = %q, want %q", netErr.URL, url)
	}
}

// TestDownloadBodyLimit verifies that oversized responses fail instead of
// filling the disk.
func TestDownloadBodyLimit(t *testing.T) {
	tests := []struct {
		name          string
		contentLength bool
	}{
		{"declared length", true},
		{"streamed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.Repeat("A", 4096)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentLength {
					w.Header().Set("Content-Length", strconv.Itoa(len(body)))
				}
				w.WriteHeader(http.StatusOK)
				for i := 0; i < len(body); i += 512 {
					if _, err := w.Write([]byte(body[i : i+512])); err != nil {
						return
					}
					w.(http.Flusher).Flush()
				}
			}))
			defer server.Close()

			m := newTestManager(t, Config{MaxBodyBytes: 1024})
			out := waitOutcome(t, m.Download(context.Background(), server.URL, "big", nil))
			if out.Err == nil {
				t.Fatal("expected error for oversized response, got nil")
			}
			if !strings.Contains(out.Err.Error(), "byte limit") {
				t.Errorf("expected body limit error, got: %v", out.Err)
			}
			assertNoPartials(t, m.Root())
		})
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"starlink", "starlink"},
		{"  noaa  ", "noaa"},
		{"a/b\\c", "a_b_c"},
		{"what?", "what_"},
		{"../etc", ".._etc"},
		{"", "download"},
		{"..", "download"},
		{"tab\there", "tab_here"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := sanitizeLabel(tt.in); got != tt.want {
				t.Errorf("sanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.txt", "a.TLE", "c.dat", "d.Txt", "noext"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(root, "dir.tle"), 0o755); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, Config{Root: root})
	files, err := m.Scan()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.TLE", "b.txt", "d.Txt"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("Scan() = %v, want %v", files, want)
	}
}

func TestScanEmptyAndMissing(t *testing.T) {
	m := newTestManager(t, Config{})
	files, err := m.Scan()
	if err != nil {
		t.Fatalf("empty root: %v", err)
	}
	if files == nil || len(files) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", files)
	}

	m = newTestManager(t, Config{Root: filepath.Join(t.TempDir(), "absent")})
	if _, err := m.Scan(); !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO for missing root, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "stations.tle"), []byte(issText), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "binary.tle"), []byte{0xff, 0xfe, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	m := newTestManager(t, Config{Root: root})

	t.Run("relative", func(t *testing.T) {
		src, err := m.ReadFile("stations.tle")
		if err != nil {
			t.Fatal(err)
		}
		if src.Text != issText || src.Label != "stations" {
			t.Errorf("got label %q, %d bytes", src.Label, len(src.Text))
		}
	})

	t.Run("absolute", func(t *testing.T) {
		src, err := m.ReadFile(filepath.Join(root, "stations.tle"))
		if err != nil {
			t.Fatal(err)
		}
		if src.Path != filepath.Join(root, "stations.tle") {
			t.Errorf("Path = %q", src.Path)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := m.ReadFile("nope.tle")
		if !errors.Is(err, ErrIO) {
			t.Fatalf("expected ErrIO, got %v", err)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected fs.ErrNotExist in chain, got %v", err)
		}
	})

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := m.ReadFile("binary.tle")
		if !errors.Is(err, ErrIO) {
			t.Fatalf("expected ErrIO, got %v", err)
		}
	})
}

func TestPreset(t *testing.T) {
	url, ok := Preset("noaa")
	if !ok {
		t.Fatal("noaa preset missing")
	}
	if url != "https://celestrak.org/NORAD/elements/gp.php?GROUP=noaa&FORMAT=tle" {
		t.Errorf("noaa url = %q", url)
	}
	if _, ok := Preset("nope"); ok {
		t.Error("unknown preset should not resolve")
	}
	names := Presets()
	if len(names) != 6 || names[0] != "geo" {
		t.Errorf("Presets() = %v", names)
	}
}

func TestProgressChanDropsWhenFull(t *testing.T) {
	ch := make(chan float64, 2)
	f := ProgressChan(ch)
	f(10)
	f(20)
	f(30) // dropped

	if got := <-ch; got != 10 {
		t.Errorf("first = %v, want 10", got)
	}
	if got := <-ch; got != 20 {
		t.Errorf("second = %v, want 20", got)
	}
	select {
	case v := <-ch:
		t.Errorf("unexpected extra value %v", v)
	default:
	}
}

func TestDownloadRetention(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(issText))
	}))
	defer server.Close()

	m := newTestManager(t, Config{KeepDownloads: 2})
	// Older saves for the same label plus one for another label.
	for _, name := range []string{
		"stations_20240101_000000.tle",
		"stations_20240301_120000.tle",
		"stations_20240201_000000.tle",
		"noaa_20200101_000000.tle",
	} {
		if err := os.WriteFile(filepath.Join(m.Root(), name), []byte(issText), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out := waitOutcome(t, m.Download(context.Background(), server.URL, "stations", nil))
	if out.Err != nil {
		t.Fatal(out.Err)
	}

	got, err := m.Downloads("stations")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"stations_20240301_120000.tle", "stations_20240410_150405.tle"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Downloads(stations) = %v, want %v", got, want)
	}
	if others, _ := m.Downloads("noaa"); len(others) != 1 {
		t.Errorf("other label pruned: %v", others)
	}
}

func TestDownloadSameSecondKeepsBoth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(issText))
	}))
	defer server.Close()

	m := newTestManager(t, Config{})
	var paths []string
	for i := 0; i < 3; i++ {
		out := waitOutcome(t, m.Download(context.Background(), server.URL, "ISS", nil))
		if out.Err != nil {
			t.Fatalf("download %d: %v", i, out.Err)
		}
		paths = append(paths, filepath.Base(out.Path))
	}

	want := []string{"ISS_20240410_150405.tle", "ISS_20240410_150405_2.tle", "ISS_20240410_150405_3.tle"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("saved as %v, want %v", paths, want)
	}
	got, err := m.Downloads("ISS")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Downloads(ISS) = %v, want %v", got, want)
	}
	assertNoPartials(t, m.Root())
}

func TestParseSaved(t *testing.T) {
	tests := []struct {
		rest    string
		wantSeq int
		wantOK  bool
	}{
		{"20240410_150405", 1, true},
		{"20240410_150405_2", 2, true},
		{"20240410_150405_12", 12, true},
		{"20240410_150405_1", 0, false},
		{"20240410_150405_x", 0, false},
		{"20240410_150405x2", 0, false},
		{"2024", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.rest, func(t *testing.T) {
			_, seq, ok := parseSaved(tt.rest)
			if ok != tt.wantOK || seq != tt.wantSeq {
				t.Errorf("parseSaved(%q) = %d, %v; want %d, %v", tt.rest, seq, ok, tt.wantSeq, tt.wantOK)
			}
		})
	}
}

func TestScanFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "real.tle")
	if err := os.WriteFile(target, []byte(issText), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "linked.tle")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "missing.tle"), filepath.Join(root, "dangling.tle")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "dir.txt")); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, Config{Root: root})
	files, err := m.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(files, ",") != "linked.tle" {
		t.Errorf("Scan() = %v, want [linked.tle]", files)
	}
}

func TestResolve(t *testing.T) {
	m := newTestManager(t, Config{Root: "data"})
	if got, want := m.Resolve("track.csv"), filepath.Join("data", "track.csv"); got != want {
		t.Errorf("Resolve(relative) = %q, want %q", got, want)
	}
	abs := filepath.Join(t.TempDir(), "track.csv")
	if got := m.Resolve(abs); got != abs {
		t.Errorf("Resolve(absolute) = %q, want %q", got, abs)
	}
}
