// Package cli implements the interactive control loop. All session
// transitions happen on the goroutine running Shell.Run; download workers
// only report progress and a final outcome back to it.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitrack/internal/acquire"
	"github.com/star/orbitrack/internal/export"
	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/session"
	"github.com/star/orbitrack/internal/timegrid"
	"github.com/star/orbitrack/internal/tle"
)

const prompt = "orbitrack> "

// Options configures a Shell.
type Options struct {
	Step  time.Duration
	Hours float64
	// Now supplies the grid start. Defaults to time.Now.
	Now func() time.Time
}

// Shell reads commands and drives a session.
type Shell struct {
	out    io.Writer
	logger *slog.Logger
	acq    *acquire.Manager
	sess   *session.Session
	oracle propagation.Oracle

	step  time.Duration
	hours float64
	now   func() time.Time

	files    []string // last "files" listing
	source   string   // label of the loaded catalog
	job      *acquire.Job
	progress chan float64
	shown    int // last progress decile printed
	quit     bool
}

// New creates a Shell writing human-readable output to out.
func New(out io.Writer, logger *slog.Logger, acq *acquire.Manager, sess *session.Session, oracle propagation.Oracle, opts Options) *Shell {
	if opts.Step <= 0 {
		opts.Step = timegrid.DefaultStep
	}
	if opts.Hours <= 0 {
		opts.Hours = 24
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Shell{
		out:      out,
		logger:   logger.With("component", "cli"),
		acq:      acq,
		sess:     sess,
		oracle:   oracle,
		step:     opts.Step,
		hours:    opts.Hours,
		now:      opts.Now,
		progress: make(chan float64, 64),
	}
}

// Run processes commands from in until quit, end of input or ctx
// cancellation. At end of input a running download is waited for.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	s.quit = false
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				readErr <- readCtx.Err()
				return
			}
		}
		readErr <- scanner.Err()
	}()

	s.printf("%s", prompt)
	for {
		var done <-chan acquire.Outcome
		if s.job != nil {
			done = s.job.Done()
		}
		if lines == nil && done == nil {
			return <-readErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if s.exec(ctx, line) {
				return nil
			}
			s.printf("%s", prompt)

		case pct := <-s.progress:
			s.showProgress(pct)

		case out := <-done:
			s.finishDownload(out)
			s.printf("%s", prompt)
		}
	}
}

// Quit reports whether the last Run ended with an explicit quit command.
func (s *Shell) Quit() bool {
	return s.quit
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// exec runs one command line and reports whether the shell should exit.
func (s *Shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		s.quit = true
		return true
	case "help":
		s.help()
	case "files":
		s.cmdFiles()
	case "load":
		s.cmdLoad(args)
	case "download":
		s.cmdDownload(ctx, args)
	case "list":
		s.cmdList()
	case "select":
		s.cmdSelect(args)
	case "hours":
		s.cmdHours(args)
	case "compute":
		s.cmdCompute(ctx)
	case "export":
		s.cmdExport(args)
	case "status":
		s.cmdStatus()
	default:
		s.printf("unknown command %q; type help\n", cmd)
	}
	return false
}

func (s *Shell) help() {
	s.printf(`commands:
  files                         list element set files in %s
  load <path|n>                 load a file by path or by number from files
  download <preset> | <label> <url>
                                fetch element sets (presets: %s)
  list                          show the loaded satellites
  select <n>                    select satellite n from list
  hours <h>                     set the prediction window (now %g h)
  compute                       propagate the selected satellite
  export <path>                 write samples as .csv or .json
  status                        show session state
  quit                          leave
`, s.acq.Root(), strings.Join(acquire.Presets(), ", "), s.hours)
}

func (s *Shell) cmdFiles() {
	files, err := s.acq.Scan()
	if err != nil {
		s.printf("error: %v\n", err)
		return
	}
	s.files = files
	if len(files) == 0 {
		s.printf("no .tle or .txt files in %s\n", s.acq.Root())
		return
	}
	for i, name := range files {
		s.printf("%3d. %s\n", i+1, name)
	}
}

func (s *Shell) cmdLoad(args []string) {
	if len(args) != 1 {
		s.printf("usage: load <path|n>\n")
		return
	}
	path := args[0]
	if n, err := strconv.Atoi(path); err == nil {
		if n < 1 || n > len(s.files) {
			s.printf("no file %d; run files to list them\n", n)
			return
		}
		path = s.files[n-1]
	}
	s.loadPath(path)
}

// loadPath reads, parses and installs a catalog. Failures leave the
// session untouched.
func (s *Shell) loadPath(path string) {
	src, err := s.acq.ReadFile(path)
	if err != nil {
		s.printf("error: %v\n", err)
		return
	}
	catalog, err := tle.Parse(src.Text)
	if err != nil {
		metrics.RecordParseFailure()
		s.logger.Warn("element set rejected", "path", src.Path, "error", err)
		s.printf("format error in %s: %v\n", src.Path, err)
		return
	}

	s.sess.LoadCatalog(catalog)
	s.source = src.Label
	s.printf("loaded %d satellites from %s\n", len(catalog), src.Label)
}

func (s *Shell) cmdDownload(ctx context.Context, args []string) {
	if s.job != nil {
		s.printf("a download is already running (%s)\n", s.job.URL)
		return
	}

	var label, url string
	switch len(args) {
	case 1:
		u, ok := acquire.Preset(args[0])
		if !ok {
			s.printf("unknown preset %q (known: %s)\n", args[0], strings.Join(acquire.Presets(), ", "))
			return
		}
		label, url = args[0], u
	case 2:
		label, url = args[0], args[1]
	default:
		s.printf("usage: download <preset> | download <label> <url>\n")
		return
	}

	s.drainProgress()
	s.shown = -1
	s.job = s.acq.Download(ctx, url, label, acquire.ProgressChan(s.progress))
	s.printf("downloading %s\n", url)
}

// showProgress prints each new 10% step.
func (s *Shell) showProgress(pct float64) {
	if s.job == nil {
		return
	}
	decile := int(pct) / 10
	if decile <= s.shown {
		return
	}
	s.shown = decile
	s.printf("download %d%%\n", decile*10)
}

func (s *Shell) drainProgress() {
	for {
		select {
		case <-s.progress:
		default:
			return
		}
	}
}

func (s *Shell) finishDownload(out acquire.Outcome) {
	s.job = nil
	s.drainProgress()

	if out.Err != nil {
		if errors.Is(out.Err, acquire.ErrTimeout) {
			s.printf("download failed: request timed out\n")
		} else {
			s.printf("download failed: %v\n", out.Err)
		}
		return
	}
	s.printf("saved %s (%d bytes)\n", out.Path, out.Bytes)
	s.loadPath(out.Path)
}

func (s *Shell) cmdList() {
	catalog := s.sess.Catalog()
	if s.sess.State() == session.StateEmpty {
		s.printf("no catalog loaded\n")
		return
	}
	if len(catalog) == 0 {
		s.printf("catalog %s is empty\n", s.source)
		return
	}
	selected := s.sess.Snapshot().Selected
	for i, rec := range catalog {
		mark := " "
		if i == selected {
			mark = "*"
		}
		s.printf("%s%3d. %s\n", mark, i+1, rec.Name)
	}
}

func (s *Shell) cmdSelect(args []string) {
	if len(args) != 1 {
		s.printf("usage: select <n>\n")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		s.printf("not a satellite number: %q\n", args[0])
		return
	}
	if err := s.sess.Select(n - 1); err != nil {
		var idx *session.IndexError
		if errors.As(err, &idx) {
			if idx.Len == 0 {
				s.printf("no satellites loaded\n")
			} else {
				s.printf("satellite %d out of range (1-%d)\n", n, idx.Len)
			}
			return
		}
		s.printf("error: %v\n", err)
		return
	}
	rec, _ := s.sess.Selected()
	s.printf("selected %s\n", rec.Name)
}

func (s *Shell) cmdHours(args []string) {
	if len(args) != 1 {
		s.printf("usage: hours <h>\n")
		return
	}
	h, err := timegrid.ParseHours(args[0])
	if err != nil {
		s.printf("error: %v\n", err)
		return
	}
	s.hours = h
	s.printf("prediction window %g h\n", h)
}

func (s *Shell) cmdCompute(ctx context.Context) {
	// SGP4 is evaluated at whole seconds.
	start := s.now().UTC().Truncate(time.Second)
	grid, err := timegrid.Generate(start, s.hours, s.step)
	if err != nil {
		s.printf("error: %v\n", err)
		return
	}

	set, err := s.sess.Compute(ctx, grid, s.oracle)
	switch {
	case errors.Is(err, session.ErrNoSelection):
		s.printf("select a satellite first\n")
		return
	case err != nil:
		s.printf("compute failed: %v\n", err)
		return
	}
	s.printf("computed %d points for %s (%s to %s)\n",
		set.Len(), set.Satellite,
		grid.Start().Format(time.RFC3339), grid.End().Format(time.RFC3339))
}

func (s *Shell) cmdExport(args []string) {
	if len(args) != 1 {
		s.printf("usage: export <path>\n")
		return
	}
	set, err := s.sess.Samples()
	if err != nil {
		s.printf("%v\n", err)
		return
	}
	path := s.acq.Resolve(args[0])
	if err := export.WriteFile(path, set); err != nil {
		s.printf("error: %v\n", err)
		return
	}
	s.printf("wrote %d samples to %s\n", set.Len(), path)
}

func (s *Shell) cmdStatus() {
	snap := s.sess.Snapshot()
	s.printf("state:      %s\n", snap.State)
	if snap.State != session.StateEmpty {
		s.printf("catalog:    %s (%d satellites)\n", s.source, len(snap.Catalog))
	}
	if rec, ok := snap.Record(); ok {
		s.printf("selected:   %d. %s\n", snap.Selected+1, rec.Name)
	}
	s.printf("window:     %g h, step %s\n", s.hours, s.step)
	if snap.Samples != nil {
		s.printf("samples:    %d\n", snap.Samples.Len())
	}
	if s.job != nil {
		s.printf("download:   %s (%d bytes)\n", s.job.URL, s.job.Bytes())
	}
}
