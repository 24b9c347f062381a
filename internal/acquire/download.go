package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/star/orbitrack/internal/metrics"
)

var tracer = otel.Tracer("github.com/star/orbitrack/internal/acquire")

const timestampLayout = "20060102_150405"

// ProgressFunc receives the completed percentage of a download, in [0, 100].
// It is called from the download goroutine only.
type ProgressFunc func(pct float64)

// ProgressChan adapts a channel to a ProgressFunc. Values are sent without
// blocking and dropped when the channel buffer is full.
func ProgressChan(ch chan<- float64) ProgressFunc {
	return func(pct float64) {
		select {
		case ch <- pct:
		default:
		}
	}
}

// Outcome is the terminal result of a download. Exactly one of Path and Err
// is set.
type Outcome struct {
	Path  string
	Bytes int64
	Err   error
}

// Job tracks one running download.
type Job struct {
	URL   string
	Label string

	bytes atomic.Int64
	done  chan Outcome
}

// Done delivers the single terminal outcome.
func (j *Job) Done() <-chan Outcome {
	return j.done
}

// Bytes returns the number of body bytes received so far.
func (j *Job) Bytes() int64 {
	return j.bytes.Load()
}

// Download fetches url in the background and stores the body under the root
// directory as {label}_{YYYYMMDD_HHMMSS}.tle. It returns immediately.
// onProgress may be nil.
func (m *Manager) Download(ctx context.Context, url, label string, onProgress ProgressFunc) *Job {
	job := &Job{
		URL:   url,
		Label: sanitizeLabel(label),
		done:  make(chan Outcome, 1),
	}
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	metrics.DownloadStarted()
	go m.run(ctx, job, onProgress)
	return job
}

func (m *Manager) run(ctx context.Context, job *Job, onProgress ProgressFunc) {
	ctx, span := tracer.Start(ctx, "acquire.Download")
	defer span.End()
	span.SetAttributes(
		attribute.String("url", job.URL),
		attribute.String("label", job.Label),
	)

	start := time.Now()
	path, err := m.fetch(ctx, job, onProgress)
	duration := time.Since(start)
	bytes := job.Bytes()

	outcome := metrics.OutcomeSuccess
	if err != nil {
		var netErr *NetworkError
		switch {
		case errors.As(err, &netErr) && netErr.Reason == ReasonTimeout:
			outcome = metrics.OutcomeTimeout
		case errors.Is(err, ErrIO):
			outcome = metrics.OutcomeIO
		default:
			outcome = metrics.OutcomeTransport
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("download failed",
			"url", job.URL,
			"label", job.Label,
			"bytes", bytes,
			"error", err,
		)
	} else {
		span.SetAttributes(attribute.Int64("bytes", bytes))
		m.logger.Info("download complete",
			"url", job.URL,
			"path", path,
			"bytes", bytes,
			"duration_ms", duration.Milliseconds(),
		)
	}
	metrics.RecordDownload(outcome, bytes, duration)

	job.done <- Outcome{Path: path, Bytes: bytes, Err: err}
}

// fetch performs the request and writes the body to its final path.
func (m *Manager) fetch(ctx context.Context, job *Job, onProgress ProgressFunc) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return "", &NetworkError{Reason: ReasonTransport, URL: job.URL, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", m.networkError(job.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{
			Reason: ReasonTransport,
			URL:    job.URL,
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	if resp.ContentLength > m.config.MaxBodyBytes {
		return "", &NetworkError{
			Reason: ReasonTransport,
			URL:    job.URL,
			Err:    fmt.Errorf("content length %d exceeds byte limit of %d", resp.ContentLength, m.config.MaxBodyBytes),
		}
	}

	tmp, err := os.CreateTemp(m.config.Root, ".download-*.part")
	if err != nil {
		return "", &IOError{Op: "create", Path: m.config.Root, Err: err}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := m.copyBody(tmp, resp.Body, resp.ContentLength, job, onProgress); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", &IOError{Op: "write", Path: tmpPath, Err: err}
	}

	final, err := m.commit(tmpPath, job.Label)
	if err != nil {
		return "", err
	}
	committed = true

	if err := m.prune(job.Label); err != nil {
		m.logger.Warn("pruning old downloads failed", "label", job.Label, "error", err)
	}
	return final, nil
}

// copyBody streams body into dst in chunks. Progress is reported only when
// total is known.
func (m *Manager) copyBody(dst io.Writer, body io.Reader, total int64, job *Job, onProgress ProgressFunc) error {
	buf := make([]byte, m.config.ChunkSize)
	limited := io.LimitReader(body, m.config.MaxBodyBytes+1)

	var received int64
	var last float64
	for {
		n, readErr := limited.Read(buf)
		if n > 0 {
			received += int64(n)
			if received > m.config.MaxBodyBytes {
				return &NetworkError{
					Reason: ReasonTransport,
					URL:    job.URL,
					Err:    fmt.Errorf("response body exceeds byte limit of %d", m.config.MaxBodyBytes),
				}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return &IOError{Op: "write", Path: m.config.Root, Err: err}
			}
			job.bytes.Store(received)

			if total > 0 {
				pct := float64(received) * 100 / float64(total)
				if pct > 100 {
					pct = 100
				}
				if pct < last {
					pct = last
				}
				last = pct
				onProgress(pct)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return m.networkError(job.URL, fmt.Errorf("reading response body: %w", readErr))
		}
	}
}

// networkError classifies a transport failure as timeout or not.
func (m *Manager) networkError(url string, err error) *NetworkError {
	reason := ReasonTransport
	var ne net.Error
	if (errors.As(err, &ne) && ne.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		reason = ReasonTimeout
	}
	return &NetworkError{Reason: reason, URL: url, Err: err}
}
