package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/star/orbitrack/internal/acquire"
	"github.com/star/orbitrack/internal/api"
	"github.com/star/orbitrack/internal/cli"
	"github.com/star/orbitrack/internal/config"
	"github.com/star/orbitrack/internal/observability"
	"github.com/star/orbitrack/internal/propagation"
	"github.com/star/orbitrack/internal/session"
)

func newLogger(level slog.Level) *slog.Logger {
	// stdout belongs to the shell.
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func main() {
	logger := newLogger(config.DefaultLogLevel)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger = newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	acq := acquire.NewManager(cfg.Acquire(), logger)
	sess := session.New(logger)
	oracle := propagation.NewSGP4Oracle(propagation.Config{Workers: cfg.Workers}, logger)

	var srv *api.Server
	if cfg.HTTPAddr != "" {
		srv = api.NewServer(api.Config{
			Addr:       cfg.HTTPAddr,
			Auth:       cfg.Auth,
			TrustProxy: cfg.TrustProxy,
		}, logger, sess)

		go func() {
			logger.Info("starting server", "addr", cfg.HTTPAddr, "auth_enabled", cfg.Auth.Enabled)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server listen error", "error", err)
				os.Exit(1)
			}
		}()
	}

	logger.Info("orbitrack started",
		"root", acq.Root(),
		"step", cfg.Step.String(),
		"default_hours", cfg.DefaultHours,
		"workers", cfg.Workers,
	)

	// An optional argument is loaded before reading commands.
	var in io.Reader = os.Stdin
	if len(os.Args) > 1 {
		in = io.MultiReader(strings.NewReader("load "+os.Args[1]+"\n"), os.Stdin)
	}

	shell := cli.New(os.Stdout, logger, acq, sess, oracle, cli.Options{
		Step:  cfg.Step,
		Hours: cfg.DefaultHours,
	})
	if err := shell.Run(ctx, in); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shell stopped", "error", err)
	}

	if srv != nil && !shell.Quit() && ctx.Err() == nil {
		// Input closed without quit: keep serving the session until signalled.
		logger.Info("input closed, serving until interrupted")
		<-ctx.Done()
	}

	if srv != nil {
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}
	logger.Info("orbitrack stopped")
}
