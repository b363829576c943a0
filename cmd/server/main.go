package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/jvossen/ensemble/internal/broadcast"
	"github.com/jvossen/ensemble/internal/config"
	"github.com/jvossen/ensemble/internal/domain/project"
	"github.com/jvossen/ensemble/internal/domain/session"
	"github.com/jvossen/ensemble/internal/domain/user"
	"github.com/jvossen/ensemble/internal/mutate"
	"github.com/jvossen/ensemble/internal/pool"
	"github.com/jvossen/ensemble/internal/score"
	"github.com/jvossen/ensemble/internal/server"
	"github.com/jvossen/ensemble/internal/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLogLevel(cfg.Log.Level),
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return fmt.Errorf("preparing database path: %w", err)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	userRepo := sqlite.NewUserRepository(db)
	projectRepo := sqlite.NewProjectRepository(db)
	contributorRepo := sqlite.NewContributorRepository(db)
	store := sqlite.NewScoreStore(db)

	userSvc := user.NewService(userRepo, contributorRepo, logger)
	projectSvc := project.NewService(projectRepo, userRepo, contributorRepo, store, logger)

	p := pool.New()
	sessionSvc := session.NewService(contributorRepo, store, p, logger)
	dispatcher := mutate.NewDispatcher(p, store, logger)
	hub := broadcast.NewHub(logger)

	flushCtx, stopFlusher := context.WithCancel(context.Background())
	flusher := pool.NewFlusher(p, func(proj *score.Project) error {
		return store.Save(context.Background(), proj)
	}, cfg.Flush.Interval, logger)
	go flusher.Run(flushCtx)

	srv := server.New(userSvc, projectSvc, sessionSvc, dispatcher, p, store, hub, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		stopFlusher()
		flusher.Wait()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	hub.Close()

	// Stop the flusher last: its shutdown pass writes every document
	// still checked out back to the store.
	stopFlusher()
	flusher.Wait()

	logger.Info("stopped")
	return nil
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
