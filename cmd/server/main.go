package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-learn/internal/api"
	"github.com/p-n-ai/pai-learn/internal/certificate"
	"github.com/p-n-ai/pai-learn/internal/course"
	"github.com/p-n-ai/pai-learn/internal/learner"
	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/platform/config"
	"github.com/p-n-ai/pai-learn/internal/platform/database"
	"github.com/p-n-ai/pai-learn/internal/player"
	"github.com/p-n-ai/pai-learn/internal/quiz"
	"github.com/p-n-ai/pai-learn/internal/scheduler"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.startScheduler(ctx, cfg.RefreshInterval()); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app holds the wired service and the resources it must release.
type app struct {
	service   *player.Service
	handler   http.Handler
	scheduler *scheduler.Scheduler
	closers   []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	courses, err := course.NewLoader(cfg.CoursePath)
	if err != nil {
		return nil, fmt.Errorf("loading courses: %w", err)
	}
	slog.Info("courses loaded", "count", len(courses.AllCourses()), "path", cfg.CoursePath)

	checks := make(map[string]api.Check)
	certOpts := certificate.Options{Key: []byte(cfg.Certificate.Key)}
	trackerCfg := quiz.TrackerConfig{}
	svcCfg := player.Config{Courses: courses}

	if cfg.Storage == config.StoragePostgres {
		db, err := database.New(ctx, cfg.Database.URL, database.Options{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks["database"] = db.HealthCheck

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				a.close()
				return nil, err
			}
		}

		learners, err := learner.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		attempts, err := quiz.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		certs, err := certificate.NewPostgresRegistry(db.Pool, certOpts)
		if err != nil {
			a.close()
			return nil, err
		}
		svcCfg.Learners = learners
		svcCfg.Certificates = certs
		trackerCfg.Store = attempts
	} else {
		svcCfg.Certificates = certificate.NewMemoryRegistry(certOpts)
	}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("cache close failed", "error", err)
			}
		})
		checks["cache"] = c.HealthCheck
		trackerCfg.Guard = quiz.NewLockGuard(c, cache.Key("attempt-lock")+":", cfg.AttemptLockTTL())
	}

	svcCfg.Tracker = quiz.NewTracker(trackerCfg)
	svc, err := player.NewService(svcCfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.service = svc
	a.handler = api.New(svc, checks)
	return a, nil
}

// startScheduler starts the snapshot refresh unless interval is zero.
func (a *app) startScheduler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		slog.Info("snapshot refresh disabled")
		return nil
	}
	s, err := scheduler.New(a.service, interval)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	a.scheduler = s
	return nil
}

func (a *app) close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
