package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	api "github.com/coachline/testdesk/internal/api/http"
	auth "github.com/coachline/testdesk/internal/auth/middleware"
	"github.com/coachline/testdesk/internal/config"
	"github.com/coachline/testdesk/internal/db"
	"github.com/coachline/testdesk/internal/exam"
	"github.com/coachline/testdesk/internal/grading"
	"github.com/coachline/testdesk/internal/logging"
	"github.com/coachline/testdesk/internal/metrics"
	syncx "github.com/coachline/testdesk/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer dbh.Close()
	store := exam.NewSQLStore(dbh, cfg.DBDriver)

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Grading ---
	engine := grading.NewEngine(store, store, store,
		grading.WithEvents(syncx.NewEventRepo(dbh)),
		grading.WithLogger(logger.With("component", "grading")),
		grading.WithMetrics(m),
	)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL)
	var users *auth.UserRepo
	if cfg.EnableLocalAuth {
		users = auth.NewUserRepo(dbh)
		if _, err := users.Ensure(ctx, cfg.AdminUser, cfg.AdminPassHash, "admin"); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	handler := api.NewRouter(api.Deps{
		Store:              store,
		Engine:             engine,
		Auth:               authSvc,
		Users:              users,
		Metrics:            m,
		Gatherer:           reg,
		RoleFromDB:         auth.AttachRoleFromDB(dbh, true),
		CORSOrigins:        cfg.CORSOrigins,
		RequestTimeout:     cfg.RequestTimeout,
		DefaultExamMinutes: cfg.DefaultExamMinutes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	// give outstanding requests a deadline for completion
	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
		return srv.Close()
	}
	return nil
}
