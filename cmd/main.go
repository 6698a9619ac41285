package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cvmap/cvmap/internal/adapters/http/api"
	app "github.com/cvmap/cvmap/internal/app"
	"github.com/cvmap/cvmap/internal/config"
	"github.com/cvmap/cvmap/internal/domain/cluster"
	"github.com/cvmap/cvmap/internal/domain/karma"
	"github.com/cvmap/cvmap/internal/domain/reputation"
	"github.com/cvmap/cvmap/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	repOpts := []reputation.Option{
		reputation.WithVoteWeights(cfg.UpvoteWeight, cfg.DownvoteWeight),
		reputation.WithReportWindow(time.Duration(cfg.ReportWindowHours) * time.Hour),
	}
	if mode := reputation.DecayMode(cfg.DecayMode); mode != reputation.DecayNone {
		repOpts = append(repOpts, reputation.WithDecay(mode, time.Duration(cfg.DecayHalfLifeHours)*time.Hour))
	}
	if cfg.RemovalEnabled {
		repOpts = append(repOpts, reputation.WithRemovalFloor(cfg.RemovalFloor))
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.RefreshQueueSize),
		app.WithVoteCooldown(time.Duration(cfg.VoteCooldownHours)*time.Hour),
		app.WithCredibilityFloor(cfg.CredibilityFloor),
		app.WithMaxPerPage(cfg.MaxPerPage),
		app.WithReputationEngine(reputation.New(repOpts...)),
		app.WithKarmaEngine(karma.New(karma.WithPlaceholder(cfg.DisplayNamePlaceholder))),
		app.WithClusterer(cluster.New()),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// startServiceMetricsUpdater periodically refreshes the service gauges.
// GetStats itself pushes the queue and projection counts to Prometheus.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
