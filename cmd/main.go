package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/platewatch/internal/adapters/http/api"
	"github.com/okian/platewatch/internal/adapters/http/swagger"
	"github.com/okian/platewatch/internal/adapters/repository"
	service "github.com/okian/platewatch/internal/app"
	"github.com/okian/platewatch/internal/config"
	"github.com/okian/platewatch/pkg/logger"
	"github.com/okian/platewatch/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// Log file rotation.
const (
	logMaxSizeMB  = 100
	logMaxBackups = 5
	logMaxAgeDays = 30
)

func main() {
	// Our own registry carries the system metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}

	if cfg.LogFile != "" {
		if err := logger.Init(logger.WithFile(cfg.LogFile, logMaxSizeMB, logMaxBackups, logMaxAgeDays)); err != nil {
			logger.Get().Warn(ctx, "log file unavailable; logging to stdout only", logger.String("log_file", cfg.LogFile), logger.Error(err))
		}
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Init(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithMetricPrefix(cfg.MetricsPrefix),
		metrics.WithCustomLabels(map[string]string{"location": cfg.CameraLocation}),
	)

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "platewatch stopped with error", logger.Error(err))
	}
}

// run wires the components, serves HTTP until ctx ends and shuts everything
// down in reverse order.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.close(log)

	if err := c.service.Start(ctx); err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, c.service)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, c.service),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := c.service.Stop(shutdownCtx); err != nil {
		return err
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// newMux registers the docs and business routes.
func newMux(ctx context.Context, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc).Register(ctx, mux)
	return mux
}

// restoreSource is a backend that can hand its state back at startup.
type restoreSource struct {
	from repository.Backend
	load func(context.Context) (repository.Snapshot, error)
}

// restoreLedger seeds the ledger from the first source that has state. The
// other backends catch up from it on the next flush.
func restoreLedger(ctx context.Context, ledger *repository.Ledger, sources ...restoreSource) int {
	log := logger.Get()
	for _, src := range sources {
		snap, err := src.load(ctx)
		if err != nil {
			log.Warn(ctx, "restore source failed", logger.String("backend", src.from.Name()), logger.Error(err))
			continue
		}
		if snap.Empty() {
			continue
		}
		return ledger.Restore(snap, src.from)
	}
	return 0
}

func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the queue and ledger gauges.
			_ = svc.GetStats(ctx)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
