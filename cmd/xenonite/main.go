package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/AJ-EN/xenonite-mission-control/internal/api"
	"github.com/AJ-EN/xenonite-mission-control/internal/auth"
	"github.com/AJ-EN/xenonite-mission-control/internal/elements"
	"github.com/AJ-EN/xenonite-mission-control/internal/sim"
	"github.com/AJ-EN/xenonite-mission-control/internal/stream"
	"github.com/AJ-EN/xenonite-mission-control/internal/threat"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("XENONITE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	simCfg, err := loadSimConfig(logger)
	if err != nil {
		logger.Error("invalid simulation configuration", "error", err)
		os.Exit(1)
	}

	store := elements.NewStore()
	engine, err := sim.NewEngine(store, simCfg, logger)
	if err != nil {
		logger.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	// Catalogs must be fully loaded before the first tick so the scheduler
	// never observes a half-populated store.
	if dir := os.Getenv("XENONITE_DATA_DIR"); dir != "" {
		loadCatalogs(engine, dir, logger)
	}
	if path := os.Getenv("XENONITE_PLAYER_FILE"); path != "" {
		if err := loadPlayer(engine, path); err != nil {
			logger.Error("player load failed", "file", path, "error", err)
			os.Exit(1)
		}
	}

	tickInterval := 33 * time.Millisecond
	if v := os.Getenv("XENONITE_TICK_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid XENONITE_TICK_INTERVAL_MS value, using default", "value", v, "default", 33)
		} else {
			tickInterval = time.Duration(n) * time.Millisecond
		}
	}

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(engine, streamCfg, logger)

	srv := api.NewServer(addr, engine, streamHandler, authCfg, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tick loop at the host frame interval.
	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				engine.Tick(now)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"tick_interval_ms", tickInterval.Milliseconds(),
			"tracked_objects", engine.TrackedObjects(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadCatalogs ingests <category>.tle files from dir for every non-player
// category. Missing files are fine; a category simply starts empty.
func loadCatalogs(engine *sim.Engine, dir string, logger *slog.Logger) {
	for _, cat := range []elements.Category{elements.CategoryDebris, elements.CategoryActive, elements.CategoryCritical} {
		path := filepath.Join(dir, cat.String()+".tle")
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("catalog file unreadable", "file", path, "error", err)
			}
			continue
		}
		res, err := engine.IngestElements(cat, f)
		f.Close()
		if err != nil {
			logger.Warn("catalog ingest failed", "file", path, "error", err)
			continue
		}
		logger.Info("catalog loaded", "category", cat.String(), "valid", res.Valid, "skipped", res.Skipped)
	}
}

// loadPlayer reads a single 3-line TLE record and starts tracking it.
func loadPlayer(engine *sim.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := elements.IngestBatch(f, slog.Default())
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return errors.New("no valid element set in player file")
	}

	p := res.Records[0]
	return engine.SetPlayer(p.Name, p.Line1, p.Line2)
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("XENONITE_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("XENONITE_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("XENONITE_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("XENONITE_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadSimConfig(logger *slog.Logger) (sim.Config, error) {
	cfg := sim.Config{
		Workers:     runtime.NumCPU(),
		EpochWindow: 30 * 24 * time.Hour,
		Multiplier:  1,
		Cadence:     sim.DefaultCadence(),
		Tuning:      threat.DefaultTuning(),
	}

	if v := os.Getenv("XENONITE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid XENONITE_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("XENONITE_EPOCH_WINDOW_HOURS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid XENONITE_EPOCH_WINDOW_HOURS value, using default", "value", v, "default", 720)
		} else {
			cfg.EpochWindow = time.Duration(n) * time.Hour
		}
	}

	if v := os.Getenv("XENONITE_TIME_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			logger.Warn("invalid XENONITE_TIME_MULTIPLIER value, using default", "value", v, "default", 1)
		} else {
			cfg.Multiplier = f
		}
	}

	if path := os.Getenv("XENONITE_TUNING_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		tuning, err := threat.LoadTuning(f)
		if err != nil {
			return cfg, err
		}
		cfg.Tuning = tuning
		logger.Info("threat tuning loaded", "file", path)
	}

	logger.Info("simulation config",
		"workers", cfg.Workers,
		"epoch_window_hours", cfg.EpochWindow.Hours(),
		"multiplier", cfg.Multiplier,
	)

	return cfg, nil
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrentTotal: 1000,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("XENONITE_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid XENONITE_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("XENONITE_STREAM_MAX_TOTAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid XENONITE_STREAM_MAX_TOTAL value, using default", "value", v, "default", 1000)
		} else {
			cfg.MaxConcurrentTotal = n
		}
	}

	if v := os.Getenv("XENONITE_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid XENONITE_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("XENONITE_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid XENONITE_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent_total", cfg.MaxConcurrentTotal,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}
