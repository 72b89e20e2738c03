// main.go - Updated sections to use styled logger
package main

import (
	"context"
	"fmt"
	"github.com/thushan/dispatch/internal/app"
	"github.com/thushan/dispatch/internal/config"
	"github.com/thushan/dispatch/internal/version"
	"github.com/thushan/dispatch/pkg/container"
	"github.com/thushan/dispatch/pkg/format"
	"github.com/thushan/dispatch/pkg/nerdstats"
	"github.com/thushan/dispatch/pkg/profiler"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/thushan/dispatch/internal/logger"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	} else {
		version.PrintVersionInfo(false, vlog)
	}

	// setup: logging with styled logger
	lcfg := buildLoggerConfig()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// Set as default logger
	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid(), "containerised", container.IsContainerised())

	if getEnvBoolOrDefault("DISPATCH_PROFILER_ENABLED", false) {
		profilerAddr := getEnvOrDefault("DISPATCH_PROFILER_ADDRESS", profiler.DefaultAddress)
		styledLogger.Info("Profiler enabled", "address", profilerAddr)
		profiler.InitialiseProfiler(profilerAddr)
	}

	// setup: graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	var application *app.Application

	cfg, err := config.Load(func() {
		newCfg, reloadErr := config.Reload()
		if reloadErr != nil {
			styledLogger.Error("Failed to reload configuration", "error", reloadErr)
			return
		}
		if application != nil {
			if reloadErr := application.Reload(newCfg); reloadErr != nil {
				styledLogger.Error("Failed to apply reloaded configuration", "error", reloadErr)
			}
		}
	})
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to load configuration", "error", err)
	}

	application, err = app.New(cfg, styledLogger, startTime)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	select {
	case <-ctx.Done():
	case err := <-application.Errors():
		styledLogger.Error("Server error", "error", err)
		cancel()
	}

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)

	styledLogger.Info("Dispatch has shutdown")
}

func reportProcessStats(logger *logger.StyledLogger, startTime time.Time) {
	runtime.GC()

	stats := nerdstats.Snapshot(startTime)

	logger.Info("Process Memory Stats",
		"heap_alloc", format.Bytes(stats.HeapAlloc),
		"heap_sys", format.Bytes(stats.HeapSys),
		"heap_inuse", format.Bytes(stats.HeapInuse),
		"heap_released", format.Bytes(stats.HeapReleased),
		"stack_inuse", format.Bytes(stats.StackInuse),
		"total_alloc", format.Bytes(stats.TotalAlloc),
		"memory_pressure", stats.GetMemoryPressure(),
	)

	logger.Info("Process Allocation Stats",
		"total_mallocs", stats.Mallocs,
		"total_frees", stats.Frees,
		"net_objects", int64(stats.Mallocs)-int64(stats.Frees),
	)

	if stats.NumGC > 0 {
		logger.Info("Garbage Collection Stats",
			"num_gc_cycles", stats.NumGC,
			"last_gc", stats.LastGC.Format(time.RFC3339),
			"total_gc_time", format.Duration(stats.TotalGCTime),
			"gc_cpu_fraction", fmt.Sprintf("%.4f%%", stats.GCCPUFraction*100),
		)
	}

	logger.Info("Goroutine Stats",
		"num_goroutines", stats.NumGoroutines,
		"goroutine_health", stats.GetGoroutineHealthStatus(),
		"num_cgo_calls", stats.NumCgoCall,
	)

	logger.Info("Runtime Stats",
		"uptime", format.Duration(stats.Uptime),
		"go_version", stats.GoVersion,
		"num_cpu", stats.NumCPU,
		"gomaxprocs", stats.GOMAXPROCS,
	)

	if buildInfo := stats.GetBuildInfoSummary(); len(buildInfo) > 0 {
		var buildArgs []any
		for key, value := range buildInfo {
			buildArgs = append(buildArgs, key, value)
		}
		logger.Info("Build Info", buildArgs...)
	}

	logger.Info("Process Health Summary",
		"memory_pressure", stats.GetMemoryPressure(),
		"goroutine_status", stats.GetGoroutineHealthStatus(),
		"uptime", format.Duration(stats.Uptime),
		"avg_gc_pause", nerdstats.CalculateAverageGCPause(stats),
	)
}

// buildLoggerConfig creates logger config from environment variables with defaults.
// A containerised process defaults to stdout-only logging since its filesystem
// is typically ephemeral and log collection happens at the container runtime
// layer; DISPATCH_FILE_OUTPUT still overrides this when set explicitly.
func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      getEnvOrDefault("DISPATCH_LOG_LEVEL", "info"),
		FileOutput: getEnvBoolOrDefault("DISPATCH_FILE_OUTPUT", !container.IsContainerised()),
		LogDir:     getEnvOrDefault("DISPATCH_LOG_DIR", "./logs"),
		MaxSize:    getEnvIntOrDefault("DISPATCH_MAX_SIZE", 100),
		MaxBackups: getEnvIntOrDefault("DISPATCH_MAX_BACKUPS", 5),
		MaxAge:     getEnvIntOrDefault("DISPATCH_MAX_AGE", 30),
		Theme:      getEnvOrDefault("DISPATCH_THEME", "default"),
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBoolOrDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
