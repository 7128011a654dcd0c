package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/pipeline"
	"github.com/vinodismyname/sectorspace/internal/registry"
	"github.com/vinodismyname/sectorspace/internal/runtime"
	"github.com/vinodismyname/sectorspace/internal/security"
	"github.com/vinodismyname/sectorspace/internal/telemetry"
	"github.com/vinodismyname/sectorspace/pkg/version"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		useStdio        bool
		shutdownTimeout time.Duration
		maxRequests     int
		maxTables       int
		tableTTL        time.Duration
		logLevel        string
	)

	flag.BoolVar(&useStdio, "stdio", false, "Run server over stdio transport")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.IntVar(&maxRequests, "max-requests", config.DefaultMaxConcurrentRequests, "Max concurrent tool calls")
	flag.IntVar(&maxTables, "max-tables", config.DefaultMaxOpenTables, "Max cached input tables")
	flag.DurationVar(&tableTTL, "table-ttl", config.DefaultTableIdleTTL, "Idle time before a cached table is dropped")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	flag.Parse()

	// stderr only: stdout carries the stdio transport
	logger, err := telemetry.NewLogger(config.LogConfig{Level: logLevel, Format: "json"}, "sectorspace-server", os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	zlog.Logger = logger
	ctx := logger.WithContext(context.Background())

	// Security: validate allow-list directories on startup (fail-safe on error)
	secMgr, err := security.NewManagerFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("security: failed to initialize manager from env")
		fmt.Fprintf(os.Stderr, "invalid security configuration; set %s\n", security.AllowedDirsEnv)
		os.Exit(1)
	}
	if err := secMgr.ValidateConfig(); err != nil {
		logger.Error().Err(err).Msg("security: invalid allow-list configuration")
		fmt.Fprintf(os.Stderr, "no allowed directories configured; set %s\n", security.AllowedDirsEnv)
		os.Exit(1)
	}
	logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")

	limits := runtime.NewLimits(maxRequests, maxTables)
	runtimeController := runtime.NewController(limits)
	runtimeMW := runtime.NewMiddleware(runtimeController)

	tables := datasets.NewManager(tableTTL, config.DefaultTableCleanupPeriod, runtimeController, nil)
	tables.SetValidator(secMgr)
	tables.SetMaxRows(limits.MaxRowsPerTable)
	tables.Start()

	hooks := telemetry.NewHooks(logger)
	toolRegistry := registry.New()
	writeFilter := registry.NewWriteToolFilterFromEnv()

	srv := server.NewMCPServer(
		"Sector Space Analysis Server",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks.ServerHooks()),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return writeFilter.FilterTools(ctx, tools) }),
	)

	registry.RegisterSectorTools(srv, toolRegistry, registry.Deps{
		Limits: runtimeController.LimitsSnapshot(),
		Tables: tables,
		Hooks:  hooks,
		Logger: logger,
	})
	if writeFilter.AllowWrites() {
		runner := pipeline.NewRunner(logger, pipeline.WithPathValidator(secMgr))
		registry.RegisterWriteTools(srv, toolRegistry, runner, hooks)
	}

	logger.Info().
		Ctx(ctx).
		Str("version", version.Version()).
		Int("max_concurrent_requests", limits.MaxConcurrentRequests).
		Int("max_open_tables", limits.MaxOpenTables).
		Strs("tools", toolRegistry.Names()).
		Bool("writes_enabled", writeFilter.AllowWrites()).
		Bool("stdio", useStdio).
		Msg("server bootstrap configured")

	if !useStdio {
		// If no transport flags provided, print usage and exit non-zero
		fmt.Fprintln(os.Stderr, "no transport selected; use --stdio to run over stdio")
		os.Exit(2)
	}

	hooks.OnServerStart()
	serveErr := server.ServeStdio(srv)
	hooks.OnServerStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := tables.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("table cache shutdown incomplete")
	}
	cancel()

	if serveErr != nil {
		// Use stderr for transport errors so clients don't misinterpret output
		fmt.Fprintf(os.Stderr, "Server error: %v\n", serveErr)
		os.Exit(1)
	}
}
