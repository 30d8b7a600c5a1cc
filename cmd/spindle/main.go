package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/HakAl/spindle/internal/api"
	"github.com/HakAl/spindle/internal/config"
	"github.com/HakAl/spindle/internal/journal"
	"github.com/HakAl/spindle/internal/proxy"
	"github.com/HakAl/spindle/internal/store"
	"github.com/HakAl/spindle/internal/ws"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Subcommand dispatch before flag parsing
	if len(os.Args) > 1 && os.Args[1] == "run" {
		handleRunCommand(os.Args[2:])
		return
	}

	// CLI flags
	configPath := flag.String("config", "", "Path to config file")
	listenAddr := flag.String("listen", "", "Proxy listen address (overrides config)")
	upstreamURL := flag.String("upstream", "", "Upstream base URL (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("spindle %s (%s)\n", version, commit)
		os.Exit(0)
	}

	// Setup logging
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		printError("Failed to load configuration", err, configLoadFix(*configPath))
	}

	// CLI overrides
	if *listenAddr != "" {
		cfg.Proxy.Listen = *listenAddr
	}
	if *upstreamURL != "" {
		cfg.Proxy.UpstreamURL = *upstreamURL
	}

	// Create journal
	jnl, err := journal.New(&cfg.Journal, logger)
	if err != nil {
		printError("Failed to open journal", err, journalPathFix(cfg.Journal.Path))
	}
	defer jnl.Close()
	slog.Info("journal opened", "path", cfg.Journal.Path)

	// Create store
	dataStore, err := store.NewSQLiteStore(cfg.Store.DBPath, &cfg.Retention)
	if err != nil {
		if isDBLocked(err) {
			printError("Failed to open database", err, dbLockedFix(cfg.Store.DBPath))
		}
		printError("Failed to open database", err, dbPathFix(cfg.Store.DBPath))
	}
	defer dataStore.Close()
	slog.Info("database opened", "path", cfg.Store.DBPath)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Live feed hub
	hub := ws.NewHub(cfg, logger)
	go hub.Run(ctx)

	// Create proxy
	proxyServer, err := proxy.New(proxy.ServerConfig{
		Config:  cfg,
		Logger:  logger,
		Journal: jnl,
		Store:   dataStore,
		OnSpindle: func(sp *store.Spindle) {
			hub.BroadcastSpindle(sp)
		},
	})
	if err != nil {
		slog.Error("failed to create proxy", "error", err)
		os.Exit(1)
	}

	// Query API
	apiServer := api.NewServer(cfg, dataStore, jnl, hub.Handler(), version, logger)

	// Retention sweep at startup
	if deleted, err := dataStore.RunRetention(ctx); err != nil {
		slog.Warn("retention sweep failed", "error", err)
	} else if deleted > 0 {
		slog.Info("retention sweep", "deleted", deleted)
	}

	// Write state file so `spindle run` can find us
	stateStore, err := NewFileStateStore()
	if err != nil {
		slog.Error("failed to create state store", "error", err)
		os.Exit(1)
	}
	if err := stateStore.Write(ServerState{
		ProxyAddr:   cfg.Proxy.Listen,
		APIAddr:     cfg.API.Listen,
		UpstreamURL: cfg.Proxy.UpstreamURL,
		PID:         os.Getpid(),
		StartedAt:   time.Now(),
	}); err != nil {
		slog.Warn("failed to write state file", "error", err)
	}
	defer stateStore.Delete()

	slog.Info("starting spindle",
		"listen", cfg.Proxy.Listen,
		"upstream", cfg.Proxy.UpstreamURL,
		"api", cfg.API.Listen,
	)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Proxy:    http://%s\n", cfg.Proxy.Listen)
	fmt.Fprintf(os.Stderr, "  API:      http://%s\n", cfg.API.Listen)
	fmt.Fprintf(os.Stderr, "  Journal:  %s\n", cfg.Journal.Path)
	fmt.Fprintf(os.Stderr, "  Token:    %s\n", cfg.API.Token)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprint(os.Stderr, formatEnvVars(cfg.Proxy.Listen, runtime.GOOS))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Serve(ctx); err != nil {
			slog.Error("API server error", "error", err)
			cancel()
		}
	}()

	if err := proxyServer.Serve(ctx); err != nil && err != context.Canceled {
		if isAddrInUse(err) {
			cancel()
			wg.Wait()
			printError("Failed to bind proxy port", err, portInUseFix(cfg.Proxy.Listen))
		}
		slog.Error("proxy error", "error", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}
	wg.Wait()

	slog.Info("spindle shutdown complete")
}
