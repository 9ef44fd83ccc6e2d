package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rackwise/autocable/internal/classify"
	"github.com/rackwise/autocable/internal/config"
	"github.com/rackwise/autocable/internal/correlate"
	"github.com/rackwise/autocable/internal/fdb"
	"github.com/rackwise/autocable/internal/netbox"
	"github.com/rackwise/autocable/internal/service"
	"github.com/rackwise/autocable/internal/state"
)

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env-file", ".env", "path to dotenv file")
	logLevel := flag.String("log-level", "", "log level: DEBUG, INFO, WARNING, ERROR (overrides LOG_LEVEL)")
	logFormat := flag.String("log-format", "", "log format: text, json, kv (overrides LOG_FORMAT)")
	dryRun := flag.Bool("dry-run", false, "log cable intents instead of creating them")
	daemon := flag.Bool("daemon", false, "run continuously on the poll interval")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *dryRun {
		cfg.DryRun = true
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	daemonMode := *daemon || cfg.PollInterval > 0

	logger.Info("ipmi auto-cabling starting",
		zap.String("netbox", cfg.NetBoxURL),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Bool("daemon", daemonMode))

	classifier, err := classify.New(cfg.UplinkPorts, cfg.UplinkPatterns)
	if err != nil {
		logger.Error("invalid uplink patterns", zap.Error(err))
		return 1
	}

	store, err := state.Open(cfg.StateDBPath)
	if err != nil {
		logger.Error("failed to open state store",
			zap.String("path", cfg.StateDBPath), zap.Error(err))
		return 1
	}
	defer store.Close()

	client := netbox.NewClient(netbox.Options{
		URL:         cfg.NetBoxURL,
		Token:       cfg.NetBoxToken,
		VerifySSL:   cfg.NetBoxVerifySSL,
		Timeout:     cfg.NetBoxTimeout,
		SwitchRole:  cfg.SwitchesRole,
		CableStatus: cfg.CableStatus,
		DryRun:      cfg.DryRun,
	}, logger.Named("netbox"))

	var source service.FDBSource = fdb.NewCollector(fdb.Config{
		Community: cfg.SNMPCommunity,
		Version:   cfg.SNMPVersion,
		Timeout:   cfg.SNMPTimeout,
		Retries:   cfg.SNMPRetries,
	}, logger.Named("fdb"))
	if cfg.FDBSnapshot != "" {
		snapshot, err := fdb.LoadSnapshot(cfg.FDBSnapshot)
		if err != nil {
			logger.Error("failed to load FDB snapshot", zap.Error(err))
			return 1
		}
		logger.Info("using FDB snapshot instead of SNMP",
			zap.String("path", cfg.FDBSnapshot))
		source = snapshot
	}

	mlagPairs := correlate.ParseMLAGGroups(cfg.MLAGGroups)
	correlator := correlate.New(classifier, store, client, mlagPairs, cfg.StabilityRuns, logger.Named("correlate"))

	var metrics *service.Metrics
	if daemonMode && cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics = service.NewMetrics(registry)
		go serveMetrics(cfg.MetricsAddr, registry, logger)
	}

	svc := service.New(client, source, correlator, store, metrics, service.Options{
		Concurrency:  cfg.FDBConcurrency,
		PollInterval: cfg.PollInterval,
		DryRun:       cfg.DryRun,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if daemonMode {
		svc.RunDaemon(ctx)
		return 0
	}

	summary, err := svc.RunOnce(ctx)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return 1
	}
	if summary.Errors > 0 {
		return 2
	}
	return 0
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}
