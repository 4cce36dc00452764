package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"packscan/internal/application"
	"packscan/internal/config"
	"packscan/internal/infrastructure/ethrpc"
	"packscan/internal/infrastructure/explorer"
	"packscan/internal/infrastructure/kafka"
	"packscan/internal/infrastructure/logging"
	"packscan/internal/infrastructure/mysql"
	"packscan/internal/infrastructure/storage"
	"packscan/internal/infrastructure/telemetry"
	"packscan/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logWriter, err := logging.Init(logging.Config{
		Service:    "packscan",
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		slog.Error("logger init error", "err", err)
	}
	if logWriter != nil {
		defer logWriter.Close()
	}

	shutdownTracing, err := telemetry.InitTracer(context.Background(), "packscan", version, cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("tracing shutdown error", "err", err)
		}
	}()

	rpcClient, err := ethrpc.NewClient(ethrpc.Config{URL: cfg.RPCURL, CallTimeout: cfg.RPCTimeout})
	if err != nil {
		slog.Error("rpc error", "err", err)
		os.Exit(1)
	}
	explorerClient, err := explorer.NewClient(explorer.Config{
		BaseURL: cfg.ExplorerURL,
		ChainID: cfg.ExplorerChainID,
		APIKey:  cfg.ExplorerAPIKey,
		Timeout: cfg.RPCTimeout,
	})
	if err != nil {
		slog.Error("explorer error", "err", err)
		os.Exit(1)
	}

	metrics := httpapi.NewMetrics()
	deps := application.EngineDeps{
		Chain:           rpcClient,
		Explorer:        explorerClient,
		FetcherObserver: metrics,
		Hooks:           application.ScannerHooks{Observer: metrics},
	}

	if cfg.RedisAddr != "" {
		cache, err := mysql.NewBlockTimeCache(mysql.CacheConfig{Addr: cfg.RedisAddr, TTL: cfg.BlockCacheTTL})
		if err != nil {
			slog.Warn("block time cache disabled", "err", err)
		} else {
			defer cache.Close()
			deps.BlockTimes = cache
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			ChainID: cfg.ExplorerChainID,
		})
		if err != nil {
			slog.Warn("pack publisher disabled", "err", err)
		} else {
			defer producer.Close()
			deps.Hooks.Publisher = producer
		}
	}

	var history httpapi.ScanHistory
	if cfg.JournalDSN != "" {
		journal, err := storage.OpenJournal(cfg.JournalDSN)
		if err != nil {
			slog.Error("journal error", "err", err)
			os.Exit(1)
		}
		defer journal.Close()
		deps.Hooks.Recorder = journal
		history = journal
	}

	scanner, err := application.NewEngine(cfg.EngineConfig(), deps)
	if err != nil {
		slog.Error("engine error", "err", err)
		os.Exit(1)
	}

	server, err := httpapi.NewServer(scanner, rpcClient, history, metrics, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if logWriter != nil {
		go rotateOnHangup(ctx, logWriter)
	}

	slog.Info("packscan started",
		"version", version,
		"rpc", cfg.RPCURL,
		"explorer_key", explorerClient.HasAPIKey(),
		"block_cache", deps.BlockTimes != nil,
		"publisher", deps.Hooks.Publisher != nil,
		"journal", history != nil,
	)
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		slog.Error("http server error", "err", err)
		cancel()
	}
	slog.Info("packscan stopped")
}

func rotateOnHangup(ctx context.Context, writer *logging.RotatingWriter) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := writer.Rotate(); err != nil {
				slog.Warn("log rotation failed", "err", err)
			}
		}
	}
}
