package main

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resi-labs-ai/resi-labs-api/internal/chain"
	"github.com/resi-labs-ai/resi-labs-api/internal/commitment"
	"github.com/resi-labs-ai/resi-labs-api/internal/config"
	"github.com/resi-labs-ai/resi-labs-api/internal/credentials"
	"github.com/resi-labs-ai/resi-labs-api/internal/depalert"
	"github.com/resi-labs-ai/resi-labs-api/internal/health"
	"github.com/resi-labs-ai/resi-labs-api/internal/httpapi"
	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
	"github.com/resi-labs-ai/resi-labs-api/internal/metrics"
	"github.com/resi-labs-ai/resi-labs-api/internal/opslog"
	"github.com/resi-labs-ai/resi-labs-api/internal/ratelimit"
	"github.com/resi-labs-ai/resi-labs-api/internal/scheduler"
	"github.com/resi-labs-ai/resi-labs-api/internal/selfstats"
	"github.com/resi-labs-ai/resi-labs-api/internal/validatorupload"
	"github.com/resi-labs-ai/resi-labs-api/internal/verify"
	"github.com/resi-labs-ai/resi-labs-api/internal/zipcodestore"
)

//go:embed config.example.yml
var configExample []byte

func main() {
	logger.Init()

	configPath, dataDir, err := parseFlags()
	if err != nil {
		logger.Error("INIT", "Failed to resolve config path: %v", err)
		os.Exit(1)
	}

	if err := ensureDefaultConfig(configPath, configExample); err != nil {
		logger.Error("INIT", "Failed to ensure default config: %v", err)
		os.Exit(1)
	}

	logger.Info("INIT", "Loading config from %s...", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("INIT", "Failed to load config: %v", err)
		os.Exit(1)
	}
	applyDataDirDefaults(cfg, dataDir)
	logger.Info("INIT", "Config loaded. NetUID: %d, Network: %s", cfg.Chain.NetUID, cfg.Chain.Network)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("INIT", "Dialing chain node...")
	client, err := chain.Dial(ctx, "primary", cfg.Chain.RPCURL)
	if err != nil {
		logger.Error("INIT", "Failed to dial chain node: %v", err)
		os.Exit(1)
	}
	nodeMgr := chain.NewNodeManager([]*chain.Client{client}, 30*time.Second)
	nodeMgr.Start(ctx)

	chainState := chain.NewStateStore(cfg.Advanced.StateFile)
	chainView := chain.NewView(cfg.Chain.NetUID, nodeMgr, chainState,
		config.ParseDuration(cfg.Chain.SyncInterval), config.ParseDuration(cfg.Chain.MaxStale), cfg.Chain.FallbackEnabled)
	chainView.WarmStart()
	if err := chainView.InitialSync(ctx); err != nil {
		logger.Error("INIT", "Initial chain sync failed: %v", err)
		os.Exit(1)
	}
	chainView.Start(ctx)

	watcher := chain.NewWatcher(chainView, client)
	watcher.Start(ctx)

	logger.Info("INIT", "Connecting to zipcode/epoch store...")
	store, err := zipcodestore.Connect(cfg.Epoch.DatabaseURL)
	if err != nil {
		logger.Error("INIT", "Failed to connect to store: %v", err)
		os.Exit(1)
	}
	if err := store.Migrate(); err != nil {
		logger.Error("INIT", "Migration failed: %v", err)
		os.Exit(1)
	}

	var redisClient redis.Scripter
	if cfg.RateLimit.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err != nil {
			logger.Error("INIT", "Invalid redis_url: %v", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
	}
	limiter := ratelimit.New(redisClient, cfg.RateLimit.Enabled)

	schemes := verify.NewRegistry(verify.NewEd25519Scheme(), &verify.Sr25519Scheme{})
	validator := commitment.NewValidator(schemes, cfg.Chain.SignatureScheme, chainView,
		config.ParseDuration(cfg.Server.TimestampSkew), config.ParseDuration(cfg.Advanced.SignatureVerificationTimeout))

	minter := credentials.NewMinter(credentials.Config{
		Bucket:           cfg.Store.Bucket,
		Region:           cfg.Store.Region,
		AccessKeyID:      cfg.Store.AccessKeyID,
		SecretAccessKey:  cfg.Store.SecretAccessKey,
		MaxCredentialTTL: config.ParseDuration(cfg.Server.MaxCredentialTTL),
	})
	uploadSvc := validatorupload.NewService(store, minter, config.ParseDuration(cfg.Epoch.UploadTTL))

	exporter := metrics.NewExporter(cfg.Server.MetricsPrefix)

	sched := scheduler.New(store, cfg.Epoch, cfg.Selector, exporter)
	sched.Start(ctx)

	checker := health.NewChecker(chainView, store, limiter, sched, config.ParseDuration(cfg.Chain.MaxStale))
	checker.Start(ctx, 30*time.Second)

	stats := selfstats.New()

	logger.Info("INIT", "Starting HTTP API on port %d...", cfg.Server.Port)
	api := httpapi.NewServer(*cfg, validator, limiter, minter, sched, uploadSvc, chainView, store, exporter, checker, stats)
	api.Start(ctx)

	startMetricsServer(ctx, cfg.Server.PrometheusPort)

	probe := func(ctx context.Context) depalert.Probes {
		snap := chainView.Snapshot()
		staleness := time.Duration(0)
		if snap != nil {
			staleness = time.Since(snap.SyncedAt)
		}
		lastFailed, failureCount := sched.GenerationHealth()
		h := checker.Snapshot()
		return depalert.Probes{
			ChainStaleness:       staleness,
			LastEpochGenFailed:   lastFailed,
			EpochGenFailureCount: failureCount,
			StoreUnavailable:     !h.StoreOK,
			RateLimiterDegraded:  !h.RateLimiterOK,
		}
	}
	alertMgr := depalert.NewManager(cfg.Alerts, probe)
	alertMgr.Start(ctx)

	opsServer := opslog.NewServer()
	opsServer.Start(ctx, cfg.Advanced.OpsLogPort)

	logger.Info("SYS", "resi-labs-api started (NetUID: %d)", cfg.Chain.NetUID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("SYS", "Shutting down gracefully...")
	cancel()
	store.Close()
	client.Close()

	time.Sleep(1 * time.Second)
	logger.Info("SYS", "Shutdown complete")
}

// startMetricsServer exposes Prometheus scrape output on its own port, the
// same split the upstream monitor uses when its metrics and dashboard ports
// differ: a dedicated mux rather than piggybacking on the public API's.
func startMetricsServer(ctx context.Context, port int) {
	if port <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("METRICS", "server failed: %v", err)
		}
	}()
}

func ensureDefaultConfig(path string, example []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if len(example) == 0 {
		return fmt.Errorf("embedded config.example.yml is empty")
	}

	return os.WriteFile(path, example, 0o644)
}
