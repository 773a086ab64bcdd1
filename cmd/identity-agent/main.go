package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aegis-id/go-agent/internal/command"
	"aegis-id/go-agent/internal/config"
	"aegis-id/go-agent/internal/crypto"
	"aegis-id/go-agent/internal/identity"
	"aegis-id/go-agent/internal/resolver"
	"aegis-id/go-agent/internal/wallet"

	"github.com/mr-tron/base58/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to agent.yaml (optional)")
	walletPath := flag.String("wallet-path", "", "Encrypted wallet file path (default in-memory)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address override")
	flag.Parse()
	if *showVersion {
		fmt.Printf("identity-agent version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadFromPath(*configPath)
	if *walletPath != "" {
		cfg.Wallet.Path = *walletPath
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddress = *metricsAddr
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(ctx, cfg, log); err != nil {
		log.Error("identity-agent failed", "error", err)
		os.Exit(1)
	}
	log.Info("identity-agent stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var store wallet.Store
	if cfg.Wallet.Path != "" {
		if cfg.Wallet.Secret == "" {
			return errors.New("wallet path set without a wallet secret")
		}
		store = wallet.NewFileStore(cfg.Wallet.Path, cfg.Wallet.Secret)
		log.Info("using encrypted file wallet", "path", cfg.Wallet.Path)
	} else {
		store = wallet.NewMemoryStore()
		log.Info("using in-memory wallet")
	}

	static := resolver.NewStaticResolver()
	for _, peer := range cfg.Resolver.StaticPeers {
		verkey, err := base58.Decode(peer.Verkey)
		if err != nil {
			return fmt.Errorf("static peer %s has an invalid verkey: %w", peer.Did, err)
		}
		endpoint, err := resolver.NormalizeEndpoint(peer.Endpoint)
		if err != nil {
			return fmt.Errorf("static peer %s has an invalid endpoint: %w", peer.Did, err)
		}
		static.Add(peer.Did, resolver.Resolution{Verkey: verkey, Endpoint: endpoint})
	}
	res := resolver.NewRateLimited(static, cfg.Resolver.RatePerSecond, cfg.Resolver.Burst, cfg.Resolver.IdleTTL)

	service := identity.NewService(store, crypto.DefaultRegistry(), res, cfg.Resolver.Timeout)
	executor := command.NewExecutor(service, command.Options{
		QueueCapacity: cfg.Queue.Capacity,
		Logger:        log,
		Metrics:       command.NewMetrics(prometheus.DefaultRegisterer),
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics endpoint listening", "addr", cfg.Metrics.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("identity-agent started",
		"version", version,
		"queue_capacity", cfg.Queue.Capacity,
		"resolver_timeout", cfg.Resolver.Timeout,
		"static_peers", len(cfg.Resolver.StaticPeers))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		executor.Close()
		return fmt.Errorf("metrics server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown", "error", err)
	}

	// Close drains the in-flight command and fails any still-queued ones.
	executor.Close()
	return nil
}
