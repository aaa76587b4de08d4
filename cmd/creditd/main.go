package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"creditnet/config"
	"creditnet/native/bank"
	"creditnet/native/credit"
	"creditnet/observability"
	"creditnet/observability/logging"
	"creditnet/oracle"
	"creditnet/rpc"
	"creditnet/state"
	"creditnet/storage"
)

// custodyAddress holds deposited collateral on the bank ledger. It is a
// reserved module address, not a user account.
var custodyAddress = moduleAddress("credit/custody")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CREDITD_ENV"))
	logger := logging.Setup("creditd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" && cfg.Environment != "" {
		logger = logging.Setup("creditd", cfg.Environment)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	ledger := bank.NewLedger(manager)
	vault := bank.NewVault(ledger, custodyAddress)

	feeds := oracle.NewManual()
	for _, feed := range cfg.Feeds {
		price, ok := new(big.Int).SetString(strings.TrimSpace(feed.Price), 10)
		if !ok {
			logger.Error("Invalid feed price", "ref", feed.Ref, "price", feed.Price)
			os.Exit(1)
		}
		feeds.Set(feed.Ref, price, feed.Decimals, time.Now().Unix())
	}

	pricing := credit.NewPriceSource(feeds, time.Duration(cfg.PriceMaxAgeSecs)*time.Second)
	engine := credit.NewEngine(manager, vault, pricing)

	emitter := observability.NewLogEmitter(logger)
	engine.SetEmitter(emitter)
	ledger.SetEmitter(emitter)

	owner, err := config.ParseAddress(cfg.OwnerAddress)
	if err != nil {
		logger.Error("Invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}
	if err := engine.InitOwner(owner); err != nil && !errors.Is(err, credit.ErrAlreadyInitialised) {
		logger.Error("Failed to initialise ledger owner", slog.Any("error", err))
		os.Exit(1)
	}

	if err := seedRegistry(engine, owner, cfg); err != nil {
		logger.Error("Failed to seed asset registry", slog.Any("error", err))
		os.Exit(1)
	}
	if err := seedRelayers(engine, owner, cfg); err != nil {
		logger.Error("Failed to seed relayers", slog.Any("error", err))
		os.Exit(1)
	}
	if threshold := strings.TrimSpace(cfg.MinConsume); threshold != "" {
		value, ok := new(big.Int).SetString(threshold, 10)
		if !ok {
			logger.Error("Invalid MinConsume", "value", cfg.MinConsume)
			os.Exit(1)
		}
		if err := engine.SetMinimumConsumeThreshold(owner, value); err != nil {
			logger.Error("Failed to set consume threshold", slog.Any("error", err))
			os.Exit(1)
		}
	}

	obs := rpc.NewObservability(rpc.ObservabilityConfig{
		ServiceName: "creditd",
		LogRequests: cfg.LogRequests,
		Enabled:     cfg.MetricsEnabled,
	}, logger)
	server := rpc.NewServer(engine, obs, logger)

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("RPC listening", "address", cfg.RPCAddress, "network", cfg.NetworkName)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("RPC server failed", slog.Any("error", err))
		os.Exit(1)
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
}

func seedRegistry(engine *credit.Engine, owner [20]byte, cfg *config.Config) error {
	for _, asset := range cfg.Assets {
		addr, err := config.ParseAddress(asset.Address)
		if err != nil {
			return err
		}
		mode, err := rpc.ParsePriceMode(asset.Mode)
		if err != nil {
			return fmt.Errorf("asset %s: %w", asset.Address, err)
		}
		err = engine.RegisterAsset(owner, addr, asset.Precision, mode, asset.OracleRef)
		if err != nil && !errors.Is(err, credit.ErrAssetExists) {
			return fmt.Errorf("register %s: %w", asset.Address, err)
		}
	}
	return nil
}

func seedRelayers(engine *credit.Engine, owner [20]byte, cfg *config.Config) error {
	for _, raw := range cfg.Relayers {
		relayer, err := config.ParseAddress(raw)
		if err != nil {
			return err
		}
		if err := engine.AuthorizeRelayer(owner, relayer); err != nil {
			return fmt.Errorf("authorize %s: %w", raw, err)
		}
	}
	return nil
}

// moduleAddress derives a stable reserved address from a label. The first
// byte is forced non-zero so module accounts never collide with the zero
// address.
func moduleAddress(label string) [20]byte {
	var addr [20]byte
	copy(addr[:], label)
	addr[0] |= 0x80
	return addr
}
