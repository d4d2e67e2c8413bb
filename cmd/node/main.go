package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexhub/tokenex/params"
	"github.com/dexhub/tokenex/pkg/api"
	"github.com/dexhub/tokenex/pkg/chain"
	"github.com/dexhub/tokenex/pkg/exchange"
	"github.com/dexhub/tokenex/pkg/projector"
	"github.com/dexhub/tokenex/pkg/storage"
	"github.com/dexhub/tokenex/pkg/token"
	"github.com/dexhub/tokenex/pkg/util"
	"github.com/dexhub/tokenex/pkg/wallet"
)

func main() {
	cfg := params.LoadFromEnv("")

	logFile := cfg.Node.LogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.Node.DataDir, "node.log")
	}
	os.MkdirAll(cfg.Node.DataDir, 0755)

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("node starting",
		zap.Uint64("chain_id", cfg.Node.ChainID),
		zap.String("log_file", logFile))

	// ---- Operator identity ----
	// The owner key funds initial token supply and collects fees. A fresh
	// key per run is fine on ephemeral devnets; persistent deployments set
	// OWNER_PRIVATE_KEY.
	var owner *wallet.Signer
	if hexKey := os.Getenv("OWNER_PRIVATE_KEY"); hexKey != "" {
		owner, err = wallet.FromPrivateKeyHex(hexKey)
	} else {
		owner, err = wallet.GenerateKey()
	}
	if err != nil {
		logger.Fatal("owner key", zap.Error(err))
	}
	logger.Info("operator account", zap.String("address", owner.Address().Hex()))

	// ---- Storage ----
	store, err := storage.Open(filepath.Join(cfg.Node.DataDir, "chain"))
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer store.Close()

	// ---- Chain host ----
	host := chain.New(cfg.Node.ChainID, logger,
		chain.WithBlockInterval(cfg.Node.BlockInterval),
		chain.WithSink(store))

	// ---- Contracts ----
	supply := new(big.Int).Mul(big.NewInt(1_000_000), oneToken())
	faucetLimit := new(big.Int).Mul(new(big.Int).SetUint64(cfg.Market.FaucetDailyLimit), oneToken())

	dex := token.New("DexHub Token", "DEX", owner.Address(), owner.Address(), supply, faucetLimit)
	musd := token.New("Mock USD", "mUSD", owner.Address(), owner.Address(), supply, faucetLimit)

	exch := exchange.New(host, owner.Address(), owner.Address(), cfg.Market.FeePercentage, logger)
	exch.RegisterToken(dex.Address(), dex)
	exch.RegisterToken(musd.Address(), musd)

	// ---- Replay persisted history ----
	logs, err := store.LoadLogs()
	if err != nil {
		logger.Fatal("load event log", zap.Error(err))
	}
	host.Restore(logs)
	if state, err := store.LoadState(); err != nil {
		logger.Fatal("load state", zap.Error(err))
	} else if state != nil {
		exch.Restore(state)
	}
	logger.Info("history restored",
		zap.Uint64("height", host.Head()),
		zap.Uint64("orders", exch.GetOrderCount()))

	// ---- Projection ----
	networks, err := params.LoadNetworks("networks.toml")
	if err != nil {
		logger.Fatal("load networks", zap.Error(err))
	}
	policy := projector.BackfillPolicy{Ephemeral: true, Window: 2000}
	if net, ok := networks.Lookup(cfg.Node.ChainID); ok {
		policy = projector.BackfillPolicy{
			Ephemeral:       params.Ephemeral(cfg.Node.ChainID),
			Window:          net.BackfillWindow,
			DeploymentBlock: net.DeploymentBlock,
		}
	}

	proj := projector.New(logger)
	session := projector.NewSession(host, proj, common.Address{}, policy, projector.Hooks{}, logger)
	session.Start()
	defer session.Close()

	// ---- API ----
	market := projector.Market{Base: dex.Address(), Quote: musd.Address()}
	tokens := map[string]*token.Token{dex.Symbol(): dex, musd.Symbol(): musd}
	server := api.NewServer(exch, host, proj, market, tokens, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Node.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("api server", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("stop api server", zap.Error(err))
	}

	if err := store.SaveState(exch.Snapshot()); err != nil {
		logger.Error("save state", zap.Error(err))
	}
}

// oneToken is 10^18, the unit scale for 18-decimal tokens.
func oneToken() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}
