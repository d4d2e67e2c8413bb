package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Node struct {
	// ChainID identifies the network this node serves. Ephemeral devnet
	// ids (31337, 31338) get window-based backfill instead of a fixed
	// deployment block.
	ChainID uint64

	// BlockInterval throttles block production so consecutive submissions
	// land in distinct blocks without spamming empty ones.
	//
	// Recommended values:
	//   - Devnet:  200ms (5 blocks/sec)
	//   - Testnet: 100ms
	BlockInterval time.Duration

	ListenAddr string
	DataDir    string
	LogFile    string
}

type Market struct {
	// FeePercentage is the taker fee in whole percent, floored on settlement.
	FeePercentage uint64

	// FaucetDailyLimit caps per-account faucet claims in whole tokens.
	FaucetDailyLimit uint64
}

type Config struct {
	Node   Node
	Market Market
}

func Default() Config {
	return Config{
		Node: Node{
			ChainID:       31337,
			BlockInterval: 200 * time.Millisecond,
			ListenAddr:    ":8080",
			DataDir:       "data",
			LogFile:       "",
		},
		Market: Market{
			FeePercentage:    10,
			FaucetDailyLimit: 500,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Node.ChainID = id
		}
	}
	if v := os.Getenv("BLOCK_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Node.BlockInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Node.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("FEE_PERCENTAGE"); v != "" {
		if pct, err := strconv.ParseUint(v, 10, 64); err == nil && pct <= 100 {
			cfg.Market.FeePercentage = pct
		}
	}
	if v := os.Getenv("FAUCET_DAILY_LIMIT"); v != "" {
		if lim, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Market.FaucetDailyLimit = lim
		}
	}

	return cfg
}
