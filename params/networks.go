package params

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Network describes a deployed instance of the exchange on one chain.
// Ephemeral local chains restart from genesis, so their deployment block
// is meaningless; projections there backfill a recent window instead.
type Network struct {
	Name            string `toml:"name"`
	Exchange        string `toml:"exchange"`
	BaseToken       string `toml:"base_token"`
	QuoteToken      string `toml:"quote_token"`
	ExplorerURL     string `toml:"explorer_url"`
	DeploymentBlock uint64 `toml:"deployment_block"`
	BackfillWindow  uint64 `toml:"backfill_window"`
}

type Networks struct {
	Chains map[string]Network `toml:"chains"`
}

// Ephemeral reports whether the chain id belongs to a throwaway local
// devnet that resets its history on restart.
func Ephemeral(chainID uint64) bool {
	return chainID == 31337 || chainID == 31338
}

// LoadNetworks parses a TOML registry of known deployments keyed by
// chain id. A missing file is not an error: callers fall back to the
// built-in devnet entry.
func LoadNetworks(path string) (Networks, error) {
	var nets Networks
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultNetworks(), nil
	}
	if _, err := toml.DecodeFile(path, &nets); err != nil {
		return Networks{}, fmt.Errorf("parse networks file %s: %w", path, err)
	}
	if len(nets.Chains) == 0 {
		return Networks{}, fmt.Errorf("networks file %s defines no chains", path)
	}
	return nets, nil
}

func DefaultNetworks() Networks {
	return Networks{
		Chains: map[string]Network{
			"31337": {
				Name:           "localhost",
				BackfillWindow: 2000,
			},
		},
	}
}

// Lookup returns the registry entry for a chain id, if any.
func (n Networks) Lookup(chainID uint64) (Network, bool) {
	net, ok := n.Chains[fmt.Sprintf("%d", chainID)]
	return net, ok
}
