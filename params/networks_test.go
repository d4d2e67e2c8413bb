package params

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEphemeralChains(t *testing.T) {
	tests := []struct {
		chainID uint64
		want    bool
	}{
		{31337, true},
		{31338, true},
		{1, false},
		{11155111, false},
	}
	for _, tt := range tests {
		if got := Ephemeral(tt.chainID); got != tt.want {
			t.Errorf("Ephemeral(%d) = %v, want %v", tt.chainID, got, tt.want)
		}
	}
}

func TestLoadNetworksMissingFileFallsBack(t *testing.T) {
	nets, err := LoadNetworks(filepath.Join(t.TempDir(), "networks.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := nets.Lookup(31337); !ok {
		t.Error("fallback registry missing the devnet entry")
	}
}

func TestLoadNetworks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.toml")
	content := `
[chains.31337]
name = "localhost"
backfill_window = 2000

[chains.11155111]
name = "sepolia"
exchange = "0x9bb18347D417a2b51b3Dd8eBbA25E9bd875f1b7e"
deployment_block = 5400000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	nets, err := LoadNetworks(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	local, ok := nets.Lookup(31337)
	if !ok || local.BackfillWindow != 2000 {
		t.Errorf("localhost entry: %+v ok=%v", local, ok)
	}
	sepolia, ok := nets.Lookup(11155111)
	if !ok || sepolia.DeploymentBlock != 5400000 || sepolia.Name != "sepolia" {
		t.Errorf("sepolia entry: %+v ok=%v", sepolia, ok)
	}
	if _, ok := nets.Lookup(1); ok {
		t.Error("unknown chain id resolved")
	}
}

func TestLoadNetworksRejectsEmptyRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.toml")
	if err := os.WriteFile(path, []byte("# nothing\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadNetworks(path); err == nil {
		t.Error("empty registry accepted")
	}
}
