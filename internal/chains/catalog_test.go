package chains

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantOK  bool
		chainID int64
	}{
		{"ethereum", "ethereum", true, 1},
		{"Ethereum", "ethereum", true, 1},
		{"  GNOSIS  ", "gnosis", true, 100},
		{"arbitrum", "arbitrum", true, 42161},
		{"solana", "", false, 0},
		{"", "", false, 0},
	}

	for _, tt := range tests {
		n, ok := Resolve(tt.in)
		if ok != tt.wantOK {
			t.Errorf("Resolve(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if n.ID != tt.want {
			t.Errorf("Resolve(%q) id = %q, want %q", tt.in, n.ID, tt.want)
		}
		if n.ChainID != tt.chainID {
			t.Errorf("Resolve(%q) chain id = %d, want %d", tt.in, n.ChainID, tt.chainID)
		}
	}
}

func TestAllSortedAndComplete(t *testing.T) {
	all := All()
	if len(all) != len(catalog) {
		t.Fatalf("All() returned %d networks, catalog has %d", len(all), len(catalog))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Errorf("All() not sorted: %q before %q", all[i-1].ID, all[i].ID)
		}
	}
	for _, n := range all {
		if n.TxServiceBase == "" || n.ExplorerBase == "" || n.RPCNetworkName == "" {
			t.Errorf("network %q has incomplete endpoints", n.ID)
		}
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("base") {
		t.Error("base should be supported")
	}
	if IsSupported("bitcoin") {
		t.Error("bitcoin should not be supported")
	}
}
