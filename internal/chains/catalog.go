// Package chains holds the static catalog of supported networks.
//
// Every assessment needs three data sources for the target network: the
// Safe Transaction Service that indexes Safe configurations, a block
// explorer for human-facing links, and a JSON-RPC endpoint for the
// independent on-chain cross-validation. A network missing from the
// catalog cannot be assessed at all — there is no trusted index to
// compare against.
package chains

import (
	"sort"
	"strings"
)

// Network describes one supported blockchain network.
type Network struct {
	ID             string `json:"id"`             // canonical lower-case identifier
	Name           string `json:"name"`           // display name
	ChainID        int64  `json:"chainId"`        // EIP-155 chain id
	TxServiceBase  string `json:"txServiceBase"`  // Safe Transaction Service base URL
	ExplorerBase   string `json:"explorerBase"`   // block explorer base URL
	RPCNetworkName string `json:"rpcNetworkName"` // name used to resolve the RPC endpoint
}

// catalog is the fixed table of supported networks. Loaded once, read-only.
var catalog = map[string]Network{
	"ethereum": {
		ID:             "ethereum",
		Name:           "Ethereum Mainnet",
		ChainID:        1,
		TxServiceBase:  "https://safe-transaction-mainnet.safe.global",
		ExplorerBase:   "https://etherscan.io",
		RPCNetworkName: "mainnet",
	},
	"sepolia": {
		ID:             "sepolia",
		Name:           "Sepolia Testnet",
		ChainID:        11155111,
		TxServiceBase:  "https://safe-transaction-sepolia.safe.global",
		ExplorerBase:   "https://sepolia.etherscan.io",
		RPCNetworkName: "sepolia",
	},
	"arbitrum": {
		ID:             "arbitrum",
		Name:           "Arbitrum One",
		ChainID:        42161,
		TxServiceBase:  "https://safe-transaction-arbitrum.safe.global",
		ExplorerBase:   "https://arbiscan.io",
		RPCNetworkName: "arbitrum-one",
	},
	"optimism": {
		ID:             "optimism",
		Name:           "OP Mainnet",
		ChainID:        10,
		TxServiceBase:  "https://safe-transaction-optimism.safe.global",
		ExplorerBase:   "https://optimistic.etherscan.io",
		RPCNetworkName: "optimism",
	},
	"base": {
		ID:             "base",
		Name:           "Base",
		ChainID:        8453,
		TxServiceBase:  "https://safe-transaction-base.safe.global",
		ExplorerBase:   "https://basescan.org",
		RPCNetworkName: "base",
	},
	"polygon": {
		ID:             "polygon",
		Name:           "Polygon PoS",
		ChainID:        137,
		TxServiceBase:  "https://safe-transaction-polygon.safe.global",
		ExplorerBase:   "https://polygonscan.com",
		RPCNetworkName: "polygon",
	},
	"gnosis": {
		ID:             "gnosis",
		Name:           "Gnosis Chain",
		ChainID:        100,
		TxServiceBase:  "https://safe-transaction-gnosis-chain.safe.global",
		ExplorerBase:   "https://gnosisscan.io",
		RPCNetworkName: "gnosis",
	},
}

// Resolve looks up a network by identifier. Matching is case-insensitive
// and tolerates surrounding whitespace. The second return value is false
// for unknown networks.
func Resolve(id string) (Network, bool) {
	n, ok := catalog[strings.ToLower(strings.TrimSpace(id))]
	return n, ok
}

// All returns every supported network, for the API's network listing.
// The returned slice is a copy; callers may not mutate the catalog.
func All() []Network {
	result := make([]Network, 0, len(catalog))
	for _, n := range catalog {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// IsSupported reports whether the network id resolves.
func IsSupported(id string) bool {
	_, ok := Resolve(id)
	return ok
}
