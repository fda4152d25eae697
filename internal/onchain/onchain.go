// Package onchain re-derives a Safe's configuration from the chain
// itself, bypassing the indexing API entirely.
//
// Two sources of truth exist for a multisig's configuration: what the
// transaction index reports and what the contracts actually say. This
// package produces the second one from the creation transaction plus
// live contract state, so the assessment engine can compare the two
// field by field. It also decodes the initializer address embedded in
// the creation call data.
package onchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/safescope/safescope/internal/chains"
	"github.com/safescope/safescope/internal/logging"
)

// Typed errors.
var (
	ErrNoEndpoint   = errors.New("onchain: no RPC endpoint configured for network")
	ErrNotCreation  = errors.New("onchain: transaction is not a recognized proxy creation")
	ErrNoSetupData  = errors.New("onchain: creation transaction carries no setup call data")
	ErrProxyMissing = errors.New("onchain: no proxy creation event in receipt")
)

// State is the independently-derived snapshot of a Safe: creation facts
// decoded from the transaction, current facts read from contract
// storage. All addresses are lower-cased.
type State struct {
	ProxyAddress    string
	Creator         string
	Factory         string
	Mastercopy      string // current singleton from storage slot 0
	Initializer     string // setup() delegatecall target from creation call data
	FallbackHandler string
	Guard           string
	Version         string
	Owners          []string
	Modules         []string
	Threshold       int
}

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Minimal ABI fragments for the Safe contract surface we read.
const safeABIJSON = `[
	{"constant":true,"inputs":[],"name":"getOwners","outputs":[{"name":"","type":"address[]"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getThreshold","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"start","type":"address"},{"name":"pageSize","type":"uint256"}],"name":"getModulesPaginated","outputs":[{"name":"array","type":"address[]"},{"name":"next","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"VERSION","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

const factoryABIJSON = `[
	{"inputs":[{"name":"_singleton","type":"address"},{"name":"initializer","type":"bytes"},{"name":"saltNonce","type":"uint256"}],"name":"createProxyWithNonce","outputs":[{"name":"proxy","type":"address"}],"type":"function"},
	{"inputs":[{"name":"_singleton","type":"address"},{"name":"initializer","type":"bytes"},{"name":"saltNonce","type":"uint256"},{"name":"callback","type":"address"}],"name":"createProxyWithCallback","outputs":[{"name":"proxy","type":"address"}],"type":"function"},
	{"inputs":[{"name":"masterCopy","type":"address"},{"name":"data","type":"bytes"}],"name":"createProxy","outputs":[{"name":"proxy","type":"address"}],"type":"function"}
]`

const setupABIJSON = `[
	{"inputs":[{"name":"_owners","type":"address[]"},{"name":"_threshold","type":"uint256"},{"name":"to","type":"address"},{"name":"data","type":"bytes"},{"name":"fallbackHandler","type":"address"},{"name":"paymentToken","type":"address"},{"name":"payment","type":"uint256"},{"name":"paymentReceiver","type":"address"}],"name":"setup","outputs":[],"type":"function"}
]`

// Well-known Safe storage layout and event constants.
var (
	// mastercopySlot holds the singleton address in every Safe proxy.
	mastercopySlot = common.Hash{}
	// fallbackHandlerSlot is keccak256("fallback_manager.handler.address").
	fallbackHandlerSlot = common.HexToHash("0x6c9a6c4a39284e37ed1cf53d337577d14212a4870fb976a4366c693b939918d5")
	// guardSlot is keccak256("guard_manager.guard.address").
	guardSlot = common.HexToHash("0x4a204f620c8c5ccdca3fd54d003badd85ba500436a431f0cbda4f558c93c34c8")
	// sentinelModules terminates the Safe's module linked list.
	sentinelModules = common.HexToAddress("0x0000000000000000000000000000000000000001")
	// proxyCreationTopic is keccak256("ProxyCreation(address,address)").
	// The proxy moved from event data (1.3.0) to an indexed topic (1.4.1);
	// the signature hash is the same for both.
	proxyCreationTopic = common.HexToHash("0x4f51faf6c4561ff95f067657e43439f0f856d97c04d9ec9070a6199ad418e235")
)

var (
	safeABI    abi.ABI
	factoryABI abi.ABI
	setupABI   abi.ABI
)

func init() {
	var err error
	if safeABI, err = abi.JSON(strings.NewReader(safeABIJSON)); err != nil {
		panic(fmt.Sprintf("onchain: parse safe ABI: %v", err))
	}
	if factoryABI, err = abi.JSON(strings.NewReader(factoryABIJSON)); err != nil {
		panic(fmt.Sprintf("onchain: parse factory ABI: %v", err))
	}
	if setupABI, err = abi.JSON(strings.NewReader(setupABIJSON)); err != nil {
		panic(fmt.Sprintf("onchain: parse setup ABI: %v", err))
	}
}

// Client dials one RPC endpoint per network and caches the connections.
type Client struct {
	endpoints map[string]string // RPC network name → endpoint URL
	dial      func(url string) (EthClient, error)
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[string]EthClient
}

// Option configures the client.
type Option func(*Client)

// WithDialer overrides the RPC dialer (for tests).
func WithDialer(dial func(url string) (EthClient, error)) Option {
	return func(c *Client) { c.dial = dial }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates an on-chain client over the given endpoint map, keyed by
// the catalog's RPCNetworkName.
func New(endpoints map[string]string, opts ...Option) *Client {
	c := &Client{
		endpoints: endpoints,
		clients:   make(map[string]EthClient),
		logger:    logging.Nop(),
		dial: func(url string) (EthClient, error) {
			return ethclient.Dial(url)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes all cached RPC connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ec := range c.clients {
		ec.Close()
	}
	c.clients = make(map[string]EthClient)
}

// client returns a cached connection for the network, dialing on first use.
func (c *Client) client(network chains.Network) (EthClient, error) {
	url, ok := c.endpoints[strings.ToLower(network.RPCNetworkName)]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, network.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ec, ok := c.clients[url]; ok {
		return ec, nil
	}
	ec, err := c.dial(url)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial %s: %w", network.ID, err)
	}
	c.clients[url] = ec
	return ec, nil
}

func lower(a common.Address) string {
	return strings.ToLower(a.Hex())
}
