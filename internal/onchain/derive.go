package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/safescope/safescope/internal/chains"
	"github.com/safescope/safescope/internal/metrics"
)

// creationCall is the decoded factory call of a creation transaction.
type creationCall struct {
	singleton   common.Address
	initializer []byte // setup() call data, may be empty for bare proxies
}

// setupCall is the decoded setup() call embedded in the initializer bytes.
type setupCall struct {
	owners          []common.Address
	threshold       *big.Int
	to              common.Address // delegatecall target — the "initializer" contract
	fallbackHandler common.Address
}

// ExtractInitializer returns the setup-time delegatecall target encoded
// in a creation transaction's call data.
func (c *Client) ExtractInitializer(ctx context.Context, txHash string, network chains.Network) (string, error) {
	ec, err := c.client(network)
	if err != nil {
		return "", err
	}

	tx, _, err := ec.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		metrics.ObserveUpstream("rpc", "error")
		return "", fmt.Errorf("onchain: fetch creation tx: %w", err)
	}
	metrics.ObserveUpstream("rpc", "ok")

	creation, err := decodeCreationInput(tx.Data())
	if err != nil {
		return "", err
	}
	setup, err := decodeSetup(creation.initializer)
	if err != nil {
		return "", err
	}
	return lower(setup.to), nil
}

// Derive rebuilds the Safe's configuration from the creation transaction
// and current contract state. Creation facts (creator, factory,
// initializer, proxy address) come from the transaction; live facts
// (owners, threshold, modules, guard, fallback handler, mastercopy,
// version) come from the proxy's storage and view functions.
func (c *Client) Derive(ctx context.Context, txHash string, network chains.Network) (*State, error) {
	ec, err := c.client(network)
	if err != nil {
		return nil, err
	}

	hash := common.HexToHash(txHash)

	tx, _, err := ec.TransactionByHash(ctx, hash)
	if err != nil {
		metrics.ObserveUpstream("rpc", "error")
		return nil, fmt.Errorf("onchain: fetch creation tx: %w", err)
	}
	receipt, err := ec.TransactionReceipt(ctx, hash)
	if err != nil {
		metrics.ObserveUpstream("rpc", "error")
		return nil, fmt.Errorf("onchain: fetch creation receipt: %w", err)
	}
	metrics.ObserveUpstream("rpc", "ok")

	if tx.To() == nil {
		return nil, ErrNotCreation
	}

	state := &State{
		Factory: lower(*tx.To()),
	}

	creator, err := ec.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return nil, fmt.Errorf("onchain: recover tx sender: %w", err)
	}
	state.Creator = lower(creator)

	creation, err := decodeCreationInput(tx.Data())
	if err != nil {
		return nil, err
	}
	if setup, err := decodeSetup(creation.initializer); err == nil {
		state.Initializer = lower(setup.to)
	} else {
		// Bare proxy with no setup data: nothing was initialized at
		// creation, which the engine treats as its own finding.
		state.Initializer = lower(common.Address{})
	}

	proxy, err := proxyFromReceipt(receipt)
	if err != nil {
		return nil, err
	}
	state.ProxyAddress = lower(proxy)

	if err := c.readLiveState(ctx, ec, proxy, state); err != nil {
		return nil, err
	}

	return state, nil
}

// readLiveState fills the live-configuration fields from the proxy.
func (c *Client) readLiveState(ctx context.Context, ec EthClient, proxy common.Address, state *State) error {
	// Storage reads: singleton, fallback handler, guard.
	singleton, err := ec.StorageAt(ctx, proxy, mastercopySlot, nil)
	if err != nil {
		return fmt.Errorf("onchain: read mastercopy slot: %w", err)
	}
	state.Mastercopy = lower(common.BytesToAddress(singleton))

	fallback, err := ec.StorageAt(ctx, proxy, fallbackHandlerSlot, nil)
	if err != nil {
		return fmt.Errorf("onchain: read fallback handler slot: %w", err)
	}
	state.FallbackHandler = lower(common.BytesToAddress(fallback))

	guard, err := ec.StorageAt(ctx, proxy, guardSlot, nil)
	if err != nil {
		return fmt.Errorf("onchain: read guard slot: %w", err)
	}
	state.Guard = lower(common.BytesToAddress(guard))

	// View calls: owners, threshold, version, modules.
	var owners []common.Address
	if err := c.callSafe(ctx, ec, proxy, "getOwners", &owners); err != nil {
		return err
	}
	for _, o := range owners {
		state.Owners = append(state.Owners, lower(o))
	}

	var threshold *big.Int
	if err := c.callSafe(ctx, ec, proxy, "getThreshold", &threshold); err != nil {
		return err
	}
	state.Threshold = int(threshold.Int64())

	var version string
	if err := c.callSafe(ctx, ec, proxy, "VERSION", &version); err != nil {
		return err
	}
	state.Version = version

	modules, err := c.readModules(ctx, ec, proxy)
	if err != nil {
		return err
	}
	state.Modules = modules

	return nil
}

// readModules walks the Safe's module linked list page by page.
func (c *Client) readModules(ctx context.Context, ec EthClient, proxy common.Address) ([]string, error) {
	var all []string
	start := sentinelModules
	zero := common.Address{}

	for {
		data, err := safeABI.Pack("getModulesPaginated", start, big.NewInt(100))
		if err != nil {
			return nil, fmt.Errorf("onchain: pack getModulesPaginated: %w", err)
		}
		raw, err := ec.CallContract(ctx, ethereum.CallMsg{To: &proxy, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("onchain: call getModulesPaginated: %w", err)
		}
		out, err := safeABI.Unpack("getModulesPaginated", raw)
		if err != nil {
			return nil, fmt.Errorf("onchain: unpack getModulesPaginated: %w", err)
		}
		page, _ := out[0].([]common.Address)
		next, _ := out[1].(common.Address)

		for _, m := range page {
			if m != sentinelModules && m != zero {
				all = append(all, lower(m))
			}
		}
		if next == sentinelModules || next == zero {
			return all, nil
		}
		start = next
	}
}

// callSafe performs one view call against the proxy and unpacks the
// single return value into out (a pointer).
func (c *Client) callSafe(ctx context.Context, ec EthClient, proxy common.Address, method string, out any) error {
	data, err := safeABI.Pack(method)
	if err != nil {
		return fmt.Errorf("onchain: pack %s: %w", method, err)
	}
	raw, err := ec.CallContract(ctx, ethereum.CallMsg{To: &proxy, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("onchain: call %s: %w", method, err)
	}
	results, err := safeABI.Unpack(method, raw)
	if err != nil {
		return fmt.Errorf("onchain: unpack %s: %w", method, err)
	}
	if len(results) == 0 {
		return fmt.Errorf("onchain: %s returned no values", method)
	}
	return assign(out, results[0])
}

func assign(dst any, src any) error {
	switch d := dst.(type) {
	case *[]common.Address:
		v, ok := src.([]common.Address)
		if !ok {
			return fmt.Errorf("onchain: unexpected type %T for address slice", src)
		}
		*d = v
	case **big.Int:
		v, ok := src.(*big.Int)
		if !ok {
			return fmt.Errorf("onchain: unexpected type %T for uint256", src)
		}
		*d = v
	case *string:
		v, ok := src.(string)
		if !ok {
			return fmt.Errorf("onchain: unexpected type %T for string", src)
		}
		*d = v
	default:
		return fmt.Errorf("onchain: unsupported output type %T", dst)
	}
	return nil
}

// decodeCreationInput decodes a factory call into the singleton address
// and the embedded setup call data. All three factory entry points
// (createProxy, createProxyWithNonce, createProxyWithCallback) share the
// same leading (address, bytes) argument pair.
func decodeCreationInput(input []byte) (*creationCall, error) {
	if len(input) < 4 {
		return nil, ErrNotCreation
	}

	method, err := factoryABI.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: selector 0x%x", ErrNotCreation, input[:4])
	}

	values, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("onchain: unpack %s: %w", method.Name, err)
	}
	if len(values) < 2 {
		return nil, ErrNotCreation
	}

	singleton, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("onchain: unexpected singleton type %T", values[0])
	}
	initializer, ok := values[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("onchain: unexpected initializer type %T", values[1])
	}

	return &creationCall{singleton: singleton, initializer: initializer}, nil
}

// decodeSetup decodes the setup() call data carried in the initializer bytes.
func decodeSetup(data []byte) (*setupCall, error) {
	if len(data) < 4 {
		return nil, ErrNoSetupData
	}

	method, err := setupABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: selector 0x%x", ErrNoSetupData, data[:4])
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("onchain: unpack setup: %w", err)
	}
	if len(values) < 5 {
		return nil, ErrNoSetupData
	}

	owners, _ := values[0].([]common.Address)
	threshold, _ := values[1].(*big.Int)
	to, _ := values[2].(common.Address)
	fallbackHandler, _ := values[4].(common.Address)

	return &setupCall{
		owners:          owners,
		threshold:       threshold,
		to:              to,
		fallbackHandler: fallbackHandler,
	}, nil
}

// proxyFromReceipt finds the ProxyCreation event and returns the new
// proxy address. Handles both event layouts: proxy in the data words
// (Safe 1.1.1–1.3.0) and proxy as an indexed topic (Safe 1.4.1+).
func proxyFromReceipt(receipt *types.Receipt) (common.Address, error) {
	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || log.Topics[0] != proxyCreationTopic {
			continue
		}
		if len(log.Topics) >= 2 {
			return common.BytesToAddress(log.Topics[1].Bytes()), nil
		}
		if len(log.Data) >= 32 {
			return common.BytesToAddress(log.Data[:32]), nil
		}
	}
	return common.Address{}, ErrProxyMissing
}
