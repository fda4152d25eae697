// Package txservice is the client for the Safe Transaction Service, the
// indexing API that reports a Safe's current configuration and creation
// metadata. It is one of the two independent sources of truth the
// assessment engine compares; the other is the chain itself (internal/onchain).
package txservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safescope/safescope/internal/chains"
	"github.com/safescope/safescope/internal/circuitbreaker"
	"github.com/safescope/safescope/internal/logging"
	"github.com/safescope/safescope/internal/metrics"
	"github.com/safescope/safescope/internal/retry"
	"github.com/safescope/safescope/internal/validation"
)

// Typed errors for programmatic handling.
var (
	ErrNotFound    = errors.New("txservice: safe not found")
	ErrUnavailable = errors.New("txservice: upstream unavailable")
	ErrRejected    = errors.New("txservice: circuit open")
)

// SafeInfo is the indexer's view of a Safe's current configuration.
// All addresses are normalized to lower case.
type SafeInfo struct {
	Address         string   `json:"address"`
	Version         string   `json:"version"`
	Mastercopy      string   `json:"mastercopy"`
	FallbackHandler string   `json:"fallbackHandler"`
	Guard           string   `json:"guard"`
	Owners          []string `json:"owners"`
	Modules         []string `json:"modules"`
	Threshold       int      `json:"threshold"`
	Nonce           int64    `json:"nonce"`
}

// CreationInfo is the indexer's record of how a Safe was deployed.
type CreationInfo struct {
	Creator string    `json:"creator"`
	Factory string    `json:"factory"`
	TxHash  string    `json:"txHash"`
	Created time.Time `json:"created"`
}

// Client talks to the per-network Safe Transaction Service instances.
type Client struct {
	httpClient   *http.Client
	breaker      *circuitbreaker.Breaker
	baseOverride string // non-empty in tests and self-hosted setups
	maxAttempts  int
	logger       *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (timeout included).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseOverride routes every network to one base URL instead of the
// catalog's per-network instances.
func WithBaseOverride(base string) Option {
	return func(c *Client) { c.baseOverride = base }
}

// WithBreaker sets the circuit breaker guarding upstream hosts.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a transaction service client with sane defaults:
// 10s request timeout, 3 attempts with backoff, shared circuit breaker.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		breaker:     circuitbreaker.New(5, 30*time.Second),
		maxAttempts: 3,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetInfo fetches the current configuration of a Safe.
// Returns ErrNotFound if no Safe exists at that address on that network.
func (c *Client) GetInfo(ctx context.Context, address string, network chains.Network) (*SafeInfo, error) {
	var resp safeInfoResponse
	endpoint := fmt.Sprintf("%s/api/v1/safes/%s/", c.base(network), checksummed(address))
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	info := &SafeInfo{
		Address:         validation.NormalizeAddress(resp.Address),
		Version:         resp.Version,
		Mastercopy:      validation.NormalizeAddress(resp.MasterCopy),
		FallbackHandler: validation.NormalizeAddress(resp.FallbackHandler),
		Guard:           validation.NormalizeAddress(resp.Guard),
		Threshold:       resp.Threshold,
		Nonce:           resp.Nonce,
	}
	for _, o := range resp.Owners {
		info.Owners = append(info.Owners, validation.NormalizeAddress(o))
	}
	for _, m := range resp.Modules {
		info.Modules = append(info.Modules, validation.NormalizeAddress(m))
	}
	return info, nil
}

// GetCreation fetches the creation metadata of a Safe.
func (c *Client) GetCreation(ctx context.Context, address string, network chains.Network) (*CreationInfo, error) {
	var resp creationResponse
	endpoint := fmt.Sprintf("%s/api/v1/safes/%s/creation/", c.base(network), checksummed(address))
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	return &CreationInfo{
		Creator: validation.NormalizeAddress(resp.Creator),
		Factory: validation.NormalizeAddress(resp.FactoryAddress),
		TxHash:  resp.TransactionHash,
		Created: resp.Created,
	}, nil
}

// Wire types. The service reports masterCopy with a capital C and
// timestamps in RFC 3339.
type safeInfoResponse struct {
	Address         string   `json:"address"`
	Nonce           int64    `json:"nonce"`
	Threshold       int      `json:"threshold"`
	Owners          []string `json:"owners"`
	Modules         []string `json:"modules"`
	MasterCopy      string   `json:"masterCopy"`
	FallbackHandler string   `json:"fallbackHandler"`
	Guard           string   `json:"guard"`
	Version         string   `json:"version"`
}

type creationResponse struct {
	Created         time.Time `json:"created"`
	Creator         string    `json:"creator"`
	TransactionHash string    `json:"transactionHash"`
	FactoryAddress  string    `json:"factoryAddress"`
	MasterCopy      string    `json:"masterCopy"`
}

func (c *Client) base(network chains.Network) string {
	if c.baseOverride != "" {
		return c.baseOverride
	}
	return network.TxServiceBase
}

// checksummed renders an address in EIP-55 form, which the transaction
// service requires in URLs.
func checksummed(address string) string {
	return common.HexToAddress(address).Hex()
}

// getJSON performs a GET with circuit breaking and retries, decoding the
// body into out. 404 maps to ErrNotFound and is never retried.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	host := hostOf(endpoint)
	if !c.breaker.Allow(host) {
		metrics.ObserveUpstream("txservice", "rejected")
		return ErrRejected
	}

	err := retry.Do(ctx, c.maxAttempts, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(ErrNotFound)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return retry.Permanent(fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("%w: decode: %v", ErrUnavailable, err))
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// A 404 is an answer, not an outage.
			c.breaker.RecordSuccess(host)
			metrics.ObserveUpstream("txservice", "ok")
			return ErrNotFound
		}
		c.breaker.RecordFailure(host)
		metrics.ObserveUpstream("txservice", "error")
		c.logger.Warn("transaction service request failed", "endpoint", endpoint, "error", err)
		return err
	}

	c.breaker.RecordSuccess(host)
	metrics.ObserveUpstream("txservice", "ok")
	return nil
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
