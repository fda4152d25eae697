// Package sanctions screens addresses against the Chainalysis public
// sanctions list.
//
// The engine screens several addresses per assessment (the Safe, its
// creator, every owner). The provider rate-limits aggressively, so the
// client gates every request on a token-bucket limiter; the engine's
// loop stays strictly sequential and each address is checked on its own
// so one failure never hides results for the rest.
package sanctions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/safescope/safescope/internal/logging"
	"github.com/safescope/safescope/internal/metrics"
	"github.com/safescope/safescope/internal/retry"
)

// ErrUnavailable signals a transport or provider failure. The engine
// treats it as a partial screening result, not a verdict.
var ErrUnavailable = errors.New("sanctions: provider unavailable")

// Match is one sanctions-list record tied to an address.
type Match struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Result is the screening outcome for a single address.
type Result struct {
	Address    string  `json:"address"`
	Sanctioned bool    `json:"sanctioned"`
	Matches    []Match `json:"matches,omitempty"`
}

// Client calls the screening API with a request-rate budget.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the request budget in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a sanctions screening client. The default budget of
// 4 req/s with burst 1 inserts a pause between consecutive checks.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(4), 1),
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check screens one address. It blocks on the rate limiter before
// issuing the request, so callers may loop over addresses without
// managing delays themselves.
func (c *Client) Check(ctx context.Context, address string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/address/%s", c.baseURL, strings.ToLower(address))

	var resp struct {
		Identifications []Match `json:"identifications"`
	}

	err := retry.Do(ctx, 2, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer func() { _ = r.Body.Close() }()

		switch {
		case r.StatusCode == http.StatusOK:
		case r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: status %d", ErrUnavailable, r.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("%w: status %d", ErrUnavailable, r.StatusCode))
		}

		if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
			return retry.Permanent(fmt.Errorf("%w: decode: %v", ErrUnavailable, err))
		}
		return nil
	})
	if err != nil {
		metrics.ObserveUpstream("sanctions", "error")
		c.logger.Warn("sanctions screening failed", "address", address, "error", err)
		return nil, err
	}

	metrics.ObserveUpstream("sanctions", "ok")
	result := &Result{
		Address:    strings.ToLower(address),
		Sanctioned: len(resp.Identifications) > 0,
		Matches:    resp.Identifications,
	}
	if result.Sanctioned {
		metrics.SanctionsHitsTotal.Inc()
	}
	return result, nil
}
