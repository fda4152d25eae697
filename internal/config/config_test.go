package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultSanctionsAPIURL, cfg.SanctionsAPIURL)
	assert.Equal(t, DefaultUpstreamTimeout, cfg.UpstreamTimeout)
	assert.Equal(t, DefaultSanctionsRPS, cfg.SanctionsRPS)
	assert.Equal(t, DefaultBreakerThreshold, cfg.BreakerThreshold)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ENV", "production")
	setEnv(t, "UPSTREAM_TIMEOUT", "3s")
	setEnv(t, "SANCTIONS_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 2.5, cfg.SanctionsRPS)
}

func TestLoad_RPCEndpoints(t *testing.T) {
	setEnv(t, "RPC_URL_MAINNET", "https://rpc.example.com/eth")
	setEnv(t, "RPC_URL_ARBITRUM_ONE", "https://rpc.example.com/arb")

	cfg, err := Load()
	require.NoError(t, err)

	url, ok := cfg.RPCEndpoint("mainnet")
	require.True(t, ok)
	assert.Equal(t, "https://rpc.example.com/eth", url)

	// Underscores become dashes, matching the catalog's RPC network names.
	url, ok = cfg.RPCEndpoint("arbitrum-one")
	require.True(t, ok)
	assert.Equal(t, "https://rpc.example.com/arb", url)

	_, ok = cfg.RPCEndpoint("gnosis")
	assert.False(t, ok)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid config",
			config: Config{
				SanctionsAPIURL: DefaultSanctionsAPIURL,
				UpstreamTimeout: time.Second,
				SanctionsRPS:    1,
			},
			wantErr: "",
		},
		{
			name: "missing sanctions url",
			config: Config{
				UpstreamTimeout: time.Second,
				SanctionsRPS:    1,
			},
			wantErr: "SANCTIONS_API_URL is required",
		},
		{
			name: "non-positive timeout",
			config: Config{
				SanctionsAPIURL: DefaultSanctionsAPIURL,
				SanctionsRPS:    1,
			},
			wantErr: "UPSTREAM_TIMEOUT must be positive",
		},
		{
			name: "non-positive rate",
			config: Config{
				SanctionsAPIURL: DefaultSanctionsAPIURL,
				UpstreamTimeout: time.Second,
			},
			wantErr: "SANCTIONS_RPS must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
