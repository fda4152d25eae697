package sanctions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "0x7f367cc41522ce07553e823bf3be79a889debe1b"

func TestCheckClean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/address/"+testAddr, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"identifications": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", WithRateLimit(1000))
	result, err := c.Check(context.Background(), testAddr)
	require.NoError(t, err)

	assert.False(t, result.Sanctioned)
	assert.Empty(t, result.Matches)
	assert.Equal(t, testAddr, result.Address)
}

func TestCheckSanctioned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"identifications": [
			{"category": "sanctions", "name": "SDN Entry", "description": "OFAC listed", "url": "https://example.com/sdn"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRateLimit(1000))
	result, err := c.Check(context.Background(), testAddr)
	require.NoError(t, err)

	assert.True(t, result.Sanctioned)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "SDN Entry", result.Matches[0].Name)
	assert.Equal(t, "sanctions", result.Matches[0].Category)
}

func TestCheckLowercasesAddress(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"identifications": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRateLimit(1000))
	_, err := c.Check(context.Background(), "0x7F367CC41522CE07553E823BF3BE79A889DEBE1B")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/address/"+testAddr, gotPath)
}

func TestCheckRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"identifications": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRateLimit(1000))
	result, err := c.Check(context.Background(), testAddr)
	require.NoError(t, err)
	assert.False(t, result.Sanctioned)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCheckProviderRejects(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRateLimit(1000))
	_, err := c.Check(context.Background(), testAddr)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestCheckRespectsContext(t *testing.T) {
	// Burst 1 with a tiny rate: the second Wait blocks until the context
	// expires.
	c := NewClient("http://127.0.0.1:0", "", WithRateLimit(0.001))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Check(ctx, testAddr)
	require.Error(t, err)
}
