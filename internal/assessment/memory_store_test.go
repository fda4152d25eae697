package assessment

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedAssessment(i int) *Assessment {
	a := newAssessment(testWallet, "ethereum")
	a.OverallRisk = RiskLow
	a.SecurityScore = 100 - i
	a.ID = fmt.Sprintf("asmt_%04d", i)
	return a
}

func TestMemoryStoreRecordAndList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, storedAssessment(i)))
	}

	list, err := store.ListByWallet(ctx, "ethereum", testWallet, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)

	// Most recent first.
	assert.Equal(t, "asmt_0004", list[0].ID)
	assert.Equal(t, "asmt_0002", list[2].ID)
}

func TestMemoryStoreKeyIsCaseInsensitive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, storedAssessment(0)))

	list, err := store.ListByWallet(ctx, "ETHEREUM", strings.ToUpper(testWallet), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStoreUnknownWallet(t *testing.T) {
	store := NewMemoryStore()

	list, err := store.ListByWallet(context.Background(), "ethereum", "0x2222222222222222222222222222222222222222", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryStoreIsolatesStoredCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a := storedAssessment(0)
	a.RiskFactors = []string{"original"}
	require.NoError(t, store.Record(ctx, a))

	// Mutating the recorded value must not affect the stored copy.
	a.RiskFactors[0] = "mutated"
	a.Checks[CheckAddress].Elevate(SeverityCritical)

	list, err := store.ListByWallet(ctx, "ethereum", testWallet, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"original"}, list[0].RiskFactors)
	assert.NotEqual(t, SeverityCritical, list[0].Checks[CheckAddress].Severity)
}
