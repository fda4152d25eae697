package assessment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safescope/safescope/internal/chains"
	"github.com/safescope/safescope/internal/onchain"
	"github.com/safescope/safescope/internal/sanctions"
	"github.com/safescope/safescope/internal/txservice"
)

// Canonical 1.3.0 deployment addresses used as known-good fixtures.
const (
	testWallet     = "0x1111111111111111111111111111111111111111"
	testCreator    = "0xcccc000000000000000000000000000000000001"
	testFactory    = "0xa6b71e26c5e0845f74c812102ca7114b6a896ab2"
	testMastercopy = "0xd9db270c1b5e3bd161e8c8503c55ceabee709552"
	testFallback   = "0xf48f2b2d2a534e402487b3ee7c18c33aec0fe5e4"
	testInit       = "0xa238cbeb142c10ef7ad8442c6d1f9e89e07e7761"
	testCreationTx = "0x6e3b6f53f7f1e8a9c5d4b2a1908070605040302010aabbccddeeff0011223344"
	zeroAddr       = "0x0000000000000000000000000000000000000000"
)

var testOwners = []string{
	"0xaaaa000000000000000000000000000000000001",
	"0xaaaa000000000000000000000000000000000002",
	"0xaaaa000000000000000000000000000000000003",
}

// fakeUpstream implements all four engine collaborators from fixtures.
type fakeUpstream struct {
	info        *txservice.SafeInfo
	infoErr     error
	infoCalls   int
	creation    *txservice.CreationInfo
	creationErr error
	initializer string
	initErr     error
	derived     *onchain.State
	deriveErr   error

	sanctioned     map[string][]sanctions.Match
	sanctionsErr   error
	sanctionsCalls []string
}

func (f *fakeUpstream) GetInfo(ctx context.Context, address string, network chains.Network) (*txservice.SafeInfo, error) {
	f.infoCalls++
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func (f *fakeUpstream) GetCreation(ctx context.Context, address string, network chains.Network) (*txservice.CreationInfo, error) {
	if f.creationErr != nil {
		return nil, f.creationErr
	}
	return f.creation, nil
}

func (f *fakeUpstream) ExtractInitializer(ctx context.Context, txHash string, network chains.Network) (string, error) {
	if f.initErr != nil {
		return "", f.initErr
	}
	return f.initializer, nil
}

func (f *fakeUpstream) Derive(ctx context.Context, txHash string, network chains.Network) (*onchain.State, error) {
	if f.deriveErr != nil {
		return nil, f.deriveErr
	}
	return f.derived, nil
}

func (f *fakeUpstream) Check(ctx context.Context, address string) (*sanctions.Result, error) {
	f.sanctionsCalls = append(f.sanctionsCalls, address)
	if f.sanctionsErr != nil {
		return nil, f.sanctionsErr
	}
	matches := f.sanctioned[strings.ToLower(address)]
	return &sanctions.Result{
		Address:    address,
		Sanctioned: len(matches) > 0,
		Matches:    matches,
	}, nil
}

// healthySafe returns fixtures describing a fully canonical 2-of-3 Safe
// whose index and chain views agree on every field.
func healthySafe() *fakeUpstream {
	return &fakeUpstream{
		info: &txservice.SafeInfo{
			Address:         testWallet,
			Version:         "1.3.0",
			Mastercopy:      testMastercopy,
			FallbackHandler: testFallback,
			Guard:           zeroAddr,
			Owners:          append([]string(nil), testOwners...),
			Threshold:       2,
		},
		creation: &txservice.CreationInfo{
			Creator: testCreator,
			Factory: testFactory,
			TxHash:  testCreationTx,
		},
		initializer: testInit,
		derived: &onchain.State{
			ProxyAddress:    testWallet,
			Creator:         testCreator,
			Factory:         testFactory,
			Mastercopy:      testMastercopy,
			Initializer:     testInit,
			FallbackHandler: testFallback,
			Guard:           zeroAddr,
			Version:         "1.3.0",
			Owners:          append([]string(nil), testOwners...),
			Threshold:       2,
		},
	}
}

func newTestEngine(f *fakeUpstream, opts ...Option) *Engine {
	return NewEngine(f, f, f, f, opts...)
}

func TestAssessCleanSafe(t *testing.T) {
	f := healthySafe()
	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	require.Equal(t, RiskLow, a.OverallRisk)
	require.Equal(t, 100, a.SecurityScore)
	assert.Empty(t, a.RiskFactors)

	require.Len(t, a.Checks, 11)
	for name, c := range a.Checks {
		assert.True(t, c.Passed, "check %s should pass", name)
	}

	assert.Equal(t, "Gnosis Safe Proxy Factory 1.3.0", a.Checks[CheckFactory].CanonicalName)
	assert.Equal(t, "Gnosis Safe 1.3.0", a.Checks[CheckMastercopy].CanonicalName)
	assert.Equal(t, "MultiSend 1.3.0", a.Checks[CheckInitializer].CanonicalName)
}

func TestAssessNormalizesInput(t *testing.T) {
	f := healthySafe()
	upper := "0x" + strings.ToUpper(testWallet[2:])

	a := newTestEngine(f).Assess(context.Background(), "  "+upper+"  ", " Ethereum ")

	assert.Equal(t, testWallet, a.Address)
	assert.Equal(t, "ethereum", a.Network)
	assert.Equal(t, RiskLow, a.OverallRisk)
}

func TestAssessInvalidAddress(t *testing.T) {
	f := healthySafe()
	a := newTestEngine(f).Assess(context.Background(), "not-an-address", "ethereum")

	assert.Equal(t, RiskHigh, a.OverallRisk)
	assert.Equal(t, 20, a.SecurityScore)
	assert.Contains(t, a.RiskFactors, "Invalid address format")
	assert.Equal(t, SeverityHigh, a.Checks[CheckAddress].Severity)
	assert.Zero(t, f.infoCalls, "invalid address must not reach the network")
	assert.Empty(t, f.sanctionsCalls)
}

func TestAssessUnsupportedNetwork(t *testing.T) {
	f := healthySafe()
	a := newTestEngine(f).Assess(context.Background(), testWallet, "solana")

	assert.Equal(t, RiskCritical, a.OverallRisk)
	assert.Equal(t, 0, a.SecurityScore)
	assert.Contains(t, a.RiskFactors, "Unsupported network")
	assert.Zero(t, f.infoCalls)
}

func TestAssessSafeNotFound(t *testing.T) {
	f := healthySafe()
	f.infoErr = txservice.ErrNotFound

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskCritical, a.OverallRisk)
	assert.Equal(t, 0, a.SecurityScore)
	assert.Contains(t, a.RiskFactors, "Safe not found at this address")
}

func TestAssessInfoFetchFails(t *testing.T) {
	f := healthySafe()
	f.infoErr = errors.New("upstream exploded")

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskCritical, a.OverallRisk)
	assert.Equal(t, 0, a.SecurityScore)
	assert.Contains(t, a.RiskFactors, "Unable to fetch Safe information")
}

func TestAssessCreationUnavailableDegrades(t *testing.T) {
	f := healthySafe()
	f.creationErr = errors.New("index lagging")

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	// Creation, factory, initializer and cross-validation all degrade to
	// warnings; nothing becomes a risk factor.
	assert.Empty(t, a.RiskFactors)
	assert.Equal(t, RiskMedium, a.OverallRisk)
	assert.False(t, a.Checks[CheckCreationTx].Passed)
	assert.False(t, a.Checks[CheckFactory].Passed)
	assert.False(t, a.Checks[CheckInitializer].Passed)
	assert.False(t, a.Checks[CheckCrossValidation].Passed)
	assert.NotEmpty(t, a.Checks[CheckCreationTx].Warnings)
	assert.NotEmpty(t, a.Checks[CheckCrossValidation].Warnings)

	// Owners and wallet are still screened even without creation data.
	assert.True(t, a.Checks[CheckSanctions].Passed)
}

func TestAssessUnrecognizedFactory(t *testing.T) {
	f := healthySafe()
	rogue := "0xdddd000000000000000000000000000000000001"
	f.creation.Factory = rogue
	f.derived.Factory = rogue

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskMedium, a.OverallRisk)
	assert.Equal(t, SeverityMedium, a.Checks[CheckFactory].Severity)
	assert.Contains(t, a.RiskFactors, "Safe was deployed by an unrecognized proxy factory ("+rogue+")")
}

func TestAssessUnrecognizedMastercopy(t *testing.T) {
	f := healthySafe()
	rogue := "0xdddd000000000000000000000000000000000002"
	f.info.Mastercopy = rogue
	f.derived.Mastercopy = rogue

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskHigh, a.OverallRisk)
	assert.Contains(t, a.RiskFactors, "Unrecognized mastercopy ("+rogue+")")
}

func TestAssessNonCanonicalFallbackHandler(t *testing.T) {
	f := healthySafe()
	rogue := "0xdddd000000000000000000000000000000000003"
	f.info.FallbackHandler = rogue
	f.derived.FallbackHandler = rogue

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.NotEqual(t, RiskLow, a.OverallRisk)
	assert.Equal(t, RiskHigh, a.OverallRisk)
	assert.Contains(t, a.RiskFactors, "Non-canonical fallback handler ("+rogue+")")
}

func TestAssessNoFallbackHandlerIsCanonical(t *testing.T) {
	f := healthySafe()
	f.info.FallbackHandler = zeroAddr
	f.derived.FallbackHandler = zeroAddr

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskLow, a.OverallRisk)
	assert.True(t, a.Checks[CheckFallbackHandler].Passed)
	assert.Equal(t, "No Fallback Handler", a.Checks[CheckFallbackHandler].CanonicalName)
}

func TestAssessNonCanonicalInitializer(t *testing.T) {
	f := healthySafe()
	rogue := "0xdddd000000000000000000000000000000000004"
	f.initializer = rogue
	f.derived.Initializer = rogue

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskCritical, a.OverallRisk)
	assert.Contains(t, a.RiskFactors, "Non-canonical initializer ("+rogue+")")
}

func TestAssessZeroInitializerPasses(t *testing.T) {
	f := healthySafe()
	f.initializer = zeroAddr
	f.derived.Initializer = zeroAddr

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.True(t, a.Checks[CheckInitializer].Passed)
	assert.Equal(t, "No Initializer", a.Checks[CheckInitializer].CanonicalName)
	assert.Equal(t, RiskLow, a.OverallRisk)
}

func TestAssessSingleOwner(t *testing.T) {
	f := healthySafe()
	f.info.Owners = testOwners[:1]
	f.info.Threshold = 1
	f.derived.Owners = testOwners[:1]
	f.derived.Threshold = 1

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskHigh, a.OverallRisk)
	assert.Contains(t, a.RiskFactors, "Single-owner Safe with 1-of-1 threshold")
	assert.Equal(t, SeverityHigh, a.Checks[CheckOwnership].Severity)
}

func TestAssessThresholdOneMultiOwner(t *testing.T) {
	f := healthySafe()
	f.info.Threshold = 1
	f.derived.Threshold = 1

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskMedium, a.OverallRisk)
	assert.Contains(t, a.RiskFactors, "A single signature is sufficient to execute transactions")
}

func TestAssessOwnershipCriticalRules(t *testing.T) {
	tests := []struct {
		name      string
		owners    []string
		threshold int
		factor    string
	}{
		{"no owners", nil, 2, "Safe has no owners"},
		{"zero threshold", testOwners, 0, "Safe threshold is zero"},
		{"threshold exceeds owners", testOwners, 5, "Threshold (5) exceeds owner count (3)"},
		{"duplicate owners", []string{testOwners[0], "0x" + strings.ToUpper(testOwners[0][2:])}, 1, "Duplicate owners detected"},
		{"zero address owner", []string{testOwners[0], zeroAddr}, 1, "Zero address is listed as an owner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := healthySafe()
			f.info.Owners = tt.owners
			f.info.Threshold = tt.threshold
			f.derived.Owners = tt.owners
			f.derived.Threshold = tt.threshold

			a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

			assert.Equal(t, RiskCritical, a.OverallRisk)
			assert.Equal(t, SeverityCritical, a.Checks[CheckOwnership].Severity)
			assert.Contains(t, a.RiskFactors, tt.factor)
		})
	}
}

func TestAssessModulesWarnButNoFactor(t *testing.T) {
	f := healthySafe()
	module := "0xeeee000000000000000000000000000000000001"
	f.info.Modules = []string{module}
	f.derived.Modules = []string{module}

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.False(t, a.Checks[CheckModules].Passed)
	assert.Contains(t, a.Checks[CheckModules].Warnings, "Safe has 1 enabled module(s)")
	assert.Empty(t, a.RiskFactors)
	assert.Equal(t, RiskLow, a.OverallRisk)
}

func TestAssessSanctionedOwner(t *testing.T) {
	f := healthySafe()
	f.sanctioned = map[string][]sanctions.Match{
		testOwners[1]: {{Category: "sanctions", Name: "OFAC SDN"}},
	}

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskCritical, a.OverallRisk)
	assert.Contains(t, a.RiskFactors, "Sanctioned owner address detected ("+testOwners[1]+")")
	assert.Equal(t, SeverityCritical, a.Checks[CheckSanctions].Severity)
	require.Contains(t, a.Details.SanctionsMatches, testOwners[1])
	assert.Equal(t, "OFAC SDN", a.Details.SanctionsMatches[testOwners[1]][0].Name)
}

func TestAssessSanctionsTargets(t *testing.T) {
	f := healthySafe()
	newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	// Wallet, creator, and all owners, each exactly once.
	assert.ElementsMatch(t,
		append([]string{testWallet, testCreator}, testOwners...),
		f.sanctionsCalls,
	)
}

func TestAssessSanctionsErrorDegrades(t *testing.T) {
	f := healthySafe()
	f.sanctionsErr = errors.New("provider down")

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.False(t, a.Checks[CheckSanctions].Passed)
	assert.NotEmpty(t, a.Checks[CheckSanctions].Warnings)
	assert.Empty(t, a.RiskFactors)
	// Ten of eleven checks still pass; the verdict stays low.
	assert.Equal(t, RiskLow, a.OverallRisk)
	assert.Equal(t, 91, a.SecurityScore)
}

func TestAssessCrossValidationMismatch(t *testing.T) {
	f := healthySafe()
	f.derived.Mastercopy = "0xdddd000000000000000000000000000000000005"

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, RiskCritical, a.OverallRisk)
	assert.Contains(t, a.RiskFactors, "On-chain state does not match the transaction index")

	found := false
	for _, rf := range a.RiskFactors {
		if strings.HasPrefix(rf, "Mismatch in mastercopy:") {
			found = true
		}
	}
	assert.True(t, found, "expected a per-field mismatch factor, got %v", a.RiskFactors)
}

func TestAssessCrossValidationUnavailable(t *testing.T) {
	f := healthySafe()
	f.deriveErr = errors.New("no RPC endpoint")

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.False(t, a.Checks[CheckCrossValidation].Passed)
	assert.Contains(t, a.Checks[CheckCrossValidation].Warnings, "cross-validation unavailable")
	assert.Empty(t, a.RiskFactors)
	assert.Equal(t, RiskLow, a.OverallRisk)
}

func TestAssessOwnerOrderIrrelevant(t *testing.T) {
	f := healthySafe()
	f.derived.Owners = []string{testOwners[2], testOwners[0], testOwners[1]}

	a := newTestEngine(f).Assess(context.Background(), testWallet, "ethereum")

	assert.True(t, a.Checks[CheckCrossValidation].Passed)
	assert.Equal(t, RiskLow, a.OverallRisk)
}

func TestAssessIdempotent(t *testing.T) {
	f := healthySafe()
	e := newTestEngine(f)

	first := e.Assess(context.Background(), testWallet, "ethereum")
	second := e.Assess(context.Background(), testWallet, "ethereum")

	assert.Equal(t, first.OverallRisk, second.OverallRisk)
	assert.Equal(t, first.SecurityScore, second.SecurityScore)
	assert.Equal(t, first.RiskFactors, second.RiskFactors)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAssessRecordsToStore(t *testing.T) {
	f := healthySafe()
	store := NewMemoryStore()
	e := newTestEngine(f, WithStore(store))

	a := e.Assess(context.Background(), testWallet, "ethereum")

	require.Eventually(t, func() bool {
		list, err := store.ListByWallet(context.Background(), "ethereum", testWallet, 10)
		return err == nil && len(list) == 1
	}, 2*time.Second, 10*time.Millisecond)

	list, err := store.ListByWallet(context.Background(), "ethereum", testWallet, 10)
	require.NoError(t, err)
	assert.Equal(t, a.ID, list[0].ID)
}
