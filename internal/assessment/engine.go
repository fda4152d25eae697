package assessment

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/safescope/safescope/internal/chains"
	"github.com/safescope/safescope/internal/logging"
	"github.com/safescope/safescope/internal/metrics"
	"github.com/safescope/safescope/internal/onchain"
	"github.com/safescope/safescope/internal/registry"
	"github.com/safescope/safescope/internal/sanctions"
	"github.com/safescope/safescope/internal/traces"
	"github.com/safescope/safescope/internal/txservice"
	"github.com/safescope/safescope/internal/validation"
)

// InfoProvider reports a Safe's indexed configuration and creation metadata.
type InfoProvider interface {
	GetInfo(ctx context.Context, address string, network chains.Network) (*txservice.SafeInfo, error)
	GetCreation(ctx context.Context, address string, network chains.Network) (*txservice.CreationInfo, error)
}

// InitializerExtractor decodes the setup-time delegatecall target from a
// creation transaction.
type InitializerExtractor interface {
	ExtractInitializer(ctx context.Context, txHash string, network chains.Network) (string, error)
}

// CrossValidator re-derives the wallet configuration from the chain,
// independent of the index.
type CrossValidator interface {
	Derive(ctx context.Context, txHash string, network chains.Network) (*onchain.State, error)
}

// SanctionsChecker screens a single address against the sanctions list.
type SanctionsChecker interface {
	Check(ctx context.Context, address string) (*sanctions.Result, error)
}

// Engine runs the assessment pipeline. It holds no per-run state, so
// concurrent assessments — for the same wallet or different ones — are
// always safe.
type Engine struct {
	info        InfoProvider
	extractor   InitializerExtractor
	crossval    CrossValidator
	sanctions   SanctionsChecker
	store       Store
	logger      *slog.Logger
	stepTimeout time.Duration
}

// Option configures the engine.
type Option func(*Engine)

// WithStore sets the audit-trail store. Recording is best-effort and
// asynchronous; a slow or broken store never delays an assessment.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStepTimeout bounds every individual upstream call.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) { e.stepTimeout = d }
}

// NewEngine creates an assessment engine over the given collaborators.
func NewEngine(info InfoProvider, extractor InitializerExtractor, crossval CrossValidator, sanctionsChecker SanctionsChecker, opts ...Option) *Engine {
	e := &Engine{
		info:        info,
		extractor:   extractor,
		crossval:    crossval,
		sanctions:   sanctionsChecker,
		logger:      logging.Nop(),
		stepTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assess runs the full check pipeline for one wallet. It always returns
// an Assessment — upstream failures become warnings and risk factors,
// never errors to the caller.
func (e *Engine) Assess(ctx context.Context, address, network string) *Assessment {
	ctx, span := traces.StartSpan(ctx, "assessment.assess",
		traces.SafeAddr(address), traces.NetworkID(network))
	defer span.End()

	start := time.Now()
	a := newAssessment(strings.TrimSpace(address), strings.TrimSpace(network))

	e.run(ctx, a)

	span.SetAttributes(traces.RiskLevel(string(a.OverallRisk)))
	metrics.AssessmentsTotal.WithLabelValues(string(a.OverallRisk)).Inc()
	metrics.AssessmentDuration.Observe(time.Since(start).Seconds())

	logging.L(ctx).Info("assessment complete",
		"address", a.Address,
		"network", a.Network,
		"risk", a.OverallRisk,
		"score", a.SecurityScore,
		"risk_factors", len(a.RiskFactors),
		"duration", time.Since(start),
	)

	// Persist asynchronously (best-effort audit trail).
	if e.store != nil {
		record := a
		go func() {
			recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.store.Record(recordCtx, record); err != nil {
				e.logger.Warn("failed to record assessment", "id", record.ID, "error", err)
			}
		}()
	}

	return a
}

// run executes the pipeline in strict order. Steps 1–3 are the only
// fatal gates; everything after them degrades.
func (e *Engine) run(ctx context.Context, a *Assessment) {
	// 1. Validate format. No network calls before this gate.
	if !validation.IsValidEthAddress(a.Address) {
		a.Escalate(RiskHigh)
		a.SecurityScore = 20
		a.addRiskFactor("Invalid address format")
		a.check(CheckAddress).Elevate(SeverityHigh)
		return
	}
	a.Address = validation.NormalizeAddress(a.Address)
	a.check(CheckAddress).pass("")

	// 2. Resolve network. Without a trusted index nothing can be verified.
	net, ok := chains.Resolve(a.Network)
	if !ok {
		a.Escalate(RiskCritical)
		a.SecurityScore = 0
		a.addRiskFactor("Unsupported network")
		return
	}
	a.Network = net.ID

	// 3. Fetch wallet info — the last fatal step.
	info, err := e.fetchInfo(ctx, a.Address, net)
	if err != nil {
		a.Escalate(RiskCritical)
		a.SecurityScore = 0
		if errors.Is(err, txservice.ErrNotFound) {
			a.addRiskFactor("Safe not found at this address")
		} else {
			a.addRiskFactor("Unable to fetch Safe information")
		}
		return
	}
	e.applyInfo(a, info)

	// 4. Creation metadata. Failure degrades the dependent checks only.
	creation := e.fetchCreation(ctx, a, net)

	// 5. Initializer extraction needs the creation transaction.
	e.extractInitializer(ctx, a, creation, net)

	// 6–9. Registry checks.
	e.evaluateFactory(a)
	e.evaluateMastercopy(a)
	e.evaluateFallbackHandler(a)
	e.evaluateInitializer(a)

	// 10. Ownership structure.
	e.evaluateOwnership(a)
	e.evaluateModules(a)

	// 11. Sanctions screening.
	e.evaluateSanctions(ctx, a)

	// 12. Independent cross-validation against the chain.
	e.crossValidate(ctx, a, net)

	// 13. Final score and level.
	e.finalize(a)
}

func (e *Engine) fetchInfo(ctx context.Context, address string, net chains.Network) (*txservice.SafeInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()
	return e.info.GetInfo(ctx, address, net)
}

// applyInfo fills the snapshot from the indexer and settles the checks
// that only need the fetch to have succeeded.
func (e *Engine) applyInfo(a *Assessment, info *txservice.SafeInfo) {
	a.Details.Mastercopy = validation.NormalizeAddress(info.Mastercopy)
	a.Details.FallbackHandler = validation.NormalizeAddress(info.FallbackHandler)
	a.Details.Guard = validation.NormalizeAddress(info.Guard)
	a.Details.Threshold = info.Threshold
	a.Details.Nonce = info.Nonce
	a.Details.Version = info.Version
	for _, o := range info.Owners {
		a.Details.Owners = append(a.Details.Owners, validation.NormalizeAddress(o))
	}
	for _, m := range info.Modules {
		a.Details.Modules = append(a.Details.Modules, validation.NormalizeAddress(m))
	}
	a.check(CheckSafeConfig).pass("")
}

func (e *Engine) fetchCreation(ctx context.Context, a *Assessment, net chains.Network) *txservice.CreationInfo {
	ctx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	creation, err := e.info.GetCreation(ctx, a.Address, net)
	if err != nil {
		a.check(CheckCreationTx).Warn("could not fetch creation information")
		return nil
	}

	a.Details.Creator = validation.NormalizeAddress(creation.Creator)
	a.Details.Factory = validation.NormalizeAddress(creation.Factory)
	a.Details.CreationTx = creation.TxHash
	a.check(CheckCreationTx).pass("")
	return creation
}

func (e *Engine) extractInitializer(ctx context.Context, a *Assessment, creation *txservice.CreationInfo, net chains.Network) {
	if creation == nil || creation.TxHash == "" {
		a.check(CheckInitializer).Warn("skipped: creation transaction unavailable")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	initializer, err := e.extractor.ExtractInitializer(ctx, creation.TxHash, net)
	if err != nil {
		a.check(CheckInitializer).Warn("could not extract initializer")
		return
	}
	a.Details.Initializer = validation.NormalizeAddress(initializer)
}

// evaluateFactory checks the deploying factory against the registry.
// Best-effort: a missing match is a finding, missing data only a warning.
func (e *Engine) evaluateFactory(a *Assessment) {
	c := a.check(CheckFactory)
	if a.Details.Factory == "" {
		c.Warn("factory unknown: creation data unavailable")
		return
	}
	if name, ok := registry.Lookup(registry.KindProxyFactory, a.Details.Factory); ok {
		c.pass(name)
		return
	}
	c.Elevate(SeverityMedium)
	a.Escalate(RiskMedium)
	a.addRiskFactor("Safe was deployed by an unrecognized proxy factory (%s)", a.Details.Factory)
}

// evaluateMastercopy checks the implementation contract. Authenticity of
// the mastercopy is load-bearing for every other guarantee, so a miss is
// always a risk factor.
func (e *Engine) evaluateMastercopy(a *Assessment) {
	c := a.check(CheckMastercopy)
	if a.Details.Mastercopy == "" {
		c.Elevate(SeverityHigh)
		a.Escalate(RiskHigh)
		a.addRiskFactor("Mastercopy address is unknown")
		return
	}
	if name, ok := registry.Lookup(registry.KindMastercopy, a.Details.Mastercopy); ok {
		c.pass(name)
		return
	}
	c.Elevate(SeverityHigh)
	a.Escalate(RiskHigh)
	a.addRiskFactor("Unrecognized mastercopy (%s)", a.Details.Mastercopy)
}

// evaluateFallbackHandler: no handler is canonical; a registry match is
// canonical; anything else is a live code-execution surface.
func (e *Engine) evaluateFallbackHandler(a *Assessment) {
	c := a.check(CheckFallbackHandler)
	if name, ok := registry.Lookup(registry.KindFallbackHandler, a.Details.FallbackHandler); ok {
		c.pass(name)
		return
	}
	c.Elevate(SeverityHigh)
	a.Escalate(RiskHigh)
	a.addRiskFactor("Non-canonical fallback handler (%s)", a.Details.FallbackHandler)
}

// evaluateInitializer: arbitrary initialization code can install
// arbitrary state and owners at creation time, so a non-canonical
// initializer is critical. A failed extraction stays a warning.
func (e *Engine) evaluateInitializer(a *Assessment) {
	c := a.check(CheckInitializer)
	if a.Details.Initializer == "" {
		// Extraction failed or was skipped; warning already recorded.
		return
	}
	if registry.IsZero(a.Details.Initializer) {
		c.pass("No Initializer")
		return
	}
	if name, ok := registry.Lookup(registry.KindInitializer, a.Details.Initializer); ok {
		c.pass(name)
		return
	}
	c.Elevate(SeverityCritical)
	a.Escalate(RiskCritical)
	a.addRiskFactor("Non-canonical initializer (%s)", a.Details.Initializer)
}

// evaluateOwnership applies the ownership-structure rules. Critical
// findings are sticky: once the check fails it cannot be passed by a
// later determination in the same run.
func (e *Engine) evaluateOwnership(a *Assessment) {
	c := a.check(CheckOwnership)
	owners := a.Details.Owners
	threshold := a.Details.Threshold
	critical := false

	fail := func(format string, args ...any) {
		critical = true
		c.Elevate(SeverityCritical)
		a.Escalate(RiskCritical)
		a.addRiskFactor(format, args...)
	}

	if len(owners) == 0 {
		fail("Safe has no owners")
	}
	if threshold <= 0 {
		fail("Safe threshold is zero")
	}
	if len(owners) > 0 && threshold > len(owners) {
		fail("Threshold (%d) exceeds owner count (%d)", threshold, len(owners))
	}

	seen := make(map[string]bool, len(owners))
	for _, o := range owners {
		key := strings.ToLower(o)
		if seen[key] {
			fail("Duplicate owners detected")
			break
		}
		seen[key] = true
	}

	for _, o := range owners {
		if registry.IsZero(o) {
			fail("Zero address is listed as an owner")
			break
		}
	}

	if critical {
		return
	}

	switch {
	case len(owners) == 1 && threshold == 1:
		c.Elevate(SeverityHigh)
		a.Escalate(RiskHigh)
		a.addRiskFactor("Single-owner Safe with 1-of-1 threshold")
	case threshold == 1 && len(owners) > 1:
		c.Elevate(SeverityMedium)
		a.Escalate(RiskMedium)
		a.addRiskFactor("A single signature is sufficient to execute transactions")
	default:
		c.pass("")
	}
}

// evaluateModules: an empty module set passes; enabled modules widen the
// attack surface and fail the check without a dedicated risk factor.
func (e *Engine) evaluateModules(a *Assessment) {
	c := a.check(CheckModules)
	if len(a.Details.Modules) == 0 {
		c.pass("")
		return
	}
	c.Warn("Safe has %d enabled module(s)", len(a.Details.Modules))
}

// evaluateSanctions screens {wallet, creator, owners} minus the zero
// address, deduplicated, one address at a time. The client throttles
// between calls; one provider error never suppresses the rest.
func (e *Engine) evaluateSanctions(ctx context.Context, a *Assessment) {
	c := a.check(CheckSanctions)

	type target struct{ addr, role string }
	var targets []target
	seen := make(map[string]bool)

	add := func(addr, role string) {
		addr = strings.ToLower(addr)
		if addr == "" || registry.IsZero(addr) || seen[addr] {
			return
		}
		seen[addr] = true
		targets = append(targets, target{addr: addr, role: role})
	}

	add(a.Address, "wallet")
	add(a.Details.Creator, "creator")
	for _, o := range a.Details.Owners {
		add(o, "owner")
	}

	hadError := false
	hadHit := false

	for _, t := range targets {
		stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		result, err := e.sanctions.Check(stepCtx, t.addr)
		cancel()

		if err != nil {
			hadError = true
			c.Warn("sanctions screening failed for %s", t.addr)
			continue
		}
		if !result.Sanctioned {
			continue
		}

		hadHit = true
		if a.Details.SanctionsMatches == nil {
			a.Details.SanctionsMatches = make(map[string][]sanctions.Match)
		}
		a.Details.SanctionsMatches[t.addr] = result.Matches
		c.Elevate(SeverityCritical)
		a.Escalate(RiskCritical)
		a.addRiskFactor("Sanctioned %s address detected (%s)", t.role, t.addr)
	}

	if !hadHit && !hadError {
		c.pass("")
	}
}

// crossValidate compares the indexer snapshot field by field against the
// independently-derived one. A mismatch between two sources of truth
// about a multisig's configuration is the strongest compromise signal
// this system can observe.
func (e *Engine) crossValidate(ctx context.Context, a *Assessment, net chains.Network) {
	c := a.check(CheckCrossValidation)
	if a.Details.CreationTx == "" {
		c.Warn("skipped: creation transaction unavailable")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	derived, err := e.crossval.Derive(ctx, a.Details.CreationTx, net)
	if err != nil {
		c.Warn("cross-validation unavailable")
		return
	}

	type mismatch struct{ field, reported, observed string }
	var mismatches []mismatch

	compare := func(field, reported, observed string) {
		if !strings.EqualFold(strings.TrimSpace(reported), strings.TrimSpace(observed)) {
			mismatches = append(mismatches, mismatch{field, reported, observed})
		}
	}
	compareAddr := func(field, reported, observed string) {
		if registry.IsZero(reported) && registry.IsZero(observed) {
			return
		}
		compare(field, reported, observed)
	}

	compareAddr("mastercopy", a.Details.Mastercopy, derived.Mastercopy)
	compareAddr("creator", a.Details.Creator, derived.Creator)
	compareAddr("factory", a.Details.Factory, derived.Factory)
	if a.Details.Initializer != "" {
		compareAddr("initializer", a.Details.Initializer, derived.Initializer)
	}
	compareAddr("fallback handler", a.Details.FallbackHandler, derived.FallbackHandler)
	compareAddr("address", a.Address, derived.ProxyAddress)
	compareAddr("guard", a.Details.Guard, derived.Guard)
	compare("version", a.Details.Version, derived.Version)

	if a.Details.Threshold != derived.Threshold {
		mismatches = append(mismatches, mismatch{
			"threshold",
			intString(a.Details.Threshold),
			intString(derived.Threshold),
		})
	}
	if !sameAddressSet(a.Details.Owners, derived.Owners) {
		mismatches = append(mismatches, mismatch{
			"owners",
			strings.Join(sortedLower(a.Details.Owners), ", "),
			strings.Join(sortedLower(derived.Owners), ", "),
		})
	}
	if !sameAddressSet(a.Details.Modules, derived.Modules) {
		mismatches = append(mismatches, mismatch{
			"modules",
			strings.Join(sortedLower(a.Details.Modules), ", "),
			strings.Join(sortedLower(derived.Modules), ", "),
		})
	}

	if len(mismatches) == 0 {
		c.pass("")
		return
	}

	metrics.CrossValidationMismatchesTotal.Inc()
	c.Elevate(SeverityCritical)
	a.Escalate(RiskCritical)
	a.addRiskFactor("On-chain state does not match the transaction index")
	for _, m := range mismatches {
		a.addRiskFactor("Mismatch in %s: index reports %q, chain reports %q", m.field, m.reported, m.observed)
	}
}

// finalize computes the numeric score and the risk level from the full
// eleven-check set. Levels set earlier in the pipeline are never
// lowered; a critical finding anywhere dominates unconditionally.
func (e *Engine) finalize(a *Assessment) {
	n := len(allChecks)
	p := a.passedCount()
	factors := len(a.RiskFactors)

	base := int(math.Round(100 * float64(p) / float64(n)))
	score := base - 10*factors
	if score < 0 {
		score = 0
	}

	var level RiskLevel
	switch {
	case factors == 0 && p == n:
		level = RiskLow
		score = 100
	case factors == 0 && float64(p) >= 0.8*float64(n):
		level = RiskLow
		if score < 85 {
			score = 85
		}
	case factors <= 2 && float64(p) >= 0.6*float64(n):
		level = RiskMedium
	default:
		level = RiskHigh
	}

	a.SecurityScore = score
	a.Escalate(level)
}

func sameAddressSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := sortedLower(a), sortedLower(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sortedLower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	sort.Strings(out)
	return out
}

func intString(n int) string {
	return strconv.Itoa(n)
}
