// Package assessment implements the wallet security assessment engine.
//
// Given a Safe address and a network, the engine re-derives the wallet's
// on-chain configuration, compares it against the transaction index,
// checks every involved contract against the canonical registry, and
// screens every involved address against the sanctions list. The result
// is a single Assessment: a risk level, a numeric score, and the ordered
// list of human-readable risk factors that produced them.
//
// The engine degrades instead of aborting: once the wallet is known to
// exist, no upstream failure stops the pipeline — each failed step
// records a warning on its check and the remaining checks still run.
package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/safescope/safescope/internal/idgen"
	"github.com/safescope/safescope/internal/sanctions"
)

// RiskLevel is the final verdict of an assessment. Levels form a strict
// order; during a run the level only ever moves up.
type RiskLevel string

const (
	RiskUnknown  RiskLevel = "unknown"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank orders risk levels for monotone escalation.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// Severity grades a single check's finding.
type Severity string

const (
	SeverityPass     Severity = "pass"
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityPass:
		return 0
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// Check names. All eleven are present in every Assessment, whether or
// not the corresponding step could run.
const (
	CheckAddress         = "addressValidation"
	CheckFactory         = "factoryValidation"
	CheckMastercopy      = "mastercopyValidation"
	CheckCreationTx      = "creationTransaction"
	CheckSafeConfig      = "safeConfiguration"
	CheckOwnership       = "ownershipValidation"
	CheckModules         = "moduleValidation"
	CheckInitializer     = "initializerValidation"
	CheckFallbackHandler = "fallbackHandlerValidation"
	CheckSanctions       = "sanctionsValidation"
	CheckCrossValidation = "multisigInfoValidation"
)

// allChecks is the fixed check set the score is computed over.
var allChecks = []string{
	CheckAddress,
	CheckFactory,
	CheckMastercopy,
	CheckCreationTx,
	CheckSafeConfig,
	CheckOwnership,
	CheckModules,
	CheckInitializer,
	CheckFallbackHandler,
	CheckSanctions,
	CheckCrossValidation,
}

// CheckResult is the outcome of one named check. Severity is sticky: it
// can be raised but never lowered, so a critical finding survives any
// later pass determination in the same run.
type CheckResult struct {
	Name          string   `json:"name"`
	Severity      Severity `json:"severity"`
	Passed        bool     `json:"passed"`
	CanonicalName string   `json:"canonicalName,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Elevate raises the check's severity. Lower values are ignored.
func (c *CheckResult) Elevate(s Severity) {
	if s.rank() > c.Severity.rank() {
		c.Severity = s
	}
}

// Warn appends a non-fatal note, e.g. "could not extract initializer".
func (c *CheckResult) Warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// pass marks the check passed unless a critical finding already landed.
func (c *CheckResult) pass(canonicalName string) {
	if c.Severity.rank() >= SeverityCritical.rank() {
		return
	}
	c.Passed = true
	c.Severity = SeverityPass
	if canonicalName != "" {
		c.CanonicalName = canonicalName
	}
}

// WalletSnapshot is everything the assessment observed about the wallet.
// Fields are filled incrementally as upstream calls succeed; a failed
// call leaves its fields empty without blocking independent ones.
type WalletSnapshot struct {
	Mastercopy       string                       `json:"mastercopy,omitempty"`
	Factory          string                       `json:"factory,omitempty"`
	Initializer      string                       `json:"initializer,omitempty"`
	FallbackHandler  string                       `json:"fallbackHandler,omitempty"`
	Guard            string                       `json:"guard,omitempty"`
	Owners           []string                     `json:"owners,omitempty"`
	Threshold        int                          `json:"threshold,omitempty"`
	Modules          []string                     `json:"modules,omitempty"`
	Nonce            int64                        `json:"nonce,omitempty"`
	Version          string                       `json:"version,omitempty"`
	CreationTx       string                       `json:"creationTransaction,omitempty"`
	Creator          string                       `json:"creator,omitempty"`
	SanctionsMatches map[string][]sanctions.Match `json:"sanctionsMatches,omitempty"`
}

// Assessment is the engine's sole output: constructed fresh for every
// invocation, immutable once returned, never merged with earlier runs.
type Assessment struct {
	ID            string                  `json:"id"`
	Address       string                  `json:"address"`
	Network       string                  `json:"network"`
	Timestamp     time.Time               `json:"timestamp"`
	OverallRisk   RiskLevel               `json:"overallRisk"`
	SecurityScore int                     `json:"securityScore"`
	RiskFactors   []string                `json:"riskFactors"`
	Checks        map[string]*CheckResult `json:"checks"`
	Details       WalletSnapshot          `json:"details"`
}

// newAssessment creates an Assessment with all eleven checks present and
// unpassed, so a check that never runs still counts against the score.
func newAssessment(address, network string) *Assessment {
	checks := make(map[string]*CheckResult, len(allChecks))
	for _, name := range allChecks {
		checks[name] = &CheckResult{Name: name, Severity: SeverityInfo}
	}
	return &Assessment{
		ID:          idgen.WithPrefix("asmt_"),
		Address:     address,
		Network:     network,
		Timestamp:   time.Now().UTC(),
		OverallRisk: RiskUnknown,
		RiskFactors: []string{},
		Checks:      checks,
	}
}

// Escalate raises the overall risk level. Lower levels are ignored, so
// a critical set anywhere in the pipeline dominates the final verdict.
func (a *Assessment) Escalate(level RiskLevel) {
	if level.rank() > a.OverallRisk.rank() {
		a.OverallRisk = level
	}
}

// addRiskFactor appends one human-readable risk factor. The list is
// append-only for the lifetime of the assessment.
func (a *Assessment) addRiskFactor(format string, args ...any) {
	a.RiskFactors = append(a.RiskFactors, fmt.Sprintf(format, args...))
}

// check returns the named CheckResult. The set is fixed at construction,
// so a miss is a programming error.
func (a *Assessment) check(name string) *CheckResult {
	c, ok := a.Checks[name]
	if !ok {
		panic("assessment: unknown check " + name)
	}
	return c
}

// passedCount reports how many of the eleven checks passed.
func (a *Assessment) passedCount() int {
	n := 0
	for _, c := range a.Checks {
		if c.Passed {
			n++
		}
	}
	return n
}

// Store persists assessments as an audit trail.
type Store interface {
	Record(ctx context.Context, a *Assessment) error
	ListByWallet(ctx context.Context, network, address string, limit int) ([]*Assessment, error)
}
