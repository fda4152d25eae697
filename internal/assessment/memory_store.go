package assessment

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string][]*Assessment // network/address → assessments
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string][]*Assessment),
	}
}

func walletKey(network, address string) string {
	return strings.ToLower(network) + "/" + strings.ToLower(address)
}

func (s *MemoryStore) Record(ctx context.Context, a *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := walletKey(a.Network, a.Address)
	s.assessments[key] = append(s.assessments[key], copyAssessment(a))
	return nil
}

func (s *MemoryStore) ListByWallet(ctx context.Context, network, address string, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.assessments[walletKey(network, address)]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	// Most recent first.
	result := make([]*Assessment, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		result = append(result, copyAssessment(all[i]))
	}
	return result, nil
}

// copyAssessment deep-copies the mutable parts so stored assessments
// stay immutable even if a caller mutates the original.
func copyAssessment(a *Assessment) *Assessment {
	out := *a
	out.RiskFactors = append([]string(nil), a.RiskFactors...)
	out.Checks = make(map[string]*CheckResult, len(a.Checks))
	for name, c := range a.Checks {
		cc := *c
		cc.Warnings = append([]string(nil), c.Warnings...)
		out.Checks[name] = &cc
	}
	out.Details.Owners = append([]string(nil), a.Details.Owners...)
	out.Details.Modules = append([]string(nil), a.Details.Modules...)
	return &out
}
