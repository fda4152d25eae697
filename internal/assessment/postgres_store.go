package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the assessments table if it doesn't exist. Production
// deployments run cmd/migrate instead; this keeps dev setups working.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS assessments (
			id             VARCHAR(36) PRIMARY KEY,
			address        VARCHAR(42) NOT NULL,
			network        VARCHAR(32) NOT NULL,
			overall_risk   VARCHAR(10) NOT NULL CHECK (overall_risk IN ('low', 'medium', 'high', 'critical', 'unknown')),
			security_score SMALLINT NOT NULL CHECK (security_score >= 0 AND security_score <= 100),
			risk_factors   JSONB NOT NULL DEFAULT '[]',
			checks         JSONB NOT NULL DEFAULT '{}',
			details        JSONB NOT NULL DEFAULT '{}',
			assessed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_assessments_wallet
			ON assessments (network, address, assessed_at DESC);

		CREATE INDEX IF NOT EXISTS idx_assessments_critical
			ON assessments (assessed_at DESC) WHERE overall_risk = 'critical';
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, a *Assessment) error {
	factorsJSON, err := json.Marshal(a.RiskFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}
	checksJSON, err := json.Marshal(a.Checks)
	if err != nil {
		return fmt.Errorf("failed to marshal checks: %w", err)
	}
	detailsJSON, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (id, address, network, overall_risk, security_score, risk_factors, checks, details, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		a.ID,
		strings.ToLower(a.Address),
		a.Network,
		string(a.OverallRisk),
		a.SecurityScore,
		factorsJSON,
		checksJSON,
		detailsJSON,
		a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByWallet(ctx context.Context, network, address string, limit int) ([]*Assessment, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, network, overall_risk, security_score, risk_factors, checks, details, assessed_at
		FROM assessments
		WHERE network = $1 AND address = $2
		ORDER BY assessed_at DESC
		LIMIT $3
	`, network, strings.ToLower(address), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var a Assessment
		var risk string
		var factorsJSON, checksJSON, detailsJSON []byte
		var assessedAt time.Time

		if err := rows.Scan(&a.ID, &a.Address, &a.Network, &risk, &a.SecurityScore,
			&factorsJSON, &checksJSON, &detailsJSON, &assessedAt); err != nil {
			continue
		}
		a.OverallRisk = RiskLevel(risk)
		a.Timestamp = assessedAt
		a.RiskFactors = []string{}
		_ = json.Unmarshal(factorsJSON, &a.RiskFactors)
		a.Checks = make(map[string]*CheckResult)
		_ = json.Unmarshal(checksJSON, &a.Checks)
		_ = json.Unmarshal(detailsJSON, &a.Details)
		result = append(result, &a)
	}
	return result, rows.Err()
}
