package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/patterns"
)

// PatternRepo implements patterns.Repository and patterns.Store against
// PostgreSQL.
type PatternRepo struct{ db *sql.DB }

// NewPatternRepo creates a Postgres-backed pattern detector repository.
func NewPatternRepo(db *sql.DB) *PatternRepo { return &PatternRepo{db: db} }

// ConversionSamples satisfies patterns.Repository. tenantID="" returns
// the platform-wide sample set across every tenant; a non-empty tenantID
// scopes to that tenant alone. Each sample joins one dispatched activity
// to its assignment and lead for the feature set detectWho/detectWhat/
// detectWhen/detectHow consume, and is marked converted if the owning
// assignment ever reached the converted status.
func (r *PatternRepo) ConversionSamples(ctx context.Context, tenantID string, since time.Time) ([]patterns.ConversionSample, error) {
	query := `
		SELECT act.tenant_id, act.lead_id, l.firmographics, l.title, t.icp, act.channel,
		       act.sequence_step, act.created_at, (asg.status = 'converted') AS converted,
		       (SELECT COUNT(*) FROM activities a2 WHERE a2.lead_id = act.lead_id) AS touch_count
		FROM activities act
		JOIN assignments asg ON asg.id = act.assignment_id
		JOIN lead_pool l ON l.id = act.lead_id
		JOIN tenants t ON t.id = act.tenant_id
		WHERE act.action = 'sent' AND act.created_at >= $1`
	args := []interface{}{since}
	if tenantID != "" {
		query += " AND act.tenant_id = $2"
		args = append(args, tenantID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversion samples: %w", err)
	}
	defer rows.Close()

	var out []patterns.ConversionSample
	for rows.Next() {
		var s patterns.ConversionSample
		var firmo, icp []byte
		var title string
		if err := rows.Scan(&s.TenantID, &s.Lead.ID, &firmo, &title, &icp, &s.Channel, &s.SequenceStep,
			&s.SentAt, &s.Converted, &s.TouchCount); err != nil {
			return nil, fmt.Errorf("scan conversion sample: %w", err)
		}
		s.Lead.Title = title
		if len(icp) > 0 {
			if err := json.Unmarshal(icp, &s.ICP); err != nil {
				return nil, fmt.Errorf("decode sample icp: %w", err)
			}
		}
		if len(firmo) > 0 {
			if err := json.Unmarshal(firmo, &s.Lead.Firmographics); err != nil {
				return nil, fmt.Errorf("decode sample firmographics: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveRecords satisfies patterns.Store.
func (r *PatternRepo) SaveRecords(ctx context.Context, records []domain.PatternRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save pattern records: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = domain.NewID()
		}
		features, err := json.Marshal(rec.Features)
		if err != nil {
			return fmt.Errorf("encode pattern features: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pattern_records (id, tenant_id, kind, features, computed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, rec.ID, rec.TenantID, rec.Kind, features, rec.ComputedAt)
		if err != nil {
			return fmt.Errorf("insert pattern record: %w", err)
		}
	}
	return tx.Commit()
}

// LastRunAt satisfies patterns.Store.
func (r *PatternRepo) LastRunAt(ctx context.Context, tenantID string) (time.Time, bool, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT last_run_at FROM pattern_run_cursors WHERE tenant_id = $1
	`, tenantID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last run at for tenant %q: %w", tenantID, err)
	}
	return t, true, nil
}

// SetLastRunAt satisfies patterns.Store.
func (r *PatternRepo) SetLastRunAt(ctx context.Context, tenantID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pattern_run_cursors (tenant_id, last_run_at)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET last_run_at = EXCLUDED.last_run_at
	`, tenantID, at)
	if err != nil {
		return fmt.Errorf("set last run at for tenant %q: %w", tenantID, err)
	}
	return nil
}

// LatestByKind returns the most recently computed Pattern Record of kind
// for tenantID (or the platform-wide record if tenantID is "" and no
// tenant-specific one exists), for scorer.ResolveWeights to consume.
func (r *PatternRepo) LatestByKind(ctx context.Context, tenantID string, kind domain.PatternKind) (domain.PatternRecord, bool, error) {
	var rec domain.PatternRecord
	var features []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, kind, features, computed_at FROM pattern_records
		WHERE tenant_id = $1 AND kind = $2 ORDER BY computed_at DESC LIMIT 1
	`, tenantID, kind).Scan(&rec.ID, &rec.TenantID, &rec.Kind, &features, &rec.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PatternRecord{}, false, nil
	}
	if err != nil {
		return domain.PatternRecord{}, false, fmt.Errorf("latest pattern record: %w", err)
	}
	if err := json.Unmarshal(features, &rec.Features); err != nil {
		return domain.PatternRecord{}, false, fmt.Errorf("decode pattern features: %w", err)
	}
	return rec, true, nil
}
