package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// ErrAssignmentNotFound is returned when a lookup finds no matching row.
var ErrAssignmentNotFound = errors.New("postgres: assignment not found")

// AssignmentRepo implements scheduler.AssignmentClaimer and
// replyrouter.AssignmentStore against PostgreSQL.
type AssignmentRepo struct{ db *sql.DB }

// NewAssignmentRepo creates a Postgres-backed assignment repository.
func NewAssignmentRepo(db *sql.DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

func scanAssignment(scan func(dest ...interface{}) error) (domain.Assignment, error) {
	var a domain.Assignment
	var artifacts []byte
	err := scan(&a.ID, &a.TenantID, &a.LeadID, &a.CampaignID, &a.SequenceStep, &a.Status,
		&a.LastTouchedAt, &a.LastChannel, &a.RetryCount, &a.Score, &a.Tier, &artifacts,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if err != nil {
		return domain.Assignment{}, err
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &a.Artifacts); err != nil {
			return domain.Assignment{}, fmt.Errorf("decode artifacts: %w", err)
		}
	}
	return a, nil
}

const assignmentColumns = `id, tenant_id, lead_id, campaign_id, sequence_step, status,
	last_touched_at, last_channel, retry_count, score, tier, artifacts,
	created_at, updated_at, deleted_at`

// ClaimDue satisfies scheduler.AssignmentClaimer. It locks up to
// batchSize due rows with FOR UPDATE SKIP LOCKED so concurrent scheduler
// processes never double-claim the same assignment, in one transaction
// that is committed before returning (a short-lived claim lock, not a
// held transaction spanning the whole dispatch).
func (r *AssignmentRepo) ClaimDue(ctx context.Context, batchSize int, now time.Time) ([]domain.Assignment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim due: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE deleted_at IS NULL
		  AND status IN ('in_sequence', 'replied')
		  AND (last_touched_at IS NULL OR last_touched_at <= $1)
		ORDER BY last_touched_at ASC NULLS FIRST
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim due assignments: %w", err)
	}

	var claimed []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan claimed assignment: %w", err)
		}
		claimed = append(claimed, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(claimed) > 0 {
		ids := make([]string, len(claimed))
		for i, a := range claimed {
			ids[i] = a.ID
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE assignments SET last_touched_at = $2 WHERE id = ANY($1)
		`, pq.Array(ids), now); err != nil {
			return nil, fmt.Errorf("stamp claimed assignments: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim due: %w", err)
	}
	return claimed, nil
}

// Advance satisfies scheduler.AssignmentClaimer: persists the outcome of
// one dispatch attempt.
func (r *AssignmentRepo) Advance(ctx context.Context, a domain.Assignment) error {
	artifacts, err := json.Marshal(a.Artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE assignments
		SET sequence_step = $2, status = $3, last_touched_at = $4, last_channel = $5,
		    retry_count = $6, score = $7, tier = $8, artifacts = $9, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, a.ID, a.SequenceStep, a.Status, a.LastTouchedAt, a.LastChannel, a.RetryCount, a.Score, a.Tier, artifacts)
	if err != nil {
		return fmt.Errorf("advance assignment %s: %w", a.ID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// ActiveAssignment satisfies replyrouter.AssignmentStore: a lead has at
// most one non-deleted assignment at a time.
func (r *AssignmentRepo) ActiveAssignment(ctx context.Context, leadID string) (domain.Assignment, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+` FROM assignments WHERE lead_id = $1 AND deleted_at IS NULL
	`, leadID)
	a, err := scanAssignment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Assignment{}, false, nil
	}
	if err != nil {
		return domain.Assignment{}, false, fmt.Errorf("active assignment for lead %s: %w", leadID, err)
	}
	return a, true, nil
}

// UpdateAssignment satisfies replyrouter.AssignmentStore.
func (r *AssignmentRepo) UpdateAssignment(ctx context.Context, a domain.Assignment) error {
	return r.Advance(ctx, a)
}

// GetByID satisfies replydispatch.AssignmentReader: looked up once a
// scheduled reply comes due, since all the router recorded was the
// assignment id.
func (r *AssignmentRepo) GetByID(ctx context.Context, id string) (domain.Assignment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 AND deleted_at IS NULL`, id)
	a, err := scanAssignment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Assignment{}, ErrAssignmentNotFound
	}
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("get assignment %s: %w", id, err)
	}
	return a, nil
}

