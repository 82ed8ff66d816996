package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// ActivityRepo implements scheduler.ActivityWriter, jit.ActivityReader, and
// replyrouter.ActivityWriter against PostgreSQL. Every write is an insert;
// spec §4.1 requires the activity log remain append-only.
type ActivityRepo struct{ db *sql.DB }

// NewActivityRepo creates a Postgres-backed activity repository.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

const activityColumns = `id, tenant_id, lead_id, assignment_id, campaign_id, channel, action,
	reject_reason, provider_msg_id, resource_id, content, sequence_step, created_at`

func scanActivity(scan func(dest ...interface{}) error) (domain.Activity, error) {
	var a domain.Activity
	var content []byte
	err := scan(&a.ID, &a.TenantID, &a.LeadID, &a.AssignmentID, &a.CampaignID, &a.Channel, &a.Action,
		&a.RejectReason, &a.ProviderMsgID, &a.ResourceID, &content, &a.SequenceStep, &a.CreatedAt)
	if err != nil {
		return domain.Activity{}, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &a.Content); err != nil {
			return domain.Activity{}, fmt.Errorf("decode content snapshot: %w", err)
		}
	}
	return a, nil
}

// Append satisfies scheduler.ActivityWriter / replyrouter.ActivityWriter.
func (r *ActivityRepo) Append(ctx context.Context, a domain.Activity) error {
	if a.ID == "" {
		a.ID = domain.NewID()
	}
	content, err := json.Marshal(a.Content)
	if err != nil {
		return fmt.Errorf("encode content snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO activities (id, tenant_id, lead_id, assignment_id, campaign_id, channel, action,
		                         reject_reason, provider_msg_id, resource_id, content, sequence_step, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	`, a.ID, a.TenantID, a.LeadID, a.AssignmentID, a.CampaignID, a.Channel, a.Action,
		a.RejectReason, a.ProviderMsgID, a.ResourceID, content, a.SequenceStep)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// LastActivity satisfies jit.ActivityReader: the most recent activity to
// a lead across all channels, for the touch-gap cooldown.
func (r *ActivityRepo) LastActivity(ctx context.Context, leadID string) (*domain.Activity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+activityColumns+` FROM activities WHERE lead_id = $1 ORDER BY created_at DESC LIMIT 1
	`, leadID)
	a, err := scanActivity(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last activity for lead %s: %w", leadID, err)
	}
	return &a, nil
}

// LastChannelActivity satisfies jit.ActivityReader: the most recent
// activity to a lead on a specific channel, for the channel cooldown.
func (r *ActivityRepo) LastChannelActivity(ctx context.Context, leadID string, channel domain.Channel) (*domain.Activity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE lead_id = $1 AND channel = $2 ORDER BY created_at DESC LIMIT 1
	`, leadID, channel)
	a, err := scanActivity(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last channel activity for lead %s/%s: %w", leadID, channel, err)
	}
	return &a, nil
}

// ForLead returns a lead's full activity history, newest first, for
// operator-surface inspection (spec §6.5).
func (r *ActivityRepo) ForLead(ctx context.Context, leadID string, limit int) ([]domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+activityColumns+` FROM activities WHERE lead_id = $1 ORDER BY created_at DESC LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("activity history for lead %s: %w", leadID, err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
