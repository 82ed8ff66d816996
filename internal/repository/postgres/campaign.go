package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// ErrCampaignNotFound is returned when a lookup finds no matching row.
var ErrCampaignNotFound = errors.New("postgres: campaign not found")

// CampaignRepo implements scheduler.CampaignReader and
// replyrouter.CampaignReader against PostgreSQL, plus the CRUD surface
// cmd/server's operator API needs to create and pause campaigns.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

type campaignRow struct {
	allocation []byte
	sequence   []byte
}

func (r *CampaignRepo) scanCampaign(scan func(dest ...interface{}) error) (domain.Campaign, error) {
	var c domain.Campaign
	var row campaignRow
	err := scan(&c.ID, &c.TenantID, &c.Name, &c.Status, &row.allocation, &c.PermissionMode,
		&c.LeadQuota, &row.sequence, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return domain.Campaign{}, err
	}
	if err := json.Unmarshal(row.allocation, &c.ChannelAllocation); err != nil {
		return domain.Campaign{}, fmt.Errorf("decode channel_allocation: %w", err)
	}
	if err := json.Unmarshal(row.sequence, &c.Sequence); err != nil {
		return domain.Campaign{}, fmt.Errorf("decode sequence: %w", err)
	}
	return c, nil
}

// GetCampaign satisfies scheduler.CampaignReader / replyrouter.CampaignReader.
func (r *CampaignRepo) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, status, channel_allocation, permission_mode,
		       lead_quota, sequence, created_at, updated_at, deleted_at
		FROM campaigns WHERE id = $1 AND deleted_at IS NULL
	`, id)
	c, err := r.scanCampaign(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, ErrCampaignNotFound
	}
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("get campaign %s: %w", id, err)
	}
	return c, nil
}

// Create inserts a new campaign, assigning it an id if one isn't set.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = domain.NewID()
	}
	allocation, err := json.Marshal(c.ChannelAllocation)
	if err != nil {
		return fmt.Errorf("encode channel_allocation: %w", err)
	}
	sequence, err := json.Marshal(c.Sequence)
	if err != nil {
		return fmt.Errorf("encode sequence: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, tenant_id, name, status, channel_allocation, permission_mode,
		                        lead_quota, sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`, c.ID, c.TenantID, c.Name, c.Status, allocation, c.PermissionMode, c.LeadQuota, sequence)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// SetStatus transitions a campaign between draft/active/paused/completed,
// the operator-surface pause/resume affordance of spec §6.5.
func (r *CampaignRepo) SetStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL
	`, id, status)
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// ListActiveByTenant returns every active campaign for a tenant, used by
// the Allocator to fan a sourcing run out across a tenant's campaigns.
func (r *CampaignRepo) ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, status, channel_allocation, permission_mode,
		       lead_quota, sequence, created_at, updated_at, deleted_at
		FROM campaigns WHERE tenant_id = $1 AND status = 'active' AND deleted_at IS NULL
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := r.scanCampaign(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
