package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// ErrLeadNotFound is returned when a lookup finds no matching row.
var ErrLeadNotFound = errors.New("postgres: lead not found")

// LeadRepo implements leadpool.Repository, scheduler.LeadReader, and
// replyrouter.LeadResolver/LeadPoolWriter against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead pool repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

func scanLead(scan func(dest ...interface{}) error) (domain.LeadPoolRecord, error) {
	var l domain.LeadPoolRecord
	var firmo []byte
	err := scan(&l.ID, &l.Email, &l.EmailStatus, &l.Phone, &l.LinkedInURL, &l.MailAddressRef, &l.ProviderExternalID,
		&l.FirstName, &l.LastName, &l.Title, &firmo, &l.EnrichmentTier, &l.Confidence,
		&l.FingerprintHash, &l.ProvenanceNote, &l.Status, &l.Bounced, &l.Unsubscribed,
		&l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if err != nil {
		return domain.LeadPoolRecord{}, err
	}
	if len(firmo) > 0 {
		if err := json.Unmarshal(firmo, &l.Firmographics); err != nil {
			return domain.LeadPoolRecord{}, fmt.Errorf("decode firmographics: %w", err)
		}
	}
	return l, nil
}

const leadColumns = `id, email, email_status, phone, linkedin_url, mail_address_ref, provider_external_id,
	first_name, last_name, title, firmographics, enrichment_tier, confidence,
	fingerprint_hash, provenance_note, status, bounced, unsubscribed,
	created_at, updated_at, deleted_at`

// GetLead satisfies scheduler.LeadReader.
func (r *LeadRepo) GetLead(ctx context.Context, id string) (domain.LeadPoolRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM lead_pool WHERE id = $1 AND deleted_at IS NULL`, id)
	l, err := scanLead(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeadPoolRecord{}, ErrLeadNotFound
	}
	if err != nil {
		return domain.LeadPoolRecord{}, fmt.Errorf("get lead %s: %w", id, err)
	}
	return l, nil
}

// ResolveByKey satisfies replyrouter.LeadResolver: maps a webhook's
// email/phone/linkedin key back to the owning pool record.
func (r *LeadRepo) ResolveByKey(ctx context.Context, kind domain.SuppressionKeyKind, key string) (domain.LeadPoolRecord, error) {
	var column string
	switch kind {
	case domain.KeyEmail:
		column = "email"
	case domain.KeyPhone:
		column = "phone"
	default:
		column = "linkedin_url"
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM lead_pool WHERE `+column+` = $1 AND deleted_at IS NULL LIMIT 1`, key)
	l, err := scanLead(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeadPoolRecord{}, ErrLeadNotFound
	}
	if err != nil {
		return domain.LeadPoolRecord{}, fmt.Errorf("resolve lead by %s: %w", column, err)
	}
	return l, nil
}

// MarkInvalid satisfies replyrouter.LeadPoolWriter: a wrong_person reply
// means the record's identity is wrong and it should never be sourced
// for another tenant again.
func (r *LeadRepo) MarkInvalid(ctx context.Context, leadID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE lead_pool SET status = 'invalid', updated_at = NOW() WHERE id = $1`, leadID)
	if err != nil {
		return fmt.Errorf("mark lead invalid: %w", err)
	}
	return nil
}

// UpsertSkipConflict satisfies leadpool.Repository / replyrouter.LeadPoolWriter:
// insert rec unless one of its natural keys already exists in the pool.
func (r *LeadRepo) UpsertSkipConflict(ctx context.Context, rec *domain.LeadPoolRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = domain.NewID()
	}
	firmo, err := json.Marshal(rec.Firmographics)
	if err != nil {
		return false, fmt.Errorf("encode firmographics: %w", err)
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lead_pool
			WHERE deleted_at IS NULL AND (
				(email <> '' AND email = $1) OR
				(provider_external_id <> '' AND provider_external_id = $2) OR
				(linkedin_url <> '' AND linkedin_url = $3)
			)
		)
	`, rec.Email, rec.ProviderExternalID, rec.LinkedInURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check natural key conflict: %w", err)
	}
	if exists {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lead_pool (id, email, email_status, phone, linkedin_url, mail_address_ref, provider_external_id,
		                        first_name, last_name, title, firmographics, enrichment_tier,
		                        confidence, fingerprint_hash, provenance_note, status, bounced,
		                        unsubscribed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW())
		ON CONFLICT DO NOTHING
	`, rec.ID, rec.Email, rec.EmailStatus, rec.Phone, rec.LinkedInURL, rec.MailAddressRef, rec.ProviderExternalID,
		rec.FirstName, rec.LastName, rec.Title, firmo, rec.EnrichmentTier, rec.Confidence,
		rec.FingerprintHash, rec.ProvenanceNote, rec.Status, rec.Bounced, rec.Unsubscribed)
	if err != nil {
		return false, fmt.Errorf("insert lead pool record: %w", err)
	}
	return true, nil
}

// CandidatesForAllocation satisfies leadpool.Repository: pool records with
// no active assignment to any tenant, matching icp's industry/title
// filters loosely (an exact structured-query planner is out of scope;
// spec §4.6 leaves ICP matching itself to the external provider and only
// asks the pool query to avoid re-offering already-assigned leads), not
// globally blocked.
func (r *LeadRepo) CandidatesForAllocation(ctx context.Context, tenantID string, icp domain.ICPVector, limit int) ([]domain.LeadPoolRecord, error) {
	query := `
		SELECT ` + leadColumns + ` FROM lead_pool l
		WHERE l.deleted_at IS NULL
		  AND l.bounced = false AND l.unsubscribed = false
		  AND l.status <> 'invalid'
		  AND NOT EXISTS (
			SELECT 1 FROM assignments a WHERE a.lead_id = l.id AND a.deleted_at IS NULL
		  )`
	args := []interface{}{}
	argn := 1
	if len(icp.Industries) > 0 {
		query += fmt.Sprintf(" AND (l.firmographics->>'industry') = ANY($%d)", argn)
		args = append(args, pq.Array(icp.Industries))
		argn++
	}
	if len(icp.Titles) > 0 {
		conds := make([]string, len(icp.Titles))
		for i, t := range icp.Titles {
			conds[i] = fmt.Sprintf("l.title ILIKE $%d", argn)
			args = append(args, "%"+t+"%")
			argn++
		}
		query += " AND (" + strings.Join(conds, " OR ") + ")"
	}
	query += fmt.Sprintf(" ORDER BY l.created_at ASC LIMIT $%d", argn)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("candidates for allocation: %w", err)
	}
	defer rows.Close()

	var out []domain.LeadPoolRecord
	for rows.Next() {
		l, err := scanLead(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan candidate lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateAssignments satisfies leadpool.Repository: inserts every
// assignment in one transaction, relying on the partial unique index on
// (lead_id) WHERE deleted_at IS NULL to reject a lead already claimed by
// a concurrent allocator run.
func (r *LeadRepo) CreateAssignments(ctx context.Context, assignments []domain.Assignment) ([]domain.Assignment, error) {
	if len(assignments) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create assignments: %w", err)
	}
	defer tx.Rollback()

	var claimed []domain.Assignment
	for _, a := range assignments {
		if a.ID == "" {
			a.ID = domain.NewID()
		}
		artifacts, err := json.Marshal(a.Artifacts)
		if err != nil {
			return nil, fmt.Errorf("encode artifacts: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO assignments (id, tenant_id, lead_id, campaign_id, sequence_step, status,
			                          last_channel, retry_count, score, tier, artifacts,
			                          created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
			ON CONFLICT DO NOTHING
		`, a.ID, a.TenantID, a.LeadID, a.CampaignID, a.SequenceStep, a.Status,
			a.LastChannel, a.RetryCount, a.Score, a.Tier, artifacts)
		if err != nil {
			if isUniqueViolation(err) {
				continue // lost the race for this lead to a concurrent allocator run
			}
			return nil, fmt.Errorf("insert assignment for lead %s: %w", a.LeadID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue // ON CONFLICT DO NOTHING skipped it: the lead already has a live assignment
		}
		claimed = append(claimed, a)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create assignments: %w", err)
	}
	return claimed, nil
}

// PendingEnrichment returns up to limit pool records still at status=new
// (unenriched or below the waterfall's acceptance gate on a prior pass),
// oldest first, for the periodic Enrichment Flow to retry.
func (r *LeadRepo) PendingEnrichment(ctx context.Context, limit int) ([]domain.LeadPoolRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadColumns+` FROM lead_pool
		WHERE deleted_at IS NULL AND status = 'new'
		ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending enrichment: %w", err)
	}
	defer rows.Close()

	var out []domain.LeadPoolRecord
	for rows.Next() {
		l, err := scanLead(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan pending-enrichment lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveEnrichment persists the Waterfall's merged fields, provenance, and
// status onto an existing pool row (spec §4.5: acceptance writes the
// merged record; a below-gate outcome writes only provenance and leaves
// status=new for the next pass).
func (r *LeadRepo) SaveEnrichment(ctx context.Context, rec domain.LeadPoolRecord) error {
	firmo, err := json.Marshal(rec.Firmographics)
	if err != nil {
		return fmt.Errorf("encode firmographics: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE lead_pool SET
			email = $2, email_status = $3, phone = $4, linkedin_url = $5, mail_address_ref = $6,
			first_name = $7, last_name = $8, title = $9, firmographics = $10,
			enrichment_tier = $11, confidence = $12, fingerprint_hash = $13,
			provenance_note = $14, status = $15, updated_at = NOW()
		WHERE id = $1
	`, rec.ID, rec.Email, rec.EmailStatus, rec.Phone, rec.LinkedInURL, rec.MailAddressRef,
		rec.FirstName, rec.LastName, rec.Title, firmo,
		rec.EnrichmentTier, rec.Confidence, rec.FingerprintHash,
		rec.ProvenanceNote, rec.Status)
	if err != nil {
		return fmt.Errorf("save enrichment for lead %s: %w", rec.ID, err)
	}
	return nil
}

// ActivePipelineCount satisfies leadpool.Repository: the active count the
// monthly replenishment gap calculation subtracts from the lead quota
// (spec §4.6).
func (r *LeadRepo) ActivePipelineCount(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM assignments
		WHERE tenant_id = $1 AND deleted_at IS NULL
		  AND status IN ('new', 'enriched', 'in_sequence', 'replied')
	`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("active pipeline count: %w", err)
	}
	return n, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), the expected shape of a lost allocator race.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
