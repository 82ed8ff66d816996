package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// WebhookPushLogRepo implements webhook.PushLog against PostgreSQL.
type WebhookPushLogRepo struct{ db *sql.DB }

// NewWebhookPushLogRepo creates a Postgres-backed outbound-webhook audit log.
func NewWebhookPushLogRepo(db *sql.DB) *WebhookPushLogRepo { return &WebhookPushLogRepo{db: db} }

// LogPush satisfies webhook.PushLog.
func (r *WebhookPushLogRepo) LogPush(ctx context.Context, tenantID, event string, payload []byte, statusCode int, pushErr string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_push_log (id, tenant_id, event, payload, status_code, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, domain.NewID(), tenantID, event, payload, statusCode, pushErr)
	if err != nil {
		return fmt.Errorf("log webhook push for tenant %s: %w", tenantID, err)
	}
	return nil
}
