package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// ConversationRepo implements replyrouter.ThreadStore and
// replyrouter.MeetingCreator against PostgreSQL.
type ConversationRepo struct{ db *sql.DB }

// NewConversationRepo creates a Postgres-backed conversation repository.
func NewConversationRepo(db *sql.DB) *ConversationRepo { return &ConversationRepo{db: db} }

func scanThread(scan func(dest ...interface{}) error) (domain.ConversationThread, error) {
	var t domain.ConversationThread
	var messages []byte
	err := scan(&t.ID, &t.LeadID, &t.Channel, &t.ThreadKey, &messages, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.ConversationThread{}, err
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &t.Messages); err != nil {
			return domain.ConversationThread{}, fmt.Errorf("decode thread messages: %w", err)
		}
	}
	return t, nil
}

const threadColumns = `id, lead_id, channel, thread_key, messages, active, created_at, updated_at`

// GetOrCreateThread satisfies replyrouter.ThreadStore: exactly one active
// thread per (lead, channel) pair.
func (r *ConversationRepo) GetOrCreateThread(ctx context.Context, leadID string, channel domain.Channel, threadKey string) (domain.ConversationThread, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+threadColumns+` FROM conversation_threads
		WHERE lead_id = $1 AND channel = $2 AND active = true
	`, leadID, channel)
	t, err := scanThread(row.Scan)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ConversationThread{}, fmt.Errorf("get thread: %w", err)
	}

	t = domain.ConversationThread{
		ID:        domain.NewID(),
		LeadID:    leadID,
		Channel:   channel,
		ThreadKey: threadKey,
		Active:    true,
	}
	messages, _ := json.Marshal(t.Messages)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conversation_threads (id, lead_id, channel, thread_key, messages, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, t.ID, t.LeadID, t.Channel, t.ThreadKey, messages, t.Active)
	if err != nil {
		return domain.ConversationThread{}, fmt.Errorf("create thread: %w", err)
	}
	return t, nil
}

// AppendMessage satisfies replyrouter.ThreadStore.
func (r *ConversationRepo) AppendMessage(ctx context.Context, threadID string, msg domain.ThreadMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM conversation_threads WHERE id = $1 FOR UPDATE`, threadID)
	t, err := scanThread(row.Scan)
	if err != nil {
		return fmt.Errorf("load thread for append: %w", err)
	}
	t.Append(msg)

	messages, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("encode thread messages: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE conversation_threads SET messages = $2, updated_at = $3 WHERE id = $1
	`, threadID, messages, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("persist appended message: %w", err)
	}
	return tx.Commit()
}

// CreateMeeting satisfies replyrouter.MeetingCreator.
func (r *ConversationRepo) CreateMeeting(ctx context.Context, m domain.Meeting) (domain.Meeting, error) {
	if m.ID == "" {
		m.ID = domain.NewID()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO meetings (id, tenant_id, lead_id, campaign_id, scheduled_at, duration_minutes,
		                       meeting_type, meeting_link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, m.ID, m.TenantID, m.LeadID, m.CampaignID, m.ScheduledAt, m.DurationMinutes, m.Type, m.MeetingLink)
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("create meeting: %w", err)
	}
	return m, nil
}
