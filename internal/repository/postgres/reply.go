package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/replyrouter"
)

// ReplyRepo implements replyrouter.ReplyScheduler and the reply
// dispatcher's durable queue against PostgreSQL.
type ReplyRepo struct{ db *sql.DB }

// NewReplyRepo creates a Postgres-backed scheduled-reply repository.
func NewReplyRepo(db *sql.DB) *ReplyRepo { return &ReplyRepo{db: db} }

// ScheduleReply satisfies replyrouter.ReplyScheduler: persists a
// scheduled_replies row due at now+delay, surviving a worker restart
// between scheduling and dispatch.
func (r *ReplyRepo) ScheduleReply(ctx context.Context, assignment domain.Assignment, channel domain.Channel, tier replyrouter.ReplyTier, delay time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_replies (id, assignment_id, channel, tier, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, domain.NewID(), assignment.ID, channel, string(tier), time.Now().Add(delay))
	if err != nil {
		return fmt.Errorf("schedule reply for assignment %s: %w", assignment.ID, err)
	}
	return nil
}

// DueReplies returns unsent scheduled replies whose delay has elapsed,
// oldest first, for the reply dispatcher's poll loop.
func (r *ReplyRepo) DueReplies(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledReply, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, assignment_id, channel, tier, due_at FROM scheduled_replies
		WHERE sent_at IS NULL AND due_at <= $1
		ORDER BY due_at ASC LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due replies: %w", err)
	}
	defer rows.Close()

	var out []domain.ScheduledReply
	for rows.Next() {
		var sr domain.ScheduledReply
		if err := rows.Scan(&sr.ID, &sr.AssignmentID, &sr.Channel, &sr.Tier, &sr.DueAt); err != nil {
			return nil, fmt.Errorf("scan due reply: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// MarkSent stamps a scheduled reply as dispatched so the next poll
// doesn't pick it up again.
func (r *ReplyRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scheduled_replies SET sent_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark reply %s sent: %w", id, err)
	}
	return nil
}
