package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gynecloud/notify-engine/internal/platform/clock"
	"github.com/gynecloud/notify-engine/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const pendingCols = `id, rule_id, recipient_id, tenant_id, local_day, subject, body_html, body_text,
	scheduled_for, channel, status, retry_count, last_error, created_at, updated_at`

func scanPending(row pgx.Row) (*Pending, error) {
	var p Pending
	err := row.Scan(&p.ID, &p.RuleID, &p.RecipientID, &p.TenantID, &p.LocalDay,
		&p.Subject, &p.BodyHTML, &p.BodyText, &p.ScheduledFor, &p.Channel, &p.Status,
		&p.RetryCount, &p.LastError, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

const sentCols = `id, rule_id, kind, recipient_id, local_day, sent_at, COALESCE(channel_used, ''), status, error`

func scanSent(row pgx.Row) (*SentLog, error) {
	var l SentLog
	err := row.Scan(&l.ID, &l.RuleID, &l.Kind, &l.RecipientID, &l.LocalDay, &l.SentAt,
		&l.ChannelUsed, &l.Status, &l.Error)
	return &l, err
}

func (r *repoPG) SentSince(ctx context.Context, ruleID, recipientID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sent_log
			WHERE rule_id = $1 AND recipient_id = $2 AND status = 'sent' AND sent_at >= $3
		)`, ruleID, recipientID, since).Scan(&exists)
	return exists, err
}

func (r *repoPG) HasOpenPending(ctx context.Context, ruleID, recipientID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pending_notification
			WHERE rule_id = $1 AND recipient_id = $2 AND local_day = $3::date
			  AND status IN ('pending', 'retrying')
		)`, ruleID, recipientID, clock.FormatDay(day)).Scan(&exists)
	return exists, err
}

func (r *repoPG) Enqueue(ctx context.Context, p *Pending) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO pending_notification (id, rule_id, recipient_id, tenant_id, local_day, subject,
			body_html, body_text, scheduled_for, channel, status, retry_count)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING`,
		p.ID, p.RuleID, p.RecipientID, p.TenantID, clock.FormatDay(p.LocalDay), p.Subject,
		p.BodyHTML, p.BodyText, p.ScheduledFor, string(p.Channel), string(p.Status), p.RetryCount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id FROM pending_notification
		WHERE status IN ('pending', 'retrying') AND scheduled_for <= $1
		ORDER BY scheduled_for ASC, id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repoPG) ClaimForUpdate(ctx context.Context, id uuid.UUID) (*Pending, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, errors.New("notification: ClaimForUpdate requires a transaction")
	}
	p, err := scanPending(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+pendingCols+` FROM pending_notification
		WHERE id = $1 AND status IN ('pending', 'retrying')
		FOR UPDATE SKIP LOCKED`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotClaimable
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Pending) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE pending_notification
		SET status = $2, retry_count = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1`,
		p.ID, string(p.Status), p.RetryCount, p.LastError)
	return err
}

// AppendSentLog ignores a second successful row for the same day; the
// unique index is the last line of dedup.
func (r *repoPG) AppendSentLog(ctx context.Context, l *SentLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Kind == "" {
		l.Kind = KindRule
	}
	var channel *string
	if l.ChannelUsed != "" {
		channel = &l.ChannelUsed
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO sent_log (id, rule_id, kind, recipient_id, local_day, sent_at, channel_used, status, error)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`,
		l.ID, l.RuleID, l.Kind, l.RecipientID, clock.FormatDay(l.LocalDay), l.SentAt,
		channel, string(l.Status), l.Error)
	return err
}

func (r *repoPG) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM pending_notification
		WHERE status IN ('sent', 'failed') AND updated_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// tenantScope restricts a listing to one clinic. The sent log carries no
// tenant column, so it is scoped through the recipient.
var tenantScope = map[string]string{
	"pending_notification": "tenant_id = (SELECT id FROM tenant WHERE slug = $%d)",
	"sent_log":             "recipient_id IN (SELECT p.id FROM patient p JOIN tenant t ON t.id = p.tenant_id WHERE t.slug = $%d)",
}

func whereClause(table string, f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.TenantSlug != "" {
		args = append(args, f.TenantSlug)
		conds = append(conds, fmt.Sprintf(tenantScope[table], len(args)))
	}
	if f.RecipientID != nil {
		args = append(args, *f.RecipientID)
		conds = append(conds, fmt.Sprintf("recipient_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) ListPending(ctx context.Context, f Filter) ([]*Pending, int, error) {
	conn := db.Conn(ctx, r.pool)
	where, args := whereClause("pending_notification", f)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM pending_notification`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM pending_notification%s
		ORDER BY scheduled_for DESC, id LIMIT $%d OFFSET $%d`, pendingCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Pending
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListSent(ctx context.Context, f Filter) ([]*SentLog, int, error) {
	conn := db.Conn(ctx, r.pool)
	where, args := whereClause("sent_log", f)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM sent_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM sent_log%s
		ORDER BY sent_at DESC, id LIMIT $%d OFFSET $%d`, sentCols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*SentLog
	for rows.Next() {
		l, err := scanSent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Stats(ctx context.Context, today time.Time) (*Stats, error) {
	conn := db.Conn(ctx, r.pool)
	rows, err := conn.Query(ctx, `SELECT status, COUNT(*) FROM pending_notification GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var st Stats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch Status(status) {
		case StatusPending:
			st.Pending = n
		case StatusRetrying:
			st.Retrying = n
		case StatusSent:
			st.Sent = n
		case StatusFailed:
			st.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	err = conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM sent_log WHERE status = 'sent' AND local_day = $1::date`,
		clock.FormatDay(today)).Scan(&st.SentToday)
	return &st, err
}
