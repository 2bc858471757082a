package rule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gynecloud/notify-engine/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Rule, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, tenant_id, name, type, COALESCE(subcategory, ''), trigger_condition, channel,
			title_template, message_template, COALESCE(send_time, ''), is_active, created_at, updated_at
		FROM notification_rule
		WHERE tenant_id = $1 AND is_active
		ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Rule
	for rows.Next() {
		var x Rule
		var trigger []byte
		if err := rows.Scan(&x.ID, &x.TenantID, &x.Name, &x.Type, &x.Subcategory, &trigger, &x.Channel,
			&x.TitleTemplate, &x.MessageTemplate, &x.SendTime, &x.IsActive, &x.CreatedAt, &x.UpdatedAt); err != nil {
			return nil, err
		}
		x.TriggerCondition = trigger
		items = append(items, &x)
	}
	return items, rows.Err()
}

// CreateBatch inserts rules in one round trip; callers wrap it in a
// transaction when it must be atomic with other writes.
func (r *repoPG) CreateBatch(ctx context.Context, rules []*Rule) error {
	batch := &pgx.Batch{}
	for _, x := range rules {
		if x.ID == uuid.Nil {
			x.ID = uuid.New()
		}
		var sub, sendTime *string
		if x.Subcategory != SubcategoryNone {
			s := string(x.Subcategory)
			sub = &s
		}
		if x.SendTime != "" {
			sendTime = &x.SendTime
		}
		batch.Queue(`
			INSERT INTO notification_rule (id, tenant_id, name, type, subcategory, trigger_condition, channel,
				title_template, message_template, send_time, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			x.ID, x.TenantID, x.Name, string(x.Type), sub, string(x.TriggerCondition), string(x.Channel),
			x.TitleTemplate, x.MessageTemplate, sendTime, x.IsActive)
	}

	var results pgx.BatchResults
	if tx := db.TxFromContext(ctx); tx != nil {
		results = tx.SendBatch(ctx, batch)
	} else {
		results = r.pool.SendBatch(ctx, batch)
	}
	defer results.Close()
	for i := range rules {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert rule %q: %w", rules[i].Name, err)
		}
	}
	return results.Close()
}
