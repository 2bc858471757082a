package obstetrics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gynecloud/notify-engine/internal/platform/db"
)

type pregnancyRepoPG struct{ pool *pgxpool.Pool }

func NewPregnancyRepoPG(pool *pgxpool.Pool) PregnancyRepository {
	return &pregnancyRepoPG{pool: pool}
}

const pregnancyCols = `id, patient_id, last_period_date, due_date, active, notifications_enabled, started_at, ended_at`

func scanPregnancy(row pgx.Row) (*PregnancyLog, error) {
	var p PregnancyLog
	err := row.Scan(&p.ID, &p.PatientID, &p.LastPeriodDate, &p.DueDate,
		&p.Active, &p.NotificationsEnabled, &p.StartedAt, &p.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pregnancyRepoPG) Create(ctx context.Context, p *PregnancyLog) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO pregnancy_log (id, patient_id, last_period_date, due_date, active, notifications_enabled)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		RETURNING started_at`,
		p.ID, p.PatientID, p.LastPeriodDate, p.DueDate, p.NotificationsEnabled).Scan(&p.StartedAt)
}

func (r *pregnancyRepoPG) GetActive(ctx context.Context, patientID uuid.UUID) (*PregnancyLog, error) {
	return scanPregnancy(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+pregnancyCols+` FROM pregnancy_log WHERE patient_id = $1 AND active`, patientID))
}

func (r *pregnancyRepoPG) End(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE pregnancy_log SET active = FALSE, ended_at = $2 WHERE id = $1 AND active`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pregnancyRepoPG) SetNotificationsEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE pregnancy_log SET notifications_enabled = $2 WHERE id = $1`, id, enabled)
	return err
}

func (r *pregnancyRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PregnancyLog, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+pregnancyCols+` FROM pregnancy_log WHERE patient_id = $1 ORDER BY started_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PregnancyLog
	for rows.Next() {
		p, err := scanPregnancy(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
