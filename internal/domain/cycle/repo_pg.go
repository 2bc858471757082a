package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gynecloud/notify-engine/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const cycleCols = `id, patient_id, start_date, end_date, notes, created_at`

func scanCycle(row pgx.Row) (*CycleLog, error) {
	var c CycleLog
	err := row.Scan(&c.ID, &c.PatientID, &c.StartDate, &c.EndDate, &c.Notes, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *CycleLog) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO cycle_log (id, patient_id, start_date, end_date, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		c.ID, c.PatientID, c.StartDate, c.EndDate, c.Notes).Scan(&c.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*CycleLog, error) {
	return scanCycle(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cycleCols+` FROM cycle_log WHERE id = $1`, id))
}

func (r *repoPG) Latest(ctx context.Context, patientID uuid.UUID) (*CycleLog, error) {
	return scanCycle(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cycleCols+` FROM cycle_log WHERE patient_id = $1
		 ORDER BY start_date DESC, created_at DESC LIMIT 1`, patientID))
}

func (r *repoPG) GetOpen(ctx context.Context, patientID uuid.UUID) (*CycleLog, error) {
	return scanCycle(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cycleCols+` FROM cycle_log WHERE patient_id = $1 AND end_date IS NULL`, patientID))
}

func (r *repoPG) SetEndDate(ctx context.Context, id uuid.UUID, end time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE cycle_log SET end_date = $2 WHERE id = $1 AND end_date IS NULL`, id, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*CycleLog, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+cycleCols+` FROM cycle_log WHERE patient_id = $1 ORDER BY start_date DESC LIMIT $2`,
		patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CycleLog
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
