package patient

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

const patientCols = `id, tenant_id, email, full_name, avg_cycle_length, avg_period_length, active, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.TenantID, &p.Email, &p.FullName,
		&p.AvgCycleLength, &p.AvgPeriodLength, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, tenant_id, email, full_name, avg_cycle_length, avg_period_length, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		p.ID, p.TenantID, p.Email, p.FullName, p.AvgCycleLength, p.AvgPeriodLength, p.Active).Scan(&p.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) ListActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Patient, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+patientCols+` FROM patient WHERE tenant_id = $1 AND active ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE patient SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListSubscriptions(ctx context.Context, patientID uuid.UUID) ([]*PushSubscription, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, endpoint, p256dh, auth, created_at
		FROM push_subscription WHERE patient_id = $1 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PushSubscription
	for rows.Next() {
		var s PushSubscription
		if err := rows.Scan(&s.ID, &s.PatientID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

func (r *repoPG) UpsertSubscription(ctx context.Context, s *PushSubscription) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO push_subscription (id, patient_id, endpoint, p256dh, auth)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
			SET patient_id = EXCLUDED.patient_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth
		RETURNING id, created_at`,
		s.ID, s.PatientID, s.Endpoint, s.P256dh, s.Auth).Scan(&s.ID, &s.CreatedAt)
}

func (r *repoPG) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM push_subscription WHERE id = $1`, id)
	return err
}

func (r *repoPG) SymptomsOn(ctx context.Context, patientID uuid.UUID, day time.Time) ([]string, error) {
	var symptoms []string
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT symptoms FROM symptom_log WHERE patient_id = $1 AND date = $2`,
		patientID, day.Format("2006-01-02")).Scan(&symptoms)
	if errors.Is(err, pgx.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return symptoms, nil
}

func (r *repoPG) UpsertSymptomLog(ctx context.Context, s *SymptomLog) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO symptom_log (id, patient_id, date, symptoms, mood, flow, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (patient_id, date) DO UPDATE
			SET symptoms = EXCLUDED.symptoms, mood = EXCLUDED.mood, flow = EXCLUDED.flow, notes = EXCLUDED.notes
		RETURNING id, created_at`,
		s.ID, s.PatientID, s.Date.Format("2006-01-02"), s.Symptoms, s.Mood, s.Flow, s.Notes).Scan(&s.ID, &s.CreatedAt)
}
