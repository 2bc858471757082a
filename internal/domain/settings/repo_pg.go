package settings

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

const settingsCols = `patient_id,
	cycle_fertile_window, cycle_period_predictions, cycle_pms, cycle_rhythm_method, period_confirmation_reminder,
	prenatal_daily_tips, prenatal_symptom_alerts, prenatal_ultrasound_reminders, prenatal_lab_reminders,
	prenatal_week_milestones, contraceptive_enabled, contraceptive_time, last_contraceptive_sent_date, updated_at`

func scanSettings(row pgx.Row) (*NotificationSettings, error) {
	var s NotificationSettings
	err := row.Scan(&s.PatientID,
		&s.CycleFertileWindow, &s.CyclePeriodPredictions, &s.CyclePMS, &s.CycleRhythmMethod, &s.PeriodConfirmationReminder,
		&s.PrenatalDailyTips, &s.PrenatalSymptomAlerts, &s.PrenatalUltrasoundReminders, &s.PrenatalLabReminders,
		&s.PrenatalWeekMilestones, &s.ContraceptiveEnabled, &s.ContraceptiveTime, &s.LastContraceptiveSentDate, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Get(ctx context.Context, patientID uuid.UUID) (*NotificationSettings, error) {
	return scanSettings(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+settingsCols+` FROM notification_settings WHERE patient_id = $1`, patientID))
}

func (r *repoPG) Insert(ctx context.Context, s *NotificationSettings) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO notification_settings (patient_id,
			cycle_fertile_window, cycle_period_predictions, cycle_pms, cycle_rhythm_method, period_confirmation_reminder,
			prenatal_daily_tips, prenatal_symptom_alerts, prenatal_ultrasound_reminders, prenatal_lab_reminders,
			prenatal_week_milestones, contraceptive_enabled, contraceptive_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (patient_id) DO NOTHING`,
		s.PatientID,
		s.CycleFertileWindow, s.CyclePeriodPredictions, s.CyclePMS, s.CycleRhythmMethod, s.PeriodConfirmationReminder,
		s.PrenatalDailyTips, s.PrenatalSymptomAlerts, s.PrenatalUltrasoundReminders, s.PrenatalLabReminders,
		s.PrenatalWeekMilestones, s.ContraceptiveEnabled, s.ContraceptiveTime)
	return err
}

func (r *repoPG) Update(ctx context.Context, s *NotificationSettings) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE notification_settings SET
			cycle_fertile_window=$2, cycle_period_predictions=$3, cycle_pms=$4, cycle_rhythm_method=$5,
			period_confirmation_reminder=$6, prenatal_daily_tips=$7, prenatal_symptom_alerts=$8,
			prenatal_ultrasound_reminders=$9, prenatal_lab_reminders=$10, prenatal_week_milestones=$11,
			contraceptive_enabled=$12, contraceptive_time=$13, updated_at=NOW()
		WHERE patient_id = $1`,
		s.PatientID,
		s.CycleFertileWindow, s.CyclePeriodPredictions, s.CyclePMS, s.CycleRhythmMethod, s.PeriodConfirmationReminder,
		s.PrenatalDailyTips, s.PrenatalSymptomAlerts, s.PrenatalUltrasoundReminders, s.PrenatalLabReminders,
		s.PrenatalWeekMilestones, s.ContraceptiveEnabled, s.ContraceptiveTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) LockForUpdate(ctx context.Context, patientID uuid.UUID) (*NotificationSettings, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, errors.New("settings: LockForUpdate requires a transaction")
	}
	return scanSettings(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+settingsCols+` FROM notification_settings WHERE patient_id = $1 FOR UPDATE`, patientID))
}

func (r *repoPG) MarkContraceptiveSent(ctx context.Context, patientID uuid.UUID, day time.Time) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE notification_settings SET last_contraceptive_sent_date = $2 WHERE patient_id = $1`,
		patientID, day.Format("2006-01-02"))
	return err
}

func (r *repoPG) ListContraceptiveEnabled(ctx context.Context) ([]PillReminder, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT s.patient_id, p.tenant_id, s.contraceptive_time, s.last_contraceptive_sent_date
		FROM notification_settings s
		JOIN patient p ON p.id = s.patient_id
		JOIN tenant t ON t.id = p.tenant_id
		WHERE s.contraceptive_enabled AND s.contraceptive_time IS NOT NULL
		  AND p.active AND t.active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PillReminder
	for rows.Next() {
		var pr PillReminder
		if err := rows.Scan(&pr.PatientID, &pr.TenantID, &pr.ContraceptiveTime, &pr.LastSentDate); err != nil {
			return nil, err
		}
		items = append(items, pr)
	}
	return items, rows.Err()
}
