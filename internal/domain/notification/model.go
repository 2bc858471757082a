package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/gynecloud/notify-engine/internal/domain/rule"
)

// Status is the pending-queue state. pending -> retrying* -> sent | failed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRetrying Status = "retrying"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
)

// Open reports whether the delivery worker may still pick the item up.
func (s Status) Open() bool { return s == StatusPending || s == StatusRetrying }

// Sent-log kinds.
const (
	KindRule              = "rule"
	KindContraceptivePill = "contraceptive_pill"
)

// ChannelUsed values recorded on successful sends.
const (
	UsedPush  = "push"
	UsedEmail = "email"
	UsedDual  = "dual"
)

// Pending is one rendered notification waiting for delivery.
type Pending struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	RuleID       uuid.UUID    `db:"rule_id" json:"rule_id"`
	RecipientID  uuid.UUID    `db:"recipient_id" json:"recipient_id"`
	TenantID     uuid.UUID    `db:"tenant_id" json:"tenant_id"`
	LocalDay     time.Time    `db:"local_day" json:"local_day"`
	Subject      string       `db:"subject" json:"subject"`
	BodyHTML     string       `db:"body_html" json:"body_html"`
	BodyText     string       `db:"body_text" json:"body_text"`
	ScheduledFor time.Time    `db:"scheduled_for" json:"scheduled_for"`
	Channel      rule.Channel `db:"channel" json:"channel"`
	Status       Status       `db:"status" json:"status"`
	RetryCount   int          `db:"retry_count" json:"retry_count"`
	LastError    *string      `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// SentLog is the append-only audit row. RuleID is nil for pill reminders.
type SentLog struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	RuleID      *uuid.UUID `db:"rule_id" json:"rule_id,omitempty"`
	Kind        string     `db:"kind" json:"kind"`
	RecipientID uuid.UUID  `db:"recipient_id" json:"recipient_id"`
	LocalDay    time.Time  `db:"local_day" json:"local_day"`
	SentAt      time.Time  `db:"sent_at" json:"sent_at"`
	ChannelUsed string     `db:"channel_used" json:"channel_used,omitempty"`
	Status      Status     `db:"status" json:"status"`
	Error       *string    `db:"error" json:"error,omitempty"`
}

// Filter narrows the ops listings.
type Filter struct {
	TenantSlug  string
	RecipientID *uuid.UUID
	Status      Status
	Limit       int
	Offset      int
}

// Stats counts queue rows by status and today's audit entries.
type Stats struct {
	Pending   int `json:"pending"`
	Retrying  int `json:"retrying"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	SentToday int `json:"sent_today"`
}
