package rule

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type is the rule family as stored in notification_rule.type.
type Type string

const (
	TypeCycle              Type = "cycle"
	TypeContraceptive      Type = "contraceptive"
	TypePeriodConfirmation Type = "period_confirmation"
	TypeLifecycle          Type = "lifecycle"
	TypePrenatalMilestone  Type = "prenatal_milestone"
	TypePrenatalDaily      Type = "prenatal_daily"
	TypePrenatalAlert      Type = "prenatal_alert"
)

// Prenatal reports whether rules of this type only apply during pregnancy.
func (t Type) Prenatal() bool {
	return t == TypePrenatalMilestone || t == TypePrenatalDaily || t == TypePrenatalAlert
}

// Channel selects the transports a notification may use.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelDual  Channel = "dual"
)

func (c Channel) Valid() bool {
	return c == ChannelPush || c == ChannelEmail || c == ChannelDual
}

// UsesPush reports whether push is attempted for this channel.
func (c Channel) UsesPush() bool { return c == ChannelPush || c == ChannelDual }

// UsesEmail reports whether email is attempted (as a fallback for dual).
func (c Channel) UsesEmail() bool { return c == ChannelEmail || c == ChannelDual }

// Subcategory picks the master switch that gates a rule whose trigger
// family alone is ambiguous.
type Subcategory string

const (
	SubcategoryNone       Subcategory = ""
	SubcategoryPMS        Subcategory = "pms"
	SubcategoryRhythm     Subcategory = "rhythm"
	SubcategoryPrediction Subcategory = "prediction"
	SubcategoryUltrasound Subcategory = "ultrasound"
	SubcategoryLab        Subcategory = "lab"
	SubcategoryWeek       Subcategory = "week"
)

// Rule is a tenant-defined notification template.
type Rule struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	TenantID         uuid.UUID       `db:"tenant_id" json:"tenant_id"`
	Name             string          `db:"name" json:"name"`
	Type             Type            `db:"type" json:"type"`
	Subcategory      Subcategory     `db:"subcategory" json:"subcategory,omitempty"`
	TriggerCondition json.RawMessage `db:"trigger_condition" json:"trigger_condition"`
	Channel          Channel         `db:"channel" json:"channel"`
	TitleTemplate    string          `db:"title_template" json:"title_template"`
	MessageTemplate  string          `db:"message_template" json:"message_template"`
	SendTime         string          `db:"send_time" json:"send_time,omitempty"`
	IsActive         bool            `db:"is_active" json:"is_active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Trigger decodes the rule's trigger condition.
func (r *Rule) Trigger() Trigger {
	return ParseTrigger(r.TriggerCondition)
}

// ResolvedSubcategory returns the stored subcategory, falling back to
// keyword matching for rules created before the column existed. The cycle
// switches (rhythm, PMS) are chosen from the rule name alone so a template
// that mentions symptoms never moves a period prediction onto the PMS
// switch. Prenatal milestones also look at the templates.
func (r *Rule) ResolvedSubcategory() Subcategory {
	if r.Subcategory != SubcategoryNone {
		return r.Subcategory
	}
	name := strings.ToLower(r.Name)
	switch {
	case containsAny(name, "abstinencia", "ritmo", "rhythm"):
		return SubcategoryRhythm
	case containsAny(name, "pms", "spm", "sintoma", "síntoma", "symptom"):
		return SubcategoryPMS
	}
	text := strings.ToLower(r.Name + " " + r.TitleTemplate + " " + r.MessageTemplate)
	switch {
	case containsAny(text, "ecograf", "ultrasonido", "ultrasound"):
		return SubcategoryUltrasound
	case containsAny(text, "laboratorio", "exámenes", "examenes", "análisis", "analisis"):
		return SubcategoryLab
	}
	return SubcategoryNone
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
