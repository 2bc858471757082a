package rule

import (
	"encoding/json"

	"github.com/google/uuid"
)

type seed struct {
	name     string
	typ      Type
	sub      Subcategory
	trigger  string
	channel  Channel
	title    string
	message  string
	sendTime string
}

var defaultSeeds = []seed{
	{"Inicio de ventana fértil", TypeCycle, SubcategoryNone, `{"is_fertile_start": true}`, ChannelPush,
		"Tu ventana fértil comienza hoy",
		"<p>Hola {patient_name}, hoy inicia tu ventana fértil. Se extiende hasta el {fertile_window_end}.</p>", "09:00"},
	{"Día de ovulación", TypeCycle, SubcategoryNone, `{"is_ovulation_day": true}`, ChannelPush,
		"Hoy es tu día de ovulación",
		"<p>Hola {patient_name}, según tu ciclo hoy es tu día de ovulación.</p>", "09:00"},
	{"Periodo en 1 día", TypeCycle, SubcategoryPrediction, `{"days_before_period": 1}`, ChannelDual,
		"Tu periodo llega mañana",
		"<p>Hola {patient_name}, tu próximo periodo está previsto para el {next_period_start}.</p>", "20:00"},
	{"Síntomas PMS", TypeCycle, SubcategoryPMS, `{"days_before_period": 3}`, ChannelPush,
		"Se acerca tu periodo",
		"<p>{patient_name}, es posible que notes síntomas premenstruales en los próximos días.</p>", "10:00"},
	{"Método del ritmo: abstinencia", TypeCycle, SubcategoryRhythm, `{"days_before_period": 18}`, ChannelPush,
		"Método del ritmo",
		"<p>{patient_name}, si usas el método del ritmo, hoy inicia tu periodo de abstinencia recomendado.</p>", "08:00"},
	{"Nuevo blíster", TypeContraceptive, SubcategoryNone, `{"type": "contraceptive", "subtype": "new_pack"}`, ChannelPush,
		"Empieza un nuevo blíster",
		"<p>{patient_name}, hoy comienzas un nuevo blíster de anticonceptivos.</p>", "08:00"},
	{"Semana de placebo", TypeContraceptive, SubcategoryNone, `{"type": "contraceptive", "subtype": "placebo"}`, ChannelPush,
		"Semana de descanso",
		"<p>{patient_name}, estás en la semana de descanso (píldora {pill_number}).</p>", "08:00"},
	{"Confirmación de periodo (1 día)", TypePeriodConfirmation, SubcategoryNone, `{"event": "period_confirmation", "day_late": 1}`, ChannelDual,
		"¿Ya llegó tu periodo?",
		"<p>{patient_name}, tu periodo estaba previsto para ayer. Regístralo en la app si ya comenzó.</p>", "19:00"},
	{"Confirmación de periodo (3 días)", TypePeriodConfirmation, SubcategoryNone, `{"event": "period_confirmation", "day_late": 3}`, ChannelDual,
		"Tu periodo tiene {days_late} días de retraso",
		"<p>{patient_name}, tu periodo tiene {days_late} días de retraso. Si tienes dudas, agenda una consulta en {clinic_name}.</p>", "19:00"},
	{"Chequeo anual", TypeLifecycle, SubcategoryNone, `{"event": "annual_checkup"}`, ChannelEmail,
		"Es momento de tu chequeo anual",
		"<p>Hola {patient_name}, ha pasado un año desde tu registro en {clinic_name}. Te recomendamos agendar tu chequeo ginecológico anual.</p>", "10:00"},
	{"Ecografía semana 12", TypePrenatalMilestone, SubcategoryUltrasound, `{"semana_inicio": 12, "semana_fin": 13}`, ChannelDual,
		"Ecografía del primer trimestre",
		"<p>{patient_name}, estás en la semana {gestation_week}. Es momento de agendar tu ecografía del primer trimestre.</p>", "10:00"},
	{"Ecografía semana 20", TypePrenatalMilestone, SubcategoryUltrasound, `{"semana_inicio": 20, "semana_fin": 22}`, ChannelDual,
		"Ecografía morfológica",
		"<p>{patient_name}, en la semana {gestation_week} corresponde la ecografía morfológica.</p>", "10:00"},
	{"Laboratorio semana 24", TypePrenatalMilestone, SubcategoryLab, `{"semana_inicio": 24, "semana_fin": 28}`, ChannelDual,
		"Exámenes de laboratorio",
		"<p>{patient_name}, entre la semana 24 y 28 se realiza la prueba de tolerancia a la glucosa.</p>", "10:00"},
	{"Consejo prenatal T1", TypePrenatalDaily, SubcategoryNone, `{"trimestre": 1, "dia": 1}`, ChannelPush,
		"Consejo de la semana {gestation_week}",
		"<p>{patient_name}, recuerda tomar tu ácido fólico todos los días.</p>", "10:00"},
	{"Consejo prenatal T2", TypePrenatalDaily, SubcategoryNone, `{"trimestre": 2, "dia": 1}`, ChannelPush,
		"Consejo de la semana {gestation_week}",
		"<p>{patient_name}, mantente hidratada y realiza actividad física suave.</p>", "10:00"},
	{"Consejo prenatal T3", TypePrenatalDaily, SubcategoryNone, `{"trimestre": 3, "dia": 1}`, ChannelPush,
		"Consejo de la semana {gestation_week}",
		"<p>{patient_name}, prepara tu bolso para el parto. Fecha probable: {due_date}.</p>", "10:00"},
	{"Alerta de sangrado", TypePrenatalAlert, SubcategoryNone, `{"sintoma_disparador": "sangrado"}`, ChannelDual,
		"Registraste sangrado",
		"<p>{patient_name}, registraste sangrado hoy. Contacta a {clinic_name} o acude a emergencias si es abundante.</p>", "18:30"},
}

// DefaultRules returns the rule set a new tenant starts with.
func DefaultRules(tenantID uuid.UUID) []*Rule {
	rules := make([]*Rule, 0, len(defaultSeeds))
	for _, s := range defaultSeeds {
		rules = append(rules, &Rule{
			ID:               uuid.New(),
			TenantID:         tenantID,
			Name:             s.name,
			Type:             s.typ,
			Subcategory:      s.sub,
			TriggerCondition: json.RawMessage(s.trigger),
			Channel:          s.channel,
			TitleTemplate:    s.title,
			MessageTemplate:  s.message,
			SendTime:         s.sendTime,
			IsActive:         true,
		})
	}
	return rules
}
