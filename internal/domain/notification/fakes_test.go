package notification

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gynecloud/notify-engine/internal/domain/cycle"
	"github.com/gynecloud/notify-engine/internal/domain/obstetrics"
	"github.com/gynecloud/notify-engine/internal/domain/patient"
	"github.com/gynecloud/notify-engine/internal/domain/rule"
	"github.com/gynecloud/notify-engine/internal/domain/settings"
	"github.com/gynecloud/notify-engine/internal/domain/tenant"
	"github.com/gynecloud/notify-engine/internal/platform/clock"
	"github.com/gynecloud/notify-engine/internal/platform/db"
	"github.com/gynecloud/notify-engine/internal/platform/mailer"
	"github.com/gynecloud/notify-engine/internal/platform/push"
)

// vet is the clinic zone used by the tests (Venezuela, UTC-4, no DST).
var vet = time.FixedZone("VET", -4*3600)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, vet)
}

// dbDate mimics a DATE column scanned by pgx.
func dbDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// --- queue -----------------------------------------------------------------

type memRepo struct {
	mu      sync.Mutex
	now     func() time.Time
	pending map[uuid.UUID]*Pending
	sent    []*SentLog
}

func newMemRepo(now func() time.Time) *memRepo {
	return &memRepo{now: now, pending: make(map[uuid.UUID]*Pending)}
}

func (m *memRepo) SentSince(_ context.Context, ruleID, recipientID uuid.UUID, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.sent {
		if l.RuleID != nil && *l.RuleID == ruleID && l.RecipientID == recipientID &&
			l.Status == StatusSent && !l.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) openFor(ruleID, recipientID uuid.UUID, day time.Time) bool {
	for _, p := range m.pending {
		if p.RuleID == ruleID && p.RecipientID == recipientID && clock.SameDay(p.LocalDay, day) && p.Status.Open() {
			return true
		}
	}
	return false
}

func (m *memRepo) HasOpenPending(_ context.Context, ruleID, recipientID uuid.UUID, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openFor(ruleID, recipientID, day), nil
}

func (m *memRepo) Enqueue(_ context.Context, p *Pending) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openFor(p.RuleID, p.RecipientID, p.LocalDay) {
		return false, nil
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	cp.CreatedAt, cp.UpdatedAt = m.now(), m.now()
	m.pending[p.ID] = &cp
	return true, nil
}

func (m *memRepo) ListDue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*Pending
	for _, p := range m.pending {
		if p.Status.Open() && !p.ScheduledFor.After(now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	var ids []uuid.UUID
	for _, p := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (m *memRepo) ClaimForUpdate(_ context.Context, id uuid.UUID) (*Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok || !p.Status.Open() {
		return nil, ErrNotClaimable
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) Update(_ context.Context, p *Pending) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.pending[p.ID]
	cur.Status, cur.RetryCount, cur.LastError = p.Status, p.RetryCount, p.LastError
	cur.UpdatedAt = m.now()
	return nil
}

func (m *memRepo) AppendSentLog(_ context.Context, l *SentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.Status == StatusSent {
		for _, e := range m.sent {
			if e.Status != StatusSent || e.RecipientID != l.RecipientID || !clock.SameDay(e.LocalDay, l.LocalDay) {
				continue
			}
			if l.Kind == KindContraceptivePill && e.Kind == KindContraceptivePill {
				return nil
			}
			if l.RuleID != nil && e.RuleID != nil && *l.RuleID == *e.RuleID {
				return nil
			}
		}
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	cp := *l
	m.sent = append(m.sent, &cp)
	return nil
}

func (m *memRepo) DeleteFinishedBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.pending {
		if !p.Status.Open() && p.UpdatedAt.Before(before) {
			delete(m.pending, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) ListPending(_ context.Context, f Filter) ([]*Pending, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Pending
	for _, p := range m.pending {
		if f.RecipientID != nil && p.RecipientID != *f.RecipientID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *memRepo) ListSent(_ context.Context, f Filter) ([]*SentLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SentLog
	for _, l := range m.sent {
		if f.RecipientID != nil && l.RecipientID != *f.RecipientID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		out = append(out, l)
	}
	return out, len(out), nil
}

func (m *memRepo) Stats(_ context.Context, today time.Time) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st Stats
	for _, p := range m.pending {
		switch p.Status {
		case StatusPending:
			st.Pending++
		case StatusRetrying:
			st.Retrying++
		case StatusSent:
			st.Sent++
		case StatusFailed:
			st.Failed++
		}
	}
	for _, l := range m.sent {
		if l.Status == StatusSent && clock.SameDay(l.LocalDay, today) {
			st.SentToday++
		}
	}
	return &st, nil
}

func (m *memRepo) byStatus(s Status) []*Pending {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Pending
	for _, p := range m.pending {
		if p.Status == s {
			out = append(out, p)
		}
	}
	return out
}

func (m *memRepo) logs(status Status) []*SentLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SentLog
	for _, l := range m.sent {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

// --- patient-owned records ---------------------------------------------------

type fakeStore struct {
	mu          sync.Mutex
	tenants     []*tenant.Tenant
	patients    map[uuid.UUID]*patient.Patient
	subs        map[uuid.UUID][]*patient.PushSubscription
	symptoms    map[uuid.UUID][]string
	cycles      map[uuid.UUID]*cycle.CycleLog
	pregnancies map[uuid.UUID]*obstetrics.PregnancyLog
	rules       map[uuid.UUID][]*rule.Rule
	settings    map[uuid.UUID]*settings.NotificationSettings
	deleted     []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patients:    make(map[uuid.UUID]*patient.Patient),
		subs:        make(map[uuid.UUID][]*patient.PushSubscription),
		symptoms:    make(map[uuid.UUID][]string),
		cycles:      make(map[uuid.UUID]*cycle.CycleLog),
		pregnancies: make(map[uuid.UUID]*obstetrics.PregnancyLog),
		rules:       make(map[uuid.UUID][]*rule.Rule),
		settings:    make(map[uuid.UUID]*settings.NotificationSettings),
	}
}

func (f *fakeStore) ListActive(context.Context) ([]*tenant.Tenant, error) {
	return f.tenants, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListActiveByTenant(_ context.Context, tenantID uuid.UUID) ([]*patient.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*patient.Patient
	for _, p := range f.patients {
		if p.TenantID == tenantID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListSubscriptions(_ context.Context, patientID uuid.UUID) ([]*patient.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*patient.PushSubscription(nil), f.subs[patientID]...), nil
}

func (f *fakeStore) DeleteSubscription(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pid, list := range f.subs {
		kept := list[:0]
		for _, s := range list {
			if s.ID != id {
				kept = append(kept, s)
			}
		}
		f.subs[pid] = kept
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) SymptomsOn(_ context.Context, patientID uuid.UUID, _ time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.symptoms[patientID], nil
}

type cycleView struct{ *fakeStore }

func (c cycleView) Latest(_ context.Context, patientID uuid.UUID) (*cycle.CycleLog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.cycles[patientID]
	if !ok {
		return nil, cycle.ErrNotFound
	}
	return l, nil
}

type pregnancyView struct{ *fakeStore }

func (p pregnancyView) GetActive(_ context.Context, patientID uuid.UUID) (*obstetrics.PregnancyLog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.pregnancies[patientID]
	if !ok || !l.Active {
		return nil, obstetrics.ErrNotFound
	}
	return l, nil
}

type ruleView struct{ *fakeStore }

func (r ruleView) ListActiveByTenant(_ context.Context, tenantID uuid.UUID) ([]*rule.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rules[tenantID], nil
}

type settingsView struct{ *fakeStore }

func (s settingsView) GetOrCreate(_ context.Context, patientID uuid.UUID) (*settings.NotificationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[patientID]
	if !ok {
		st = settings.Defaults(patientID)
		s.settings[patientID] = st
	}
	cp := *st
	return &cp, nil
}

func (s settingsView) LockForUpdate(ctx context.Context, patientID uuid.UUID) (*settings.NotificationSettings, error) {
	return s.GetOrCreate(ctx, patientID)
}

func (s settingsView) MarkContraceptiveSent(_ context.Context, patientID uuid.UUID, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := dbDate(day.Year(), day.Month(), day.Day())
	s.settings[patientID].LastContraceptiveSentDate = &d
	return nil
}

func (s settingsView) ListContraceptiveEnabled(context.Context) ([]settings.PillReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []settings.PillReminder
	for pid, st := range s.settings {
		if !st.ContraceptiveEnabled || st.PillTime() == "" {
			continue
		}
		out = append(out, settings.PillReminder{
			PatientID:         pid,
			TenantID:          s.patients[pid].TenantID,
			ContraceptiveTime: st.PillTime(),
			LastSentDate:      st.LastContraceptiveSentDate,
		})
	}
	return out, nil
}

// --- transports ------------------------------------------------------------

type fakePush struct {
	mu       sync.Mutex
	failures map[string]error
	sent     []push.Payload
}

func (f *fakePush) Send(_ context.Context, sub push.Subscription, p push.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[sub.Endpoint]; err != nil {
		return err
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakePush) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeMail struct {
	mu   sync.Mutex
	err  error
	sent []mailer.Message
}

func (f *fakeMail) Send(_ context.Context, m mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeMail) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// --- environment -------------------------------------------------------------

type env struct {
	t       *testing.T
	clk     *clock.Fixed
	store   *fakeStore
	repo    *memRepo
	push    *fakePush
	mail    *fakeMail
	tenant  *tenant.Tenant
	planner *Planner
	deliver *Deliverer
	pill    *PillTicker
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	e := &env{
		t:     t,
		clk:   &clock.Fixed{At: now, Loc: vet},
		store: newFakeStore(),
		push:  &fakePush{failures: map[string]error{}},
		mail:  &fakeMail{},
	}
	e.repo = newMemRepo(e.clk.Now)
	e.tenant = &tenant.Tenant{ID: uuid.New(), Slug: "clinica-sol", Name: "Clínica Sol", Active: true}
	e.store.tenants = []*tenant.Tenant{e.tenant}

	logger := zerolog.Nop()
	out := Transports{Push: e.push, Mail: e.mail}
	e.planner = NewPlanner(PlannerDeps{
		Tenants:     e.store,
		Patients:    e.store,
		Cycles:      cycleView{e.store},
		Pregnancies: pregnancyView{e.store},
		Settings:    settingsView{e.store},
		Rules:       ruleView{e.store},
		Repo:        e.repo,
		Tx:          db.NoopTransactor{},
		Clock:       e.clk,
		Logger:      logger,
	}, PlannerConfig{DefaultSendTime: "09:00", Workers: 4})
	e.deliver = NewDeliverer(e.repo, e.store, db.NoopTransactor{}, out, e.clk, nil, logger,
		DeliveryConfig{BatchSize: 50, MaxRetries: 5, Workers: 4})
	e.pill = NewPillTicker(PillDeps{
		Settings:    settingsView{e.store},
		Patients:    e.store,
		Cycles:      cycleView{e.store},
		Pregnancies: pregnancyView{e.store},
		Repo:        e.repo,
		Tx:          db.NoopTransactor{},
		Out:         out,
		Clock:       e.clk,
		Logger:      logger,
	}, 15*time.Minute)
	return e
}

func (e *env) setNow(t time.Time) { e.clk.At = t }

func (e *env) addPatient(lastPeriod time.Time) *patient.Patient {
	p := &patient.Patient{
		ID:              uuid.New(),
		TenantID:        e.tenant.ID,
		Email:           "ana@example.com",
		FullName:        "Ana Pérez",
		AvgCycleLength:  28,
		AvgPeriodLength: 5,
		Active:          true,
		CreatedAt:       time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC),
	}
	e.store.patients[p.ID] = p
	if !lastPeriod.IsZero() {
		e.store.cycles[p.ID] = &cycle.CycleLog{ID: uuid.New(), PatientID: p.ID, StartDate: lastPeriod}
	}
	return p
}

func (e *env) addSub(patientID uuid.UUID, endpoint string) *patient.PushSubscription {
	s := &patient.PushSubscription{ID: uuid.New(), PatientID: patientID, Endpoint: endpoint, P256dh: "k", Auth: "a"}
	e.store.subs[patientID] = append(e.store.subs[patientID], s)
	return s
}

func (e *env) addRule(name string, typ rule.Type, trigger string, ch rule.Channel, sendTime string) *rule.Rule {
	r := &rule.Rule{
		ID:               uuid.New(),
		TenantID:         e.tenant.ID,
		Name:             name,
		Type:             typ,
		TriggerCondition: json.RawMessage(trigger),
		Channel:          ch,
		TitleTemplate:    name,
		MessageTemplate:  "<p>Hola {patient_name}, día {cycle_day}.</p>",
		SendTime:         sendTime,
		IsActive:         true,
	}
	e.store.rules[e.tenant.ID] = append(e.store.rules[e.tenant.ID], r)
	return r
}

func (e *env) plan() PlanResult {
	e.t.Helper()
	res, err := e.planner.Run(context.Background())
	if err != nil {
		e.t.Fatalf("planner: %v", err)
	}
	return res
}

func (e *env) drain() DrainResult {
	e.t.Helper()
	res, err := e.deliver.Drain(context.Background())
	if err != nil {
		e.t.Fatalf("drain: %v", err)
	}
	return res
}

func (e *env) tick() PillResult {
	e.t.Helper()
	res, err := e.pill.Tick(context.Background())
	if err != nil {
		e.t.Fatalf("pill tick: %v", err)
	}
	return res
}
