package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"matchwatch/internal/composer"
	"matchwatch/internal/delivery"
	"matchwatch/internal/storage"
	"matchwatch/internal/subject"
	"matchwatch/internal/window"
	logx "matchwatch/pkg/logx"
)

// ---- fakes ----

type fakeSource struct {
	mu          sync.Mutex
	events      []subject.Event
	scrims      []subject.Scrim
	tournaments []subject.Tournament
	statusErr   error
}

func (f *fakeSource) ActiveEvents(ctx context.Context) ([]subject.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []subject.Event
	for _, e := range f.events {
		if e.Status == subject.EventUpcoming || e.Status == subject.EventOngoing {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) PendingScrims(ctx context.Context) ([]subject.Scrim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]subject.Scrim(nil), f.scrims...), nil
}

func (f *fakeSource) PendingTournaments(ctx context.Context) ([]subject.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]subject.Tournament(nil), f.tournaments...), nil
}

func (f *fakeSource) SetEventStatus(ctx context.Context, id string, status subject.EventStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].ID == id {
			f.events[i].Status = status
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeSource) eventStatus(id string) subject.EventStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			return e.Status
		}
	}
	return ""
}

type fakeLedger struct {
	mu        sync.Mutex
	recs      map[string]map[window.Tag]storage.Record
	insertErr error
	panicOn   string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{recs: map[string]map[window.Tag]storage.Record{}}
}

func (f *fakeLedger) HasWindowRecord(ctx context.Context, subjectID string, tag window.Tag) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.recs[subjectID][tag]
	return ok, nil
}

func (f *fakeLedger) HasAnyRecord(ctx context.Context, subjectID string) (bool, error) {
	if f.panicOn != "" && subjectID == f.panicOn {
		panic("ledger corrupted for " + subjectID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs[subjectID]) > 0, nil
}

func (f *fakeLedger) RecordNotification(ctx context.Context, r storage.Record) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recs[r.SubjectID][r.WindowTag]; ok {
		return false, nil
	}
	if f.recs[r.SubjectID] == nil {
		f.recs[r.SubjectID] = map[window.Tag]storage.Record{}
	}
	f.recs[r.SubjectID][r.WindowTag] = r
	return true, nil
}

func (f *fakeLedger) tags(subjectID string) []window.Tag {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []window.Tag
	for tag := range f.recs[subjectID] {
		out = append(out, tag)
	}
	return out
}

func (f *fakeLedger) seed(subjectID string, kind subject.Kind, tag window.Tag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recs[subjectID] == nil {
		f.recs[subjectID] = map[window.Tag]storage.Record{}
	}
	f.recs[subjectID][tag] = storage.Record{SubjectID: subjectID, SubjectKind: kind, WindowTag: tag}
}

type fakeSink struct {
	mu    sync.Mutex
	sends []delivery.Message
	err   error
}

func (f *fakeSink) Send(ctx context.Context, m delivery.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, m)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeSink) last() delivery.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		return delivery.Message{}
	}
	return f.sends[len(f.sends)-1]
}

type errGen struct{}

func (errGen) Generate(ctx context.Context, p composer.Prompt) (string, error) {
	return "", errors.New("generation always fails")
}

// ---- harness ----

type harness struct {
	svc    *Service
	src    *fakeSource
	ledger *fakeLedger
	sink   *fakeSink
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		src:    &fakeSource{},
		ledger: newFakeLedger(),
		sink:   &fakeSink{},
		now:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = New(Config{
		Enabled:  true,
		Channels: Channels{Events: "events", Scrims: "scrims", Tournaments: "tournaments"},
	}, Deps{
		Source:   h.src,
		Ledger:   h.ledger,
		Composer: composer.New(errGen{}, 50*time.Millisecond, logx.Nop()),
		Sink:     h.sink,
	}, logx.Nop())
	h.svc.now = func() time.Time { return h.now }
	return h
}

func (h *harness) tick() TickStat {
	return h.svc.Tick(context.Background())
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// ---- tests ----

func TestIdempotencyAcrossTicks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.events = []subject.Event{{
		ID: "ev-1", Title: "Media day", StartAt: h.now.Add(50 * time.Minute), Status: subject.EventUpcoming,
	}}

	for i := 0; i < 5; i++ {
		h.tick()
		h.advance(time.Minute)
	}

	if got := h.sink.count(); got != 1 {
		t.Fatalf("sends = %d, want exactly 1", got)
	}
	tags := h.ledger.tags("ev-1")
	if len(tags) != 1 || tags[0] != window.TagOneHour {
		t.Fatalf("ledger tags = %v, want [within-1-hour]", tags)
	}
}

func TestFallbackGuaranteeDeliversEveryWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.events = []subject.Event{{ID: "ev-1", Title: "Bootcamp", StartAt: h.now.Add(30 * time.Minute), Status: subject.EventUpcoming}}
	h.src.scrims = []subject.Scrim{{ID: "sc-1", Opponent: "Night Owls", StartAt: h.now.Add(9 * time.Minute), Status: subject.MatchPending}}

	stat := h.tick()
	if stat.Sends != 2 {
		t.Fatalf("sends = %d, want 2 despite failing generator", stat.Sends)
	}
	if h.sink.count() != 2 {
		t.Fatalf("delivered = %d, want 2", h.sink.count())
	}
	// Fallback template carries the exact countdown.
	found := false
	for _, m := range h.sink.sends {
		if strings.Contains(m.Text, "10 Minutes") && strings.Contains(m.Text, "Night Owls") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no fallback scrim message with countdown, got %+v", h.sink.sends)
	}
}

func TestMidWindowFiresOnceOnFirstObservation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.events = []subject.Event{{ID: "ev-1", Title: "Watch party", StartAt: h.now.Add(5 * time.Hour), Status: subject.EventUpcoming}}

	h.tick()
	// 5h lands in the spike window, not the mid-band; move inside the band.
	tags := h.ledger.tags("ev-1")
	if len(tags) != 1 || tags[0] != window.TagFiveHours {
		t.Fatalf("tags after first tick = %v", tags)
	}

	h2 := newHarness(t)
	h2.src.events = []subject.Event{{ID: "ev-2", Title: "Watch party", StartAt: h2.now.Add(12 * time.Hour), Status: subject.EventUpcoming}}
	h2.tick()
	tags = h2.ledger.tags("ev-2")
	if len(tags) != 1 || tags[0] != window.TagMidWindow {
		t.Fatalf("tags = %v, want [discovered-mid-window]", tags)
	}
	// Later ticks in the same band stay silent.
	for i := 0; i < 3; i++ {
		h2.advance(30 * time.Minute)
		h2.tick()
	}
	if h2.sink.count() != 1 {
		t.Fatalf("sends = %d, want 1", h2.sink.count())
	}
}

func TestHistoryAwareSilenceInMidBand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.events = []subject.Event{{ID: "ev-1", Title: "LAN prep", StartAt: h.now.Add(5*time.Hour + 30*time.Minute), Status: subject.EventUpcoming}}
	h.ledger.seed("ev-1", subject.KindEvent, window.TagThreeDays)

	stat := h.tick()
	if stat.Sends != 0 || h.sink.count() != 0 {
		t.Fatalf("subject with 3d history must stay silent in mid-band, sends=%d", stat.Sends)
	}
}

func TestWindowTransitionCatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.events = []subject.Event{{ID: "ev-1", Title: "Strategy review", StartAt: h.now.Add(70 * time.Minute), Status: subject.EventUpcoming}}

	if stat := h.tick(); stat.Sends != 0 {
		t.Fatalf("70m out is between windows, sends = %d", stat.Sends)
	}
	h.advance(20 * time.Minute) // now 50m out
	if stat := h.tick(); stat.Sends != 1 {
		t.Fatalf("50m out must fire 1h window, sends = %d", stat.Sends)
	}
	tags := h.ledger.tags("ev-1")
	if len(tags) != 1 || tags[0] != window.TagOneHour {
		t.Fatalf("tags = %v", tags)
	}
}

func TestStatusLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.events = []subject.Event{
		{ID: "ev-started", Title: "a", StartAt: h.now.Add(-time.Minute), Status: subject.EventUpcoming},
		{ID: "ev-over", Title: "b", StartAt: h.now.Add(-8 * time.Hour), Status: subject.EventOngoing},
	}

	stat := h.tick()
	if stat.Transitions != 2 {
		t.Fatalf("transitions = %d, want 2", stat.Transitions)
	}
	if got := h.src.eventStatus("ev-started"); got != subject.EventOngoing {
		t.Fatalf("ev-started status = %q, want ongoing", got)
	}
	if got := h.src.eventStatus("ev-over"); got != subject.EventCompleted {
		t.Fatalf("ev-over status = %q, want completed", got)
	}
	if stat.Sends != 0 {
		t.Fatalf("started subjects must not notify, sends = %d", stat.Sends)
	}
}

func TestEventThreeDayScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.events = []subject.Event{{ID: "ev-1", Title: "Roster reveal", StartAt: h.now.Add(71*time.Hour + 30*time.Minute), Status: subject.EventUpcoming}}

	h.tick()
	tags := h.ledger.tags("ev-1")
	if len(tags) != 1 || tags[0] != window.TagThreeDays {
		t.Fatalf("tags = %v, want [within-3-days]", tags)
	}
	// Stay in the band for a few more ticks; no other tag may ever appear.
	for i := 0; i < 4; i++ {
		h.advance(5 * time.Minute)
		h.tick()
	}
	tags = h.ledger.tags("ev-1")
	if len(tags) != 1 {
		t.Fatalf("extra tags recorded: %v", tags)
	}
}

func TestScrimTenMinuteScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.scrims = []subject.Scrim{{ID: "sc-1", Opponent: "Team Vortex", StartAt: h.now.Add(9 * time.Minute), Status: subject.MatchPending}}

	h.tick()
	tags := h.ledger.tags("sc-1")
	if len(tags) != 1 || tags[0] != window.TagTenMinutes {
		t.Fatalf("tags = %v, want [within-10-minutes]", tags)
	}
	if !strings.Contains(h.sink.last().Text, "10 Minutes") {
		t.Fatalf("countdown text missing: %q", h.sink.last().Text)
	}
	if h.sink.last().Channel != "scrims" {
		t.Fatalf("channel = %q, want scrims", h.sink.last().Channel)
	}
	// Ride down to start; the 30m tier is behind us and must never fire.
	for i := 0; i < 9; i++ {
		h.advance(time.Minute)
		h.tick()
	}
	for _, tag := range h.ledger.tags("sc-1") {
		if tag == window.TagThirtyMinutes {
			t.Fatal("30m window fired after 10m window")
		}
	}
	if h.sink.count() != 1 {
		t.Fatalf("sends = %d, want 1", h.sink.count())
	}
}

func TestDeliveryFailureStillRecords(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.sink.err = errors.New("webhook gone")
	h.src.events = []subject.Event{{ID: "ev-1", Title: "Scrim block", StartAt: h.now.Add(40 * time.Minute), Status: subject.EventUpcoming}}

	stat := h.tick()
	if stat.Errors == 0 {
		t.Fatal("delivery failure must be counted")
	}
	if len(h.ledger.tags("ev-1")) != 1 {
		t.Fatal("ledger record must be written even when delivery fails")
	}

	// Next tick must not retry: at-most-once wins over at-least-once.
	h.sink.err = nil
	h.advance(time.Minute)
	if stat := h.tick(); stat.Sends != 0 {
		t.Fatalf("retried a delivered window, sends = %d", stat.Sends)
	}
}

func TestLedgerWriteFailureHoldsNotification(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.insertErr = errors.New("disk full")
	h.src.events = []subject.Event{{ID: "ev-1", Title: "Fan meetup", StartAt: h.now.Add(30 * time.Minute), Status: subject.EventUpcoming}}

	if stat := h.tick(); stat.Sends != 0 || h.sink.count() != 0 {
		t.Fatal("must not send when the ledger write fails")
	}

	h.ledger.insertErr = nil
	h.advance(time.Minute)
	if stat := h.tick(); stat.Sends != 1 {
		t.Fatalf("recovered tick sends = %d, want 1", stat.Sends)
	}
}

func TestPanicInOneSubjectDoesNotHaltTick(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.ledger.panicOn = "ev-bad"
	h.src.events = []subject.Event{
		{ID: "ev-bad", Title: "corrupt", StartAt: h.now.Add(30 * time.Minute), Status: subject.EventUpcoming},
		{ID: "ev-good", Title: "fine", StartAt: h.now.Add(30 * time.Minute), Status: subject.EventUpcoming},
	}

	stat := h.tick()
	if stat.Errors == 0 {
		t.Fatal("panic must be recorded as an error")
	}
	if len(h.ledger.tags("ev-good")) != 1 {
		t.Fatal("healthy subject must still be evaluated")
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.svc.runCtx = context.Background()

	h.svc.ticking.Store(true)
	h.svc.runTick()
	h.svc.ticking.Store(false)

	hist := h.svc.History()
	if len(hist) != 1 || !hist[0].Skipped {
		t.Fatalf("history = %+v, want one skipped tick", hist)
	}
}

func TestApplyDuringTick(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.events = []subject.Event{{
		ID: "ev-1", Title: "Media day", StartAt: h.now.Add(30 * time.Minute), Status: subject.EventUpcoming,
	}}

	// Reconfigure continuously while passes run; the race detector must stay
	// quiet and idempotency must hold under the churn.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			h.svc.Apply(Config{
				Enabled:        true,
				SendRatePerSec: i%5 + 1,
				Channels:       Channels{Events: "events", Scrims: "scrims", Tournaments: "tournaments"},
			})
		}
	}()

	for i := 0; i < 50; i++ {
		h.tick()
	}
	close(stop)
	wg.Wait()

	if got := h.sink.count(); got != 1 {
		t.Fatalf("sends = %d, want exactly 1 despite concurrent reconfiguration", got)
	}
}

func TestDecideSendAndTransitionIndependent(t *testing.T) {
	t.Parallel()
	// A subject cannot need both at once (sends require t > 0), but the
	// evaluator must not suppress one because of the other.
	acts := decide(subject.KindEvent, subject.EventUpcoming, 30*time.Minute, false)
	if len(acts) != 1 || acts[0].Kind != ActionSend {
		t.Fatalf("acts = %+v", acts)
	}
	acts = decide(subject.KindEvent, subject.EventUpcoming, -time.Minute, true)
	if len(acts) != 1 || acts[0].Kind != ActionTransition || acts[0].NewStatus != subject.EventOngoing {
		t.Fatalf("acts = %+v", acts)
	}
	if acts := decide(subject.KindScrim, "", -time.Hour, false); len(acts) != 0 {
		t.Fatalf("scrims have no status transitions, acts = %+v", acts)
	}
}
