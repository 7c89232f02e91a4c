package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"matchwatch/internal/composer"
	"matchwatch/internal/delivery"
	"matchwatch/internal/storage"
	"matchwatch/internal/subject"
	"matchwatch/internal/window"
	logx "matchwatch/pkg/logx"
)

// Deps are the collaborators injected at construction. None of them are
// optional except Sink (nil sink means compose-and-drop, useful in dry runs).
type Deps struct {
	Source   Source
	Ledger   Ledger
	Composer *composer.Composer
	Sink     delivery.Sink
}

// Service drives the evaluation pass on a fixed interval. Ticks never
// overlap: if a pass is still running when the next fires, the next is
// skipped rather than raced against the ledger's check-then-write.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	log  logx.Logger
	deps Deps

	c       *cron.Cron
	limiter *rate.Limiter
	runCtx  context.Context
	cancel  context.CancelFunc

	ticking atomic.Bool

	// now is swappable for tests.
	now func() time.Time

	hmu     sync.Mutex
	history []TickStat
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{deps: deps, log: log, now: time.Now}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.SendRatePerSec <= 0 {
		cfg.SendRatePerSec = 3
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), cfg.SendRatePerSec)
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}

	loc := s.loadLocationLocked()
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithLocation(loc))

	spec := fmt.Sprintf("@every %s", s.cfg.TickInterval)
	if _, err := s.c.AddFunc(spec, s.runTick); err != nil {
		s.c = nil
		s.cancel()
		return err
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Duration("interval", s.cfg.TickInterval), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	// Stop() lets an in-flight tick finish; bound the wait by ctx.
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// runTick is the cron entrypoint. Non-overlapping discipline: skip if the
// previous tick is still running.
func (s *Service) runTick() {
	if !s.ticking.CompareAndSwap(false, true) {
		s.log.Warn("previous tick still running, skipping")
		s.appendHistory(TickStat{At: s.now(), Skipped: true})
		return
	}
	defer s.ticking.Store(false)

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	stat := s.Tick(ctx)
	s.appendHistory(stat)
}

// Tick runs one full evaluation pass synchronously. Exported so tests can
// drive the scheduler without real timers.
func (s *Service) Tick(ctx context.Context) TickStat {
	// Snapshot config and limiter together: Apply() may replace both from
	// another goroutine mid-pass.
	s.mu.Lock()
	cfg := s.cfg
	limiter := s.limiter
	s.mu.Unlock()

	now := s.now()
	stat := TickStat{At: now}

	events, err := s.deps.Source.ActiveEvents(ctx)
	if err != nil {
		s.log.Error("listing events failed", logx.Err(err))
		stat.Errors++
	}
	for _, ev := range events {
		s.evaluateOne(ctx, cfg, limiter, now, ev.Ref(), ev.Status, eventPrompt(ev), &stat)
	}

	scrims, err := s.deps.Source.PendingScrims(ctx)
	if err != nil {
		s.log.Error("listing scrims failed", logx.Err(err))
		stat.Errors++
	}
	for _, sc := range scrims {
		s.evaluateOne(ctx, cfg, limiter, now, sc.Ref(), "", scrimPrompt(sc), &stat)
	}

	tournaments, err := s.deps.Source.PendingTournaments(ctx)
	if err != nil {
		s.log.Error("listing tournaments failed", logx.Err(err))
		stat.Errors++
	}
	for _, tn := range tournaments {
		s.evaluateOne(ctx, cfg, limiter, now, tn.Ref(), "", tournamentPrompt(tn), &stat)
	}

	stat.Took = time.Since(now)
	if stat.Sends > 0 || stat.Transitions > 0 || stat.Errors > 0 {
		s.log.Info("tick done",
			logx.Int("subjects", stat.Subjects), logx.Int("sends", stat.Sends),
			logx.Int("transitions", stat.Transitions), logx.Int("errors", stat.Errors),
			logx.Duration("took", stat.Took))
	} else {
		s.log.Debug("tick done (quiet)",
			logx.Int("subjects", stat.Subjects), logx.Duration("took", stat.Took))
	}
	return stat
}

// evaluateOne processes a single subject. All failures, panics included,
// stay inside this boundary; one malformed subject must never halt the
// pass for the others.
func (s *Service) evaluateOne(ctx context.Context, cfg Config, limiter *rate.Limiter, now time.Time, ref subject.Ref, status subject.EventStatus, prompt composer.Prompt, stat *TickStat) {
	stat.Subjects++
	defer func() {
		if r := recover(); r != nil {
			stat.Errors++
			s.log.Error("panic evaluating subject",
				logx.String("subject", ref.ID), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	until := ref.Until(now)

	hasPrior, err := s.deps.Ledger.HasAnyRecord(ctx, ref.ID)
	if err != nil {
		stat.Errors++
		s.log.Error("ledger lookup failed", logx.String("subject", ref.ID), logx.Err(err))
		return
	}

	for _, a := range decide(ref.Kind, status, until, hasPrior) {
		switch a.Kind {
		case ActionSend:
			if s.sendOnce(ctx, cfg, limiter, ref, a.Tag, until, prompt, stat) {
				stat.Sends++
			}
		case ActionTransition:
			if err := s.deps.Source.SetEventStatus(ctx, ref.ID, a.NewStatus); err != nil {
				stat.Errors++
				s.log.Error("status transition failed",
					logx.String("subject", ref.ID), logx.String("to", string(a.NewStatus)), logx.Err(err))
				continue
			}
			stat.Transitions++
			s.log.Info("event status transition",
				logx.String("subject", ref.ID), logx.String("to", string(a.NewStatus)))
		}
	}
}

// sendOnce performs the ledger-gated notification for one (subject, window)
// pair. The ledger record is written before the send: after a crash the
// next tick sees the record and stays silent, trading a possibly-lost
// delivery for never double-sending.
func (s *Service) sendOnce(ctx context.Context, cfg Config, limiter *rate.Limiter, ref subject.Ref, tag window.Tag, until time.Duration, prompt composer.Prompt, stat *TickStat) bool {
	exists, err := s.deps.Ledger.HasWindowRecord(ctx, ref.ID, tag)
	if err != nil {
		stat.Errors++
		s.log.Error("window record lookup failed",
			logx.String("subject", ref.ID), logx.String("window", string(tag)), logx.Err(err))
		return false
	}
	if exists {
		return false
	}

	// Countdown is recomputed now, at send time, not when the window was
	// first entered.
	prompt.Countdown = window.Countdown(tag, until)

	inserted, err := s.deps.Ledger.RecordNotification(ctx, storage.Record{
		SubjectID:   ref.ID,
		SubjectKind: ref.Kind,
		WindowTag:   tag,
		SentAt:      s.now(),
	})
	if err != nil {
		stat.Errors++
		s.log.Error("ledger write failed, holding notification for next tick",
			logx.String("subject", ref.ID), logx.String("window", string(tag)), logx.Err(err))
		return false
	}
	if !inserted {
		// Lost a race against another writer; the record exists, stay silent.
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	text := s.deps.Composer.Compose(sendCtx, prompt, tag)

	if s.deps.Sink == nil {
		s.log.Debug("no sink configured, dropping composed message",
			logx.String("subject", ref.ID), logx.String("window", string(tag)))
		return true
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			s.log.Warn("send rate wait aborted", logx.String("subject", ref.ID), logx.Err(err))
			return true
		}
	}

	msg := delivery.Message{Text: text, Channel: cfg.Channels.forKind(ref.Kind)}
	if err := s.deps.Sink.Send(sendCtx, msg); err != nil {
		// Delivery failures are logged, never retried: the ledger record
		// already marks this window as handled.
		stat.Errors++
		s.log.Error("delivery failed",
			logx.String("subject", ref.ID), logx.String("window", string(tag)),
			logx.String("channel", msg.Channel), logx.Err(err))
		return true
	}

	s.log.Info("notification sent",
		logx.String("subject", ref.ID), logx.String("kind", string(ref.Kind)),
		logx.String("window", string(tag)), logx.String("countdown", prompt.Countdown))
	return true
}

func (s *Service) appendHistory(st TickStat) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, st)
	if size > 0 && len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

// History returns a copy of recent tick outcomes.
func (s *Service) History() []TickStat {
	s.hmu.Lock()
	out := append([]TickStat(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func eventPrompt(e subject.Event) composer.Prompt {
	return composer.Prompt{Kind: subject.KindEvent, Title: e.Title, Detail: e.Description, Location: e.Location}
}

func scrimPrompt(sc subject.Scrim) composer.Prompt {
	return composer.Prompt{Kind: subject.KindScrim, Title: sc.Opponent, Detail: sc.Format}
}

func tournamentPrompt(tn subject.Tournament) composer.Prompt {
	return composer.Prompt{Kind: subject.KindTournament, Title: tn.Name, Detail: tn.Format, Location: tn.Location}
}
