package scheduler

import (
	"context"
	"time"

	"matchwatch/internal/storage"
	"matchwatch/internal/subject"
	"matchwatch/internal/window"
)

// Source lists the subjects a tick has to look at and accepts the status
// writes the tick decides on. storage.Store satisfies it.
type Source interface {
	ActiveEvents(ctx context.Context) ([]subject.Event, error)
	PendingScrims(ctx context.Context) ([]subject.Scrim, error)
	PendingTournaments(ctx context.Context) ([]subject.Tournament, error)
	SetEventStatus(ctx context.Context, id string, status subject.EventStatus) error
}

// Ledger is the idempotency record for sent notifications. storage.Store
// satisfies it.
type Ledger interface {
	HasWindowRecord(ctx context.Context, subjectID string, tag window.Tag) (bool, error)
	HasAnyRecord(ctx context.Context, subjectID string) (bool, error)
	RecordNotification(ctx context.Context, r storage.Record) (bool, error)
}

// Channels maps each subject kind to the logical delivery channel its
// notifications go to.
type Channels struct {
	Events      string
	Scrims      string
	Tournaments string
}

func (c Channels) forKind(kind subject.Kind) string {
	switch kind {
	case subject.KindScrim:
		return c.Scrims
	case subject.KindTournament:
		return c.Tournaments
	default:
		return c.Events
	}
}

type Config struct {
	Enabled bool
	// TickInterval is how often the evaluation pass runs. Default 1m.
	TickInterval time.Duration
	// Timezone for the cron driver. IANA name; empty means local.
	Timezone string
	// SendTimeout bounds each external call (generation, delivery).
	SendTimeout time.Duration
	// SendRatePerSec throttles outbound sends across all subjects.
	SendRatePerSec int
	HistorySize    int
	Channels       Channels
}

// ActionKind discriminates what the evaluator decided for one subject.
type ActionKind int

const (
	ActionSend ActionKind = iota + 1
	ActionTransition
)

// Action is one decided effect. A single evaluation may yield both a send
// and a status transition; they are independent.
type Action struct {
	Kind      ActionKind
	Tag       window.Tag          // ActionSend only
	NewStatus subject.EventStatus // ActionTransition only
}

// TickStat summarizes one evaluation pass for operational introspection.
type TickStat struct {
	At          time.Time
	Took        time.Duration
	Subjects    int
	Sends       int
	Transitions int
	Errors      int
	Skipped     bool
}
