package subject

import "time"

// Kind identifies which collection a schedulable subject belongs to.
type Kind string

const (
	KindEvent      Kind = "event"
	KindScrim      Kind = "scrim"
	KindTournament Kind = "tournament"
)

// EventStatus is the lifecycle driven by the scheduler for org events.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
)

// MatchStatus is used by result-recording flows for scrims and tournaments.
// The scheduler only reads it to find pending subjects; it never writes it.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchCompleted MatchStatus = "completed"
)

// Ref is the projection of a subject the scheduler works with.
// Kind-specific display fields stay out of scheduling logic on purpose.
type Ref struct {
	ID      string
	Kind    Kind
	StartAt time.Time
}

// Until reports the signed time remaining until the subject starts.
// Negative values mean the subject has already started.
func (r Ref) Until(now time.Time) time.Duration {
	return r.StartAt.Sub(now)
}

// Event is an organizational event (bootcamp, media day, watch party, ...).
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	StartAt     time.Time
	Status      EventStatus
}

func (e Event) Ref() Ref { return Ref{ID: e.ID, Kind: KindEvent, StartAt: e.StartAt} }

// Scrim is a practice match against another team.
type Scrim struct {
	ID       string
	Opponent string
	Format   string // e.g. "Bo3"
	StartAt  time.Time
	Status   MatchStatus
}

func (s Scrim) Ref() Ref { return Ref{ID: s.ID, Kind: KindScrim, StartAt: s.StartAt} }

// Tournament is an official competition entry.
type Tournament struct {
	ID       string
	Name     string
	Format   string
	Location string
	StartAt  time.Time
	Status   MatchStatus
}

func (t Tournament) Ref() Ref { return Ref{ID: t.ID, Kind: KindTournament, StartAt: t.StartAt} }
