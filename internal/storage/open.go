package storage

import (
	"context"
	"errors"
	"strings"

	logx "matchwatch/pkg/logx"

	"matchwatch/internal/subject"
	"matchwatch/internal/window"
)

// Store is the persistence API used by the scheduler and its collaborators.
//
// Subject rows are owned by the org dashboard's CRUD flows; the scheduler
// only lists them and writes event status. The notification ledger is owned
// by the scheduler and is append-only.
type Store interface {
	CreateEvent(ctx context.Context, e subject.Event) error
	CreateScrim(ctx context.Context, s subject.Scrim) error
	CreateTournament(ctx context.Context, t subject.Tournament) error

	// ActiveEvents lists events with status upcoming or ongoing.
	ActiveEvents(ctx context.Context) ([]subject.Event, error)
	// PendingScrims lists scrims that have no recorded result yet.
	PendingScrims(ctx context.Context) ([]subject.Scrim, error)
	PendingTournaments(ctx context.Context) ([]subject.Tournament, error)

	SetEventStatus(ctx context.Context, id string, status subject.EventStatus) error

	// DeleteSubject removes a subject and cascades to its ledger records.
	DeleteSubject(ctx context.Context, id string) error

	// RecordNotification appends a ledger record. It reports false when a
	// record for (SubjectID, WindowTag) already exists; the existing record
	// is never touched.
	RecordNotification(ctx context.Context, r Record) (bool, error)
	HasWindowRecord(ctx context.Context, subjectID string, tag window.Tag) (bool, error)
	HasAnyRecord(ctx context.Context, subjectID string) (bool, error)
	Notifications(ctx context.Context, subjectID string) ([]Record, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
