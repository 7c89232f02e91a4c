package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"matchwatch/internal/subject"
	"matchwatch/internal/window"
	logx "matchwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Subjects ----

func (s *sqliteStore) CreateEvent(ctx context.Context, e subject.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = subject.EventUpcoming
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, title, description, location, start_at, status) VALUES(?,?,?,?,?,?)`,
		e.ID, e.Title, e.Description, e.Location, e.StartAt.UnixMilli(), string(e.Status),
	)
	return errors.Wrap(err, "create event")
}

func (s *sqliteStore) CreateScrim(ctx context.Context, sc subject.Scrim) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.Status == "" {
		sc.Status = subject.MatchPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrims(id, opponent, format, start_at, status) VALUES(?,?,?,?,?)`,
		sc.ID, sc.Opponent, sc.Format, sc.StartAt.UnixMilli(), string(sc.Status),
	)
	return errors.Wrap(err, "create scrim")
}

func (s *sqliteStore) CreateTournament(ctx context.Context, t subject.Tournament) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = subject.MatchPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tournaments(id, name, format, location, start_at, status) VALUES(?,?,?,?,?,?)`,
		t.ID, t.Name, t.Format, t.Location, t.StartAt.UnixMilli(), string(t.Status),
	)
	return errors.Wrap(err, "create tournament")
}

func (s *sqliteStore) ActiveEvents(ctx context.Context) ([]subject.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, location, start_at, status
		 FROM events WHERE status IN (?, ?) ORDER BY start_at`,
		string(subject.EventUpcoming), string(subject.EventOngoing),
	)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	defer rows.Close()

	var out []subject.Event
	for rows.Next() {
		var e subject.Event
		var startMS int64
		var status string
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &startMS, &status); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.StartAt = time.UnixMilli(startMS)
		e.Status = subject.EventStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PendingScrims(ctx context.Context) ([]subject.Scrim, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, opponent, format, start_at, status FROM scrims WHERE status = ? ORDER BY start_at`,
		string(subject.MatchPending),
	)
	if err != nil {
		return nil, errors.Wrap(err, "list scrims")
	}
	defer rows.Close()

	var out []subject.Scrim
	for rows.Next() {
		var sc subject.Scrim
		var startMS int64
		var status string
		if err := rows.Scan(&sc.ID, &sc.Opponent, &sc.Format, &startMS, &status); err != nil {
			return nil, errors.Wrap(err, "scan scrim")
		}
		sc.StartAt = time.UnixMilli(startMS)
		sc.Status = subject.MatchStatus(status)
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PendingTournaments(ctx context.Context) ([]subject.Tournament, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, format, location, start_at, status FROM tournaments WHERE status = ? ORDER BY start_at`,
		string(subject.MatchPending),
	)
	if err != nil {
		return nil, errors.Wrap(err, "list tournaments")
	}
	defer rows.Close()

	var out []subject.Tournament
	for rows.Next() {
		var t subject.Tournament
		var startMS int64
		var status string
		if err := rows.Scan(&t.ID, &t.Name, &t.Format, &t.Location, &startMS, &status); err != nil {
			return nil, errors.Wrap(err, "scan tournament")
		}
		t.StartAt = time.UnixMilli(startMS)
		t.Status = subject.MatchStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetEventStatus(ctx context.Context, id string, status subject.EventStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE events SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return errors.Wrap(err, "set event status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubject removes a subject row from whichever table holds it and
// cascades to the notification ledger in the same transaction.
func (s *sqliteStore) DeleteSubject(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	deleted := int64(0)
	for _, table := range []string{"events", "scrims", "tournaments"} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
		if err != nil {
			return errors.Wrapf(err, "delete from %s", table)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if deleted == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE subject_id = ?`, id); err != nil {
		return errors.Wrap(err, "delete ledger records")
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// ---- Notification ledger ----

func (s *sqliteStore) RecordNotification(ctx context.Context, r Record) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SentAt.IsZero() {
		r.SentAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(id, subject_id, subject_kind, window_tag, sent_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(subject_id, window_tag) DO NOTHING`,
		r.ID, r.SubjectID, string(r.SubjectKind), string(r.WindowTag), r.SentAt.UnixMilli(),
	)
	if err != nil {
		return false, errors.Wrap(err, "record notification")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) HasWindowRecord(ctx context.Context, subjectID string, tag window.Tag) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notifications WHERE subject_id = ? AND window_tag = ?`,
		subjectID, string(tag),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "window record lookup")
	}
	return true, nil
}

func (s *sqliteStore) HasAnyRecord(ctx context.Context, subjectID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notifications WHERE subject_id = ? LIMIT 1`, subjectID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "any record lookup")
	}
	return true, nil
}

func (s *sqliteStore) Notifications(ctx context.Context, subjectID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, subject_kind, window_tag, sent_at
		 FROM notifications WHERE subject_id = ? ORDER BY sent_at`,
		subjectID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var kind, tag string
		var sentMS int64
		if err := rows.Scan(&r.ID, &r.SubjectID, &kind, &tag, &sentMS); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		r.SubjectKind = subject.Kind(kind)
		r.WindowTag = window.Tag(tag)
		r.SentAt = time.UnixMilli(sentMS)
		out = append(out, r)
	}
	return out, rows.Err()
}
