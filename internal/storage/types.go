package storage

import (
	"errors"
	"time"

	"matchwatch/internal/subject"
	"matchwatch/internal/window"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (the only durable backend)
//
// If Driver is empty or "none", storage is disabled and Open returns nil.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Record is one notification attempt. The record is written before the
// send, so a crash between write and send can at worst lose one delivery,
// never duplicate it; the unique (subject_id, window_tag) index makes the
// write itself idempotent.
type Record struct {
	ID          string
	SubjectID   string
	SubjectKind subject.Kind
	WindowTag   window.Tag
	SentAt      time.Time
}
