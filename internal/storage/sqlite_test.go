package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"matchwatch/internal/subject"
	"matchwatch/internal/window"
	logx "matchwatch/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "matchwatch.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(none) = (%v, %v), want (nil, nil)", st, err)
	}
	if _, err := Open(Config{Driver: "bolt"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLedgerIdempotency(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	rec := Record{SubjectID: "ev-1", SubjectKind: subject.KindEvent, WindowTag: window.TagOneHour}
	ins, err := st.RecordNotification(ctx, rec)
	if err != nil || !ins {
		t.Fatalf("first insert = (%v, %v), want (true, nil)", ins, err)
	}
	ins, err = st.RecordNotification(ctx, rec)
	if err != nil {
		t.Fatalf("duplicate insert error: %v", err)
	}
	if ins {
		t.Fatal("duplicate (subject, window) must not insert")
	}

	ok, err := st.HasWindowRecord(ctx, "ev-1", window.TagOneHour)
	if err != nil || !ok {
		t.Fatalf("HasWindowRecord = (%v, %v)", ok, err)
	}
	ok, err = st.HasWindowRecord(ctx, "ev-1", window.TagOneDay)
	if err != nil || ok {
		t.Fatalf("HasWindowRecord(other tag) = (%v, %v), want false", ok, err)
	}
	ok, err = st.HasAnyRecord(ctx, "ev-1")
	if err != nil || !ok {
		t.Fatalf("HasAnyRecord = (%v, %v)", ok, err)
	}

	recs, err := st.Notifications(ctx, "ev-1")
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(recs))
	}
}

func TestSubjectsRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	start := time.Now().Add(2 * time.Hour).Truncate(time.Millisecond)

	if err := st.CreateEvent(ctx, subject.Event{ID: "ev-1", Title: "Bootcamp kickoff", Location: "Berlin", StartAt: start}); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if err := st.CreateScrim(ctx, subject.Scrim{ID: "sc-1", Opponent: "Night Owls", Format: "Bo3", StartAt: start}); err != nil {
		t.Fatalf("create scrim: %v", err)
	}
	if err := st.CreateTournament(ctx, subject.Tournament{ID: "tn-1", Name: "Summer Clash", StartAt: start}); err != nil {
		t.Fatalf("create tournament: %v", err)
	}

	evs, err := st.ActiveEvents(ctx)
	if err != nil || len(evs) != 1 {
		t.Fatalf("ActiveEvents = (%v, %v)", evs, err)
	}
	if evs[0].Status != subject.EventUpcoming {
		t.Fatalf("default status = %q, want upcoming", evs[0].Status)
	}
	if !evs[0].StartAt.Equal(start) {
		t.Fatalf("start round trip: got %v, want %v", evs[0].StartAt, start)
	}

	if err := st.SetEventStatus(ctx, "ev-1", subject.EventCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}
	evs, _ = st.ActiveEvents(ctx)
	if len(evs) != 0 {
		t.Fatal("completed event must not be listed active")
	}
	if err := st.SetEventStatus(ctx, "missing", subject.EventOngoing); err != ErrNotFound {
		t.Fatalf("set status on missing id: %v, want ErrNotFound", err)
	}

	scrims, err := st.PendingScrims(ctx)
	if err != nil || len(scrims) != 1 || scrims[0].Opponent != "Night Owls" {
		t.Fatalf("PendingScrims = (%v, %v)", scrims, err)
	}
	tns, err := st.PendingTournaments(ctx)
	if err != nil || len(tns) != 1 || tns[0].Name != "Summer Clash" {
		t.Fatalf("PendingTournaments = (%v, %v)", tns, err)
	}
}

func TestDeleteSubjectCascades(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateScrim(ctx, subject.Scrim{ID: "sc-1", Opponent: "Team Vortex", StartAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("create scrim: %v", err)
	}
	if _, err := st.RecordNotification(ctx, Record{SubjectID: "sc-1", SubjectKind: subject.KindScrim, WindowTag: window.TagThirtyMinutes}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := st.DeleteSubject(ctx, "sc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err := st.HasAnyRecord(ctx, "sc-1")
	if err != nil || ok {
		t.Fatalf("ledger not cascaded: (%v, %v)", ok, err)
	}
	if err := st.DeleteSubject(ctx, "sc-1"); err != ErrNotFound {
		t.Fatalf("second delete: %v, want ErrNotFound", err)
	}
}
