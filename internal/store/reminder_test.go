package store

import (
	"testing"
	"time"

	"github.com/cmertens/jubilee/internal/database"
)

func setupReminderTestDB(t *testing.T) *ReminderStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReminderStore(db)
}

func TestUpsertReplacesExisting(t *testing.T) {
	s := setupReminderTestDB(t)

	first := time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)
	second := time.Date(2026, time.June, 15, 9, 0, 0, 0, time.UTC)

	if err := s.Upsert("a", "Ana", first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.Upsert("a", "Ana", second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	reminders, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reminders) != 1 {
		t.Fatalf("got %d reminders, want 1", len(reminders))
	}
	if !reminders[0].NextFireAt.Equal(second) {
		t.Errorf("next_fire_at = %v, want %v", reminders[0].NextFireAt, second)
	}
}

func TestListDueBoundary(t *testing.T) {
	s := setupReminderTestDB(t)

	now := time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)
	if err := s.Upsert("due", "Ana", now); err != nil {
		t.Fatalf("upsert due: %v", err)
	}
	if err := s.Upsert("future", "Ben", now.Add(time.Minute)); err != nil {
		t.Fatalf("upsert future: %v", err)
	}

	due, err := s.ListDue(now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("got %d due reminders, want 1", len(due))
	}
	if due[0].BirthdayID != "due" {
		t.Errorf("due reminder = %q, want %q", due[0].BirthdayID, "due")
	}
}

func TestReschedule(t *testing.T) {
	s := setupReminderTestDB(t)

	fired := time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)
	next := time.Date(2026, time.June, 15, 9, 0, 0, 0, time.UTC)

	if err := s.Upsert("a", "Ana", fired); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Reschedule("a", next); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	due, err := s.ListDue(fired)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("rescheduled reminder still due: %+v", due)
	}
}

func TestDeleteCancelsReminder(t *testing.T) {
	s := setupReminderTestDB(t)

	at := time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)
	if err := s.Upsert("a", "Ana", at); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	reminders, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reminders) != 0 {
		t.Errorf("got %d reminders after delete, want 0", len(reminders))
	}
}
