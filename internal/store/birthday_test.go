package store

import (
	"testing"
	"time"

	"github.com/cmertens/jubilee/internal/database"
	"github.com/cmertens/jubilee/internal/model"
)

func setupTestDB(t *testing.T) *BirthdayStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBirthdayStore(db)
}

func testBirthday(id, name string) model.Birthday {
	return model.Birthday{
		ID:               id,
		Name:             name,
		Date:             time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC),
		NotificationTime: time.Date(2000, time.January, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestLoadEmpty(t *testing.T) {
	s := setupTestDB(t)

	records, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty collection, got %d records", len(records))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := setupTestDB(t)

	want := []model.Birthday{testBirthday("a", "Ana"), testBirthday("b", "Ben")}
	if err := s.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Name != want[i].Name {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
		if !got[i].Date.Equal(want[i].Date) {
			t.Errorf("record %d date = %v, want %v", i, got[i].Date, want[i].Date)
		}
		if !got[i].NotificationTime.Equal(want[i].NotificationTime) {
			t.Errorf("record %d notification time = %v, want %v", i, got[i].NotificationTime, want[i].NotificationTime)
		}
	}
}

func TestSaveReplacesWholeCollection(t *testing.T) {
	s := setupTestDB(t)

	if err := s.Save([]model.Birthday{testBirthday("a", "Ana")}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.Save([]model.Birthday{testBirthday("b", "Ben")}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("got %+v, want just record b", got)
	}
}

func TestAddThenRemoveRestoresPriorState(t *testing.T) {
	s := setupTestDB(t)

	if err := s.Add(testBirthday("a", "Ana")); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.Add(testBirthday("b", "Ben")); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := s.Remove("b"); err != nil {
		t.Fatalf("remove b: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("got %+v, want just record a", got)
	}
}

func TestRemovePreservesOrder(t *testing.T) {
	s := setupTestDB(t)

	for _, r := range []model.Birthday{testBirthday("a", "Ana"), testBirthday("b", "Ben"), testBirthday("c", "Cleo")} {
		if err := s.Add(r); err != nil {
			t.Fatalf("add %s: %v", r.ID, err)
		}
	}
	if err := s.Remove("b"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("order after remove = %+v, want [a c]", got)
	}
}

func TestLoadMalformedBlobFailsWhole(t *testing.T) {
	s := setupTestDB(t)

	if _, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)`, birthdaysKey, "{not json"); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}

	if _, err := s.Load(); err == nil {
		t.Fatal("expected error for malformed stored data")
	}
}

func TestAddAfterCorruptionStartsFresh(t *testing.T) {
	s := setupTestDB(t)

	if _, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)`, birthdaysKey, "{not json"); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}

	// A failed load is treated as no data yet.
	if err := s.Add(testBirthday("a", "Ana")); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("got %+v, want just record a", got)
	}
}
