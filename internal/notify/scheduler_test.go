package notify

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cmertens/jubilee/internal/database"
	"github.com/cmertens/jubilee/internal/metrics"
	"github.com/cmertens/jubilee/internal/model"
	"github.com/cmertens/jubilee/internal/store"
)

type fakeSender struct {
	sent []Payload
	err  error
}

func (f *fakeSender) Send(_ context.Context, _ *model.PushSubscription, payload Payload) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, payload)
	return nil
}

func setupScheduler(t *testing.T) (*Scheduler, *fakeSender, *store.BirthdayStore, *store.ReminderStore, *store.PushStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	birthdays := store.NewBirthdayStore(db)
	reminders := store.NewReminderStore(db)
	subs := store.NewPushStore(db)

	s := NewScheduler(nil, birthdays, reminders, subs, metrics.NewWith(prometheus.NewRegistry()), slog.Default())
	fake := &fakeSender{}
	s.service = fake
	return s, fake, birthdays, reminders, subs
}

func TestTickFiresDueReminder(t *testing.T) {
	s, fake, birthdays, reminders, subs := setupScheduler(t)

	rec := model.Birthday{
		ID:               "a",
		Name:             "Ana",
		Date:             time.Date(2020, time.June, 15, 0, 0, 0, 0, time.UTC),
		NotificationTime: time.Date(2000, time.January, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := birthdays.Save([]model.Birthday{rec}); err != nil {
		t.Fatalf("save birthdays: %v", err)
	}
	if _, err := subs.CreateSubscription("https://push.example/a", "p", "k", ""); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	// Due one minute ago.
	if err := reminders.Upsert(rec.ID, rec.Name, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("upsert reminder: %v", err)
	}

	s.tick(context.Background())

	if len(fake.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(fake.sent))
	}
	if !strings.Contains(fake.sent[0].Body, "Ana") {
		t.Errorf("body = %q, want it to name Ana", fake.sent[0].Body)
	}

	remaining, err := reminders.ListDue(time.Now())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("reminder still due after firing: %+v", remaining)
	}

	all, err := reminders.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d reminders, want the rescheduled one", len(all))
	}
	if !all[0].NextFireAt.After(time.Now()) {
		t.Errorf("rescheduled to %v, want a future instant", all[0].NextFireAt)
	}
	if until := time.Until(all[0].NextFireAt); until > 367*24*time.Hour {
		t.Errorf("rescheduled %v out, want at most a year", until)
	}
}

func TestTickKeepsRemindersWhenLoadFails(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	birthdays := store.NewBirthdayStore(db)
	reminders := store.NewReminderStore(db)
	subs := store.NewPushStore(db)

	s := NewScheduler(nil, birthdays, reminders, subs, metrics.NewWith(prometheus.NewRegistry()), slog.Default())
	fake := &fakeSender{}
	s.service = fake

	rec := model.Birthday{ID: "a", Name: "Ana", Date: time.Date(2020, time.June, 15, 0, 0, 0, 0, time.UTC)}
	if err := birthdays.Save([]model.Birthday{rec}); err != nil {
		t.Fatalf("save birthdays: %v", err)
	}
	if err := reminders.Upsert(rec.ID, rec.Name, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("upsert reminder: %v", err)
	}

	// Corrupt the stored blob so the load fails while the reminder query
	// still succeeds.
	if _, err := db.Exec(`UPDATE kv SET value = '{not json' WHERE key = 'birthdays'`); err != nil {
		t.Fatalf("corrupt blob: %v", err)
	}

	s.tick(context.Background())

	if len(fake.sent) != 0 {
		t.Errorf("sent %d notifications with unreadable records, want 0", len(fake.sent))
	}
	all, err := reminders.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("reminders after failed load = %d, want the original row kept", len(all))
	}
}

func TestTickDropsStaleReminder(t *testing.T) {
	s, fake, _, reminders, subs := setupScheduler(t)

	if _, err := subs.CreateSubscription("https://push.example/a", "p", "k", ""); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	// Reminder with no record behind it.
	if err := reminders.Upsert("ghost", "Ghost", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("upsert reminder: %v", err)
	}

	s.tick(context.Background())

	if len(fake.sent) != 0 {
		t.Errorf("sent %d notifications for a deleted record, want 0", len(fake.sent))
	}
	all, err := reminders.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("stale reminder survived: %+v", all)
	}
}

func TestTickPrunesExpiredSubscription(t *testing.T) {
	s, fake, birthdays, reminders, subs := setupScheduler(t)
	fake.err = ErrExpired

	rec := model.Birthday{
		ID:   "a",
		Name: "Ana",
		Date: time.Date(2020, time.June, 15, 0, 0, 0, 0, time.UTC),
	}
	if err := birthdays.Save([]model.Birthday{rec}); err != nil {
		t.Fatalf("save birthdays: %v", err)
	}
	if _, err := subs.CreateSubscription("https://push.example/expired", "p", "k", ""); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := reminders.Upsert(rec.ID, rec.Name, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("upsert reminder: %v", err)
	}

	s.tick(context.Background())

	remaining, err := subs.List()
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expired subscription survived: %+v", remaining)
	}
}
