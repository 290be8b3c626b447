package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmertens/jubilee/internal/birthday"
	"github.com/cmertens/jubilee/internal/metrics"
	"github.com/cmertens/jubilee/internal/model"
	"github.com/cmertens/jubilee/internal/store"
)

// sender abstracts the push service for tests.
type sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// Scheduler delivers birthday reminders. It polls for due reminders once a
// minute, pushes to every subscription, and reschedules each reminder to the
// next calendar occurrence. The year is recomputed every time, so leap years
// never drift the trigger date.
type Scheduler struct {
	mu        sync.RWMutex
	service   sender
	birthdays *store.BirthdayStore
	reminders *store.ReminderStore
	subs      *store.PushStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(svc *Service, birthdayStore *store.BirthdayStore, reminderStore *store.ReminderStore, pushStore *store.PushStore, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:   svc,
		birthdays: birthdayStore,
		reminders: reminderStore,
		subs:      pushStore,
		metrics:   m,
		logger:    logger,
		interval:  60 * time.Second,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	due, err := s.reminders.ListDue(now)
	if err != nil {
		s.logger.Error("list due reminders", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	// Without a successful load there is no way to tell a deleted record
	// from an unreadable one. Skip the tick and keep the reminders; stale
	// rows are only pruned when the load succeeds.
	records, err := s.birthdays.Load()
	if err != nil {
		s.logger.Error("load birthdays, skipping tick", "error", err)
		return
	}

	for _, rem := range due {
		s.fire(ctx, rem, records, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, rem model.Reminder, records []model.Birthday, now time.Time) {
	var rec *model.Birthday
	for i := range records {
		if records[i].ID == rem.BirthdayID {
			rec = &records[i]
			break
		}
	}
	if rec == nil {
		// The record is gone; cancel the stale reminder.
		if err := s.reminders.Delete(rem.BirthdayID); err != nil {
			s.logger.Error("delete stale reminder", "birthday_id", rem.BirthdayID, "error", err)
		}
		return
	}

	// On the birthday itself Age already reflects the year being turned.
	payload := Payload{
		Title: "Birthday Reminder! 🎉",
		Body:  fmt.Sprintf("Today is %s's birthday! They will be %d years old.", rec.Name, birthday.Age(rec.Date, now)),
		URL:   "/",
		Tag:   "birthday-" + rec.ID,
	}

	subs, err := s.subs.List()
	if err != nil {
		s.logger.Error("list push subscriptions", "error", err)
	}

	delivered := false
	for i := range subs {
		if err := s.service.Send(ctx, &subs[i], payload); err != nil {
			if errors.Is(err, ErrExpired) {
				s.subs.DeleteByEndpoint(subs[i].Endpoint)
			} else {
				s.logger.Error("send birthday reminder", "name", rec.Name, "error", err)
				s.metrics.PushSendFailures.Inc()
			}
			continue
		}
		delivered = true
	}
	if delivered {
		s.metrics.RemindersSent.Inc()
	}

	next := birthday.NextReminderAt(*rec, now)
	if err := s.reminders.Reschedule(rec.ID, next); err != nil {
		s.logger.Error("reschedule reminder", "birthday_id", rec.ID, "error", err)
	}
}
