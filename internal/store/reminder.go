package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cmertens/jubilee/internal/model"
)

// ReminderStore tracks the next trigger instant per birthday. The primary
// key on birthday_id guarantees at most one pending reminder per record.
type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

// Upsert registers (or replaces) the reminder for a birthday.
func (s *ReminderStore) Upsert(birthdayID, name string, nextFireAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO reminders (birthday_id, name, next_fire_at) VALUES (?, ?, ?)
		 ON CONFLICT(birthday_id) DO UPDATE SET name = excluded.name, next_fire_at = excluded.next_fire_at`,
		birthdayID, name, nextFireAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert reminder: %w", err)
	}
	return nil
}

// ListDue returns reminders whose trigger instant is at or before now.
func (s *ReminderStore) ListDue(now time.Time) ([]model.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT birthday_id, name, next_fire_at FROM reminders WHERE next_fire_at <= ? ORDER BY next_fire_at`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var due []model.Reminder
	for rows.Next() {
		var rem model.Reminder
		if err := rows.Scan(&rem.BirthdayID, &rem.Name, &rem.NextFireAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		due = append(due, rem)
	}
	return due, rows.Err()
}

// List returns all pending reminders ordered by trigger instant.
func (s *ReminderStore) List() ([]model.Reminder, error) {
	rows, err := s.db.Query(`SELECT birthday_id, name, next_fire_at FROM reminders ORDER BY next_fire_at`)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		var rem model.Reminder
		if err := rows.Scan(&rem.BirthdayID, &rem.Name, &rem.NextFireAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

// Reschedule moves a reminder to its next trigger instant after it fires.
func (s *ReminderStore) Reschedule(birthdayID string, nextFireAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE reminders SET next_fire_at = ? WHERE birthday_id = ?`,
		nextFireAt.UTC(), birthdayID,
	)
	if err != nil {
		return fmt.Errorf("reschedule reminder: %w", err)
	}
	return nil
}

// Delete cancels the reminder for a birthday. Called when the record is
// deleted so no orphaned reminder survives it.
func (s *ReminderStore) Delete(birthdayID string) error {
	_, err := s.db.Exec(`DELETE FROM reminders WHERE birthday_id = ?`, birthdayID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}
