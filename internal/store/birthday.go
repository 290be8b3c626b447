package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cmertens/jubilee/internal/birthday"
	"github.com/cmertens/jubilee/internal/model"
)

// birthdaysKey is the fixed kv key the serialized collection lives under.
const birthdaysKey = "birthdays"

// BirthdayStore persists the full birthday collection as one JSON blob under
// a fixed key. Every mutation rewrites the whole collection (write-through,
// no partial updates); a mutex serializes the read-modify-write cycle so
// concurrent mutations cannot interleave.
type BirthdayStore struct {
	mu sync.Mutex
	db *sql.DB
}

func NewBirthdayStore(db *sql.DB) *BirthdayStore {
	return &BirthdayStore{db: db}
}

// Load reads the stored collection. A missing key yields an empty
// collection. Malformed stored data fails the whole load; callers treat
// that the same as no data yet, there is no partial recovery.
func (s *BirthdayStore) Load() ([]model.Birthday, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, birthdaysKey).Scan(&value)
	if err == sql.ErrNoRows {
		return []model.Birthday{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load birthdays: %w", err)
	}

	var records []model.Birthday
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		return nil, fmt.Errorf("decode birthdays: %w", err)
	}
	if records == nil {
		records = []model.Birthday{}
	}
	return records, nil
}

// Save serializes the full collection and replaces whatever was stored
// before.
func (s *BirthdayStore) Save(records []model.Birthday) error {
	if records == nil {
		records = []model.Birthday{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode birthdays: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		birthdaysKey, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save birthdays: %w", err)
	}
	return nil
}

// Add appends the record and writes the collection through. A failed load is
// treated as no data yet, matching the all-or-nothing load contract.
func (s *BirthdayStore) Add(b model.Birthday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.Load()
	if err != nil {
		records = []model.Birthday{}
	}
	return s.Save(birthday.Add(records, b))
}

// Remove deletes the record with the given id and writes the collection
// through. Every other record keeps its position.
func (s *BirthdayStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.Load()
	if err != nil {
		records = []model.Birthday{}
	}
	return s.Save(birthday.Remove(records, id))
}
