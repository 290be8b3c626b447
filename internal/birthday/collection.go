// Package birthday holds the pure domain layer: date arithmetic and
// collection operations over the stored records. Nothing here does I/O;
// mutation operations return a new collection and leave the input alone.
package birthday

import (
	"strings"

	"github.com/google/uuid"

	"github.com/cmertens/jubilee/internal/model"
)

// NewID returns a fresh opaque record identifier.
func NewID() string {
	return uuid.New().String()
}

// Add returns a new collection with b appended, preserving insertion order.
func Add(records []model.Birthday, b model.Birthday) []model.Birthday {
	out := make([]model.Birthday, 0, len(records)+1)
	out = append(out, records...)
	return append(out, b)
}

// Remove returns a new collection without the record matching id. All other
// records keep their relative order. Unknown ids are a no-op.
func Remove(records []model.Birthday, id string) []model.Birthday {
	out := make([]model.Birthday, 0, len(records))
	for _, b := range records {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}

// Filter returns the records whose name contains query as a
// case-insensitive substring. An empty query returns every record.
func Filter(records []model.Birthday, query string) []model.Birthday {
	if query == "" {
		return records
	}
	q := strings.ToLower(query)
	out := make([]model.Birthday, 0, len(records))
	for _, b := range records {
		if strings.Contains(strings.ToLower(b.Name), q) {
			out = append(out, b)
		}
	}
	return out
}

// MarkedDates maps every record's birth month and day to a has-event flag
// keyed MM-DD. The birth year is ignored so a birthday marks its date in
// every displayed year, and records sharing a date collapse to one marker.
func MarkedDates(records []model.Birthday) map[string]bool {
	marked := make(map[string]bool, len(records))
	for _, b := range records {
		marked[b.Date.Format("01-02")] = true
	}
	return marked
}
