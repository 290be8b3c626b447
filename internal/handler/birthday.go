package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cmertens/jubilee/internal/birthday"
	"github.com/cmertens/jubilee/internal/metrics"
	"github.com/cmertens/jubilee/internal/model"
	"github.com/cmertens/jubilee/internal/store"
	"github.com/cmertens/jubilee/internal/websocket"
)

// BirthdayHandler serves the JSON API for the birthday collection.
type BirthdayHandler struct {
	birthdays *store.BirthdayStore
	reminders *store.ReminderStore
	hub       *websocket.Hub
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewBirthdayHandler(bs *store.BirthdayStore, rs *store.ReminderStore, hub *websocket.Hub, m *metrics.Metrics, logger *slog.Logger) *BirthdayHandler {
	return &BirthdayHandler{
		birthdays: bs,
		reminders: rs,
		hub:       hub,
		metrics:   m,
		logger:    logger,
	}
}

type createBirthdayRequest struct {
	Name             string    `json:"name"`
	Date             time.Time `json:"date"`
	NotificationTime time.Time `json:"notificationTime"`
}

type birthdayResponse struct {
	model.Birthday
	Age       int `json:"age"`
	DaysUntil int `json:"daysUntil"`
}

// List handles GET /api/birthdays. The optional q parameter filters by
// case-insensitive name substring. A failed load is served as an empty
// collection so the UI always renders.
func (h *BirthdayHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.birthdays.Load()
	if err != nil {
		h.logger.Error("load birthdays", "error", err)
		records = []model.Birthday{}
	}

	records = birthday.Filter(records, strings.TrimSpace(r.URL.Query().Get("q")))

	now := time.Now()
	out := make([]birthdayResponse, 0, len(records))
	for _, b := range records {
		out = append(out, birthdayResponse{
			Birthday:  b,
			Age:       birthday.Age(b.Date, now),
			DaysUntil: birthday.DaysUntil(b.Date, now),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /api/birthdays. A save failure is reported to the
// caller instead of silently keeping the record in memory only.
func (h *BirthdayHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBirthdayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.Date.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date is required"})
		return
	}
	if req.NotificationTime.IsZero() {
		// Default reminder time is 9 AM on the birth date.
		req.NotificationTime = time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 9, 0, 0, 0, req.Date.Location())
	}

	rec := model.Birthday{
		ID:               birthday.NewID(),
		Name:             req.Name,
		Date:             req.Date,
		NotificationTime: req.NotificationTime,
	}

	if err := h.birthdays.Add(rec); err != nil {
		h.logger.Error("save birthday", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save birthday"})
		return
	}

	// Reminder registration must not block the create; the scheduler picks
	// up the row once it exists.
	if err := h.reminders.Upsert(rec.ID, rec.Name, birthday.NextReminderAt(rec, time.Now())); err != nil {
		h.logger.Error("schedule reminder", "id", rec.ID, "error", err)
	}

	h.metrics.BirthdaysCreated.Inc()
	h.hub.Broadcast(websocket.NewMessage("birthday", "created", rec.ID, nil))

	now := time.Now()
	writeJSON(w, http.StatusCreated, birthdayResponse{
		Birthday:  rec,
		Age:       birthday.Age(rec.Date, now),
		DaysUntil: birthday.DaysUntil(rec.Date, now),
	})
}

// Delete handles DELETE /api/birthdays/{id}. Deleting the record also
// cancels its pending reminder.
func (h *BirthdayHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	records, err := h.birthdays.Load()
	if err != nil {
		h.logger.Error("load birthdays", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load birthdays"})
		return
	}

	found := false
	for _, b := range records {
		if b.ID == id {
			found = true
			break
		}
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "birthday not found"})
		return
	}

	if err := h.birthdays.Remove(id); err != nil {
		h.logger.Error("remove birthday", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete birthday"})
		return
	}

	if err := h.reminders.Delete(id); err != nil {
		h.logger.Error("cancel reminder", "id", id, "error", err)
	}

	h.metrics.BirthdaysDeleted.Inc()
	h.hub.Broadcast(websocket.NewMessage("birthday", "deleted", id, nil))

	w.WriteHeader(http.StatusNoContent)
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
