package handler

import (
	"fmt"
	"html/template"
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

// TemplateHandler serves the HTML UI: the main page plus the HTMX partials
// it swaps in for search, list, calendar, add, and delete.
type TemplateHandler struct {
	birthdays *store.BirthdayStore
	reminders *store.ReminderStore
	hub       *websocket.Hub
	metrics   *metrics.Metrics
	templates *template.Template
	logger    *slog.Logger
}

func NewTemplateHandler(bs *store.BirthdayStore, rs *store.ReminderStore, hub *websocket.Hub, m *metrics.Metrics, logger *slog.Logger) *TemplateHandler {
	tmpl := template.Must(template.ParseGlob("web/templates/*.html"))
	return &TemplateHandler{
		birthdays: bs,
		reminders: rs,
		hub:       hub,
		metrics:   m,
		templates: tmpl,
		logger:    logger,
	}
}

// listItem is the per-row view model for the list partial.
type listItem struct {
	ID        string
	Name      string
	DateLabel string
	TimeLabel string
	Age       int
	DaysUntil int
}

// calendarDay is one cell of the month grid. Day is zero for padding cells
// before the first and after the last day of the month.
type calendarDay struct {
	Day    int
	Marked bool
	Today  bool
	Names  []string
}

type calendarView struct {
	Title     string
	Year      int
	Month     int
	PrevYear  int
	PrevMonth int
	NextYear  int
	NextMonth int
	Weekdays  []string
	Weeks     [][]calendarDay
}

// Index handles GET /
func (h *TemplateHandler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := map[string]any{
		"Title": "Jubilee",
		"List":  h.listData(""),
	}
	h.render(w, "layout.html", data)
}

// BirthdayList handles GET /partials/birthdays with optional ?q= search.
func (h *TemplateHandler) BirthdayList(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	h.renderPartial(w, "birthday-list", h.listData(q))
}

// BirthdayCreate handles POST /partials/birthdays from the add form.
func (h *TemplateHandler) BirthdayCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.renderPartial(w, "form-error", map[string]string{"Error": "Name is required"})
		return
	}

	date, err := time.ParseInLocation("2006-01-02", r.FormValue("date"), time.Local)
	if err != nil {
		h.renderPartial(w, "form-error", map[string]string{"Error": "A valid birth date is required"})
		return
	}

	notifyAt := r.FormValue("notify_at")
	if notifyAt == "" {
		notifyAt = "09:00"
	}
	t, err := time.Parse("15:04", notifyAt)
	if err != nil {
		h.renderPartial(w, "form-error", map[string]string{"Error": "Invalid notification time"})
		return
	}

	rec := model.Birthday{
		ID:               birthday.NewID(),
		Name:             name,
		Date:             date,
		NotificationTime: time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.Local),
	}

	if err := h.birthdays.Add(rec); err != nil {
		h.logger.Error("save birthday", "error", err)
		h.renderPartial(w, "form-error", map[string]string{"Error": "Could not save the birthday. Please try again."})
		return
	}

	if err := h.reminders.Upsert(rec.ID, rec.Name, birthday.NextReminderAt(rec, time.Now())); err != nil {
		h.logger.Error("schedule reminder", "id", rec.ID, "error", err)
	}

	h.metrics.BirthdaysCreated.Inc()
	h.hub.Broadcast(websocket.NewMessage("birthday", "created", rec.ID, nil))

	h.renderPartial(w, "birthday-list", h.listData(""))
}

// BirthdayDelete handles DELETE /partials/birthdays/{id}.
func (h *TemplateHandler) BirthdayDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.birthdays.Remove(id); err != nil {
		h.logger.Error("remove birthday", "id", id, "error", err)
		http.Error(w, "failed to delete birthday", http.StatusInternalServerError)
		return
	}

	if err := h.reminders.Delete(id); err != nil {
		h.logger.Error("cancel reminder", "id", id, "error", err)
	}

	h.metrics.BirthdaysDeleted.Inc()
	h.hub.Broadcast(websocket.NewMessage("birthday", "deleted", id, nil))

	h.renderPartial(w, "birthday-list", h.listData(strings.TrimSpace(r.URL.Query().Get("q"))))
}

// Calendar handles GET /partials/calendar?year=&month=. Missing or invalid
// parameters fall back to the current month.
func (h *TemplateHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 1 {
		year = now.Year()
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		month = int(now.Month())
	}

	records, err := h.birthdays.Load()
	if err != nil {
		h.logger.Error("load birthdays", "error", err)
		records = []model.Birthday{}
	}

	h.renderPartial(w, "calendar", buildCalendar(records, year, month, now))
}

func (h *TemplateHandler) listData(query string) map[string]any {
	records, err := h.birthdays.Load()
	if err != nil {
		h.logger.Error("load birthdays", "error", err)
		records = []model.Birthday{}
	}

	records = birthday.Filter(records, query)

	now := time.Now()
	items := make([]listItem, 0, len(records))
	for _, b := range records {
		items = append(items, listItem{
			ID:        b.ID,
			Name:      b.Name,
			DateLabel: b.Date.Format("January 2, 2006"),
			TimeLabel: b.NotificationTime.Format("3:04 PM"),
			Age:       birthday.Age(b.Date, now),
			DaysUntil: birthday.DaysUntil(b.Date, now),
		})
	}

	return map[string]any{"Items": items, "Query": query}
}

// buildCalendar lays out a month as full weeks starting on Sunday. Markers
// come from birthday.MarkedDates, which ignores the birth year, so every
// birthday shows in every year's grid.
func buildCalendar(records []model.Birthday, year, month int, now time.Time) calendarView {
	marked := birthday.MarkedDates(records)

	namesByDay := make(map[int][]string)
	for _, b := range records {
		if int(b.Date.Month()) == month {
			d := b.Date.Day()
			namesByDay[d] = append(namesByDay[d], b.Name)
		}
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	var weeks [][]calendarDay
	week := make([]calendarDay, 0, 7)

	for i := 0; i < int(first.Weekday()); i++ {
		week = append(week, calendarDay{})
	}
	for day := 1; day <= daysInMonth; day++ {
		week = append(week, calendarDay{
			Day:    day,
			Marked: marked[fmt.Sprintf("%02d-%02d", month, day)],
			Today:  year == now.Year() && month == int(now.Month()) && day == now.Day(),
			Names:  namesByDay[day],
		})
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = make([]calendarDay, 0, 7)
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, calendarDay{})
		}
		weeks = append(weeks, week)
	}

	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)

	return calendarView{
		Title:     first.Format("January 2006"),
		Year:      year,
		Month:     month,
		PrevYear:  prev.Year(),
		PrevMonth: int(prev.Month()),
		NextYear:  next.Year(),
		NextMonth: int(next.Month()),
		Weekdays:  []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
		Weeks:     weeks,
	}
}

func (h *TemplateHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template error", "name", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *TemplateHandler) renderPartial(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template error", "name", name, "error", err)
		fmt.Fprintf(w, `<div class="alert alert-error">Template error</div>`)
	}
}
