package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cmertens/jubilee/internal/backup"
	"github.com/cmertens/jubilee/internal/handler"
	"github.com/cmertens/jubilee/internal/metrics"
	"github.com/cmertens/jubilee/internal/middleware"
	"github.com/cmertens/jubilee/internal/notify"
	"github.com/cmertens/jubilee/internal/store"
	ws "github.com/cmertens/jubilee/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	birthdayH     *handler.BirthdayHandler
	pushH         *handler.PushHandler
	backupH       *handler.BackupHandler
	templateH     *handler.TemplateHandler
	scheduler     *notify.Scheduler
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(db *sql.DB, pushCfg notify.Config, backupCfg backup.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	m := metrics.New()

	birthdayStore := store.NewBirthdayStore(db)
	reminderStore := store.NewReminderStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	pushSvc := notify.NewService(pushCfg)
	scheduler := notify.NewScheduler(pushSvc, birthdayStore, reminderStore, pushStore, m, logger.With("component", "scheduler"))

	backupMgr := backup.NewManager(backupCfg, birthdayStore, reminderStore, backupStore, func() {
		hub.Broadcast(ws.NewMessage("birthday", "restored", "", nil))
	}, logger)

	return &Server{
		db:            db,
		hub:           hub,
		birthdayH:     handler.NewBirthdayHandler(birthdayStore, reminderStore, hub, m, logger.With("component", "birthday")),
		pushH:         handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push")),
		backupH:       handler.NewBackupHandler(backupMgr, backupStore, logger.With("component", "backup")),
		templateH:     handler.NewTemplateHandler(birthdayStore, reminderStore, hub, m, logger.With("component", "template")),
		scheduler:     scheduler,
		backupManager: backupMgr,
		logger:        logger,
	}
}

// Scheduler returns the reminder scheduler for lifecycle management.
func (s *Server) Scheduler() *notify.Scheduler {
	return s.scheduler
}

// BackupManager returns the backup manager for lifecycle management.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Birthday API routes
	mux.HandleFunc("GET /api/birthdays", s.birthdayH.List)
	mux.HandleFunc("POST /api/birthdays", s.birthdayH.Create)
	mux.HandleFunc("DELETE /api/birthdays/{id}", s.birthdayH.Delete)

	// Push notification API routes
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)

	// Backup API routes
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("POST /api/backups", s.backupH.RunNow)
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)
	mux.HandleFunc("POST /api/backups/{id}/restore", s.backupH.Restore)

	// Page and partial routes (HTMX)
	mux.HandleFunc("GET /", s.templateH.Index)
	mux.HandleFunc("GET /partials/birthdays", s.templateH.BirthdayList)
	mux.HandleFunc("POST /partials/birthdays", s.templateH.BirthdayCreate)
	mux.HandleFunc("DELETE /partials/birthdays/{id}", s.templateH.BirthdayDelete)
	mux.HandleFunc("GET /partials/calendar", s.templateH.Calendar)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	// Static assets, health, metrics
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir("web/static"))))
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
