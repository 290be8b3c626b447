package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cmertens/jubilee/internal/backup"
	"github.com/cmertens/jubilee/internal/database"
	"github.com/cmertens/jubilee/internal/logging"
	"github.com/cmertens/jubilee/internal/notify"
	"github.com/cmertens/jubilee/internal/server"
	"github.com/cmertens/jubilee/internal/store"
)

func main() {
	port := os.Getenv("JUBILEE_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("JUBILEE_DB_PATH")
	if dbPath == "" {
		dbPath = "jubilee.db"
	}

	logger := logging.Setup(os.Getenv("JUBILEE_LOG_LEVEL"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	pushCfg, err := loadPushConfig(store.NewKVStore(db))
	if err != nil {
		log.Fatalf("failed to load VAPID keys: %v", err)
	}

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("JUBILEE_S3_ENDPOINT"),
			Bucket:    os.Getenv("JUBILEE_S3_BUCKET"),
			Region:    envOr("JUBILEE_S3_REGION", "auto"),
			AccessKey: os.Getenv("JUBILEE_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("JUBILEE_S3_SECRET_KEY"),
		},
		Passphrase:    os.Getenv("JUBILEE_BACKUP_PASSPHRASE"),
		ScheduleHour:  envInt("JUBILEE_BACKUP_HOUR", 3),
		RetentionDays: envInt("JUBILEE_BACKUP_RETENTION_DAYS", 30),
	}

	srv := server.New(db, pushCfg, backupCfg, logger)

	ctx := context.Background()
	srv.Scheduler().Start(ctx)
	defer srv.Scheduler().Stop()

	srv.BackupManager().Start(ctx)
	defer srv.BackupManager().Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Jubilee running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// loadPushConfig resolves VAPID keys: environment first, then the pair
// persisted in the kv table, and finally a freshly generated pair that is
// stored so subscriptions survive restarts.
func loadPushConfig(kv *store.KVStore) (notify.Config, error) {
	cfg := notify.Config{
		VAPIDPublicKey:  os.Getenv("JUBILEE_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("JUBILEE_VAPID_PRIVATE_KEY"),
		Subscriber:      os.Getenv("JUBILEE_VAPID_SUBSCRIBER"),
	}
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		return cfg, nil
	}

	pub, err := kv.Get("vapid_public_key")
	if err != nil {
		return cfg, err
	}
	priv, err := kv.Get("vapid_private_key")
	if err != nil {
		return cfg, err
	}
	if pub != "" && priv != "" {
		cfg.VAPIDPublicKey = pub
		cfg.VAPIDPrivateKey = priv
		return cfg, nil
	}

	pub, priv, err = notify.GenerateVAPIDKeys()
	if err != nil {
		return cfg, err
	}
	if err := kv.Set("vapid_public_key", pub); err != nil {
		return cfg, err
	}
	if err := kv.Set("vapid_private_key", priv); err != nil {
		return cfg, err
	}
	cfg.VAPIDPublicKey = pub
	cfg.VAPIDPrivateKey = priv
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
