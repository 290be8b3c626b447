package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cmertens/jubilee/internal/database"
	"github.com/cmertens/jubilee/internal/model"
	"github.com/cmertens/jubilee/internal/store"
)

type fakeS3 struct {
	put     []byte
	get     []byte
	deleted []string
}

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.put = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.get))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func setupManager(t *testing.T, onRestore func()) (*Manager, *fakeS3, *store.BirthdayStore, *store.ReminderStore, *store.BackupStore) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	birthdays := store.NewBirthdayStore(db)
	reminders := store.NewReminderStore(db)
	backups := store.NewBackupStore(db)

	cfg := Config{S3: S3Config{Bucket: "test-bucket"}, Passphrase: "pw"}
	m := NewManager(cfg, birthdays, reminders, backups, onRestore, slog.Default())
	fake := &fakeS3{}
	m.client = fake

	return m, fake, birthdays, reminders, backups
}

func TestRunNowUploadsDecryptableSnapshot(t *testing.T) {
	m, fake, birthdays, _, backups := setupManager(t, nil)

	rec := model.Birthday{ID: "a", Name: "Ana", Date: time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC)}
	if err := birthdays.Save([]model.Birthday{rec}); err != nil {
		t.Fatalf("save birthdays: %v", err)
	}

	id, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run now: %v", err)
	}

	plaintext, err := Decrypt(fake.put, "pw")
	if err != nil {
		t.Fatalf("decrypt uploaded snapshot: %v", err)
	}
	var got []model.Birthday
	if err := json.Unmarshal(plaintext, &got); err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Ana" {
		t.Errorf("snapshot = %+v, want one record for Ana", got)
	}

	record, err := backups.GetByID(id)
	if err != nil {
		t.Fatalf("get backup record: %v", err)
	}
	if record == nil || record.Status != model.BackupStatusCompleted {
		t.Errorf("backup record = %+v, want completed", record)
	}
}

func TestRestoreRebuildsReminders(t *testing.T) {
	notified := false
	m, fake, birthdays, reminders, backups := setupManager(t, func() { notified = true })

	rec := model.Birthday{
		ID:               "a",
		Name:             "Ana",
		Date:             time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC),
		NotificationTime: time.Date(1990, time.June, 15, 9, 0, 0, 0, time.UTC),
	}
	plaintext, err := json.Marshal([]model.Birthday{rec})
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	fake.get, err = Encrypt(plaintext, "pw")
	if err != nil {
		t.Fatalf("encrypt snapshot: %v", err)
	}

	backupRec, err := backups.Create("birthdays.json.enc", "birthdays.json.enc")
	if err != nil {
		t.Fatalf("create backup record: %v", err)
	}

	// A reminder for a record the snapshot does not contain must not
	// survive the restore.
	if err := reminders.Upsert("ghost", "Ghost", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed reminder: %v", err)
	}

	if err := m.Restore(context.Background(), backupRec.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}

	records, err := birthdays.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 || records[0].ID != "a" {
		t.Fatalf("restored records = %+v, want just Ana", records)
	}

	all, err := reminders.List()
	if err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	if len(all) != 1 || all[0].BirthdayID != "a" {
		t.Fatalf("reminders after restore = %+v, want one row for Ana", all)
	}
	if !all[0].NextFireAt.After(time.Now()) {
		t.Errorf("restored reminder scheduled at %v, want a future instant", all[0].NextFireAt)
	}
	if until := time.Until(all[0].NextFireAt); until > 367*24*time.Hour {
		t.Errorf("restored reminder %v out, want at most a year", until)
	}

	if !notified {
		t.Error("restore did not signal connected clients")
	}
}
