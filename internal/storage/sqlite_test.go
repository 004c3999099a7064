package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/shopspring/decimal"
)

// Helper function to create migrated test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func dec(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func TestNewSQLiteStorage_Validation(t *testing.T) {
	if _, err := NewSQLiteStorage(""); err == nil {
		t.Error("NewSQLiteStorage(\"\") should fail")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	// A second migration run must be a no-op, not an error.
	if err := store.Migrate(context.Background()); err != nil {
		t.Errorf("second Migrate() failed: %v", err)
	}
}

func TestCursor_RoundTrip(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cursor, err := store.GetCursor(ctx, "INBOX")
	if err != nil {
		t.Fatalf("GetCursor() on fresh mailbox failed: %v", err)
	}
	if cursor != "" {
		t.Errorf("fresh mailbox cursor = %q, want empty", cursor)
	}

	if err := store.SetCursor(ctx, "INBOX", "1234:42"); err != nil {
		t.Fatalf("SetCursor() failed: %v", err)
	}
	cursor, err = store.GetCursor(ctx, "INBOX")
	if err != nil {
		t.Fatalf("GetCursor() failed: %v", err)
	}
	if cursor != "1234:42" {
		t.Errorf("cursor = %q, want %q", cursor, "1234:42")
	}

	// Overwrite advances the position.
	if err := store.SetCursor(ctx, "INBOX", "1234:97"); err != nil {
		t.Fatalf("SetCursor() update failed: %v", err)
	}
	cursor, _ = store.GetCursor(ctx, "INBOX")
	if cursor != "1234:97" {
		t.Errorf("cursor after update = %q, want %q", cursor, "1234:97")
	}

	// Cursors are per mailbox.
	other, err := store.GetCursor(ctx, "Advices")
	if err != nil {
		t.Fatalf("GetCursor() for second mailbox failed: %v", err)
	}
	if other != "" {
		t.Errorf("second mailbox cursor = %q, want empty", other)
	}
}

func TestArchivedDocuments_RecordAndList(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	uploaded := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	docs := []model.ArchivedDocument{
		{MessageID: "msg-1", Filename: "advice_1.pdf", ObjectPath: "gs://advices/2024/advice_1.pdf", UploadedAt: uploaded},
		{MessageID: "msg-1", Filename: "advice_2.pdf", ObjectPath: "gs://advices/2024/advice_2.pdf", UploadedAt: uploaded},
		{MessageID: "msg-2", Filename: "other.pdf", ObjectPath: "gs://advices/2024/other.pdf", UploadedAt: uploaded},
	}
	for _, doc := range docs {
		if err := store.RecordArchivedDocument(ctx, doc); err != nil {
			t.Fatalf("RecordArchivedDocument(%s) failed: %v", doc.Filename, err)
		}
	}

	got, err := store.ListArchivedDocuments(ctx, "msg-1")
	if err != nil {
		t.Fatalf("ListArchivedDocuments() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d documents for msg-1, want 2", len(got))
	}
	if got[0].Filename != "advice_1.pdf" || got[1].Filename != "advice_2.pdf" {
		t.Errorf("documents out of insertion order: %q, %q", got[0].Filename, got[1].Filename)
	}
	if got[0].ObjectPath != "gs://advices/2024/advice_1.pdf" {
		t.Errorf("ObjectPath = %q", got[0].ObjectPath)
	}

	missing := model.ArchivedDocument{MessageID: "msg-3", Filename: "x.pdf"}
	if err := store.RecordArchivedDocument(ctx, missing); err == nil {
		t.Error("RecordArchivedDocument() without object path should fail")
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  model.TransactionRecord
		wantErr bool
	}{
		{
			name:    "valid with reference only",
			record:  model.TransactionRecord{TransactionReference: "UTR123"},
			wantErr: false,
		},
		{
			name:    "valid with positive amount",
			record:  model.TransactionRecord{TransactionReference: "UTR123", Amount: dec("100.50")},
			wantErr: false,
		},
		{
			name:    "missing reference",
			record:  model.TransactionRecord{Currency: "USD"},
			wantErr: true,
		},
		{
			name:    "zero amount",
			record:  model.TransactionRecord{TransactionReference: "UTR123", Amount: dec("0")},
			wantErr: true,
		},
		{
			name:    "negative amount",
			record:  model.TransactionRecord{TransactionReference: "UTR123", Amount: dec("-5")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRecord(tt.record)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
