package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/inward-bound/internal/common"
	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/Veraticus/inward-bound/internal/service"
)

func TestUpsertTransaction_Insert(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	record := model.TransactionRecord{
		TransactionReference: "UTR2024031500042",
		Amount:               dec("1250.00"),
		Currency:             "USD",
		ValueDate:            time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Remitter:             "ACME GMBH",
		Category:             "inward_remittance",
		SourceMessageID:      "msg-1",
		ExtractedAt:          time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}

	result, err := store.UpsertTransaction(ctx, record)
	if err != nil {
		t.Fatalf("UpsertTransaction() failed: %v", err)
	}
	if result.Status != service.UpsertInserted {
		t.Errorf("status = %q, want %q", result.Status, service.UpsertInserted)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("insert produced %d conflicts, want 0", len(result.Conflicts))
	}

	got, err := store.GetTransaction(ctx, "UTR2024031500042")
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if !got.Amount.Valid || !got.Amount.Decimal.Equal(record.Amount.Decimal) {
		t.Errorf("amount = %v, want %v", got.Amount, record.Amount)
	}
	if got.Currency != "USD" || got.Remitter != "ACME GMBH" {
		t.Errorf("fields not round-tripped: %+v", got)
	}
	if !got.ValueDate.Equal(record.ValueDate) {
		t.Errorf("value date = %v, want %v", got.ValueDate, record.ValueDate)
	}
	if got.SourceMessageID != "msg-1" {
		t.Errorf("source message = %q, want msg-1", got.SourceMessageID)
	}
}

func TestUpsertTransaction_FillsEmptyFields(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first := model.TransactionRecord{
		TransactionReference: "UTR777",
		Amount:               dec("100"),
		SourceMessageID:      "msg-1",
	}
	if _, err := store.UpsertTransaction(ctx, first); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	second := model.TransactionRecord{
		TransactionReference: "UTR777",
		Currency:             "USD",
		Remitter:             "GLOBEX LLC",
		SourceMessageID:      "msg-2",
	}
	result, err := store.UpsertTransaction(ctx, second)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if result.Status != service.UpsertMerged {
		t.Errorf("status = %q, want %q", result.Status, service.UpsertMerged)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("fill-empty merge produced %d conflicts, want 0", len(result.Conflicts))
	}

	got, err := store.GetTransaction(ctx, "UTR777")
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if !got.Amount.Valid || got.Amount.Decimal.String() != "100" {
		t.Errorf("amount = %v, want 100", got.Amount)
	}
	if got.Currency != "USD" {
		t.Errorf("currency = %q, want USD", got.Currency)
	}
	if got.Remitter != "GLOBEX LLC" {
		t.Errorf("remitter = %q, want GLOBEX LLC", got.Remitter)
	}
	// Provenance keeps the first observation.
	if got.SourceMessageID != "msg-1" {
		t.Errorf("source message = %q, want msg-1", got.SourceMessageID)
	}
}

func TestUpsertTransaction_ConflictKeepsStoredValue(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first := model.TransactionRecord{
		TransactionReference: "UTR888",
		Amount:               dec("100"),
		SourceMessageID:      "msg-1",
	}
	if _, err := store.UpsertTransaction(ctx, first); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	second := model.TransactionRecord{
		TransactionReference: "UTR888",
		Amount:               dec("200"),
		SourceMessageID:      "msg-2",
	}
	result, err := store.UpsertTransaction(ctx, second)
	if err != nil {
		t.Fatalf("conflicting upsert should not error: %v", err)
	}
	if result.Status != service.UpsertMerged {
		t.Errorf("status = %q, want %q", result.Status, service.UpsertMerged)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(result.Conflicts))
	}

	conflict := result.Conflicts[0]
	if conflict.Field != "amount" {
		t.Errorf("conflict field = %q, want amount", conflict.Field)
	}
	if conflict.StoredValue != "100" || conflict.IncomingValue != "200" {
		t.Errorf("conflict values = %q/%q, want 100/200", conflict.StoredValue, conflict.IncomingValue)
	}
	if conflict.ID == "" {
		t.Error("conflict was not assigned an ID")
	}
	if conflict.SourceMessageID != "msg-2" {
		t.Errorf("conflict source = %q, want msg-2", conflict.SourceMessageID)
	}

	// The stored value stands until an operator resolves the conflict.
	got, err := store.GetTransaction(ctx, "UTR888")
	if err != nil {
		t.Fatalf("GetTransaction() failed: %v", err)
	}
	if got.Amount.Decimal.String() != "100" {
		t.Errorf("stored amount = %s, want 100", got.Amount.Decimal.String())
	}

	open, err := store.ListOpenConflicts(ctx)
	if err != nil {
		t.Fatalf("ListOpenConflicts() failed: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("got %d open conflicts, want 1", len(open))
	}
}

func TestUpsertTransaction_IdenticalReplayIsQuiet(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	record := model.TransactionRecord{
		TransactionReference: "UTR999",
		Amount:               dec("100.50"),
		Currency:             "EUR",
		SourceMessageID:      "msg-1",
	}
	if _, err := store.UpsertTransaction(ctx, record); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	result, err := store.UpsertTransaction(ctx, record)
	if err != nil {
		t.Fatalf("replay upsert failed: %v", err)
	}
	if result.Status != service.UpsertMerged {
		t.Errorf("status = %q, want %q", result.Status, service.UpsertMerged)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("replay produced %d conflicts, want 0", len(result.Conflicts))
	}
}

func TestUpsertTransaction_RejectsInvalidRecords(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.UpsertTransaction(ctx, model.TransactionRecord{}); err == nil {
		t.Error("upsert without reference should fail")
	}
	if _, err := store.UpsertTransaction(ctx, model.TransactionRecord{
		TransactionReference: "UTR1",
		Amount:               dec("-10"),
	}); err == nil {
		t.Error("upsert with negative amount should fail")
	}
}

func TestGetTransaction_NotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetTransaction(context.Background(), "UTR-MISSING")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetTransactions_Filters(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	records := []model.TransactionRecord{
		{
			TransactionReference: "UTR-A",
			Amount:               dec("100"),
			Currency:             "USD",
			Category:             "inward_remittance",
			ValueDate:            time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			TransactionReference: "UTR-B",
			Amount:               dec("200"),
			Currency:             "EUR",
			Category:             "inward_remittance",
			ValueDate:            time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			TransactionReference: "UTR-C",
			Amount:               dec("300"),
			Currency:             "USD",
			Category:             "credit_alert",
			ValueDate:            time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, r := range records {
		if _, err := store.UpsertTransaction(ctx, r); err != nil {
			t.Fatalf("seeding %s failed: %v", r.TransactionReference, err)
		}
	}

	all, err := store.GetTransactions(ctx, service.TransactionFilter{})
	if err != nil {
		t.Fatalf("GetTransactions() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered count = %d, want 3", len(all))
	}

	usd, err := store.GetTransactions(ctx, service.TransactionFilter{Currency: "USD"})
	if err != nil {
		t.Fatalf("currency filter failed: %v", err)
	}
	if len(usd) != 2 {
		t.Errorf("USD count = %d, want 2", len(usd))
	}

	remittances, err := store.GetTransactions(ctx, service.TransactionFilter{Category: "inward_remittance"})
	if err != nil {
		t.Fatalf("category filter failed: %v", err)
	}
	if len(remittances) != 2 {
		t.Errorf("category count = %d, want 2", len(remittances))
	}

	start := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	march, err := store.GetTransactions(ctx, service.TransactionFilter{StartDate: &start, EndDate: &end})
	if err != nil {
		t.Fatalf("date filter failed: %v", err)
	}
	if len(march) != 1 || march[0].TransactionReference != "UTR-B" {
		t.Errorf("date window returned %d records, want just UTR-B", len(march))
	}

	limited, err := store.GetTransactions(ctx, service.TransactionFilter{Limit: 2})
	if err != nil {
		t.Fatalf("limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited count = %d, want 2", len(limited))
	}
}
