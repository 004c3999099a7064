// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/inward-bound/internal/model"
)

// TransactionFilter defines filtering options for ledger queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
	Currency  string
	Limit     int
	Offset    int
}

// UpsertStatus reports how an upsert affected the ledger.
type UpsertStatus string

// Upsert outcomes.
const (
	UpsertInserted UpsertStatus = "inserted"
	UpsertMerged   UpsertStatus = "merged"
)

// UpsertResult describes a completed ledger upsert, including any field
// conflicts detected against the stored record. Conflicts are recorded, not
// fatal: the stored values win until a conflict is resolved.
type UpsertResult struct {
	Status    UpsertStatus
	Conflicts []model.FieldConflict
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Ledger operations
	UpsertTransaction(ctx context.Context, record model.TransactionRecord) (*UpsertResult, error)
	GetTransaction(ctx context.Context, reference string) (*model.TransactionRecord, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.TransactionRecord, error)

	// Processed-message operations
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string, outcome model.Outcome, lastError string) error
	GetProcessedEntry(ctx context.Context, messageID string) (*model.ProcessedEntry, error)
	ListDeadLetters(ctx context.Context) ([]model.ProcessedEntry, error)
	RequeueDeadLetter(ctx context.Context, messageID string) error

	// Conflict operations
	GetConflict(ctx context.Context, id string) (*model.FieldConflict, error)
	ListOpenConflicts(ctx context.Context) ([]model.FieldConflict, error)
	ResolveConflict(ctx context.Context, id string, keepIncoming bool) error

	// Archive operations
	RecordArchivedDocument(ctx context.Context, doc model.ArchivedDocument) error
	ListArchivedDocuments(ctx context.Context, messageID string) ([]model.ArchivedDocument, error)

	// Mailbox cursor operations
	GetCursor(ctx context.Context, mailbox string) (string, error)
	SetCursor(ctx context.Context, mailbox, cursor string) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Mailbox fetches messages that arrived after the given cursor and returns
// them along with the cursor to persist once they have been processed. The
// cursor format is owned by the implementation; callers treat it as opaque.
type Mailbox interface {
	FetchNewMessages(ctx context.Context, cursor string) ([]model.Message, string, error)
}

// ObjectStore archives decrypted documents for audit.
type ObjectStore interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
