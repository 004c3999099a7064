package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/inward-bound/internal/common"
	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/Veraticus/inward-bound/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UpsertTransaction inserts or merges a record keyed by its transaction
// reference. The read-merge-write runs in a single transaction: either the
// record and any detected conflicts are all persisted, or none are. Stored
// values win over divergent incoming ones; the divergence is recorded as
// field conflicts and returned in the result.
func (s *SQLiteStorage) UpsertTransaction(ctx context.Context, record model.TransactionRecord) (*service.UpsertResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRecord(record); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := s.getTransactionTx(ctx, tx, record.TransactionReference)
	switch {
	case errors.Is(err, common.ErrNotFound):
		if err := s.insertTransactionTx(ctx, tx, record); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit upsert: %w", err)
		}
		return &service.UpsertResult{Status: service.UpsertInserted}, nil
	case err != nil:
		return nil, err
	}

	merged, conflicts := stored.Merge(record)
	if err := s.updateTransactionTx(ctx, tx, merged); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range conflicts {
		conflicts[i].ID = uuid.New().String()
		conflicts[i].DetectedAt = now
		if err := s.insertConflictTx(ctx, tx, conflicts[i]); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upsert: %w", err)
	}

	return &service.UpsertResult{Status: service.UpsertMerged, Conflicts: conflicts}, nil
}

// GetTransaction retrieves a ledger record by transaction reference.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, reference string) (*model.TransactionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(reference, "reference"); err != nil {
		return nil, err
	}

	record, err := s.getTransactionTx(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetTransactions retrieves ledger records matching the filter, most
// recently written first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.TransactionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT transaction_reference, amount, currency, value_date,
		       remitter, beneficiary, purpose_code, category,
		       source_message_id, extracted_at
		FROM transactions
		WHERE 1=1`
	args := []any{}

	if filter.StartDate != nil {
		query += ` AND value_date >= ?`
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		query += ` AND value_date <= ?`
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Currency != "" {
		query += ` AND currency = ?`
		args = append(args, filter.Currency)
	}

	query += ` ORDER BY created_at DESC, transaction_reference`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func (s *SQLiteStorage) getTransactionTx(ctx context.Context, q queryable, reference string) (model.TransactionRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT transaction_reference, amount, currency, value_date,
		       remitter, beneficiary, purpose_code, category,
		       source_message_id, extracted_at
		FROM transactions
		WHERE transaction_reference = ?
	`, reference)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TransactionRecord{}, fmt.Errorf("%w: transaction %s", common.ErrNotFound, reference)
	}
	if err != nil {
		return model.TransactionRecord{}, err
	}
	return record, nil
}

func (s *SQLiteStorage) insertTransactionTx(ctx context.Context, q queryable, record model.TransactionRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (
			transaction_reference, amount, currency, value_date,
			remitter, beneficiary, purpose_code, category,
			source_message_id, extracted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.TransactionReference,
		nullAmount(record.Amount),
		record.Currency,
		nullTime(record.ValueDate),
		record.Remitter,
		record.Beneficiary,
		record.PurposeCode,
		record.Category,
		record.SourceMessageID,
		nullTime(record.ExtractedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", record.TransactionReference, err)
	}
	return nil
}

func (s *SQLiteStorage) updateTransactionTx(ctx context.Context, q queryable, record model.TransactionRecord) error {
	_, err := q.ExecContext(ctx, `
		UPDATE transactions SET
			amount = ?,
			currency = ?,
			value_date = ?,
			remitter = ?,
			beneficiary = ?,
			purpose_code = ?,
			category = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE transaction_reference = ?
	`,
		nullAmount(record.Amount),
		record.Currency,
		nullTime(record.ValueDate),
		record.Remitter,
		record.Beneficiary,
		record.PurposeCode,
		record.Category,
		record.TransactionReference,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", record.TransactionReference, err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.TransactionRecord, error) {
	var (
		record      model.TransactionRecord
		amount      sql.NullString
		valueDate   sql.NullTime
		extractedAt sql.NullTime
	)

	err := row.Scan(
		&record.TransactionReference,
		&amount,
		&record.Currency,
		&valueDate,
		&record.Remitter,
		&record.Beneficiary,
		&record.PurposeCode,
		&record.Category,
		&record.SourceMessageID,
		&extractedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TransactionRecord{}, err
		}
		return model.TransactionRecord{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return model.TransactionRecord{}, fmt.Errorf("corrupt amount %q for %s: %w",
				amount.String, record.TransactionReference, err)
		}
		record.Amount = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	if valueDate.Valid {
		record.ValueDate = valueDate.Time.UTC()
	}
	if extractedAt.Valid {
		record.ExtractedAt = extractedAt.Time.UTC()
	}

	return record, nil
}

// nullAmount stores amounts as exact decimal strings, NULL when absent.
func nullAmount(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
