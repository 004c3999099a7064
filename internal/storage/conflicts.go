package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/inward-bound/internal/common"
	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/shopspring/decimal"
)

// GetConflict retrieves a field conflict by ID.
func (s *SQLiteStorage) GetConflict(ctx context.Context, id string) (*model.FieldConflict, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_reference, field, stored_value, incoming_value,
		       source_message_id, detected_at, resolved
		FROM field_conflicts
		WHERE id = ?
	`, id)

	conflict, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conflict %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}

// ListOpenConflicts returns unresolved field conflicts, oldest first so an
// operator works through them in detection order.
func (s *SQLiteStorage) ListOpenConflicts(ctx context.Context) ([]model.FieldConflict, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_reference, field, stored_value, incoming_value,
		       source_message_id, detected_at, resolved
		FROM field_conflicts
		WHERE resolved = 0
		ORDER BY detected_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conflicts []model.FieldConflict
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, conflict)
	}

	return conflicts, rows.Err()
}

// ResolveConflict closes a field conflict. When keepIncoming is true the
// conflicting field on the ledger record is overwritten with the incoming
// value; otherwise the stored value stands. Either way the conflict is
// marked resolved in the same transaction as the ledger write.
func (s *SQLiteStorage) ResolveConflict(ctx context.Context, id string, keepIncoming bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, transaction_reference, field, stored_value, incoming_value,
		       source_message_id, detected_at, resolved
		FROM field_conflicts
		WHERE id = ?
	`, id)
	conflict, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: conflict %s", common.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if conflict.Resolved {
		return fmt.Errorf("conflict %s is already resolved", id)
	}

	if keepIncoming {
		if err := applyConflictValue(ctx, tx, conflict); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE field_conflicts SET resolved = 1 WHERE id = ?
	`, id); err != nil {
		return fmt.Errorf("failed to mark conflict %s resolved: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}
	return nil
}

// applyConflictValue writes the incoming value onto the ledger record.
// Only fields that Merge can flag are accepted; the column name comes from
// this switch, never from stored data.
func applyConflictValue(ctx context.Context, q queryable, conflict model.FieldConflict) error {
	var (
		column string
		value  any
	)
	switch conflict.Field {
	case "amount":
		d, err := decimal.NewFromString(conflict.IncomingValue)
		if err != nil {
			return fmt.Errorf("conflict %s has unparseable amount %q: %w", conflict.ID, conflict.IncomingValue, err)
		}
		column, value = "amount", d.String()
	case "value_date":
		t, err := time.Parse("2006-01-02", conflict.IncomingValue)
		if err != nil {
			return fmt.Errorf("conflict %s has unparseable date %q: %w", conflict.ID, conflict.IncomingValue, err)
		}
		column, value = "value_date", t.UTC()
	case "currency", "remitter", "beneficiary", "purpose_code", "category":
		column, value = conflict.Field, conflict.IncomingValue
	default:
		return fmt.Errorf("conflict %s names unknown field %q", conflict.ID, conflict.Field)
	}

	query := fmt.Sprintf(`
		UPDATE transactions SET %s = ?, updated_at = CURRENT_TIMESTAMP
		WHERE transaction_reference = ?
	`, column)
	if _, err := q.ExecContext(ctx, query, value, conflict.Reference); err != nil {
		return fmt.Errorf("failed to apply conflict %s: %w", conflict.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) insertConflictTx(ctx context.Context, q queryable, conflict model.FieldConflict) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO field_conflicts (
			id, transaction_reference, field, stored_value,
			incoming_value, source_message_id, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		conflict.ID,
		conflict.Reference,
		conflict.Field,
		conflict.StoredValue,
		conflict.IncomingValue,
		conflict.SourceMessageID,
		conflict.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conflict for %s: %w", conflict.Reference, err)
	}
	return nil
}

func scanConflict(row rowScanner) (model.FieldConflict, error) {
	var conflict model.FieldConflict
	err := row.Scan(
		&conflict.ID,
		&conflict.Reference,
		&conflict.Field,
		&conflict.StoredValue,
		&conflict.IncomingValue,
		&conflict.SourceMessageID,
		&conflict.DetectedAt,
		&conflict.Resolved,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.FieldConflict{}, err
		}
		return model.FieldConflict{}, fmt.Errorf("failed to scan conflict: %w", err)
	}
	return conflict, nil
}
