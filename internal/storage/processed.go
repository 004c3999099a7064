package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/inward-bound/internal/common"
	"github.com/Veraticus/inward-bound/internal/model"
)

// IsProcessed reports whether a message should be skipped. Successful and
// no-action outcomes are final. Failed messages remain eligible for
// reprocessing until their attempt count reaches the dead-letter limit.
func (s *SQLiteStorage) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(messageID, "messageID"); err != nil {
		return false, err
	}

	var (
		outcome  string
		attempts int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT outcome, attempts FROM processed_messages WHERE message_id = ?
	`, messageID).Scan(&outcome, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query processed message %s: %w", messageID, err)
	}

	if model.Outcome(outcome) == model.OutcomeFailed {
		return attempts >= s.deadLetterLimit, nil
	}
	return true, nil
}

// MarkProcessed records the outcome of handling a message. Failed outcomes
// increment the attempt count; once it reaches the dead-letter limit the
// message is no longer retried.
func (s *SQLiteStorage) MarkProcessed(ctx context.Context, messageID string, outcome model.Outcome, lastError string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(messageID, "messageID"); err != nil {
		return err
	}
	if !outcome.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_messages (message_id, outcome, attempts, last_error)
		VALUES (?, ?, CASE WHEN ? = 'failed' THEN 1 ELSE 0 END, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			outcome = excluded.outcome,
			attempts = CASE WHEN excluded.outcome = 'failed'
				THEN processed_messages.attempts + 1
				ELSE processed_messages.attempts END,
			last_error = excluded.last_error,
			updated_at = CURRENT_TIMESTAMP
	`, messageID, string(outcome), string(outcome), lastError)
	if err != nil {
		return fmt.Errorf("failed to mark message %s processed: %w", messageID, err)
	}
	return nil
}

// GetProcessedEntry retrieves the tracking entry for a message.
func (s *SQLiteStorage) GetProcessedEntry(ctx context.Context, messageID string) (*model.ProcessedEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(messageID, "messageID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT message_id, outcome, attempts, last_error, first_seen_at, updated_at
		FROM processed_messages
		WHERE message_id = ?
	`, messageID)

	entry, err := scanProcessedEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: processed entry %s", common.ErrNotFound, messageID)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListDeadLetters returns failed messages that have exhausted their
// reprocessing attempts.
func (s *SQLiteStorage) ListDeadLetters(ctx context.Context) ([]model.ProcessedEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, outcome, attempts, last_error, first_seen_at, updated_at
		FROM processed_messages
		WHERE outcome = 'failed' AND attempts >= ?
		ORDER BY updated_at DESC
	`, s.deadLetterLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.ProcessedEntry
	for rows.Next() {
		entry, err := scanProcessedEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// RequeueDeadLetter resets a failed message so the next cycle picks it up
// again. Only failed messages can be requeued.
func (s *SQLiteStorage) RequeueDeadLetter(ctx context.Context, messageID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(messageID, "messageID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE processed_messages
		SET attempts = 0, last_error = '', updated_at = CURRENT_TIMESTAMP
		WHERE message_id = ? AND outcome = 'failed'
	`, messageID)
	if err != nil {
		return fmt.Errorf("failed to requeue message %s: %w", messageID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check requeue result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: no failed message %s", common.ErrNotFound, messageID)
	}
	return nil
}

func scanProcessedEntry(row rowScanner) (model.ProcessedEntry, error) {
	var (
		entry   model.ProcessedEntry
		outcome string
	)
	err := row.Scan(
		&entry.MessageID,
		&outcome,
		&entry.Attempts,
		&entry.LastError,
		&entry.FirstSeenAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ProcessedEntry{}, err
		}
		return model.ProcessedEntry{}, fmt.Errorf("failed to scan processed entry: %w", err)
	}
	entry.Outcome = model.Outcome(outcome)
	return entry, nil
}
