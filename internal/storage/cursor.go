package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetCursor returns the stored fetch position for a mailbox, or the empty
// string when the mailbox has never been fetched.
func (s *SQLiteStorage) GetCursor(ctx context.Context, mailbox string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(mailbox, "mailbox"); err != nil {
		return "", err
	}

	var cursor string
	err := s.db.QueryRowContext(ctx, `
		SELECT cursor FROM mailbox_cursors WHERE mailbox = ?
	`, mailbox).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query cursor for %s: %w", mailbox, err)
	}
	return cursor, nil
}

// SetCursor stores the fetch position for a mailbox.
func (s *SQLiteStorage) SetCursor(ctx context.Context, mailbox, cursor string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(mailbox, "mailbox"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mailbox_cursors (mailbox, cursor, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(mailbox) DO UPDATE SET
			cursor = excluded.cursor,
			updated_at = CURRENT_TIMESTAMP
	`, mailbox, cursor)
	if err != nil {
		return fmt.Errorf("failed to set cursor for %s: %w", mailbox, err)
	}
	return nil
}
