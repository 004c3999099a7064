package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/inward-bound/internal/model"
)

// RecordArchivedDocument records that an attachment was uploaded to object
// storage, keyed by the message it arrived on.
func (s *SQLiteStorage) RecordArchivedDocument(ctx context.Context, doc model.ArchivedDocument) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(doc.MessageID, "messageID"); err != nil {
		return err
	}
	if err := validateString(doc.ObjectPath, "objectPath"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_documents (message_id, filename, object_path, uploaded_at)
		VALUES (?, ?, ?, ?)
	`, doc.MessageID, doc.Filename, doc.ObjectPath, nullTime(doc.UploadedAt))
	if err != nil {
		return fmt.Errorf("failed to record archived document %s: %w", doc.Filename, err)
	}
	return nil
}

// ListArchivedDocuments returns the documents archived for a message.
func (s *SQLiteStorage) ListArchivedDocuments(ctx context.Context, messageID string) ([]model.ArchivedDocument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(messageID, "messageID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, filename, object_path, uploaded_at
		FROM archived_documents
		WHERE message_id = ?
		ORDER BY id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []model.ArchivedDocument
	for rows.Next() {
		var doc model.ArchivedDocument
		if err := rows.Scan(&doc.MessageID, &doc.Filename, &doc.ObjectPath, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived document: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}
