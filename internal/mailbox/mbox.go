package mailbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/Veraticus/inward-bound/internal/model"
)

// MboxSource reads messages from an mbox archive file, for backfilling
// the ledger from exported mail. The cursor is the count of messages
// already consumed from the file, so an interrupted backfill resumes where
// it stopped.
type MboxSource struct {
	path string
}

// NewMboxSource creates a source over the given mbox file.
func NewMboxSource(path string) (*MboxSource, error) {
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("mbox file: %w", err)
	}
	return &MboxSource{path: path}, nil
}

// Count returns the total number of messages in the file, for progress
// reporting.
func (s *MboxSource) Count() (int, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := mboxlib.NewReader(file)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}
		if _, err := io.Copy(io.Discard, msgReader); err != nil {
			count++
			continue
		}
		count++
	}
}

// FetchNewMessages returns every message past the cursor position. The
// whole remainder of the file is returned in one batch; callers that want
// bounded batches should process and persist the cursor between calls.
func (s *MboxSource) FetchNewMessages(ctx context.Context, cursor string) ([]model.Message, string, error) {
	skip := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("malformed mbox cursor %q: %w", cursor, err)
		}
		skip = n
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, "", fmt.Errorf("open mbox: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := mboxlib.NewReader(file)
	var messages []model.Message
	idx := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, "", fmt.Errorf("mbox message %d: %w", idx, err)
		}

		if idx < skip {
			_, _ = io.Copy(io.Discard, msgReader)
			idx++
			continue
		}
		idx++

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			slog.Warn("Unreadable mbox message, skipping", "index", idx-1, "error", err)
			continue
		}

		msg, err := ParseMessage(raw)
		if err != nil {
			slog.Warn("Unparseable mbox message, skipping", "index", idx-1, "error", err)
			continue
		}
		if msg.ID == "" {
			// Archives occasionally lack Message-Id; the content hash is
			// stable across re-imports of the same file.
			sum := sha256.Sum256(raw)
			msg.ID = "mbox-" + hex.EncodeToString(sum[:8])
		}
		messages = append(messages, msg)
	}

	return messages, strconv.Itoa(idx), nil
}
