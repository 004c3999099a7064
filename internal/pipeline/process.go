package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/Veraticus/inward-bound/internal/normalize"
	"github.com/Veraticus/inward-bound/internal/objstore"
	"github.com/Veraticus/inward-bound/internal/password"
	"github.com/Veraticus/inward-bound/internal/rules"
)

// CycleStats summarizes one pipeline pass.
type CycleStats struct {
	Fetched   int
	Succeeded int
	NoAction  int
	Failed    int
	// Skipped counts messages already at a final outcome from an earlier pass.
	Skipped int
	// RetryEligible counts failed messages still under the dead-letter
	// bound; they hold the cursor back for another attempt.
	RetryEligible int
	// Canceled counts messages left unmarked because the cycle was canceled.
	Canceled int
	// Errors counts messages that could not reach an outcome at all, for
	// example because the outcome could not be recorded. They also hold
	// the cursor back.
	Errors int
}

type messageResult struct {
	err      error
	outcome  model.Outcome
	skipped  bool
	canceled bool
	retry    bool
}

// ProcessMessages runs every message through classification and extraction,
// bounded by the configured worker count. Each message reaches its outcome
// independently; one message's failure never blocks its siblings.
func (p *Pipeline) ProcessMessages(ctx context.Context, messages []model.Message) *CycleStats {
	stats := &CycleStats{Fetched: len(messages)}
	if len(messages) == 0 {
		return stats
	}

	workChan := make(chan model.Message, len(messages))
	for _, msg := range messages {
		workChan <- msg
	}
	close(workChan)

	resultsChan := make(chan messageResult, len(messages))

	var wg sync.WaitGroup
	wg.Add(p.config.Workers)
	for i := 0; i < p.config.Workers; i++ {
		go func() {
			defer wg.Done()
			for msg := range workChan {
				resultsChan <- p.processMessage(ctx, msg)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for result := range resultsChan {
		switch {
		case result.canceled:
			stats.Canceled++
		case result.skipped:
			stats.Skipped++
		case result.outcome == model.OutcomeSuccess:
			stats.Succeeded++
		case result.outcome == model.OutcomeNoAction:
			stats.NoAction++
		case result.outcome == model.OutcomeFailed:
			stats.Failed++
			if result.retry {
				stats.RetryEligible++
			}
		default:
			stats.Errors++
		}
	}

	return stats
}

// processMessage takes one message to a terminal outcome. The outcome is
// recorded only after every side effect has completed, so a crash or
// cancellation mid-message leaves it unmarked and safe to replay.
func (p *Pipeline) processMessage(ctx context.Context, msg model.Message) messageResult {
	if err := ctx.Err(); err != nil {
		return messageResult{canceled: true, err: err}
	}

	processed, err := p.deps.Storage.IsProcessed(ctx, msg.ID)
	if err != nil {
		slog.Error("Processed check failed", "message_id", msg.ID, "error", err)
		return messageResult{err: err, canceled: ctx.Err() != nil}
	}
	if processed {
		slog.Debug("Skipping processed message", "message_id", msg.ID)
		return messageResult{skipped: true}
	}

	classification, ok := p.deps.Rules.Classify(msg)
	if !ok {
		slog.Debug("No rule matched", "message_id", msg.ID, "subject", msg.Subject)
		return p.conclude(ctx, msg, model.OutcomeNoAction, "")
	}

	slog.Info("Rule matched",
		"message_id", msg.ID,
		"rule", classification.Rule.Name,
		"category", classification.Category)

	var pathErrs []error
	succeeded := 0

	switch classification.Rule.Source {
	case rules.SourceBody:
		if err := p.processBody(ctx, msg, classification); err != nil {
			pathErrs = append(pathErrs, err)
		} else {
			succeeded++
		}
	default:
		if len(classification.Attachments) == 0 {
			slog.Debug("Rule selected no attachments", "message_id", msg.ID, "rule", classification.Rule.Name)
			return p.conclude(ctx, msg, model.OutcomeNoAction, "")
		}
		succeeded, pathErrs = p.processAttachments(ctx, msg, classification)
	}

	// A canceled message stays unmarked so the next cycle retries it from
	// scratch.
	if ctx.Err() != nil {
		return messageResult{canceled: true, err: ctx.Err()}
	}

	if succeeded > 0 {
		if len(pathErrs) > 0 {
			slog.Warn("Message partially extracted",
				"message_id", msg.ID,
				"succeeded", succeeded,
				"failed", len(pathErrs),
				"error", errors.Join(pathErrs...))
		}
		return p.conclude(ctx, msg, model.OutcomeSuccess, "")
	}
	return p.conclude(ctx, msg, model.OutcomeFailed, errors.Join(pathErrs...).Error())
}

// conclude records the terminal outcome for a message.
func (p *Pipeline) conclude(ctx context.Context, msg model.Message, outcome model.Outcome, lastError string) messageResult {
	if err := p.deps.Storage.MarkProcessed(ctx, msg.ID, outcome, lastError); err != nil {
		slog.Error("Failed to record outcome",
			"message_id", msg.ID,
			"outcome", outcome,
			"error", err)
		return messageResult{err: err, canceled: ctx.Err() != nil}
	}

	result := messageResult{outcome: outcome}
	if outcome == model.OutcomeFailed {
		slog.Warn("Message failed", "message_id", msg.ID, "error", lastError)
		// Still eligible for another pass unless the failure just
		// dead-lettered it. When the check itself fails, assume eligible;
		// an extra replay is harmless.
		deadLettered, err := p.deps.Storage.IsProcessed(ctx, msg.ID)
		if err != nil {
			slog.Error("Dead-letter check failed", "message_id", msg.ID, "error", err)
			result.retry = true
			return result
		}
		result.retry = !deadLettered
	}
	return result
}

// processAttachments runs every qualifying attachment concurrently and
// reports how many produced a durable ledger write.
func (p *Pipeline) processAttachments(ctx context.Context, msg model.Message, classification *rules.Classification) (int, []error) {
	var (
		mu        sync.Mutex
		errs      []error
		succeeded int
	)

	var wg sync.WaitGroup
	for _, att := range classification.Attachments {
		wg.Add(1)
		go func(att model.Attachment) {
			defer wg.Done()
			err := p.processAttachment(ctx, msg, classification, att)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", att.Filename, err))
				return
			}
			succeeded++
		}(att)
	}
	wg.Wait()

	return succeeded, errs
}

// processAttachment is one extraction path: decrypt if needed, flatten to
// text, archive the opened document, extract, and upsert. The ledger write
// comes last so nothing is marked durable before it exists.
func (p *Pipeline) processAttachment(ctx context.Context, msg model.Message, classification *rules.Classification, att model.Attachment) error {
	resolution, err := p.deps.Resolver.Resolve(ctx, password.Context{
		Message:    msg,
		Rule:       classification.Rule,
		Attachment: att,
	})
	if err != nil {
		return err
	}
	slog.Debug("Attachment opened",
		"message_id", msg.ID,
		"filename", att.Filename,
		"encrypted", resolution.Encrypted,
		"attempts", resolution.Attempts)

	raw, err := p.deps.Texter.Text(resolution.Data)
	if err != nil {
		return err
	}

	text := normalize.Text(raw)
	if classification.Rule.TrimFinancial {
		text = normalize.FinancialWindow(text, p.config.BodyWindow)
	}

	if classification.Rule.Upload {
		if err := p.archive(ctx, msg, att.Filename, resolution.Data); err != nil {
			return err
		}
	}

	record, err := p.deps.Extractor.Extract(ctx, text, classification.Category)
	if err != nil {
		return err
	}
	record.SourceMessageID = msg.ID

	return p.upsert(ctx, *record, msg.ID)
}

// processBody extracts from the message body instead of an attachment.
func (p *Pipeline) processBody(ctx context.Context, msg model.Message, classification *rules.Classification) error {
	text := normalize.Body(msg.BodyText)
	if classification.Rule.TrimFinancial {
		text = normalize.FinancialWindow(text, p.config.BodyWindow)
	}

	record, err := p.deps.Extractor.Extract(ctx, text, classification.Category)
	if err != nil {
		return err
	}
	record.SourceMessageID = msg.ID

	return p.upsert(ctx, *record, msg.ID)
}

func (p *Pipeline) upsert(ctx context.Context, record model.TransactionRecord, messageID string) error {
	result, err := p.deps.Storage.UpsertTransaction(ctx, record)
	if err != nil {
		return err
	}

	if len(result.Conflicts) > 0 {
		fields := make([]string, len(result.Conflicts))
		for i, c := range result.Conflicts {
			fields[i] = c.Field
		}
		slog.Warn("Field conflicts recorded",
			"reference", record.TransactionReference,
			"message_id", messageID,
			"fields", strings.Join(fields, ","))
	}

	slog.Info("Transaction recorded",
		"reference", record.TransactionReference,
		"status", result.Status,
		"message_id", messageID)
	return nil
}

// archive uploads the opened document and records where it went. The upload
// happens before extraction so the source document is preserved even when
// extraction later fails.
func (p *Pipeline) archive(ctx context.Context, msg model.Message, filename string, data []byte) error {
	if p.deps.Archive == nil {
		return nil
	}

	name := objstore.ObjectName(p.config.ArchivePrefix, sanitizeObjectName(msg.ID), filename)
	objectPath, err := p.deps.Archive.Upload(ctx, name, data)
	if err != nil {
		return fmt.Errorf("archiving %s: %w", filename, err)
	}

	doc := model.ArchivedDocument{
		MessageID:  msg.ID,
		Filename:   filename,
		ObjectPath: objectPath,
	}
	if err := p.deps.Storage.RecordArchivedDocument(ctx, doc); err != nil {
		return err
	}
	return nil
}

// sanitizeObjectName keeps message IDs usable as object path segments.
func sanitizeObjectName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_' || r == '@':
			return r
		default:
			return '-'
		}
	}, s)
}
