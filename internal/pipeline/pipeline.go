// Package pipeline orchestrates one pass over the mailbox: fetch new
// messages, classify each against the rule set, extract transactions from
// the selected content, and record outcomes so replays are harmless.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/Veraticus/inward-bound/internal/normalize"
	"github.com/Veraticus/inward-bound/internal/password"
	"github.com/Veraticus/inward-bound/internal/rules"
	"github.com/Veraticus/inward-bound/internal/service"
)

// TextExtractor flattens a document into plain text in reading order.
type TextExtractor interface {
	Text(data []byte) (string, error)
}

// Extractor turns normalized text into a structured transaction record.
type Extractor interface {
	Extract(ctx context.Context, text, category string) (*model.TransactionRecord, error)
}

// Deps bundles the collaborators a pipeline needs. Archive and Mailbox may
// be nil: without an archive uploads are skipped, and without a mailbox
// only ProcessMessages is usable.
type Deps struct {
	Rules     *rules.Engine
	Resolver  *password.Resolver
	Texter    TextExtractor
	Extractor Extractor
	Storage   service.Storage
	Archive   service.ObjectStore
	Mailbox   service.Mailbox
}

// Config holds configuration options for the pipeline.
type Config struct {
	// RulesPath, when set, is reloaded at the start of every cycle so rule
	// edits take effect without a restart.
	RulesPath string
	// Mailbox names the folder being watched; it keys the stored cursor.
	Mailbox string
	// ArchivePrefix is prepended to uploaded object names.
	ArchivePrefix string
	// Workers bounds how many messages are processed concurrently.
	Workers int
	// BodyWindow caps how many characters of trimmed body text are handed
	// to extraction.
	BodyWindow int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Mailbox:       "INBOX",
		ArchivePrefix: "advices",
		Workers:       4,
		BodyWindow:    normalize.DefaultWindowLimit,
	}
}

// Pipeline coordinates classification, decryption, extraction, and
// persistence for inbound messages.
type Pipeline struct {
	deps   Deps
	config Config
}

// New creates a pipeline with the default configuration.
func New(deps Deps) *Pipeline {
	return NewWithConfig(deps, DefaultConfig())
}

// NewWithConfig creates a pipeline with custom configuration.
func NewWithConfig(deps Deps, config Config) *Pipeline {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.BodyWindow <= 0 {
		config.BodyWindow = normalize.DefaultWindowLimit
	}
	if config.Mailbox == "" {
		config.Mailbox = DefaultConfig().Mailbox
	}
	return &Pipeline{deps: deps, config: config}
}

// Run executes one fetch-process-advance cycle against the mailbox.
//
// The stored cursor only advances when every fetched message reached a
// final outcome: messages that failed but remain eligible for another
// attempt hold the cursor back so the next cycle refetches them, and a
// canceled cycle leaves the cursor untouched. Replayed messages that
// already reached an outcome are skipped by the processed check, so
// holding the cursor is cheap.
func (p *Pipeline) Run(ctx context.Context) (*CycleStats, error) {
	if p.deps.Mailbox == nil {
		return nil, fmt.Errorf("pipeline has no mailbox configured")
	}

	if err := p.reloadRules(); err != nil {
		return nil, err
	}
	if p.deps.Resolver != nil {
		if err := p.deps.Resolver.Reload(); err != nil {
			slog.Warn("Password sources not refreshed, continuing with previous", "error", err)
		}
	}

	cursor, err := p.deps.Storage.GetCursor(ctx, p.config.Mailbox)
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}

	messages, next, err := p.deps.Mailbox.FetchNewMessages(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	slog.Info("Fetched messages", "mailbox", p.config.Mailbox, "count", len(messages))

	stats := p.ProcessMessages(ctx, messages)

	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	if stats.RetryEligible > 0 || stats.Errors > 0 {
		slog.Info("Holding cursor for another attempt",
			"mailbox", p.config.Mailbox,
			"retry_eligible", stats.RetryEligible,
			"errors", stats.Errors)
		return stats, nil
	}
	if next != cursor {
		if err := p.deps.Storage.SetCursor(ctx, p.config.Mailbox, next); err != nil {
			return stats, fmt.Errorf("failed to advance cursor: %w", err)
		}
	}

	slog.Info("Cycle complete",
		"fetched", stats.Fetched,
		"succeeded", stats.Succeeded,
		"no_action", stats.NoAction,
		"failed", stats.Failed,
		"skipped", stats.Skipped)

	return stats, nil
}

// reloadRules refreshes the rule set from disk. A load failure is fatal
// only when no usable snapshot exists yet; otherwise the previous rules
// stay in effect.
func (p *Pipeline) reloadRules() error {
	if p.config.RulesPath == "" {
		return nil
	}
	if err := p.deps.Rules.LoadFile(p.config.RulesPath); err != nil {
		if len(p.deps.Rules.Rules()) == 0 {
			return fmt.Errorf("no usable rules: %w", err)
		}
		slog.Warn("Rule reload failed, keeping previous rules",
			"path", p.config.RulesPath,
			"error", err)
	}
	return nil
}
