package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/inward-bound/internal/cli"
	"github.com/Veraticus/inward-bound/internal/config"
	"github.com/Veraticus/inward-bound/internal/mailbox"
)

const backfillBatchSize = 25

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Import messages from an mbox archive",
		Long: `Run the ingestion pipeline over an exported mbox archive. Progress
is tracked per file, so an interrupted backfill resumes where it
stopped, and messages already in the processed set are skipped.`,
		RunE: runBackfill,
	}

	cmd.Flags().String("mbox", "", "path to the mbox file (required)")
	_ = cmd.MarkFlagRequired("mbox")

	return cmd
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	mboxPath, _ := cmd.Flags().GetString("mbox")
	mboxPath = config.ExpandPath(mboxPath)
	absPath, err := filepath.Abs(mboxPath)
	if err != nil {
		return fmt.Errorf("resolving mbox path: %w", err)
	}

	source, err := mailbox.NewMboxSource(absPath)
	if err != nil {
		return err
	}

	total, err := source.Count()
	if err != nil {
		return fmt.Errorf("counting mbox messages: %w", err)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	// The cursor keys on the file so each archive backfills independently.
	cursorKey := "mbox:" + absPath

	cursor, err := store.GetCursor(ctx, cursorKey)
	if err != nil {
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	messages, next, err := source.FetchNewMessages(ctx, cursor)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		fmt.Println(cli.FormatInfo("Nothing to backfill, archive already imported"))
		return nil
	}

	p, cleanup, err := buildPipeline(ctx, store, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Backfilling"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	done := total - len(messages)
	_ = bar.Set(done)

	var succeeded, failed int
	for start := 0; start < len(messages); start += backfillBatchSize {
		if ctx.Err() != nil {
			break
		}

		end := start + backfillBatchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]

		stats := p.ProcessMessages(ctx, batch)
		succeeded += stats.Succeeded
		failed += stats.Failed
		done += len(batch)
		_ = bar.Set(done)

		// Advance the cursor batch by batch so an interrupt resumes here.
		if ctx.Err() == nil && stats.Errors == 0 {
			consumed := total - len(messages) + end
			if err := store.SetCursor(ctx, cursorKey, strconv.Itoa(consumed)); err != nil {
				return fmt.Errorf("failed to advance cursor: %w", err)
			}
		}
	}
	_ = bar.Finish()

	if ctx.Err() == nil {
		if err := store.SetCursor(ctx, cursorKey, next); err != nil {
			return fmt.Errorf("failed to advance cursor: %w", err)
		}
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf(
		"Backfill complete: %d succeeded, %d failed, %d total in archive",
		succeeded, failed, total)))
	return ctx.Err()
}
