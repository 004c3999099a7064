package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/inward-bound/internal/cli"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch and process new messages once",
		Long: `Run one ingestion cycle: fetch messages that arrived since the last
cycle, classify them against the ruleset, decrypt and extract their
transaction details, and upsert the results into the ledger.`,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	box, err := initMailbox()
	if err != nil {
		return fmt.Errorf("failed to initialize mailbox: %w", err)
	}

	stats, err := runCycle(ctx, store, box)
	if err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf(
		"Processed %d messages: %d succeeded, %d no action, %d failed, %d skipped",
		stats.Fetched, stats.Succeeded, stats.NoAction, stats.Failed, stats.Skipped)))
	return nil
}
