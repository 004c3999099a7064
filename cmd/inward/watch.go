package main

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultSchedule = "*/30 * * * * *"

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the mailbox on a schedule",
		Long: `Run ingestion cycles on a cron schedule until interrupted. Cycles
never overlap: if one is still running when the next fires, the new
one is skipped.`,
		RunE: runWatch,
	}

	cmd.Flags().String("schedule", "", "cron schedule with seconds (default: every 30 seconds)")
	_ = viper.BindPFlag("watch.schedule", cmd.Flags().Lookup("schedule"))

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	schedule := viper.GetString("watch.schedule")
	if schedule == "" {
		schedule = defaultSchedule
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	box, err := initMailbox()
	if err != nil {
		return fmt.Errorf("failed to initialize mailbox: %w", err)
	}

	var running sync.Mutex
	scheduler := cron.New(cron.WithSeconds())
	_, err = scheduler.AddFunc(schedule, func() {
		if !running.TryLock() {
			slog.Debug("Previous cycle still running, skipping tick")
			return
		}
		defer running.Unlock()

		if ctx.Err() != nil {
			return
		}
		if _, err := runCycle(ctx, store, box); err != nil {
			slog.Error("Cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	slog.Info("Watching mailbox", "schedule", schedule)
	scheduler.Start()

	<-ctx.Done()

	slog.Info("Stopping watcher, waiting for in-flight cycle")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	// Take the lock to be sure the last cycle has fully drained.
	running.Lock()
	running.Unlock() //nolint:staticcheck // lock ordering is intentional

	return nil
}
