package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/inward-bound/internal/cli"
)

func deadletterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletter",
		Short: "Inspect and retry dead-lettered messages",
		Long: `Messages that fail every extraction attempt up to the configured limit
are dead-lettered and never retried automatically. Use 'retry' to put
one back in the queue after fixing the underlying problem.`,
	}

	cmd.AddCommand(deadletterListCmd())
	cmd.AddCommand(deadletterRetryCmd())

	return cmd
}

func deadletterListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			entries, err := store.ListDeadLetters(ctx)
			if err != nil {
				return fmt.Errorf("failed to list dead letters: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println(cli.FormatSuccess("Dead letter queue is empty"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MESSAGE ID\tATTEMPTS\tLAST ERROR\tFIRST SEEN")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					e.MessageID, e.Attempts, truncate(e.LastError, 60),
					e.FirstSeenAt.Format("2006-01-02 15:04"))
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}

			fmt.Println(cli.FormatWarning(fmt.Sprintf("%d messages dead-lettered", len(entries))))
			return nil
		},
	}
}

func deadletterRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry MESSAGE_ID",
		Short: "Requeue a dead-lettered message for the next cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.RequeueDeadLetter(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to requeue %s: %w", args[0], err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Message %s requeued, it will be retried on the next cycle", args[0])))
			return nil
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
