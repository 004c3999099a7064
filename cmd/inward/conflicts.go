package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/inward-bound/internal/cli"
	"github.com/Veraticus/inward-bound/internal/tui"
)

func conflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and resolve ledger field conflicts",
		Long: `Conflicts arise when two messages carry the same transaction reference
but disagree on a field. The stored value wins until a conflict is
resolved one way or the other.`,
	}

	cmd.AddCommand(conflictsListCmd())
	cmd.AddCommand(conflictsResolveCmd())
	cmd.AddCommand(conflictsReviewCmd())

	return cmd
}

func conflictsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open conflicts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			conflicts, err := store.ListOpenConflicts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list conflicts: %w", err)
			}

			if len(conflicts) == 0 {
				fmt.Println(cli.FormatSuccess("No open conflicts"))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREFERENCE\tFIELD\tSTORED\tINCOMING\tDETECTED")
			for _, c := range conflicts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					c.ID, c.Reference, c.Field,
					c.StoredValue, c.IncomingValue,
					c.DetectedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func conflictsResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve ID",
		Short: "Resolve one conflict by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			keep, _ := cmd.Flags().GetString("keep")
			var keepIncoming bool
			switch keep {
			case "stored":
				keepIncoming = false
			case "incoming":
				keepIncoming = true
			default:
				return fmt.Errorf("--keep must be 'stored' or 'incoming', got %q", keep)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.ResolveConflict(ctx, args[0], keepIncoming); err != nil {
				return fmt.Errorf("failed to resolve conflict %s: %w", args[0], err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Conflict %s resolved, keeping %s value", args[0], keep)))
			return nil
		},
	}

	cmd.Flags().String("keep", "", "which value wins: 'stored' or 'incoming' (required)")
	_ = cmd.MarkFlagRequired("keep")

	return cmd
}

func conflictsReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Review open conflicts interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			return tui.Run(ctx, store)
		},
	}
}
