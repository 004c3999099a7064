package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/inward-bound/internal/cli"
	"github.com/Veraticus/inward-bound/internal/objstore"
	"github.com/Veraticus/inward-bound/internal/service"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the transaction ledger",
	}

	cmd.AddCommand(ledgerListCmd())
	cmd.AddCommand(ledgerShowCmd())
	cmd.AddCommand(ledgerFetchCmd())

	return cmd
}

func ledgerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger transactions",
		RunE:  runLedgerList,
	}

	cmd.Flags().String("category", "", "filter by category")
	cmd.Flags().String("currency", "", "filter by currency code")
	cmd.Flags().String("since", "", "only transactions on or after this date (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 50, "maximum number of transactions to show")

	return cmd
}

func runLedgerList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	filter := service.TransactionFilter{}
	filter.Category, _ = cmd.Flags().GetString("category")
	filter.Currency, _ = cmd.Flags().GetString("currency")
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	if since, _ := cmd.Flags().GetString("since"); since != "" {
		start, err := time.Parse("2006-01-02", since)
		if err != nil {
			return fmt.Errorf("invalid --since date %q: %w", since, err)
		}
		filter.StartDate = &start
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.GetTransactions(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to query ledger: %w", err)
	}

	if len(records) == 0 {
		fmt.Println(cli.FormatInfo("No transactions match the filter"))
		return nil
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("%s Ledger", cli.BankIcon)))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REFERENCE\tVALUE DATE\tAMOUNT\tCURRENCY\tREMITTER\tCATEGORY")
	for _, rec := range records {
		amount := ""
		if rec.Amount.Valid {
			amount = rec.Amount.Decimal.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.TransactionReference,
			rec.ValueDate.Format("2006-01-02"),
			amount,
			rec.Currency,
			rec.Remitter,
			rec.Category)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("%d transactions", len(records))))
	return nil
}

func ledgerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show REFERENCE",
		Short: "Show one transaction in full",
		Args:  cobra.ExactArgs(1),
		RunE:  runLedgerShow,
	}
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reference := args[0]

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	rec, err := store.GetTransaction(ctx, reference)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", reference, err)
	}

	amount := "(not extracted)"
	if rec.Amount.Valid {
		amount = rec.Amount.Decimal.String()
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("%s Transaction %s", cli.BankIcon, rec.TransactionReference)))
	fmt.Printf("  Value date:   %s\n", rec.ValueDate.Format("2006-01-02"))
	fmt.Printf("  Amount:       %s %s\n", amount, rec.Currency)
	fmt.Printf("  Remitter:     %s\n", rec.Remitter)
	fmt.Printf("  Beneficiary:  %s\n", rec.Beneficiary)
	fmt.Printf("  Purpose code: %s\n", rec.PurposeCode)
	fmt.Printf("  Category:     %s\n", rec.Category)
	fmt.Printf("  Source:       %s\n", rec.SourceMessageID)
	fmt.Printf("  Extracted at: %s\n", rec.ExtractedAt.Format(time.RFC3339))

	docs, err := store.ListArchivedDocuments(ctx, rec.SourceMessageID)
	if err != nil {
		return fmt.Errorf("failed to list archived documents: %w", err)
	}
	if len(docs) > 0 {
		fmt.Println(cli.SubtleStyle.Render("  Archived documents:"))
		for _, doc := range docs {
			fmt.Printf("    %s %s -> %s\n", cli.FolderIcon, doc.Filename, doc.ObjectPath)
		}
	}

	return nil
}

func ledgerFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch REFERENCE",
		Short: "Download a transaction's archived source documents",
		Long: `Retrieve the archived documents behind a ledger entry from the
configured archive backend and write them to a local directory.`,
		Args: cobra.ExactArgs(1),
		RunE: runLedgerFetch,
	}

	cmd.Flags().String("out", ".", "directory to write the documents into")

	return cmd
}

func runLedgerFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reference := args[0]
	outDir, _ := cmd.Flags().GetString("out")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	rec, err := store.GetTransaction(ctx, reference)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", reference, err)
	}

	docs, err := store.ListArchivedDocuments(ctx, rec.SourceMessageID)
	if err != nil {
		return fmt.Errorf("failed to list archived documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Println(cli.FormatInfo("No archived documents for " + reference))
		return nil
	}

	archive, err := initArchive(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}
	fetcher, ok := archive.(objstore.Fetcher)
	if !ok {
		return fmt.Errorf("the configured archive backend cannot fetch documents back")
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, doc := range docs {
		data, fetchErr := fetcher.Fetch(ctx, doc.ObjectPath)
		if fetchErr != nil {
			return fmt.Errorf("failed to fetch %s: %w", doc.Filename, fetchErr)
		}
		target := filepath.Join(outDir, filepath.Base(doc.Filename))
		if writeErr := os.WriteFile(target, data, 0o640); writeErr != nil {
			return fmt.Errorf("failed to write %s: %w", target, writeErr)
		}
		fmt.Printf("  %s %s -> %s\n", cli.FolderIcon, doc.Filename, target)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Fetched %d documents for %s", len(docs), reference)))
	return nil
}
