package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/inward-bound/internal/cli"
	"github.com/Veraticus/inward-bound/internal/config"
	"github.com/Veraticus/inward-bound/internal/service"
	"github.com/Veraticus/inward-bound/internal/sheets"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger to external systems",
	}

	cmd.AddCommand(exportSheetsCmd())

	return cmd
}

func exportSheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Export the ledger to Google Sheets",
		Long: `Write the full transaction ledger to a Google Sheets spreadsheet,
newest value date first. The spreadsheet is created on first export;
subsequent exports replace its contents.

Requires either a service account key (sheets.service_account_path)
or OAuth2 credentials (sheets.client_id, sheets.client_secret plus a
refresh token or a token obtained via --authorize).`,
		RunE: runExportSheets,
	}

	cmd.Flags().Bool("authorize", false, "run the interactive Google consent flow and save the token before exporting")

	return cmd
}

func runExportSheets(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	sheetsConfig, err := config.LoadSheetsConfig()
	if err != nil {
		return fmt.Errorf("sheets configuration: %w", err)
	}

	if authorize, _ := cmd.Flags().GetBool("authorize"); authorize {
		if _, err := sheets.Authorize(ctx, *sheetsConfig); err != nil {
			return fmt.Errorf("authorization failed: %w", err)
		}
		fmt.Println(cli.FormatSuccess("Google Sheets access authorized"))
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.GetTransactions(ctx, service.TransactionFilter{})
	if err != nil {
		return fmt.Errorf("failed to query ledger: %w", err)
	}

	if len(records) == 0 {
		fmt.Println(cli.FormatInfo("Ledger is empty, nothing to export"))
		return nil
	}

	writer, err := sheets.NewWriter(ctx, *sheetsConfig, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create sheets writer: %w", err)
	}

	fmt.Println(cli.FormatInfo(fmt.Sprintf("%s Exporting %d transactions...", cli.ChartIcon, len(records))))

	if err := writer.Export(ctx, records); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Println(cli.FormatSuccess("Ledger exported to Google Sheets"))
	return nil
}
