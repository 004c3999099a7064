package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/inward-bound/internal/cli"
	"github.com/Veraticus/inward-bound/internal/config"
	"github.com/Veraticus/inward-bound/internal/reconcile"
	"github.com/Veraticus/inward-bound/internal/service"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Match ledger records against actual bank credits",
		Long: `Compare the extracted ledger against credits that actually landed on
the bank account, from either an OFX/QFX statement export or a linked
Plaid account. Reference matches are taken first; remaining records
fall back to amount-and-date matching.`,
		RunE: runReconcile,
	}

	cmd.Flags().String("ofx", "", "path to an OFX/QFX statement export")
	cmd.Flags().Bool("plaid", false, "fetch credits from the configured Plaid account")
	cmd.Flags().String("start", "", "start of the reconciliation window (YYYY-MM-DD, default 30 days ago)")
	cmd.Flags().String("end", "", "end of the reconciliation window (YYYY-MM-DD, default today)")

	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	ofxPath, _ := cmd.Flags().GetString("ofx")
	usePlaid, _ := cmd.Flags().GetBool("plaid")
	if usePlaid == (ofxPath != "") {
		return fmt.Errorf("exactly one of --ofx or --plaid is required")
	}

	start, end, err := reconcileWindow(cmd)
	if err != nil {
		return err
	}

	var credits []reconcile.BankCredit
	if ofxPath != "" {
		credits, err = loadOFXCredits(ofxPath)
	} else {
		credits, err = fetchPlaidCredits(ctx, start, end)
	}
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.GetTransactions(ctx, service.TransactionFilter{
		StartDate: &start,
		EndDate:   &end,
	})
	if err != nil {
		return fmt.Errorf("failed to query ledger: %w", err)
	}

	report := reconcile.Reconcile(records, credits)
	printReport(report)
	return nil
}

func reconcileWindow(cmd *cobra.Command) (start, end time.Time, err error) {
	end = time.Now()
	start = end.AddDate(0, 0, -30)

	if v, _ := cmd.Flags().GetString("start"); v != "" {
		start, err = time.Parse("2006-01-02", v)
		if err != nil {
			return start, end, fmt.Errorf("invalid --start date %q: %w", v, err)
		}
	}
	if v, _ := cmd.Flags().GetString("end"); v != "" {
		end, err = time.Parse("2006-01-02", v)
		if err != nil {
			return start, end, fmt.Errorf("invalid --end date %q: %w", v, err)
		}
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("--end is before --start")
	}
	return start, end, nil
}

func loadOFXCredits(path string) ([]reconcile.BankCredit, error) {
	f, err := os.Open(config.ExpandPath(path)) //nolint:gosec // user-supplied statement path
	if err != nil {
		return nil, fmt.Errorf("failed to open statement: %w", err)
	}
	defer func() { _ = f.Close() }()

	credits, err := reconcile.ParseOFXCredits(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse statement: %w", err)
	}
	return credits, nil
}

func fetchPlaidCredits(ctx context.Context, start, end time.Time) ([]reconcile.BankCredit, error) {
	cfg := reconcile.PlaidConfig{
		ClientID:    viper.GetString("plaid.client_id"),
		Secret:      viper.GetString("plaid.secret"),
		Environment: viper.GetString("plaid.environment"),
		AccessToken: viper.GetString("plaid.access_token"),
	}

	feed, err := reconcile.NewPlaidFeed(cfg)
	if err != nil {
		return nil, err
	}

	return feed.FetchCredits(ctx, start, end)
}

func printReport(report reconcile.Report) {
	fmt.Println(cli.FormatTitle(fmt.Sprintf("%s Reconciliation", cli.ChartIcon)))

	for _, m := range report.Matched {
		how := "by reference"
		if !m.ByReference {
			how = "by amount/date"
		}
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s  %s %s on %s (%s)",
			m.Record.TransactionReference,
			m.Credit.Amount.String(), m.Credit.Currency,
			m.Credit.Date.Format("2006-01-02"), how)))
	}

	for _, rec := range report.UnmatchedLedger {
		amount := "?"
		if rec.Amount.Valid {
			amount = rec.Amount.Decimal.String()
		}
		fmt.Println(cli.FormatWarning(fmt.Sprintf("%s  %s %s never landed on the account",
			rec.TransactionReference, amount, rec.Currency)))
	}

	for _, credit := range report.UnmatchedCredits {
		fmt.Println(cli.FormatInfo(fmt.Sprintf("Credit %s %s on %s has no ledger record (%s)",
			credit.Amount.String(), credit.Currency,
			credit.Date.Format("2006-01-02"), credit.Description)))
	}

	fmt.Printf("\n%d matched, %d ledger records unmatched, %d credits unmatched\n",
		len(report.Matched), len(report.UnmatchedLedger), len(report.UnmatchedCredits))
}
