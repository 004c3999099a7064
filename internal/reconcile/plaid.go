package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/inward-bound/internal/common"
	"github.com/Veraticus/inward-bound/internal/service"
)

// PlaidConfig holds Plaid API configuration.
type PlaidConfig struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	AccessToken string
}

// Validate ensures all required fields are present.
func (c *PlaidConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("plaid client ID is required")
	}
	if c.Secret == "" {
		return fmt.Errorf("plaid secret is required")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("plaid access token is required")
	}
	switch c.Environment {
	case "sandbox", "production":
		return nil
	case "":
		return fmt.Errorf("plaid environment is required")
	default:
		return fmt.Errorf("invalid Plaid environment: must be sandbox or production")
	}
}

// PlaidFeed fetches incoming credits from a linked bank account.
type PlaidFeed struct {
	client      *plaid.APIClient
	retryOpts   service.RetryOptions
	accessToken string
}

// NewPlaidFeed creates a feed client for the configured account.
func NewPlaidFeed(cfg PlaidConfig) (*PlaidFeed, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	return &PlaidFeed{
		client:      plaid.NewAPIClient(configuration),
		accessToken: cfg.AccessToken,
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// FetchCredits returns the incoming credits posted within the date range.
// Plaid reports money leaving the account as positive amounts, so credits
// are the negative entries.
func (f *PlaidFeed) FetchCredits(ctx context.Context, startDate, endDate time.Time) ([]BankCredit, error) {
	if startDate.After(endDate) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	var all []plaid.Transaction
	offset := int32(0)
	const pageSize = int32(500)

	for {
		var page []plaid.Transaction

		retryErr := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsGetRequest(
				f.accessToken,
				startDate.Format("2006-01-02"),
				endDate.Format("2006-01-02"),
			)
			request.SetOptions(plaid.TransactionsGetRequestOptions{
				Count:  plaid.PtrInt32(pageSize),
				Offset: plaid.PtrInt32(offset),
			})

			resp, _, err := f.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
			if err != nil {
				if plaidError := extractPlaidError(err); plaidError != nil {
					if plaidError.ErrorCode == "RATE_LIMIT_EXCEEDED" {
						slog.Warn("Plaid rate limit hit, will retry", "error", plaidError.ErrorMessage)
						return &common.RetryableError{Err: err, Retryable: true}
					}
					return fmt.Errorf("plaid API error: %s - %s", plaidError.ErrorCode, plaidError.ErrorMessage)
				}
				return fmt.Errorf("failed to fetch transactions: %w", err)
			}

			page = resp.GetTransactions()
			return nil
		}, f.retryOpts)
		if retryErr != nil {
			return nil, retryErr
		}

		all = append(all, page...)
		if len(page) < int(pageSize) {
			break
		}
		offset += pageSize
	}

	var credits []BankCredit
	for _, txn := range all {
		if txn.GetAmount() >= 0 {
			continue
		}

		date, err := time.Parse("2006-01-02", txn.GetDate())
		if err != nil {
			date = time.Time{}
		}

		currency := ""
		if iso := txn.GetIsoCurrencyCode(); iso != "" {
			currency = iso
		}

		credits = append(credits, BankCredit{
			ID:          txn.GetTransactionId(),
			Date:        date,
			Description: txn.GetName(),
			Currency:    currency,
			Amount:      decimal.NewFromFloat(-txn.GetAmount()).Round(2),
		})
	}

	slog.Info("Fetched Plaid credits", "transactions", len(all), "credits", len(credits))
	return credits, nil
}

// extractPlaidError attempts to extract a Plaid error from a generic error.
func extractPlaidError(err error) *plaid.PlaidError {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return nil
	}
	return &plaidErr
}
