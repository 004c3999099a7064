// Package extract turns normalized notification text into validated
// transaction records using a language model provider.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Veraticus/inward-bound/internal/common"
	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/Veraticus/inward-bound/internal/service"
	"github.com/shopspring/decimal"
)

// Config holds configuration for the extraction adapter.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// Adapter sends normalized text to an extraction model and validates the
// response into a model.TransactionRecord. Responses that violate the
// record schema are terminal; provider outages are retried with backoff,
// shrinking the input on each attempt.
type Adapter struct {
	client      Client
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
}

// NewAdapter creates an extraction adapter for the configured provider.
func NewAdapter(ctx context.Context, cfg Config, logger *slog.Logger) (*Adapter, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction client: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Adapter{
		client:      client,
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}, nil
}

// Close releases the adapter's background resources.
func (a *Adapter) Close() {
	a.rateLimiter.Close()
}

// shrinkFactors progressively reduce the input on retry so an oversized
// document cannot exhaust the provider's context window on every attempt.
var shrinkFactors = []float64{1.0, 0.6, 0.35}

// Extract derives a transaction record from normalized text of the given
// category. Schema violations wrap common.ErrSchemaViolation and must not
// be retried; provider failures wrap common.ErrExtractionUnavailable after
// the retry budget is spent.
func (a *Adapter) Extract(ctx context.Context, text, category string) (*model.TransactionRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input text", common.ErrUnreadableContent)
	}

	var record *model.TransactionRecord
	attempt := 0

	op := func() error {
		input := shrinkInput(text, attempt)
		attempt++

		if err := a.rateLimiter.wait(ctx); err != nil {
			return err
		}

		raw, err := a.client.Complete(ctx, buildPrompt(input, category))
		if err != nil {
			return err
		}

		env, err := parseEnvelope(raw)
		if err != nil {
			return err
		}

		rec, err := env.toRecord()
		if err != nil {
			return err
		}

		a.logger.Debug("extraction response accepted",
			"category", category,
			"reference", rec.TransactionReference,
			"confidence", env.Confidence,
			"attempt", attempt)

		record = rec
		return nil
	}

	err := common.WithRetry(ctx, op, a.retryOpts)
	switch {
	case err == nil:
		record.Category = category
		record.ExtractedAt = time.Now().UTC()
		return record, nil
	case errors.Is(err, common.ErrSchemaViolation):
		return nil, err
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", common.ErrExtractionUnavailable, err)
	}
}

// envelope is the JSON document the model must return.
type envelope struct {
	Relevant   bool    `json:"relevant"`
	Confidence float64 `json:"confidence"`
	Fields     struct {
		TransactionReference string `json:"transaction_reference"`
		Amount               string `json:"amount"`
		Currency             string `json:"currency"`
		ValueDate            string `json:"value_date"`
		Remitter             string `json:"remitter"`
		Beneficiary          string `json:"beneficiary"`
		PurposeCode          string `json:"purpose_code"`
	} `json:"fields"`
}

// parseEnvelope decodes the model response. Anything that is not a valid
// envelope for a relevant notification is a terminal schema violation.
func parseEnvelope(raw string) (*envelope, error) {
	cleaned := cleanModelJSON(raw)

	var env envelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return nil, terminal(fmt.Errorf("%w: malformed envelope: %v", common.ErrSchemaViolation, err))
	}
	if !env.Relevant {
		return nil, terminal(fmt.Errorf("%w: model judged text not a financial notification", common.ErrSchemaViolation))
	}

	return &env, nil
}

// toRecord validates the envelope fields and coerces them into a record.
func (e *envelope) toRecord() (*model.TransactionRecord, error) {
	reference := strings.TrimSpace(e.Fields.TransactionReference)
	if reference == "" {
		return nil, terminal(fmt.Errorf("%w: missing transaction_reference", common.ErrSchemaViolation))
	}

	rec := &model.TransactionRecord{
		TransactionReference: reference,
		Remitter:             strings.TrimSpace(e.Fields.Remitter),
		Beneficiary:          strings.TrimSpace(e.Fields.Beneficiary),
		PurposeCode:          strings.TrimSpace(e.Fields.PurposeCode),
	}

	if raw := strings.TrimSpace(e.Fields.Amount); raw != "" {
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, terminal(fmt.Errorf("%w: %v", common.ErrSchemaViolation, err))
		}
		rec.Amount = decimal.NullDecimal{Decimal: amount, Valid: true}
	}

	if raw := strings.TrimSpace(e.Fields.Currency); raw != "" {
		currency := strings.ToUpper(raw)
		if !knownCurrencies[currency] {
			return nil, terminal(fmt.Errorf("%w: unrecognized currency %q", common.ErrSchemaViolation, raw))
		}
		rec.Currency = currency
	}

	if raw := strings.TrimSpace(e.Fields.ValueDate); raw != "" {
		date, err := parseDate(raw)
		if err != nil {
			return nil, terminal(fmt.Errorf("%w: %v", common.ErrSchemaViolation, err))
		}
		rec.ValueDate = date
	}

	return rec, nil
}

// terminal marks an error as not worth retrying.
func terminal(err error) error {
	return &common.RetryableError{Err: err, Retryable: false}
}

// amountCleanPattern strips currency symbols and digit grouping so amounts
// like "USD 1,234.56" or "$99.00" parse.
var amountCleanPattern = regexp.MustCompile(`[^0-9.\-]`)

func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := amountCleanPattern.ReplaceAllString(raw, "")
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("no digits in amount %q", raw)
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unparseable amount %q", raw)
	}
	if amount.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("amount must be positive, got %s", amount)
	}

	return amount, nil
}

// dateLayouts are tried in order. Numeric day/month ambiguity resolves
// day-first, matching the notification formats this pipeline ingests.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable value_date %q", raw)
}

// knownCurrencies is the set of ISO 4217 codes the ledger accepts.
var knownCurrencies = map[string]bool{
	"AED": true, "AUD": true, "CAD": true, "CHF": true, "CNY": true,
	"DKK": true, "EUR": true, "GBP": true, "HKD": true, "IDR": true,
	"INR": true, "JPY": true, "KRW": true, "KWD": true, "MYR": true,
	"NOK": true, "NZD": true, "PHP": true, "QAR": true, "SAR": true,
	"SEK": true, "SGD": true, "THB": true, "USD": true, "ZAR": true,
}

// cleanModelJSON strips a markdown code fence wrapper from a model
// response, if present.
func cleanModelJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func shrinkInput(text string, attempt int) string {
	if attempt >= len(shrinkFactors) {
		attempt = len(shrinkFactors) - 1
	}
	factor := shrinkFactors[attempt]
	if factor >= 1.0 {
		return text
	}

	limit := int(float64(len(text)) * factor)
	if limit >= len(text) {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

func buildPrompt(text, category string) string {
	return fmt.Sprintf(`Parse the following %s notification and extract the transaction details.

Respond with ONLY a JSON object in exactly this shape, with no markdown and no commentary:
{
  "relevant": true,
  "confidence": 0.0,
  "fields": {
    "transaction_reference": "",
    "amount": "",
    "currency": "",
    "value_date": "",
    "remitter": "",
    "beneficiary": "",
    "purpose_code": ""
  }
}

Set "relevant" to false when the text is not a financial credit notification.
Leave a field empty when the text does not state it. Format dates as YYYY-MM-DD.

Text:
%s`, category, text)
}
