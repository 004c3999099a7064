package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/inward-bound/internal/common"
	"github.com/Veraticus/inward-bound/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResponse struct {
	text string
	err  error
}

// mockClient replays canned responses and records every prompt it saw.
// The last response repeats once the script runs out.
type mockClient struct {
	mu        sync.Mutex
	responses []mockResponse
	prompts   []string
}

func (m *mockClient) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	idx := len(m.prompts) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	r := m.responses[idx]
	return r.text, r.err
}

func (m *mockClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *mockClient) promptLengths() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.prompts))
	for i, p := range m.prompts {
		out[i] = len(p)
	}
	return out
}

func newTestAdapter(t *testing.T, client Client) *Adapter {
	t.Helper()
	a := &Adapter{
		client:      client,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		rateLimiter: newRateLimiter(100000),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
	t.Cleanup(a.Close)
	return a
}

const validEnvelope = `{
	"relevant": true,
	"confidence": 0.93,
	"fields": {
		"transaction_reference": "UTR2024031500042",
		"amount": "USD 1,234.56",
		"currency": "usd",
		"value_date": "15-03-2024",
		"remitter": "ACME GMBH",
		"beneficiary": "Example Exports Pvt Ltd",
		"purpose_code": "P0102"
	}
}`

func TestAdapter_ExtractCoercesFields(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{text: "```json\n" + validEnvelope + "\n```"},
	}}
	adapter := newTestAdapter(t, client)

	rec, err := adapter.Extract(context.Background(), "Amount: USD 1,234.56 credited", "inward_remittance")
	require.NoError(t, err)
	require.Equal(t, 1, client.calls())

	assert.Equal(t, "UTR2024031500042", rec.TransactionReference)
	require.True(t, rec.Amount.Valid)
	assert.Equal(t, "1234.56", rec.Amount.Decimal.String())
	assert.Equal(t, "USD", rec.Currency)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), rec.ValueDate)
	assert.Equal(t, "ACME GMBH", rec.Remitter)
	assert.Equal(t, "Example Exports Pvt Ltd", rec.Beneficiary)
	assert.Equal(t, "P0102", rec.PurposeCode)
	assert.Equal(t, "inward_remittance", rec.Category)
	assert.False(t, rec.ExtractedAt.IsZero())
}

func TestAdapter_SchemaViolationsAreTerminal(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{
			name:     "missing transaction reference",
			response: `{"relevant": true, "confidence": 0.9, "fields": {"amount": "100", "currency": "USD"}}`,
		},
		{
			name:     "not relevant",
			response: `{"relevant": false, "confidence": 0.2, "fields": {}}`,
		},
		{
			name:     "malformed json",
			response: `the document describes a payment of one hundred dollars`,
		},
		{
			name:     "negative amount",
			response: `{"relevant": true, "fields": {"transaction_reference": "R1", "amount": "-50.00"}}`,
		},
		{
			name:     "zero amount",
			response: `{"relevant": true, "fields": {"transaction_reference": "R1", "amount": "0"}}`,
		},
		{
			name:     "unrecognized currency",
			response: `{"relevant": true, "fields": {"transaction_reference": "R1", "currency": "DOLLARS"}}`,
		},
		{
			name:     "unparseable date",
			response: `{"relevant": true, "fields": {"transaction_reference": "R1", "value_date": "sometime in March"}}`,
		},
		{
			name:     "invalid calendar date",
			response: `{"relevant": true, "fields": {"transaction_reference": "R1", "value_date": "31-02-2024"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{responses: []mockResponse{{text: tt.response}}}
			adapter := newTestAdapter(t, client)

			_, err := adapter.Extract(context.Background(), "some notification text", "credit_advice")
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrSchemaViolation)
			assert.NotErrorIs(t, err, common.ErrExtractionUnavailable)

			// Terminal failures must not be retried.
			assert.Equal(t, 1, client.calls())
		})
	}
}

func TestAdapter_UnavailableRetriesThenFails(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{err: &common.RetryableError{Err: errors.New("upstream 503"), Retryable: true}},
	}}
	adapter := newTestAdapter(t, client)

	longText := "amount credited " + strings.Repeat("x", 6000)
	_, err := adapter.Extract(context.Background(), longText, "credit_advice")

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExtractionUnavailable)
	assert.Equal(t, 3, client.calls())

	// Each retry shrinks the input.
	lengths := client.promptLengths()
	require.Len(t, lengths, 3)
	assert.Greater(t, lengths[0], lengths[1])
	assert.Greater(t, lengths[1], lengths[2])
}

func TestAdapter_RecoversOnRetry(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{err: &common.RetryableError{Err: errors.New("timeout"), Retryable: true}},
		{text: validEnvelope},
	}}
	adapter := newTestAdapter(t, client)

	rec, err := adapter.Extract(context.Background(), "Amount: USD 1,234.56 credited", "credit_advice")
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls())
	assert.Equal(t, "UTR2024031500042", rec.TransactionReference)
}

func TestAdapter_EmptyTextRejectedWithoutCall(t *testing.T) {
	client := &mockClient{responses: []mockResponse{{text: validEnvelope}}}
	adapter := newTestAdapter(t, client)

	_, err := adapter.Extract(context.Background(), "   \n", "credit_advice")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnreadableContent)
	assert.Equal(t, 0, client.calls())
}

func TestAdapter_OptionalFieldsMayBeEmpty(t *testing.T) {
	client := &mockClient{responses: []mockResponse{
		{text: `{"relevant": true, "confidence": 0.8, "fields": {"transaction_reference": "REF77"}}`},
	}}
	adapter := newTestAdapter(t, client)

	rec, err := adapter.Extract(context.Background(), "credited, details in attachment", "credit_alert")
	require.NoError(t, err)

	assert.Equal(t, "REF77", rec.TransactionReference)
	assert.False(t, rec.Amount.Valid)
	assert.Empty(t, rec.Currency)
	assert.True(t, rec.ValueDate.IsZero())
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "\n\n  {\"a\":1}  \n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.in))
		})
	}
}

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2024-03-05", "05-03-2024", "05/03/2024", "05-Mar-2024", "5 March 2024", "Mar 5, 2024"} {
		got, err := parseDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}
