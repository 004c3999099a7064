package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func TestTransactionRecordMerge(t *testing.T) {
	valueDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	otherDate := time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		stored        TransactionRecord
		incoming      TransactionRecord
		wantAmount    decimal.NullDecimal
		wantCurrency  string
		wantValueDate time.Time
		wantConflicts []string
	}{
		{
			name:         "incoming fills empty fields",
			stored:       TransactionRecord{TransactionReference: "TXN001", Amount: dec("100")},
			incoming:     TransactionRecord{TransactionReference: "TXN001", Currency: "USD"},
			wantAmount:   dec("100"),
			wantCurrency: "USD",
		},
		{
			name:          "differing amounts keep stored value and surface conflict",
			stored:        TransactionRecord{TransactionReference: "TXN001", Amount: dec("100")},
			incoming:      TransactionRecord{TransactionReference: "TXN001", Amount: dec("200")},
			wantAmount:    dec("100"),
			wantConflicts: []string{"amount"},
		},
		{
			name:       "equal values are not conflicts",
			stored:     TransactionRecord{TransactionReference: "TXN001", Amount: dec("100.50"), Currency: "EUR"},
			incoming:   TransactionRecord{TransactionReference: "TXN001", Amount: dec("100.5"), Currency: "EUR"},
			wantAmount: dec("100.50"), wantCurrency: "EUR",
		},
		{
			name:          "multiple conflicts reported together",
			stored:        TransactionRecord{TransactionReference: "TXN001", Currency: "USD", Remitter: "ACME GMBH"},
			incoming:      TransactionRecord{TransactionReference: "TXN001", Currency: "EUR", Remitter: "ACME LLC"},
			wantCurrency:  "USD",
			wantConflicts: []string{"currency", "remitter"},
		},
		{
			name:          "value date conflict keeps stored date",
			stored:        TransactionRecord{TransactionReference: "TXN001", ValueDate: valueDate},
			incoming:      TransactionRecord{TransactionReference: "TXN001", ValueDate: otherDate},
			wantValueDate: valueDate,
			wantConflicts: []string{"value_date"},
		},
		{
			name:          "zero value date fills from incoming",
			stored:        TransactionRecord{TransactionReference: "TXN001"},
			incoming:      TransactionRecord{TransactionReference: "TXN001", ValueDate: valueDate},
			wantValueDate: valueDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, conflicts := tt.stored.Merge(tt.incoming)

			if merged.Amount.Valid != tt.wantAmount.Valid {
				t.Errorf("amount validity = %v, want %v", merged.Amount.Valid, tt.wantAmount.Valid)
			}
			if merged.Amount.Valid && !merged.Amount.Decimal.Equal(tt.wantAmount.Decimal) {
				t.Errorf("amount = %s, want %s", merged.Amount.Decimal, tt.wantAmount.Decimal)
			}
			if merged.Currency != tt.wantCurrency {
				t.Errorf("currency = %q, want %q", merged.Currency, tt.wantCurrency)
			}
			if !merged.ValueDate.Equal(tt.wantValueDate) {
				t.Errorf("value date = %v, want %v", merged.ValueDate, tt.wantValueDate)
			}

			if len(conflicts) != len(tt.wantConflicts) {
				t.Fatalf("got %d conflicts %v, want %d", len(conflicts), conflicts, len(tt.wantConflicts))
			}
			for i, want := range tt.wantConflicts {
				if conflicts[i].Field != want {
					t.Errorf("conflict[%d].Field = %q, want %q", i, conflicts[i].Field, want)
				}
				if conflicts[i].Reference != tt.stored.TransactionReference {
					t.Errorf("conflict[%d].Reference = %q, want %q", i, conflicts[i].Reference, tt.stored.TransactionReference)
				}
			}
		})
	}
}

func TestMergeRetainsProvenance(t *testing.T) {
	first := TransactionRecord{
		TransactionReference: "TXN042",
		SourceMessageID:      "msg-1",
		ExtractedAt:          time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	second := TransactionRecord{
		TransactionReference: "TXN042",
		SourceMessageID:      "msg-2",
		ExtractedAt:          time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		Currency:             "USD",
	}

	merged, conflicts := first.Merge(second)
	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", conflicts)
	}
	if merged.SourceMessageID != "msg-1" {
		t.Errorf("SourceMessageID = %q, want first observer msg-1", merged.SourceMessageID)
	}
	if merged.Currency != "USD" {
		t.Errorf("currency should fill from second observation, got %q", merged.Currency)
	}
}

func TestSenderHelpers(t *testing.T) {
	tests := []struct {
		sender     string
		wantAddr   string
		wantDomain string
	}{
		{"alerts@yesbank.example", "alerts@yesbank.example", "yesbank.example"},
		{"YES Bank <Alerts@YesBank.example>", "alerts@yesbank.example", "yesbank.example"},
		{"malformed", "malformed", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		m := Message{Sender: tt.sender}
		if got := m.SenderAddress(); got != tt.wantAddr {
			t.Errorf("SenderAddress(%q) = %q, want %q", tt.sender, got, tt.wantAddr)
		}
		if got := m.SenderDomain(); got != tt.wantDomain {
			t.Errorf("SenderDomain(%q) = %q, want %q", tt.sender, got, tt.wantDomain)
		}
	}
}
