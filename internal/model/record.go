package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord is the canonical extracted form of one inward remittance.
// TransactionReference is the sole identity key: two records carrying the
// same reference describe the same real-world transaction and must be merged,
// never duplicated.
type TransactionRecord struct {
	ValueDate            time.Time
	ExtractedAt          time.Time
	TransactionReference string
	Currency             string
	Remitter             string
	Beneficiary          string
	PurposeCode          string
	Category             string
	SourceMessageID      string
	Amount               decimal.NullDecimal
}

// FieldConflict records two non-empty, differing observations of the same
// field for one transaction reference. The stored value is retained until an
// operator resolves the conflict.
type FieldConflict struct {
	DetectedAt      time.Time
	ID              string
	Reference       string
	Field           string
	StoredValue     string
	IncomingValue   string
	SourceMessageID string
	Resolved        bool
}

// Merge folds an incoming observation of the same transaction into r.
// Empty fields fill from the incoming record; fields non-empty in both that
// differ keep the stored value and are reported as conflicts. Provenance
// fields (SourceMessageID, ExtractedAt) always keep the first observation.
func (r TransactionRecord) Merge(incoming TransactionRecord) (TransactionRecord, []FieldConflict) {
	merged := r
	var conflicts []FieldConflict

	conflict := func(field, stored, in string) {
		conflicts = append(conflicts, FieldConflict{
			Reference:       r.TransactionReference,
			Field:           field,
			StoredValue:     stored,
			IncomingValue:   in,
			SourceMessageID: incoming.SourceMessageID,
		})
	}

	switch {
	case !r.Amount.Valid && incoming.Amount.Valid:
		merged.Amount = incoming.Amount
	case r.Amount.Valid && incoming.Amount.Valid && !r.Amount.Decimal.Equal(incoming.Amount.Decimal):
		conflict("amount", r.Amount.Decimal.String(), incoming.Amount.Decimal.String())
	}

	mergeString := func(field string, stored *string, in string) {
		switch {
		case *stored == "" && in != "":
			*stored = in
		case *stored != "" && in != "" && *stored != in:
			conflict(field, *stored, in)
		}
	}
	mergeString("currency", &merged.Currency, incoming.Currency)
	mergeString("remitter", &merged.Remitter, incoming.Remitter)
	mergeString("beneficiary", &merged.Beneficiary, incoming.Beneficiary)
	mergeString("purpose_code", &merged.PurposeCode, incoming.PurposeCode)
	mergeString("category", &merged.Category, incoming.Category)

	switch {
	case r.ValueDate.IsZero() && !incoming.ValueDate.IsZero():
		merged.ValueDate = incoming.ValueDate
	case !r.ValueDate.IsZero() && !incoming.ValueDate.IsZero() && !r.ValueDate.Equal(incoming.ValueDate):
		conflict("value_date", r.ValueDate.Format("2006-01-02"), incoming.ValueDate.Format("2006-01-02"))
	}

	return merged, conflicts
}
