// Package reconcile matches ledger records against actual bank credits so
// an operator can confirm that every extracted remittance really landed.
package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/inward-bound/internal/model"
)

// BankCredit is one incoming credit observed on a bank statement or feed.
type BankCredit struct {
	Date        time.Time
	ID          string
	Description string
	Currency    string
	Amount      decimal.Decimal
}

// Match pairs one ledger record with the bank credit that settles it.
type Match struct {
	Record model.TransactionRecord
	Credit BankCredit
	// ByReference is true when the credit's description carried the
	// transaction reference; false means the pairing relied on amount
	// and date alone.
	ByReference bool
}

// Report summarizes one reconciliation pass.
type Report struct {
	Matched          []Match
	UnmatchedLedger  []model.TransactionRecord
	UnmatchedCredits []BankCredit
}

// dateTolerance allows for settlement lag between the advice's value date
// and the credit posting date.
const dateTolerance = 3 * 24 * time.Hour

// Reconcile pairs ledger records with credits. Reference matches are taken
// first; remaining records fall back to exact-amount matches within the
// date tolerance. Each credit settles at most one record.
func Reconcile(records []model.TransactionRecord, credits []BankCredit) Report {
	var report Report
	used := make([]bool, len(credits))

	var unref []model.TransactionRecord
	for _, rec := range records {
		idx := findByReference(rec, credits, used)
		if idx < 0 {
			unref = append(unref, rec)
			continue
		}
		used[idx] = true
		report.Matched = append(report.Matched, Match{Record: rec, Credit: credits[idx], ByReference: true})
	}

	for _, rec := range unref {
		idx := findByAmount(rec, credits, used)
		if idx < 0 {
			report.UnmatchedLedger = append(report.UnmatchedLedger, rec)
			continue
		}
		used[idx] = true
		report.Matched = append(report.Matched, Match{Record: rec, Credit: credits[idx]})
	}

	for i, credit := range credits {
		if !used[i] {
			report.UnmatchedCredits = append(report.UnmatchedCredits, credit)
		}
	}

	return report
}

func findByReference(rec model.TransactionRecord, credits []BankCredit, used []bool) int {
	ref := strings.ToLower(strings.TrimSpace(rec.TransactionReference))
	if ref == "" {
		return -1
	}
	for i, credit := range credits {
		if used[i] {
			continue
		}
		if strings.Contains(strings.ToLower(credit.Description), ref) {
			return i
		}
	}
	return -1
}

func findByAmount(rec model.TransactionRecord, credits []BankCredit, used []bool) int {
	if !rec.Amount.Valid {
		return -1
	}
	for i, credit := range credits {
		if used[i] {
			continue
		}
		if !credit.Amount.Equal(rec.Amount.Decimal) {
			continue
		}
		if credit.Currency != "" && rec.Currency != "" && !strings.EqualFold(credit.Currency, rec.Currency) {
			continue
		}
		if withinTolerance(rec.ValueDate, credit.Date) {
			return i
		}
	}
	return -1
}

func withinTolerance(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= dateTolerance
}
