package reconcile

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// severityRegex fixes mixed-case SEVERITY values some banks emit.
var severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)

// tagFixRegex closes SGML-style tags missing their angle bracket.
var tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)

// preprocessOFX fixes common formatting issues in bank-exported OFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = tagFixRegex.ReplaceAllString(content, "$1>")
	return content
}

// ParseOFXCredits reads an OFX/QFX statement and returns its incoming
// credits. Debits are dropped: only money arriving can settle an inward
// remittance.
func ParseOFXCredits(reader io.Reader) ([]BankCredit, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var credits []BankCredit
	statements := 0

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++

		currency := strings.ToUpper(stmt.CurDef.String())
		for _, txn := range stmt.BankTranList.Transactions {
			amount := decimal.NewFromBigRat(&txn.TrnAmt.Rat, 2)
			if amount.Sign() <= 0 {
				continue
			}

			description := strings.TrimSpace(string(txn.Name))
			if memo := strings.TrimSpace(string(txn.Memo)); memo != "" {
				if description == "" {
					description = memo
				} else {
					description = description + " " + memo
				}
			}

			credits = append(credits, BankCredit{
				ID:          string(txn.FiTID),
				Date:        txn.DtPosted.Time,
				Description: description,
				Currency:    currency,
				Amount:      amount,
			})
		}
	}

	slog.Info("Parsed OFX statement", "statements", statements, "credits", len(credits))
	return credits, nil
}
