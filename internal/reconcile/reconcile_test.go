package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/inward-bound/internal/model"
)

func record(ref string, amount string, date time.Time) model.TransactionRecord {
	rec := model.TransactionRecord{
		TransactionReference: ref,
		Currency:             "USD",
		ValueDate:            date,
	}
	if amount != "" {
		rec.Amount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	return rec
}

func TestReconcileByReference(t *testing.T) {
	date := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	records := []model.TransactionRecord{record("FIRC2026X01", "1500.00", date)}
	credits := []BankCredit{
		{ID: "c1", Description: "INWARD REM FIRC2026X01 ACME CORP", Currency: "USD", Amount: decimal.RequireFromString("1500.00"), Date: date},
		{ID: "c2", Description: "SALARY", Currency: "USD", Amount: decimal.RequireFromString("900.00"), Date: date},
	}

	report := Reconcile(records, credits)

	require.Len(t, report.Matched, 1)
	assert.True(t, report.Matched[0].ByReference)
	assert.Equal(t, "c1", report.Matched[0].Credit.ID)
	assert.Empty(t, report.UnmatchedLedger)
	require.Len(t, report.UnmatchedCredits, 1)
	assert.Equal(t, "c2", report.UnmatchedCredits[0].ID)
}

func TestReconcileByAmountWithinTolerance(t *testing.T) {
	valueDate := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	records := []model.TransactionRecord{record("REFNOTONSTMT", "2500.00", valueDate)}
	credits := []BankCredit{
		{ID: "c1", Description: "WIRE TRANSFER IN", Currency: "USD", Amount: decimal.RequireFromString("2500.00"), Date: valueDate.Add(48 * time.Hour)},
	}

	report := Reconcile(records, credits)

	require.Len(t, report.Matched, 1)
	assert.False(t, report.Matched[0].ByReference)
	assert.Empty(t, report.UnmatchedCredits)
}

func TestReconcileDateOutsideTolerance(t *testing.T) {
	valueDate := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	records := []model.TransactionRecord{record("REF1", "2500.00", valueDate)}
	credits := []BankCredit{
		{ID: "c1", Description: "WIRE TRANSFER IN", Currency: "USD", Amount: decimal.RequireFromString("2500.00"), Date: valueDate.Add(10 * 24 * time.Hour)},
	}

	report := Reconcile(records, credits)

	assert.Empty(t, report.Matched)
	assert.Len(t, report.UnmatchedLedger, 1)
	assert.Len(t, report.UnmatchedCredits, 1)
}

func TestReconcileEachCreditSettlesOneRecord(t *testing.T) {
	date := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	records := []model.TransactionRecord{
		record("REF1", "100.00", date),
		record("REF2", "100.00", date),
	}
	credits := []BankCredit{
		{ID: "c1", Description: "CREDIT", Currency: "USD", Amount: decimal.RequireFromString("100.00"), Date: date},
	}

	report := Reconcile(records, credits)

	assert.Len(t, report.Matched, 1)
	assert.Len(t, report.UnmatchedLedger, 1)
}

func TestParseOFXCreditsDropsDebits(t *testing.T) {
	// Minimal OFX 2.x (XML) statement with one credit and one debit.
	const doc = `<?xml version="1.0" encoding="UTF-8" standalone="no"?>
<?OFX OFXHEADER="200" VERSION="202" SECURITY="NONE" OLDFILEUID="NONE" NEWFILEUID="NONE"?>
<OFX>
 <SIGNONMSGSRSV1>
  <SONRS>
   <STATUS><CODE>0</CODE><SEVERITY>INFO</SEVERITY></STATUS>
   <DTSERVER>20260810120000</DTSERVER>
   <LANGUAGE>ENG</LANGUAGE>
  </SONRS>
 </SIGNONMSGSRSV1>
 <BANKMSGSRSV1>
  <STMTTRNRS>
   <TRNUID>1</TRNUID>
   <STATUS><CODE>0</CODE><SEVERITY>INFO</SEVERITY></STATUS>
   <STMTRS>
    <CURDEF>USD</CURDEF>
    <BANKACCTFROM><BANKID>1</BANKID><ACCTID>12345</ACCTID><ACCTTYPE>CHECKING</ACCTTYPE></BANKACCTFROM>
    <BANKTRANLIST>
     <DTSTART>20260801120000</DTSTART>
     <DTEND>20260810120000</DTEND>
     <STMTTRN>
      <TRNTYPE>CREDIT</TRNTYPE>
      <DTPOSTED>20260809120000</DTPOSTED>
      <TRNAMT>1500.00</TRNAMT>
      <FITID>TX1</FITID>
      <NAME>INWARD REM FIRC2026X01</NAME>
     </STMTTRN>
     <STMTTRN>
      <TRNTYPE>DEBIT</TRNTYPE>
      <DTPOSTED>20260809120000</DTPOSTED>
      <TRNAMT>-42.00</TRNAMT>
      <FITID>TX2</FITID>
      <NAME>CARD PURCHASE</NAME>
     </STMTTRN>
    </BANKTRANLIST>
    <LEDGERBAL><BALAMT>1458.00</BALAMT><DTASOF>20260810120000</DTASOF></LEDGERBAL>
   </STMTRS>
  </STMTTRNRS>
 </BANKMSGSRSV1>
</OFX>`

	credits, err := ParseOFXCredits(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Equal(t, "TX1", credits[0].ID)
	assert.Equal(t, "USD", credits[0].Currency)
	assert.True(t, credits[0].Amount.Equal(decimal.RequireFromString("1500.00")))
}
