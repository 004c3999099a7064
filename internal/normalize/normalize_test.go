package normalize

import (
	"strings"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "collapses whitespace runs",
			in:   "Amount:    USD\t1,000.00",
			want: "Amount: USD 1,000.00",
		},
		{
			name: "normalizes line endings and blank runs",
			in:   "line one\r\n\r\n\r\n\r\nline two\r",
			want: "line one\n\nline two",
		},
		{
			name: "drops control characters and nbsp",
			in:   "Ref\x00erence: TXN123\x07",
			want: "Reference: TXN123",
		},
		{
			name: "trims leading and trailing blank lines",
			in:   "\n\n  \ncontent\n \n\n",
			want: "content",
		},
		{
			name: "empty input stays empty",
			in:   "   \n\t\n",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips markup and decodes entities",
			in:   `<html><body><p>Amount &amp; currency: <b>USD 50</b></p></body></html>`,
			want: "Amount & currency: USD 50",
		},
		{
			name: "drops style blocks entirely",
			in:   "<style>p { color: red; }</style><p>credited USD 10</p>",
			want: "credited USD 10",
		},
		{
			name: "drops quoted reply lines",
			in:   "Payment received.\n\nOn Mon, Jan 2, 2024 at 10:00 AM Bank wrote:\n> Please find attached\n> the advice document",
			want: "Payment received.",
		},
		{
			name: "discards signature",
			in:   "Funds credited to your account.\n--\nJane Doe\nTreasury Ops",
			want: "Funds credited to your account.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Body(tt.in); got != tt.want {
				t.Errorf("Body(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFinancialWindow(t *testing.T) {
	doc := strings.Join([]string{
		"Dear Customer,",            // 0
		"",                          // 1
		"We write to inform you.",   // 2
		"Details are below.",        // 3
		"",                          // 4
		"Amount: USD 1,000.00",      // 5 keyword
		"Reference: TXN00042",       // 6 keyword
		"",                          // 7
		"Please retain this email.", // 8
		"Regional disclosures pg 1", // 9
		"Regional disclosures pg 2", // 10
		"Regional disclosures pg 3", // 11
	}, "\n")

	got := FinancialWindow(doc, 0)

	if strings.Contains(got, "Dear Customer") {
		t.Errorf("window should drop the greeting, got %q", got)
	}
	for _, want := range []string{"Details are below.", "Amount: USD 1,000.00", "Reference: TXN00042", "Please retain this email."} {
		if !strings.Contains(got, want) {
			t.Errorf("window should keep %q, got %q", want, got)
		}
	}
	if strings.Contains(got, "disclosures pg 3") {
		t.Errorf("window should drop text far from keywords, got %q", got)
	}
}

func TestFinancialWindowNoKeywords(t *testing.T) {
	doc := "nothing to see here\njust plain prose"
	if got := FinancialWindow(doc, 1000); got != doc {
		t.Errorf("text without keywords should pass through, got %q", got)
	}
}

func TestFinancialWindowCapsLength(t *testing.T) {
	long := "amount " + strings.Repeat("x", 10000)
	got := FinancialWindow(long, 100)
	if len(got) > 100 {
		t.Errorf("window length = %d, want <= 100", len(got))
	}
	if !strings.HasPrefix(got, "amount") {
		t.Errorf("window should keep the start of the keyword line")
	}
}
