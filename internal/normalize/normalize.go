// Package normalize turns raw message and document content into clean text
// suitable for extraction.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultWindowLimit caps the text handed to extraction when no explicit
// limit is configured.
const DefaultWindowLimit = 8000

// windowRadius is the number of context lines kept on each side of a line
// containing a financial keyword.
const windowRadius = 2

// Text canonicalizes extracted text: line endings become \n, non-breaking
// spaces and tabs become spaces, other control characters are dropped, runs
// of whitespace collapse to single spaces, and runs of blank lines collapse
// to one.
func Text(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Map(dropControl, line)
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}

	return strings.Join(out, "\n")
}

var (
	scriptStylePattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagPattern         = regexp.MustCompile(`(?s)<[^>]+>`)
	replyIntroPattern  = regexp.MustCompile(`(?i)^on .{0,200}wrote:$`)
)

// Body prepares an email body for matching and extraction: markup is
// stripped, entities decoded, quoted reply lines and the quote
// introduction dropped, and everything after a signature marker discarded.
func Body(s string) string {
	s = scriptStylePattern.ReplaceAllString(s, " ")
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)

	var kept []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if replyIntroPattern.MatchString(trimmed) {
			continue
		}
		if trimmed == "--" {
			break
		}
		kept = append(kept, line)
	}

	return Text(strings.Join(kept, "\n"))
}

// financialKeywords anchor the window trim. A line mentioning any of these
// is considered part of the transaction details.
var financialKeywords = []string{
	"amount", "credited", "credit", "remitter", "beneficiary", "reference",
	"utr", "swift", "neft", "rtgs", "imps", "value date", "currency",
	"purpose", "remittance", "transaction",
}

// FinancialWindow trims text to the lines surrounding financial keywords,
// keeping windowRadius lines of context on each side, and caps the result
// at maxChars. Text with no recognizable financial content is returned
// capped but otherwise untrimmed.
func FinancialWindow(s string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultWindowLimit
	}

	lines := strings.Split(s, "\n")
	keep := make([]bool, len(lines))
	matched := false
	for i, line := range lines {
		if !containsKeyword(line) {
			continue
		}
		matched = true
		for j := max(0, i-windowRadius); j <= min(len(lines)-1, i+windowRadius); j++ {
			keep[j] = true
		}
	}

	if !matched {
		return truncate(s, maxChars)
	}

	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		if keep[i] {
			kept = append(kept, line)
		}
	}

	return truncate(strings.Join(kept, "\n"), maxChars)
}

func containsKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range financialKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func dropControl(r rune) rune {
	if r == '\t' {
		return ' '
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
