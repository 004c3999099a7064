// Package rules implements the classification ruleset that routes inbound
// messages to extraction categories.
package rules

import (
	"fmt"
	"path"
	"strings"

	"github.com/Veraticus/inward-bound/internal/model"
)

// Rule sources determine which part of a message carries the financial text.
const (
	SourceAttachments = "attachments"
	SourceBody        = "body"
)

// Predicate is the match block of a rule. Every non-empty condition must
// hold for the rule to match; matching is case-insensitive on
// whitespace-collapsed text. SubjectContains is any-of; the attachment
// conditions require at least one attachment satisfying all of them, so a
// rule gated on attachments does not claim an attachment-less message away
// from lower-priority rules.
type Predicate struct {
	FromContains           string   `yaml:"from_contains"`
	SubjectContains        []string `yaml:"subject_contains"`
	BodyContainsAll        []string `yaml:"body_contains_all"`
	AttachmentNameContains string   `yaml:"attachment_name_contains"`
	AttachmentExt          []string `yaml:"attachment_ext"`
}

// Empty reports whether the predicate has no conditions at all.
func (p Predicate) Empty() bool {
	return p.FromContains == "" &&
		len(p.SubjectContains) == 0 &&
		len(p.BodyContainsAll) == 0 &&
		p.AttachmentNameContains == "" &&
		len(p.AttachmentExt) == 0
}

// Matches evaluates the predicate against a message.
func (p Predicate) Matches(msg model.Message) bool {
	if p.FromContains != "" && !containsFold(msg.Sender, p.FromContains) {
		return false
	}
	if len(p.SubjectContains) > 0 {
		matched := false
		for _, needle := range p.SubjectContains {
			if containsFold(msg.Subject, needle) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, needle := range p.BodyContainsAll {
		if !containsFold(msg.BodyText, needle) {
			return false
		}
	}
	if p.AttachmentNameContains != "" || len(p.AttachmentExt) > 0 {
		found := false
		for _, att := range msg.Attachments {
			if p.attachmentSatisfies(att) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (p Predicate) attachmentSatisfies(att model.Attachment) bool {
	if p.AttachmentNameContains != "" && !containsFold(att.Filename, p.AttachmentNameContains) {
		return false
	}
	if len(p.AttachmentExt) > 0 && !extMatches(att.Filename, p.AttachmentExt) {
		return false
	}
	return true
}

// AttachmentFilter selects which of a message's attachments a rule applies
// to. An empty filter selects every attachment.
type AttachmentFilter struct {
	NameContains string   `yaml:"name_contains"`
	Extensions   []string `yaml:"extensions"`
}

// Matches reports whether the filter selects the given attachment.
func (f AttachmentFilter) Matches(att model.Attachment) bool {
	if f.NameContains != "" && !containsFold(att.Filename, f.NameContains) {
		return false
	}
	if len(f.Extensions) > 0 && !extMatches(att.Filename, f.Extensions) {
		return false
	}
	return true
}

// extMatches reports whether the filename's extension equals any of the
// wanted extensions, case-insensitively.
func extMatches(filename string, wanted []string) bool {
	ext := path.Ext(filename)
	for _, want := range wanted {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// Rule routes messages that satisfy its predicate to a category. Rules are
// evaluated in ascending priority order and the first match wins.
type Rule struct {
	Name          string           `yaml:"name"`
	Priority      int              `yaml:"priority"`
	Category      string           `yaml:"category"`
	Source        string           `yaml:"source"`
	Match         Predicate        `yaml:"match"`
	Attachments   AttachmentFilter `yaml:"attachments"`
	PasswordHint  string           `yaml:"password_hint"`
	TrimFinancial bool             `yaml:"trim_financial"`
	Upload        bool             `yaml:"upload"`
}

// Validate checks the rule for structural problems and normalizes defaults.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("rule %q: category is required", r.Name)
	}
	if r.Source == "" {
		r.Source = SourceAttachments
	}
	if r.Source != SourceAttachments && r.Source != SourceBody {
		return fmt.Errorf("rule %q: unknown source %q", r.Name, r.Source)
	}
	if r.Match.Empty() {
		return fmt.Errorf("rule %q: at least one match condition is required", r.Name)
	}
	if r.Priority < 0 {
		return fmt.Errorf("rule %q: priority must not be negative", r.Name)
	}
	return nil
}

// containsFold reports whether needle occurs in haystack, comparing
// case-insensitively with runs of whitespace collapsed to single spaces.
func containsFold(haystack, needle string) bool {
	return strings.Contains(normalizeForMatch(haystack), normalizeForMatch(needle))
}

func normalizeForMatch(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
