// Package password resolves the passwords protecting encrypted attachments.
// Candidates are gathered from a fixed cascade of sources and tried in
// order until one opens the document.
package password

import (
	"github.com/Veraticus/inward-bound/internal/model"
	"github.com/Veraticus/inward-bound/internal/rules"
)

// Source identifies where a password candidate came from.
type Source string

// Candidate sources, in cascade order.
const (
	SourceRuleHint    Source = "rule_metadata"
	SourceEnvironment Source = "environment"
	SourceMappingFile Source = "mapping_file"
	SourceBodyHint    Source = "body_hint"
)

// Candidate is a single password to try, tagged with its origin.
type Candidate struct {
	Value  string
	Source Source
}

// Context carries everything a producer may consult when proposing
// candidates for one attachment.
type Context struct {
	Message    model.Message
	Rule       rules.Rule
	Attachment model.Attachment
}

// Producer proposes password candidates for an attachment. Producers must
// be deterministic: the same Context always yields the same candidates in
// the same order.
type Producer interface {
	Candidates(pctx Context) []Candidate
}

// Reloader is implemented by producers whose backing data can change
// between processing cycles.
type Reloader interface {
	Reload() error
}
