package password

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Environment variables consulted for globally configured passwords.
const (
	EnvPassword  = "INWARD_PDF_PASSWORD"
	EnvPasswords = "INWARD_PDF_PASSWORDS"
)

// RuleHintProducer proposes the password hint attached to the matched rule.
type RuleHintProducer struct{}

// Candidates returns the rule's hint, or nothing when the rule has none.
func (RuleHintProducer) Candidates(pctx Context) []Candidate {
	if pctx.Rule.PasswordHint == "" {
		return nil
	}
	return []Candidate{{Value: pctx.Rule.PasswordHint, Source: SourceRuleHint}}
}

// EnvProducer proposes globally configured passwords. The environment is
// read once at construction so every message in a run sees the same values.
type EnvProducer struct {
	values []string
}

// NewEnvProducer reads INWARD_PDF_PASSWORD and the comma-separated
// INWARD_PDF_PASSWORDS list from the environment.
func NewEnvProducer() *EnvProducer {
	var values []string
	if v := strings.TrimSpace(os.Getenv(EnvPassword)); v != "" {
		values = append(values, v)
	}
	for _, v := range strings.Split(os.Getenv(EnvPasswords), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return &EnvProducer{values: values}
}

// Candidates returns the configured passwords in declaration order.
func (p *EnvProducer) Candidates(Context) []Candidate {
	out := make([]Candidate, 0, len(p.values))
	for _, v := range p.values {
		out = append(out, Candidate{Value: v, Source: SourceEnvironment})
	}
	return out
}

// mappingDoc is the on-disk shape of the password mapping file.
type mappingDoc struct {
	Senders  map[string][]string `json:"senders"`
	Domains  map[string][]string `json:"domains"`
	Subjects map[string][]string `json:"subjects"`
}

// MappingProducer proposes passwords from a JSON file keyed by sender
// address, sender domain, and subject keywords. The file can be reloaded
// between processing cycles.
type MappingProducer struct {
	path string
	mu   sync.RWMutex
	doc  mappingDoc
}

// NewMappingProducer loads the mapping file at path.
func NewMappingProducer(path string) (*MappingProducer, error) {
	p := &MappingProducer{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the mapping file, replacing the in-memory mappings.
func (p *MappingProducer) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("reading password mappings: %w", err)
	}

	var doc mappingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing password mappings %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()

	return nil
}

// Candidates matches the message's sender, sender domain, and subject
// against the mappings. Keys are compared case-insensitively and walked in
// sorted order so the candidate sequence is deterministic.
func (p *MappingProducer) Candidates(pctx Context) []Candidate {
	p.mu.RLock()
	doc := p.doc
	p.mu.RUnlock()

	sender := pctx.Message.SenderAddress()
	domain := pctx.Message.SenderDomain()
	subject := strings.ToLower(pctx.Message.Subject)

	var out []Candidate
	appendValues := func(values []string) {
		for _, v := range values {
			out = append(out, Candidate{Value: v, Source: SourceMappingFile})
		}
	}

	for _, key := range sortedKeys(doc.Senders) {
		if strings.ToLower(key) == sender {
			appendValues(doc.Senders[key])
		}
	}
	for _, key := range sortedKeys(doc.Domains) {
		if strings.ToLower(key) == domain {
			appendValues(doc.Domains[key])
		}
	}
	for _, key := range sortedKeys(doc.Subjects) {
		if strings.Contains(subject, strings.ToLower(key)) {
			appendValues(doc.Subjects[key])
		}
	}

	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bodyHintPattern captures tokens announced as passwords in notification
// bodies, e.g. "Password: ABC123" or "pwd - secret.99".
var bodyHintPattern = regexp.MustCompile(`(?i)(?:password|pwd)\s*[:\-]\s*([A-Za-z0-9@#_\-.]+)`)

// BodyHintProducer scans the message body for announced passwords.
type BodyHintProducer struct{}

// Candidates returns every password-like token found in the body, in
// document order.
func (BodyHintProducer) Candidates(pctx Context) []Candidate {
	matches := bodyHintPattern.FindAllStringSubmatch(pctx.Message.BodyText, -1)
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{Value: m[1], Source: SourceBodyHint})
	}
	return out
}
