package rules

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Veraticus/inward-bound/internal/common"
	"github.com/Veraticus/inward-bound/internal/model"
	"gopkg.in/yaml.v3"
)

// Classification is the outcome of matching a message against the ruleset.
// Attachments holds the subset of the message's attachments the matched rule
// selected; it is nil for body-sourced rules.
type Classification struct {
	Category    string
	Rule        Rule
	Attachments []model.Attachment
}

// Engine evaluates messages against an ordered ruleset. The active ruleset
// is an immutable snapshot: reloads swap it atomically, and a reload that
// fails validation leaves the previous snapshot in place.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewEngine creates an engine from an initial ruleset. The rules are
// validated and ordered before the engine becomes usable.
func NewEngine(rules []Rule) (*Engine, error) {
	ordered, err := prepare(rules)
	if err != nil {
		return nil, err
	}
	return &Engine{rules: ordered}, nil
}

// LoadFile reads a YAML ruleset from path and atomically replaces the active
// snapshot. On any parse or validation error the engine keeps serving the
// previous ruleset and the error wraps common.ErrRuleLoad.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", common.ErrRuleLoad, path, err)
	}
	return e.Load(data)
}

// Load parses a YAML ruleset document and atomically replaces the active
// snapshot, with the same failure behavior as LoadFile.
func (e *Engine) Load(data []byte) error {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", common.ErrRuleLoad, err)
	}
	if len(doc.Rules) == 0 {
		return fmt.Errorf("%w: ruleset contains no rules", common.ErrRuleLoad)
	}

	ordered, err := prepare(doc.Rules)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrRuleLoad, err)
	}

	e.mu.Lock()
	e.rules = ordered
	e.mu.Unlock()

	return nil
}

// Classify evaluates the message against the active ruleset in ascending
// priority order and returns the first match. The boolean is false when no
// rule matched.
func (e *Engine) Classify(msg model.Message) (*Classification, bool) {
	e.mu.RLock()
	snapshot := e.rules
	e.mu.RUnlock()

	for _, rule := range snapshot {
		if !rule.Match.Matches(msg) {
			continue
		}

		c := &Classification{Category: rule.Category, Rule: rule}
		if rule.Source == SourceAttachments {
			c.Attachments = selectAttachments(rule.Attachments, msg.Attachments)
		}
		return c, true
	}

	return nil, false
}

// Rules returns a copy of the active ruleset in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// prepare validates every rule, then orders them by ascending priority.
// The sort is stable so rules sharing a priority keep their declared order.
func prepare(rules []Rule) ([]Rule, error) {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)

	seen := make(map[string]bool, len(ordered))
	for i := range ordered {
		if err := ordered[i].Validate(); err != nil {
			return nil, err
		}
		if seen[ordered[i].Name] {
			return nil, fmt.Errorf("duplicate rule name %q", ordered[i].Name)
		}
		seen[ordered[i].Name] = true
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	return ordered, nil
}

func selectAttachments(filter AttachmentFilter, attachments []model.Attachment) []model.Attachment {
	var selected []model.Attachment
	for _, att := range attachments {
		if filter.Matches(att) {
			selected = append(selected, att)
		}
	}
	return selected
}
