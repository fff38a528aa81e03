package corpus

import (
	"strings"

	"github.com/ricesearch/rice-eval/internal/config"
)

// Category is the label assigned to a document.
type Category string

// Built-in categories of the WebBizz article set.
const (
	SafetyAndSustainability Category = "Safety and sustainability"
	Support                 Category = "Support"
	ReturnAndExchange       Category = "Return and exchange"
	Miscellaneous           Category = "Miscellaneous"
)

// String returns the display name.
func (c Category) String() string {
	return string(c)
}

// Rule assigns Category when any of its keywords occurs in a document.
type Rule struct {
	Category Category
	Keywords []string
}

func (r Rule) matches(lowered string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Category: SafetyAndSustainability, Keywords: []string{"sustainability"}},
		{Category: Support, Keywords: []string{"support"}},
		{Category: ReturnAndExchange, Keywords: []string{"return"}},
	}
}

// RulesFromConfig converts configured rules, keeping their order. With no
// configured rules it returns DefaultRules.
func RulesFromConfig(cfg config.LabelerConfig) []Rule {
	if len(cfg.Rules) == 0 {
		return DefaultRules()
	}
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, Rule{Category: Category(r.Category), Keywords: r.Keywords})
	}
	return rules
}

// Labeler assigns exactly one category to a document text.
// Rules are evaluated in order and the first match wins; a text matching no
// rule is Miscellaneous.
type Labeler struct {
	rules []Rule
}

// NewLabeler creates a labeler. Keywords are lowercased once here so Label
// only lowercases the document.
func NewLabeler(rules []Rule) *Labeler {
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		normalized = append(normalized, Rule{Category: r.Category, Keywords: kws})
	}
	return &Labeler{rules: normalized}
}

// NewDefaultLabeler creates a labeler with DefaultRules.
func NewDefaultLabeler() *Labeler {
	return NewLabeler(DefaultRules())
}

// Label returns the category of the first matching rule.
func (l *Labeler) Label(text string) Category {
	lowered := strings.ToLower(text)
	for _, r := range l.rules {
		if r.matches(lowered) {
			return r.Category
		}
	}
	return Miscellaneous
}

// Categories returns every category the labeler can produce, in rule order
// followed by Miscellaneous.
func (l *Labeler) Categories() []Category {
	seen := make(map[Category]bool, len(l.rules)+1)
	out := make([]Category, 0, len(l.rules)+1)
	for _, r := range l.rules {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	if !seen[Miscellaneous] {
		out = append(out, Miscellaneous)
	}
	return out
}

// LabelDocuments returns copies of docs with Label set from their text.
func (l *Labeler) LabelDocuments(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		d.Label = l.Label(d.Text)
		out[i] = d
	}
	return out
}
