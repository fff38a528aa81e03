package corpus

import (
	"reflect"
	"testing"

	"github.com/ricesearch/rice-eval/internal/config"
)

func TestLabeler_DefaultRules(t *testing.T) {
	l := NewDefaultLabeler()

	tests := []struct {
		name string
		text string
		want Category
	}{
		{"sustainability", "Our commitment to sustainability drives packaging choices.", SafetyAndSustainability},
		{"support", "Contact customer support any time.", Support},
		{"return", "You can return items within 30 days.", ReturnAndExchange},
		{"no match", "WebBizz launches a new storefront.", Miscellaneous},
		{"help is not a keyword", "Our agents can help you anytime.", Miscellaneous},
		{"security is not a keyword", "We take account security seriously.", Miscellaneous},
		{"empty", "", Miscellaneous},
		{"case insensitive", "SUSTAINABILITY REPORT", SafetyAndSustainability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Label(tt.text); got != tt.want {
				t.Errorf("Label(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestLabeler_FirstMatchWins(t *testing.T) {
	l := NewDefaultLabeler()

	// Matches sustainability (rule 1), support (rule 2) and return (rule 3).
	text := "Our support team explains how returns fit our sustainability goals."
	if got := l.Label(text); got != SafetyAndSustainability {
		t.Errorf("Label() = %q, want %q", got, SafetyAndSustainability)
	}

	// Matches support and return only.
	text = "Need support with a return?"
	if got := l.Label(text); got != Support {
		t.Errorf("Label() = %q, want %q", got, Support)
	}
}

func TestLabeler_Deterministic(t *testing.T) {
	l := NewDefaultLabeler()
	text := "Return policy and support hours"

	first := l.Label(text)
	for i := 0; i < 100; i++ {
		if got := l.Label(text); got != first {
			t.Fatalf("Label() changed between calls: %q then %q", first, got)
		}
	}
}

func TestLabeler_CustomRules(t *testing.T) {
	l := NewLabeler([]Rule{
		{Category: "Billing", Keywords: []string{"  Invoice ", ""}},
	})

	if got := l.Label("Where is my invoice?"); got != "Billing" {
		t.Errorf("Label() = %q, want Billing", got)
	}
	if got := l.Label("sustainability"); got != Miscellaneous {
		t.Errorf("Label() = %q, want %q", got, Miscellaneous)
	}
}

func TestLabeler_Categories(t *testing.T) {
	l := NewDefaultLabeler()

	want := []Category{SafetyAndSustainability, Support, ReturnAndExchange, Miscellaneous}
	if got := l.Categories(); !reflect.DeepEqual(got, want) {
		t.Errorf("Categories() = %v, want %v", got, want)
	}
}

func TestRulesFromConfig(t *testing.T) {
	rules := RulesFromConfig(config.Default().Labeler)

	if !reflect.DeepEqual(rules, DefaultRules()) {
		t.Errorf("RulesFromConfig(defaults) = %+v, want %+v", rules, DefaultRules())
	}

	custom := RulesFromConfig(config.LabelerConfig{Rules: []config.LabelRule{
		{Category: "Safety and sustainability", Keywords: []string{"sustainability", "security"}},
		{Category: "Support", Keywords: []string{"support", "help"}},
	}})
	l := NewLabeler(custom)
	if got := l.Label("We can help"); got != Support {
		t.Errorf("Label() with configured help keyword = %q, want %q", got, Support)
	}
	if got := l.Label("You can return it"); got != Miscellaneous {
		t.Errorf("Label() = %q, want %q", got, Miscellaneous)
	}
}

func TestLabeler_LabelDocuments(t *testing.T) {
	docs := []Document{
		{ID: "1", Text: "Our return policy"},
		{ID: "2", Text: "About us", Label: Support},
	}

	labeled := NewDefaultLabeler().LabelDocuments(docs)

	if labeled[0].Label != ReturnAndExchange {
		t.Errorf("labeled[0].Label = %q, want %q", labeled[0].Label, ReturnAndExchange)
	}
	if labeled[1].Label != Miscellaneous {
		t.Errorf("labeled[1].Label = %q, want %q", labeled[1].Label, Miscellaneous)
	}
	if docs[1].Label != Support {
		t.Error("LabelDocuments must not modify its input")
	}
}
