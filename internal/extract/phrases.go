package extract

import "strings"

// Event kinds produced by the pipeline. These match the status labels
// the campaign service uses for per-target results.
const (
	KindClicked   = "Clicked Link"
	KindSubmitted = "Submitted Data"
)

// PhraseRule classifies a timeline message by substring match.
// The vocabulary is a heuristic, not a protocol guarantee: upstream
// deployments label the same event differently, so the table is ordered
// (more specific phrases first) and extendable from configuration
// without touching the matching code.
type PhraseRule struct {
	Phrase string
	Kind   string
}

// DefaultPhrases is the built-in phrase → event-kind table.
var DefaultPhrases = []PhraseRule{
	{Phrase: "submitted data", Kind: KindSubmitted},
	{Phrase: "data submitted", Kind: KindSubmitted},
	{Phrase: "form submitted", Kind: KindSubmitted},
	{Phrase: "credentials submitted", Kind: KindSubmitted},
	{Phrase: "submitted", Kind: KindSubmitted},
	{Phrase: "clicked link", Kind: KindClicked},
	{Phrase: "link clicked", Kind: KindClicked},
	{Phrase: "email clicked", Kind: KindClicked},
	{Phrase: "user clicked", Kind: KindClicked},
	{Phrase: "clicked", Kind: KindClicked},
}

// buildPhrases merges extra config-supplied phrases into the default
// table. Extra phrases are matched after the built-ins.
func buildPhrases(extra map[string]string) []PhraseRule {
	rules := make([]PhraseRule, len(DefaultPhrases), len(DefaultPhrases)+len(extra))
	copy(rules, DefaultPhrases)
	for phrase, kind := range extra {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		if kind == "" {
			kind = KindClicked
		}
		rules = append(rules, PhraseRule{Phrase: phrase, Kind: kind})
	}
	return rules
}

// classify returns the event kind for a lower-cased message, and whether
// any phrase matched.
func classify(rules []PhraseRule, loweredMsg string) (string, bool) {
	for _, r := range rules {
		if strings.Contains(loweredMsg, r.Phrase) {
			return r.Kind, true
		}
	}
	return "", false
}
