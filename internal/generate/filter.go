package generate

import (
	"regexp"
	"strings"
)

// BlockedResponse replaces output rejected by the safety filter.
const BlockedResponse = "I cannot provide a response to this query due to content policy restrictions. " +
	"Please rephrase your question or consult appropriate resources for guidance."

// Verdict is a safety filter decision.
type Verdict struct {
	Blocked bool
	Reason  string
}

// SafetyFilter checks complete model output before delivery.
type SafetyFilter interface {
	Check(text string) Verdict
}

// NopFilter passes everything through. Used when filtering is disabled.
type NopFilter struct{}

func (NopFilter) Check(string) Verdict { return Verdict{} }

// PatternFilter blocks output matching any of its deny patterns,
// case-insensitively.
type PatternFilter struct {
	patterns []*regexp.Regexp
	names    []string
}

// defaultDenyPatterns cover advice the assistant must not give.
var defaultDenyPatterns = map[string]string{
	"evasion":         `(?i)how to (evade|circumvent|bypass) (regulations?|sanctions|compliance)`,
	"falsification":   `(?i)falsif(y|ying) (records|reports|audit)`,
	"concealment":     `(?i)(conceal|hide) (violations?|breaches) from (regulators?|auditors?)`,
	"prompt-leak":     `(?i)my system (prompt|instructions) (is|are|say)`,
	"credential-leak": `(?i)(api[_ ]key|password|secret)[:=]\s*\S+`,
}

// DefaultFilter returns a PatternFilter with the built-in deny list.
func DefaultFilter() *PatternFilter {
	f := &PatternFilter{}
	for name, pat := range defaultDenyPatterns {
		f.patterns = append(f.patterns, regexp.MustCompile(pat))
		f.names = append(f.names, name)
	}
	return f
}

// NewPatternFilter compiles the given patterns. Invalid patterns are
// rejected.
func NewPatternFilter(patterns map[string]string) (*PatternFilter, error) {
	f := &PatternFilter{}
	for name, pat := range patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, re)
		f.names = append(f.names, name)
	}
	return f, nil
}

// Check reports the first matching deny pattern.
func (f *PatternFilter) Check(text string) Verdict {
	if strings.TrimSpace(text) == "" {
		return Verdict{}
	}
	for i, re := range f.patterns {
		if re.MatchString(text) {
			return Verdict{Blocked: true, Reason: f.names[i]}
		}
	}
	return Verdict{}
}
