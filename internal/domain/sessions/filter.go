package sessions

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier identifies which stage of the match cascade produced a listing.
type Tier int

const (
	TierNone Tier = iota
	TierAll
	TierExact
	TierCaseInsensitive
	TierHeuristic
)

func (t Tier) String() string {
	switch t {
	case TierAll:
		return "all"
	case TierExact:
		return "exact"
	case TierCaseInsensitive:
		return "case_insensitive"
	case TierHeuristic:
		return "heuristic"
	default:
		return "none"
	}
}

//go:embed keywords.yaml
var defaultKeywords []byte

type kindKeywords struct {
	Kind     string   `yaml:"kind"`
	Aliases  []string `yaml:"aliases"`
	Keywords []string `yaml:"keywords"`
}

// Matcher holds the finite allowlist used by the heuristic tier.
type Matcher struct {
	byName map[string][]string
}

// NewMatcher parses a keyword allowlist document.
func NewMatcher(data []byte) (*Matcher, error) {
	var doc struct {
		Kinds []kindKeywords `yaml:"kinds"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse keyword allowlist: %w", err)
	}
	m := &Matcher{byName: make(map[string][]string)}
	for _, k := range doc.Kinds {
		if strings.TrimSpace(k.Kind) == "" {
			return nil, fmt.Errorf("keyword allowlist: entry without kind")
		}
		words := make([]string, 0, len(k.Keywords))
		for _, w := range k.Keywords {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				words = append(words, w)
			}
		}
		for _, name := range append([]string{k.Kind}, k.Aliases...) {
			m.byName[strings.ToLower(strings.TrimSpace(name))] = words
		}
	}
	return m, nil
}

var defaultMatcher = mustMatcher(defaultKeywords)

func mustMatcher(data []byte) *Matcher {
	m, err := NewMatcher(data)
	if err != nil {
		panic(err)
	}
	return m
}

// DefaultMatcher returns the allowlist shipped with the binary.
func DefaultMatcher() *Matcher { return defaultMatcher }

// Keywords returns the heuristic keywords for a kind, or nil when the kind
// is not on the allowlist.
func (m *Matcher) Keywords(kind string) []string {
	return m.byName[strings.ToLower(strings.TrimSpace(kind))]
}

// Filter applies the match cascade with the default allowlist.
func Filter(list []Summary, requested string) []Summary {
	out, _ := defaultMatcher.FilterWithTier(list, requested)
	return out
}

// FilterWithTier returns the sessions matching the requested analysis type
// and the tier that produced them. An empty request returns the input
// unchanged. Tiers run in order and the first non-empty one wins:
// exact match on the stored type, case-insensitive match, then a keyword
// search in name or filename for allowlisted kinds.
func (m *Matcher) FilterWithTier(list []Summary, requested string) ([]Summary, Tier) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return list, TierAll
	}

	if out := selectWhere(list, func(s Summary) bool {
		return s.AnalysisType == requested
	}); len(out) > 0 {
		return out, TierExact
	}

	if out := selectWhere(list, func(s Summary) bool {
		return strings.EqualFold(s.AnalysisType, requested)
	}); len(out) > 0 {
		return out, TierCaseInsensitive
	}

	words := m.Keywords(requested)
	if len(words) > 0 {
		if out := selectWhere(list, func(s Summary) bool {
			name := strings.ToLower(s.Name)
			file := strings.ToLower(s.Filename)
			for _, w := range words {
				if strings.Contains(name, w) || strings.Contains(file, w) {
					return true
				}
			}
			return false
		}); len(out) > 0 {
			return out, TierHeuristic
		}
	}
	return []Summary{}, TierNone
}

func selectWhere(list []Summary, keep func(Summary) bool) []Summary {
	var out []Summary
	for _, s := range list {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
