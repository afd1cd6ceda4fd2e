package investigation

import "strings"

// Matcher decides whether two pieces of evidence describe the same thing.
// The merge algorithm in State only speaks to this interface, so a fuzzy
// or embedding-based matcher can be substituted without touching it.
type Matcher interface {
	SameFinding(a, b *Finding) bool
	SameRisk(a, b *RiskIndicator) bool
	SameConnection(a, b *Connection) bool
}

// caseFoldMatcher is the guaranteed baseline: exact match after case folding.
// Paraphrases of the same fact will not merge under this matcher.
type caseFoldMatcher struct{}

// DefaultMatcher returns the exact case-insensitive matcher.
func DefaultMatcher() Matcher { return caseFoldMatcher{} }

func (caseFoldMatcher) SameFinding(a, b *Finding) bool {
	return strings.EqualFold(a.Claim, b.Claim)
}

func (caseFoldMatcher) SameRisk(a, b *RiskIndicator) bool {
	return strings.EqualFold(a.Description, b.Description)
}

func (caseFoldMatcher) SameConnection(a, b *Connection) bool {
	return strings.EqualFold(a.EntityName, b.EntityName) && a.Relationship == b.Relationship
}
