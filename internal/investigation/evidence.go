package investigation

import "time"

// FindingCategory classifies a factual claim about the target.
type FindingCategory string

const (
	CategoryBiography     FindingCategory = "biography"
	CategoryProfessional  FindingCategory = "professional"
	CategoryFinancial     FindingCategory = "financial"
	CategoryAssociations  FindingCategory = "associations"
	CategoryControversies FindingCategory = "controversies"
)

// RiskCategory classifies a risk indicator.
type RiskCategory string

const (
	RiskLegal       RiskCategory = "legal"
	RiskFinancial   RiskCategory = "financial"
	RiskReputation  RiskCategory = "reputation"
	RiskAssociation RiskCategory = "association"
	RiskPattern     RiskCategory = "pattern"
)

// EntityType classifies the far end of a connection edge.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityEvent        EntityType = "event"
)

// Finding is a single categorized factual claim with provenance.
// Findings are created by extraction and mutated only by validation:
// confidence may rise, sources may be appended, verified may flip.
// Findings are never deleted.
type Finding struct {
	Category    FindingCategory `json:"category"`
	Claim       string          `json:"claim"`
	SourceURLs  []string        `json:"source_urls"`
	Confidence  float64         `json:"confidence"`
	Verified    bool            `json:"verified"`
	ExtractedAt time.Time       `json:"extracted_at"`
}

// RiskIndicator is a flagged concern with severity and supporting evidence.
type RiskIndicator struct {
	Category    RiskCategory `json:"category"`
	Description string       `json:"description"`
	Severity    int          `json:"severity"` // 1..10
	Evidence    []string     `json:"evidence"`
	SourceURLs  []string     `json:"source_urls"`
	Confidence  float64      `json:"confidence"`
}

// Connection is a relationship edge between the target and another entity.
type Connection struct {
	EntityName   string     `json:"entity_name"`
	EntityType   EntityType `json:"entity_type"`
	Relationship string     `json:"relationship"`
	Timeframe    string     `json:"timeframe,omitempty"`
	SourceURLs   []string   `json:"source_urls"`
	Confidence   float64    `json:"confidence"`
}

// SearchResult is one result returned by the search collaborator.
// Results are immutable once created and retained append-only for
// provenance and re-querying context.
type SearchResult struct {
	Query     string    `json:"query"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Relevance float64   `json:"relevance_score"`
}
