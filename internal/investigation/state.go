package investigation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is one named stage of the investigation state machine.
type Phase string

const (
	PhaseInitialSearch     Phase = "initial_search"
	PhaseFactExtraction    Phase = "fact_extraction"
	PhaseRiskAnalysis      Phase = "risk_analysis"
	PhaseConnectionMapping Phase = "connection_mapping"
	PhaseQueryRefinement   Phase = "query_refinement"
	PhaseSourceValidation  Phase = "source_validation"
	PhaseReportGeneration  Phase = "report_generation"
	PhaseComplete          Phase = "complete"
)

// maxRetained bounds the append-only search result and history sequences.
// Oldest entries are evicted FIFO past this point.
const maxRetained = 500

// State is the aggregate root for one running investigation. It is owned
// by a single workflow engine; stages receive it read-only and return
// deltas which the engine applies. The merge operations take the lock so
// they stay correct if stages ever run concurrently.
type State struct {
	ID            string
	TargetName    string
	TargetContext string

	SearchHistory  []string
	SearchResults  []SearchResult
	PendingQueries []string

	Findings    []*Finding
	Risks       []*RiskIndicator
	Connections []*Connection

	CurrentPhase   Phase
	IterationCount int
	MaxIterations  int

	Errors      []string
	FinalReport string

	StartedAt time.Time

	matcher Matcher
	mu      sync.Mutex
}

// NewState creates the initial state for a target.
func NewState(targetName, targetContext string, maxIterations int) *State {
	return &State{
		ID:            uuid.NewString(),
		TargetName:    targetName,
		TargetContext: targetContext,
		CurrentPhase:  PhaseInitialSearch,
		MaxIterations: maxIterations,
		StartedAt:     time.Now(),
		matcher:       DefaultMatcher(),
	}
}

// SetMatcher replaces the evidence equivalence predicate. Must be called
// before any evidence is merged.
func (s *State) SetMatcher(m Matcher) { s.matcher = m }

// AddFinding merges a finding under the dedup rule: an equivalent claim
// already present absorbs the incoming one, taking its confidence only if
// strictly higher and appending its sources. Otherwise the finding is
// appended. Findings are never deleted.
func (s *State) AddFinding(f *Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.Findings {
		if s.matcher.SameFinding(existing, f) {
			if f.Confidence > existing.Confidence {
				existing.Confidence = f.Confidence
				existing.SourceURLs = append(existing.SourceURLs, f.SourceURLs...)
			}
			return
		}
	}
	s.Findings = append(s.Findings, f)
}

// AddRisk merges a risk indicator: an equivalent description absorbs the
// incoming one, taking its confidence only if strictly higher.
func (s *State) AddRisk(r *RiskIndicator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.Risks {
		if s.matcher.SameRisk(existing, r) {
			if r.Confidence > existing.Confidence {
				existing.Confidence = r.Confidence
			}
			return
		}
	}
	s.Risks = append(s.Risks, r)
}

// AddConnection appends a connection unless an identical
// (entity, relationship) pair already exists; duplicates are dropped, not
// merged. The same entity may appear under several relationship labels.
func (s *State) AddConnection(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.Connections {
		if s.matcher.SameConnection(existing, c) {
			return
		}
	}
	s.Connections = append(s.Connections, c)
}

// AddSearchResults appends results, evicting the oldest past the cap.
func (s *State) AddSearchResults(results []SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SearchResults = append(s.SearchResults, results...)
	if n := len(s.SearchResults); n > maxRetained {
		s.SearchResults = s.SearchResults[n-maxRetained:]
	}
}

// RecordSearched marks a query as consumed. Queries never re-enter the
// pending queue once searched, even on zero results.
func (s *State) RecordSearched(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SearchHistory = append(s.SearchHistory, query)
	if n := len(s.SearchHistory); n > maxRetained {
		s.SearchHistory = s.SearchHistory[n-maxRetained:]
	}
}

// Searched reports whether a query has already been issued.
func (s *State) Searched(query string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.SearchHistory {
		if q == query {
			return true
		}
	}
	return false
}

// RecordError appends a recoverable error to the error log.
func (s *State) RecordError(stage string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", stage, err))
}

// ShouldContinue is the loop's sole branch point: continue searching only
// while under the iteration budget with queries still pending. Both checks
// are required since a provider could propose queries indefinitely.
func (s *State) ShouldContinue() bool {
	return s.IterationCount < s.MaxIterations &&
		len(s.PendingQueries) > 0 &&
		s.CurrentPhase != PhaseReportGeneration &&
		s.CurrentPhase != PhaseComplete
}

// HighConfidenceFindings returns findings at or above the threshold.
func (s *State) HighConfidenceFindings(threshold float64) []*Finding {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Finding
	for _, f := range s.Findings {
		if f.Confidence >= threshold {
			out = append(out, f)
		}
	}
	return out
}

// CriticalRisks returns risk indicators at or above the severity floor.
func (s *State) CriticalRisks(minSeverity int) []*RiskIndicator {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*RiskIndicator
	for _, r := range s.Risks {
		if r.Severity >= minSeverity {
			out = append(out, r)
		}
	}
	return out
}

// FindingCountByCategory tallies findings per category, used by the
// refinement phase to spot coverage gaps.
func (s *State) FindingCountByCategory() map[FindingCategory]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[FindingCategory]int)
	for _, f := range s.Findings {
		counts[f.Category]++
	}
	return counts
}

// RecentResults returns up to n of the most recent search results, oldest
// first. Deterministic for a given state.
func (s *State) RecentResults(n int) []SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.SearchResults) <= n {
		out := make([]SearchResult, len(s.SearchResults))
		copy(out, s.SearchResults)
		return out
	}
	out := make([]SearchResult, n)
	copy(out, s.SearchResults[len(s.SearchResults)-n:])
	return out
}
