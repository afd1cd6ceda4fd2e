package investigation

import (
	"errors"
	"testing"
)

func newFinding(category FindingCategory, claim string, sources []string, confidence float64) *Finding {
	return &Finding{Category: category, Claim: claim, SourceURLs: sources, Confidence: confidence}
}

func TestAddFindingDeduplicates(t *testing.T) {
	st := NewState("Test Person", "", 10)

	st.AddFinding(newFinding(CategoryBiography, "Born in 1984", []string{"https://a.com/x"}, 0.7))
	st.AddFinding(newFinding(CategoryBiography, "born in 1984", []string{"https://b.com/y"}, 0.8))

	if len(st.Findings) != 1 {
		t.Fatalf("expected 1 finding after duplicate insert, got %d", len(st.Findings))
	}
	got := st.Findings[0]
	if got.Confidence != 0.8 {
		t.Errorf("expected surviving confidence 0.8, got %v", got.Confidence)
	}
	if len(got.SourceURLs) != 2 {
		t.Errorf("expected sources from both inserts, got %v", got.SourceURLs)
	}
}

func TestAddFindingLowerConfidenceIsNoOp(t *testing.T) {
	st := NewState("Test Person", "", 10)

	st.AddFinding(newFinding(CategoryBiography, "Born in 1984", []string{"https://a.com"}, 0.8))
	st.AddFinding(newFinding(CategoryBiography, "Born in 1984", []string{"https://c.com"}, 0.5))

	if len(st.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(st.Findings))
	}
	if st.Findings[0].Confidence != 0.8 {
		t.Errorf("lower-confidence duplicate must not lower confidence, got %v", st.Findings[0].Confidence)
	}
	if len(st.Findings[0].SourceURLs) != 1 {
		t.Errorf("lower-confidence duplicate must not append sources, got %v", st.Findings[0].SourceURLs)
	}
}

func TestAddRiskRaisesConfidenceOnly(t *testing.T) {
	st := NewState("Test Person", "", 10)

	st.AddRisk(&RiskIndicator{Category: RiskLegal, Description: "SEC investigation in 2021", Severity: 8, Confidence: 0.5})
	st.AddRisk(&RiskIndicator{Category: RiskLegal, Description: "sec investigation in 2021", Severity: 8, Confidence: 0.7})
	st.AddRisk(&RiskIndicator{Category: RiskLegal, Description: "SEC investigation in 2021", Severity: 8, Confidence: 0.2})

	if len(st.Risks) != 1 {
		t.Fatalf("expected 1 risk, got %d", len(st.Risks))
	}
	if st.Risks[0].Confidence != 0.7 {
		t.Errorf("expected confidence raised to 0.7, got %v", st.Risks[0].Confidence)
	}
}

func TestAddConnectionDropsExactPairKeepsOtherRelationships(t *testing.T) {
	st := NewState("Test Person", "", 10)

	st.AddConnection(&Connection{EntityName: "Acme Corp", EntityType: EntityOrganization, Relationship: "board_member"})
	st.AddConnection(&Connection{EntityName: "acme corp", EntityType: EntityOrganization, Relationship: "board_member"})
	st.AddConnection(&Connection{EntityName: "Acme Corp", EntityType: EntityOrganization, Relationship: "investor"})

	if len(st.Connections) != 2 {
		t.Fatalf("expected 2 connections (duplicate pair dropped, second relationship kept), got %d", len(st.Connections))
	}
}

func TestShouldContinue(t *testing.T) {
	st := NewState("Test", "", 5)
	st.PendingQueries = []string{"query1"}
	st.IterationCount = 3

	if !st.ShouldContinue() {
		t.Error("expected continue with budget and pending queries")
	}

	st.IterationCount = 5
	if st.ShouldContinue() {
		t.Error("expected stop at iteration budget")
	}

	st.IterationCount = 3
	st.PendingQueries = nil
	if st.ShouldContinue() {
		t.Error("expected stop with empty pending queue")
	}

	st.PendingQueries = []string{"query1"}
	st.CurrentPhase = PhaseComplete
	if st.ShouldContinue() {
		t.Error("expected stop in terminal phase")
	}
}

func TestHighConfidenceFindings(t *testing.T) {
	st := NewState("Test", "", 10)
	st.AddFinding(newFinding(CategoryBiography, "Fact 1", nil, 0.9))
	st.AddFinding(newFinding(CategoryBiography, "Fact 2", nil, 0.5))
	st.AddFinding(newFinding(CategoryBiography, "Fact 3", nil, 0.8))

	high := st.HighConfidenceFindings(0.7)
	if len(high) != 2 {
		t.Fatalf("expected 2 high-confidence findings, got %d", len(high))
	}
	for _, f := range high {
		if f.Confidence < 0.7 {
			t.Errorf("finding below threshold returned: %v", f.Confidence)
		}
	}
}

func TestSearchResultsCapFIFO(t *testing.T) {
	st := NewState("Test", "", 10)

	batch := make([]SearchResult, 200)
	for i := range batch {
		batch[i] = SearchResult{Title: "r"}
	}
	for i := 0; i < 4; i++ {
		st.AddSearchResults(batch)
	}

	if len(st.SearchResults) != maxRetained {
		t.Errorf("expected results capped at %d, got %d", maxRetained, len(st.SearchResults))
	}
}

func TestRecordErrorAndSearched(t *testing.T) {
	st := NewState("Test", "", 10)
	st.RecordError("fact_extraction", errors.New("provider timeout"))

	if len(st.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(st.Errors))
	}

	st.RecordSearched("alpha beta")
	if !st.Searched("alpha beta") {
		t.Error("expected query to be marked searched")
	}
	if st.Searched("gamma") {
		t.Error("unexpected searched query")
	}
}
