package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/dossierlabs/dossier/internal/audit"
	"github.com/dossierlabs/dossier/internal/confidence"
	"github.com/dossierlabs/dossier/internal/investigation"
	"github.com/dossierlabs/dossier/internal/llm"
)

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	results []investigation.SearchResult
	err     error
}

func (f *fakeSearch) Search(_ context.Context, query string) ([]investigation.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]investigation.SearchResult, len(f.results))
	copy(out, f.results)
	for i := range out {
		out[i].Query = query
	}
	return out, nil
}

// connProvider emits a fresh organization connection each call so
// query refinement always has follow-ups available.
type connProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *connProvider) Name() string { return "conn" }

func (p *connProvider) Generate(_ context.Context, _ llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	content := fmt.Sprintf(
		`[{"entity_name": "Org %d", "entity_type": "organization", "relationship": "founded", "source_urls": ["https://sec.gov/x"]}]`,
		n,
	)
	return &llm.Response{Content: content, Provider: "conn"}, nil
}

type errProvider struct{}

func (errProvider) Name() string { return "down" }

func (errProvider) Generate(_ context.Context, _ llm.Request) (*llm.Response, error) {
	return nil, errors.New("provider unavailable")
}

func newEngine(t *testing.T, search SearchClient, provider llm.Provider) *Engine {
	t.Helper()
	router, err := llm.NewRouter(llm.Registry{
		llm.TaskFast:    {provider},
		llm.TaskComplex: {provider},
	}, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	eng, err := New(Config{Search: search, Router: router, Scorer: confidence.NewScorer()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func someResults() []investigation.SearchResult {
	return []investigation.SearchResult{
		{Title: "Profile", Snippet: "CEO of Acme", URL: "https://reuters.com/a", Relevance: 0.1},
	}
}

func TestInvestigationRespectsIterationCap(t *testing.T) {
	search := &fakeSearch{results: someResults()}
	eng := newEngine(t, search, &connProvider{})

	state, err := eng.Investigate(context.Background(), "Jane Doe", "", 3, nil)
	if err != nil {
		t.Fatalf("Investigate: %v", err)
	}
	if state.CurrentPhase != investigation.PhaseComplete {
		t.Errorf("expected COMPLETE, got %s", state.CurrentPhase)
	}
	// The provider always offers fresh follow-ups; only the cap stops it.
	if state.IterationCount != 3 {
		t.Errorf("expected exactly 3 iterations, got %d", state.IterationCount)
	}
	if state.FinalReport == "" {
		t.Error("finished investigation must carry a report")
	}
}

func TestInvestigationDrainsQueryPool(t *testing.T) {
	// Zero search results leave every stage empty; only gap queries
	// refill the pool, and once searched they are filtered out.
	search := &fakeSearch{}
	eng := newEngine(t, search, &connProvider{})

	state, err := eng.Investigate(context.Background(), "Jane Doe", "", 10, nil)
	if err != nil {
		t.Fatalf("Investigate: %v", err)
	}
	if state.CurrentPhase != investigation.PhaseComplete {
		t.Errorf("expected COMPLETE, got %s", state.CurrentPhase)
	}
	if state.IterationCount >= 10 {
		t.Errorf("pool should drain well before the cap, got %d iterations", state.IterationCount)
	}
	if !strings.Contains(state.FinalReport, "No significant risks identified") {
		t.Error("empty-evidence report should state no risks found")
	}
}

func TestQueriesNeverRepeat(t *testing.T) {
	search := &fakeSearch{results: someResults()}
	eng := newEngine(t, search, &connProvider{})

	_, err := eng.Investigate(context.Background(), "Jane Doe", "fintech", 4, nil)
	if err != nil {
		t.Fatalf("Investigate: %v", err)
	}

	seen := make(map[string]int)
	for _, q := range search.queries {
		seen[q]++
	}
	for q, n := range seen {
		if n > 1 {
			t.Errorf("query %q issued %d times", q, n)
		}
	}
}

func TestStageFailuresDoNotAbort(t *testing.T) {
	search := &fakeSearch{results: someResults()}
	eng := newEngine(t, search, errProvider{})

	state, err := eng.Investigate(context.Background(), "Jane Doe", "", 2, nil)
	if err != nil {
		t.Fatalf("stage failures must not abort: %v", err)
	}
	if state.CurrentPhase != investigation.PhaseComplete {
		t.Errorf("expected COMPLETE, got %s", state.CurrentPhase)
	}
	if len(state.Errors) == 0 {
		t.Error("stage failures should be recorded in state errors")
	}
	if state.FinalReport == "" {
		t.Error("report renders even with no extracted evidence")
	}
}

func TestSearchFailureRecorded(t *testing.T) {
	search := &fakeSearch{err: errors.New("limiter closed")}
	eng := newEngine(t, search, &connProvider{})

	state, err := eng.Investigate(context.Background(), "Jane Doe", "", 2, nil)
	if err != nil {
		t.Fatalf("Investigate: %v", err)
	}
	if len(state.Errors) == 0 {
		t.Error("search errors should be recorded")
	}
}

func TestCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	search := &fakeSearch{results: someResults()}
	eng := newEngine(t, search, &connProvider{})

	if _, err := eng.Investigate(ctx, "Jane Doe", "", 3, nil); err == nil {
		t.Fatal("cancelled context must surface an error")
	}
}

func TestProgressEvents(t *testing.T) {
	var mu sync.Mutex
	var phases []investigation.Phase

	search := &fakeSearch{}
	router, err := llm.NewRouter(llm.Registry{
		llm.TaskFast:    {&connProvider{}},
		llm.TaskComplex: {&connProvider{}},
	}, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	eng, err := New(Config{
		Search: search,
		Router: router,
		Progress: func(p Progress) {
			mu.Lock()
			phases = append(phases, p.Phase)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := eng.Investigate(context.Background(), "Jane Doe", "", 1, nil); err != nil {
		t.Fatalf("Investigate: %v", err)
	}

	if len(phases) == 0 {
		t.Fatal("expected progress events")
	}
	if phases[len(phases)-1] != investigation.PhaseComplete {
		t.Errorf("last event should be COMPLETE, got %s", phases[len(phases)-1])
	}
}

func TestTrailRecordsModelCalls(t *testing.T) {
	search := &fakeSearch{results: someResults()}
	eng := newEngine(t, search, &connProvider{})

	trail, err := audit.NewTrail(t.TempDir(), "Jane Doe")
	if err != nil {
		t.Fatalf("NewTrail: %v", err)
	}

	if _, err := eng.Investigate(context.Background(), "Jane Doe", "", 1, trail); err != nil {
		t.Fatalf("Investigate: %v", err)
	}
	if err := trail.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(trail.Path())
	if err != nil {
		t.Fatalf("read trail: %v", err)
	}

	modelCalls := 0
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var event struct {
			EventType string         `json:"event_type"`
			Data      map[string]any `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("malformed trail line %q: %v", line, err)
		}
		if event.EventType != "model_call" {
			continue
		}
		modelCalls++
		if event.Data["provider"] != "conn" {
			t.Errorf("model_call should carry the provider, got %v", event.Data["provider"])
		}
		if _, ok := event.Data["task"]; !ok {
			t.Error("model_call should carry the task class")
		}
	}
	if modelCalls == 0 {
		t.Error("expected model_call events for each routed inference")
	}
}

func TestRequiredCollaborators(t *testing.T) {
	router, _ := llm.NewRouter(llm.Registry{llm.TaskFast: {&connProvider{}}, llm.TaskComplex: {&connProvider{}}}, nil)
	if _, err := New(Config{Router: router}); err == nil {
		t.Error("missing search client must be rejected")
	}
	if _, err := New(Config{Search: &fakeSearch{}}); err == nil {
		t.Error("missing router must be rejected")
	}
}
