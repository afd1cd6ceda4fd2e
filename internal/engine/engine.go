// Package engine runs the investigation workflow: a phase state
// machine that alternates searching, extraction, and analysis until
// the iteration budget or the query pool is exhausted, then validates
// sources and renders the report.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dossierlabs/dossier/internal/audit"
	"github.com/dossierlabs/dossier/internal/confidence"
	"github.com/dossierlabs/dossier/internal/investigation"
	"github.com/dossierlabs/dossier/internal/llm"
	"github.com/dossierlabs/dossier/internal/metrics"
	"github.com/dossierlabs/dossier/internal/report"
	"github.com/dossierlabs/dossier/internal/scrape"
	"github.com/dossierlabs/dossier/internal/stages"
)

// queriesPerIteration bounds how many pending queries one search
// visit consumes.
const queriesPerIteration = 3

// scrapeTopN is how many pages a scrape-enabled iteration deepens.
const scrapeTopN = 2

// SearchClient is the web search collaborator.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]investigation.SearchResult, error)
}

// Scraper fetches a page as plain text for deeper extraction.
type Scraper interface {
	Fetch(ctx context.Context, url string) scrape.Result
}

// Progress is a phase-transition snapshot emitted to observers.
type Progress struct {
	InvestigationID string              `json:"investigation_id"`
	Target          string              `json:"target"`
	Phase           investigation.Phase `json:"phase"`
	Iteration       int                 `json:"iteration"`
	Findings        int                 `json:"findings"`
	Risks           int                 `json:"risks"`
	Connections     int                 `json:"connections"`
}

// ProgressFunc receives phase transitions as they happen. Called from
// the engine goroutine; implementations must not block.
type ProgressFunc func(Progress)

// Config wires the engine's collaborators. Search, Router, and Scorer
// are required; the rest are optional.
type Config struct {
	Search   SearchClient
	Router   *llm.Router
	Scorer   *confidence.Scorer
	Logger   *zap.Logger
	Scraper  Scraper // nil disables scrape deepening
	Progress ProgressFunc
}

// Engine executes investigations. Safe for concurrent use; each
// investigation owns its own state.
type Engine struct {
	search    SearchClient
	facts     *stages.FactExtractor
	risks     *stages.RiskAnalyzer
	conns     *stages.ConnectionMapper
	validator *stages.SourceValidator
	scorer    *confidence.Scorer
	scraper   Scraper
	progress  ProgressFunc
	log       *zap.Logger
}

func New(cfg Config) (*Engine, error) {
	if cfg.Search == nil {
		return nil, fmt.Errorf("engine: search client is required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("engine: inference router is required")
	}
	if cfg.Scorer == nil {
		cfg.Scorer = confidence.NewScorer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Engine{
		search:    cfg.Search,
		facts:     stages.NewFactExtractor(cfg.Router, cfg.Scorer, cfg.Logger),
		risks:     stages.NewRiskAnalyzer(cfg.Router, cfg.Scorer, cfg.Logger),
		conns:     stages.NewConnectionMapper(cfg.Router, cfg.Scorer, cfg.Logger),
		validator: stages.NewSourceValidator(cfg.Router, cfg.Scorer, cfg.Logger),
		scorer:    cfg.Scorer,
		scraper:   cfg.Scraper,
		progress:  cfg.Progress,
		log:       cfg.Logger,
	}, nil
}

// Investigate runs a full investigation and returns the final state.
// The trail may be nil. The returned state is complete even when err is
// non-nil only for context cancellation; stage failures never abort.
func (e *Engine) Investigate(ctx context.Context, target, targetContext string, maxIterations int, trail *audit.Trail) (*investigation.State, error) {
	state := investigation.NewState(target, targetContext, maxIterations)
	err := e.Run(ctx, state, trail)
	return state, err
}

// Run drives an existing state through the phase machine to COMPLETE.
func (e *Engine) Run(ctx context.Context, state *investigation.State, trail *audit.Trail) error {
	start := time.Now()
	if trail != nil {
		ctx = llm.WithObserver(ctx, func(provider string, class llm.TaskClass, latencyMS float64, tokens int) {
			trail.LogModelCall(provider, string(class), latencyMS, tokens)
		})
	}
	e.log.Info("investigation started",
		zap.String("id", state.ID),
		zap.String("target", state.TargetName),
		zap.Int("max_iterations", state.MaxIterations),
	)

	for state.CurrentPhase != investigation.PhaseComplete {
		if err := ctx.Err(); err != nil {
			metrics.InvestigationsTotal.WithLabelValues("cancelled").Inc()
			return fmt.Errorf("investigation cancelled in %s: %w", state.CurrentPhase, err)
		}

		switch state.CurrentPhase {
		case investigation.PhaseInitialSearch:
			e.searchPhase(ctx, state, trail)
			e.transition(state, trail, investigation.PhaseFactExtraction)

		case investigation.PhaseFactExtraction:
			e.factPhase(ctx, state, trail)
			e.transition(state, trail, investigation.PhaseRiskAnalysis)

		case investigation.PhaseRiskAnalysis:
			e.riskPhase(ctx, state, trail)
			e.transition(state, trail, investigation.PhaseConnectionMapping)

		case investigation.PhaseConnectionMapping:
			e.connectionPhase(ctx, state, trail)
			if state.ShouldContinue() {
				e.transition(state, trail, investigation.PhaseQueryRefinement)
			} else {
				e.transition(state, trail, investigation.PhaseSourceValidation)
			}

		case investigation.PhaseQueryRefinement:
			e.refinePhase(state, trail)
			e.transition(state, trail, investigation.PhaseInitialSearch)

		case investigation.PhaseSourceValidation:
			for _, err := range e.validator.ValidateAll(ctx, state) {
				state.RecordError("source_validation", err)
				if trail != nil {
					trail.LogError("source_validation", err)
				}
			}
			e.transition(state, trail, investigation.PhaseReportGeneration)

		case investigation.PhaseReportGeneration:
			state.FinalReport = report.Render(state, e.scorer, time.Now())
			metrics.ReportsGenerated.Inc()
			e.transition(state, trail, investigation.PhaseComplete)

		default:
			return fmt.Errorf("unknown phase %q", state.CurrentPhase)
		}
	}

	metrics.InvestigationsTotal.WithLabelValues("completed").Inc()
	metrics.InvestigationDuration.Observe(time.Since(start).Seconds())
	metrics.SearchIterations.Observe(float64(state.IterationCount))

	e.log.Info("investigation complete",
		zap.String("id", state.ID),
		zap.Int("iterations", state.IterationCount),
		zap.Int("findings", len(state.Findings)),
		zap.Int("risks", len(state.Risks)),
		zap.Int("connections", len(state.Connections)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (e *Engine) transition(state *investigation.State, trail *audit.Trail, next investigation.Phase) {
	if trail != nil {
		trail.LogPhaseChange(string(state.CurrentPhase), string(next))
	}
	state.CurrentPhase = next

	if e.progress != nil {
		e.progress(Progress{
			InvestigationID: state.ID,
			Target:          state.TargetName,
			Phase:           next,
			Iteration:       state.IterationCount,
			Findings:        len(state.Findings),
			Risks:           len(state.Risks),
			Connections:     len(state.Connections),
		})
	}
}

// searchPhase consumes up to queriesPerIteration pending queries in
// parallel. The first visit seeds the queue with the initial coverage
// queries.
func (e *Engine) searchPhase(ctx context.Context, state *investigation.State, trail *audit.Trail) {
	if len(state.PendingQueries) == 0 {
		state.PendingQueries = initialQueries(state)
	}

	batch := state.PendingQueries
	if len(batch) > queriesPerIteration {
		batch = batch[:queriesPerIteration]
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, query := range batch {
		if state.Searched(query) {
			continue
		}
		g.Go(func() error {
			results, err := e.search.Search(gctx, query)
			state.RecordSearched(query)
			if err != nil {
				state.RecordError("search", fmt.Errorf("%q: %w", query, err))
				if trail != nil {
					trail.LogError("search", err)
				}
				return nil
			}
			state.AddSearchResults(results)
			if trail != nil {
				trail.LogSearch(query, len(results), state.IterationCount)
			}
			return nil
		})
	}
	g.Wait()

	if len(state.PendingQueries) > queriesPerIteration {
		state.PendingQueries = state.PendingQueries[queriesPerIteration:]
	} else {
		state.PendingQueries = nil
	}
	state.IterationCount++
}

func (e *Engine) factPhase(ctx context.Context, state *investigation.State, trail *audit.Trail) {
	findings, err := e.facts.Run(ctx, state)
	if err != nil {
		state.RecordError("fact_extraction", err)
		if trail != nil {
			trail.LogError("fact_extraction", err)
		}
		return
	}

	if e.scraper != nil {
		findings = append(findings, e.deepen(ctx, state)...)
	}

	for _, f := range findings {
		state.AddFinding(f)
		metrics.EvidenceExtracted.WithLabelValues("finding").Inc()
		if trail != nil {
			trail.LogFinding(string(f.Category), f.Claim, f.Confidence)
		}
	}
}

// deepen scrapes the most relevant recent pages and extracts from full
// text. Scrape failures are silent; snippets already cover the page.
func (e *Engine) deepen(ctx context.Context, state *investigation.State) []*investigation.Finding {
	recent := state.RecentResults(queriesPerIteration * 10)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Relevance > recent[j].Relevance
	})

	var extra []*investigation.Finding
	scraped := 0
	for _, r := range recent {
		if scraped >= scrapeTopN {
			break
		}
		if r.URL == "" {
			continue
		}
		page := e.scraper.Fetch(ctx, r.URL)
		if !page.Success || page.Text == "" {
			continue
		}
		scraped++

		findings, err := e.facts.RunContent(ctx, page.Text, state.TargetName, r.URL)
		if err != nil {
			state.RecordError("scrape_extraction", err)
			continue
		}
		extra = append(extra, findings...)
	}
	return extra
}

func (e *Engine) riskPhase(ctx context.Context, state *investigation.State, trail *audit.Trail) {
	risks, err := e.risks.Run(ctx, state)
	if err != nil {
		state.RecordError("risk_analysis", err)
		if trail != nil {
			trail.LogError("risk_analysis", err)
		}
		return
	}
	for _, r := range risks {
		state.AddRisk(r)
		metrics.EvidenceExtracted.WithLabelValues("risk").Inc()
		if trail != nil {
			trail.LogRisk(string(r.Category), r.Description, r.Severity)
		}
	}
}

func (e *Engine) connectionPhase(ctx context.Context, state *investigation.State, trail *audit.Trail) {
	conns, err := e.conns.Run(ctx, state)
	if err != nil {
		state.RecordError("connection_mapping", err)
		if trail != nil {
			trail.LogError("connection_mapping", err)
		}
		return
	}
	for _, c := range conns {
		state.AddConnection(c)
		metrics.EvidenceExtracted.WithLabelValues("connection").Inc()
	}
}

// refinePhase rebuilds the pending queue from connection follow-ups,
// validation queries, and coverage gaps, dropping anything already
// searched and capping at five.
func (e *Engine) refinePhase(state *investigation.State, trail *audit.Trail) {
	candidates := e.conns.GenerateQueries(state, 2)
	candidates = append(candidates, e.validator.GenerateQueries(state, 2)...)
	candidates = append(candidates, gapQueries(state)...)

	seen := make(map[string]struct{}, len(candidates))
	var fresh []string
	for _, q := range candidates {
		if _, dup := seen[q]; dup || state.Searched(q) {
			continue
		}
		seen[q] = struct{}{}
		fresh = append(fresh, q)
	}
	if len(fresh) > 5 {
		fresh = fresh[:5]
	}

	state.PendingQueries = fresh
	if trail != nil && len(fresh) > 0 {
		trail.LogQueryRefinement(fresh, "following up on discovered connections and coverage gaps")
	}
}
