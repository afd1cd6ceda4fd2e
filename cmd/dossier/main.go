// Command dossier runs due-diligence investigations. In the default
// mode it investigates one target and writes a markdown report; with
// -serve it exposes the engine over HTTP and WebSocket instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dossierlabs/dossier/internal/audit"
	"github.com/dossierlabs/dossier/internal/config"
	"github.com/dossierlabs/dossier/internal/confidence"
	"github.com/dossierlabs/dossier/internal/engine"
	"github.com/dossierlabs/dossier/internal/llm"
	"github.com/dossierlabs/dossier/internal/llm/provider/gemini"
	"github.com/dossierlabs/dossier/internal/llm/provider/groq"
	"github.com/dossierlabs/dossier/internal/report"
	"github.com/dossierlabs/dossier/internal/scrape"
	"github.com/dossierlabs/dossier/internal/search"
	"github.com/dossierlabs/dossier/internal/server"
	"github.com/dossierlabs/dossier/internal/store"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to YAML config file")
		target        = flag.String("target", "", "name of the person or organization to investigate")
		targetContext = flag.String("context", "", "disambiguating context for the target")
		maxIterations = flag.Int("max-iterations", 0, "override the search iteration budget")
		serve         = flag.Bool("serve", false, "run the HTTP API server instead of a single investigation")
	)
	flag.Parse()

	if err := run(*configPath, *target, *targetContext, *maxIterations, *serve); err != nil {
		fmt.Fprintf(os.Stderr, "dossier: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, target, targetContext string, maxIterations int, serve bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := config.NewManager(configPath)
	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := manager.Validate(ctx); err != nil {
		return err
	}
	cfg := manager.Get(ctx)

	log, err := audit.NewAppLogger(audit.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	router, err := llm.NewRouter(registry, log.Named("llm"))
	if err != nil {
		return err
	}

	searcher, err := search.NewClient(cfg.Search.SerperAPIKey, log.Named("search"))
	if err != nil {
		return err
	}
	searcher.WithNumResults(cfg.Search.NumResults)

	var scraper engine.Scraper
	if cfg.Engine.EnableScrape {
		scraper = scrape.New(log.Named("scrape"))
	}

	if maxIterations <= 0 {
		maxIterations = cfg.Engine.MaxIterations
	}

	if serve {
		return runServer(ctx, cfg, router, searcher, scraper, maxIterations, log)
	}

	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("-target is required (or use -serve)")
	}
	return runOnce(ctx, cfg, router, searcher, scraper, target, targetContext, maxIterations, log)
}

// buildRegistry assigns providers to task classes by their strengths:
// Groq serves fast extraction first, Gemini serves complex analysis
// first, and each backs the other up when both keys are present.
func buildRegistry(cfg *config.Config) (llm.Registry, error) {
	var groqClient, geminiClient llm.Provider

	if cfg.LLM.GroqAPIKey != "" {
		c, err := groq.NewClient(cfg.LLM.GroqAPIKey, cfg.LLM.GroqModel)
		if err != nil {
			return nil, fmt.Errorf("groq client: %w", err)
		}
		groqClient = c
	}
	if cfg.LLM.GeminiAPIKey != "" {
		c, err := gemini.NewClient(cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		geminiClient = c
	}

	registry := llm.Registry{}
	switch {
	case groqClient != nil && geminiClient != nil:
		registry[llm.TaskFast] = []llm.Provider{groqClient, geminiClient}
		registry[llm.TaskComplex] = []llm.Provider{geminiClient, groqClient}
	case groqClient != nil:
		registry[llm.TaskFast] = []llm.Provider{groqClient}
		registry[llm.TaskComplex] = []llm.Provider{groqClient}
	case geminiClient != nil:
		registry[llm.TaskFast] = []llm.Provider{geminiClient}
		registry[llm.TaskComplex] = []llm.Provider{geminiClient}
	default:
		return nil, fmt.Errorf("at least one inference provider key is required")
	}
	return registry, nil
}

func runOnce(ctx context.Context, cfg *config.Config, router *llm.Router, searcher engine.SearchClient, scraper engine.Scraper, target, targetContext string, maxIterations int, log *zap.Logger) error {
	eng, err := engine.New(engine.Config{
		Search:  searcher,
		Router:  router,
		Scorer:  confidence.NewScorer(),
		Logger:  log.Named("engine"),
		Scraper: scraper,
		Progress: func(p engine.Progress) {
			fmt.Printf("  [iteration %d] %s (findings: %d, risks: %d, connections: %d)\n",
				p.Iteration, p.Phase, p.Findings, p.Risks, p.Connections)
		},
	})
	if err != nil {
		return err
	}

	trailDir := filepath.Join(cfg.Output.Dir, "trails")
	trail, err := audit.NewTrail(trailDir, target)
	if err != nil {
		log.Warn("trail unavailable", zap.Error(err))
		trail = nil
	}
	if trail != nil {
		defer trail.Close()
	}

	fmt.Printf("Investigating %s...\n", target)
	state, err := eng.Investigate(ctx, target, targetContext, maxIterations, trail)
	if err != nil {
		return err
	}

	reportDir := filepath.Join(cfg.Output.Dir, "reports")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	reportPath := filepath.Join(reportDir, reportFileName(target, time.Now()))
	if err := os.WriteFile(reportPath, []byte(state.FinalReport), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	archive, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		log.Warn("archive unavailable", zap.Error(err))
	} else {
		defer archive.Close()
		rollup := report.Rollup(state.Risks)
		rec := &store.InvestigationRecord{
			ID:              state.ID,
			Target:          state.TargetName,
			Context:         state.TargetContext,
			Phase:           string(state.CurrentPhase),
			Iterations:      state.IterationCount,
			FindingCount:    len(state.Findings),
			RiskCount:       len(state.Risks),
			ConnectionCount: len(state.Connections),
			RiskScore:       rollup.OverallScore,
			RiskLevel:       rollup.Level,
			Report:          state.FinalReport,
			ErrorCount:      len(state.Errors),
			StartedAt:       state.StartedAt,
			CompletedAt:     time.Now(),
		}
		if err := archive.SaveInvestigation(ctx, rec); err != nil {
			log.Warn("archive save failed", zap.Error(err))
		}
	}

	rollup := report.Rollup(state.Risks)
	fmt.Printf("\nInvestigation complete after %d iterations.\n", state.IterationCount)
	fmt.Printf("  Findings:    %d\n", len(state.Findings))
	fmt.Printf("  Risks:       %d (overall %.1f/10, %s)\n", len(state.Risks), rollup.OverallScore, rollup.Level)
	fmt.Printf("  Connections: %d\n", len(state.Connections))
	if len(state.Errors) > 0 {
		fmt.Printf("  Errors:      %d (see trail)\n", len(state.Errors))
	}
	fmt.Printf("Report written to %s\n", reportPath)
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, router *llm.Router, searcher engine.SearchClient, scraper engine.Scraper, maxIterations int, log *zap.Logger) error {
	archive, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	// The engine's progress hook broadcasts through the server's hub;
	// the server variable is bound after engine construction.
	var srv *server.Server
	eng, err := engine.New(engine.Config{
		Search:  searcher,
		Router:  router,
		Scorer:  confidence.NewScorer(),
		Logger:  log.Named("engine"),
		Scraper: scraper,
		Progress: func(p engine.Progress) {
			if srv != nil {
				srv.Hub().Broadcast(p)
			}
		},
	})
	if err != nil {
		return err
	}

	srv, err = server.NewServer(server.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		MaxIterations: maxIterations,
		TrailDir:      filepath.Join(cfg.Output.Dir, "trails"),
	}, eng, archive, log.Named("server"))
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}
	log.Info("serving", zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))

	<-ctx.Done()
	log.Info("shutting down")
	return srv.Stop()
}

// reportFileName builds a filesystem-safe report name from the target
// and timestamp.
func reportFileName(target string, now time.Time) string {
	name := strings.ToLower(strings.TrimSpace(target))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		name = "investigation"
	}
	return fmt.Sprintf("%s_%s_report.md", name, now.Format("20060102_150405"))
}
