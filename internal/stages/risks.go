package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dossierlabs/dossier/internal/confidence"
	"github.com/dossierlabs/dossier/internal/investigation"
	"github.com/dossierlabs/dossier/internal/llm"
)

// riskWindow bounds the search result context for risk analysis.
const riskWindow = 10

const riskPrompt = `You are a risk assessment expert analyzing information about an individual or entity.

TARGET: %s

FINDINGS TO ANALYZE:
%s

SEARCH RESULTS (for additional context):
%s

Analyze this information and identify any risk indicators. Look for:

1. LEGAL RISKS: Lawsuits, investigations, arrests, convictions, regulatory actions
2. FINANCIAL RISKS: Bankruptcies, fraud allegations, unpaid debts, financial irregularities
3. REPUTATION RISKS: Scandals, controversies, public disputes, negative media coverage
4. ASSOCIATION RISKS: Connections to problematic individuals/organizations
5. PATTERN RISKS: Inconsistencies in claims, frequent job changes, gaps in history

For each risk indicator, assess:
- Severity (1-10 scale):
  - 1-3: Minor concerns, common issues
  - 4-6: Moderate concerns, requires attention
  - 7-10: Serious red flags, major concerns

Respond with a JSON array of risk indicators:
[
  {
    "category": "legal|financial|reputation|association|pattern",
    "description": "Clear description of the risk",
    "severity": 7,
    "evidence": ["specific fact 1", "specific fact 2"],
    "source_urls": ["url1", "url2"]
  }
]

Only flag genuine risks with supporting evidence. Do not flag normal business activities.`

// highRiskKeywords trip the cheap pre-LLM scan.
var highRiskKeywords = []string{
	"fraud", "convicted", "sentenced", "indicted", "arrested",
	"scandal", "lawsuit", "investigation", "sec charges",
	"bankruptcy", "misappropriation", "embezzlement",
}

// RiskAnalyzer identifies red flags across findings and raw results.
type RiskAnalyzer struct {
	router *llm.Router
	scorer *confidence.Scorer
	log    *zap.Logger
}

func NewRiskAnalyzer(router *llm.Router, scorer *confidence.Scorer, log *zap.Logger) *RiskAnalyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &RiskAnalyzer{router: router, scorer: scorer, log: log}
}

type riskItem struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Severity    int      `json:"severity"`
	Evidence    []string `json:"evidence"`
	SourceURLs  []string `json:"source_urls"`
}

// QuickScan is a keyword pass over snippets and controversy findings.
// It gates the expensive LLM call: with nothing found and no findings,
// the stage is a no-op.
func (a *RiskAnalyzer) QuickScan(state *investigation.State) []string {
	var hits []string

	for _, result := range state.SearchResults {
		snippet := strings.ToLower(result.Snippet)
		for _, kw := range highRiskKeywords {
			if strings.Contains(snippet, kw) {
				hits = append(hits, fmt.Sprintf("Found %q in: %s", kw, result.Title))
				break
			}
		}
	}
	for _, f := range state.Findings {
		if f.Category == investigation.CategoryControversies {
			hits = append(hits, "Controversy finding: "+truncate(f.Claim, 100))
		}
	}

	if len(hits) > 10 {
		hits = hits[:10]
	}
	return hits
}

// Run analyzes the current state for risk indicators with a
// complex-class inference call.
func (a *RiskAnalyzer) Run(ctx context.Context, state *investigation.State) ([]*investigation.RiskIndicator, error) {
	quick := a.QuickScan(state)
	if len(state.Findings) == 0 && len(quick) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(riskPrompt,
		state.TargetName,
		a.formatFindings(state),
		formatResultLines(state.RecentResults(riskWindow)),
	)

	resp, err := a.router.GenerateStructured(ctx, llm.Request{
		Prompt: prompt,
		Class:  llm.TaskComplex,
		Schema: llm.Schema{Shape: llm.ShapeArray, Required: []string{"category", "description", "severity", "evidence"}},
	})
	if err != nil {
		return nil, fmt.Errorf("risk analysis: %w", err)
	}

	items, err := decodeItems(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("risk analysis: %w", err)
	}

	var risks []*investigation.RiskIndicator
	for _, raw := range items {
		var item riskItem
		if err := json.Unmarshal(raw, &item); err != nil {
			a.log.Debug("skipping malformed risk item", zap.Error(err))
			continue
		}
		if item.Description == "" {
			continue
		}
		risks = append(risks, &investigation.RiskIndicator{
			Category:    investigation.RiskCategory(item.Category),
			Description: item.Description,
			Severity:    clampSeverity(item.Severity),
			Evidence:    item.Evidence,
			SourceURLs:  item.SourceURLs,
			Confidence:  a.scorer.Score(item.SourceURLs),
		})
	}

	a.log.Debug("risk analysis complete",
		zap.Int("quick_scan_hits", len(quick)),
		zap.Int("risks", len(risks)),
	)
	return risks, nil
}

func (a *RiskAnalyzer) formatFindings(state *investigation.State) string {
	if len(state.Findings) == 0 {
		return "No findings yet."
	}
	lines := make([]string, 0, len(state.Findings))
	for _, f := range state.Findings {
		lines = append(lines, fmt.Sprintf("[%s] %s (Confidence: %.0f%%)",
			strings.ToUpper(string(f.Category)), f.Claim, f.Confidence*100))
	}
	return strings.Join(lines, "\n")
}

func clampSeverity(s int) int {
	switch {
	case s == 0:
		return 5
	case s < 1:
		return 1
	case s > 10:
		return 10
	default:
		return s
	}
}
