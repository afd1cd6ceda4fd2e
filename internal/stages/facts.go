package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dossierlabs/dossier/internal/confidence"
	"github.com/dossierlabs/dossier/internal/investigation"
	"github.com/dossierlabs/dossier/internal/llm"
)

// factWindow bounds the search result context fed to extraction.
const factWindow = 20

const factPrompt = `You are an expert research analyst extracting factual information about a person or entity.

TARGET: %s
%s

SEARCH RESULTS:
%s

Extract all factual information about %s from these search results. Focus on:

1. BIOGRAPHY: Birth date, birthplace, nationality, education, family
2. PROFESSIONAL: Companies, job titles, career timeline, achievements
3. FINANCIAL: Investments, net worth, business ownership, funding
4. ASSOCIATIONS: Key people they work with, board memberships, partnerships
5. CONTROVERSIES: Legal issues, scandals, public disputes (if any)

For each fact, note the source URL where you found it.

Respond with a JSON array of findings. Each finding must have:
- category: one of [biography, professional, financial, associations, controversies]
- fact: the specific factual claim (be precise and concise)
- source_urls: array of URLs supporting this fact

Extract ONLY verifiable facts, not opinions or speculation.`

// FactExtractor turns unstructured search results into categorized,
// source-attributed findings.
type FactExtractor struct {
	router *llm.Router
	scorer *confidence.Scorer
	log    *zap.Logger
}

func NewFactExtractor(router *llm.Router, scorer *confidence.Scorer, log *zap.Logger) *FactExtractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &FactExtractor{router: router, scorer: scorer, log: log}
}

type factItem struct {
	Category   string   `json:"category"`
	Fact       string   `json:"fact"`
	SourceURLs []string `json:"source_urls"`
}

// Run extracts findings from the most recent search results. Confidence
// comes from the source scorer, never from the model.
func (e *FactExtractor) Run(ctx context.Context, state *investigation.State) ([]*investigation.Finding, error) {
	results := state.RecentResults(factWindow)
	if len(results) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(factPrompt,
		state.TargetName,
		e.existingContext(state),
		formatResults(results),
		state.TargetName,
	)

	resp, err := e.router.GenerateStructured(ctx, llm.Request{
		Prompt: prompt,
		Class:  llm.TaskFast,
		Schema: llm.Schema{Shape: llm.ShapeArray, Required: []string{"category", "fact", "source_urls"}},
	})
	if err != nil {
		return nil, fmt.Errorf("fact extraction: %w", err)
	}

	items, err := decodeItems(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("fact extraction: %w", err)
	}

	var findings []*investigation.Finding
	for _, raw := range items {
		var item factItem
		if err := json.Unmarshal(raw, &item); err != nil {
			e.log.Debug("skipping malformed finding item", zap.Error(err))
			continue
		}
		if item.Fact == "" {
			continue
		}
		findings = append(findings, &investigation.Finding{
			Category:    investigation.FindingCategory(item.Category),
			Claim:       item.Fact,
			SourceURLs:  item.SourceURLs,
			Confidence:  e.scorer.Score(item.SourceURLs),
			ExtractedAt: time.Now(),
		})
	}

	e.log.Debug("fact extraction complete",
		zap.Int("results_considered", len(results)),
		zap.Int("findings", len(findings)),
		zap.String("provider", resp.Provider),
	)
	return findings, nil
}

const factContentPrompt = `Extract factual information about %s from this content.

SOURCE URL: %s

CONTENT:
%s

Extract specific facts with their categories. Respond as a JSON array:
[
  {"category": "...", "fact": "...", "source_urls": ["%s"]}
]`

// RunContent extracts findings from one scraped page. Items without an
// explicit source are attributed to the page URL.
func (e *FactExtractor) RunContent(ctx context.Context, content, targetName, sourceURL string) ([]*investigation.Finding, error) {
	content = truncate(content, 4000)

	resp, err := e.router.GenerateStructured(ctx, llm.Request{
		Prompt: fmt.Sprintf(factContentPrompt, targetName, sourceURL, content, sourceURL),
		Class:  llm.TaskFast,
		Schema: llm.Schema{Shape: llm.ShapeArray, Required: []string{"category", "fact", "source_urls"}},
	})
	if err != nil {
		return nil, fmt.Errorf("content extraction: %w", err)
	}

	items, err := decodeItems(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("content extraction: %w", err)
	}

	var findings []*investigation.Finding
	for _, raw := range items {
		var item factItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		if item.Fact == "" {
			continue
		}
		sources := item.SourceURLs
		if len(sources) == 0 {
			sources = []string{sourceURL}
		}
		findings = append(findings, &investigation.Finding{
			Category:    investigation.FindingCategory(item.Category),
			Claim:       item.Fact,
			SourceURLs:  sources,
			Confidence:  e.scorer.Score(sources),
			ExtractedAt: time.Now(),
		})
	}
	return findings, nil
}

// existingContext lists up to 10 known claims so the model avoids
// re-extracting them.
func (e *FactExtractor) existingContext(state *investigation.State) string {
	if len(state.Findings) == 0 {
		return ""
	}
	existing := state.Findings
	if len(existing) > 10 {
		existing = existing[:10]
	}
	lines := make([]string, 0, len(existing))
	for _, f := range existing {
		lines = append(lines, "- "+f.Claim)
	}
	return "EXISTING FINDINGS (avoid duplicates):\n" + strings.Join(lines, "\n")
}
