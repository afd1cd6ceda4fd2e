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

// validateWindow bounds the cross-reference context per finding.
const validateWindow = 10

// validateThreshold: findings at or above this confidence that are
// already verified skip validation entirely, which bounds cost.
const validateThreshold = 0.6

const validatePrompt = `You are a fact-checker validating information about %s.

FINDING TO VALIDATE:
Claim: %s
Category: %s
Current sources: %s
Current confidence: %.0f%%

ADDITIONAL SEARCH RESULTS (for cross-reference):
%s

Analyze whether the additional search results support or contradict this claim.

Respond with JSON:
{
  "supported": true/false,
  "contradicted": false/true,
  "supporting_sources": ["urls that support the claim"],
  "contradicting_sources": ["urls that contradict"],
  "revised_confidence": 0.0-1.0
}

A claim is SUPPORTED if:
- Multiple independent sources confirm it
- Official records or major news outlets verify it

A claim is CONTRADICTED if:
- Credible sources dispute it
- There are significant inconsistencies`

// SourceValidator cross-references findings against accumulated search
// results and adjusts confidence and verified status.
type SourceValidator struct {
	router *llm.Router
	scorer *confidence.Scorer
	log    *zap.Logger
}

func NewSourceValidator(router *llm.Router, scorer *confidence.Scorer, log *zap.Logger) *SourceValidator {
	if log == nil {
		log = zap.NewNop()
	}
	return &SourceValidator{router: router, scorer: scorer, log: log}
}

type verdict struct {
	Supported            bool     `json:"supported"`
	Contradicted         bool     `json:"contradicted"`
	SupportingSources    []string `json:"supporting_sources"`
	ContradictingSources []string `json:"contradicting_sources"`
	RevisedConfidence    float64  `json:"revised_confidence"`
}

// ValidateAll revalidates every finding that is unverified or below the
// confidence threshold, in place. Confident verified findings pass
// through untouched. A failed inference call leaves the finding as-is
// and is reported once via the returned error slice.
func (v *SourceValidator) ValidateAll(ctx context.Context, state *investigation.State) []error {
	var errs []error
	for _, f := range state.Findings {
		if f.Confidence >= validateThreshold && f.Verified {
			continue
		}
		if err := v.validate(ctx, f, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (v *SourceValidator) validate(ctx context.Context, f *investigation.Finding, state *investigation.State) error {
	sources := f.SourceURLs
	if len(sources) > 3 {
		sources = sources[:3]
	}

	prompt := fmt.Sprintf(validatePrompt,
		state.TargetName,
		f.Claim,
		f.Category,
		strings.Join(sources, ", "),
		f.Confidence*100,
		formatResults(state.RecentResults(validateWindow)),
	)

	resp, err := v.router.GenerateStructured(ctx, llm.Request{
		Prompt: prompt,
		Class:  llm.TaskComplex,
		Schema: llm.Schema{Shape: llm.ShapeObject, Required: []string{"supported", "contradicted", "revised_confidence"}},
	})
	if err != nil {
		return fmt.Errorf("validate %q: %w", truncate(f.Claim, 60), err)
	}

	var vd verdict
	if err := json.Unmarshal([]byte(resp.Content), &vd); err != nil {
		return fmt.Errorf("validate %q: decode verdict: %w", truncate(f.Claim, 60), err)
	}

	switch {
	case vd.Supported:
		f.SourceURLs = append(f.SourceURLs, vd.SupportingSources...)
		f.Verified = true
		revised := vd.RevisedConfidence
		if revised < f.Confidence {
			revised = f.Confidence
		}
		if revised > 1.0 {
			revised = 1.0
		}
		f.Confidence = revised
	case vd.Contradicted:
		f.Confidence = f.Confidence * 0.5
		if f.Confidence < 0.1 {
			f.Confidence = 0.1
		}
		f.Verified = false
	}

	v.log.Debug("finding validated",
		zap.String("claim", truncate(f.Claim, 60)),
		zap.Bool("supported", vd.Supported),
		zap.Bool("contradicted", vd.Contradicted),
		zap.Float64("confidence", f.Confidence),
	)
	return nil
}

// GenerateQueries proposes verification searches for low-confidence,
// unverified findings.
func (v *SourceValidator) GenerateQueries(state *investigation.State, maxQueries int) []string {
	var queries []string
	for _, f := range state.Findings {
		if len(queries) >= maxQueries {
			break
		}
		if f.Confidence >= validateThreshold || f.Verified {
			continue
		}
		switch f.Category {
		case investigation.CategoryBiography:
			queries = append(queries, fmt.Sprintf("%s biography %s", state.TargetName, firstWords(f.Claim, 3)))
		case investigation.CategoryProfessional:
			queries = append(queries, fmt.Sprintf("%s career %s", state.TargetName, firstWords(f.Claim, 4)))
		case investigation.CategoryControversies:
			queries = append(queries, fmt.Sprintf("%s %s news", state.TargetName, firstWords(f.Claim, 3)))
		default:
			queries = append(queries, fmt.Sprintf("%s verify %s", state.TargetName, firstWords(f.Claim, 3)))
		}
	}
	return queries
}

// Summary reports validation statistics over a finding set.
type ValidationSummary struct {
	Total          int
	Verified       int
	HighConfidence int
	LowConfidence  int
	AvgConfidence  float64
}

func Summarize(findings []*investigation.Finding) ValidationSummary {
	s := ValidationSummary{Total: len(findings)}
	if s.Total == 0 {
		return s
	}
	var sum float64
	for _, f := range findings {
		if f.Verified {
			s.Verified++
		}
		if f.Confidence >= 0.7 {
			s.HighConfidence++
		}
		if f.Confidence < 0.4 {
			s.LowConfidence++
		}
		sum += f.Confidence
	}
	s.AvgConfidence = sum / float64(s.Total)
	return s
}
