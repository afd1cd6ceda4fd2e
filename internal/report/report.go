// Package report renders the final investigation report. Rendering is
// deterministic: identical evidence and timestamp produce identical
// output, so reports are reproducible and diffable.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dossierlabs/dossier/internal/confidence"
	"github.com/dossierlabs/dossier/internal/investigation"
	"github.com/dossierlabs/dossier/internal/stages"
)

// RiskRollup is the aggregate risk assessment over all indicators.
type RiskRollup struct {
	OverallScore  float64
	Level         string
	Breakdown     map[investigation.RiskCategory]float64
	NumRisks      int
	CriticalRisks int
}

// Rollup computes the overall risk score: each indicator weighs in at
// severity*confidence, the mean is scaled by 1.2 and capped at 10.
// Indicators of severity 7 or above count as critical.
func Rollup(risks []*investigation.RiskIndicator) RiskRollup {
	rollup := RiskRollup{
		Level:     "LOW",
		Breakdown: make(map[investigation.RiskCategory]float64),
	}
	if len(risks) == 0 {
		return rollup
	}

	var sum float64
	perCategory := make(map[investigation.RiskCategory][]float64)
	for _, r := range risks {
		weighted := float64(r.Severity) * r.Confidence
		sum += weighted
		perCategory[r.Category] = append(perCategory[r.Category], weighted)
		if r.Severity >= 7 {
			rollup.CriticalRisks++
		}
	}

	overall := math.Min(10, sum/float64(len(risks))*1.2)
	rollup.OverallScore = math.Round(overall*10) / 10
	rollup.NumRisks = len(risks)

	for cat, scores := range perCategory {
		var catSum float64
		for _, s := range scores {
			catSum += s
		}
		rollup.Breakdown[cat] = math.Round(catSum/float64(len(scores))*10) / 10
	}

	switch {
	case overall >= 7:
		rollup.Level = "HIGH"
	case overall >= 4:
		rollup.Level = "MEDIUM"
	}
	return rollup
}

// ConnectionEntry is one ranked entity in the connection summary.
type ConnectionEntry struct {
	Name         string
	Relationship string
	Confidence   float64
}

// ConnectionSummary groups and ranks the connection graph.
type ConnectionSummary struct {
	Total            int
	ByType           map[investigation.EntityType]int
	KeyOrganizations []ConnectionEntry
	KeyPeople        []ConnectionEntry
}

// SummarizeConnections ranks organizations and people by confidence,
// keeping the top 10 of each.
func SummarizeConnections(conns []*investigation.Connection) ConnectionSummary {
	s := ConnectionSummary{ByType: make(map[investigation.EntityType]int)}
	for _, c := range conns {
		s.Total++
		s.ByType[c.EntityType]++
		entry := ConnectionEntry{Name: c.EntityName, Relationship: c.Relationship, Confidence: c.Confidence}
		switch c.EntityType {
		case investigation.EntityOrganization:
			s.KeyOrganizations = append(s.KeyOrganizations, entry)
		case investigation.EntityPerson:
			s.KeyPeople = append(s.KeyPeople, entry)
		}
	}

	byConfidence := func(entries []ConnectionEntry) {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Confidence > entries[j].Confidence
		})
	}
	byConfidence(s.KeyOrganizations)
	byConfidence(s.KeyPeople)

	if len(s.KeyOrganizations) > 10 {
		s.KeyOrganizations = s.KeyOrganizations[:10]
	}
	if len(s.KeyPeople) > 10 {
		s.KeyPeople = s.KeyPeople[:10]
	}
	return s
}

var profileCategories = []investigation.FindingCategory{
	investigation.CategoryBiography,
	investigation.CategoryProfessional,
	investigation.CategoryFinancial,
	investigation.CategoryAssociations,
}

// Render produces the markdown report for a finished investigation.
func Render(state *investigation.State, scorer *confidence.Scorer, generatedAt time.Time) string {
	rollup := Rollup(state.Risks)
	connSummary := SummarizeConnections(state.Connections)
	validation := stages.Summarize(state.Findings)

	var b strings.Builder

	fmt.Fprintf(&b, "# Investigation Report: %s\n\n", state.TargetName)
	fmt.Fprintf(&b, "**Generated:** %s\n", generatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Search Iterations:** %d\n", state.IterationCount)
	fmt.Fprintf(&b, "**Total Sources Analyzed:** %d\n\n", len(state.SearchResults))
	b.WriteString("---\n\n## Executive Summary\n\n")
	fmt.Fprintf(&b, "**Overall Risk Level:** %s\n", rollup.Level)
	fmt.Fprintf(&b, "**Risk Score:** %.1f/10\n", rollup.OverallScore)
	fmt.Fprintf(&b, "**Critical Risks Identified:** %d\n\n", rollup.CriticalRisks)
	b.WriteString("---\n\n## Biographical & Professional Profile\n\n")

	for _, category := range profileCategories {
		var catFindings []*investigation.Finding
		for _, f := range state.Findings {
			if f.Category == category {
				catFindings = append(catFindings, f)
			}
		}
		if len(catFindings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", titleCase(string(category)))
		for _, f := range catFindings {
			mark := ""
			if f.Verified {
				mark = " [verified]"
			}
			fmt.Fprintf(&b, "- %s [%s]%s\n", f.Claim, scorer.Label(f.Confidence), mark)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n## Risk Assessment\n\n")
	if len(state.Risks) > 0 {
		ranked := make([]*investigation.RiskIndicator, len(state.Risks))
		copy(ranked, state.Risks)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Severity > ranked[j].Severity
		})
		for _, r := range ranked {
			fmt.Fprintf(&b, "### %s Risk (Severity: %d/10)\n\n", titleCase(string(r.Category)), r.Severity)
			fmt.Fprintf(&b, "**Description:** %s\n\n", r.Description)
			if len(r.Evidence) > 0 {
				b.WriteString("**Evidence:**\n")
				for _, e := range r.Evidence {
					fmt.Fprintf(&b, "- %s\n", e)
				}
			}
			fmt.Fprintf(&b, "\n**Confidence:** %.0f%%\n\n", r.Confidence*100)
		}
	} else {
		b.WriteString("*No significant risks identified.*\n\n")
	}

	b.WriteString("---\n\n## Network & Connections\n\n")
	fmt.Fprintf(&b, "**Total Connections Mapped:** %d\n\n", connSummary.Total)
	writeEntries(&b, "Key Organizations", connSummary.KeyOrganizations)
	writeEntries(&b, "Key People", connSummary.KeyPeople)

	b.WriteString("---\n\n## Source Validation Summary\n\n")
	fmt.Fprintf(&b, "- **Total Findings:** %d\n", validation.Total)
	fmt.Fprintf(&b, "- **Verified Findings:** %d (%s)\n", validation.Verified, rate(validation.Verified, validation.Total))
	fmt.Fprintf(&b, "- **High Confidence:** %d\n", validation.HighConfidence)
	fmt.Fprintf(&b, "- **Low Confidence (Needs Review):** %d\n", validation.LowConfidence)
	fmt.Fprintf(&b, "- **Average Confidence:** %.0f%%\n\n", validation.AvgConfidence*100)

	b.WriteString("---\n\n## Methodology\n\n")
	b.WriteString("This report was generated by an automated investigation workflow that:\n")
	fmt.Fprintf(&b, "1. Conducted %d search iterations across multiple sources\n", state.IterationCount)
	b.WriteString("2. Extracted and categorized factual information\n")
	b.WriteString("3. Analyzed patterns for potential risks\n")
	b.WriteString("4. Mapped entity relationships and connections\n")
	b.WriteString("5. Cross-referenced findings for validation\n\n")
	b.WriteString("*Note: All findings should be independently verified before making decisions.*\n")

	return b.String()
}

func writeEntries(b *strings.Builder, heading string, entries []ConnectionEntry) {
	if len(entries) == 0 {
		return
	}
	if len(entries) > 5 {
		entries = entries[:5]
	}
	fmt.Fprintf(b, "### %s\n\n", heading)
	for _, e := range entries {
		fmt.Fprintf(b, "- **%s** - %s (%.0f%% confidence)\n", e.Name, e.Relationship, e.Confidence*100)
	}
	b.WriteString("\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func rate(part, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(part)/float64(total)*100)
}
