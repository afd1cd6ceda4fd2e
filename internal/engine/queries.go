package engine

import (
	"fmt"

	"github.com/dossierlabs/dossier/internal/investigation"
)

// initialQueries seeds the first search iteration with broad coverage
// of the target.
func initialQueries(state *investigation.State) []string {
	queries := []string{
		state.TargetName,
		fmt.Sprintf("%s biography background", state.TargetName),
		fmt.Sprintf("%s career professional history", state.TargetName),
		fmt.Sprintf("%s news recent", state.TargetName),
	}
	if state.TargetContext != "" {
		queries = append(queries, fmt.Sprintf("%s %s", state.TargetName, state.TargetContext))
	}
	return queries
}

// gapQueries targets evidence categories with thin coverage. Each gap
// contributes exactly one query.
func gapQueries(state *investigation.State) []string {
	counts := state.FindingCountByCategory()

	var queries []string
	if counts[investigation.CategoryFinancial] < 2 {
		queries = append(queries, fmt.Sprintf("%s investments net worth business ownership", state.TargetName))
	}
	if counts[investigation.CategoryControversies] < 1 {
		queries = append(queries, fmt.Sprintf("%s controversy lawsuit scandal", state.TargetName))
	}
	if len(state.Risks) < 2 {
		queries = append(queries, fmt.Sprintf("%s fraud investigation legal issues", state.TargetName))
	}
	return queries
}
