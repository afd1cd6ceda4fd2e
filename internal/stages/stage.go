// Package stages implements the extraction stages of an investigation:
// fact extraction, risk analysis, connection mapping, and source
// validation. Each stage builds a bounded context window from the
// current state, asks the inference router for structured output, and
// returns new evidence for the engine to merge. Stages never mutate
// state and never abort the investigation: a failed inference call
// surfaces as an error the engine records and moves past.
package stages

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dossierlabs/dossier/internal/investigation"
)

// formatResults renders search results as prompt context with the
// source URL attached to each entry.
func formatResults(results []investigation.SearchResult) string {
	if len(results) == 0 {
		return "No results."
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("[Source: %s]\nTitle: %s\nSnippet: %s\n", r.URL, r.Title, r.Snippet))
	}
	return strings.Join(parts, "\n---\n")
}

// formatResultLines renders search results one per line, snippets
// truncated, for stages that only need a light sketch of the corpus.
func formatResultLines(results []investigation.SearchResult) string {
	if len(results) == 0 {
		return "No results."
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("- %s: %s", r.Title, truncate(r.Snippet, 200)))
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most n bytes, backing up to a rune boundary so
// multi-byte text is never split mid-rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// firstWords returns the first n whitespace-separated words of s.
func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// decodeItems splits a JSON array into per-element raw messages so a
// single malformed item is discarded without losing the batch.
func decodeItems(content string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}
	return items, nil
}
