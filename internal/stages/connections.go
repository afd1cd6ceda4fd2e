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

// connWindow bounds the search result context for connection mapping.
const connWindow = 15

const connPrompt = `You are an expert at mapping relationships and connections between entities.

TARGET: %s

KNOWN FACTS ABOUT TARGET:
%s

SEARCH RESULTS FOR CONTEXT:
%s

Map all connections between %s and other entities. For each connection, identify:

1. ENTITY TYPE:
   - person: Individuals (colleagues, family, associates)
   - organization: Companies, non-profits, government agencies
   - event: Significant events they were involved in

2. RELATIONSHIP TYPE:
   - For persons: employer, employee, co-founder, investor, advisor, family, partner, associate
   - For organizations: founded, employed_by, board_member, investor, advisor, customer, partner
   - For events: participant, organizer, witness, defendant

3. TIMEFRAME: When this connection existed (if known)

Respond with a JSON array of connections:
[
  {
    "entity_name": "Name of connected entity",
    "entity_type": "person|organization|event",
    "relationship": "specific relationship type",
    "timeframe": "2015-2020 (if known, else empty)",
    "source_urls": ["url1"]
  }
]

Include both obvious and less obvious connections. Look for:
- Business partnerships
- Shared board memberships
- Investment relationships
- Joint ventures or projects
- Personal relationships mentioned in profiles
- Event appearances together`

// ConnectionMapper traces relationship edges between the target and
// other people, organizations, and events.
type ConnectionMapper struct {
	router *llm.Router
	scorer *confidence.Scorer
	log    *zap.Logger
}

func NewConnectionMapper(router *llm.Router, scorer *confidence.Scorer, log *zap.Logger) *ConnectionMapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConnectionMapper{router: router, scorer: scorer, log: log}
}

type connItem struct {
	EntityName   string   `json:"entity_name"`
	EntityType   string   `json:"entity_type"`
	Relationship string   `json:"relationship"`
	Timeframe    string   `json:"timeframe"`
	SourceURLs   []string `json:"source_urls"`
}

// Run extracts connection edges from current evidence.
func (m *ConnectionMapper) Run(ctx context.Context, state *investigation.State) ([]*investigation.Connection, error) {
	if len(state.Findings) == 0 && len(state.SearchResults) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(connPrompt,
		state.TargetName,
		m.formatFindings(state),
		formatResults(state.RecentResults(connWindow)),
		state.TargetName,
	)

	resp, err := m.router.GenerateStructured(ctx, llm.Request{
		Prompt: prompt,
		Class:  llm.TaskFast,
		Schema: llm.Schema{Shape: llm.ShapeArray, Required: []string{"entity_name", "entity_type", "relationship"}},
	})
	if err != nil {
		return nil, fmt.Errorf("connection mapping: %w", err)
	}

	items, err := decodeItems(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("connection mapping: %w", err)
	}

	var conns []*investigation.Connection
	for _, raw := range items {
		var item connItem
		if err := json.Unmarshal(raw, &item); err != nil {
			m.log.Debug("skipping malformed connection item", zap.Error(err))
			continue
		}
		if item.EntityName == "" {
			continue
		}
		rel := item.Relationship
		if rel == "" {
			rel = "associated"
		}
		conns = append(conns, &investigation.Connection{
			EntityName:   item.EntityName,
			EntityType:   investigation.EntityType(item.EntityType),
			Relationship: rel,
			Timeframe:    item.Timeframe,
			SourceURLs:   item.SourceURLs,
			Confidence:   m.scorer.Score(item.SourceURLs),
		})
	}

	m.log.Debug("connection mapping complete", zap.Int("connections", len(conns)))
	return conns, nil
}

// GenerateQueries proposes follow-up searches from connections worth
// deepening: confident edges first, then a pairing query when at least
// two organizations are known.
func (m *ConnectionMapper) GenerateQueries(state *investigation.State, maxQueries int) []string {
	var queries []string

	for _, c := range state.Connections {
		if len(queries) >= maxQueries {
			break
		}
		if c.Confidence < 0.5 {
			continue
		}
		switch c.EntityType {
		case investigation.EntityOrganization:
			queries = append(queries, fmt.Sprintf("%s %s role responsibilities", state.TargetName, c.EntityName))
		case investigation.EntityPerson:
			queries = append(queries, fmt.Sprintf("%s %s relationship business", state.TargetName, c.EntityName))
		}
	}

	if len(state.Connections) >= 2 {
		var orgs []*investigation.Connection
		for _, c := range state.Connections {
			if c.EntityType == investigation.EntityOrganization {
				orgs = append(orgs, c)
				if len(orgs) == 2 {
					break
				}
			}
		}
		if len(orgs) == 2 {
			queries = append(queries, fmt.Sprintf("%s %s connection", orgs[0].EntityName, orgs[1].EntityName))
		}
	}

	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries
}

func (m *ConnectionMapper) formatFindings(state *investigation.State) string {
	var lines []string
	for _, f := range state.Findings {
		switch f.Category {
		case investigation.CategoryAssociations, investigation.CategoryProfessional, investigation.CategoryFinancial:
			lines = append(lines, fmt.Sprintf("[%s] %s", strings.ToUpper(string(f.Category)), f.Claim))
		}
	}
	if len(lines) == 0 {
		return "No relevant findings."
	}
	return strings.Join(lines, "\n")
}
