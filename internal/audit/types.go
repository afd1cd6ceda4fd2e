package audit

import "time"

// EventType classifies a trail entry.
type EventType string

const (
	EventSessionStart    EventType = "session_start"
	EventSessionEnd      EventType = "session_end"
	EventSearch          EventType = "search"
	EventPhaseChange     EventType = "phase_change"
	EventModelCall       EventType = "model_call"
	EventFinding         EventType = "finding"
	EventRisk            EventType = "risk"
	EventQueryRefinement EventType = "query_refinement"
	EventError           EventType = "error"
)

// Event is one entry in an investigation trail. Data carries
// event-specific fields.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Data      map[string]any `json:"data"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Data:      make(map[string]any),
	}
}

// WithField attaches one data field.
func (e *Event) WithField(key string, value any) *Event {
	e.Data[key] = value
	return e
}

// Summary aggregates trail statistics for the end-of-run report.
type Summary struct {
	Target        string `json:"target"`
	TotalSearches int    `json:"total_searches"`
	TotalFindings int    `json:"total_findings"`
	TotalRisks    int    `json:"total_risks"`
	Errors        int    `json:"errors"`
	TrailPath     string `json:"trail_path"`
}
