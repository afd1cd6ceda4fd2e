// Package llm routes structured-extraction requests to inference
// providers by task class, with one bounded fallback hop on failure.
package llm

import (
	"context"
	"fmt"
)

// TaskClass determines which provider list serves a request.
type TaskClass string

const (
	// TaskFast is for extraction-style work where latency matters more
	// than reasoning depth.
	TaskFast TaskClass = "fast"
	// TaskComplex is for judgment-style work (risk analysis, validation).
	TaskComplex TaskClass = "complex"
)

// Shape is the expected top-level JSON shape of a structured response.
type Shape int

const (
	ShapeArray Shape = iota
	ShapeObject
)

// Schema is the minimal contract a structured response must satisfy:
// the declared top-level shape, and for objects the required fields.
// For arrays, Required is advisory (it is echoed into the prompt);
// element-level checking happens in the consuming stage.
type Schema struct {
	Shape    Shape
	Required []string
}

// Request is a structured-extraction request.
type Request struct {
	Prompt      string
	System      string
	Schema      Schema
	Class       TaskClass
	Temperature float64
	MaxTokens   int
}

// Response is a parsed, validated provider response. Content is the raw
// JSON text after code-fence stripping.
type Response struct {
	Content   string
	Provider  string
	Model     string
	LatencyMS float64
	Tokens    int
}

// Provider is a single backing inference endpoint.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Generate produces raw text for the prompt. Implementations return
	// an error on transport failure or non-success responses; they do
	// not validate structure (the router does).
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ErrNoProviders is returned by NewRouter when a task class has an
// empty provider list.
var ErrNoProviders = fmt.Errorf("llm: no providers registered for task class")

// InferenceFailure is the typed failure propagated when the primary and
// the single fallback have both failed for a request.
type InferenceFailure struct {
	Class    TaskClass
	Provider string // last provider attempted
	LastErr  error
}

func (e *InferenceFailure) Error() string {
	return fmt.Sprintf("llm: all providers failed for %s task (last: %s): %v", e.Class, e.Provider, e.LastErr)
}

func (e *InferenceFailure) Unwrap() error { return e.LastErr }
