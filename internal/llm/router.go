package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dossierlabs/dossier/internal/metrics"
)

// Registry maps each task class to its ordered provider list. The first
// entry is the primary; the second, if present, is the single fallback.
// Routing is a pure function of this registry.
type Registry map[TaskClass][]Provider

// Router dispatches structured requests to providers with exactly one
// fallback hop, bounding worst-case latency to two provider calls.
type Router struct {
	registry Registry
	log      *zap.Logger

	mu          sync.RWMutex
	rateLimited map[string]bool
}

// NewRouter validates the registry and returns a Router. Every task
// class present must carry at least one provider.
func NewRouter(registry Registry, log *zap.Logger) (*Router, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for class, providers := range registry {
		if len(providers) == 0 {
			return nil, &InferenceFailure{Class: class, LastErr: ErrNoProviders}
		}
	}
	return &Router{
		registry:    registry,
		log:         log,
		rateLimited: make(map[string]bool),
	}, nil
}

// GenerateStructured sends the request to the primary provider for its
// task class, validates the returned content against the declared
// schema, and falls back once on any failure. The returned Response
// content is fence-stripped, schema-valid JSON.
func (r *Router) GenerateStructured(ctx context.Context, req Request) (*Response, error) {
	providers, ok := r.registry[req.Class]
	if !ok || len(providers) == 0 {
		return nil, &InferenceFailure{Class: req.Class, LastErr: ErrNoProviders}
	}

	// Primary plus at most one fallback. No further retries.
	attempts := providers
	if len(attempts) > 2 {
		attempts = attempts[:2]
	}

	structured := withJSONInstructions(req)

	var lastErr error
	var lastProvider string
	for i, p := range attempts {
		start := time.Now()
		resp, err := p.Generate(ctx, structured)
		elapsed := time.Since(start)
		metrics.LLMRequestDuration.WithLabelValues(p.Name(), string(req.Class)).Observe(elapsed.Seconds())

		if err == nil {
			resp.Content = stripFences(resp.Content)
			err = validateShape(resp.Content, req.Schema)
			if err == nil {
				metrics.LLMRequestsTotal.WithLabelValues(p.Name(), string(req.Class), "success").Inc()
				if i > 0 {
					metrics.LLMFallbacksTotal.WithLabelValues(string(req.Class)).Inc()
				}
				resp.LatencyMS = float64(elapsed.Milliseconds())
				if obs := observerFrom(ctx); obs != nil {
					obs(p.Name(), req.Class, resp.LatencyMS, resp.Tokens)
				}
				return resp, nil
			}
		}

		metrics.LLMRequestsTotal.WithLabelValues(p.Name(), string(req.Class), "error").Inc()
		r.noteRateLimit(p.Name(), err)
		r.log.Warn("provider call failed",
			zap.String("provider", p.Name()),
			zap.String("class", string(req.Class)),
			zap.Bool("fallback", i > 0),
			zap.Error(err),
		)
		lastErr = err
		lastProvider = p.Name()
	}

	return nil, &InferenceFailure{Class: req.Class, Provider: lastProvider, LastErr: lastErr}
}

// RateLimited reports whether a provider has looked rate-limited at any
// point. Tracked for future routing decisions; it does not change the
// attempt order today.
func (r *Router) RateLimited(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rateLimited[provider]
}

func (r *Router) noteRateLimit(provider string, err error) {
	if err == nil {
		return
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate") || strings.Contains(msg, "429") {
		r.mu.Lock()
		r.rateLimited[provider] = true
		r.mu.Unlock()
	}
}

// withJSONInstructions appends the JSON-only contract to the prompt and
// tightens sampling for structured output.
func withJSONInstructions(req Request) Request {
	shape := "object"
	if req.Schema.Shape == ShapeArray {
		shape = "array"
	}

	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\nIMPORTANT: Respond ONLY with a valid JSON ")
	b.WriteString(shape)
	if len(req.Schema.Required) > 0 {
		b.WriteString(" where every item includes the fields: ")
		b.WriteString(strings.Join(req.Schema.Required, ", "))
	}
	b.WriteString(". Do not include any text outside the JSON.")

	out := req
	out.Prompt = b.String()
	if out.System == "" {
		out.System = "You are a precise data extraction assistant. Always respond with valid JSON only."
	}
	if out.Temperature == 0 {
		out.Temperature = 0.3
	}
	return out
}
