package llm

// Router tests use injected fake providers, no network.

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name    string
	content string
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, _ Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Content: f.content, Provider: f.name}, nil
}

func newTestRouter(t *testing.T, reg Registry) *Router {
	t.Helper()
	r, err := NewRouter(reg, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func TestPrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "fast-a", content: `[]`}
	fallback := &fakeProvider{name: "fast-b", content: `[]`}
	r := newTestRouter(t, Registry{TaskFast: {primary, fallback}})

	resp, err := r.GenerateStructured(context.Background(), Request{Class: TaskFast, Schema: Schema{Shape: ShapeArray}})
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if resp.Provider != "fast-a" {
		t.Errorf("expected primary provider, got %s", resp.Provider)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback should not be called when primary succeeds, calls=%d", fallback.calls)
	}
}

func TestFallbackOnPrimaryFailure(t *testing.T) {
	primary := &fakeProvider{name: "fast-a", err: errors.New("connection refused")}
	fallback := &fakeProvider{name: "fast-b", content: `[{"claim":"x"}]`}
	r := newTestRouter(t, Registry{TaskFast: {primary, fallback}})

	resp, err := r.GenerateStructured(context.Background(), Request{Class: TaskFast, Schema: Schema{Shape: ShapeArray}})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if resp.Provider != "fast-b" {
		t.Errorf("expected fallback content, got provider %s", resp.Provider)
	}
}

func TestBothFailPropagatesTypedError(t *testing.T) {
	primary := &fakeProvider{name: "a", err: errors.New("boom")}
	fallback := &fakeProvider{name: "b", err: errors.New("also boom")}
	r := newTestRouter(t, Registry{TaskComplex: {primary, fallback}})

	_, err := r.GenerateStructured(context.Background(), Request{Class: TaskComplex, Schema: Schema{Shape: ShapeObject}})
	var inf *InferenceFailure
	if !errors.As(err, &inf) {
		t.Fatalf("expected InferenceFailure, got %T: %v", err, err)
	}
	if inf.Provider != "b" {
		t.Errorf("expected last provider b, got %s", inf.Provider)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("expected exactly one call each, got %d/%d", primary.calls, fallback.calls)
	}
}

func TestNoThirdAttempt(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("x")}
	b := &fakeProvider{name: "b", err: errors.New("y")}
	c := &fakeProvider{name: "c", content: `[]`}
	r := newTestRouter(t, Registry{TaskFast: {a, b, c}})

	_, err := r.GenerateStructured(context.Background(), Request{Class: TaskFast, Schema: Schema{Shape: ShapeArray}})
	if err == nil {
		t.Fatal("expected failure: only one fallback hop is allowed")
	}
	if c.calls != 0 {
		t.Errorf("third provider must never be attempted, calls=%d", c.calls)
	}
}

func TestMalformedOutputTriggersFallback(t *testing.T) {
	primary := &fakeProvider{name: "a", content: `not json at all`}
	fallback := &fakeProvider{name: "b", content: "```json\n[{\"k\":1}]\n```"}
	r := newTestRouter(t, Registry{TaskFast: {primary, fallback}})

	resp, err := r.GenerateStructured(context.Background(), Request{Class: TaskFast, Schema: Schema{Shape: ShapeArray}})
	if err != nil {
		t.Fatalf("expected fallback to rescue malformed output, got %v", err)
	}
	if resp.Content != `[{"k":1}]` {
		t.Errorf("expected fence-stripped content, got %q", resp.Content)
	}
}

func TestNullOutputTriggersFallback(t *testing.T) {
	primary := &fakeProvider{name: "a", content: `null`}
	fallback := &fakeProvider{name: "b", content: `[]`}
	r := newTestRouter(t, Registry{TaskFast: {primary, fallback}})

	resp, err := r.GenerateStructured(context.Background(), Request{Class: TaskFast, Schema: Schema{Shape: ShapeArray}})
	if err != nil {
		t.Fatalf("expected fallback to rescue null output, got %v", err)
	}
	if resp.Provider != "b" {
		t.Errorf("null is not an array and must not be accepted, got provider %s", resp.Provider)
	}
	if fallback.calls != 1 {
		t.Errorf("expected exactly one fallback call, got %d", fallback.calls)
	}
}

func TestNullObjectRejected(t *testing.T) {
	// With no required fields the field loop is vacuous, so the
	// top-level token check must still reject null.
	primary := &fakeProvider{name: "a", content: `null`}
	r := newTestRouter(t, Registry{TaskComplex: {primary}})

	_, err := r.GenerateStructured(context.Background(), Request{Class: TaskComplex, Schema: Schema{Shape: ShapeObject}})
	if err == nil {
		t.Fatal("null returned where object expected must fail")
	}
}

func TestObserverReceivesCalls(t *testing.T) {
	primary := &fakeProvider{name: "a", err: errors.New("down")}
	fallback := &fakeProvider{name: "b", content: `[]`}
	r := newTestRouter(t, Registry{TaskFast: {primary, fallback}})

	var gotProvider string
	var gotClass TaskClass
	calls := 0
	ctx := WithObserver(context.Background(), func(provider string, class TaskClass, latencyMS float64, tokens int) {
		gotProvider = provider
		gotClass = class
		calls++
	})

	if _, err := r.GenerateStructured(ctx, Request{Class: TaskFast, Schema: Schema{Shape: ShapeArray}}); err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if calls != 1 {
		t.Fatalf("observer fires once per successful call, got %d", calls)
	}
	if gotProvider != "b" || gotClass != TaskFast {
		t.Errorf("observer saw %s/%s, want b/%s", gotProvider, gotClass, TaskFast)
	}
}

func TestShapeMismatchIsFailure(t *testing.T) {
	primary := &fakeProvider{name: "a", content: `{"supported": true}`}
	r := newTestRouter(t, Registry{TaskFast: {primary}})

	_, err := r.GenerateStructured(context.Background(), Request{Class: TaskFast, Schema: Schema{Shape: ShapeArray}})
	if err == nil {
		t.Fatal("object returned where array expected must fail")
	}
}

func TestObjectRequiredFields(t *testing.T) {
	primary := &fakeProvider{name: "a", content: `{"supported": true, "contradicted": false}`}
	r := newTestRouter(t, Registry{TaskComplex: {primary}})

	_, err := r.GenerateStructured(context.Background(), Request{
		Class:  TaskComplex,
		Schema: Schema{Shape: ShapeObject, Required: []string{"supported", "contradicted", "revised_confidence"}},
	})
	if err == nil {
		t.Fatal("missing required object field must fail validation")
	}
}

func TestRateLimitFlagSticky(t *testing.T) {
	primary := &fakeProvider{name: "fast-a", err: errors.New("429 rate limit exceeded")}
	fallback := &fakeProvider{name: "fast-b", content: `[]`}
	r := newTestRouter(t, Registry{TaskFast: {primary, fallback}})

	_, err := r.GenerateStructured(context.Background(), Request{Class: TaskFast, Schema: Schema{Shape: ShapeArray}})
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if !r.RateLimited("fast-a") {
		t.Error("expected sticky rate-limit flag for fast-a")
	}
	if r.RateLimited("fast-b") {
		t.Error("fast-b was never rate limited")
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n[1,2]\n```": "[1,2]",
		"```\n{\"a\":1}\n```": `{"a":1}`,
		`  [1]  `:             "[1]",
		`{"a":1}`:             `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmptyRegistryClassRejected(t *testing.T) {
	if _, err := NewRouter(Registry{TaskFast: {}}, nil); err == nil {
		t.Fatal("expected error for empty provider list")
	}
}
