package llm

import "context"

// CallObserver receives one notification per successfully routed call.
// It is installed per context rather than per Router because a Router
// is shared while audit trails belong to a single investigation.
type CallObserver func(provider string, class TaskClass, latencyMS float64, tokens int)

type observerKey struct{}

// WithObserver returns a context whose routed inference calls are
// reported to fn.
func WithObserver(ctx context.Context, fn CallObserver) context.Context {
	return context.WithValue(ctx, observerKey{}, fn)
}

func observerFrom(ctx context.Context) CallObserver {
	fn, _ := ctx.Value(observerKey{}).(CallObserver)
	return fn
}
