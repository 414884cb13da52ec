package tools

import (
	"context"

	"github.com/go-go-golems/autocot/pkg/toolcode"
)

type ctxKey int

const (
	ctxKeyRegistry ctxKey = iota
	ctxKeyInvocation
)

// WithRegistry attaches a Registry to the context.
func WithRegistry(ctx context.Context, reg *Registry) context.Context {
	if reg == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRegistry, reg)
}

// RegistryFrom extracts the Registry from context.
func RegistryFrom(ctx context.Context) (*Registry, bool) {
	reg, ok := ctx.Value(ctxKeyRegistry).(*Registry)
	if !ok || reg == nil {
		return nil, false
	}
	return reg, true
}

// WithCurrentInvocation stores the invocation a tool body is serving.
func WithCurrentInvocation(ctx context.Context, inv toolcode.Invocation) context.Context {
	return context.WithValue(ctx, ctxKeyInvocation, inv)
}

// CurrentInvocationFromContext lets a tool body see the block it was called from.
func CurrentInvocationFromContext(ctx context.Context) (toolcode.Invocation, bool) {
	inv, ok := ctx.Value(ctxKeyInvocation).(toolcode.Invocation)
	return inv, ok
}
