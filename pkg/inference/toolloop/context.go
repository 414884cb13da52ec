package toolloop

import (
	"context"

	"github.com/go-go-golems/autocot/pkg/conversation"
)

// Snapshot phases.
const (
	PhasePreRound  = "pre_round"
	PhasePostRound = "post_round"
	PhasePostTools = "post_tools"
)

// SnapshotHook captures the conversation at defined phases of a round.
// The state must not be retained; clone it if needed.
type SnapshotHook func(ctx context.Context, s *conversation.State, phase string)

type snapshotHookKey struct{}

// WithSnapshotHookContext attaches a snapshot hook to the context.
func WithSnapshotHookContext(ctx context.Context, hook SnapshotHook) context.Context {
	if hook == nil {
		return ctx
	}
	return context.WithValue(ctx, snapshotHookKey{}, hook)
}

// SnapshotHookFromContext returns the snapshot hook attached to the context, if any.
func SnapshotHookFromContext(ctx context.Context) (SnapshotHook, bool) {
	h, ok := ctx.Value(snapshotHookKey{}).(SnapshotHook)
	return h, ok && h != nil
}
