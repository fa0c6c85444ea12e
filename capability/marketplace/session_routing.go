package marketplace

import (
	"context"

	"goa.design/ccos/capability"
)

// SessionPoolManager owns stateful protocol handlers (e.g. MCP sessions) for
// capabilities whose metadata marks them as session-requiring.
type SessionPoolManager interface {
	Invoke(ctx context.Context, manifest capability.Manifest, input Value) (Value, error)
}

// SessionAwareExecutor wraps an Executor and, before dispatch, checks
// whether the manifest's metadata contains any key ending in
// "_requires_session" with value "true" or "auto". If so, the call is
// delegated to the session pool manager instead of the wrapped executor.
// This is the generic metadata-driven routing hook from §4.3: no protocol
// name is hardcoded.
type SessionAwareExecutor struct {
	next Executor
	pool SessionPoolManager
}

// NewSessionAwareExecutor wraps next with session-pool routing.
func NewSessionAwareExecutor(next Executor, pool SessionPoolManager) *SessionAwareExecutor {
	return &SessionAwareExecutor{next: next, pool: pool}
}

// Execute routes to the session pool when the manifest requires one,
// otherwise delegates to the wrapped executor.
func (e *SessionAwareExecutor) Execute(ctx context.Context, manifest capability.Manifest, input Value) (Value, error) {
	if e.pool != nil && requiresSession(manifest.Metadata) {
		return e.pool.Invoke(ctx, manifest, input)
	}
	return e.next.Execute(ctx, manifest, input)
}

func requiresSession(metadata map[string]string) bool {
	const suffix = "_requires_session"
	for k, v := range metadata {
		if len(k) >= len(suffix) && k[len(k)-len(suffix):] == suffix {
			if v == "true" || v == "auto" {
				return true
			}
		}
	}
	return false
}

var _ Executor = (*SessionAwareExecutor)(nil)
