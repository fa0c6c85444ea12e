package marketplace

import (
	"context"
	"sync"

	"goa.design/ccos/capability"
	"goa.design/ccos/ccoserr"
)

// LocalExecutor dispatches Provider.Local manifests to in-process handler
// functions registered by key, since manifests themselves must stay
// serializable (see capability.LocalConfig).
type LocalExecutor struct {
	mu       sync.RWMutex
	handlers map[string]LocalHandler
}

// NewLocalExecutor constructs an empty LocalExecutor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{handlers: make(map[string]LocalHandler)}
}

// RegisterHandler associates key with handler. Re-registering a key replaces
// the previous handler.
func (e *LocalExecutor) RegisterHandler(key string, handler LocalHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[key] = handler
}

// Execute looks up the handler named by manifest.Provider.Local.HandlerKey
// and invokes it.
func (e *LocalExecutor) Execute(ctx context.Context, m capability.Manifest, input Value) (Value, error) {
	if m.Provider.Local == nil {
		return nil, ccoserr.Genericf("local executor: manifest %q has no local provider config", m.ID)
	}
	e.mu.RLock()
	handler, ok := e.handlers[m.Provider.Local.HandlerKey]
	e.mu.RUnlock()
	if !ok {
		return nil, ccoserr.Genericf("local executor: no handler registered for key %q (capability %q)", m.Provider.Local.HandlerKey, m.ID)
	}
	return handler(ctx, input)
}

var _ Executor = (*LocalExecutor)(nil)
