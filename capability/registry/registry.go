// Package registry implements the Capability Registry (runtime): the
// built-in capability set (ccos.system.*, ccos.io.*, ccos.state.*,
// ccos.network.http-fetch, ccos.agent.*, ccos.json.*), execution-policy
// selection between the in-process LocalProvider and the marketplace, and
// the missing-capability trap that feeds the resolver.
package registry

import (
	"context"
	"sync"

	"goa.design/ccos/causalchain"
	"goa.design/ccos/ccoserr"
	"goa.design/ccos/telemetry"
)

// Value mirrors marketplace.Value: the dynamically-typed exchange value.
type Value = any

// ExecutionPolicy selects how a capability call is routed between the
// in-process LocalProvider and the marketplace's provider dispatch.
type ExecutionPolicy string

const (
	// PolicyMarketplace routes every call through the marketplace's provider
	// dispatch; the registry is consulted only as its fallback for built-ins.
	PolicyMarketplace ExecutionPolicy = "marketplace"
	// PolicyHybrid (the default) lets a small allowlist of "safe" built-ins
	// run in-process; everything else goes through the marketplace.
	PolicyHybrid ExecutionPolicy = "hybrid"
	// PolicyInlineDev routes everything through the in-process LocalProvider;
	// intended for local development, never production.
	PolicyInlineDev ExecutionPolicy = "inline_dev"
)

// defaultSafeCapabilities is the Hybrid-mode allowlist: the local file/JSON/
// state/log/print/env/time set plus mocked http-fetch, per §4.3.
var defaultSafeCapabilities = map[string]bool{
	"ccos.io.read-file":       true,
	"ccos.io.write-file":      true,
	"ccos.io.print":           true,
	"ccos.json.parse":         true,
	"ccos.json.stringify":     true,
	"ccos.state.get":          true,
	"ccos.state.set":          true,
	"ccos.state.delete":       true,
	"ccos.system.env":         true,
	"ccos.system.time":        true,
	"ccos.network.http-fetch": true,
}

// CapabilityExecutor is the shape the marketplace.Marketplace satisfies;
// the registry routes to it for every capability the execution policy
// doesn't keep in-process.
type CapabilityExecutor interface {
	Execute(ctx context.Context, id string, input Value) (Value, error)
}

// MissingCapabilityNotifier is notified when a built-in id is requested that
// the registry has no handler for, so the resolver can attempt discovery.
type MissingCapabilityNotifier interface {
	NotifyMissing(ctx context.Context, capabilityID string, args Value, context map[string]string)
}

// BuiltinHandler implements one ccos.* built-in capability.
type BuiltinHandler func(ctx context.Context, reg *Registry, input Value) (Value, error)

// Registry holds the built-in capability handlers, the execution policy, and
// a reference to the marketplace used for everything the policy routes
// away from the LocalProvider.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]BuiltinHandler
	safe     map[string]bool
	policy   ExecutionPolicy

	marketplace CapabilityExecutor
	sessionPool SessionPoolManager
	missing     MissingCapabilityNotifier

	state *stateStore
	http  *httpFetcher

	chain  *causalchain.Chain
	logger telemetry.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithExecutionPolicy sets the execution policy (default Hybrid).
func WithExecutionPolicy(p ExecutionPolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithMarketplace attaches the marketplace every non-local-safe capability
// routes to.
func WithMarketplace(mp CapabilityExecutor) Option {
	return func(r *Registry) { r.marketplace = mp }
}

// WithSessionPool stores a session-pool manager on the Registry. Invoke and
// Execute do not consult it; session-scoped routing happens in the
// marketplace's SessionAwareExecutor.
func WithSessionPool(sp SessionPoolManager) Option {
	return func(r *Registry) { r.sessionPool = sp }
}

// WithMissingCapabilityNotifier attaches the resolver hook invoked when a
// requested built-in has no handler.
func WithMissingCapabilityNotifier(n MissingCapabilityNotifier) Option {
	return func(r *Registry) { r.missing = n }
}

// WithCausalChain stores a causal chain on the Registry. The built-in
// handlers do not append actions to it.
func WithCausalChain(chain *causalchain.Chain) Option {
	return func(r *Registry) { r.chain = chain }
}

// WithLogger attaches a logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithHTTPFetcher replaces the default http-fetch built-in's transport,
// e.g. to force mock mode or set a host allowlist. See NewHTTPFetcher.
func WithHTTPFetcher(f *httpFetcher) Option {
	return func(r *Registry) { r.http = f }
}

// New constructs a Registry with every ccos.* built-in installed and the
// Hybrid execution policy unless overridden.
func New(opts ...Option) *Registry {
	r := &Registry{
		builtins: make(map[string]BuiltinHandler),
		safe:     defaultSafeCapabilities,
		policy:   PolicyHybrid,
		state:    newStateStore(),
		http:     NewHTTPFetcher(),
		logger:   telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	r.installBuiltins()
	return r
}

// RegisterBuiltin installs or replaces the handler for a ccos.* id, letting
// callers extend or stub the built-in set for tests.
func (r *Registry) RegisterBuiltin(id string, handler BuiltinHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[id] = handler
}

// IsSafe reports whether id is in the Hybrid-mode LocalProvider allowlist.
func (r *Registry) IsSafe(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.safe[id]
}

// Invoke is the execution-policy entry point: it decides, for a given
// capability id, whether to dispatch to the in-process LocalProvider
// (built-ins) or the marketplace, per the configured ExecutionPolicy.
func (r *Registry) Invoke(ctx context.Context, id string, input Value) (Value, error) {
	switch r.policy {
	case PolicyInlineDev:
		return r.Execute(ctx, id, input)
	case PolicyMarketplace:
		if r.marketplace == nil {
			return r.Execute(ctx, id, input)
		}
		return r.marketplace.Execute(ctx, id, input)
	default: // PolicyHybrid
		if r.IsSafe(id) {
			return r.Execute(ctx, id, input)
		}
		if r.marketplace == nil {
			return r.Execute(ctx, id, input)
		}
		return r.marketplace.Execute(ctx, id, input)
	}
}

// Execute dispatches directly to a built-in handler, implementing
// marketplace.Fallback so the Marketplace can route here when no manifest
// services id. When no handler exists, it fires the missing-capability trap
// before returning an error.
func (r *Registry) Execute(ctx context.Context, id string, input Value) (Value, error) {
	r.mu.RLock()
	handler, ok := r.builtins[id]
	r.mu.RUnlock()
	if !ok {
		if r.missing != nil {
			r.missing.NotifyMissing(ctx, id, input, map[string]string{"scope": id})
		}
		return nil, ccoserr.Genericf("registry: no built-in handler for capability %q", id)
	}
	return handler(ctx, r, input)
}

func (r *Registry) installBuiltins() {
	r.RegisterBuiltin("ccos.system.env", builtinSystemEnv)
	r.RegisterBuiltin("ccos.system.time", builtinSystemTime)
	r.RegisterBuiltin("ccos.io.read-file", builtinReadFile)
	r.RegisterBuiltin("ccos.io.write-file", builtinWriteFile)
	r.RegisterBuiltin("ccos.io.print", builtinPrint)
	r.RegisterBuiltin("ccos.json.parse", builtinJSONParse)
	r.RegisterBuiltin("ccos.json.stringify", builtinJSONStringify)
	r.RegisterBuiltin("ccos.state.get", builtinStateGet)
	r.RegisterBuiltin("ccos.state.set", builtinStateSet)
	r.RegisterBuiltin("ccos.state.delete", builtinStateDelete)
	r.RegisterBuiltin("ccos.network.http-fetch", builtinHTTPFetch)
}

// RequiresSession reports whether a manifest's metadata marks it as needing
// a stateful session handler: any key ending in "_requires_session" with
// value "true" or "auto". No protocol name is hardcoded, per §4.3.
func RequiresSession(metadata map[string]string) bool {
	for k, v := range metadata {
		if len(k) >= len("_requires_session") && k[len(k)-len("_requires_session"):] == "_requires_session" {
			if v == "true" || v == "auto" {
				return true
			}
		}
	}
	return false
}

// SessionPoolManager owns stateful protocol handlers (e.g. MCP sessions)
// for capabilities whose metadata requires one.
type SessionPoolManager interface {
	Invoke(ctx context.Context, capabilityID string, input Value) (Value, error)
}
