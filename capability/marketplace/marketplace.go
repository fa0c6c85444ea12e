package marketplace

import (
	"context"
	"sort"
	"sync"
	"time"

	"goa.design/ccos/capability"
	"goa.design/ccos/capability/marketplace/resourcemonitor"
	"goa.design/ccos/causalchain"
	"goa.design/ccos/ccoserr"
	"goa.design/ccos/telemetry"
)

// Fallback is consulted when execute_capability finds no manifest for an id;
// the runtime Registry (§4.3) implements this to service its built-ins.
type Fallback interface {
	Execute(ctx context.Context, id string, input Value) (Value, error)
}

// MissingCapabilityNotifier is notified when neither the marketplace nor its
// fallback can service a capability id, so the Resolver (§4.4) can enqueue a
// discovery request.
type MissingCapabilityNotifier interface {
	NotifyMissing(ctx context.Context, capabilityID string, args Value, context map[string]string)
}

// Marketplace is the sole registry of CapabilityManifest records and the
// dispatcher to provider executors.
type Marketplace struct {
	mu        sync.RWMutex
	manifests map[string]capability.Manifest

	executors map[capability.ProviderKind]Executor
	policy    capability.IsolationPolicy
	monitor   *resourcemonitor.Monitor
	fallback  Fallback
	missing   MissingCapabilityNotifier

	chain  *causalchain.Chain
	logger telemetry.Logger
	tracer telemetry.Tracer
}

// Option configures a Marketplace.
type Option func(*Marketplace)

// WithPolicy sets the isolation policy enforced by execute_capability.
func WithPolicy(p capability.IsolationPolicy) Option {
	return func(m *Marketplace) { m.policy = p }
}

// WithResourceMonitor attaches a resource monitor.
func WithResourceMonitor(mon *resourcemonitor.Monitor) Option {
	return func(m *Marketplace) { m.monitor = mon }
}

// WithFallback attaches the runtime registry fallback consulted when no
// manifest exists for a capability id.
func WithFallback(f Fallback) Option {
	return func(m *Marketplace) { m.fallback = f }
}

// WithMissingCapabilityNotifier attaches the resolver hook invoked when a
// capability can be serviced by neither the marketplace nor its fallback.
func WithMissingCapabilityNotifier(n MissingCapabilityNotifier) Option {
	return func(m *Marketplace) { m.missing = n }
}

// WithCausalChain attaches the causal chain every mutating operation audits to.
func WithCausalChain(chain *causalchain.Chain) Option {
	return func(m *Marketplace) { m.chain = chain }
}

// WithLogger attaches a logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(m *Marketplace) { m.logger = logger }
}

// WithTracer attaches a tracer.
func WithTracer(tracer telemetry.Tracer) Option {
	return func(m *Marketplace) { m.tracer = tracer }
}

// New constructs an empty Marketplace with the default executor registry
// (Local + HTTP) and the given options applied.
func New(opts ...Option) *Marketplace {
	m := &Marketplace{
		manifests: make(map[string]capability.Manifest),
		executors: map[capability.ProviderKind]Executor{
			capability.ProviderLocal: NewLocalExecutor(),
			capability.ProviderHTTP:  NewHTTPExecutor(nil),
		},
		logger: telemetry.NewNoopLogger(),
		tracer: telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RegisterExecutor installs or replaces the executor used for a given
// provider kind, the seam that lets new provider kinds (or test doubles) be
// added without touching dispatch logic.
func (m *Marketplace) RegisterExecutor(kind capability.ProviderKind, exec Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executors[kind] = exec
}

// Register validates and stores a manifest (covering every
// register_*_capability variant from §4.2: Local/HTTP/MCP/A2A/Plugin/
// RemoteRTFS/Stream all funnel through this one entry point, keyed by
// manifest.Provider.Kind). It computes the content hash, appends
// CapabilityRegistered (or CapabilityUpdated if the id already existed), and
// rejects ids failing the dotted-namespace rule.
//
// Registering the same logical manifest twice (idempotent registration, §8
// universal invariant 2) yields exactly one CapabilityRegistered record: the
// second call is treated as a no-op update when the content hash is
// unchanged.
func (m *Marketplace) Register(ctx context.Context, manifest capability.Manifest) error {
	if !capability.ValidID(manifest.ID) {
		return ccoserr.InvalidArgumentf("capability id %q must contain at least one '.'", manifest.ID)
	}
	manifest.Provenance.ContentHash = capability.ComputeContentHash(manifest)
	if manifest.Provenance.RegisteredAt.IsZero() {
		manifest.Provenance.RegisteredAt = time.Now().UTC()
	}

	m.mu.Lock()
	existing, existed := m.manifests[manifest.ID]
	unchanged := existed && existing.Provenance.ContentHash == manifest.Provenance.ContentHash
	if !unchanged {
		m.manifests[manifest.ID] = manifest
	}
	m.mu.Unlock()

	if unchanged {
		return nil
	}

	actionType := causalchain.CapabilityRegistered
	if existed {
		actionType = causalchain.CapabilityUpdated
	}
	if m.chain != nil {
		m.chain.Append(ctx, causalchain.Action{
			ActionType: actionType,
			Metadata: map[string]any{
				"capability_id": manifest.ID,
				"provider_kind": string(manifest.Provider.Kind),
				"content_hash":  manifest.Provenance.ContentHash,
			},
		})
	}
	return nil
}

// Remove deletes the manifest for id. It is idempotent: removing an id that
// was never registered is a no-op and emits no CapabilityRemoved action.
func (m *Marketplace) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	_, existed := m.manifests[id]
	delete(m.manifests, id)
	m.mu.Unlock()

	if existed && m.chain != nil {
		m.chain.Append(ctx, causalchain.Action{
			ActionType: causalchain.CapabilityRemoved,
			Metadata:   map[string]any{"capability_id": id},
		})
	}
}

// Get returns the manifest registered for id.
func (m *Marketplace) Get(id string) (capability.Manifest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	man, ok := m.manifests[id]
	return man, ok
}

// Execute runs the full §4.2 execute_capability pipeline: isolation-policy
// check, pre-exec resource check, input validation, provider dispatch,
// output validation, release of the resource monitor's in-flight slot (no
// post-exec check is made), with a fallback to the
// runtime registry (and a missing-capability trap) when no manifest exists.
func (m *Marketplace) Execute(ctx context.Context, id string, input Value) (Value, error) {
	ctx, span := m.tracer.Start(ctx, "marketplace.execute_capability")
	defer span.End()
	span.SetAttribute("capability_id", id)

	if !m.policy.Allows(id, time.Now()) {
		err := ccoserr.SecurityViolation("execute_capability", id, "denied by isolation policy")
		span.RecordError(err)
		return nil, err
	}

	manifest, ok := m.Get(id)
	if !ok {
		return m.executeFallback(ctx, id, input)
	}

	viol, err := m.monitor.PreExecCheck(ctx, id, m.policy.ResourceConstraints)
	if err != nil {
		// Hard violations fail the call before any provider is dispatched.
		span.RecordError(err)
		return nil, err
	}
	if viol != nil {
		m.logger.Warn(ctx, "soft resource violation", "capability_id", id, "reason", viol.Reason)
	}
	defer m.monitor.PostExecRelease(id)

	if err := ValidateAgainstSchema(input, manifest.InputSchema, "execute_capability.input"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	exec, ok := m.executors[manifest.Provider.Kind]
	m.mu.RUnlock()
	if !ok {
		return nil, ccoserr.Genericf("no executor registered for provider kind %q", manifest.Provider.Kind)
	}

	result, err := exec.Execute(ctx, manifest, input)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := ValidateAgainstSchema(result, manifest.OutputSchema, "execute_capability.output"); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Marketplace) executeFallback(ctx context.Context, id string, input Value) (Value, error) {
	if m.fallback != nil {
		result, err := m.fallback.Execute(ctx, id, input)
		if err == nil {
			return result, nil
		}
		// A policy denial from the fallback is final: it must surface as-is,
		// never be downgraded to Generic, and must not enqueue discovery.
		if ccoserr.Is(err, ccoserr.KindSecurityViolation) {
			return nil, err
		}
	}
	if m.missing != nil {
		m.missing.NotifyMissing(ctx, id, input, map[string]string{"scope": id})
	}
	return nil, ccoserr.Genericf("no capability registered for id %q", id)
}

// ExecuteWithValidation is the ergonomic wrapper over Execute: it accepts
// named params and, when the capability's input schema is not an object
// schema and exactly one param is supplied, passes that single value
// directly instead of wrapping it in a map.
func (m *Marketplace) ExecuteWithValidation(ctx context.Context, id string, params map[string]Value) (Value, error) {
	manifest, ok := m.Get(id)
	if ok && len(params) == 1 && !IsMapSchema(manifest.InputSchema) {
		for _, v := range params {
			return m.Execute(ctx, id, v)
		}
	}
	return m.Execute(ctx, id, params)
}

// Manifests returns a snapshot copy of every registered manifest, used by
// the resolver's partial-match discovery stage.
func (m *Marketplace) Manifests() []capability.Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]capability.Manifest, 0, len(m.manifests))
	for _, man := range m.manifests {
		out = append(out, man)
	}
	return out
}

// PublicCapability is the sanitized, externally-observable view of a
// registered manifest: no auth tokens, handler identities, or internal
// paths.
type PublicCapability struct {
	ID           string `json:"id"`
	Namespace    string `json:"namespace"`
	ProviderType string `json:"provider_type"`
	Version      string `json:"version"`
}

// PublicCapabilitiesSnapshot returns up to limit sanitized capability
// summaries, sorted by id for determinism. limit <= 0 means unbounded.
func (m *Marketplace) PublicCapabilitiesSnapshot(limit int) []PublicCapability {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PublicCapability, 0, len(m.manifests))
	for _, man := range m.manifests {
		out = append(out, PublicCapability{
			ID:           man.ID,
			Namespace:    capability.Namespace(man.ID),
			ProviderType: string(man.Provider.Kind),
			Version:      man.Version,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PublicCapabilitiesAggregate summarizes the catalog by provider type and
// namespace.
type PublicCapabilitiesAggregate struct {
	Total         int            `json:"total"`
	ByProviderType map[string]int `json:"by_provider_type"`
	Namespaces     []string       `json:"namespaces"`
}

// PublicCapabilitiesAggregate computes the current catalog aggregate.
func (m *Marketplace) PublicCapabilitiesAggregate() PublicCapabilitiesAggregate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg := PublicCapabilitiesAggregate{
		Total:         len(m.manifests),
		ByProviderType: make(map[string]int),
	}
	namespaces := make(map[string]struct{})
	for _, man := range m.manifests {
		agg.ByProviderType[string(man.Provider.Kind)]++
		namespaces[capability.Namespace(man.ID)] = struct{}{}
	}
	for ns := range namespaces {
		agg.Namespaces = append(agg.Namespaces, ns)
	}
	sort.Strings(agg.Namespaces)
	return agg
}
