package resolver

import (
	"context"
	"errors"
	"time"

	"goa.design/ccos/capability"
	"goa.design/ccos/causalchain"
	"goa.design/ccos/checkpoint"
	"goa.design/ccos/telemetry"
)

// ErrNoMatch is returned by a DiscoveryStage that found nothing, signaling
// the pipeline to try the next stage rather than treating this as a failure.
var ErrNoMatch = errors.New("resolver: no match in this stage")

// DiscoveryRequest carries everything a stage needs to attempt discovery
// for a missing capability.
type DiscoveryRequest struct {
	CapabilityID string
	Args         any
	Context      map[string]string
}

// DiscoveryStage is one pluggable step of the fan-out discovery pipeline.
// Stages run in order; the pipeline stops at the first one that returns a
// non-nil manifest.
type DiscoveryStage interface {
	Name() string
	Discover(ctx context.Context, req DiscoveryRequest) (*capability.Manifest, error)
}

// ManifestStore is the subset of marketplace.Marketplace the resolver needs:
// lookup for the exact/partial-match stages and registration on success.
type ManifestStore interface {
	Get(id string) (capability.Manifest, bool)
	Manifests() []capability.Manifest
	Register(ctx context.Context, manifest capability.Manifest) error
}

// CheckpointLookup is the subset of checkpoint.Archive the auto-resume
// trigger needs.
type CheckpointLookup interface {
	WithMissingCapability(ctx context.Context, capabilityID string) ([]checkpoint.Record, error)
}

// PermanentError marks a stage failure that should never be retried
// automatically (e.g. a malformed capability id), routing the entry
// straight to the failed_resolutions set instead of a retryable failure.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string { return e.Reason }

// Resolver owns the discovery queue and the ordered stage pipeline.
type Resolver struct {
	queue       *Queue
	stages      []DiscoveryStage
	manifests   ManifestStore
	checkpoints CheckpointLookup
	chain       *causalchain.Chain
	logger      telemetry.Logger

	retryDelay time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithQueue replaces the default queue (useful for a custom maxAttempts).
func WithQueue(q *Queue) Option {
	return func(r *Resolver) { r.queue = q }
}

// WithCheckpoints attaches the checkpoint lookup used by the auto-resume
// trigger.
func WithCheckpoints(c CheckpointLookup) Option {
	return func(r *Resolver) { r.checkpoints = c }
}

// WithCausalChain attaches the causal chain discovery outcomes are audited
// to.
func WithCausalChain(chain *causalchain.Chain) Option {
	return func(r *Resolver) { r.chain = chain }
}

// WithLogger attaches a logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithRetryDelay overrides the default transient-failure retry delay
// (default 30s).
func WithRetryDelay(d time.Duration) Option {
	return func(r *Resolver) { r.retryDelay = d }
}

// New constructs a Resolver with the given manifest store and ordered
// discovery stages.
func New(manifests ManifestStore, stages []DiscoveryStage, opts ...Option) *Resolver {
	r := &Resolver{
		queue:      NewQueue(DefaultMaxAttempts),
		stages:     stages,
		manifests:  manifests,
		logger:     telemetry.NewNoopLogger(),
		retryDelay: 30 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Queue exposes the underlying request queue (Enqueue/Snapshot/ManualRetry).
func (r *Resolver) Queue() *Queue { return r.queue }

// NotifyMissing implements marketplace.MissingCapabilityNotifier and
// registry.MissingCapabilityNotifier: it enqueues a discovery request for
// the given capability id.
func (r *Resolver) NotifyMissing(_ context.Context, capabilityID string, args any, ctx map[string]string) {
	r.queue.Enqueue(capabilityID, args, ctx)
}

// ProcessQueue drains up to MaxBatchSize entries and runs the discovery
// pipeline for each, stopping each entry's pipeline at the first stage that
// produces a manifest.
func (r *Resolver) ProcessQueue(ctx context.Context) {
	for _, entry := range r.queue.Drain() {
		r.resolveOne(ctx, entry)
	}
}

func (r *Resolver) resolveOne(ctx context.Context, entry *Entry) {
	if !capability.ValidID(entry.CapabilityID) {
		r.queue.MarkPermanentlyFailed(entry.CapabilityID, "malformed capability id")
		r.auditOutcome(ctx, entry.CapabilityID, false, "malformed capability id")
		return
	}

	req := DiscoveryRequest{CapabilityID: entry.CapabilityID, Args: entry.Args, Context: entry.Context}
	for _, stage := range r.stages {
		manifest, err := stage.Discover(ctx, req)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			r.queue.MarkPermanentlyFailed(entry.CapabilityID, perm.Reason)
			r.auditOutcome(ctx, entry.CapabilityID, false, perm.Reason)
			return
		}
		if err != nil {
			r.queue.MarkFailed(entry.CapabilityID, err.Error(), r.retryDelay)
			r.auditOutcome(ctx, entry.CapabilityID, false, err.Error())
			return
		}
		if manifest != nil {
			if regErr := r.manifests.Register(ctx, *manifest); regErr != nil {
				r.queue.MarkFailed(entry.CapabilityID, regErr.Error(), r.retryDelay)
				r.auditOutcome(ctx, entry.CapabilityID, false, regErr.Error())
				return
			}
			r.queue.MarkResolved(entry.CapabilityID)
			r.auditOutcome(ctx, entry.CapabilityID, true, "resolved via "+stage.Name())
			r.triggerAutoResume(ctx, entry.CapabilityID)
			return
		}
	}
	r.queue.MarkFailed(entry.CapabilityID, "exhausted discovery pipeline", r.retryDelay)
	r.auditOutcome(ctx, entry.CapabilityID, false, "exhausted discovery pipeline")
}

func (r *Resolver) auditOutcome(ctx context.Context, capabilityID string, success bool, detail string) {
	if r.chain == nil {
		return
	}
	r.chain.Append(ctx, causalchain.Action{
		ActionType: causalchain.CapabilityDiscoveryCompleted,
		Metadata: map[string]any{
			"capability_id": capabilityID,
			"success":       success,
			"detail":        detail,
		},
	})
}

// triggerAutoResume looks up every checkpoint blocked on capabilityID and
// emits CheckpointReadyForResume for any whose full missing-capability set
// is now registered. The actual resume is initiated by the Orchestrator.
func (r *Resolver) triggerAutoResume(ctx context.Context, capabilityID string) {
	if r.checkpoints == nil {
		return
	}
	records, err := r.checkpoints.WithMissingCapability(ctx, capabilityID)
	if err != nil {
		r.logger.Warn(ctx, "resolver: checkpoint lookup failed", "capability_id", capabilityID, "error", err.Error())
		return
	}
	for _, rec := range records {
		if r.allMissingRegistered(rec) {
			if r.chain != nil {
				r.chain.Append(ctx, causalchain.Action{
					ActionType: causalchain.CheckpointReadyForResume,
					PlanID:     rec.PlanID,
					IntentID:   rec.IntentID,
					Metadata:   map[string]any{"checkpoint_id": rec.CheckpointID},
				})
			}
		}
	}
}

func (r *Resolver) allMissingRegistered(rec checkpoint.Record) bool {
	for id := range rec.MissingSet() {
		if _, ok := r.manifests.Get(id); !ok {
			return false
		}
	}
	return true
}
