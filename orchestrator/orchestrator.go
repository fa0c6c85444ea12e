// Package orchestrator implements the stateful plan-execution engine: it
// derives per-step security profiles, drives an external evaluator, emits
// the causal audit chain, and supports checkpoint/resume.
package orchestrator

import (
	"context"
	"strings"
	"sync"

	"goa.design/ccos/causalchain"
	"goa.design/ccos/ccoserr"
	"goa.design/ccos/checkpoint"
	"goa.design/ccos/intent"
	"goa.design/ccos/plan"
	"goa.design/ccos/telemetry"
)

// Value is the opaque evaluator value type threaded through plan execution.
type Value = any

// Evaluator parses and evaluates a plan body, and supports
// serialize/restore for checkpointing. It is an external collaborator — the
// concrete RTFS evaluator is out of scope for this repository.
type Evaluator interface {
	Eval(ctx context.Context, body plan.Body, host Host) (Value, error)
	Serialize() (string, error)
	Restore(serialized string) error
}

// Host is the narrow surface an Evaluator uses to invoke capabilities. The
// Orchestrator defines no Host of its own: it obtains one from HostFor,
// passing the plan's start action id so the Host can log each call as that
// action's child.
type Host interface {
	Invoke(ctx context.Context, capabilityID string, args Value) (Value, error)
}

// ExecutionResult is the outcome of a successful execute_plan call.
type ExecutionResult struct {
	Success  bool
	Value    Value
	Metadata map[string]any
}

// Orchestrator drives one Plan to completion under a RuntimeContext,
// logging every observable event to the shared causal chain.
type Orchestrator struct {
	Chain     *causalchain.Chain
	Intents   *intent.Graph
	Archive   *checkpoint.Archive
	Logger    telemetry.Logger
	Tracer    telemetry.Tracer
	HostFor   func(planActionID string) Host

	mu      sync.Mutex
	current *StepProfile
}

// New constructs an Orchestrator. hostFor builds the per-execution Host
// given the plan's start action id, so every capability call the host
// issues can be logged as that action's child.
func New(chain *causalchain.Chain, intents *intent.Graph, archive *checkpoint.Archive, hostFor func(string) Host) *Orchestrator {
	return &Orchestrator{
		Chain:   chain,
		Intents: intents,
		Archive: archive,
		Logger:  telemetry.NewNoopLogger(),
		Tracer:  telemetry.NewNoopTracer(),
		HostFor: hostFor,
	}
}

// ExecutePlan drives p to completion: PlanStarted -> Active->Executing ->
// evaluation -> {PlanCompleted, Executing->Completed} |
// {PlanAborted, Executing->Failed}. The original evaluation error, if any,
// is always returned to the caller — the audit trail is never swallowed.
func (o *Orchestrator) ExecutePlan(ctx context.Context, p plan.Plan, eval Evaluator, rc RuntimeContext) (ExecutionResult, error) {
	ctx, span := o.Tracer.Start(ctx, "orchestrator.execute_plan")
	defer span.End()

	primaryIntentID := ""
	if len(p.IntentIDs) > 0 {
		primaryIntentID = p.IntentIDs[0]
	}

	startAction := o.Chain.Append(ctx, causalchain.Action{
		IntentID:   primaryIntentID,
		PlanID:     p.PlanID,
		ActionType: causalchain.PlanStarted,
	})

	if err := o.Intents.Transition(ctx, primaryIntentID, intent.StatusExecuting, startAction.ActionID); err != nil {
		return ExecutionResult{}, ccoserr.Generic("orchestrator: transition to executing", err)
	}

	if isBlankBody(p.Body) {
		return o.abort(ctx, p, primaryIntentID, startAction.ActionID, ccoserr.InvalidArgument("orchestrator: plan body is empty"))
	}

	host := o.HostFor(startAction.ActionID)
	for _, step := range p.Steps {
		o.DeriveAndLogStepProfile(ctx, p.PlanID, primaryIntentID, startAction.ActionID, step.Name, step.CapabilityID, rc)
	}

	value, err := eval.Eval(ctx, p.Body, host)
	if err != nil {
		return o.abort(ctx, p, primaryIntentID, startAction.ActionID, err)
	}

	o.Chain.Append(ctx, causalchain.Action{
		IntentID:       primaryIntentID,
		PlanID:         p.PlanID,
		ParentActionID: startAction.ActionID,
		ActionType:     causalchain.PlanCompleted,
	})
	if err := o.Intents.Transition(ctx, primaryIntentID, intent.StatusCompleted, startAction.ActionID); err != nil {
		return ExecutionResult{}, ccoserr.Generic("orchestrator: transition to completed", err)
	}
	return ExecutionResult{Success: true, Value: value}, nil
}

func (o *Orchestrator) abort(ctx context.Context, p plan.Plan, intentID, startActionID string, cause error) (ExecutionResult, error) {
	o.Chain.Append(ctx, causalchain.Action{
		IntentID:       intentID,
		PlanID:         p.PlanID,
		ParentActionID: startActionID,
		ActionType:     causalchain.PlanAborted,
		Metadata:       map[string]any{"error": cause.Error()},
	})
	if tErr := o.Intents.Transition(ctx, intentID, intent.StatusFailed, startActionID); tErr != nil {
		o.Logger.Error(ctx, "orchestrator: failed to audit Failed transition after abort", "error", tErr.Error())
	}
	return ExecutionResult{}, cause
}

// DeriveAndLogStepProfile runs the step-profile derivation algorithm for one
// step, records the result as the orchestrator's current profile, and appends
// a StepProfileDerived action carrying the step name, network/fs policies and
// resource limits. Derivation never fails; an unparseable expression yields
// conservative defaults.
func (o *Orchestrator) DeriveAndLogStepProfile(ctx context.Context, planID, intentID, parentActionID, stepName, stepExpr string, rc RuntimeContext) StepProfile {
	profile := DeriveStepProfile(stepName, stepExpr, rc)

	o.mu.Lock()
	o.current = &profile
	o.mu.Unlock()

	o.Chain.Append(ctx, causalchain.Action{
		IntentID:       intentID,
		PlanID:         planID,
		ParentActionID: parentActionID,
		ActionType:     causalchain.StepProfileDerived,
		FunctionName:   stepName,
		Metadata: map[string]any{
			"step_name":       stepName,
			"isolation_level": string(profile.IsolationLevel),
			"network_policy":  profile.MicroVM.Network,
			"fs_policy":       profile.MicroVM.FS,
			"resource_limits": profile.ResourceLimits,
		},
	})
	return profile
}

// CurrentStepProfile returns the most recently derived step profile, if any.
func (o *Orchestrator) CurrentStepProfile() (StepProfile, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return StepProfile{}, false
	}
	return *o.current, true
}

func isBlankBody(b plan.Body) bool {
	if b.Language == plan.Wasm {
		return len(b.Wasm) == 0
	}
	return strings.TrimSpace(b.Rtfs) == ""
}

// CheckpointPlan serializes eval's context, hashes it to a checkpoint id,
// persists it to the archive, and appends PlanPaused.
func (o *Orchestrator) CheckpointPlan(ctx context.Context, p plan.Plan, eval Evaluator, missingCapabilities []string) (string, error) {
	primaryIntentID := ""
	if len(p.IntentIDs) > 0 {
		primaryIntentID = p.IntentIDs[0]
	}
	serialized, err := eval.Serialize()
	if err != nil {
		return "", ccoserr.Generic("orchestrator: serialize evaluator context", err)
	}
	id, err := o.Archive.Store(ctx, p.PlanID, primaryIntentID, serialized, missingCapabilities, nil)
	if err != nil {
		return "", err
	}
	o.Chain.Append(ctx, causalchain.Action{
		IntentID:   primaryIntentID,
		PlanID:     p.PlanID,
		ActionType: causalchain.PlanPaused,
		Metadata:   map[string]any{"checkpoint_id": id},
	})
	return id, nil
}

// ResumePlan restores eval's context from the archived checkpoint for
// (p.PlanID, intentID), rejecting a resume whose recomputed id doesn't
// match the archived record, and appends PlanResumed.
func (o *Orchestrator) ResumePlan(ctx context.Context, p plan.Plan, eval Evaluator, serialized string) error {
	primaryIntentID := ""
	if len(p.IntentIDs) > 0 {
		primaryIntentID = p.IntentIDs[0]
	}
	rec, err := o.Archive.ValidateResume(ctx, p.PlanID, primaryIntentID, serialized)
	if err != nil {
		return err
	}
	if err := eval.Restore(serialized); err != nil {
		return ccoserr.Generic("orchestrator: restore evaluator context", err)
	}
	o.Chain.Append(ctx, causalchain.Action{
		IntentID:   primaryIntentID,
		PlanID:     p.PlanID,
		ActionType: causalchain.PlanResumed,
		Metadata:   map[string]any{"checkpoint_id": rec.CheckpointID},
	})
	return nil
}
