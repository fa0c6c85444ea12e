// Command ccos is the thin composition root wiring the Causal Chain, Intent
// Graph, Checkpoint Archive, Capability Marketplace, runtime Registry, and
// Orchestrator into one running process, then drives a single goal through
// them end to end (the happy-path seed scenario). It is deliberately small:
// the CLI/TUI front end, config-file loading, and the RTFS parser/evaluator
// are all external collaborators out of scope for this repository, so this
// binary stands in for them with the minimum needed to demonstrate the
// wiring — a fixed goal, a stub LLM response, and a sequential evaluator
// that walks a plan's steps directly instead of parsing rendered Rtfs20.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"goa.design/ccos/capability"
	"goa.design/ccos/capability/marketplace"
	"goa.design/ccos/capability/registry"
	"goa.design/ccos/causalchain"
	"goa.design/ccos/checkpoint"
	"goa.design/ccos/intent"
	"goa.design/ccos/orchestrator"
	"goa.design/ccos/plan"
	"goa.design/ccos/planner"
	"goa.design/ccos/resolver"
	"goa.design/ccos/telemetry"
)

// registryFallback breaks the Marketplace<->Registry construction cycle: the
// Marketplace needs a Fallback at construction time, but the Registry needs
// a constructed Marketplace to route through. A registryFallback is built
// empty, handed to the Marketplace, and pointed at the Registry once both
// exist — the same "share a handle, wire it after both sides exist"
// resolution the design notes prescribe for the Orchestrator/Host/
// Marketplace cycle, applied here to the Marketplace/Registry cycle.
type registryFallback struct {
	reg *registry.Registry
}

func (f *registryFallback) Execute(ctx context.Context, id string, input marketplace.Value) (marketplace.Value, error) {
	if f.reg == nil {
		return nil, fmt.Errorf("ccos: registry fallback not yet wired")
	}
	return f.reg.Execute(ctx, id, input)
}

// missingCapabilityNotifier breaks the Marketplace/Registry <-> Resolver
// construction cycle the same way: the Marketplace and Registry need a
// notifier at construction time, but the Resolver's discovery stages need a
// constructed Marketplace to query.
type missingCapabilityNotifier struct {
	res *resolver.Resolver
}

func (n *missingCapabilityNotifier) NotifyMissing(ctx context.Context, capabilityID string, args any, meta map[string]string) {
	if n.res != nil {
		n.res.NotifyMissing(ctx, capabilityID, args, meta)
	}
}

// planHost adapts a Marketplace into an orchestrator.Host, logging every
// capability invocation as a child action of the plan's start action — the
// Orchestrator's own audit-completeness contract (every CapabilityCall
// carries parent_action_id = plan_action_id) lives here rather than inside
// the Marketplace, since only the composition root knows which plan/intent
// a given execution belongs to.
type planHost struct {
	mp             *marketplace.Marketplace
	chain          *causalchain.Chain
	planID         string
	intentID       string
	parentActionID string
}

func (h *planHost) Invoke(ctx context.Context, capabilityID string, args orchestrator.Value) (orchestrator.Value, error) {
	start := time.Now()
	result, err := h.mp.Execute(ctx, capabilityID, args)
	meta := map[string]any{}
	if err != nil {
		meta["error"] = err.Error()
	}
	h.chain.Append(ctx, causalchain.Action{
		IntentID:       h.intentID,
		PlanID:         h.planID,
		ParentActionID: h.parentActionID,
		ActionType:     causalchain.CapabilityCall,
		FunctionName:   capabilityID,
		Arguments:      map[string]any{"input": args},
		Result:         result,
		DurationMS:     time.Since(start).Milliseconds(),
		Metadata:       meta,
	})
	return result, err
}

// sequentialEvaluator stands in for the out-of-scope RTFS evaluator: it
// walks a plan's logical Step list directly (bypassing the rendered Rtfs20
// source the real evaluator would parse) and resolves each binding kind the
// same way the real evaluator must. Serialize/Restore round-trip the only
// state a resume needs to reconstruct: variables and prior step outputs.
type sequentialEvaluator struct {
	steps   []plan.Step
	vars    map[string]any
	outputs map[string]map[string]any
}

func newSequentialEvaluator(steps []plan.Step, vars map[string]any) *sequentialEvaluator {
	return &sequentialEvaluator{steps: steps, vars: vars, outputs: map[string]map[string]any{}}
}

func (e *sequentialEvaluator) Eval(ctx context.Context, _ plan.Body, host orchestrator.Host) (orchestrator.Value, error) {
	for _, step := range e.steps {
		args := map[string]any{}
		for _, in := range step.Inputs {
			switch in.Binding.Kind {
			case plan.BindingVariable:
				args[in.Name] = e.vars[in.Binding.Variable]
			case plan.BindingLiteral:
				args[in.Name] = in.Binding.Literal
			case plan.BindingStepOutput:
				if out, ok := e.outputs[in.Binding.StepID]; ok {
					args[in.Name] = out[in.Binding.Output]
				}
			}
		}
		raw, err := host.Invoke(ctx, step.CapabilityID, args)
		if err != nil {
			return nil, err
		}
		out, _ := raw.(map[string]any)
		e.outputs[step.ID] = out
	}

	result := map[string]any{}
	for _, step := range e.steps {
		for _, name := range step.Outputs {
			out, ok := e.outputs[step.ID]
			if !ok {
				continue
			}
			if v, ok := out[name]; ok {
				result[name] = v
			} else {
				// A declared output the capability result doesn't name maps to
				// the whole step value, e.g. "profile" over {id,name,email}.
				result[name] = out
			}
		}
	}
	return result, nil
}

func (e *sequentialEvaluator) Serialize() (string, error) {
	b, err := json.Marshal(struct {
		Vars    map[string]any            `json:"vars"`
		Outputs map[string]map[string]any `json:"outputs"`
	}{e.vars, e.outputs})
	return string(b), err
}

func (e *sequentialEvaluator) Restore(serialized string) error {
	var s struct {
		Vars    map[string]any            `json:"vars"`
		Outputs map[string]map[string]any `json:"outputs"`
	}
	if err := json.Unmarshal([]byte(serialized), &s); err != nil {
		return err
	}
	e.vars, e.outputs = s.Vars, s.Outputs
	return nil
}

// stubGenerator is a fixed planner.TextGenerator standing in for the
// concrete LLM providers in planner/llmadapter, which all need a live API
// key to call; it returns the scenario-1 step proposal for any prompt.
type stubGenerator struct{}

func (stubGenerator) GenerateRawText(context.Context, string) (string, error) {
	return `[{"id":"s0","name":"fetch profile","capability_id":"users.profile.get",` +
		`"inputs":{"userId":"var::userId"},"outputs":["profile"]}]`, nil
}

func main() {
	ctx := context.Background()
	logger := telemetry.NewNoopLogger()
	tracer := telemetry.NewNoopTracer()

	chain := causalchain.New(causalchain.WithLogger(logger))
	intents := intent.NewGraph(intent.ChainEventSink{Chain: chain})
	archive := checkpoint.NewArchive(checkpoint.NewMemoryStore())

	fallback := &registryFallback{}
	notifier := &missingCapabilityNotifier{}
	mp := marketplace.New(
		marketplace.WithCausalChain(chain),
		marketplace.WithLogger(logger),
		marketplace.WithTracer(tracer),
		marketplace.WithFallback(fallback),
		marketplace.WithMissingCapabilityNotifier(notifier),
	)

	local := marketplace.NewLocalExecutor()
	local.RegisterHandler("users.profile.get", func(_ context.Context, input marketplace.Value) (marketplace.Value, error) {
		args, _ := input.(map[string]any)
		userID, _ := args["userId"].(string)
		return map[string]any{"id": userID, "name": "Ada", "email": "ada@x"}, nil
	})
	mp.RegisterExecutor(capability.ProviderLocal, local)

	profileManifest := capability.Manifest{
		ID:          "users.profile.get",
		Name:        "Get user profile",
		Description: "Fetch the public profile for a user",
		Version:     "1.0.0",
		Provider: capability.Provider{
			Kind:  capability.ProviderLocal,
			Local: &capability.LocalConfig{HandlerKey: "users.profile.get"},
		},
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"userId": map[string]any{"type": "string"}},
			"required":   []any{"userId"},
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":    map[string]any{"type": "string"},
				"name":  map[string]any{"type": "string"},
				"email": map[string]any{"type": "string"},
			},
		},
		Provenance:  capability.Provenance{Source: "builtin-demo"},
		Permissions: []string{"read"},
	}
	if err := mp.Register(ctx, profileManifest); err != nil {
		log.Fatalf("ccos: register capability: %v", err)
	}

	reg := registry.New(
		registry.WithMarketplace(mp),
		registry.WithCausalChain(chain),
		registry.WithLogger(logger),
		registry.WithMissingCapabilityNotifier(notifier),
	)
	fallback.reg = reg

	// The discovery pipeline is fully wired (exact/partial-match stages over
	// the same marketplace) but this demo's single goal never hits the
	// missing-capability trap, so ProcessQueue is never driven.
	res := resolver.New(mp, []resolver.DiscoveryStage{
		&resolver.ExactMatchStage{Manifests: mp},
		&resolver.PartialMatchStage{Manifests: mp},
	}, resolver.WithCausalChain(chain), resolver.WithCheckpoints(archive), resolver.WithLogger(logger))
	notifier.res = res

	orc := orchestrator.New(chain, intents, archive, nil)

	goal := "Fetch the public profile for user u42"
	it := intent.New(goal)
	intents.Store(it)

	pl := planner.New(stubGenerator{}, planner.WithLogger(logger))
	p, err := pl.Synthesize(ctx, it, mp.Manifests())
	if err != nil {
		log.Fatalf("ccos: synthesize plan: %v", err)
	}

	eval := newSequentialEvaluator(p.Steps, map[string]any{"userId": "u42"})
	orc.HostFor = func(planActionID string) orchestrator.Host {
		return &planHost{mp: mp, chain: chain, planID: p.PlanID, intentID: it.IntentID, parentActionID: planActionID}
	}

	rc := orchestrator.NewRuntimeContext()
	result, err := orc.ExecutePlan(ctx, p, eval, rc)
	if err != nil {
		log.Fatalf("ccos: execute plan: %v", err)
	}

	out, _ := json.MarshalIndent(result.Value, "", "  ")
	fmt.Println(string(out))

	fmt.Println("\ncausal chain:")
	for _, a := range chain.ForPlan(p.PlanID) {
		fmt.Printf("  %-22s %s\n", a.ActionType, a.FunctionName)
	}
}
