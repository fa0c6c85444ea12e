// Package plan implements the Plan data model: a concrete, validated,
// capability-bound realization of one or more intents, plus the sorted-set
// and step-reference invariants described for it.
package plan

import (
	"sort"

	"github.com/google/uuid"
)

// Language names a plan-body expression language.
type Language string

const (
	// Rtfs20 is the s-expression plan language the Orchestrator's evaluator
	// collaborator understands.
	Rtfs20 Language = "Rtfs20"
	// Wasm marks a plan body as compiled WebAssembly bytes.
	Wasm Language = "Wasm"
)

// Status is a plan's lifecycle state.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusPaused    Status = "Paused"
)

// Body is a tagged union over the two supported plan-body encodings. Exactly
// one of Rtfs/Wasm is populated, selected by Language.
type Body struct {
	Language Language `json:"language" bson:"language"`
	Rtfs     string   `json:"rtfs,omitempty" bson:"rtfs,omitempty"`
	Wasm     []byte   `json:"wasm,omitempty" bson:"wasm,omitempty"`
}

// BindingKind tags the three ways a step input can be bound.
type BindingKind string

const (
	// BindingLiteral carries a constant value serialized as a string.
	BindingLiteral BindingKind = "literal"
	// BindingVariable references a name in the plan's input_schema.
	BindingVariable BindingKind = "variable"
	// BindingStepOutput references a named output of a previously-declared
	// step.
	BindingStepOutput BindingKind = "step_output"
)

// Binding is one step input's source.
type Binding struct {
	Kind     BindingKind `json:"kind" bson:"kind"`
	Literal  string      `json:"literal,omitempty" bson:"literal,omitempty"`
	Variable string      `json:"variable,omitempty" bson:"variable,omitempty"`
	StepID   string      `json:"step_id,omitempty" bson:"step_id,omitempty"`
	Output   string      `json:"output,omitempty" bson:"output,omitempty"`
}

// Input is one named, bound step input, kept in declaration order.
type Input struct {
	Name    string  `json:"name" bson:"name"`
	Binding Binding `json:"binding" bson:"binding"`
}

// Step is one logical operation inside a plan body: an invocation of
// CapabilityID with bound Inputs, producing the named Outputs.
type Step struct {
	ID           string   `json:"id" bson:"id"`
	Name         string   `json:"name" bson:"name"`
	CapabilityID string   `json:"capability_id" bson:"capability_id"`
	Inputs       []Input  `json:"inputs,omitempty" bson:"inputs,omitempty"`
	Outputs      []string `json:"outputs,omitempty" bson:"outputs,omitempty"`
	Notes        string   `json:"notes,omitempty" bson:"notes,omitempty"`
}

// Plan is a concrete, validated, capability-bound realization of one or more
// intents.
type Plan struct {
	PlanID              string         `json:"plan_id" bson:"plan_id"`
	Name                string         `json:"name,omitempty" bson:"name,omitempty"`
	IntentIDs           []string       `json:"intent_ids" bson:"intent_ids"`
	Body                Body           `json:"body" bson:"body"`
	InputSchema         map[string]any `json:"input_schema,omitempty" bson:"input_schema,omitempty"`
	OutputSchema        map[string]any `json:"output_schema,omitempty" bson:"output_schema,omitempty"`
	CapabilitiesRequired []string      `json:"capabilities_required,omitempty" bson:"capabilities_required,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Status              Status         `json:"status" bson:"status"`
	Steps               []Step         `json:"-" bson:"-"` // logical form the body was rendered from
}

// New constructs a Draft plan with a fresh id over the given steps,
// computing CapabilitiesRequired as the sorted set of referenced capability
// ids.
func New(name string, intentIDs []string, steps []Step) Plan {
	return Plan{
		PlanID:               "plan-" + uuid.NewString(),
		Name:                 name,
		IntentIDs:            intentIDs,
		Steps:                steps,
		CapabilitiesRequired: capabilitiesRequired(steps),
		Status:               StatusDraft,
	}
}

func capabilitiesRequired(steps []Step) []string {
	seen := make(map[string]bool, len(steps))
	var out []string
	for _, s := range steps {
		if s.CapabilityID == "" || seen[s.CapabilityID] {
			continue
		}
		seen[s.CapabilityID] = true
		out = append(out, s.CapabilityID)
	}
	sort.Strings(out)
	return out
}

// ValidateStepReferences checks the invariant that every StepOutput binding
// references a previously-declared step. Duplicate output names within a
// step are not checked.
func ValidateStepReferences(steps []Step) error {
	declared := make(map[string]bool, len(steps))
	for _, s := range steps {
		for _, in := range s.Inputs {
			if in.Binding.Kind == BindingStepOutput && !declared[in.Binding.StepID] {
				return &StepReferenceError{StepID: s.ID, ReferencedStepID: in.Binding.StepID}
			}
		}
		declared[s.ID] = true
	}
	return nil
}

// StepReferenceError reports a step referencing an undeclared prior step.
type StepReferenceError struct {
	StepID           string
	ReferencedStepID string
}

func (e *StepReferenceError) Error() string {
	return "plan: step " + e.StepID + " references undeclared step " + e.ReferencedStepID
}
