package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"goa.design/ccos/ccoserr"
	"goa.design/ccos/plan"
)

// proposedStep is the wire shape the LLM is prompted to emit: a JSON array
// element of {id, name, capability_id, inputs: {name: binding}, outputs,
// notes?}.
type proposedStep struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	CapabilityID string            `json:"capability_id"`
	Inputs       map[string]string `json:"inputs"`
	Outputs      []string          `json:"outputs"`
	Notes        string            `json:"notes,omitempty"`
}

// parseProposal strictly decodes the LLM's JSON array response. It does not
// validate bindings or capability ids; that is validateProposal's job.
func parseProposal(raw string) ([]proposedStep, error) {
	raw = strings.TrimSpace(stripCodeFence(raw))
	var steps []proposedStep
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, ccoserr.TypeErrorf("planner.parse_proposal", "JSON array of steps", err.Error())
	}
	if len(steps) == 0 {
		return nil, ccoserr.InvalidArgument("planner: proposal contained no steps")
	}
	return steps, nil
}

// stripCodeFence removes a surrounding ```json ... ``` or ``` ... ``` fence,
// which LLMs commonly wrap JSON responses in despite being asked not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return s
}

// These are the only legal binding prefixes a step input may use; anything
// else is rejected before a plan.Step is constructed.
const (
	prefixVar     = "var::"
	prefixLiteral = "literal::"
	prefixStep    = "step::"
)

// parseBinding parses a raw "var::name" | "literal::value" |
// "step::<step_id>::<output>" string into a plan.Binding, rejecting any
// other shape.
func parseBinding(raw string) (plan.Binding, error) {
	switch {
	case strings.HasPrefix(raw, prefixVar):
		name := strings.TrimPrefix(raw, prefixVar)
		if name == "" {
			return plan.Binding{}, ccoserr.InvalidArgumentf("planner: empty var:: binding name")
		}
		return plan.Binding{Kind: plan.BindingVariable, Variable: name}, nil
	case strings.HasPrefix(raw, prefixLiteral):
		return plan.Binding{Kind: plan.BindingLiteral, Literal: strings.TrimPrefix(raw, prefixLiteral)}, nil
	case strings.HasPrefix(raw, prefixStep):
		rest := strings.TrimPrefix(raw, prefixStep)
		parts := strings.SplitN(rest, "::", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return plan.Binding{}, ccoserr.InvalidArgumentf("planner: malformed step:: binding %q, want step::<step_id>::<output>", raw)
		}
		return plan.Binding{Kind: plan.BindingStepOutput, StepID: parts[0], Output: parts[1]}, nil
	default:
		return plan.Binding{}, ccoserr.InvalidArgumentf("planner: binding %q has no recognized prefix (var::, literal::, step::)", raw)
	}
}

// validationError reports why a proposal was rejected, in a form suitable
// for feeding back to the LLM as structured retry feedback.
type validationError struct {
	reasons []string
}

func (e *validationError) Error() string {
	return "planner: invalid plan proposal: " + strings.Join(e.reasons, "; ")
}

// Feedback renders the accumulated reasons as the "Previous attempt failed"
// retry prompt section.
func (e *validationError) Feedback() string {
	var b strings.Builder
	b.WriteString("Previous attempt failed for the following reasons. Ensure each step addresses them:\n")
	for _, r := range e.reasons {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	return b.String()
}

// validateProposal checks every rule from the planner dialogue's step 3:
// every capability_id must be in the offered menu, every required input
// must be supplied and no undeclared input may be, and every step:: binding
// must reference a prior step in the array. It returns the parsed
// plan.Step list alongside a *validationError aggregating every violation
// found (nil if the proposal is valid).
func validateProposal(steps []proposedStep, menu []CatalogEntry) ([]plan.Step, error) {
	byID := make(map[string]CatalogEntry, len(menu))
	for _, e := range menu {
		byID[e.ID] = e
	}

	var reasons []string
	declaredSteps := map[string]bool{}
	out := make([]plan.Step, 0, len(steps))

	for i, s := range steps {
		entry, onMenu := byID[s.CapabilityID]
		if !onMenu {
			reasons = append(reasons, fmt.Sprintf("step %q: capability_id %q is not in the offered menu", s.ID, s.CapabilityID))
		}

		declared := entry.declaredInputs()
		supplied := map[string]bool{}
		var inputs []plan.Input
		for name, rawBinding := range s.Inputs {
			supplied[name] = true
			if onMenu && !declared[name] {
				reasons = append(reasons, fmt.Sprintf("step %q: input %q is not declared by capability %q", s.ID, name, s.CapabilityID))
				continue
			}
			binding, err := parseBinding(rawBinding)
			if err != nil {
				reasons = append(reasons, err.Error())
				continue
			}
			if binding.Kind == plan.BindingStepOutput && !declaredSteps[binding.StepID] {
				reasons = append(reasons, fmt.Sprintf("step %q: step:: reference %q does not point to a prior step", s.ID, rawBinding))
				continue
			}
			inputs = append(inputs, plan.Input{Name: name, Binding: binding})
		}
		if onMenu {
			for _, req := range entry.RequiredInputs {
				if !supplied[req] {
					reasons = append(reasons, fmt.Sprintf("step %q: required input %q for capability %q was not supplied", s.ID, req, s.CapabilityID))
				}
			}
		}

		declaredSteps[s.ID] = true
		out = append(out, plan.Step{
			ID:           s.ID,
			Name:         s.Name,
			CapabilityID: s.CapabilityID,
			Inputs:       inputs,
			Outputs:      s.Outputs,
			Notes:        s.Notes,
		})
		_ = i
	}

	if len(reasons) > 0 {
		return nil, &validationError{reasons: reasons}
	}
	return out, nil
}
