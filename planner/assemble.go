package planner

import (
	"sort"
	"strconv"

	"goa.design/ccos/plan"
	"goa.design/ccos/rtfs"
)

// assemble renders the validated step list into a Plan: a nested
// (do (let [step_0 (call :cap {...}) ...] {...outputs...})) body, plus the
// derived input_schema, output_schema and capabilities_required.
func assemble(name string, intentIDs []string, steps []plan.Step) plan.Plan {
	p := plan.New(name, intentIDs, steps)

	bindings := make([]rtfs.Binding, 0, len(steps))
	outputEntries := make([]rtfs.MapEntry, 0)
	variables := map[string]bool{}

	for _, s := range steps {
		argEntries := make([]rtfs.MapEntry, 0, len(s.Inputs))
		for _, in := range s.Inputs {
			argEntries = append(argEntries, rtfs.MapEntry{Key: in.Name, Value: renderBinding(in.Binding, variables)})
		}
		sort.Slice(argEntries, func(i, j int) bool { return argEntries[i].Key < argEntries[j].Key })
		call := rtfs.Call(s.CapabilityID, rtfs.Map(argEntries))
		bindings = append(bindings, rtfs.Binding{Name: s.ID, Expr: call})

		for _, out := range s.Outputs {
			outputEntries = append(outputEntries, rtfs.MapEntry{
				Key:   out,
				Value: rtfs.Get(rtfs.Symbol(s.ID), out),
			})
		}
	}
	sort.Slice(outputEntries, func(i, j int) bool { return outputEntries[i].Key < outputEntries[j].Key })

	body := rtfs.Do(rtfs.Let(bindings, rtfs.Map(outputEntries)))
	p.Body = plan.Body{Language: plan.Rtfs20, Rtfs: body}

	p.InputSchema = map[string]any{}
	for v := range variables {
		p.InputSchema[v] = "any"
	}
	p.OutputSchema = map[string]any{}
	for _, e := range outputEntries {
		p.OutputSchema[e.Key] = "any"
	}
	return p
}

// renderBinding renders one step input's binding as an Rtfs20 expression,
// recording variable names it references along the way so the caller can
// build input_schema.
func renderBinding(b plan.Binding, variables map[string]bool) string {
	switch b.Kind {
	case plan.BindingVariable:
		variables[b.Variable] = true
		return rtfs.Symbol(b.Variable)
	case plan.BindingStepOutput:
		return rtfs.Get(rtfs.Symbol(b.StepID), b.Output)
	case plan.BindingLiteral:
		return literalExpr(b.Literal)
	default:
		return rtfs.String(b.Literal)
	}
}

// literalExpr renders a literal binding's value bare if it parses as a
// number, else as a quoted Rtfs20 string.
func literalExpr(v string) string {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return v
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	return rtfs.String(v)
}
