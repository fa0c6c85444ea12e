// Package marketplace implements the Capability Marketplace: the sole
// registry of typed capabilities, the dispatcher to provider executors, and
// the enforcement point for isolation policy, schema validation, and
// resource constraints.
package marketplace

import (
	"context"

	"goa.design/ccos/capability"
)

// Value is the dynamically-typed value CCOS capabilities exchange. It
// mirrors the plan-language's runtime value representation: the evaluator
// external collaborator is expected to produce/consume the same shapes
// (nil, bool, float64, string, []Value, map[string]Value).
type Value = any

// Executor dispatches a capability invocation to one provider kind.
type Executor interface {
	Execute(ctx context.Context, manifest capability.Manifest, input Value) (Value, error)
}

// LocalHandler is the function signature registered for Provider.Local.
type LocalHandler func(ctx context.Context, input Value) (Value, error)
