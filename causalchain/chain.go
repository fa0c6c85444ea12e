package causalchain

import (
	"context"
	"regexp"
	"sync"
	"time"

	"goa.design/ccos/telemetry"
)

// Sink optionally persists appended actions to a durable backend (e.g. the
// Mongo-backed store in causalchain/mongostore). The chain itself always
// keeps a full in-memory copy for snapshot-consistent reads; a Sink is an
// additional, best-effort durability layer.
type Sink interface {
	Append(ctx context.Context, action Action) error
}

// Chain is the append-only, process-wide causal chain. All mutating
// operations are serialized through a single mutex, matching the "single
// serialization point for audit writes" requirement in the concurrency
// model; reads take a read lock and return a defensive copy so callers never
// observe a torn slice.
type Chain struct {
	mu      sync.RWMutex
	actions []Action
	sink    Sink
	logger  telemetry.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithSink attaches a durability sink invoked after each in-memory append.
func WithSink(sink Sink) Option {
	return func(c *Chain) { c.sink = sink }
}

// WithLogger attaches a logger used to report sink failures.
func WithLogger(logger telemetry.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// New constructs an empty Chain.
func New(opts ...Option) *Chain {
	c := &Chain{logger: telemetry.NewNoopLogger()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Append records a new action, assigning ActionID/Timestamp if unset, and
// returns the recorded action (with a redacted Arguments map so secrets
// never persist in the chain or reach a sink).
func (c *Chain) Append(ctx context.Context, a Action) Action {
	if a.ActionID == "" {
		a.ActionID = NewActionID()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	a.Arguments = RedactArguments(a.Arguments)

	c.mu.Lock()
	c.actions = append(c.actions, a)
	c.mu.Unlock()

	if c.sink != nil {
		if err := c.sink.Append(ctx, a); err != nil {
			c.logger.Warn(ctx, "causal chain sink append failed", "action_id", a.ActionID, "error", err.Error())
		}
	}
	return a
}

// Actions returns a snapshot-consistent copy of every recorded action in
// append order.
func (c *Chain) Actions() []Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// ForPlan returns every action with the given PlanID, in append order.
func (c *Chain) ForPlan(planID string) []Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Action
	for _, a := range c.actions {
		if a.PlanID == planID {
			out = append(out, a)
		}
	}
	return out
}

// Children returns every action whose ParentActionID equals parentID, in
// append order, letting consumers reconstruct a per-plan action tree.
func (c *Chain) Children(parentID string) []Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Action
	for _, a := range c.actions {
		if a.ParentActionID == parentID {
			out = append(out, a)
		}
	}
	return out
}

var secretParamRE = regexp.MustCompile(`(?i)\b(appid|api[_-]?key|token|secret|password)=([^&\s"']+)`)

// RedactArguments returns a deep copy of args with any string value that
// looks like it carries a secret (via query-parameter redaction) scrubbed,
// recursing into nested maps and slices. It specifically guards the "appid"
// query parameter called out by the HTTP-fetch secrets-redaction scenario,
// plus common auth parameter names.
func RedactArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return RedactString(val)
	case map[string]any:
		return RedactArguments(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = redactValue(e)
		}
		return out
	default:
		return v
	}
}

// RedactString scrubs secret-bearing query parameters from a single string
// (typically a URL), replacing the value with "***REDACTED***" while
// preserving the parameter name, so audit/log output never contains the
// plaintext secret.
func RedactString(s string) string {
	return secretParamRE.ReplaceAllString(s, "$1=***REDACTED***")
}
