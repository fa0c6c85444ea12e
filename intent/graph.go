package intent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goa.design/ccos/causalchain"
)

// EventSink receives every intent status transition for audit purposes.
// A *causalchain.Chain is adapted to it by ChainEventSink below.
type EventSink interface {
	PublishStatusChange(ctx context.Context, intentID string, from, to Status, triggeringActionID string) (string, error)
}

// ChainEventSink adapts a *causalchain.Chain into an EventSink, appending an
// IntentStatusChanged action per transition.
type ChainEventSink struct {
	Chain *causalchain.Chain
}

// PublishStatusChange appends an IntentStatusChanged action and returns its id.
func (s ChainEventSink) PublishStatusChange(ctx context.Context, intentID string, from, to Status, triggeringActionID string) (string, error) {
	a := s.Chain.Append(ctx, causalchain.Action{
		IntentID:       intentID,
		ParentActionID: triggeringActionID,
		ActionType:     causalchain.IntentStatusChanged,
		Metadata: map[string]any{
			"from": string(from),
			"to":   string(to),
		},
	})
	return a.ActionID, nil
}

// Graph owns every Intent and publishes every status change to its event
// sink before returning from Transition.
type Graph struct {
	mu      sync.RWMutex
	intents map[string]Intent
	sink    EventSink
}

// NewGraph constructs an empty Graph publishing transitions to sink. A nil sink
// disables auditing (useful for tests exercising Graph in isolation).
func NewGraph(sink EventSink) *Graph {
	return &Graph{intents: make(map[string]Intent), sink: sink}
}

// Store inserts or replaces an intent record.
func (g *Graph) Store(i Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[i.IntentID] = i
}

// Get returns the intent with the given id.
func (g *Graph) Get(id string) (Intent, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.intents[id]
	return i, ok
}

// Transition moves intentID from its current status to 'to', auditing the
// change via the event sink before the new status is visible to readers.
// Returns an error if the transition is not legal for the intent's current
// status.
func (g *Graph) Transition(ctx context.Context, intentID string, to Status, triggeringActionID string) error {
	g.mu.Lock()
	i, ok := g.intents[intentID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("intent graph: unknown intent %q", intentID)
	}
	from := i.Status
	if !CanTransition(from, to) {
		g.mu.Unlock()
		return fmt.Errorf("intent graph: illegal transition %s->%s for intent %q", from, to, intentID)
	}
	g.mu.Unlock()

	if g.sink != nil {
		if _, err := g.sink.PublishStatusChange(ctx, intentID, from, to, triggeringActionID); err != nil {
			return fmt.Errorf("intent graph: publish status change: %w", err)
		}
	}

	g.mu.Lock()
	i = g.intents[intentID]
	i.Status = to
	i.UpdatedAt = time.Now().UTC()
	g.intents[intentID] = i
	g.mu.Unlock()
	return nil
}
