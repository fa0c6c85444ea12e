// Package checkpoint implements the Checkpoint Archive: serialized evaluator
// contexts keyed by the content hash of their serialized form, used by the
// Orchestrator to pause and resume plan execution.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is a serialized evaluator context plus the metadata needed to
// validate and resume it.
type Record struct {
	CheckpointID         string            `json:"checkpoint_id" bson:"checkpoint_id"`
	PlanID               string            `json:"plan_id" bson:"plan_id"`
	IntentID             string            `json:"intent_id" bson:"intent_id"`
	SerializedContext    string            `json:"serialized_context" bson:"serialized_context"`
	MissingCapabilities  []string          `json:"missing_capabilities,omitempty" bson:"missing_capabilities,omitempty"`
	CreatedAt            time.Time         `json:"created_at" bson:"created_at"`
	Metadata             map[string]any    `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// ComputeID derives the deterministic checkpoint id "cp-" + sha256(serialized)
// from a serialized evaluator context. It is a pure function: the same
// serialized string always yields the same id, independent of any other
// field of Record.
func ComputeID(serializedContext string) string {
	sum := sha256.Sum256([]byte(serializedContext))
	return "cp-" + hex.EncodeToString(sum[:])
}

// MissingSet returns the record's missing capabilities as a set for
// membership tests.
func (r Record) MissingSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.MissingCapabilities))
	for _, id := range r.MissingCapabilities {
		set[id] = struct{}{}
	}
	return set
}
