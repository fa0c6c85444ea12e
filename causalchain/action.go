// Package causalchain implements the append-only action log that records
// every observable CCOS event: capability registration/removal/update,
// capability invocation, intent status changes, plan lifecycle transitions,
// step-profile derivation, and checkpoint/resume. It is the single source of
// audit truth every other component writes to.
package causalchain

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the kinds of action recorded in the chain.
type Type string

const (
	// PlanStarted marks the beginning of a plan execution.
	PlanStarted Type = "PlanStarted"
	// PlanCompleted marks successful completion of a plan execution.
	PlanCompleted Type = "PlanCompleted"
	// PlanAborted marks a plan execution that failed.
	PlanAborted Type = "PlanAborted"
	// PlanPaused marks a plan execution suspended at a checkpoint.
	PlanPaused Type = "PlanPaused"
	// PlanResumed marks a plan execution resumed from a checkpoint.
	PlanResumed Type = "PlanResumed"
	// StepProfileDerived marks the derivation of a per-step MicroVM profile.
	StepProfileDerived Type = "StepProfileDerived"
	// CapabilityCall marks an invocation of a capability.
	CapabilityCall Type = "CapabilityCall"
	// CapabilityRegistered marks the registration of a new capability manifest.
	CapabilityRegistered Type = "CapabilityRegistered"
	// CapabilityRemoved marks the removal of a capability manifest.
	CapabilityRemoved Type = "CapabilityRemoved"
	// CapabilityUpdated marks an update to an existing capability manifest.
	CapabilityUpdated Type = "CapabilityUpdated"
	// CapabilityDiscoveryCompleted marks the end of a discovery pipeline run
	// for a missing capability, successful or not.
	CapabilityDiscoveryCompleted Type = "CapabilityDiscoveryCompleted"
	// CheckpointReadyForResume marks a checkpoint whose missing capabilities
	// are now all registered, making it eligible for the Orchestrator to
	// resume.
	CheckpointReadyForResume Type = "CheckpointReadyForResume"
	// IntentStatusChanged marks a transition in an intent's lifecycle status.
	IntentStatusChanged Type = "IntentStatusChanged"
)

// Action is one immutable entry in the causal chain.
type Action struct {
	ActionID       string         `json:"action_id" bson:"action_id"`
	IntentID       string         `json:"intent_id,omitempty" bson:"intent_id,omitempty"`
	PlanID         string         `json:"plan_id,omitempty" bson:"plan_id,omitempty"`
	ParentActionID string         `json:"parent_action_id,omitempty" bson:"parent_action_id,omitempty"`
	ActionType     Type           `json:"action_type" bson:"action_type"`
	FunctionName   string         `json:"function_name,omitempty" bson:"function_name,omitempty"`
	Arguments      map[string]any `json:"arguments,omitempty" bson:"arguments,omitempty"`
	Result         any            `json:"result,omitempty" bson:"result,omitempty"`
	Cost           float64        `json:"cost,omitempty" bson:"cost,omitempty"`
	DurationMS     int64          `json:"duration_ms,omitempty" bson:"duration_ms,omitempty"`
	Timestamp      time.Time      `json:"timestamp" bson:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// NewActionID returns a fresh, globally unique action identifier.
func NewActionID() string {
	return "action-" + uuid.NewString()
}
