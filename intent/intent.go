// Package intent implements the Intent Graph: durable, user-authored goals
// with a monotone status lifecycle, every transition of which is published
// to the causal chain via an event sink.
package intent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an Intent.
type Status string

const (
	// StatusActive is the initial state of a newly created intent.
	StatusActive Status = "Active"
	// StatusExecuting marks an intent whose plan is currently running.
	StatusExecuting Status = "Executing"
	// StatusCompleted marks an intent whose plan finished successfully.
	StatusCompleted Status = "Completed"
	// StatusFailed marks an intent whose plan execution failed.
	StatusFailed Status = "Failed"
	// StatusArchived marks an intent retired from active consideration.
	StatusArchived Status = "Archived"
)

// validTransitions enumerates the monotone status graph. Active->Executing
// is not the only legal source state for a new plan attempt: an Archived or
// Failed intent may be re-activated by the caller (outside plan execution),
// but within a single plan execution the path is strictly
// Active->Executing->{Completed|Failed}.
var validTransitions = map[Status]map[Status]bool{
	StatusActive:    {StatusExecuting: true, StatusArchived: true},
	StatusExecuting: {StatusCompleted: true, StatusFailed: true},
	StatusCompleted: {StatusArchived: true},
	StatusFailed:    {StatusArchived: true, StatusActive: true},
	StatusArchived:  {StatusActive: true},
}

// Intent is a durable, user-authored goal with constraints/preferences and a
// status lifecycle.
type Intent struct {
	IntentID         string         `json:"intent_id" bson:"intent_id"`
	Name             string         `json:"name,omitempty" bson:"name,omitempty"`
	Goal             string         `json:"goal" bson:"goal"`
	Constraints      map[string]any `json:"constraints,omitempty" bson:"constraints,omitempty"`
	Preferences      map[string]any `json:"preferences,omitempty" bson:"preferences,omitempty"`
	SuccessCriteria  any            `json:"success_criteria,omitempty" bson:"success_criteria,omitempty"`
	Status           Status         `json:"status" bson:"status"`
	CreatedAt        time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" bson:"updated_at"`
}

// New constructs an Intent in StatusActive with a fresh id.
func New(goal string) Intent {
	now := time.Now().UTC()
	return Intent{
		IntentID:  "intent-" + uuid.NewString(),
		Goal:      goal,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
func CanTransition(from, to Status) bool {
	return validTransitions[from][to]
}
