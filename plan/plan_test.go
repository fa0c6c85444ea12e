package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewComputesSortedCapabilitySet(t *testing.T) {
	p := New("p", []string{"intent-1"}, []Step{
		{ID: "s0", CapabilityID: "travel.hotels.search"},
		{ID: "s1", CapabilityID: "travel.flights.search"},
		{ID: "s2", CapabilityID: "travel.hotels.search"},
	})
	assert.Equal(t, []string{"travel.flights.search", "travel.hotels.search"}, p.CapabilitiesRequired)
	assert.Equal(t, StatusDraft, p.Status)
	assert.NotEmpty(t, p.PlanID)
}

func TestValidateStepReferencesAcceptsBackwardReference(t *testing.T) {
	steps := []Step{
		{ID: "s0", CapabilityID: "users.profile.get"},
		{ID: "s1", CapabilityID: "mail.send", Inputs: []Input{
			{Name: "to", Binding: Binding{Kind: BindingStepOutput, StepID: "s0", Output: "email"}},
		}},
	}
	require.NoError(t, ValidateStepReferences(steps))
}

func TestValidateStepReferencesRejectsForwardReference(t *testing.T) {
	steps := []Step{
		{ID: "s0", CapabilityID: "mail.send", Inputs: []Input{
			{Name: "to", Binding: Binding{Kind: BindingStepOutput, StepID: "s1", Output: "email"}},
		}},
		{ID: "s1", CapabilityID: "users.profile.get"},
	}
	err := ValidateStepReferences(steps)
	require.Error(t, err)
	var refErr *StepReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "s0", refErr.StepID)
	assert.Equal(t, "s1", refErr.ReferencedStepID)
}

func TestValidateStepReferencesRejectsSelfReference(t *testing.T) {
	steps := []Step{
		{ID: "s0", CapabilityID: "loop.step", Inputs: []Input{
			{Name: "x", Binding: Binding{Kind: BindingStepOutput, StepID: "s0", Output: "y"}},
		}},
	}
	assert.Error(t, ValidateStepReferences(steps))
}
