package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeIDIsPureFunction(t *testing.T) {
	id1 := ComputeID("serialized-state-1")
	id2 := ComputeID("serialized-state-1")
	id3 := ComputeID("serialized-state-2")
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
	require.Regexp(t, `^cp-[0-9a-f]{64}$`, id1)
}

func TestArchiveStoreAndLoad(t *testing.T) {
	a := NewArchive(NewMemoryStore())
	id, err := a.Store(context.Background(), "plan-1", "intent-1", "ctx-blob", []string{"ns.cap"}, nil)
	require.NoError(t, err)
	require.Equal(t, ComputeID("ctx-blob"), id)

	rec, err := a.Load(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "plan-1", rec.PlanID)
	require.Equal(t, []string{"ns.cap"}, rec.MissingCapabilities)
}

func TestValidateResumeDetectsMismatch(t *testing.T) {
	a := NewArchive(NewMemoryStore())
	_, err := a.Store(context.Background(), "plan-1", "intent-1", "ctx-blob", nil, nil)
	require.NoError(t, err)

	_, err = a.ValidateResume(context.Background(), "plan-1", "intent-1", "ctx-blob")
	require.NoError(t, err)

	_, err = a.ValidateResume(context.Background(), "plan-1", "intent-1", "different-blob")
	require.Error(t, err)
}

func TestWithMissingCapabilityFindsBlockedCheckpoints(t *testing.T) {
	a := NewArchive(NewMemoryStore())
	_, err := a.Store(context.Background(), "plan-1", "intent-1", "ctx-a", []string{"github.list_issues"}, nil)
	require.NoError(t, err)
	_, err = a.Store(context.Background(), "plan-2", "intent-2", "ctx-b", []string{"other.cap"}, nil)
	require.NoError(t, err)

	recs, err := a.WithMissingCapability(context.Background(), "github.list_issues")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "plan-1", recs[0].PlanID)
}
