package mongostore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/ccos/checkpoint"
)

type fakeClient struct {
	records map[string]checkpoint.Record
}

func newFakeClient() *fakeClient {
	return &fakeClient{records: map[string]checkpoint.Record{}}
}

func (f *fakeClient) Upsert(_ context.Context, rec checkpoint.Record) error {
	f.records[rec.CheckpointID] = rec
	return nil
}

func (f *fakeClient) FindByID(_ context.Context, checkpointID string) (checkpoint.Record, bool, error) {
	rec, ok := f.records[checkpointID]
	return rec, ok, nil
}

func (f *fakeClient) FindLatestByPlanIntent(_ context.Context, planID, intentID string) (checkpoint.Record, bool, error) {
	var latest checkpoint.Record
	var found bool
	for _, rec := range f.records {
		if rec.PlanID != planID || rec.IntentID != intentID {
			continue
		}
		if !found || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
			found = true
		}
	}
	return latest, found, nil
}

func (f *fakeClient) FindByMissingCapability(_ context.Context, capabilityID string) ([]checkpoint.Record, error) {
	var out []checkpoint.Record
	for _, rec := range f.records {
		for _, id := range rec.MissingCapabilities {
			if id == capabilityID {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(Options{})
	require.EqualError(t, err, "client is required")
}

func TestStoreImplementsCheckpointStore(t *testing.T) {
	fake := newFakeClient()
	store, err := NewStore(Options{Client: fake})
	require.NoError(t, err)

	rec := checkpoint.Record{
		CheckpointID:        checkpoint.ComputeID("ctx"),
		PlanID:              "plan-1",
		IntentID:            "intent-1",
		SerializedContext:   "ctx",
		MissingCapabilities: []string{"github.list_issues"},
	}
	require.NoError(t, store.Save(context.Background(), rec))

	got, ok, err := store.Load(context.Background(), rec.CheckpointID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "plan-1", got.PlanID)

	got, ok, err = store.ByPlanIntent(context.Background(), "plan-1", "intent-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.CheckpointID, got.CheckpointID)

	blocked, err := store.WithMissingCapability(context.Background(), "github.list_issues")
	require.NoError(t, err)
	require.Len(t, blocked, 1)
}
