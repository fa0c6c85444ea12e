package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/ccos/checkpoint"
)

func startMongo(t *testing.T) *mongodriver.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()
	ctr, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Skipf("docker not available, skipping MongoDB test: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func TestCheckpointUpsertAndLookupRoundTrip(t *testing.T) {
	mc := startMongo(t)
	client, err := New(Options{Client: mc, Database: "checkpoint_test"})
	require.NoError(t, err)

	ctx := context.Background()
	rec := checkpoint.Record{
		CheckpointID:        checkpoint.ComputeID("serialized-ctx"),
		PlanID:              "plan-1",
		IntentID:            "intent-1",
		SerializedContext:   "serialized-ctx",
		MissingCapabilities: []string{"github.list_issues"},
	}
	require.NoError(t, client.Upsert(ctx, rec))
	// Upsert is idempotent on checkpoint id.
	require.NoError(t, client.Upsert(ctx, rec))

	got, ok, err := client.FindByID(ctx, rec.CheckpointID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "plan-1", got.PlanID)

	got, ok, err = client.FindLatestByPlanIntent(ctx, "plan-1", "intent-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.CheckpointID, got.CheckpointID)

	blocked, err := client.FindByMissingCapability(ctx, "github.list_issues")
	require.NoError(t, err)
	require.Len(t, blocked, 1)

	_, ok, err = client.FindByID(ctx, "cp-nonexistent")
	require.NoError(t, err)
	require.False(t, ok)
}
