package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/ccos/causalchain"
)

// startMongo spins up an ephemeral MongoDB container, skipping the test when
// Docker is unavailable (CI hosts without a daemon, sandboxed laptops).
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

func TestInsertAndQueryActionsRoundTrip(t *testing.T) {
	mc := startMongo(t)
	client, err := New(Options{Client: mc, Database: "causalchain_test"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx))

	actions := []causalchain.Action{
		{ActionID: "a1", PlanID: "p1", ActionType: causalchain.PlanStarted},
		{ActionID: "a2", PlanID: "p1", ActionType: causalchain.CapabilityCall, FunctionName: "users.profile.get"},
		{ActionID: "a3", PlanID: "p2", ActionType: causalchain.PlanStarted},
	}
	for _, a := range actions {
		require.NoError(t, client.InsertAction(ctx, a))
	}

	got, err := client.ActionsForPlan(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []string{got[0].ActionID, got[1].ActionID}
	require.ElementsMatch(t, []string{"a1", "a2"}, ids)
}
