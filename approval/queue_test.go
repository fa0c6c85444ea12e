package approval

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	root := t.TempDir()
	q, err := New(root)
	require.NoError(t, err)
	return q
}

func testPending(name string) PendingDiscovery {
	return PendingDiscovery{
		Source:     SourceMCPRegistry,
		ServerInfo: ServerInfo{Name: name, Endpoint: "https://example.com/" + name},
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(DefaultTTL),
	}
}

func TestAddAssignsIDAndPersists(t *testing.T) {
	q := newTestQueue(t)
	id, err := q.Add(context.Background(), testPending("weather-mcp"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, q.ListPending(), 1)

	_, err = os.Stat(filepath.Join(q.pendingDir(), "weather-mcp", recordFilename))
	assert.NoError(t, err)
}

func TestAddDedupsAgainstExistingPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id1, err := q.Add(ctx, testPending("weather-mcp"))
	require.NoError(t, err)

	second := testPending("weather-mcp")
	second.ServerInfo.AlternativeEndpoints = []string{"https://mirror.example.com/weather-mcp"}
	id2, err := q.Add(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, q.ListPending(), 1)
	pd := q.ListPending()[0]
	assert.Contains(t, pd.ServerInfo.AlternativeEndpoints, "https://mirror.example.com/weather-mcp")
}

func TestApproveMovesToApprovedAndBumpsVersion(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Add(ctx, testPending("weather-mcp"))
	require.NoError(t, err)

	require.NoError(t, q.Approve(ctx, id, "looks safe"))
	assert.Empty(t, q.ListPending())
	require.Len(t, q.ListApproved(), 1)
	assert.Equal(t, uint32(1), q.ListApproved()[0].Version)

	_, err = os.Stat(filepath.Join(q.approvedDir(), "weather-mcp", recordFilename))
	assert.NoError(t, err)
}

func TestResubmissionOfApprovedServerDemotesToPendingAndReapprovalBumpsVersion(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Add(ctx, testPending("weather-mcp"))
	require.NoError(t, err)
	require.NoError(t, q.Approve(ctx, id, "first approval"))
	require.NoError(t, q.RecordCallResult(ctx, id, true))

	reDiscovered := testPending("weather-mcp")
	newID, err := q.Add(ctx, reDiscovered)
	require.NoError(t, err)
	assert.Equal(t, id, newID, "resubmission must reuse the original id")
	assert.Len(t, q.ListPending(), 1)
	assert.Empty(t, q.ListApproved())

	require.NoError(t, q.Approve(ctx, id, "second approval"))
	approved := q.ListApproved()[0]
	assert.Equal(t, uint32(2), approved.Version)
	assert.Equal(t, 1, approved.TotalCalls, "usage stats carry forward across re-approval")
}

func TestRejectRemovesPendingFiles(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Add(ctx, testPending("sketchy-mcp"))
	require.NoError(t, err)

	require.NoError(t, q.Reject(ctx, id, "untrusted source"))
	assert.Empty(t, q.ListPending())
	require.Len(t, q.ListRejected(), 1)
	assert.Equal(t, "untrusted source", q.ListRejected()[0].Reason)

	_, err = os.Stat(filepath.Join(q.pendingDir(), "sketchy-mcp"))
	assert.True(t, os.IsNotExist(err))
}

func TestRetryServerMovesRejectedBackToPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Add(ctx, testPending("sketchy-mcp"))
	require.NoError(t, err)
	require.NoError(t, q.Reject(ctx, id, "needs review"))

	retryID, err := q.RetryServer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, retryID)
	assert.Len(t, q.ListPending(), 1)
	assert.Empty(t, q.ListRejected())
}

func TestCheckTimeoutsMovesExpiredPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	pd := testPending("stale-mcp")
	pd.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	_, err := q.Add(ctx, pd)
	require.NoError(t, err)

	moved, err := q.CheckTimeouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Empty(t, q.ListPending())
	assert.Len(t, q.ListTimeouts(), 1)
}

func TestCheckAutoDismissOnConsecutiveFailures(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Add(ctx, testPending("flaky-mcp"))
	require.NoError(t, err)
	require.NoError(t, q.Approve(ctx, id, "ok"))

	for i := 0; i < 6; i++ {
		require.NoError(t, q.RecordCallResult(ctx, id, false))
	}

	assert.Empty(t, q.ListApproved(), "should be auto-dismissed after 6 consecutive failures")
	require.Len(t, q.ListRejected(), 1)
	assert.Contains(t, q.ListRejected()[0].Reason, "auto-dismissed")
}

func TestCheckAutoDismissOnHighErrorRateOverManyCalls(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	id, err := q.Add(ctx, testPending("flaky-mcp"))
	require.NoError(t, err)
	require.NoError(t, q.Approve(ctx, id, "ok"))

	for i := 0; i < 105; i++ {
		// Fail two calls out of every three, never four failures in a row,
		// so this exercises the error-rate branch rather than the
		// consecutive-failures branch of the auto-dismiss rule.
		success := i%3 == 2
		require.NoError(t, q.RecordCallResult(ctx, id, success))
		if len(q.ListApproved()) == 0 {
			break
		}
	}

	assert.Empty(t, q.ListApproved())
	require.Len(t, q.ListRejected(), 1)
}

func TestCheckApprovalConflictDetectsExistingServer(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	_, err := q.Add(ctx, testPending("weather-mcp"))
	require.NoError(t, err)

	_, found := q.CheckApprovalConflict(ServerInfo{Name: "weather-mcp"})
	assert.True(t, found)

	_, found = q.CheckApprovalConflict(ServerInfo{Name: "unrelated-mcp"})
	assert.False(t, found)
}

func TestInferAuthEnvVarPatterns(t *testing.T) {
	assert.Equal(t, "WEATHER_API_KEY", InferAuthEnvVar("web/public/weather"))
	assert.Equal(t, "STRIPE_MCP_TOKEN", InferAuthEnvVar("stripe/stripe-mcp"))
	assert.Equal(t, "PETSTORE_API_KEY", InferAuthEnvVar("apis.guru/petstore"))
	assert.Equal(t, "", InferAuthEnvVar("not-a-known-pattern"))
}

func TestSanitizeNameReplacesDisallowedCharacters(t *testing.T) {
	assert.Equal(t, "web_public_weather", sanitizeName("web/public/weather"))
	assert.Equal(t, "server", sanitizeName("///"))
}
