package resolver

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/ccos/capability"
	"goa.design/ccos/checkpoint"
)

type memManifests struct {
	mu  sync.Mutex
	m   map[string]capability.Manifest
}

func newMemManifests() *memManifests { return &memManifests{m: map[string]capability.Manifest{}} }

func (s *memManifests) Get(id string) (capability.Manifest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.m[id]
	return m, ok
}

func (s *memManifests) Manifests() []capability.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]capability.Manifest, 0, len(s.m))
	for _, m := range s.m {
		out = append(out, m)
	}
	return out
}

func (s *memManifests) Register(_ context.Context, m capability.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[m.ID] = m
	return nil
}

func TestQueueEnqueueDedupsPendingEntries(t *testing.T) {
	q := NewQueue(3)
	assert.True(t, q.Enqueue("travel.flights", nil, nil))
	assert.False(t, q.Enqueue("travel.flights", nil, nil), "a second pending entry for the same id must be rejected")
}

func TestQueueMaxAttemptsMovesToFailedResolutions(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue("travel.flights", nil, nil)
	q.MarkFailed("travel.flights", "boom", 0)
	assert.False(t, q.IsFailed("travel.flights"))
	q.Enqueue("travel.flights", nil, nil)
	q.MarkFailed("travel.flights", "boom again", 0)
	assert.True(t, q.IsFailed("travel.flights"), "exceeding maxAttempts must move the id to failed_resolutions")

	assert.False(t, q.Enqueue("travel.flights", nil, nil), "failed_resolutions ids must not be auto re-enqueued")
	q.ManualRetry("travel.flights")
	assert.True(t, q.Enqueue("travel.flights", nil, nil), "ManualRetry clears the failed set")
}

func TestPartialMatchSharedNamespace(t *testing.T) {
	store := newMemManifests()
	require.NoError(t, store.Register(context.Background(), capability.Manifest{ID: "travel.hotels", Provider: capability.Provider{Kind: capability.ProviderHTTP}}))
	stage := &PartialMatchStage{Manifests: store}

	m, err := stage.Discover(context.Background(), DiscoveryRequest{CapabilityID: "travel.flights"})
	require.NoError(t, err)
	assert.Equal(t, "travel.flights", m.ID)
	assert.Equal(t, "partial_match:travel.hotels", m.Provenance.Source)
}

func TestMCPRegistryStageRanksAndSelectsTopScoringCandidate(t *testing.T) {
	stage := &MCPRegistryStage{Client: mcpClientFunc(func(ctx context.Context, query string) ([]MCPServerCandidate, error) {
		return []MCPServerCandidate{
			{Name: "generic-tools", Description: "a generic custom plugin", Endpoint: "low"},
			{Name: "weather.api", Description: "weather api client service", Endpoint: "high", ToolName: "forecast"},
		}, nil
	})}

	m, err := stage.Discover(context.Background(), DiscoveryRequest{CapabilityID: "weather.forecast"})
	require.NoError(t, err)
	assert.Equal(t, "high", m.Provider.MCP.ServerEndpoint)
}

func TestMCPRegistryStageRejectsBelowThreshold(t *testing.T) {
	stage := &MCPRegistryStage{Client: mcpClientFunc(func(ctx context.Context, query string) ([]MCPServerCandidate, error) {
		return []MCPServerCandidate{{Name: "unrelated", Description: "nothing in common"}}, nil
	})}

	_, err := stage.Discover(context.Background(), DiscoveryRequest{CapabilityID: "weather.forecast"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestResolverProcessQueueRegistersOnFirstMatchingStage(t *testing.T) {
	store := newMemManifests()
	queue := NewQueue(DefaultMaxAttempts)
	queue.Enqueue("weather.forecast", nil, nil)

	mcpStage := &MCPRegistryStage{Client: mcpClientFunc(func(ctx context.Context, query string) ([]MCPServerCandidate, error) {
		return []MCPServerCandidate{{Name: "weather.api", Description: "weather api client service provider", Endpoint: "wx-endpoint", ToolName: "forecast"}}, nil
	})}
	r := New(store, []DiscoveryStage{&ExactMatchStage{Manifests: store}, &PartialMatchStage{Manifests: store}, mcpStage}, WithQueue(queue))

	r.ProcessQueue(context.Background())

	_, ok := store.Get("weather.forecast")
	assert.True(t, ok, "resolver should register the manifest found by the mcp_registry stage")
	assert.Empty(t, queue.Snapshot())
}

func TestResolverMarksPermanentlyFailedForMalformedID(t *testing.T) {
	store := newMemManifests()
	queue := NewQueue(DefaultMaxAttempts)
	queue.Enqueue("nodothere", nil, nil)
	r := New(store, nil, WithQueue(queue))

	r.ProcessQueue(context.Background())

	assert.True(t, queue.IsFailed("nodothere"))
}

type fakeCheckpointLookup struct {
	records []checkpoint.Record
}

func (f fakeCheckpointLookup) WithMissingCapability(_ context.Context, capabilityID string) ([]checkpoint.Record, error) {
	var out []checkpoint.Record
	for _, r := range f.records {
		for _, id := range r.MissingCapabilities {
			if id == capabilityID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func TestResolverTriggersAutoResumeWhenAllMissingRegistered(t *testing.T) {
	store := newMemManifests()
	require.NoError(t, store.Register(context.Background(), capability.Manifest{ID: "travel.hotels"}))
	queue := NewQueue(DefaultMaxAttempts)
	queue.Enqueue("travel.flights", nil, nil)

	checkpoints := fakeCheckpointLookup{records: []checkpoint.Record{
		{CheckpointID: "cp-1", PlanID: "plan-1", IntentID: "intent-1", MissingCapabilities: []string{"travel.flights", "travel.hotels"}},
	}}

	r := New(store, []DiscoveryStage{&PartialMatchStage{Manifests: store}}, WithQueue(queue), WithCheckpoints(checkpoints))
	r.ProcessQueue(context.Background())

	_, ok := store.Get("travel.flights")
	assert.True(t, ok)
}

func TestGenericHTTPManifestInfersEnvVarName(t *testing.T) {
	m := genericHTTPManifest("weather.forecast", "https://api.weather.example/v1")
	assert.Equal(t, "WEATHER_API_KEY", m.Metadata["auth_env_var"])
}

func TestIsFreeTextHeuristics(t *testing.T) {
	assert.True(t, isFreeText("find a weather service"))
	assert.False(t, isFreeText("weather.forecast"))
	assert.False(t, isFreeText("weatherForecast"))
	assert.True(t, isFreeText("weatherforecast"))
}

type mcpClientFunc func(ctx context.Context, query string) ([]MCPServerCandidate, error)

func (f mcpClientFunc) Search(ctx context.Context, query string) ([]MCPServerCandidate, error) {
	return f(ctx, query)
}
