package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/ccos/capability"
	"goa.design/ccos/intent"
)

func profileGetManifest() capability.Manifest {
	return capability.Manifest{
		ID:          "users.profile.get",
		Name:        "Get user profile",
		Description: "fetch a user profile by id",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"userId"},
			"properties": map[string]any{
				"userId": map[string]any{"type": "string"},
			},
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"profile": map[string]any{"type": "object"},
			},
		},
	}
}

type scriptedGenerator struct {
	responses []string
	calls     []string
}

func (g *scriptedGenerator) GenerateRawText(_ context.Context, prompt string) (string, error) {
	g.calls = append(g.calls, prompt)
	i := len(g.calls) - 1
	if i >= len(g.responses) {
		return g.responses[len(g.responses)-1], nil
	}
	return g.responses[i], nil
}

func TestSynthesizeAssemblesSingleStepPlan(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`[{"id":"step_0","name":"get profile","capability_id":"users.profile.get","inputs":{"userId":"var::userId"},"outputs":["profile"]}]`,
	}}
	p := New(gen)
	i := intent.New("get the user's profile")

	result, err := p.Synthesize(context.Background(), i, []capability.Manifest{profileGetManifest()})
	require.NoError(t, err)

	assert.Equal(t, "Rtfs20", string(result.Body.Language))
	assert.Contains(t, result.Body.Rtfs, "(call :users.profile.get {:userId userId})")
	assert.Contains(t, result.Body.Rtfs, "(get step_0 :profile)")
	assert.Equal(t, []string{"users.profile.get"}, result.CapabilitiesRequired)
	assert.Contains(t, result.InputSchema, "userId")
	assert.Contains(t, result.OutputSchema, "profile")
	assert.Equal(t, []string{i.IntentID}, result.IntentIDs)
	assert.Len(t, gen.calls, 1)
}

func TestSynthesizeExcludesBuiltinsFromMenu(t *testing.T) {
	gen := &scriptedGenerator{}
	p := New(gen)
	i := intent.New("anything")

	builtin := profileGetManifest()
	builtin.ID = "ccos.network.http-fetch"

	_, err := p.Synthesize(context.Background(), i, []capability.Manifest{builtin})
	assert.Error(t, err, "a menu with only built-ins should be treated as empty")
}

func TestSynthesizeRetriesWithFeedbackOnUnknownCapability(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`[{"id":"step_0","name":"bad","capability_id":"foo.bar","inputs":{},"outputs":[]}]`,
		`[{"id":"step_0","name":"get profile","capability_id":"users.profile.get","inputs":{"userId":"var::userId"},"outputs":["profile"]}]`,
	}}
	p := New(gen)
	i := intent.New("get the user's profile")

	result, err := p.Synthesize(context.Background(), i, []capability.Manifest{profileGetManifest()})
	require.NoError(t, err)
	assert.Contains(t, result.Body.Rtfs, "users.profile.get")
	require.Len(t, gen.calls, 2, "exactly two synthesis attempts")
	assert.Contains(t, gen.calls[1], "Previous attempt failed")
	assert.Contains(t, gen.calls[1], "foo.bar")
}

func TestSynthesizeFailsAfterMaxAttempts(t *testing.T) {
	bad := `[{"id":"step_0","name":"bad","capability_id":"foo.bar","inputs":{},"outputs":[]}]`
	gen := &scriptedGenerator{responses: []string{bad, bad, bad}}
	p := New(gen)
	i := intent.New("get the user's profile")

	_, err := p.Synthesize(context.Background(), i, []capability.Manifest{profileGetManifest()})
	require.Error(t, err)
	assert.Len(t, gen.calls, MaxPlanAttempts)
}

func TestSynthesizeRejectsMissingRequiredInput(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`[{"id":"step_0","name":"get profile","capability_id":"users.profile.get","inputs":{},"outputs":["profile"]}]`,
	}}
	p := New(gen)
	i := intent.New("get the user's profile")

	_, err := p.Synthesize(context.Background(), i, []capability.Manifest{profileGetManifest()})
	assert.Error(t, err)
}

func TestSynthesizeRejectsUndeclaredInput(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`[{"id":"step_0","name":"get profile","capability_id":"users.profile.get","inputs":{"userId":"var::userId","extra":"literal::1"},"outputs":["profile"]}]`,
	}}
	p := New(gen)
	i := intent.New("get the user's profile")

	_, err := p.Synthesize(context.Background(), i, []capability.Manifest{profileGetManifest()})
	assert.Error(t, err)
}

func TestSynthesizeRejectsForwardStepReference(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`[{"id":"step_0","name":"get profile","capability_id":"users.profile.get","inputs":{"userId":"step::step_1::profile"},"outputs":["profile"]}]`,
	}}
	p := New(gen)
	i := intent.New("get the user's profile")

	_, err := p.Synthesize(context.Background(), i, []capability.Manifest{profileGetManifest()})
	assert.Error(t, err)
}

func TestSynthesizeStripsCodeFencedResponse(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"```json\n" + `[{"id":"step_0","name":"get profile","capability_id":"users.profile.get","inputs":{"userId":"var::userId"},"outputs":["profile"]}]` + "\n```",
	}}
	p := New(gen)
	i := intent.New("get the user's profile")

	_, err := p.Synthesize(context.Background(), i, []capability.Manifest{profileGetManifest()})
	require.NoError(t, err)
}
