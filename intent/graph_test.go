package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/ccos/causalchain"
)

func TestTransitionAuditsBeforeVisible(t *testing.T) {
	chain := causalchain.New()
	g := NewGraph(ChainEventSink{Chain: chain})
	i := New("do the thing")
	g.Store(i)

	require.NoError(t, g.Transition(context.Background(), i.IntentID, StatusExecuting, "plan-started-1"))

	stored, ok := g.Get(i.IntentID)
	require.True(t, ok)
	require.Equal(t, StatusExecuting, stored.Status)

	actions := chain.Actions()
	require.Len(t, actions, 1)
	require.Equal(t, causalchain.IntentStatusChanged, actions[0].ActionType)
	require.Equal(t, "plan-started-1", actions[0].ParentActionID)
	require.Equal(t, "Active", actions[0].Metadata["from"])
	require.Equal(t, "Executing", actions[0].Metadata["to"])
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	g := NewGraph(nil)
	i := New("goal")
	g.Store(i)
	err := g.Transition(context.Background(), i.IntentID, StatusCompleted, "")
	require.Error(t, err)
}

func TestTransitionUnknownIntent(t *testing.T) {
	g := NewGraph(nil)
	err := g.Transition(context.Background(), "missing", StatusExecuting, "")
	require.Error(t, err)
}
