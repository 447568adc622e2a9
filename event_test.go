package loom_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom"
	"github.com/loomkit/loom/patch"
)

func TestUnmarshalEvent_ToolEventWithErrorAndNestedStore(t *testing.T) {
	original := &loom.ToolEvent{
		CallID:    "call_1",
		Name:      "bash",
		Arguments: map[string]any{"cmd": "ls"},
		Error:     loom.NewToolError(loom.ToolErrorTimeout, "exceeded 30s"),
		Duration:  2 * time.Second,
		Events: loom.EventList{
			&loom.StoreEvent{
				Ops:  []patch.Op{{Type: patch.OpAdd, Path: "/cwd", Value: "/tmp"}},
				Diff: "--- before\n+++ after\n",
			},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := loom.UnmarshalEvent(data)
	require.NoError(t, err)

	tool, ok := decoded.(*loom.ToolEvent)
	require.True(t, ok)
	assert.Equal(t, "bash", tool.Name)
	assert.Equal(t, "call_1", tool.CallID)
	require.NotNil(t, tool.Error)
	assert.Equal(t, loom.ToolErrorTimeout, tool.Error.Kind)

	require.Len(t, tool.Events, 1)
	store, ok := tool.Events[0].(*loom.StoreEvent)
	require.True(t, ok)
	require.Len(t, store.Ops, 1)
	assert.Equal(t, patch.OpAdd, store.Ops[0].Type)
	assert.Equal(t, "/cwd", store.Ops[0].Path)
}

func TestUnmarshalEvent_RejectsUnknownKind(t *testing.T) {
	_, err := loom.UnmarshalEvent([]byte(`{"event": "mystery"}`))
	assert.Error(t, err)
}

func TestEvent_KindTags(t *testing.T) {
	tests := []struct {
		event    loom.Event
		expected loom.EventKind
	}{
		{&loom.ModelEvent{}, loom.EventKindModel},
		{&loom.ToolEvent{}, loom.EventKindTool},
		{&loom.StoreEvent{}, loom.EventKindStore},
		{&loom.StepEvent{}, loom.EventKindStep},
		{&loom.SubtaskEvent{}, loom.EventKindSubtask},
		{&loom.InfoEvent{}, loom.EventKindInfo},
		{&loom.LoggerEvent{}, loom.EventKindLogger},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, tc.event.Kind())
	}
}
