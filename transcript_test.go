package loom_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom"
)

func TestTranscript_SequenceNumbersStartAtOne(t *testing.T) {
	tr := loom.NewTranscript()

	tr.Info("first")
	tr.Info("second")
	tr.Info("third")

	events := tr.Events()
	require.Len(t, events, 3)
	for i, e := range events {
		info, ok := e.(*loom.InfoEvent)
		require.True(t, ok)
		assert.Equal(t, uint64(i+1), info.Sequence)
		assert.NotEmpty(t, info.ID)
		assert.False(t, info.Timestamp.IsZero())
	}
	assert.Equal(t, "first", events[0].(*loom.InfoEvent).Payload)
}

func TestTranscript_EventsReturnsSnapshot(t *testing.T) {
	tr := loom.NewTranscript()
	tr.Info("a")

	snapshot := tr.Events()
	tr.Info("b")

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, tr.Len())
}

func TestTranscript_ConcurrentAppendsAssignUniqueSequences(t *testing.T) {
	tr := loom.NewTranscript()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Info("payload")
		}()
	}
	wg.Wait()

	events := tr.Events()
	require.Len(t, events, 50)
	seen := make(map[uint64]bool)
	for _, e := range events {
		seq := e.(*loom.InfoEvent).Sequence
		assert.False(t, seen[seq], "duplicate sequence %d", seq)
		seen[seq] = true
	}
}

func TestTranscript_SubscribeObservesAppends(t *testing.T) {
	tr := loom.NewTranscript()

	var got []loom.Event
	tr.Subscribe(func(e loom.Event) { got = append(got, e) })

	tr.Info("watched")

	require.Len(t, got, 1)
	assert.Equal(t, "watched", got[0].(*loom.InfoEvent).Payload)
}

func TestTranscript_SubscribeDoesNotReplayPastEvents(t *testing.T) {
	tr := loom.NewTranscript()
	tr.Info("before")

	calls := 0
	tr.Subscribe(func(loom.Event) { calls++ })
	tr.Info("after")

	assert.Equal(t, 1, calls)
}

func TestTranscript_WriteJSONRoundTrips(t *testing.T) {
	tr := loom.NewTranscript()
	tr.Info("hello")
	tr.Append(&loom.StepEvent{
		Name: "inner",
		Events: loom.EventList{
			&loom.InfoEvent{Payload: "nested"},
		},
	})

	var buf bytes.Buffer
	require.NoError(t, tr.WriteJSON(&buf))

	var list loom.EventList
	require.NoError(t, list.UnmarshalJSON(buf.Bytes()))
	require.Len(t, list, 2)
	assert.Equal(t, loom.EventKindInfo, list[0].Kind())

	step, ok := list[1].(*loom.StepEvent)
	require.True(t, ok)
	assert.Equal(t, "inner", step.Name)
	require.Len(t, step.Events, 1)
	assert.Equal(t, "nested", step.Events[0].(*loom.InfoEvent).Payload)
}

func TestTranscript_WriteYAML(t *testing.T) {
	tr := loom.NewTranscript()
	tr.Info("hello yaml")

	var buf bytes.Buffer
	require.NoError(t, tr.WriteYAML(&buf))

	out := buf.String()
	assert.True(t, strings.Contains(out, "event: info"))
	assert.True(t, strings.Contains(out, "hello yaml"))
}
