package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/updater/internal/events"
)

func receive(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()

	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	return events.Event{}
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	_, a := bus.Subscribe()
	_, b := bus.Subscribe()

	bus.Publish(events.Event{Kind: events.StatusChanged, ID: "u1"})

	assert.Equal(t, events.Event{Kind: events.StatusChanged, ID: "u1"}, receive(t, a))
	assert.Equal(t, events.Event{Kind: events.StatusChanged, ID: "u1"}, receive(t, b))
}

func TestPublishDoesNotBlockOrDrop(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	_, ch := bus.Subscribe()

	const n = 5000

	done := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			bus.Publish(events.Event{Kind: events.DownloadProgress, ID: "u1"})
		}
		bus.Publish(events.Event{Kind: events.UpdateRemoved, ID: "last"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	for i := 0; i < n; i++ {
		assert.Equal(t, events.DownloadProgress, receive(t, ch).Kind)
	}
	assert.Equal(t, "last", receive(t, ch).ID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	id, ch := bus.Subscribe()
	bus.Unsubscribe(id)
	bus.Unsubscribe(id)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}

	bus.Publish(events.Event{Kind: events.StatusChanged, ID: "u1"})
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := events.NewBus()
	bus.Close()

	id, ch := bus.Subscribe()
	assert.Empty(t, id)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestKindJSON(t *testing.T) {
	b, err := json.Marshal(events.Event{Kind: events.InstallProgress, ID: "u1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"install-progress","id":"u1"}`, string(b))

	var ev events.Event
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"update-removed","id":"u2"}`), &ev))
	assert.Equal(t, events.UpdateRemoved, ev.Kind)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"nope"}`), &ev))
	assert.Equal(t, "kind(9)", events.Kind(9).String())
}
