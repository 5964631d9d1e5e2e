package edgefabric

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/events"
)

func statusPayload(t *testing.T, state, reason string) []byte {
	t.Helper()
	b, err := json.Marshal(StatusPayload{State: state, Timestamp: 1, Reason: reason})
	require.NoError(t, err)
	return b
}

func TestPresenceTracker_FirstOnlineStatusEmitsRouterConnected(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	tracker := newPresenceTracker(bus, zap.NewNop())

	tracker.handleStatus("r1", statusPayload(t, "online", ""))

	all := bus.GetAllEvents()
	require.Len(t, all, 1)
	assert.Equal(t, events.EventTypeRouterConnected, all[0].GetType())

	presence := tracker.Get("r1")
	require.NotNil(t, presence)
	assert.True(t, presence.Online)
}

func TestPresenceTracker_OfflineToOnlineTransitionEmitsEvent(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	tracker := newPresenceTracker(bus, zap.NewNop())

	tracker.handleStatus("r1", statusPayload(t, "offline", "lwt"))
	bus.Clear()

	tracker.handleStatus("r1", statusPayload(t, "online", ""))

	all := bus.GetAllEvents()
	require.Len(t, all, 1)
	assert.Equal(t, events.EventTypeRouterConnected, all[0].GetType())
}

func TestPresenceTracker_RepeatedOnlineStatusDoesNotReemit(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	tracker := newPresenceTracker(bus, zap.NewNop())

	tracker.handleStatus("r1", statusPayload(t, "online", ""))
	tracker.handleStatus("r1", statusPayload(t, "online", ""))

	assert.Len(t, bus.GetAllEvents(), 1)
}

func TestPresenceTracker_OnlineToOfflineEmitsDisconnected(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	tracker := newPresenceTracker(bus, zap.NewNop())

	tracker.handleStatus("r1", statusPayload(t, "online", ""))
	bus.Clear()

	tracker.handleStatus("r1", statusPayload(t, "offline", "ungraceful disconnect"))

	all := bus.GetAllEvents()
	require.Len(t, all, 1)
	assert.Equal(t, events.EventTypeRouterDisconnected, all[0].GetType())

	presence := tracker.Get("r1")
	require.NotNil(t, presence)
	assert.False(t, presence.Online)
}

func TestPresenceTracker_MalformedPayloadIsIgnored(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	tracker := newPresenceTracker(bus, zap.NewNop())

	tracker.handleStatus("r1", []byte("not json"))

	assert.Empty(t, bus.GetAllEvents())
	assert.Nil(t, tracker.Get("r1"))
}

func TestPresenceTracker_AllReturnsEverySeenRouter(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	tracker := newPresenceTracker(bus, zap.NewNop())

	tracker.handleStatus("r1", statusPayload(t, "online", ""))
	tracker.handleStatus("r2", statusPayload(t, "online", ""))

	assert.Len(t, tracker.All(), 2)
}

func TestPresenceTracker_IsOnlineFallsBackToInMemoryStateWithoutES(t *testing.T) {
	bus := events.NewInMemoryEventBus()
	tracker := newPresenceTracker(bus, zap.NewNop())

	tracker.handleStatus("r1", statusPayload(t, "online", ""))

	assert.True(t, tracker.IsOnline(context.Background(), "r1"))
	assert.False(t, tracker.IsOnline(context.Background(), "r2"))
}
