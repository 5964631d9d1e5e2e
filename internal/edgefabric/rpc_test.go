package edgefabric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotfi/spotfi-cloud/internal/database"
)

func newTestCapabilityStore(t *testing.T) *database.Manager {
	t.Helper()
	m, err := database.NewManager(context.Background(), database.WithDataDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestBrokerCall_SkipsKnownUnsupportedMethodWithoutPublishing(t *testing.T) {
	capabilities := newTestCapabilityStore(t)
	ctx := context.Background()
	require.NoError(t, capabilities.SetCapability(ctx, "router-1", "legacy.method", false))

	b := &Broker{rpc: newCorrelationMap(), capabilities: capabilities}

	// No MQTT client is configured on b; if Call reached Publish this would
	// panic on a nil client, so a clean error return proves the capability
	// check short-circuited before any network interaction.
	_, err := b.Call(ctx, "router-1", "legacy", "method", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "known unsupported")
}

func TestCapabilityStore_UnknownMethodReportsNotKnown(t *testing.T) {
	capabilities := newTestCapabilityStore(t)
	supported, known, err := capabilities.GetCapability(context.Background(), "router-1", "uspot.reboot")
	require.NoError(t, err)
	assert.False(t, known)
	assert.False(t, supported)
}
