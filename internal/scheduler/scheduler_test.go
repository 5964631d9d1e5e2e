package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/events"
	"github.com/spotfi/spotfi-cloud/internal/store"
)

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{Bus: events.NewInMemoryEventBus(), Logger: zap.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store")
}

func TestNew_RequiresBus(t *testing.T) {
	_, err := New(Config{Store: &store.Store{}, Logger: zap.NewNop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event bus")
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{Store: &store.Store{}, Bus: events.NewInMemoryEventBus()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger")
}

func TestNew_DefaultsIntervals(t *testing.T) {
	sched, err := New(Config{
		Store:  &store.Store{},
		Bus:    events.NewInMemoryEventBus(),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, sched.cfg.InvoiceHandoffInterval)
	assert.Equal(t, 15*time.Minute, sched.cfg.MaterializeInterval)
}

func TestNew_HonorsExplicitIntervals(t *testing.T) {
	sched, err := New(Config{
		Store:                  &store.Store{},
		Bus:                    events.NewInMemoryEventBus(),
		Logger:                 zap.NewNop(),
		InvoiceHandoffInterval: 5 * time.Minute,
		MaterializeInterval:    time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, sched.cfg.InvoiceHandoffInterval)
	assert.Equal(t, time.Minute, sched.cfg.MaterializeInterval)
}

func TestStartStop(t *testing.T) {
	sched, err := New(Config{
		Store:                  &store.Store{},
		Bus:                    events.NewInMemoryEventBus(),
		Logger:                 zap.NewNop(),
		InvoiceHandoffInterval: time.Hour,
		MaterializeInterval:    time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, sched.Start())
	err = sched.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, sched.Stop())
	err = sched.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}
