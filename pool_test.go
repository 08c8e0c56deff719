package bgtask_test

import (
	"context"
	"testing"

	bgtask "github.com/Swind/go-bgtask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGlobalPool verifies the singleton lifecycle
// Given: No global pool
// When: It is initialized twice, used, and shut down
// Then: The same instance is returned until shutdown, and a later init creates a new one
func TestGlobalPool(t *testing.T) {
	assert.Panics(t, func() { bgtask.GetGlobalPool() })

	cfg := bgtask.DefaultWorkerPoolConfig(2)
	cfg.Logger = bgtask.NewNoOpLogger()
	bgtask.InitGlobalPoolWithConfig(cfg)
	first := bgtask.GetGlobalPool()
	bgtask.InitGlobalPool(8)
	assert.Same(t, first, bgtask.GetGlobalPool())
	assert.Equal(t, "global-pool", first.Name())
	assert.Equal(t, 2, first.Capacity())

	v, err := bgtask.Submit(func(ctx context.Context) (any, error) { return "ok", nil }).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	bgtask.ShutdownGlobalPool()
	bgtask.ShutdownGlobalPool()
	assert.True(t, first.IsClosed())

	cfg = bgtask.DefaultWorkerPoolConfig(1)
	cfg.Logger = bgtask.NewNoOpLogger()
	bgtask.InitGlobalPoolWithConfig(cfg)
	defer bgtask.ShutdownGlobalPool()
	assert.NotSame(t, first, bgtask.GetGlobalPool())
}

// TestInitGlobalPoolWithConfig_Nil verifies a nil config is reported, not dereferenced
func TestInitGlobalPoolWithConfig_Nil(t *testing.T) {
	assert.PanicsWithValue(t, "WorkerPool: config must not be nil", func() {
		bgtask.InitGlobalPoolWithConfig(nil)
	})
	assert.Panics(t, func() { bgtask.GetGlobalPool() }, "no global pool is created")
}
