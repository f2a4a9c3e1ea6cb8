package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_DuplicateService(t *testing.T) {
	m := NewManager()

	_, err := m.NewServiceHandle("worker")
	require.NoError(t, err)
	_, err = m.NewServiceHandle("worker")
	assert.Error(t, err)
}

func TestManager_ShutdownWaitsForServices(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Go("sleeper", func(h *Handle) {
		err := h.Sleep(time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	}))

	m.Shutdown()
	assert.Empty(t, m.WaitWithTimeout(2*time.Second))
}

func TestManager_ReportsStuckServices(t *testing.T) {
	m := NewManager()

	h, err := m.NewServiceHandle("stuck")
	require.NoError(t, err)
	_, err = m.NewServiceHandle("also-stuck")
	require.NoError(t, err)

	m.Shutdown()
	assert.Equal(t, []string{"also-stuck", "stuck"}, m.WaitWithTimeout(20*time.Millisecond))

	h.Close()
	h.Close()
	assert.Equal(t, []string{"also-stuck"}, m.WaitWithTimeout(20*time.Millisecond))
}

func TestHandle_SleepCompletes(t *testing.T) {
	m := NewManager()
	h, err := m.NewServiceHandle("quick")
	require.NoError(t, err)
	defer h.Close()

	assert.NoError(t, h.Sleep(time.Millisecond))
	assert.Equal(t, "quick", h.Name())
}
