package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowWindowIncrementAndConsume(t *testing.T) {
	w := newFlowWindow(65535)
	require.Equal(t, uint32(65535), w.Available())

	w.Consume(1000)
	require.Equal(t, uint32(64535), w.Available())

	require.NoError(t, w.Increment(1000))
	require.Equal(t, uint32(65535), w.Available())
}

func TestFlowWindowRejectsZeroIncrement(t *testing.T) {
	w := newFlowWindow(100)
	require.Error(t, w.Increment(0))
}

func TestFlowWindowRejectsOverflow(t *testing.T) {
	w := newFlowWindow(maxAllowedWindowSize)
	require.Error(t, w.Increment(1))
}

func TestFlowWindowCanGoNegativeViaSettingsDelta(t *testing.T) {
	w := newFlowWindow(1000)
	require.NoError(t, w.applySettingsDelta(-2000))
	require.Equal(t, int64(-1000), w.Size())
	require.Equal(t, uint32(0), w.Available(), "a negative window has nothing available, not a negative amount")
}

func TestFlowWindowAvailableClampsAtMax(t *testing.T) {
	w := newFlowWindow(0)
	require.NoError(t, w.Increment(maxAllowedWindowSize))
	require.Equal(t, uint32(maxAllowedWindowSize), w.Available())
}
