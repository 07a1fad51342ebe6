package http2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

func TestSettingsDefaults(t *testing.T) {
	local := newLocalSettings()
	require.Equal(t, uint32(defaultHeaderTableSize), local.HeaderTableSize)
	require.True(t, local.EnablePush)
	require.Equal(t, defaultInitialWindowSize, local.InitialWindowSize)
	require.Equal(t, defaultMaxFrameSize, local.MaxFrameSize)

	remote := newRemoteSettings()
	require.Equal(t, uint32(1<<32-1), remote.MaxConcurrentStreams)
}

func TestUpdateLocalQueuesPendingUntilAck(t *testing.T) {
	s := newLocalSettings()
	wire, err := s.updateLocal(map[SettingID]uint32{SettingMaxConcurrentStreams: 42})
	require.NoError(t, err)
	require.Len(t, wire, 1)
	require.Equal(t, uint32(defaultLocalMaxConcurrentStreams), s.MaxConcurrentStreams, "value must not apply before ACK")

	ids := s.receiveAck()
	require.Equal(t, []SettingID{SettingMaxConcurrentStreams}, ids)
	require.Equal(t, uint32(42), s.MaxConcurrentStreams)
}

func TestUpdateLocalRejectsInvalidValue(t *testing.T) {
	s := newLocalSettings()
	_, err := s.updateLocal(map[SettingID]uint32{SettingEnablePush: 2})
	require.Error(t, err)
	var invalid *InvalidSettingsValueError
	require.ErrorAs(t, err, &invalid)
}

func TestReceiveRemoteReportsDeltasOnly(t *testing.T) {
	var buf bytes.Buffer
	writer := http2.NewFramer(&buf, nil)
	require.NoError(t, writer.WriteSettings(
		http2.Setting{ID: SettingInitialWindowSize, Val: defaultInitialWindowSize},
		http2.Setting{ID: SettingMaxConcurrentStreams, Val: 10},
	))

	reader := http2.NewFramer(nil, &buf)
	frame, err := reader.ReadFrame()
	require.NoError(t, err)
	sf := frame.(*http2.SettingsFrame)

	s := newRemoteSettings()
	deltas, err := s.receiveRemote(sf)
	require.NoError(t, err)
	require.Len(t, deltas, 1, "INITIAL_WINDOW_SIZE matched the default and should not appear")
	require.Equal(t, SettingMaxConcurrentStreams, deltas[0].ID)
	require.Equal(t, uint32(10), s.MaxConcurrentStreams)
}

func TestValidateSettingValue(t *testing.T) {
	ok, _, _ := validateSettingValue(SettingMaxFrameSize, defaultMaxFrameSize-1)
	require.False(t, ok)

	ok, _, _ = validateSettingValue(SettingMaxFrameSize, maxAllowedFrameSize+1)
	require.False(t, ok)

	ok, _, _ = validateSettingValue(SettingInitialWindowSize, maxAllowedWindowSize+1)
	require.False(t, ok)

	ok, _, _ = validateSettingValue(SettingEnablePush, 1)
	require.True(t, ok)
}
