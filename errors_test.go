package http2

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProtocolErrorUnwrapsToConnectionError(t *testing.T) {
	err := newProtocolError("bad frame")
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, ErrCodeProtocol, ce.Code)
}

func TestTooManyStreamsErrorUnwrapsToStreamError(t *testing.T) {
	err := newTooManyStreamsError(7)
	var se *StreamError
	require.True(t, errors.As(err, &se))
	require.Equal(t, uint32(7), se.StreamID)
	require.Equal(t, ErrCodeRefusedStream, se.Code)
}

func TestFlowControlErrorScopeResolution(t *testing.T) {
	connErr := newFlowControlError(0, "connection window exceeded").(*FlowControlError)
	_, isConn := connErr.AsConnError()
	require.True(t, isConn)
	_, isStream := connErr.AsStreamError()
	require.False(t, isStream)

	streamErr := newFlowControlError(5, "stream window exceeded").(*FlowControlError)
	ce, isStream2 := streamErr.AsStreamError()
	require.True(t, isStream2)
	require.Equal(t, uint32(5), ce.StreamID)
}

func TestStreamClosedErrorUnwrapsToNoSuchStreamError(t *testing.T) {
	err := &StreamClosedError{NoSuchStreamError: NoSuchStreamError{StreamID: 3}}
	var nse *NoSuchStreamError
	require.True(t, errors.As(err, &nse))
	require.Equal(t, uint32(3), nse.StreamID)
}

func TestInvalidSettingsValueErrorCarriesContext(t *testing.T) {
	err := newInvalidSettingsValueError(SettingEnablePush, 7, ErrCodeProtocol, "must be 0 or 1")
	var ise *InvalidSettingsValueError
	require.True(t, errors.As(err, &ise))
	require.Equal(t, uint32(7), ise.Value)

	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
}
