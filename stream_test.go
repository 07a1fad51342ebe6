package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamSendHeadersTransitions(t *testing.T) {
	s := newStream(1, 65535, 65535)
	require.Equal(t, StreamIdle, s.state)

	require.NoError(t, s.transitionSendHeaders(false))
	require.Equal(t, StreamOpen, s.state)

	require.NoError(t, s.transitionSendHeaders(true))
	require.Equal(t, StreamHalfClosedLocal, s.state)
}

func TestStreamCannotSendDataAfterLocalHalfClose(t *testing.T) {
	s := newStream(1, 65535, 65535)
	require.NoError(t, s.transitionSendHeaders(true))
	require.Error(t, s.canSendData())
}

func TestStreamRecvHeadersOnReservedRemoteGoesHalfClosedLocal(t *testing.T) {
	s := newStream(2, 65535, 65535)
	s.state = StreamReservedRemote
	require.NoError(t, s.transitionRecvHeaders(false))
	require.Equal(t, StreamHalfClosedLocal, s.state)
}

func TestStreamRecvDataClosesOnBothSidesHalfClosed(t *testing.T) {
	s := newStream(1, 65535, 65535)
	s.state = StreamHalfClosedLocal
	require.NoError(t, s.transitionRecvData(true))
	require.Equal(t, StreamClosed, s.state)
	require.True(t, s.closed())
}

func TestStreamRecvDataRejectedWhenIdle(t *testing.T) {
	s := newStream(1, 65535, 65535)
	require.Error(t, s.transitionRecvData(false))
}

func TestStreamResetRecordsReason(t *testing.T) {
	s := newStream(1, 65535, 65535)
	reason := streamErr(1, ErrCodeCancel, "cancelled by host")
	s.reset(reason)
	require.True(t, s.closed())
	require.Equal(t, reason, s.resetReason)
}

func TestStreamRecvFinalDistinctFromRecvHeaders(t *testing.T) {
	s := newStream(1, 65535, 65535)
	require.NoError(t, s.transitionRecvHeaders(false))
	require.True(t, s.recvHeaders)
	require.False(t, s.recvFinal, "recvFinal is only set by the connection once a non-1xx block is classified")
}
