package http2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
	"golang.org/x/net/http2"
)

// TestDeterminism is universal invariant 1: feeding the same byte sequence
// to two identically-initialized engines yields identical events and
// identical outbound bytes, including for malformed/random input.
func TestDeterminism(t *testing.T) {
	for trial := 0; trial < 50; trial++ {
		n := int(fastrand.Uint32n(512))
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(fastrand.Uint32n(256))
		}

		c1 := NewConnection(Options{ClientSide: false})
		c2 := NewConnection(Options{ClientSide: false})

		ev1, err1 := c1.ReceiveData(data)
		ev2, err2 := c2.ReceiveData(data)

		require.Equal(t, err1, err2)
		require.Equal(t, len(ev1), len(ev2))
		for i := range ev1 {
			require.IsType(t, ev1[i], ev2[i])
			require.Equal(t, ev1[i].StreamID(), ev2[i].StreamID())
		}
		require.True(t, bytes.Equal(c1.DataToSend(), c2.DataToSend()))
	}
}

// TestFlowControlAccountingIsExact is universal invariant 3: the sum of
// flow_controlled_length across received DATA equals initial_window minus
// current_window plus the sum of emitted connection-level WINDOW_UPDATE
// increments.
func TestFlowControlAccountingIsExact(t *testing.T) {
	c := NewConnection(Options{ClientSide: false})
	c.prefaceConsumed = true
	s := newStream(1, 65535, 65535)
	require.NoError(t, s.transitionRecvHeaders(false))
	c.streams.insert(s)
	c.highestPeerStreamID = 1
	c.peerOpenCount = 1

	initial := int64(defaultConnectionWindowSize)

	var in bytes.Buffer
	writer := http2.NewFramer(&in, nil)
	chunks := [][]byte{bytes.Repeat([]byte{1}, 100), bytes.Repeat([]byte{2}, 50), bytes.Repeat([]byte{3}, 25)}
	for _, chunk := range chunks {
		require.NoError(t, writer.WriteData(1, false, chunk))
	}

	_, err := c.ReceiveData(in.Bytes())
	require.NoError(t, err)

	var totalReceived uint32
	for _, chunk := range chunks {
		totalReceived += uint32(len(chunk))
	}

	var emittedIncrements uint32
	for _, f := range readAllFrames(t, c.DataToSend()) {
		if wu, ok := f.(*http2.WindowUpdateFrame); ok && wu.Header().StreamID == 0 {
			emittedIncrements += wu.Increment
		}
	}

	current := c.localWindow.Size()
	require.Equal(t, initial-current+int64(emittedIncrements), int64(totalReceived))
}

// TestStreamIDOrderingMatchesCreationOrder is universal invariant 4.
func TestStreamIDOrderingMatchesCreationOrder(t *testing.T) {
	c := NewConnection(Options{ClientSide: true})
	require.NoError(t, c.InitiateConnection())

	id1, err := c.GetNextAvailableStreamID()
	require.NoError(t, err)
	require.NoError(t, c.SendHeaders(id1, []Header{
		{Name: ":method", Value: "GET"}, {Name: ":path", Value: "/"}, {Name: ":scheme", Value: "https"},
	}, true, nil))

	id2, err := c.GetNextAvailableStreamID()
	require.NoError(t, err)
	require.NoError(t, c.SendHeaders(id2, []Header{
		{Name: ":method", Value: "GET"}, {Name: ":path", Value: "/2"}, {Name: ":scheme", Value: "https"},
	}, true, nil))

	require.Less(t, id1, id2)
	require.Equal(t, id1%2, id2%2)
}

// TestExactlyOneResetEventPerRSTStream is universal invariant 6.
func TestExactlyOneResetEventPerRSTStream(t *testing.T) {
	c := NewConnection(Options{ClientSide: false})
	c.prefaceConsumed = true
	s := newStream(1, 65535, 65535)
	require.NoError(t, s.transitionRecvHeaders(false))
	c.streams.insert(s)
	c.highestPeerStreamID = 1
	c.peerOpenCount = 1

	var in bytes.Buffer
	writer := http2.NewFramer(&in, nil)
	require.NoError(t, writer.WriteRSTStream(1, ErrCodeCancel))

	events, err := c.ReceiveData(in.Bytes())
	require.NoError(t, err)
	require.Len(t, events, 1)
	sr := events[0].(*StreamReset)
	require.True(t, sr.RemoteReset)
}
