package http2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

func encodeTestHeaders(t *testing.T, headers []Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	for _, h := range headers {
		require.NoError(t, enc.WriteField(hpack.HeaderField{Name: h.Name, Value: h.Value}))
	}
	return buf.Bytes()
}

func readAllFrames(t *testing.T, b []byte) []http2.Frame {
	t.Helper()
	fr := http2.NewFramer(nil, bytes.NewReader(b))
	fr.SetMaxReadFrameSize(maxAllowedFrameSize)
	var frames []http2.Frame
	for {
		f, err := fr.ReadFrame()
		if err != nil {
			break
		}
		frames = append(frames, f)
	}
	return frames
}

// S1: client GET with end_stream — preface, then SETTINGS, then a
// HEADERS(1, END_STREAM|END_HEADERS) frame.
func TestS1ClientGetWithEndStream(t *testing.T) {
	c := NewConnection(Options{ClientSide: true})
	require.NoError(t, c.InitiateConnection())
	require.NoError(t, c.SendHeaders(1, []Header{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "ex.com"},
	}, true, nil))

	out := c.DataToSend()
	require.True(t, bytes.HasPrefix(out, []byte(http2.ClientPreface)))

	frames := readAllFrames(t, out[len(http2.ClientPreface):])
	require.GreaterOrEqual(t, len(frames), 2)

	sf, ok := frames[0].(*http2.SettingsFrame)
	require.True(t, ok)
	require.False(t, sf.IsAck())

	hf, ok := frames[1].(*http2.HeadersFrame)
	require.True(t, ok)
	require.Equal(t, uint32(1), hf.Header().StreamID)
	require.True(t, hf.StreamEnded())
	require.True(t, hf.HeadersEnded())
}

// S2: server receives preface+SETTINGS+HEADERS(1, END_STREAM) and responds
// with the corresponding events.
func TestS2ServerReceivesGetAndResponds(t *testing.T) {
	c := NewConnection(Options{ClientSide: false})

	var in bytes.Buffer
	in.WriteString(http2.ClientPreface)
	writer := http2.NewFramer(&in, nil)
	require.NoError(t, writer.WriteSettings(http2.Setting{ID: SettingMaxConcurrentStreams, Val: 50}))
	frag := encodeTestHeaders(t, []Header{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "ex.com"},
	})
	require.NoError(t, writer.WriteHeaders(http2.HeadersFrameParam{
		StreamID: 1, BlockFragment: frag, EndStream: true, EndHeaders: true,
	}))

	events, err := c.ReceiveData(in.Bytes())
	require.NoError(t, err)

	var sawRemoteSettings, sawRequest, sawStreamEnded bool
	for _, ev := range events {
		switch e := ev.(type) {
		case *RemoteSettingsChanged:
			sawRemoteSettings = true
		case *RequestReceived:
			sawRequest = true
			require.Equal(t, uint32(1), e.StreamID())
			require.NotNil(t, e.StreamEnded)
		case *StreamEnded:
			sawStreamEnded = true
			require.Equal(t, uint32(1), e.StreamID())
		}
	}
	require.True(t, sawRemoteSettings)
	require.True(t, sawRequest)
	require.True(t, sawStreamEnded)
}

// S3: a 10-byte INITIAL_WINDOW_SIZE caps a 15-byte send_data to 10 bytes on
// the wire; a WINDOW_UPDATE(+5) releases the remaining 5.
func TestS3FlowControlBuffersOverWindowSend(t *testing.T) {
	c := NewConnection(Options{ClientSide: true})
	require.NoError(t, c.InitiateConnection())
	c.DataToSend() // discard preface+SETTINGS

	var in bytes.Buffer
	writer := http2.NewFramer(&in, nil)
	require.NoError(t, writer.WriteSettings(http2.Setting{ID: SettingInitialWindowSize, Val: 10}))
	_, err := c.ReceiveData(in.Bytes())
	require.NoError(t, err)
	c.DataToSend() // discard the SETTINGS ACK

	require.NoError(t, c.SendHeaders(1, []Header{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "ex.com"},
	}, false, nil))
	c.DataToSend() // discard HEADERS

	payload := bytes.Repeat([]byte{'a'}, 15)
	require.NoError(t, c.SendData(1, payload, true, 0))

	frames := readAllFrames(t, c.DataToSend())
	require.Len(t, frames, 1)
	df := frames[0].(*http2.DataFrame)
	require.Len(t, df.Data(), 10)
	require.False(t, df.StreamEnded(), "END_STREAM must wait for the remaining 5 bytes")

	var up bytes.Buffer
	uw := http2.NewFramer(&up, nil)
	require.NoError(t, uw.WriteWindowUpdate(1, 5))
	_, err = c.ReceiveData(up.Bytes())
	require.NoError(t, err)

	frames = readAllFrames(t, c.DataToSend())
	require.Len(t, frames, 1)
	df = frames[0].(*http2.DataFrame)
	require.Len(t, df.Data(), 5)
	require.True(t, df.StreamEnded())
}

// S4: HEADERS without END_HEADERS followed by DATA is a connection
// PROTOCOL_ERROR, with GOAWAY(last_stream_id=1) queued.
func TestS4ContinuationGapTerminatesConnection(t *testing.T) {
	c := NewConnection(Options{ClientSide: false})

	var in bytes.Buffer
	in.WriteString(http2.ClientPreface)
	writer := http2.NewFramer(&in, nil)
	require.NoError(t, writer.WriteSettings())
	frag := encodeTestHeaders(t, []Header{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
	})
	require.NoError(t, writer.WriteHeaders(http2.HeadersFrameParam{
		StreamID: 1, BlockFragment: frag, EndHeaders: false,
	}))
	require.NoError(t, writer.WriteData(1, false, []byte("x")))

	events, err := c.ReceiveData(in.Bytes())
	require.NoError(t, err)

	var terminations int
	for _, ev := range events {
		if ct, ok := ev.(*ConnectionTerminated); ok {
			terminations++
			require.Equal(t, ErrCodeProtocol, ct.ErrorCode)
			require.Equal(t, uint32(1), ct.LastStreamID)
		}
	}
	require.Equal(t, 1, terminations)

	frames := readAllFrames(t, c.DataToSend())
	var sawGoAway bool
	for _, f := range frames {
		if ga, ok := f.(*http2.GoAwayFrame); ok {
			sawGoAway = true
			require.Equal(t, uint32(1), ga.LastStreamID)
		}
	}
	require.True(t, sawGoAway)
	require.Error(t, c.checkOperable(), "connection must be terminal after a connection-scoped error")
}

// S5: an invalid ENABLE_PUSH value terminates the connection without
// emitting RemoteSettingsChanged.
func TestS5InvalidSettingTerminatesConnection(t *testing.T) {
	c := NewConnection(Options{ClientSide: true})

	var in bytes.Buffer
	writer := http2.NewFramer(&in, nil)
	require.NoError(t, writer.WriteSettings(http2.Setting{ID: SettingEnablePush, Val: 2}))

	events, err := c.ReceiveData(in.Bytes())
	require.NoError(t, err)

	require.Len(t, events, 1)
	ct, ok := events[0].(*ConnectionTerminated)
	require.True(t, ok)
	require.Equal(t, ErrCodeProtocol, ct.ErrorCode)

	for _, ev := range events {
		_, isRemoteSettings := ev.(*RemoteSettingsChanged)
		require.False(t, isRemoteSettings)
	}
}

// S6: DATA on a stream in HALF_CLOSED_REMOTE resets just that stream;
// the connection stays usable.
func TestS6StreamScopedErrorLeavesConnectionUsable(t *testing.T) {
	c := NewConnection(Options{ClientSide: false})
	c.prefaceConsumed = true
	s := newStream(1, 65535, 65535)
	s.state = StreamHalfClosedRemote
	c.streams.insert(s)
	c.highestPeerStreamID = 1
	c.peerOpenCount = 1

	var in bytes.Buffer
	writer := http2.NewFramer(&in, nil)
	require.NoError(t, writer.WriteData(1, false, []byte("x")))

	events, err := c.ReceiveData(in.Bytes())
	require.NoError(t, err)
	require.Len(t, events, 1)
	sr, ok := events[0].(*StreamReset)
	require.True(t, ok)
	require.Equal(t, uint32(1), sr.StreamID())
	require.Equal(t, ErrCodeStreamClosed, sr.ErrorCode)
	require.False(t, sr.RemoteReset)

	require.NoError(t, c.checkOperable(), "a stream-scoped error must not terminate the connection")
}

func TestOnlyOneHeaderBlockInProgressAtATime(t *testing.T) {
	c := NewConnection(Options{ClientSide: false})
	c.prefaceConsumed = true

	var in bytes.Buffer
	writer := http2.NewFramer(&in, nil)
	frag := encodeTestHeaders(t, []Header{{Name: ":method", Value: "GET"}})
	require.NoError(t, writer.WriteHeaders(http2.HeadersFrameParam{StreamID: 1, BlockFragment: frag, EndHeaders: false}))
	require.NoError(t, writer.WriteHeaders(http2.HeadersFrameParam{StreamID: 3, BlockFragment: frag, EndHeaders: true}))

	events, err := c.ReceiveData(in.Bytes())
	require.NoError(t, err)
	require.Len(t, events, 1)
	ct, ok := events[0].(*ConnectionTerminated)
	require.True(t, ok)
	require.Equal(t, ErrCodeProtocol, ct.ErrorCode)
}

func TestDataToSendDrainsIncrementally(t *testing.T) {
	c := NewConnection(Options{ClientSide: true})
	require.NoError(t, c.InitiateConnection())
	full := c.out.Len()
	require.Greater(t, full, 10)

	first := c.DataToSend(10)
	require.Len(t, first, 10)
	rest := c.DataToSend()
	require.Len(t, rest, full-10)
}
