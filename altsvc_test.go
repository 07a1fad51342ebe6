package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

func TestEncodeDecodeAltSvcRoundTrip(t *testing.T) {
	payload := encodeAltSvc("https://example.com", `h2=":443"; ma=3600`)
	origin, fieldValue, err := decodeAltSvc(payload)
	require.NoError(t, err)
	require.Equal(t, "https://example.com", origin)
	require.Equal(t, `h2=":443"; ma=3600`, fieldValue)
}

func TestEncodeDecodeAltSvcNoOrigin(t *testing.T) {
	payload := encodeAltSvc("", `h2=":443"`)
	origin, fieldValue, err := decodeAltSvc(payload)
	require.NoError(t, err)
	require.Empty(t, origin)
	require.Equal(t, `h2=":443"`, fieldValue)
}

func TestDecodeAltSvcRejectsTruncatedPayload(t *testing.T) {
	_, _, err := decodeAltSvc([]byte{0})
	require.Error(t, err)

	_, _, err = decodeAltSvc([]byte{0, 10, 'a'})
	require.Error(t, err, "origin length longer than the remaining payload must fail")
}

func TestHandleAltSvcDropsEmptyOriginOnConnectionStream(t *testing.T) {
	c := NewConnection(Options{ClientSide: true})
	events, err := c.handleAltSvc(http2.FrameHeader{StreamID: 0}, encodeAltSvc("", "h2=\":443\""))
	require.NoError(t, err)
	require.Empty(t, events, "no origin and no stream context carries nothing actionable")
}

func TestHandleAltSvcEmitsEventForStreamScoped(t *testing.T) {
	c := NewConnection(Options{ClientSide: true})
	events, err := c.handleAltSvc(http2.FrameHeader{StreamID: 1}, encodeAltSvc("", "h2=\":443\""))
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev, ok := events[0].(*AlternativeServiceAvailable)
	require.True(t, ok)
	require.Equal(t, uint32(1), ev.StreamID())
}
