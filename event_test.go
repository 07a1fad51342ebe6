package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventStreamIDAccessors(t *testing.T) {
	var events []Event = []Event{
		&RequestReceived{streamID: 1},
		&ResponseReceived{streamID: 3},
		&InformationalResponseReceived{streamID: 3},
		&TrailersReceived{streamID: 5},
		&DataReceived{streamID: 7},
		&WindowUpdated{streamID: 0},
		&RemoteSettingsChanged{},
		&SettingsAcknowledged{},
		&PingAcknowledged{},
		&PingReceived{},
		&StreamEnded{streamID: 9},
		&StreamReset{streamID: 11},
		&PushedStreamReceived{streamID: 13},
		&PriorityUpdated{streamID: 15},
		&ConnectionTerminated{},
		&AlternativeServiceAvailable{streamID: 17},
	}
	expected := []uint32{1, 3, 3, 5, 7, 0, 0, 0, 0, 0, 9, 11, 13, 15, 0, 17}
	for i, ev := range events {
		require.Equal(t, expected[i], ev.StreamID(), "event %d (%T)", i, ev)
	}
}

func TestResponseReceivedCarriesRelatedEvents(t *testing.T) {
	se := &StreamEnded{streamID: 1}
	pr := &PriorityUpdated{streamID: 1, Weight: 32}
	resp := &ResponseReceived{streamID: 1, StreamEnded: se, PriorityUpdated: pr}
	require.Same(t, se, resp.StreamEnded)
	require.Same(t, pr, resp.PriorityUpdated)
}
