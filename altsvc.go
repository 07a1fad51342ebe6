package http2

import (
	"golang.org/x/net/http2"

	"github.com/sansio/http2/http2utils"
)

// ALTSVC (RFC 7838 §4) is never parsed by golang.org/x/net/http2 — it
// predates that package's frame set and has no registered FrameType
// constant there, so this engine hand-rolls its wire layout the same way
// the teacher hand-rolls anything x/net/http2 doesn't cover:
//
//	+-------------------------------+
//	|         Origin-Len (16)       |
//	+-------------------------------+-------------------------------+
//	|                          Origin? (*)                        ...
//	+-------------------------------+-------------------------------+
//	|                   Alt-Svc-Field-Value (*)                   ...
//	+-------------------------------+

// decodeAltSvc parses an ALTSVC frame payload into its origin and
// field-value parts.
func decodeAltSvc(payload []byte) (origin, fieldValue string, err error) {
	if len(payload) < 2 {
		return "", "", newProtocolError("ALTSVC frame shorter than its Origin-Len field")
	}
	originLen := int(http2utils.BytesToUint16(payload[:2]))
	rest := payload[2:]
	if originLen > len(rest) {
		return "", "", newProtocolError("ALTSVC Origin-Len %d exceeds frame payload", originLen)
	}
	origin = string(rest[:originLen])
	fieldValue = string(rest[originLen:])
	return origin, fieldValue, nil
}

// encodeAltSvc serializes an ALTSVC frame payload.
func encodeAltSvc(origin, fieldValue string) []byte {
	buf := make([]byte, 0, 2+len(origin)+len(fieldValue))
	buf = http2utils.Uint16ToBytes(buf, uint16(len(origin)))
	buf = append(buf, origin...)
	buf = append(buf, fieldValue...)
	return buf
}

// writeAltSvcFrame queues a raw ALTSVC frame. streamID is 0 when Origin is
// set (a connection-wide advertisement); otherwise it names the stream
// whose request origin the advertisement applies to (RFC 7838 §4).
func (c *Connection) writeAltSvcFrame(streamID uint32, origin, fieldValue string) error {
	payload := encodeAltSvc(origin, fieldValue)
	return c.framer.WriteRawFrame(frameTypeAltSvc, 0, streamID, payload)
}

// handleAltSvc decodes an inbound ALTSVC frame and emits
// AlternativeServiceAvailable. A frame with an empty Origin on stream 0
// carries nothing actionable and is silently dropped. A frame on a non-zero
// stream is always emitted: the engine records no ":authority" per stream,
// and does not check that the stream is known.
func (c *Connection) handleAltSvc(fh http2.FrameHeader, payload []byte) ([]Event, error) {
	origin, fieldValue, err := decodeAltSvc(payload)
	if err != nil {
		return nil, err
	}
	if origin == "" && fh.StreamID == 0 {
		return nil, nil
	}
	return []Event{&AlternativeServiceAvailable{Origin: origin, FieldValue: fieldValue, streamID: fh.StreamID}}, nil
}

// AdvertiseAlternativeService queues an ALTSVC frame (spec §6). Pass
// streamID 0 with a non-empty origin for a connection-wide advertisement,
// or a non-zero streamID with origin "" to advertise for that stream's
// already-established authority.
func (c *Connection) AdvertiseAlternativeService(streamID uint32, origin, fieldValue string) error {
	if err := c.checkOperable(); err != nil {
		return err
	}
	if origin == "" && streamID == 0 {
		return nil
	}
	return c.writeAltSvcFrame(streamID, origin, fieldValue)
}
