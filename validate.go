package http2

import (
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/sansio/http2/http2utils"
)

// validateStreamIDParity enforces RFC 7540 §5.1.1: streams initiated by a
// client use odd ids, server-initiated (pushed) streams use even ids.
// clientInitiated says whether the endpoint opening the stream is the client.
func validateStreamIDParity(streamID uint32, clientInitiated bool) bool {
	if streamID == 0 {
		return false
	}
	odd := streamID%2 == 1
	return odd == clientInitiated
}

// frameRequiresStream reports whether frameType must carry a non-zero stream
// id (true), must carry a zero stream id (false), or is exempt from the
// check entirely (WINDOW_UPDATE, which legally is either).
func frameRequiresStream(t http2.FrameType) (required, mustBeZero bool) {
	switch t {
	case http2.FrameHeaders, http2.FramePriority, http2.FrameRSTStream,
		http2.FrameData, http2.FramePushPromise, http2.FrameContinuation:
		return true, false
	case http2.FrameSettings, http2.FramePing, http2.FrameGoAway:
		return false, true
	default:
		return false, false
	}
}

// validateFrameHeader checks the stream-id rules spec §4.2's "Frame
// validator" component enforces before a frame is dispatched. Length and
// padding-consistency checks are already enforced by golang.org/x/net/http2's
// Framer while parsing, so they are not repeated here.
func validateFrameHeader(fh http2.FrameHeader) error {
	required, mustBeZero := frameRequiresStream(fh.Type)
	if required && fh.StreamID == 0 {
		return newProtocolError("%s frame must not use stream id 0", fh.Type)
	}
	if mustBeZero && fh.StreamID != 0 {
		return newProtocolError("%s frame must use stream id 0, got %d", fh.Type, fh.StreamID)
	}
	return nil
}

// validateFrameSize checks a frame's payload length against the locally
// advertised MAX_FRAME_SIZE (spec §4.1/§4.2). ReceiveData calls it on each
// inbound frame header; it is the only check against that limit, since
// readOneFrame sizes its Framer to the frame it was handed.
func validateFrameSize(payloadLen, localMax uint32) error {
	if payloadLen > localMax {
		return newFrameTooLargeError(payloadLen, localMax)
	}
	return nil
}

// headerDirection distinguishes which pseudo-header set applies.
type headerDirection int

const (
	dirRequest headerDirection = iota
	dirResponse
)

// validateHeaderList enforces RFC 7540 §8.1.2's header field rules: lowercase
// names, no connection-specific fields, a legal and correctly-placed
// pseudo-header set, and (for trailers) no pseudo-headers at all. It returns
// a StreamError (not a ConnectionError): a single malformed header block only
// dooms its own stream (spec §4.8's classification of compression-adjacent
// failures is the one exception, handled by the caller around hpack.Decoder
// itself since that failure corrupts the shared dynamic table).
func validateHeaderList(streamID uint32, fields []hpack.HeaderField, dir headerDirection, isTrailer bool) error {
	seenRegular := false
	pseudoSeen := map[string]bool{}
	var authority, host string
	haveAuthority, haveHost := false, false
	teTrailersOnly := true

	for _, f := range fields {
		name := f.Name
		if http2utils.HasUpper(name) {
			return streamErr(streamID, ErrCodeProtocol, "header name %q must be lowercase", name)
		}
		if len(name) > 0 && name[0] == ':' {
			if isTrailer {
				return streamErr(streamID, ErrCodeProtocol, "pseudo-header %q not allowed in trailers", name)
			}
			if seenRegular {
				return streamErr(streamID, ErrCodeProtocol, "pseudo-header %q after regular header field", name)
			}
			switch dir {
			case dirRequest:
				if !http2utils.IsRequestPseudoHeader(name) {
					return streamErr(streamID, ErrCodeProtocol, "unknown request pseudo-header %q", name)
				}
			case dirResponse:
				if !http2utils.IsResponsePseudoHeader(name) {
					return streamErr(streamID, ErrCodeProtocol, "unknown response pseudo-header %q", name)
				}
			}
			if pseudoSeen[name] {
				return streamErr(streamID, ErrCodeProtocol, "duplicate pseudo-header %q", name)
			}
			pseudoSeen[name] = true
			if name == ":authority" {
				authority, haveAuthority = f.Value, true
			}
			continue
		}
		seenRegular = true
		if http2utils.IsConnectionSpecificHeader(name) {
			return streamErr(streamID, ErrCodeProtocol, "connection-specific header %q not allowed", name)
		}
		if name == "te" && http2utils.ToLower(f.Value) != "trailers" {
			teTrailersOnly = false
		}
		if name == "host" {
			host, haveHost = f.Value, true
		}
	}

	if !teTrailersOnly {
		return streamErr(streamID, ErrCodeProtocol, `"te" header field must be "trailers" or absent`)
	}

	if isTrailer {
		return nil
	}

	if dir == dirRequest {
		if !pseudoSeen[":method"] || !pseudoSeen[":scheme"] || !pseudoSeen[":path"] {
			return streamErr(streamID, ErrCodeProtocol, "request missing required pseudo-header")
		}
		// RFC 7540 §8.1.2.3: a request carrying both ":authority" and "Host"
		// must agree, and "Host" alone without ":authority" is itself a
		// violation (spec §4.3's connection-specific-header-like rule).
		if haveHost && !haveAuthority {
			return streamErr(streamID, ErrCodeProtocol, "\"Host\" header present without \":authority\" pseudo-header")
		}
		if haveAuthority && haveHost && !http2utils.EqualsFold([]byte(authority), []byte(host)) {
			return streamErr(streamID, ErrCodeProtocol, "\":authority\" and \"Host\" header disagree")
		}
	} else {
		if !pseudoSeen[":status"] {
			return streamErr(streamID, ErrCodeProtocol, "response missing \":status\" pseudo-header")
		}
	}
	return nil
}

// validateSettingsACKEmpty checks the single structural rule on SETTINGS
// frames that isn't a per-value check: an ACK must carry no payload.
func validateSettingsACKEmpty(ack bool, payloadLen int) error {
	if ack && payloadLen != 0 {
		return newProtocolError("SETTINGS ACK must have an empty payload, got %d bytes", payloadLen)
	}
	return nil
}
