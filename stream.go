package http2

import "strconv"

// StreamState is one of the RFC 7540 Figure 2 states (spec §4.5). The
// teacher's stream.go collapses RESERVED_LOCAL/RESERVED_REMOTE and
// HALF_CLOSED_LOCAL/HALF_CLOSED_REMOTE into single Reserved/HalfClosed
// values; this engine keeps them distinct because the FSM's legal next
// states genuinely differ by direction (spec's transition table).
type StreamState int8

const (
	StreamIdle StreamState = iota
	StreamReservedLocal
	StreamReservedRemote
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamReservedLocal:
		return "reserved_local"
	case StreamReservedRemote:
		return "reserved_remote"
	case StreamOpen:
		return "open"
	case StreamHalfClosedLocal:
		return "half_closed_local"
	case StreamHalfClosedRemote:
		return "half_closed_remote"
	case StreamClosed:
		return "closed"
	}
	return "unknown"
}

// pendingSend is a chunk of DATA queued because it didn't fit in the
// current flow-control window (spec §9 open question #1: buffer, don't
// raise).
type pendingSend struct {
	data      []byte
	endStream bool
	padLength uint8
}

// Stream is the per-stream state spec §3's data model names: id, FSM
// state, the two flow windows, and the handful of booleans the trailer/
// content-length invariants need.
type Stream struct {
	id    uint32
	state StreamState

	sendWindow flowWindow
	recvWindow flowWindow

	sentHeaders  bool
	sentTrailers bool
	recvHeaders  bool
	recvTrailers bool

	// recvFinal is set once a non-informational (non-1xx) HEADERS block has
	// been received; it is distinct from recvHeaders (which the FSM sets on
	// every inbound HEADERS, 1xx included) because only recvFinal decides
	// whether the *next* HEADERS block on this stream is trailers.
	recvFinal bool

	// contentLength is the declared content-length for this stream's
	// inbound body, or -1 if none was declared.
	contentLength int64
	recvBodyBytes int64

	resetReason error // set when state becomes StreamClosed via RST_STREAM

	pendingOut []pendingSend // spec §9 open question #1

	isPush         bool // true for PUSH_PROMISE-created streams (push policy)
	localInitiated bool // true if this engine opened the stream, false if the peer did
}

func newStream(id uint32, sendInitial, recvInitial uint32) *Stream {
	return &Stream{
		id:            id,
		state:         StreamIdle,
		sendWindow:    newFlowWindow(sendInitial),
		recvWindow:    newFlowWindow(recvInitial),
		contentLength: -1,
	}
}

func (s *Stream) ID() uint32       { return s.id }
func (s *Stream) State() StreamState { return s.state }

// noteContentLength records a declared content-length from the initial
// HEADERS block, if present and well-formed. A missing, negative or
// unparseable value leaves the no-declaration sentinel in place, so no
// length check applies to that stream; header validation does not inspect
// content-length (spec §3's content-length invariant only applies once
// declared).
func (s *Stream) noteContentLength(headers []Header) {
	for _, h := range headers {
		if h.Name != "content-length" {
			continue
		}
		if n, err := strconv.ParseInt(h.Value, 10, 64); err == nil && n >= 0 {
			s.contentLength = n
		}
		return
	}
}

// addRecvBody accounts for n bytes of DATA payload (padding already
// stripped) received on this stream, for the content-length check below.
func (s *Stream) addRecvBody(n int) { s.recvBodyBytes += int64(n) }

// checkContentLength enforces spec §3: if content-length was declared, it
// must equal the total DATA bytes received once the body is complete.
func (s *Stream) checkContentLength() error {
	if s.contentLength < 0 {
		return nil
	}
	if s.recvBodyBytes != s.contentLength {
		return streamErr(s.id, ErrCodeProtocol, "content-length %d does not match %d bytes of DATA received", s.contentLength, s.recvBodyBytes)
	}
	return nil
}

// transitionSendHeaders updates state for an outbound HEADERS block
// carrying (or not) END_STREAM, per spec §4.5's table. Push reservations
// set StreamReservedLocal directly in PushStream and do not pass through here.
func (s *Stream) transitionSendHeaders(endStream bool) error {
	switch s.state {
	case StreamIdle:
		s.state = StreamOpen
	case StreamReservedLocal:
		s.state = StreamHalfClosedRemote
	case StreamOpen:
		// no state change; END_STREAM handled below.
	case StreamHalfClosedRemote:
		// no state change; END_STREAM handled below.
	default:
		return streamErr(s.id, ErrCodeStreamClosed, "cannot send HEADERS from state %s", s.state)
	}
	s.sentHeaders = true
	if endStream {
		s.closeSendSide()
	}
	return nil
}

func (s *Stream) transitionSendData(endStream bool) error {
	if err := s.canSendData(); err != nil {
		return err
	}
	if endStream {
		s.closeSendSide()
	}
	return nil
}

// canSendData checks whether a DATA frame may legally be sent right now,
// without mutating state. SendData uses this: the actual closeSendSide()
// transition for an END_STREAM-flagged call happens lazily, only once the
// last queued byte has actually been flushed to the wire (spec §9 open
// question #1 defers bytes that don't fit the flow-control window, and the
// FSM must not close before they're gone).
func (s *Stream) canSendData() error {
	switch s.state {
	case StreamOpen, StreamHalfClosedRemote:
		return nil
	default:
		return streamErr(s.id, ErrCodeStreamClosed, "cannot send DATA from state %s", s.state)
	}
}

func (s *Stream) closeSendSide() {
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedLocal
	case StreamHalfClosedRemote:
		s.state = StreamClosed
	}
}

// transitionRecvHeaders updates state for an inbound HEADERS block. Per
// spec §4.5, HEADERS/PUSH_PROMISE arriving in HALF_CLOSED_REMOTE resets
// the stream rather than erroring the connection.
func (s *Stream) transitionRecvHeaders(endStream bool) error {
	switch s.state {
	case StreamIdle:
		s.state = StreamOpen
	case StreamReservedRemote:
		s.state = StreamHalfClosedLocal
	case StreamOpen:
		// a second HEADERS block on an open stream is trailers; caller
		// (connection dispatch) enforces the END_STREAM-required rule.
	case StreamHalfClosedRemote:
		return streamErr(s.id, ErrCodeStreamClosed, "HEADERS received in half_closed_remote")
	default:
		return streamErr(s.id, ErrCodeStreamClosed, "cannot receive HEADERS in state %s", s.state)
	}
	s.recvHeaders = true
	if endStream {
		s.closeRecvSide()
	}
	return nil
}

// transitionRecvData validates an inbound DATA frame is legal for the
// current state. Per spec §4.5, DATA outside {OPEN, HALF_CLOSED_LOCAL}
// resets the stream rather than erroring the connection.
func (s *Stream) transitionRecvData(endStream bool) error {
	switch s.state {
	case StreamOpen, StreamHalfClosedLocal:
	default:
		return streamErr(s.id, ErrCodeStreamClosed, "DATA received in state %s", s.state)
	}
	if endStream {
		s.closeRecvSide()
	}
	return nil
}

func (s *Stream) closeRecvSide() {
	switch s.state {
	case StreamOpen:
		s.state = StreamHalfClosedRemote
	case StreamHalfClosedLocal:
		s.state = StreamClosed
	}
}

// reset forces the stream to CLOSED, recording why (RST_STREAM from the
// peer, or this engine resetting in response to a peer error).
func (s *Stream) reset(reason error) {
	s.state = StreamClosed
	s.resetReason = reason
}

func (s *Stream) closed() bool { return s.state == StreamClosed }
