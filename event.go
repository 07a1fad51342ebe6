package http2

// Event is implemented by every event variant ReceiveData can return.
// Modeling events this way — a shared accessor over a closed set of
// concrete struct types — is the Go rendering of the "tagged union of
// event variants with a common stream_id accessor" spec §9 calls for.
type Event interface {
	// StreamID returns the stream the event concerns, or 0 for
	// connection-level events (SettingsAcknowledged, PingAcknowledged,
	// ConnectionTerminated, ...).
	StreamID() uint32
}

// Header is one decoded header or trailer field, after HPACK decode and
// any Options.NormalizeInboundHeaders processing. Values are always Go
// strings holding the decoded bytes; there is no header-encoding option.
type Header struct {
	Name  string
	Value string
}

// RequestReceived fires when a complete request HEADERS block (with
// END_HEADERS, and pseudo-headers validated) arrives on a newly- or
// already-open stream, for the endpoint receiving requests (server role
// only; responses on promised streams surface as ResponseReceived).
// Related events that rode the
// same HEADERS frame are attached before they are themselves emitted,
// per spec §4.7.
type RequestReceived struct {
	ID         uint32
	Headers    []Header
	streamID   uint32
	StreamEnded    *StreamEnded
	PriorityUpdated *PriorityUpdated
}

func (e *RequestReceived) StreamID() uint32 { return e.streamID }

// ResponseReceived fires on the client side when a non-informational
// (not 1xx) response HEADERS block completes.
type ResponseReceived struct {
	Headers         []Header
	streamID        uint32
	StreamEnded     *StreamEnded
	PriorityUpdated *PriorityUpdated
}

func (e *ResponseReceived) StreamID() uint32 { return e.streamID }

// InformationalResponseReceived fires for a 1xx response HEADERS block;
// a 1xx block carrying END_STREAM resets the stream instead, so this event
// never co-emits StreamEnded.
type InformationalResponseReceived struct {
	Headers  []Header
	streamID uint32
}

func (e *InformationalResponseReceived) StreamID() uint32 { return e.streamID }

// TrailersReceived fires for the second, END_STREAM HEADERS block on a
// stream that already had a request/response (spec §4.5 "Trailers").
type TrailersReceived struct {
	Headers     []Header
	streamID    uint32
	StreamEnded *StreamEnded
}

func (e *TrailersReceived) StreamID() uint32 { return e.streamID }

// DataReceived fires once per inbound DATA frame. FlowControlledLength is
// the payload length including padding and the pad-length byte (the
// amount the flow-control windows were actually charged), which may be
// larger than len(Data) (glossary: "Flow-controlled length").
type DataReceived struct {
	Data                 []byte
	FlowControlledLength uint32
	streamID             uint32
	StreamEnded          *StreamEnded
}

func (e *DataReceived) StreamID() uint32 { return e.streamID }

// WindowUpdated fires when the peer increments one of our outbound send
// windows: StreamID is 0 for a connection-level WINDOW_UPDATE.
type WindowUpdated struct {
	streamID  uint32
	Increment uint32
}

func (e *WindowUpdated) StreamID() uint32 { return e.streamID }

// RemoteSettingsChanged fires once per accepted SETTINGS frame from the
// peer that changes at least one value, listing only the ids whose value
// actually changed; a frame that changes nothing emits no event.
type RemoteSettingsChanged struct {
	Changed []settingDelta
}

func (e *RemoteSettingsChanged) StreamID() uint32 { return 0 }

// SettingsAcknowledged fires when the peer ACKs a SETTINGS frame sent by
// UpdateSettings; ChangedIDs lists the setting ids that frame carried. The
// ACK of the opening SETTINGS frame queued by InitiateConnection emits no
// event.
type SettingsAcknowledged struct {
	ChangedIDs []SettingID
}

func (e *SettingsAcknowledged) StreamID() uint32 { return 0 }

// PingAcknowledged fires when the peer ACKs a PING we sent.
type PingAcknowledged struct {
	Data [8]byte
}

func (e *PingAcknowledged) StreamID() uint32 { return 0 }

// PingReceived fires when the peer sends a PING without ACK; the engine
// has already queued the ACK reply by the time this is emitted.
type PingReceived struct {
	Data [8]byte
}

func (e *PingReceived) StreamID() uint32 { return 0 }

// StreamEnded fires when a stream receives the END_STREAM flag, whether
// riding HEADERS or DATA. It is both emitted standalone and referenced
// from its triggering primary event (spec §4.7).
type StreamEnded struct {
	streamID uint32
}

func (e *StreamEnded) StreamID() uint32 { return e.streamID }

// StreamReset fires once per stream closure via RST_STREAM, in either
// direction. RemoteReset is true when the peer sent RST_STREAM, false when
// this engine reset the stream in response to a peer protocol violation
// (spec §4.8/§8 property 6).
type StreamReset struct {
	streamID    uint32
	ErrorCode   ErrorCode
	RemoteReset bool
}

func (e *StreamReset) StreamID() uint32 { return e.streamID }

// PushedStreamReceived fires on the client side when a PUSH_PROMISE's
// header block completes, naming the promised stream id.
type PushedStreamReceived struct {
	ParentStreamID uint32
	PromisedStreamID uint32
	Headers        []Header
	streamID       uint32
}

func (e *PushedStreamReceived) StreamID() uint32 { return e.streamID }

// PriorityUpdated fires for a standalone PRIORITY frame, or as a related
// event for priority fields riding a HEADERS frame. This engine performs
// no priority-tree scheduling (an explicit core non-goal); the event
// exists purely so a host that wants one can build it itself.
type PriorityUpdated struct {
	streamID     uint32
	DependsOn    uint32
	Exclusive    bool
	Weight       uint8
}

func (e *PriorityUpdated) StreamID() uint32 { return e.streamID }

// ConnectionTerminated fires when this side decides to GOAWAY (a
// connection-scoped error), and once for each GOAWAY received from the
// peer.
type ConnectionTerminated struct {
	LastStreamID   uint32
	ErrorCode      ErrorCode
	AdditionalData []byte
}

func (e *ConnectionTerminated) StreamID() uint32 { return 0 }

// AlternativeServiceAvailable fires when an ALTSVC frame is received
// (spec §6, RFC 7838). Origin is empty when the frame carried no Origin
// field (meaning "this stream's origin").
type AlternativeServiceAvailable struct {
	Origin     string
	FieldValue string
	streamID   uint32
}

func (e *AlternativeServiceAvailable) StreamID() uint32 { return e.streamID }
