package http2

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/sansio/http2/http2utils"
)

// ConnState is one of the global states spec §4.6 names. It is kept mostly
// for diagnostics: the operative gate on host calls is the terminal flag,
// since a connection-scoped error and an explicit CloseConnection both
// leave the engine in the same "only DataToSend is meaningful" posture.
type ConnState int8

const (
	StatePrefaceExpected ConnState = iota
	StatePrefaceSent
	StateEstablished
	StateGoAwaySent
	StateGoAwayReceived
	StateClosed
)

// maxStreamID is the largest legal 31-bit stream id (RFC 7540 §5.1.1).
const maxStreamID = 1<<31 - 1

// defaultConnectionWindowSize is the RFC 7540 §6.9.2 default for the
// connection-level flow-control window. Unlike a stream's initial window,
// it is never affected by SETTINGS INITIAL_WINDOW_SIZE.
const defaultConnectionWindowSize = 65535

// PriorityParams carries the optional priority fields a HEADERS frame may
// include (spec §6 send_headers(... priority_weight?, priority_depends_on?,
// priority_exclusive?)).
type PriorityParams struct {
	Weight    uint8
	DependsOn uint32
	Exclusive bool
}

// Connection is the C6 connection state machine plus the C9 public
// contract: the single sans-I/O engine object a host owns. It is a value
// with no goroutines, no callbacks and no blocking calls — generalized
// from the teacher's goroutine-and-socket-owning Conn into the "pure
// function over bytes" shape spec.md §5/§9 requires.
type Connection struct {
	opts Options

	state    ConnState
	terminal bool

	goAwaySent     bool
	goAwayReceived bool

	local  *Settings
	remote *Settings

	localWindow  flowWindow // how much more the peer may send us, connection-wide
	remoteWindow flowWindow // how much more we may send the peer, connection-wide

	streams *streamMap

	nextStreamID          uint32
	highestLocalStreamID  uint32
	highestPeerStreamID   uint32
	localOpenCount        int
	peerOpenCount         int

	hpackEncoder *hpack.Encoder
	hpackDecoder *hpack.Decoder
	encodeBuf    bytes.Buffer // scratch buffer the encoder writes into, per call
	decodeBuf    []hpack.HeaderField

	assembler headerBlockAssembler

	out    bytes.Buffer
	framer *http2.Framer

	in              []byte
	prefaceConsumed bool

	settingsInFlight     bool
	pendingLocalSettings map[SettingID]uint32

	log Logger
}

// NewConnection constructs an idle engine in PREFACE_EXPECTED. Call
// InitiateConnection (or InitiateUpgradeConnection) before ReceiveData.
func NewConnection(opts Options) *Connection {
	opts = opts.withDefaults()
	c := &Connection{
		opts:                 opts,
		local:                newLocalSettings(),
		remote:               newRemoteSettings(),
		streams:              newStreamMap(opts.ClosedStreamBacklog),
		pendingLocalSettings: make(map[SettingID]uint32),
		log:                  opts.Logger,
	}
	c.localWindow = newFlowWindow(defaultConnectionWindowSize)
	c.remoteWindow = newFlowWindow(defaultConnectionWindowSize)
	if opts.ClientSide {
		c.nextStreamID = 1
	} else {
		c.nextStreamID = 2
	}
	c.hpackEncoder = hpack.NewEncoder(&c.encodeBuf)
	c.hpackDecoder = hpack.NewDecoder(defaultHeaderTableSize, nil)
	c.hpackDecoder.SetEmitFunc(func(f hpack.HeaderField) {
		c.decodeBuf = append(c.decodeBuf, f)
	})
	c.framer = http2.NewFramer(&c.out, nil)
	return c
}

func (c *Connection) isServerRole() bool { return !c.opts.ClientSide }

// InitiateConnection queues the preface (client role) and the opening
// SETTINGS frame (both roles), per spec §4.6.
func (c *Connection) InitiateConnection() error {
	if c.state != StatePrefaceExpected {
		return newProtocolError("connection already initiated")
	}
	if c.opts.ClientSide {
		c.out.WriteString(http2.ClientPreface)
	}
	if err := c.framer.WriteSettings(localSettingsWire(c.local)...); err != nil {
		return err
	}
	c.settingsInFlight = true
	c.state = StatePrefaceSent
	return nil
}

// InitiateUpgradeConnection performs the h2c upgrade spec §6 names:
// settingsHeader is the base64url HTTP2-Settings request header value (or
// "" if the upgrade carried none), and stream 1 is seeded into the
// half-closed state the upgrade leaves it in.
func (c *Connection) InitiateUpgradeConnection(settingsHeader string) error {
	if c.state != StatePrefaceExpected {
		return newProtocolError("connection already initiated")
	}
	if settingsHeader != "" {
		raw, err := base64.RawURLEncoding.DecodeString(settingsHeader)
		if err != nil {
			return newProtocolError("invalid HTTP2-Settings header: %v", err)
		}
		if len(raw)%6 != 0 {
			return newProtocolError("invalid HTTP2-Settings payload length %d", len(raw))
		}
		for i := 0; i+6 <= len(raw); i += 6 {
			id := SettingID(http2utils.BytesToUint16(raw[i : i+2]))
			val := http2utils.BytesToUint32(raw[i+2 : i+6])
			if ok, code, why := validateSettingValue(id, val); !ok {
				return newInvalidSettingsValueError(id, val, code, why)
			}
			c.remote.set(id, val)
		}
	}

	streamID := uint32(1)
	s := newStream(streamID, c.remote.InitialWindowSize, c.local.InitialWindowSize)
	if c.opts.ClientSide {
		s.state = StreamHalfClosedLocal
		s.localInitiated = true
	} else {
		s.state = StreamHalfClosedRemote
		s.localInitiated = false
	}
	c.streams.insert(s)
	c.highestPeerStreamID = streamID
	c.highestLocalStreamID = streamID

	if c.opts.ClientSide {
		c.out.WriteString(http2.ClientPreface)
	}
	if err := c.framer.WriteSettings(localSettingsWire(c.local)...); err != nil {
		return err
	}
	c.settingsInFlight = true
	c.state = StatePrefaceSent
	return nil
}

func localSettingsWire(s *Settings) []http2.Setting {
	out := []http2.Setting{
		{ID: SettingHeaderTableSize, Val: s.HeaderTableSize},
		{ID: SettingEnablePush, Val: boolToUint32(s.EnablePush)},
		{ID: SettingMaxConcurrentStreams, Val: s.MaxConcurrentStreams},
		{ID: SettingInitialWindowSize, Val: s.InitialWindowSize},
		{ID: SettingMaxFrameSize, Val: s.MaxFrameSize},
	}
	if s.MaxHeaderListSize != 0 {
		out = append(out, http2.Setting{ID: SettingMaxHeaderListSize, Val: s.MaxHeaderListSize})
	}
	return out
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func (c *Connection) checkOperable() error {
	if c.terminal {
		return newProtocolError("connection is closed; only DataToSend remains valid")
	}
	return nil
}

// checkNewLocalStreamID validates and records a stream id this engine is
// about to use to initiate a stream (clientInitiated picks which parity is
// legal: true for a client-role request, false for a server-role push).
func (c *Connection) checkNewLocalStreamID(streamID uint32, clientInitiated bool) error {
	if !validateStreamIDParity(streamID, clientInitiated) {
		return newProtocolError("stream id %d has the wrong parity for this role", streamID)
	}
	if streamID <= c.highestLocalStreamID {
		return newStreamIDTooLowError(streamID, c.highestLocalStreamID)
	}
	if c.goAwayReceived {
		return newProtocolError("cannot initiate stream %d after receiving GOAWAY", streamID)
	}
	if c.localOpenCount >= int(c.remote.MaxConcurrentStreams) {
		return newTooManyStreamsError(streamID)
	}
	c.highestLocalStreamID = streamID
	c.localOpenCount++
	if streamID > maxStreamID-2 {
		c.nextStreamID = maxStreamID + 1
	} else if streamID+2 > c.nextStreamID {
		c.nextStreamID = streamID + 2
	}
	return nil
}

func (c *Connection) checkNewPeerStream(streamID uint32) error {
	if !validateStreamIDParity(streamID, !c.opts.ClientSide) {
		return newProtocolError("peer used stream id %d with the wrong parity", streamID)
	}
	if streamID <= c.highestPeerStreamID {
		return newStreamIDTooLowError(streamID, c.highestPeerStreamID)
	}
	if c.goAwaySent {
		return streamErr(streamID, ErrCodeRefusedStream, "refusing new stream after sending GOAWAY")
	}
	if c.peerOpenCount >= int(c.local.MaxConcurrentStreams) {
		return newTooManyStreamsError(streamID)
	}
	c.highestPeerStreamID = streamID
	c.peerOpenCount++
	return nil
}

func (c *Connection) checkNewPeerPushStream(promisedID uint32) error {
	if promisedID == 0 || promisedID%2 != 0 {
		return newProtocolError("invalid promised stream id %d", promisedID)
	}
	if promisedID <= c.highestPeerStreamID {
		return newStreamIDTooLowError(promisedID, c.highestPeerStreamID)
	}
	c.highestPeerStreamID = promisedID
	c.peerOpenCount++
	return nil
}

// maybeRetire tombstones s once both directions are closed, releasing its
// slot in the relevant open-stream counter (spec §9 "Stream map lifecycle").
func (c *Connection) maybeRetire(s *Stream, reason error) {
	if !s.closed() {
		return
	}
	if s.localInitiated {
		c.localOpenCount--
	} else {
		c.peerOpenCount--
	}
	c.streams.close(s.id, reason)
}

// GetNextAvailableStreamID returns the lowest unused id of this engine's
// parity (spec §4.6), without reserving it: the id is only actually
// consumed once passed to SendHeaders/PushStream.
func (c *Connection) GetNextAvailableStreamID() (uint32, error) {
	if c.nextStreamID == 0 || c.nextStreamID > maxStreamID {
		return 0, &NoAvailableStreamID{}
	}
	return c.nextStreamID, nil
}

func headersToHPACKFields(headers []Header, normalize bool) []hpack.HeaderField {
	out := make([]hpack.HeaderField, len(headers))
	for i, h := range headers {
		name, value := h.Name, h.Value
		if normalize {
			name = strings.TrimSpace(http2utils.ToLower(name))
			value = strings.TrimSpace(value)
		}
		out[i] = hpack.HeaderField{Name: name, Value: value}
	}
	return out
}

func hpackFieldsToHeaders(fields []hpack.HeaderField, normalize bool) []Header {
	out := make([]Header, len(fields))
	for i, f := range fields {
		name, value := f.Name, f.Value
		if normalize {
			name = strings.TrimSpace(http2utils.ToLower(name))
			value = strings.TrimSpace(value)
		}
		out[i] = Header{Name: name, Value: value}
	}
	return out
}

func (c *Connection) encodeHeaderBlock(headers []Header) ([]byte, error) {
	c.encodeBuf.Reset()
	for _, f := range headersToHPACKFields(headers, c.opts.NormalizeOutboundHeaders) {
		if err := c.hpackEncoder.WriteField(f); err != nil {
			return nil, err
		}
	}
	out := make([]byte, c.encodeBuf.Len())
	copy(out, c.encodeBuf.Bytes())
	return out, nil
}

// writeHeaderBlock splits fragment across a HEADERS/PUSH_PROMISE frame and
// as many CONTINUATION frames as needed to respect the peer's advertised
// MAX_FRAME_SIZE — the outbound half of C4's reassembly responsibility.
func (c *Connection) writeHeaderBlock(streamID uint32, fragment []byte, endStream bool, priority *PriorityParams, promisedStreamID uint32, isPush bool) error {
	maxSize := int(c.remote.MaxFrameSize)
	first := fragment
	rest := []byte(nil)
	endHeaders := true
	if len(fragment) > maxSize {
		first = fragment[:maxSize]
		rest = fragment[maxSize:]
		endHeaders = false
	}
	if isPush {
		if err := c.framer.WritePushPromise(http2.PushPromiseParam{
			StreamID: streamID, PromiseID: promisedStreamID, BlockFragment: first, EndHeaders: endHeaders,
		}); err != nil {
			return err
		}
	} else {
		p := http2.HeadersFrameParam{StreamID: streamID, BlockFragment: first, EndStream: endStream, EndHeaders: endHeaders}
		if priority != nil {
			p.Priority = http2.PriorityParam{StreamDep: priority.DependsOn, Exclusive: priority.Exclusive, Weight: priority.Weight}
		}
		if err := c.framer.WriteHeaders(p); err != nil {
			return err
		}
	}
	for len(rest) > 0 {
		chunk := rest
		endHeaders = true
		if len(chunk) > maxSize {
			chunk = rest[:maxSize]
			endHeaders = false
		}
		if err := c.framer.WriteContinuation(streamID, endHeaders, chunk); err != nil {
			return err
		}
		rest = rest[len(chunk):]
	}
	return nil
}

// SendHeaders queues a request (client role) or response (server role)
// HEADERS block, allocating the stream if streamID is new.
func (c *Connection) SendHeaders(streamID uint32, headers []Header, endStream bool, priority *PriorityParams) error {
	if err := c.checkOperable(); err != nil {
		return err
	}
	s := c.streams.get(streamID)
	if s == nil {
		if err := c.checkNewLocalStreamID(streamID, c.opts.ClientSide); err != nil {
			return err
		}
		s = newStream(streamID, c.remote.InitialWindowSize, c.local.InitialWindowSize)
		s.localInitiated = true
		c.streams.insert(s)
	}
	if !c.opts.DisableOutboundHeaderValidation {
		dir := dirResponse
		if !c.isServerRole() {
			dir = dirRequest
		}
		if err := validateHeaderList(streamID, headersToHPACKFields(headers, c.opts.NormalizeOutboundHeaders), dir, false); err != nil {
			return err
		}
	}
	if err := s.transitionSendHeaders(endStream); err != nil {
		return err
	}
	frag, err := c.encodeHeaderBlock(headers)
	if err != nil {
		return err
	}
	if err := c.writeHeaderBlock(streamID, frag, endStream, priority, 0, false); err != nil {
		return err
	}
	c.maybeRetire(s, nil)
	return nil
}

// SendTrailers queues the END_STREAM-flagged trailing HEADERS block (spec
// §4.5 "Trailers").
func (c *Connection) SendTrailers(streamID uint32, trailers []Header) error {
	if err := c.checkOperable(); err != nil {
		return err
	}
	s, err := c.streams.lookup(streamID)
	if err != nil {
		return err
	}
	if !c.opts.DisableOutboundHeaderValidation {
		dir := dirResponse
		if !c.isServerRole() {
			dir = dirRequest
		}
		if err := validateHeaderList(streamID, headersToHPACKFields(trailers, c.opts.NormalizeOutboundHeaders), dir, true); err != nil {
			return err
		}
	}
	if err := s.canSendData(); err != nil {
		return err
	}
	frag, err := c.encodeHeaderBlock(trailers)
	if err != nil {
		return err
	}
	if err := c.writeHeaderBlock(streamID, frag, true, nil, 0, false); err != nil {
		return err
	}
	s.sentTrailers = true
	s.closeSendSide()
	c.maybeRetire(s, nil)
	return nil
}

// PushStream reserves promisedStreamID and queues its PUSH_PROMISE
// (server role only; spec §6 push_stream).
func (c *Connection) PushStream(streamID, promisedStreamID uint32, requestHeaders []Header) error {
	if err := c.checkOperable(); err != nil {
		return err
	}
	if !c.isServerRole() {
		return newProtocolError("only a server role may push a stream")
	}
	if !c.remote.EnablePush {
		return streamErr(streamID, ErrCodeRefusedStream, "peer has disabled push")
	}
	s, err := c.streams.lookup(streamID)
	if err != nil {
		return err
	}
	if s.isPush {
		return newProtocolError("cannot push on stream %d, itself a pushed stream", streamID)
	}
	if err := c.checkNewLocalStreamID(promisedStreamID, false); err != nil {
		return err
	}
	if !c.opts.DisableOutboundHeaderValidation {
		if err := validateHeaderList(promisedStreamID, headersToHPACKFields(requestHeaders, c.opts.NormalizeOutboundHeaders), dirRequest, false); err != nil {
			return err
		}
	}
	ps := newStream(promisedStreamID, c.remote.InitialWindowSize, c.local.InitialWindowSize)
	ps.isPush = true
	ps.localInitiated = true
	ps.state = StreamReservedLocal
	c.streams.insert(ps)
	frag, err := c.encodeHeaderBlock(requestHeaders)
	if err != nil {
		return err
	}
	return c.writeHeaderBlock(streamID, frag, false, nil, promisedStreamID, true)
}

// flushPendingSend drains s.pendingOut as far as the connection and stream
// send windows and MAX_FRAME_SIZE currently allow (spec §9 open question
// #1: SendData buffers rather than raising on an over-window call).
func (c *Connection) flushPendingSend(s *Stream) {
	for len(s.pendingOut) > 0 {
		item := &s.pendingOut[0]
		if len(item.data) == 0 && item.padLength == 0 {
			// A zero-length item consumes no window; it only carries END_STREAM.
			if item.endStream {
				if err := c.framer.WriteData(s.id, true, nil); err != nil {
					return
				}
				s.closeSendSide()
			}
			s.pendingOut = s.pendingOut[1:]
			continue
		}
		avail := minU32(c.remoteWindow.Available(), s.sendWindow.Available())
		if avail == 0 {
			return
		}
		maxChunk := c.remote.MaxFrameSize
		n := uint32(len(item.data))
		isLast := true
		pad := item.padLength
		total := n
		if pad > 0 {
			total += uint32(pad) + 1
		}
		if total > avail || total > maxChunk {
			pad = 0
			limit := avail
			if maxChunk < limit {
				limit = maxChunk
			}
			if n > limit {
				n = limit
				isLast = false
			}
		}
		if n == 0 && pad == 0 {
			return
		}
		chunk := item.data[:n]
		endStream := isLast && item.endStream
		var err error
		if pad > 0 {
			err = c.framer.WriteDataPadded(s.id, endStream, chunk, make([]byte, pad))
		} else {
			err = c.framer.WriteData(s.id, endStream, chunk)
		}
		if err != nil {
			return
		}
		consumed := n
		if pad > 0 {
			consumed += uint32(pad) + 1
		}
		c.remoteWindow.Consume(consumed)
		s.sendWindow.Consume(consumed)
		item.data = item.data[n:]
		if len(item.data) == 0 {
			s.pendingOut = s.pendingOut[1:]
			if endStream {
				s.closeSendSide()
			}
		}
	}
}

func (c *Connection) flushAllPendingSends() {
	c.streams.each(func(s *Stream) {
		if len(s.pendingOut) > 0 {
			c.flushPendingSend(s)
			c.maybeRetire(s, nil)
		}
	})
}

// SendData queues data for streamID, flushing as much as the current flow
// control windows permit immediately and buffering the remainder.
func (c *Connection) SendData(streamID uint32, data []byte, endStream bool, padLength uint8) error {
	if err := c.checkOperable(); err != nil {
		return err
	}
	s, err := c.streams.lookup(streamID)
	if err != nil {
		return err
	}
	if err := s.canSendData(); err != nil {
		return err
	}
	s.pendingOut = append(s.pendingOut, pendingSend{data: data, endStream: endStream, padLength: padLength})
	c.flushPendingSend(s)
	c.maybeRetire(s, nil)
	return nil
}

// ResetStream queues RST_STREAM(streamID, code); pass ErrCodeCancel for
// spec §6's default.
func (c *Connection) ResetStream(streamID uint32, code ErrorCode) error {
	if err := c.checkOperable(); err != nil {
		return err
	}
	s, err := c.streams.lookup(streamID)
	if err != nil {
		return err
	}
	if err := c.framer.WriteRSTStream(streamID, code); err != nil {
		return err
	}
	reason := streamErr(streamID, code, "reset by host")
	s.reset(reason)
	c.maybeRetire(s, reason)
	return nil
}

// IncrementFlowControlWindow issues a WINDOW_UPDATE; streamID 0 targets the
// connection-level window.
func (c *Connection) IncrementFlowControlWindow(increment uint32, streamID uint32) error {
	if err := c.checkOperable(); err != nil {
		return err
	}
	if streamID == 0 {
		if err := c.localWindow.Increment(increment); err != nil {
			return newFlowControlError(0, "%v", err)
		}
		return c.framer.WriteWindowUpdate(0, increment)
	}
	s, err := c.streams.lookup(streamID)
	if err != nil {
		return err
	}
	if err := s.recvWindow.Increment(increment); err != nil {
		return newFlowControlError(streamID, "%v", err)
	}
	return c.framer.WriteWindowUpdate(streamID, increment)
}

func (c *Connection) flushPendingLocalSettings() error {
	changes := c.pendingLocalSettings
	c.pendingLocalSettings = make(map[SettingID]uint32)
	wire, err := c.local.updateLocal(changes)
	if err != nil {
		return err
	}
	if err := c.framer.WriteSettings(wire...); err != nil {
		return err
	}
	c.settingsInFlight = true
	return nil
}

// UpdateSettings validates changes and either queues them as a new SETTINGS
// frame or, if one is already outstanding and unacknowledged, coalesces
// them into the batch that will be sent once the in-flight frame is ACKed
// (spec §9 open question #3).
func (c *Connection) UpdateSettings(changes map[SettingID]uint32) error {
	if err := c.checkOperable(); err != nil {
		return err
	}
	if _, err := settingsAsWire(changes); err != nil {
		return err
	}
	for id, v := range changes {
		c.pendingLocalSettings[id] = v
	}
	if !c.settingsInFlight {
		return c.flushPendingLocalSettings()
	}
	return nil
}

// Ping queues a non-ACK PING carrying the given opaque payload.
func (c *Connection) Ping(data [8]byte) error {
	if err := c.checkOperable(); err != nil {
		return err
	}
	return c.framer.WritePing(false, data)
}

// CloseConnection queues a GOAWAY; repeated calls are allowed and never
// raise (spec §4.6). After the first call, every other host operation
// fails except DataToSend/ReceiveData.
func (c *Connection) CloseConnection(code ErrorCode, additionalData []byte) error {
	if err := c.framer.WriteGoAway(c.highestPeerStreamID, code, additionalData); err != nil {
		return err
	}
	c.goAwaySent = true
	c.terminal = true
	c.state = StateClosed
	return nil
}

// terminateConnection is the internal path a dispatch-time ConnectionError
// takes: queue GOAWAY, mark the engine terminal, and build the
// ConnectionTerminated event to emit.
func (c *Connection) terminateConnection(code ErrorCode) *ConnectionTerminated {
	c.log.WithFields(logrus.Fields{
		"last_stream_id": c.highestPeerStreamID,
		"code":           code,
	}).Debug("terminating connection, queuing GOAWAY")
	_ = c.framer.WriteGoAway(c.highestPeerStreamID, code, nil)
	c.goAwaySent = true
	c.terminal = true
	c.state = StateClosed
	c.assembler.abort()
	return &ConnectionTerminated{LastStreamID: c.highestPeerStreamID, ErrorCode: code}
}

// AcknowledgeReceivedData is a no-op under this engine's policy of always
// auto-replenishing both the stream and connection receive windows as soon
// as DATA is processed (see handleData); it exists so a host written
// against spec.md §6's optional manual-ack call still compiles and works.
func (c *Connection) AcknowledgeReceivedData(streamID uint32, flowControlledLength uint32) error {
	return c.checkOperable()
}

// AcknowledgeSettings is a no-op for the same reason: inbound SETTINGS
// frames are ACKed synchronously inside handleSettings.
func (c *Connection) AcknowledgeSettings() error {
	return c.checkOperable()
}

// DataToSend returns up to amt bytes (or all of them, if amt is omitted)
// from the outbound buffer and discards what it returns.
func (c *Connection) DataToSend(amt ...int) []byte {
	n := c.out.Len()
	if len(amt) > 0 && amt[0] >= 0 && amt[0] < n {
		n = amt[0]
	}
	return append([]byte(nil), c.out.Next(n)...)
}

const frameHeaderLen = 9

// frameTypeAltSvc is RFC 7838 §4's frame type; golang.org/x/net/http2 has no
// constant for it since it never parses ALTSVC itself (see altsvc.go).
const frameTypeAltSvc http2.FrameType = 0xa

// peekFramePayloadLen reads the 3-byte length prefix of the next frame
// header in buf, if enough bytes are buffered to do so.
func peekFramePayloadLen(buf []byte) (uint32, bool) {
	if len(buf) < frameHeaderLen {
		return 0, false
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), true
}

// readOneFrame parses exactly one frame from a slice already known to hold
// its full header+payload, using a fresh Framer over a bytes.Reader — the
// engine never blocks waiting for bytes that might not have arrived yet.
func (c *Connection) readOneFrame(b []byte) (http2.Frame, error) {
	fr := http2.NewFramer(nil, bytes.NewReader(b))
	fr.SetMaxReadFrameSize(uint32(len(b)))
	fr.ReadMetaHeaders = nil
	frame, err := fr.ReadFrame()
	if err != nil {
		return nil, newProtocolError("frame parse error: %v", err)
	}
	return frame, nil
}

// ReceiveData feeds inbound bytes to the engine and returns every event
// they produced, in strict arrival order (spec §4.7/§5).
func (c *Connection) ReceiveData(data []byte) ([]Event, error) {
	c.in = append(c.in, data...)
	var events []Event

	for {
		if !c.opts.ClientSide && !c.prefaceConsumed {
			want := len(http2.ClientPreface)
			if len(c.in) < want {
				break
			}
			if string(c.in[:want]) != http2.ClientPreface {
				ev := c.terminateConnection(ErrCodeProtocol)
				return append(events, ev), nil
			}
			c.in = c.in[want:]
			c.prefaceConsumed = true
			c.state = StateEstablished
			continue
		}
		if c.opts.ClientSide && c.state == StatePrefaceSent {
			c.state = StateEstablished
		}

		payloadLen, ok := peekFramePayloadLen(c.in)
		if !ok {
			break
		}
		if err := validateFrameSize(payloadLen, c.local.MaxFrameSize); err != nil {
			ev, stop := c.handleDispatchError(err)
			events = append(events, ev...)
			if stop {
				return events, nil
			}
			// frame size errors are always connection-scoped; stop is
			// always true above, but keep the loop well-formed.
			break
		}
		total := frameHeaderLen + int(payloadLen)
		if len(c.in) < total {
			break
		}
		frameBytes := c.in[:total]
		c.in = c.in[total:]

		frame, err := c.readOneFrame(frameBytes)
		if err != nil {
			ev, stop := c.handleDispatchError(err)
			events = append(events, ev...)
			if stop {
				return events, nil
			}
			continue
		}

		evs, err := c.dispatch(frame)
		if err != nil {
			ev, stop := c.handleDispatchError(err)
			events = append(events, ev...)
			if stop {
				return events, nil
			}
			continue
		}
		events = append(events, evs...)
	}
	return events, nil
}

// handleDispatchError classifies err per spec §4.8/§7: connection-scoped
// errors terminate the connection and stop the ReceiveData loop;
// stream-scoped errors reset just that stream and processing continues.
func (c *Connection) handleDispatchError(err error) ([]Event, bool) {
	if _, ok := err.(*StreamClosedError); ok {
		return nil, false
	}
	if _, ok := err.(*NoSuchStreamError); ok {
		return nil, false
	}
	if fe, ok := err.(*FlowControlError); ok {
		if ce, ok := fe.AsConnError(); ok {
			return []Event{c.terminateConnection(ce.Code)}, true
		}
		if se, ok := fe.AsStreamError(); ok {
			return []Event{c.resetStreamLocally(se.StreamID, se.Code)}, false
		}
	}
	if ce, ok := err.(interface{ Unwrap() error }); ok {
		if inner, ok := ce.Unwrap().(*ConnectionError); ok {
			return []Event{c.terminateConnection(inner.Code)}, true
		}
	}
	if ce, ok := err.(*ConnectionError); ok {
		return []Event{c.terminateConnection(ce.Code)}, true
	}
	if se, ok := err.(*StreamError); ok {
		return []Event{c.resetStreamLocally(se.StreamID, se.Code)}, false
	}
	if tm, ok := err.(*TooManyStreamsError); ok {
		return []Event{c.resetStreamLocally(tm.StreamID, tm.Code)}, false
	}
	return []Event{c.terminateConnection(ErrCodeInternal)}, true
}

func (c *Connection) resetStreamLocally(streamID uint32, code ErrorCode) Event {
	reason := streamErr(streamID, code, "reset by engine after peer protocol violation")
	c.log.WithFields(logrus.Fields{"stream_id": streamID, "code": code}).Debug("resetting stream locally")
	if s := c.streams.get(streamID); s != nil {
		_ = c.framer.WriteRSTStream(streamID, code)
		s.reset(reason)
		c.maybeRetire(s, reason)
	}
	return &StreamReset{streamID: streamID, ErrorCode: code, RemoteReset: false}
}

// dispatch routes one parsed frame to its handler, first enforcing the
// "only CONTINUATION may follow an in-progress header block" invariant
// (spec §4.4, §8 property 5).
func (c *Connection) dispatch(fr http2.Frame) ([]Event, error) {
	fh := fr.Header()
	if c.assembler.InProgress() {
		if _, ok := fr.(*http2.ContinuationFrame); !ok {
			return nil, newProtocolError("%s frame received while header block for stream %d is in progress", fh.Type, c.assembler.InProgressStreamID())
		}
	}
	if err := validateFrameHeader(fh); err != nil {
		return nil, err
	}
	switch f := fr.(type) {
	case *http2.DataFrame:
		return c.handleData(f)
	case *http2.HeadersFrame:
		return c.handleHeaders(f)
	case *http2.PriorityFrame:
		return c.handlePriority(f)
	case *http2.RSTStreamFrame:
		return c.handleRSTStream(f)
	case *http2.SettingsFrame:
		return c.handleSettings(f)
	case *http2.PushPromiseFrame:
		return c.handlePushPromise(f)
	case *http2.PingFrame:
		return c.handlePing(f)
	case *http2.GoAwayFrame:
		return c.handleGoAway(f)
	case *http2.WindowUpdateFrame:
		return c.handleWindowUpdate(f)
	case *http2.ContinuationFrame:
		return c.handleContinuation(f)
	case *http2.UnknownFrame:
		return c.handleUnknown(fh, f.Payload())
	default:
		return nil, nil
	}
}

func (c *Connection) queueWindowUpdate(streamID, increment uint32) {
	if increment == 0 {
		return
	}
	if err := c.framer.WriteWindowUpdate(streamID, increment); err != nil {
		return
	}
	if streamID == 0 {
		_ = c.localWindow.Increment(increment)
		return
	}
	if s := c.streams.get(streamID); s != nil {
		_ = s.recvWindow.Increment(increment)
	}
}

func (c *Connection) handleData(f *http2.DataFrame) ([]Event, error) {
	fh := f.Header()
	streamID := fh.StreamID
	flowLen := uint32(fh.Length)

	if flowLen > c.localWindow.Available() {
		return nil, newFlowControlError(0, "DATA of %d flow-controlled bytes exceeds connection receive window", flowLen)
	}
	c.localWindow.Consume(flowLen)

	s, lookupErr := c.streams.lookup(streamID)
	if lookupErr != nil {
		c.queueWindowUpdate(0, flowLen)
		return nil, lookupErr
	}
	if flowLen > s.recvWindow.Available() {
		return nil, newFlowControlError(streamID, "DATA of %d flow-controlled bytes exceeds stream receive window", flowLen)
	}
	s.recvWindow.Consume(flowLen)

	if err := s.transitionRecvData(f.StreamEnded()); err != nil {
		return nil, err
	}
	s.addRecvBody(len(f.Data()))

	c.queueWindowUpdate(streamID, flowLen)
	c.queueWindowUpdate(0, flowLen)

	ev := &DataReceived{Data: append([]byte(nil), f.Data()...), FlowControlledLength: flowLen, streamID: streamID}
	events := []Event{ev}
	if f.StreamEnded() {
		if err := s.checkContentLength(); err != nil {
			return nil, err
		}
		se := &StreamEnded{streamID: streamID}
		ev.StreamEnded = se
		events = append(events, se)
		c.maybeRetire(s, nil)
	}
	return events, nil
}

func (c *Connection) handleHeaders(f *http2.HeadersFrame) ([]Event, error) {
	fh := f.Header()
	streamID := fh.StreamID
	s := c.streams.get(streamID)
	if s == nil {
		if _, err := c.streams.lookup(streamID); err != nil {
			if _, ok := err.(*StreamClosedError); ok {
				return nil, streamErr(streamID, ErrCodeStreamClosed, "HEADERS received for closed stream")
			}
		}
		if err := c.checkNewPeerStream(streamID); err != nil {
			return nil, err
		}
		s = newStream(streamID, c.remote.InitialWindowSize, c.local.InitialWindowSize)
		c.streams.insert(s)
	}

	var priority *PriorityUpdated
	if f.HasPriority() {
		p := f.Priority
		priority = &PriorityUpdated{streamID: streamID, DependsOn: p.StreamDep, Exclusive: p.Exclusive, Weight: p.Weight}
	}

	fragment := append([]byte(nil), f.HeaderBlockFragment()...)
	complete, done, err := c.assembler.startHeaders(streamID, fragment, f.StreamEnded(), f.HeadersEnded(), priority)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, nil
	}
	return c.finishHeaderBlock(streamID, complete, f.StreamEnded(), priority, blockHeaders, 0)
}

func (c *Connection) handleContinuation(f *http2.ContinuationFrame) ([]Event, error) {
	streamID := f.Header().StreamID
	fragment := append([]byte(nil), f.HeaderBlockFragment()...)
	complete, done, blk, err := c.assembler.continuation(streamID, fragment, f.HeadersEnded())
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, nil
	}
	kind := blockHeaders
	var priority *PriorityUpdated
	var promisedID uint32
	var endStream bool
	if blk != nil {
		kind = blk.kind
		priority = blk.priority
		promisedID = blk.promisedStreamID
		endStream = blk.endStream
	}
	return c.finishHeaderBlock(streamID, complete, endStream, priority, kind, promisedID)
}

func (c *Connection) finishHeaderBlock(streamID uint32, raw []byte, endStream bool, priority *PriorityUpdated, kind headerBlockKind, promisedStreamID uint32) ([]Event, error) {
	c.decodeBuf = c.decodeBuf[:0]
	if _, err := c.hpackDecoder.Write(raw); err != nil {
		return nil, &ConnectionError{Code: ErrCodeCompression, Msg: err.Error()}
	}
	if err := c.hpackDecoder.Close(); err != nil {
		return nil, &ConnectionError{Code: ErrCodeCompression, Msg: err.Error()}
	}
	fields := append([]hpack.HeaderField(nil), c.decodeBuf...)
	c.decodeBuf = c.decodeBuf[:0]

	var s *Stream
	if kind == blockHeaders {
		s = c.streams.get(streamID)
	}
	isTrailer := kind == blockHeaders && s != nil && s.recvFinal

	dir := dirResponse
	if kind == blockPushPromise || c.isServerRole() {
		dir = dirRequest
	}

	if !c.opts.DisableInboundHeaderValidation {
		if err := validateHeaderList(streamID, fields, dir, isTrailer); err != nil {
			return nil, err
		}
	}

	headers := hpackFieldsToHeaders(fields, c.opts.NormalizeInboundHeaders)

	if kind == blockPushPromise {
		return c.finishPushPromise(streamID, promisedStreamID, headers)
	}
	if isTrailer {
		return c.finishTrailers(streamID, s, headers, endStream)
	}
	return c.finishMessageHeaders(streamID, s, headers, endStream, priority)
}

func (c *Connection) finishMessageHeaders(streamID uint32, s *Stream, headers []Header, endStream bool, priority *PriorityUpdated) ([]Event, error) {
	if err := s.transitionRecvHeaders(endStream); err != nil {
		return nil, err
	}

	is1xx := false
	if !c.isServerRole() {
		for _, h := range headers {
			if h.Name == ":status" && len(h.Value) > 0 && h.Value[0] == '1' {
				is1xx = true
				break
			}
		}
	}
	if is1xx && endStream {
		return nil, streamErr(streamID, ErrCodeProtocol, "informational response carries END_STREAM")
	}
	if !is1xx {
		s.noteContentLength(headers)
	}
	if endStream {
		if err := s.checkContentLength(); err != nil {
			return nil, err
		}
	}

	var events []Event
	var se *StreamEnded
	if endStream {
		se = &StreamEnded{streamID: streamID}
	}

	switch {
	case c.isServerRole():
		events = append(events, &RequestReceived{Headers: headers, streamID: streamID, StreamEnded: se, PriorityUpdated: priority})
		s.recvFinal = true
	case is1xx:
		events = append(events, &InformationalResponseReceived{Headers: headers, streamID: streamID})
	default:
		events = append(events, &ResponseReceived{Headers: headers, streamID: streamID, StreamEnded: se, PriorityUpdated: priority})
		s.recvFinal = true
	}

	if priority != nil {
		events = append(events, priority)
	}
	if se != nil {
		events = append(events, se)
		c.maybeRetire(s, nil)
	}
	return events, nil
}

func (c *Connection) finishTrailers(streamID uint32, s *Stream, headers []Header, endStream bool) ([]Event, error) {
	if !endStream {
		return nil, streamErr(streamID, ErrCodeProtocol, "trailers missing END_STREAM")
	}
	if err := s.transitionRecvHeaders(endStream); err != nil {
		return nil, err
	}
	if err := s.checkContentLength(); err != nil {
		return nil, err
	}
	s.recvTrailers = true
	se := &StreamEnded{streamID: streamID}
	ev := &TrailersReceived{Headers: headers, streamID: streamID, StreamEnded: se}
	c.maybeRetire(s, nil)
	return []Event{ev, se}, nil
}

func (c *Connection) finishPushPromise(parentID, promisedID uint32, headers []Header) ([]Event, error) {
	ev := &PushedStreamReceived{ParentStreamID: parentID, PromisedStreamID: promisedID, Headers: headers, streamID: promisedID}
	return []Event{ev}, nil
}

func (c *Connection) handlePushPromise(f *http2.PushPromiseFrame) ([]Event, error) {
	fh := f.Header()
	parentID := fh.StreamID
	promisedID := f.PromiseID
	if !c.local.EnablePush {
		return nil, newProtocolError("PUSH_PROMISE received while local ENABLE_PUSH is 0")
	}
	parent, err := c.streams.lookup(parentID)
	if err != nil {
		return nil, err
	}
	if parent.isPush {
		return nil, newProtocolError("PUSH_PROMISE associated with stream %d, itself a pushed stream", parentID)
	}
	if err := c.checkNewPeerPushStream(promisedID); err != nil {
		return nil, err
	}
	ps := newStream(promisedID, c.remote.InitialWindowSize, c.local.InitialWindowSize)
	ps.isPush = true
	ps.localInitiated = false
	ps.state = StreamReservedRemote
	c.streams.insert(ps)

	fragment := append([]byte(nil), f.HeaderBlockFragment()...)
	complete, done, err := c.assembler.startPushPromise(parentID, promisedID, fragment, f.HeadersEnded())
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, nil
	}
	return c.finishHeaderBlock(parentID, complete, false, nil, blockPushPromise, promisedID)
}

func (c *Connection) handlePriority(f *http2.PriorityFrame) ([]Event, error) {
	ev := &PriorityUpdated{streamID: f.Header().StreamID, DependsOn: f.StreamDep, Exclusive: f.Exclusive, Weight: f.Weight}
	return []Event{ev}, nil
}

func (c *Connection) handleRSTStream(f *http2.RSTStreamFrame) ([]Event, error) {
	streamID := f.Header().StreamID
	s, err := c.streams.lookup(streamID)
	if err != nil {
		return nil, err
	}
	reason := streamErr(streamID, f.ErrCode, "RST_STREAM from peer")
	s.reset(reason)
	c.maybeRetire(s, reason)
	return []Event{&StreamReset{streamID: streamID, ErrorCode: f.ErrCode, RemoteReset: true}}, nil
}

func (c *Connection) handleSettings(f *http2.SettingsFrame) ([]Event, error) {
	if err := validateSettingsACKEmpty(f.IsAck(), int(f.Header().Length)); err != nil {
		return nil, err
	}
	if f.IsAck() {
		ids := c.local.receiveAck()
		c.settingsInFlight = false
		var events []Event
		if len(ids) > 0 {
			events = append(events, &SettingsAcknowledged{ChangedIDs: ids})
			for _, id := range ids {
				if id == SettingHeaderTableSize {
					c.hpackDecoder.SetMaxDynamicTableSize(c.local.HeaderTableSize)
				}
			}
		}
		if len(c.pendingLocalSettings) > 0 {
			if err := c.flushPendingLocalSettings(); err != nil {
				return events, err
			}
		}
		return events, nil
	}

	deltas, err := c.remote.receiveRemote(f)
	if err != nil {
		return nil, err
	}
	for _, d := range deltas {
		if d.ID == SettingInitialWindowSize {
			if overflowID, ok := c.streams.applySendWindowDelta(int64(d.NewValue) - int64(d.OldValue)); !ok {
				return nil, newFlowControlError(0, "INITIAL_WINDOW_SIZE change overflows stream %d's send window past 2^31-1", overflowID)
			}
		}
	}
	if err := c.framer.WriteSettingsAck(); err != nil {
		return nil, err
	}
	var events []Event
	if len(deltas) > 0 {
		events = append(events, &RemoteSettingsChanged{Changed: deltas})
	}
	c.flushAllPendingSends()
	return events, nil
}

func (c *Connection) handlePing(f *http2.PingFrame) ([]Event, error) {
	if f.IsAck() {
		return []Event{&PingAcknowledged{Data: f.Data}}, nil
	}
	if err := c.framer.WritePing(true, f.Data); err != nil {
		return nil, err
	}
	return []Event{&PingReceived{Data: f.Data}}, nil
}

func (c *Connection) handleGoAway(f *http2.GoAwayFrame) ([]Event, error) {
	c.goAwayReceived = true
	c.state = StateGoAwayReceived
	ev := &ConnectionTerminated{LastStreamID: f.LastStreamID, ErrorCode: f.ErrCode, AdditionalData: append([]byte(nil), f.DebugData()...)}
	return []Event{ev}, nil
}

func (c *Connection) handleWindowUpdate(f *http2.WindowUpdateFrame) ([]Event, error) {
	streamID := f.Header().StreamID
	if streamID == 0 {
		if err := c.remoteWindow.Increment(f.Increment); err != nil {
			return nil, newFlowControlError(0, "connection WINDOW_UPDATE: %v", err)
		}
		c.flushAllPendingSends()
		return []Event{&WindowUpdated{streamID: 0, Increment: f.Increment}}, nil
	}
	s, err := c.streams.lookup(streamID)
	if err != nil {
		return nil, err
	}
	if err := s.sendWindow.Increment(f.Increment); err != nil {
		return nil, newFlowControlError(streamID, "stream WINDOW_UPDATE: %v", err)
	}
	c.flushPendingSend(s)
	c.maybeRetire(s, nil)
	return []Event{&WindowUpdated{streamID: streamID, Increment: f.Increment}}, nil
}

func (c *Connection) handleUnknown(fh http2.FrameHeader, payload []byte) ([]Event, error) {
	if fh.Type == frameTypeAltSvc {
		return c.handleAltSvc(fh, payload)
	}
	return nil, nil
}
