package http2

// headerBlockKind distinguishes the two frame types that can start a
// header block (spec §3 data model: "kind: HEADERS|PUSH_PROMISE").
type headerBlockKind int

const (
	blockHeaders headerBlockKind = iota
	blockPushPromise
)

// headerBlockInProgress is the "in-progress header block descriptor" spec
// §3 names on the Connection: the one piece of state that makes CONTINUATION
// reassembly possible, and the thing that makes "only one header block in
// flight at a time" an enforceable invariant (spec §3, §4.4, §9 "HPACK
// table coupling").
// maxContinuationFrames bounds how many CONTINUATION frames a single header
// block may span before the engine treats the peer as flooding it with
// near-empty frames to exhaust CPU (RFC 7540 §10.5-style abuse; spec §4.8's
// DenialOfServiceError).
const maxContinuationFrames = 4096

type headerBlockInProgress struct {
	streamID  uint32
	kind      headerBlockKind
	fragments []byte
	endStream bool

	// continuationCount is the number of CONTINUATION frames folded into
	// fragments so far (the initial HEADERS/PUSH_PROMISE frame doesn't
	// count).
	continuationCount int

	// priority carries a HEADERS frame's inline priority fields, if any,
	// through to the moment the block completes (kind == blockHeaders
	// only).
	priority *PriorityUpdated

	// promisedStreamID is set only for kind == blockPushPromise.
	promisedStreamID uint32
}

// headerBlockAssembler is the C4 component. It owns at most one
// headerBlockInProgress at a time; startHeaders and startPushPromise fail
// if one is already open (the caller is expected to have already turned
// "non-CONTINUATION frame while a block is open" into a connection
// PROTOCOL_ERROR per spec §4.4, but they double-check defensively).
type headerBlockAssembler struct {
	inProgress *headerBlockInProgress
}

func (a *headerBlockAssembler) InProgress() bool { return a.inProgress != nil }

// InProgressStreamID returns the stream id of the open block, or 0 if none.
func (a *headerBlockAssembler) InProgressStreamID() uint32 {
	if a.inProgress == nil {
		return 0
	}
	return a.inProgress.streamID
}

// startHeaders begins (and, if endHeaders, immediately completes) a header
// block from a HEADERS frame. On completion it returns the concatenated
// fragments ready for hpack.Decoder.Write.
func (a *headerBlockAssembler) startHeaders(streamID uint32, fragment []byte, endStream, endHeaders bool, priority *PriorityUpdated) ([]byte, bool, error) {
	if a.inProgress != nil {
		return nil, false, newProtocolError("HEADERS received while header block for stream %d is in progress", a.inProgress.streamID)
	}
	blk := &headerBlockInProgress{streamID: streamID, kind: blockHeaders, endStream: endStream, priority: priority}
	blk.fragments = append(blk.fragments, fragment...)
	if endHeaders {
		return blk.fragments, true, nil
	}
	a.inProgress = blk
	return nil, false, nil
}

// startPushPromise begins a header block from a PUSH_PROMISE frame.
func (a *headerBlockAssembler) startPushPromise(streamID, promisedStreamID uint32, fragment []byte, endHeaders bool) ([]byte, bool, error) {
	if a.inProgress != nil {
		return nil, false, newProtocolError("PUSH_PROMISE received while header block for stream %d is in progress", a.inProgress.streamID)
	}
	blk := &headerBlockInProgress{streamID: streamID, kind: blockPushPromise, promisedStreamID: promisedStreamID}
	blk.fragments = append(blk.fragments, fragment...)
	if endHeaders {
		return blk.fragments, true, nil
	}
	a.inProgress = blk
	return nil, false, nil
}

// continuation appends a CONTINUATION frame's fragment to the in-progress
// block. streamID must match the block's stream id (spec §4.4: "only
// CONTINUATION frames for the same stream id may follow").
func (a *headerBlockAssembler) continuation(streamID uint32, fragment []byte, endHeaders bool) ([]byte, bool, *headerBlockInProgress, error) {
	blk := a.inProgress
	if blk == nil {
		return nil, false, nil, newProtocolError("CONTINUATION received with no header block in progress")
	}
	if streamID != blk.streamID {
		return nil, false, nil, newProtocolError("CONTINUATION for stream %d while stream %d's header block is in progress", streamID, blk.streamID)
	}
	blk.continuationCount++
	if blk.continuationCount > maxContinuationFrames {
		a.inProgress = nil
		return nil, false, nil, newDenialOfServiceError("header block for stream %d spans more than %d CONTINUATION frames", streamID, maxContinuationFrames)
	}
	blk.fragments = append(blk.fragments, fragment...)
	if !endHeaders {
		return nil, false, nil, nil
	}
	a.inProgress = nil
	return blk.fragments, true, blk, nil
}

// abort clears an in-progress block without decoding it, used when the
// connection is being torn down mid-block.
func (a *headerBlockAssembler) abort() {
	a.inProgress = nil
}
