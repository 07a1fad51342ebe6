package http2

// streamMap holds live streams plus a bounded backlog of tombstones for
// streams that have closed, so late frames can be diagnosed as
// "closed" rather than "never existed" (spec §4.5/§9 "Stream map
// lifecycle").
//
// The teacher's streams.go keeps a single sorted slice with no GC at all;
// this engine adds the tombstone backlog the spec calls for, since an
// engine with no I/O and no timers has no other moment to garbage collect.
type streamMap struct {
	live      map[uint32]*Stream
	tombstone map[uint32]error // reason, or nil if simply no longer tracked
	order     []uint32         // tombstone insertion order, oldest first
	backlog   int
}

func newStreamMap(backlog int) *streamMap {
	if backlog <= 0 {
		backlog = 1024
	}
	return &streamMap{
		live:      make(map[uint32]*Stream),
		tombstone: make(map[uint32]error),
		backlog:   backlog,
	}
}

func (m *streamMap) get(id uint32) *Stream {
	return m.live[id]
}

func (m *streamMap) insert(s *Stream) {
	m.live[s.id] = s
}

// close moves a stream from live to tombstoned, evicting the oldest
// tombstone once the backlog is exceeded (spec §9's "small set... then
// lazily garbage collected", sized per SPEC_FULL.md).
func (m *streamMap) close(id uint32, reason error) {
	delete(m.live, id)
	m.tombstone[id] = reason
	m.order = append(m.order, id)
	if len(m.order) > m.backlog {
		evict := m.order[0]
		m.order = m.order[1:]
		delete(m.tombstone, evict)
	}
}

// lookup classifies id for error-reporting purposes: live stream, known
// tombstone (StreamClosedError), or never seen (NoSuchStreamError).
func (m *streamMap) lookup(id uint32) (*Stream, error) {
	if s, ok := m.live[id]; ok {
		return s, nil
	}
	if reason, ok := m.tombstone[id]; ok {
		return nil, &StreamClosedError{NoSuchStreamError: NoSuchStreamError{StreamID: id}, Reason: reason}
	}
	return nil, &NoSuchStreamError{StreamID: id}
}

func (m *streamMap) count() int { return len(m.live) }

// applySendWindowDelta adjusts every live stream's outbound window by delta,
// used when a SETTINGS INITIAL_WINDOW_SIZE change from the peer retroactively
// resizes every already-open stream's send window (RFC 7540 §6.9.2). Returns
// the first stream id whose window would exceed 2^31-1, if any: the caller
// must terminate the connection with FLOW_CONTROL_ERROR in that case (spec
// §4.1).
func (m *streamMap) applySendWindowDelta(delta int64) (overflowStreamID uint32, ok bool) {
	found := false
	for id, s := range m.live {
		if err := s.sendWindow.applySettingsDelta(delta); err != nil {
			if !found || id < overflowStreamID {
				overflowStreamID = id
			}
			found = true
		}
	}
	return overflowStreamID, !found
}

// each calls fn for every live stream, in no particular order.
func (m *streamMap) each(fn func(*Stream)) {
	for _, s := range m.live {
		fn(s)
	}
}
