package http2

import (
	"golang.org/x/net/http2"
)

// SettingID re-exports golang.org/x/net/http2.SettingID.
type SettingID = http2.SettingID

// Re-export the wire ids so callers spelling http2.SettingHeaderTableSize
// et al. don't need to import golang.org/x/net/http2 themselves.
const (
	SettingHeaderTableSize      = http2.SettingHeaderTableSize
	SettingEnablePush           = http2.SettingEnablePush
	SettingMaxConcurrentStreams = http2.SettingMaxConcurrentStreams
	SettingInitialWindowSize    = http2.SettingInitialWindowSize
	SettingMaxFrameSize         = http2.SettingMaxFrameSize
	SettingMaxHeaderListSize    = http2.SettingMaxHeaderListSize
)

const (
	// defaultHeaderTableSize is the RFC 7540 §6.5.2 default.
	defaultHeaderTableSize uint32 = 4096
	// defaultLocalMaxConcurrentStreams deviates from the RFC's "unlimited"
	// default for defensive reasons, per spec §4.1.
	defaultLocalMaxConcurrentStreams uint32 = 100
	defaultInitialWindowSize uint32 = 65535
	defaultMaxFrameSize      uint32 = 1 << 14
	maxAllowedFrameSize      uint32 = 1<<24 - 1
	maxAllowedWindowSize     uint32 = 1<<31 - 1
)

// settingsChange is one queued-but-not-yet-acknowledged local change, kept
// so ReceiveAck knows what to apply (spec §3 "pending changes").
type settingsChange struct {
	id       http2.SettingID
	oldValue uint32
	newValue uint32
}

// Settings is the C1 settings registry: one side's (local or remote)
// current values plus, for the local side, the queue of changes sent but
// not yet acknowledged.
type Settings struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32 // 0 means "unset/unlimited"

	pending []settingsChange
}

// newLocalSettings returns the defaults this engine advertises to a peer.
func newLocalSettings() *Settings {
	return &Settings{
		HeaderTableSize:      defaultHeaderTableSize,
		EnablePush:           true,
		MaxConcurrentStreams: defaultLocalMaxConcurrentStreams,
		InitialWindowSize:    defaultInitialWindowSize,
		MaxFrameSize:         defaultMaxFrameSize,
	}
}

// newRemoteSettings returns the RFC defaults assumed for a peer until its
// own SETTINGS frame arrives.
func newRemoteSettings() *Settings {
	return &Settings{
		HeaderTableSize:      defaultHeaderTableSize,
		EnablePush:           true,
		MaxConcurrentStreams: 1<<32 - 1, // RFC 7540: "unlimited" until stated otherwise
		InitialWindowSize:    defaultInitialWindowSize,
		MaxFrameSize:         defaultMaxFrameSize,
	}
}

func (s *Settings) get(id http2.SettingID) uint32 {
	switch id {
	case SettingHeaderTableSize:
		return s.HeaderTableSize
	case SettingEnablePush:
		if s.EnablePush {
			return 1
		}
		return 0
	case SettingMaxConcurrentStreams:
		return s.MaxConcurrentStreams
	case SettingInitialWindowSize:
		return s.InitialWindowSize
	case SettingMaxFrameSize:
		return s.MaxFrameSize
	case SettingMaxHeaderListSize:
		return s.MaxHeaderListSize
	}
	return 0
}

func (s *Settings) set(id http2.SettingID, v uint32) {
	switch id {
	case SettingHeaderTableSize:
		s.HeaderTableSize = v
	case SettingEnablePush:
		s.EnablePush = v != 0
	case SettingMaxConcurrentStreams:
		s.MaxConcurrentStreams = v
	case SettingInitialWindowSize:
		s.InitialWindowSize = v
	case SettingMaxFrameSize:
		s.MaxFrameSize = v
	case SettingMaxHeaderListSize:
		s.MaxHeaderListSize = v
	}
}

// validateSettingValue checks one id/value pair per the per-setting rules
// in spec §3's Settings data model, returning the RFC error code to use if
// invalid.
func validateSettingValue(id http2.SettingID, v uint32) (ok bool, code ErrorCode, why string) {
	switch id {
	case SettingEnablePush:
		if v != 0 && v != 1 {
			return false, ErrCodeProtocol, "ENABLE_PUSH must be 0 or 1"
		}
	case SettingInitialWindowSize:
		if v > maxAllowedWindowSize {
			return false, ErrCodeFlowControl, "INITIAL_WINDOW_SIZE exceeds 2^31-1"
		}
	case SettingMaxFrameSize:
		if v < defaultMaxFrameSize || v > maxAllowedFrameSize {
			return false, ErrCodeProtocol, "MAX_FRAME_SIZE out of [2^14, 2^24-1]"
		}
	case SettingHeaderTableSize, SettingMaxConcurrentStreams, SettingMaxHeaderListSize:
		// no additional bounds beyond fitting in uint32.
	default:
		// unknown setting ids are ignored per RFC 7540 §6.5.2, not rejected.
	}
	return true, 0, ""
}

// settingsAsWire converts each (id, value) the caller wants to change into
// the golang.org/x/net/http2.Setting values WriteSettings needs, validating
// each one first.
func settingsAsWire(changes map[http2.SettingID]uint32) ([]http2.Setting, error) {
	out := make([]http2.Setting, 0, len(changes))
	for id, v := range changes {
		if ok, code, why := validateSettingValue(id, v); !ok {
			return nil, newInvalidSettingsValueError(id, v, code, why)
		}
		out = append(out, http2.Setting{ID: id, Val: v})
	}
	return out, nil
}

// updateLocal validates and queues id=>value changes to be sent in a
// SETTINGS frame; the registry's visible values are not updated until the
// peer ACKs (spec §4.1).
func (s *Settings) updateLocal(changes map[http2.SettingID]uint32) ([]http2.Setting, error) {
	wire, err := settingsAsWire(changes)
	if err != nil {
		return nil, err
	}
	for id, v := range changes {
		s.pending = append(s.pending, settingsChange{id: id, oldValue: s.get(id), newValue: v})
	}
	return wire, nil
}

// receiveAck pops the oldest pending change set and applies it, returning
// the ids that changed (for SettingsAcknowledged bookkeeping upstream).
// The caller is responsible for pushing a HeaderTableSize change into the
// hpack decoder; Settings has no reference to it.
func (s *Settings) receiveAck() []http2.SettingID {
	if len(s.pending) == 0 {
		return nil
	}
	// All pending changes queued before this ACK were coalesced into the
	// single outstanding SETTINGS frame (spec §9 coalescing decision), so
	// one ACK applies the entire pending queue.
	applied := make([]http2.SettingID, 0, len(s.pending))
	for _, c := range s.pending {
		s.set(c.id, c.newValue)
		applied = append(applied, c.id)
	}
	s.pending = s.pending[:0]
	return applied
}

// settingDelta describes one changed value, used by RemoteSettingsChanged.
type settingDelta struct {
	ID       http2.SettingID
	OldValue uint32
	NewValue uint32
}

// receiveRemote validates and applies a full SETTINGS frame from the peer
// immediately (no ACK round trip on the remote side), returning the deltas
// for the RemoteSettingsChanged event or a connection error if any value is
// invalid (spec §4.1).
func (s *Settings) receiveRemote(f *http2.SettingsFrame) ([]settingDelta, error) {
	var deltas []settingDelta
	var outerErr error
	_ = f.ForeachSetting(func(setting http2.Setting) error {
		if outerErr != nil {
			return nil
		}
		ok, code, why := validateSettingValue(setting.ID, setting.Val)
		if !ok {
			outerErr = newInvalidSettingsValueError(setting.ID, setting.Val, code, why)
			return nil
		}
		old := s.get(setting.ID)
		if old != setting.Val {
			deltas = append(deltas, settingDelta{ID: setting.ID, OldValue: old, NewValue: setting.Val})
		}
		s.set(setting.ID, setting.Val)
		return nil
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return deltas, nil
}
