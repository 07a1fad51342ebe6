package http2

import (
	"fmt"

	"golang.org/x/net/http2"
)

// ErrorCode is an RFC 7540 §7 error code. It is a re-export of
// golang.org/x/net/http2.ErrCode so callers never need to import that
// package themselves just to compare codes.
type ErrorCode = http2.ErrCode

// RFC 7540 §7 error codes, re-exported from golang.org/x/net/http2 so the
// rest of this package (and its hosts) can spell them without importing
// x/net/http2 directly.
const (
	ErrCodeNo                 = http2.ErrCodeNo
	ErrCodeProtocol           = http2.ErrCodeProtocol
	ErrCodeInternal           = http2.ErrCodeInternal
	ErrCodeFlowControl        = http2.ErrCodeFlowControl
	ErrCodeSettingsTimeout    = http2.ErrCodeSettingsTimeout
	ErrCodeStreamClosed       = http2.ErrCodeStreamClosed
	ErrCodeFrameSize          = http2.ErrCodeFrameSize
	ErrCodeRefusedStream      = http2.ErrCodeRefusedStream
	ErrCodeCancel             = http2.ErrCodeCancel
	ErrCodeCompression        = http2.ErrCodeCompression
	ErrCodeConnect            = http2.ErrCodeConnect
	ErrCodeEnhanceYourCalm    = http2.ErrCodeEnhanceYourCalm
	ErrCodeInadequateSecurity = http2.ErrCodeInadequateSecurity
	ErrCodeHTTP11Required     = http2.ErrCodeHTTP11Required
)

// ConnectionError is a connection-scoped protocol violation. Raising one
// from a dispatch path causes the engine to queue a GOAWAY with Code and
// emit a ConnectionTerminated event (spec §4.8, §7).
type ConnectionError struct {
	Code ErrorCode
	Msg  string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s: %s", e.Code, e.Msg)
}

func connErr(code ErrorCode, format string, args ...interface{}) *ConnectionError {
	return &ConnectionError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// StreamError is a stream-scoped protocol violation. Raising one causes the
// engine to queue RST_STREAM(StreamID, Code) and emit
// StreamReset{RemoteReset: false} instead of tearing down the connection.
type StreamError struct {
	StreamID uint32
	Code     ErrorCode
	Msg      string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %d error: %s: %s", e.StreamID, e.Code, e.Msg)
}

func streamErr(id uint32, code ErrorCode, format string, args ...interface{}) *StreamError {
	return &StreamError{StreamID: id, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// The named error types from spec §4.8. They are thin, documented aliases
// over ConnectionError/StreamError so callers can classify a returned error
// with errors.As without inspecting Code by hand.

// ProtocolError is the base connection-scoped protocol violation.
type ProtocolError struct{ *ConnectionError }

func newProtocolError(format string, args ...interface{}) error {
	return &ProtocolError{connErr(ErrCodeProtocol, format, args...)}
}

// Unwrap exposes the embedded ConnectionError so errors.As(err,
// &ConnectionError{}) matches through any of the named wrapper types.
func (e *ProtocolError) Unwrap() error { return e.ConnectionError }

// FrameTooLargeError: a frame exceeded the locally advertised MAX_FRAME_SIZE.
type FrameTooLargeError struct{ *ConnectionError }

func newFrameTooLargeError(got, max uint32) error {
	return &FrameTooLargeError{connErr(ErrCodeFrameSize, "frame of %d bytes exceeds local max %d", got, max)}
}

func (e *FrameTooLargeError) Unwrap() error { return e.ConnectionError }

// FlowControlError is raised when a window would exceed 2^31-1, or go
// negative on a strict send path. It may be stream- or connection-scoped;
// AsConnError and AsStreamError report which.
type FlowControlError struct {
	StreamID uint32 // 0 when connection-scoped
	Msg      string
}

func (e *FlowControlError) Error() string { return "flow control error: " + e.Msg }

func newFlowControlError(streamID uint32, format string, args ...interface{}) error {
	return &FlowControlError{StreamID: streamID, Msg: fmt.Sprintf(format, args...)}
}

// AsConnError reports whether e should be treated as connection-scoped
// and, if so, returns the ConnectionError to queue a GOAWAY from.
func (e *FlowControlError) AsConnError() (*ConnectionError, bool) {
	if e.StreamID != 0 {
		return nil, false
	}
	return connErr(ErrCodeFlowControl, "%s", e.Msg), true
}

// AsStreamError reports whether e should be treated as stream-scoped and,
// if so, returns the StreamError to reset that stream with.
func (e *FlowControlError) AsStreamError() (*StreamError, bool) {
	if e.StreamID == 0 {
		return nil, false
	}
	return streamErr(e.StreamID, ErrCodeFlowControl, "%s", e.Msg), true
}

// TooManyStreamsError: the peer tried to exceed MAX_CONCURRENT_STREAMS.
type TooManyStreamsError struct{ *StreamError }

func newTooManyStreamsError(streamID uint32) error {
	return &TooManyStreamsError{streamErr(streamID, ErrCodeRefusedStream, "max concurrent streams exceeded")}
}

func (e *TooManyStreamsError) Unwrap() error { return e.StreamError }

// StreamIDTooLowError: a new stream was opened with an id not greater than
// a previously used id of the same parity.
type StreamIDTooLowError struct{ *ConnectionError }

func newStreamIDTooLowError(got, lowWaterMark uint32) error {
	return &StreamIDTooLowError{connErr(ErrCodeProtocol, "stream id %d is not greater than %d", got, lowWaterMark)}
}

func (e *StreamIDTooLowError) Unwrap() error { return e.ConnectionError }

// InvalidSettingsValueError: a SETTINGS value failed validation.
type InvalidSettingsValueError struct {
	*ConnectionError
	SettingID http2.SettingID
	Value     uint32
}

func newInvalidSettingsValueError(id http2.SettingID, value uint32, code ErrorCode, why string) error {
	return &InvalidSettingsValueError{
		ConnectionError: connErr(code, "invalid value %d for setting %s: %s", value, id, why),
		SettingID:       id,
		Value:           value,
	}
}

func (e *InvalidSettingsValueError) Unwrap() error { return e.ConnectionError }

// DenialOfServiceError: a header block spanning more than
// maxContinuationFrames CONTINUATION frames (RFC 7540 §10.5 /
// CVE-2024-27316-style abuse). Floods of other empty frames are not
// detected and never raise it.
type DenialOfServiceError struct{ *ConnectionError }

func newDenialOfServiceError(format string, args ...interface{}) error {
	return &DenialOfServiceError{connErr(ErrCodeEnhanceYourCalm, format, args...)}
}

func (e *DenialOfServiceError) Unwrap() error { return e.ConnectionError }

// NoSuchStreamError: an operation referenced a stream id that never
// existed on this connection.
type NoSuchStreamError struct {
	StreamID uint32
}

func (e *NoSuchStreamError) Error() string {
	return fmt.Sprintf("no such stream: %d", e.StreamID)
}

// StreamClosedError: an operation referenced a stream id that existed but
// has since been closed (and possibly already garbage collected). It
// embeds NoSuchStreamError so errors.As(err, &NoSuchStreamError{}) still
// matches, per spec §4.8/§9.
type StreamClosedError struct {
	NoSuchStreamError
	Reason error // the RST_STREAM/closure reason, if known
}

func (e *StreamClosedError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("stream %d closed: %s", e.StreamID, e.Reason)
	}
	return fmt.Sprintf("stream %d closed", e.StreamID)
}

func (e *StreamClosedError) Unwrap() error { return &e.NoSuchStreamError }

// NoAvailableStreamID: get_next_available_stream_id has exhausted the
// 31-bit id space for this endpoint's parity.
type NoAvailableStreamID struct{}

func (NoAvailableStreamID) Error() string { return "no available stream id remains" }
