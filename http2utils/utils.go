// Package http2utils holds small wire-level helpers shared by the engine.
//
// The byte-level frame codec itself (header/payload parsing and
// serialization) is delegated to golang.org/x/net/http2; what remains here
// is the handful of helpers that codec doesn't provide: big-endian
// encoding for the hand-rolled ALTSVC frame, ASCII case folding, and the
// pseudo-header / connection-specific-header tables the frame validator
// checks against.
package http2utils

// Uint16ToBytes appends the big-endian encoding of n to dst.
func Uint16ToBytes(dst []byte, n uint16) []byte {
	return append(dst, byte(n>>8), byte(n))
}

// BytesToUint16 decodes a big-endian uint16 from the first two bytes of b.
func BytesToUint16(b []byte) uint16 {
	_ = b[1]
	return uint16(b[0])<<8 | uint16(b[1])
}

// Uint32ToBytes appends the big-endian encoding of n to dst.
func Uint32ToBytes(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

// BytesToUint32 decodes a big-endian uint32 from the first four bytes of b.
func BytesToUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// EqualsFold reports whether a and b are ASCII-equal ignoring case, without
// the allocation strings.EqualFold would need for []byte inputs.
func EqualsFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// HasUpper reports whether s contains any ASCII uppercase letter.
func HasUpper(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			return true
		}
	}
	return false
}

// ToLower lowercases ASCII letters in s, copying only if necessary.
func ToLower(s string) string {
	if !HasUpper(s) {
		return s
	}
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// requestPseudoHeaders is the closed set of pseudo-headers legal on a
// request HEADERS block (RFC 7540 §8.1.2.3).
var requestPseudoHeaders = map[string]bool{
	":method":    true,
	":scheme":    true,
	":authority": true,
	":path":      true,
}

// responsePseudoHeaders is the closed set of pseudo-headers legal on a
// response HEADERS block (RFC 7540 §8.1.2.4).
var responsePseudoHeaders = map[string]bool{
	":status": true,
}

// IsRequestPseudoHeader reports whether name is a legal request pseudo-header.
func IsRequestPseudoHeader(name string) bool { return requestPseudoHeaders[name] }

// IsResponsePseudoHeader reports whether name is a legal response pseudo-header.
func IsResponsePseudoHeader(name string) bool { return responsePseudoHeaders[name] }

// connectionSpecificHeaders are header fields forbidden in HTTP/2
// (RFC 7540 §8.1.2.2).
var connectionSpecificHeaders = map[string]bool{
	"connection":        true,
	"proxy-connection":  true,
	"keep-alive":        true,
	"transfer-encoding": true,
	"upgrade":           true,
}

// IsConnectionSpecificHeader reports whether name is forbidden over HTTP/2.
func IsConnectionSpecificHeader(name string) bool { return connectionSpecificHeaders[name] }
