package http2

// Options configures a Connection at construction. It follows the
// teacher's ConnOpts/ClientOpts convention: a plain struct literal, no
// flag or env parsing library, since this engine is embedded rather than
// run as a CLI.
type Options struct {
	// ClientSide selects which end of the connection this engine plays:
	// preface direction and stream id parity both follow from it.
	ClientSide bool

	// DisableInboundHeaderValidation turns off the pseudo-header and
	// connection-specific-header checks C3 would otherwise apply to
	// frames received from the peer. Named as a "Disable" flag, matching
	// the teacher's own DisablePingChecking convention, so the zero value
	// of Options is the strict, RFC-conformant default.
	DisableInboundHeaderValidation bool

	// NormalizeInboundHeaders lowercases incoming header names and trims
	// surrounding whitespace from values before they reach an event.
	NormalizeInboundHeaders bool

	// DisableOutboundHeaderValidation / NormalizeOutboundHeaders mirror
	// the above for SendHeaders/SendTrailers/PushStream.
	DisableOutboundHeaderValidation bool
	NormalizeOutboundHeaders        bool

	// ClosedStreamBacklog bounds how many tombstoned stream ids the
	// connection retains for late-frame diagnosis (0 uses the default of
	// 1024).
	ClosedStreamBacklog int

	// Logger receives diagnostic traces; nil uses a discard logger.
	Logger Logger
}

// withDefaults fills in the fields a bare `NewConnection(Options{})` caller
// leaves zero: a ClosedStreamBacklog of 1024 and a discard Logger. Header
// validation is already on in the zero value (the Disable* flags are
// false); normalization stays off unless requested.
func (o Options) withDefaults() Options {
	if o.ClosedStreamBacklog <= 0 {
		o.ClosedStreamBacklog = 1024
	}
	if o.Logger == nil {
		o.Logger = discardLogger{}
	}
	return o
}
