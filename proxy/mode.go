package proxy

// Mode is the per-proxy call mode.
type Mode struct {
	// AttributeCheck confirms an attribute is declared before reading it.
	// A miss then yields guestbridge.Undefined instead of an error.
	AttributeCheck bool

	// AsyncOverride allows host functions as call arguments on the
	// synchronous path.
	AsyncOverride bool

	// GetReference returns proxies for call results and attribute reads
	// instead of converting them to host values.
	GetReference bool

	// GetReferenceOnIterate applies GetReference to values produced by
	// iteration only.
	GetReferenceOnIterate bool
}

// DefaultMode returns the mode new proxies start with.
func DefaultMode() Mode {
	return Mode{AttributeCheck: true}
}

// ModeOption overrides one field of a Mode.
type ModeOption func(*Mode)

// WithAttributeCheck sets Mode.AttributeCheck.
func WithAttributeCheck(on bool) ModeOption {
	return func(m *Mode) { m.AttributeCheck = on }
}

// WithAsyncOverride sets Mode.AsyncOverride.
func WithAsyncOverride(on bool) ModeOption {
	return func(m *Mode) { m.AsyncOverride = on }
}

// WithGetReference sets Mode.GetReference.
func WithGetReference(on bool) ModeOption {
	return func(m *Mode) { m.GetReference = on }
}

// WithGetReferenceOnIterate sets Mode.GetReferenceOnIterate.
func WithGetReferenceOnIterate(on bool) ModeOption {
	return func(m *Mode) { m.GetReferenceOnIterate = on }
}

// With returns a copy of m with opts applied.
func (m Mode) With(opts ...ModeOption) Mode {
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Callback receives the result of an explicit async call.
type Callback func(v any, err error)

// hiddenMode is consulted by the invocation protocol only. It is set
// through Async and never through SetMode.
type hiddenMode struct {
	callback      Callback
	explicitAsync bool
}

// ModeView is the mode as reported by the $getMode capability.
type ModeView struct {
	Mode
	Callback      Callback
	ExplicitAsync bool
}
