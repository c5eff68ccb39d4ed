package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseMarshal   Phase = "marshal"   // host to guest
	PhaseUnmarshal Phase = "unmarshal" // guest to host
	PhaseAttribute Phase = "attribute" // attribute read/write
	PhaseInvoke    Phase = "invoke"    // call dispatch
	PhaseIterate   Phase = "iterate"   // iterator bridging
	PhaseMode      Phase = "mode"      // call mode handling
	PhaseEngine    Phase = "engine"    // guest engine operations
	PhaseRuntime   Phase = "runtime"   // lifecycle
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindUsage          Kind = "usage"
	KindGuestRaised    Kind = "guest_raised"
	KindIntrospection  Kind = "introspection"
	KindContract       Kind = "contract"
	KindUnsupported    Kind = "unsupported"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindFinalized      Kind = "finalized"
	KindInvalidInput   Kind = "invalid_input"
	KindTypeMismatch   Kind = "type_mismatch"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	HostType  string
	GuestType string
	Detail    string
	Path      []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	typed := e.HostType != "" || e.GuestType != ""
	if typed {
		b.WriteString(": ")
		switch {
		case e.HostType != "" && e.GuestType != "":
			b.WriteString("host type ")
			b.WriteString(e.HostType)
			b.WriteString(", guest type ")
			b.WriteString(e.GuestType)
		case e.HostType != "":
			b.WriteString("host type ")
			b.WriteString(e.HostType)
		default:
			b.WriteString("guest type ")
			b.WriteString(e.GuestType)
		}
	}

	if e.Detail != "" {
		if typed {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the attribute path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// HostType sets the Go type name
func (b *Builder) HostType(t string) *Builder {
	b.err.HostType = t
	return b
}

// GuestType sets the guest type tag name
func (b *Builder) GuestType(t string) *Builder {
	b.err.GuestType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Usage creates an error for a caller mistake
func Usage(phase Phase, format string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUsage,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Contract creates an error for a broken internal invariant.
// Callers panic with it rather than returning it.
func Contract(phase Phase, format string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindContract,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Unsupported creates an unsupported value error
func Unsupported(phase Phase, guestType string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindUnsupported,
		GuestType: guestType,
		Detail:    "no host representation",
	}
}

// NotFound creates a missing name error
func NotFound(phase Phase, path []string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   path,
		Detail: fmt.Sprintf("%s not found", what),
	}
}

// NotInitialized creates an error for use before initialization
func NotInitialized(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: "bridge is not initialized",
	}
}

// Finalized creates an error for use after finalization
func Finalized(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFinalized,
		Detail: "finalize has already been called",
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, value any, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Value:  value,
		Detail: detail,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, hostType, guestType string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindTypeMismatch,
		Path:      path,
		HostType:  hostType,
		GuestType: guestType,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsKind reports whether err carries an *Error of the given kind anywhere in its chain
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
