package proxy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	guestbridge "github.com/wippyai/guest-bridge"
)

// FallbackName is the name of a bridged exception whose guest class could
// not be resolved.
const FallbackName = "GuestException"

// Exception is a guest exception surfaced to the host. It carries the
// guest exception object so callers can inspect it further.
type Exception struct {
	f         *Factory
	Guest     *Proxy
	Message   string
	className string
}

// exception bridges a guest exception handle. Class name lookup is best
// effort and never fails the bridging itself.
func (f *Factory) exception(message string, h guestbridge.Handle) *Exception {
	e := &Exception{f: f, Message: message}
	if h == nil || !f.engine.IsHandle(h) {
		return e
	}
	e.Guest = f.Proxy(h)
	e.className = f.className(h)
	return e
}

// className resolves h.__class__.__name__, or "" when any step fails.
func (f *Factory) className(h guestbridge.Handle) (name string) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Debug("exception class lookup panicked", zap.Any("panic", r))
			name = ""
		}
	}()
	cls, err := f.engine.GetAttr(h, "__class__")
	if err != nil {
		return ""
	}
	return f.stringAttr(cls, "__name__")
}

// Name returns the display name, including the guest class when known.
func (e *Exception) Name() string {
	if e.className == "" {
		return FallbackName
	}
	return fmt.Sprintf("%s [#%s]", FallbackName, e.className)
}

// ClassName returns the guest class name of the exception.
func (e *Exception) ClassName() (string, bool) {
	return e.className, e.className != ""
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Name()
	}
	return e.Name() + ": " + e.Message
}

// IsStopIteration reports whether the guest exception is an instance of
// the StopIteration type of the guest builtins. Lookup failures report
// false.
func (e *Exception) IsStopIteration(ctx context.Context) bool {
	return e.IsInstance(ctx, "StopIteration")
}

// IsInstance reports whether the guest exception is an instance of the
// builtin type name, as decided by the guest builtin isinstance.
func (e *Exception) IsInstance(ctx context.Context, name string) bool {
	if e.Guest == nil {
		return false
	}
	eng := e.f.engine
	builtins := eng.Builtins()
	isinstance, err := eng.GetAttr(builtins, "isinstance")
	if err != nil {
		return false
	}
	cls, err := eng.GetAttr(builtins, name)
	if err != nil {
		return false
	}
	res, err := eng.Call(ctx, isinstance, []guestbridge.Handle{e.Guest.Handle(), cls}, nil)
	if err != nil {
		return false
	}
	payload, err := eng.Payload(res)
	if err != nil {
		return false
	}
	ok, _ := payload.(bool)
	return ok
}
