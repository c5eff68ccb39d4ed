package guestbridge

import (
	"context"
	"fmt"

	"github.com/wippyai/guest-bridge/tag"
)

// Handle is an opaque reference to a value living in the guest runtime.
// Two handles with the same HandleID refer to the same guest value.
type Handle interface {
	HandleID() uint64
}

// Keyword is a single keyword argument of a guest call.
type Keyword struct {
	Value Handle
	Name  string
}

// Pair is one key/value entry of a guest dict payload.
type Pair struct {
	Key   Handle
	Value Handle
}

// HostFunc is a host function that can be handed to the guest runtime.
type HostFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// HostInvoker dispatches guest calls of host callables back to the host.
// The proxy factory implements it and installs itself on the engine.
type HostInvoker interface {
	// InvokeHost calls the host callable registered under id.
	InvokeHost(ctx context.Context, id uint32, args []Handle, kwargs []Keyword) (Handle, error)

	// HostValue returns the host value registered under id.
	HostValue(id uint32) (any, bool)

	// ReleaseHost drops the host entry once the guest no longer references it.
	ReleaseHost(id uint32)
}

// Inspector is the introspection half of the Guest Engine boundary.
type Inspector interface {
	// IsHandle reports whether v is a handle issued by this engine.
	IsHandle(v any) bool

	// Tag reports the type tag of h.
	Tag(h Handle) tag.Tag

	// Attributes lists the attribute names the guest declares for h.
	Attributes(h Handle) ([]string, error)

	// TypeOf returns the guest type object of h.
	TypeOf(h Handle) Handle

	// Payload returns the raw payload used to deserialize scalar and
	// container values. See transcoder.Deserialize for the shapes.
	Payload(h Handle) (any, error)

	// Builtins returns the guest builtin namespace.
	Builtins() Handle

	// ThreadID reports the guest thread executing under ctx.
	ThreadID(ctx context.Context) string
}

// Builder creates guest values from host data.
type Builder interface {
	// NewValue creates a scalar guest value of the given tag.
	NewValue(t tag.Tag, payload any) (Handle, error)

	// NewContainer creates an empty list, tuple, dict or set.
	NewContainer(t tag.Tag, sizeHint int) (Handle, error)

	// AddItem appends value to a list, tuple or set (key is nil), or stores
	// key/value into a dict.
	AddItem(container, key, value Handle) error
}

// Engine is the contract the marshalling layer requires from the guest runtime.
type Engine interface {
	Inspector
	Builder

	// GetAttr fetches attribute name of h.
	GetAttr(h Handle, name string) (Handle, error)

	// SetAttr stores v as attribute name of h.
	SetAttr(h Handle, name string, v Handle) error

	// IsCallable reports whether h can be called.
	IsCallable(h Handle) bool

	// Call invokes h synchronously on the calling goroutine.
	Call(ctx context.Context, h Handle, args []Handle, kwargs []Keyword) (Handle, error)

	// CallAsync invokes h on a guest-owned thread. done is called exactly once
	// from that thread with the result or the failure.
	CallAsync(ctx context.Context, h Handle, args []Handle, kwargs []Keyword, done func(Handle, error))

	// Clone returns a new reference to the same guest value.
	Clone(h Handle) Handle

	// SetHostInvoker installs the dispatcher for host callables.
	SetHostInvoker(inv HostInvoker)
}

// Raised is returned by an Engine when guest code raised an exception.
type Raised struct {
	Exception Handle
	Message   string
}

func (r *Raised) Error() string {
	return fmt.Sprintf("guest raised: %s", r.Message)
}

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined is the absent value. It is returned for attribute misses under
// strict attribute checking and for calls on values that are not callable.
// Guest None is represented by nil, never by Undefined.
var Undefined any = undefined{}

// IsUndefined reports whether v is the absent value.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}
