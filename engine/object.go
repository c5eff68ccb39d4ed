package engine

import (
	"context"
	"math/big"
	"slices"
	"sync"

	"github.com/wippyai/guest-bridge/tag"
)

// NativeFunc is the Go implementation of a guest function. A nil result
// means None. Returning a *guestbridge.Raised raises that exception; any
// other error is raised as RuntimeError.
type NativeFunc func(ctx context.Context, args []*Object, kwargs map[string]*Object) (*Object, error)

// Object is a value on the guest heap. It implements guestbridge.Handle.
type Object struct {
	payload any
	eng     *Engine
	class   *Object
	values  map[string]*Object
	names   []string
	id      uint64
	mu      sync.Mutex
	tag     tag.Tag
}

// HandleID returns the identity of the object.
func (o *Object) HandleID() uint64 { return o.id }

// Tag returns the type tag of the object.
func (o *Object) Tag() tag.Tag { return o.tag }

// Class returns the guest type object of o.
func (o *Object) Class() *Object { return o.class }

// own looks up an attribute stored on o itself.
func (o *Object) own(name string) (*Object, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.values[name]
	return v, ok
}

func (o *Object) store(name string, v *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.values == nil {
		o.values = make(map[string]*Object)
	}
	if _, ok := o.values[name]; !ok {
		o.names = append(o.names, name)
	}
	o.values[name] = v
}

func (o *Object) ownNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.names)
}

// function is the payload of tag.Function objects.
type function struct {
	fn   NativeFunc
	name string
}

// method is the payload of tag.Method objects: fn bound to self.
type method struct {
	self *Object
	fn   *Object
}

// class is the payload of tag.Type objects.
type class struct {
	construct func(ctx context.Context, cls *Object, args []*Object, kwargs map[string]*Object) (*Object, error)
	name      string
	bases     []*Object
	mro       []*Object
}

// seq is the payload of lists, tuples and sets. Sets also keep index.
type seq struct {
	index map[string]int
	items []*Object
}

// dict is the payload of dicts.
type dict struct {
	index map[string]int
	keys  []*Object
	vals  []*Object
}

// hostRef is the payload of host wrappers.
type hostRef struct {
	id       uint32
	released bool
}

// iterator is the payload of builtin iterators.
type iterator struct {
	next func() (*Object, bool)
}

// exception is the payload of exception instances.
type exception struct {
	message string
}

func (o *Object) items() []*Object {
	s, ok := o.payload.(*seq)
	if !ok {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(s.items)
}

func (o *Object) classInfo() *class {
	c, _ := o.payload.(*class)
	return c
}

func (o *Object) bigInt() (*big.Int, bool) {
	switch o.tag {
	case tag.Integer:
		return o.payload.(*big.Int), true
	case tag.Bool:
		if o.payload.(bool) {
			return big.NewInt(1), true
		}
		return big.NewInt(0), true
	}
	return nil, false
}

// TypeName returns the name of the object's class.
func (o *Object) TypeName() string {
	if o.class == nil {
		return "object"
	}
	if c := o.class.classInfo(); c != nil {
		return c.name
	}
	return "object"
}
