package engine

import (
	"maps"
	"slices"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/tag"
)

// GetAttr fetches attribute name of h. Functions found on the class bind
// to the instance. A miss raises AttributeError.
func (e *Engine) GetAttr(h guestbridge.Handle, name string) (guestbridge.Handle, error) {
	o, err := e.getAttr(e.object(h), name)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (e *Engine) getAttr(o *Object, name string) (*Object, error) {
	if v, ok := e.lookup(o, name); ok {
		return v, nil
	}
	if o.tag == tag.Type {
		return nil, e.Raise("AttributeError", "type object '%s' has no attribute '%s'", o.classInfo().name, name)
	}
	return nil, e.Raise("AttributeError", "'%s' object has no attribute '%s'", o.TypeName(), name)
}

func (e *Engine) lookup(o *Object, name string) (*Object, bool) {
	if name == "__class__" {
		return o.class, true
	}
	if v, ok := o.own(name); ok {
		return v, true
	}
	if info := o.classInfo(); info != nil {
		for _, c := range info.mro[1:] {
			if v, ok := c.own(name); ok {
				return v, true
			}
		}
	}
	if o.class == nil {
		return nil, false
	}
	for _, c := range o.class.classInfo().mro {
		if v, ok := c.own(name); ok {
			if v.tag == tag.Function {
				return e.bind(o, v), true
			}
			return v, true
		}
	}
	return nil, false
}

// method resolves name on the class of o, bypassing instance attributes.
func (e *Engine) method(o *Object, name string) (*Object, bool) {
	if o.class == nil {
		return nil, false
	}
	for _, c := range o.class.classInfo().mro {
		if v, ok := c.own(name); ok {
			return v, true
		}
	}
	return nil, false
}

func (e *Engine) bind(self, fn *Object) *Object {
	m := e.newObject(tag.Method, e.types["method"], &method{self: self, fn: fn})
	return m
}

// SetAttr stores v as attribute name of h. Builtin immutable values
// reject new attributes with AttributeError.
func (e *Engine) SetAttr(h guestbridge.Handle, name string, v guestbridge.Handle) error {
	o := e.object(h)
	val := e.object(v)
	switch o.tag {
	case tag.Object, tag.Type, tag.Function, tag.Exception:
		o.store(name, val)
		return nil
	}
	return e.Raise("AttributeError", "'%s' object attribute '%s' is read-only", o.TypeName(), name)
}

// Attributes lists the names visible on h, own attributes first, then
// those inherited from the class hierarchy.
func (e *Engine) Attributes(h guestbridge.Handle) ([]string, error) {
	o := e.object(h)
	seen := map[string]struct{}{}
	var names []string
	add := func(ns []string) {
		for _, n := range ns {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				names = append(names, n)
			}
		}
	}

	add(o.ownNames())
	if info := o.classInfo(); info != nil {
		for _, c := range info.mro[1:] {
			add(c.ownNames())
		}
	}
	if o.class != nil {
		for _, c := range o.class.classInfo().mro {
			add(c.ownNames())
		}
	}
	add([]string{"__class__"})
	return names, nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
