package proxy

import (
	"slices"

	"github.com/wippyai/guest-bridge/tag"
)

// Reserved capability keys. They take precedence over guest attributes of
// the same name.
const (
	KeyIsCallable = "$isCallable"
	KeyIsClass    = "$isClass"
	KeyIsIterable = "$isIterable"
	KeyGetType    = "$getType"
	KeyNewMode    = "$newMode"
	KeyGetMode    = "$getMode"
	KeyMode       = "$mode"
	KeyAsync      = "$async"
	KeyInspect    = "$inspect"

	// KeyApply is present on callable and class-like values.
	KeyApply = "$apply"

	// KeyIter is present on values that declare __iter__.
	KeyIter = "$iter"
)

// alwaysKeys are exposed on every proxy, in listing order.
var alwaysKeys = []string{
	KeyIsCallable,
	KeyIsClass,
	KeyIsIterable,
	KeyGetType,
	KeyNewMode,
	KeyGetMode,
	KeyMode,
	KeyAsync,
	KeyInspect,
}

// dunderKeys map operator shortcuts to the guest method they expose. A
// shortcut exists only when the guest declares the method.
var dunderKeys = []struct {
	key  string
	attr string
}{
	{"$str", "__str__"},
	{"$lt", "__lt__"},
	{"$lte", "__le__"},
	{"$eq", "__eq__"},
	{"$ne", "__ne__"},
	{"$gt", "__gt__"},
	{"$gte", "__ge__"},
	{"$add", "__add__"},
	{"$sub", "__sub__"},
	{"$mul", "__mul__"},
	{"$div", "__truediv__"},
	{"$length", "__len__"},
}

const iterMarker = "__iter__"

// Variant is the capability class of a proxy.
type Variant uint8

const (
	Plain Variant = iota
	Callable
	ClassLike
	Iterable
)

func (v Variant) String() string {
	switch v {
	case Callable:
		return "callable"
	case ClassLike:
		return "class"
	case Iterable:
		return "iterable"
	default:
		return "plain"
	}
}

// capabilities are computed from what the guest value declares. The
// proxy caches them at wrap time and refreshes them after writes.
type capabilities struct {
	dunders  map[string]string
	keys     []string
	variant  Variant
	callable bool
	class    bool
	iterable bool
}

func (f *Factory) capabilities(p *Proxy) capabilities {
	c := capabilities{
		callable: f.engine.IsCallable(p.h),
		class:    f.engine.Tag(p.h) == tag.Type,
		dunders:  make(map[string]string),
	}
	attrs := p.attributes()
	c.iterable = slices.Contains(attrs, iterMarker)

	switch {
	case c.class:
		c.variant = ClassLike
	case c.callable:
		c.variant = Callable
	case c.iterable:
		c.variant = Iterable
	}

	c.keys = append(c.keys, alwaysKeys...)
	if c.callable || c.class {
		c.keys = append(c.keys, KeyApply)
	}
	if c.iterable {
		c.keys = append(c.keys, KeyIter)
	}
	for _, d := range dunderKeys {
		if slices.Contains(attrs, d.attr) {
			c.dunders[d.key] = d.attr
			c.keys = append(c.keys, d.key)
		}
	}
	return c
}

func (c *capabilities) has(key string) bool {
	return slices.Contains(c.keys, key)
}
