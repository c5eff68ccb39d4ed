package transcoder

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
)

// ByteArray is the host form of a mutable guest byte buffer. Plain []byte
// maps to immutable guest bytes.
type ByteArray []byte

// List is the host form of a guest list. It is a pointer type so a list
// that contains itself can be represented.
type List struct {
	Items []any
}

// NewList returns a list holding items.
func NewList(items ...any) *List {
	return &List{Items: items}
}

// Len returns the number of items.
func (l *List) Len() int { return len(l.Items) }

// Append adds v to the end of the list.
func (l *List) Append(v any) { l.Items = append(l.Items, v) }

// Tuple is the host form of a guest tuple.
type Tuple struct {
	Items []any
}

// NewTuple returns a tuple holding items.
func NewTuple(items ...any) *Tuple {
	return &Tuple{Items: items}
}

// Len returns the number of items.
func (t *Tuple) Len() int { return len(t.Items) }

// Entry is one key/value pair of a Dict.
type Entry struct {
	Key   any
	Value any
}

// Dict is the host form of a guest dict. Entries keep insertion order.
// Keys are matched by value for scalars and by identity for everything else.
// An integral float matches the equal integer, so 1 and 1.0 are one key.
type Dict struct {
	entries []Entry
	index   map[any]int
}

// NewDict returns an empty dict.
func NewDict() *Dict {
	return &Dict{index: make(map[any]int)}
}

// Set stores value under key, replacing an existing entry in place.
func (d *Dict) Set(key, value any) {
	if d.index == nil {
		d.index = make(map[any]int)
	}
	k := KeyOf(key)
	if i, ok := d.index[k]; ok {
		d.entries[i].Value = value
		return
	}
	d.index[k] = len(d.entries)
	d.entries = append(d.entries, Entry{Key: key, Value: value})
}

// Get returns the value stored under key.
func (d *Dict) Get(key any) (any, bool) {
	i, ok := d.index[KeyOf(key)]
	if !ok {
		return nil, false
	}
	return d.entries[i].Value, true
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.entries) }

// Entries returns the entries in insertion order.
func (d *Dict) Entries() []Entry { return d.entries }

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []any {
	keys := make([]any, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.Key
	}
	return keys
}

// Values returns the values in insertion order.
func (d *Dict) Values() []any {
	values := make([]any, len(d.entries))
	for i, e := range d.entries {
		values[i] = e.Value
	}
	return values
}

// Set is the host form of a guest set. Members keep insertion order.
type Set struct {
	items []any
	index map[any]struct{}
}

// NewSet returns a set holding the distinct members of items.
func NewSet(items ...any) *Set {
	s := &Set{index: make(map[any]struct{})}
	for _, v := range items {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was not already present.
func (s *Set) Add(v any) bool {
	if s.index == nil {
		s.index = make(map[any]struct{})
	}
	k := KeyOf(v)
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Has reports membership of v.
func (s *Set) Has(v any) bool {
	_, ok := s.index[KeyOf(v)]
	return ok
}

// Len returns the number of members.
func (s *Set) Len() int { return len(s.items) }

// Items returns the members in insertion order.
func (s *Set) Items() []any { return s.items }

type intKey string

type bytesKey string

type floatKey float64

// KeyOf returns the comparable lookup key for a host value. Integers
// compare by numeric value across Go integer types and *big.Int, and a
// float with an integral value shares the key of that integer.
func KeyOf(v any) any {
	switch x := v.(type) {
	case *big.Int:
		return intKey(x.String())
	case int:
		return intKey(strconv.Itoa(x))
	case int64:
		return intKey(strconv.FormatInt(x, 10))
	case int32:
		return intKey(strconv.FormatInt(int64(x), 10))
	case uint64:
		return intKey(strconv.FormatUint(x, 10))
	case uint32:
		return intKey(strconv.FormatUint(uint64(x), 10))
	case float64:
		return floatKeyOf(x)
	case float32:
		return floatKeyOf(float64(x))
	case []byte:
		return bytesKey(x)
	case ByteArray:
		return bytesKey(x)
	case nil, bool, string:
		return x
	default:
		if reflect.ValueOf(v).Comparable() {
			return v
		}
		return fmt.Sprintf("%T@%p", v, v)
	}
}

func floatKeyOf(x float64) any {
	if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
		return floatKey(x)
	}
	if x == 0 {
		return intKey("0")
	}
	return intKey(strconv.FormatFloat(x, 'f', -1, 64))
}
