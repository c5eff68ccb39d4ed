package transcoder

import (
	"context"
	"fmt"
	"maps"
	"math/big"
	"reflect"
	"slices"
	"time"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/resource"
	"github.com/wippyai/guest-bridge/tag"
)

// Registry lends host values and host callables to the guest.
// *resource.Table implements it.
type Registry interface {
	RegisterCallable(fn guestbridge.HostFunc) resource.Handle
	RegisterValue(v any) resource.Handle
}

// Referencer is implemented by host values that already stand for a guest
// value, such as proxies. They encode to their handle unchanged.
type Referencer interface {
	Handle() guestbridge.Handle
}

// Target is the part of the engine the encoder needs.
type Target interface {
	guestbridge.Builder
	IsHandle(v any) bool
	Tag(h guestbridge.Handle) tag.Tag
}

// Encoder converts host values into guest values.
type Encoder struct {
	engine Target
	hosts  Registry
}

// NewEncoder creates an encoder building values in engine and lending
// host entries through hosts.
func NewEncoder(engine Target, hosts Registry) *Encoder {
	return &Encoder{engine: engine, hosts: hosts}
}

// Encode converts v in a fresh session.
func (e *Encoder) Encode(v any) (guestbridge.Handle, error) {
	return e.NewSession().Encode(v)
}

// EncodeSession is one encode pass. It keeps its own SequenceMap and
// records whether a host callable crossed into the guest.
type EncodeSession struct {
	e               *Encoder
	seen            *SequenceMap[any, guestbridge.Handle]
	lent            []resource.Handle
	containsHostFun bool
}

// NewSession starts an encode session.
func (e *Encoder) NewSession() *EncodeSession {
	return &EncodeSession{
		e:    e,
		seen: NewSequenceMap[any, guestbridge.Handle](),
	}
}

// ContainsHostCallable reports whether any encoded value was, or
// contained, a host function.
func (s *EncodeSession) ContainsHostCallable() bool {
	return s.containsHostFun
}

// Lent returns the host entries registered during the session.
func (s *EncodeSession) Lent() []resource.Handle {
	return s.lent
}

// Encode converts v within the session.
func (s *EncodeSession) Encode(v any) (guestbridge.Handle, error) {
	return s.encode(v, nil)
}

type sliceKey struct {
	kind reflect.Kind
	ptr  uintptr
	n    int
}

func (s *EncodeSession) encode(v any, path []string) (guestbridge.Handle, error) {
	b := s.e.engine

	switch x := v.(type) {
	case nil:
		return s.scalar(tag.None, nil, path)
	case guestbridge.Handle:
		if b.IsHandle(x) {
			return s.passThrough(x), nil
		}
	case Referencer:
		return s.passThrough(x.Handle()), nil
	case bool:
		return s.scalar(tag.Bool, x, path)
	case *big.Int:
		if x == nil {
			return s.scalar(tag.None, nil, path)
		}
		return s.scalar(tag.Integer, new(big.Int).Set(x), path)
	case float64:
		return s.scalar(tag.Float, x, path)
	case float32:
		return s.scalar(tag.Float, float64(x), path)
	case complex128:
		return s.scalar(tag.Complex, x, path)
	case complex64:
		return s.scalar(tag.Complex, complex128(x), path)
	case string:
		return s.scalar(tag.String, x, path)
	case []byte:
		return s.scalar(tag.Bytes, append([]byte(nil), x...), path)
	case ByteArray:
		return s.scalar(tag.ByteArray, append([]byte(nil), x...), path)
	case time.Time:
		return s.scalar(tag.DateTime, x, path)
	case guestbridge.HostFunc:
		return s.hostCallable(x, path)
	case func(context.Context, []any, map[string]any) (any, error):
		return s.hostCallable(x, path)
	case *List:
		return s.sequence(tag.List, x, x.Items, path)
	case *Tuple:
		return s.sequence(tag.Tuple, x, x.Items, path)
	case *Set:
		return s.sequence(tag.Set, x, x.Items(), path)
	case *Dict:
		return s.dict(x, x.Entries(), path)
	case []any:
		if len(x) == 0 {
			return s.sequence(tag.List, nil, nil, path)
		}
		return s.sequence(tag.List, sliceKey{reflect.Slice, reflect.ValueOf(x).Pointer(), len(x)}, x, path)
	case map[string]any:
		entries := make([]Entry, 0, len(x))
		for _, k := range slices.Sorted(maps.Keys(x)) {
			entries = append(entries, Entry{Key: k, Value: x[k]})
		}
		var key any
		if x != nil {
			key = sliceKey{reflect.Map, reflect.ValueOf(x).Pointer(), 0}
		}
		return s.dict(key, entries, path)
	}

	if isUndefined(v) {
		return s.scalar(tag.None, nil, path)
	}
	if n, ok := integer(v); ok {
		return s.scalar(tag.Integer, n, path)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		if rv.Kind() == reflect.Array {
			return s.sequence(tag.Tuple, nil, items, path)
		}
		var key any
		if rv.Len() > 0 {
			key = sliceKey{reflect.Slice, rv.Pointer(), rv.Len()}
		}
		return s.sequence(tag.List, key, items, path)
	case reflect.Map:
		entries := make([]Entry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries = append(entries, Entry{Key: iter.Key().Interface(), Value: iter.Value().Interface()})
		}
		var key any
		if !rv.IsNil() {
			key = sliceKey{reflect.Map, rv.Pointer(), 0}
		}
		return s.dict(key, entries, path)
	}

	return s.hostValue(v, path)
}

// passThrough returns a value that already lives in the guest. A host
// callable wrapper still counts as a host function crossing over.
func (s *EncodeSession) passThrough(h guestbridge.Handle) guestbridge.Handle {
	if s.e.engine.Tag(h) == tag.HostCallable {
		s.containsHostFun = true
	}
	return h
}

func (s *EncodeSession) scalar(t tag.Tag, payload any, path []string) (guestbridge.Handle, error) {
	h, err := s.e.engine.NewValue(t, payload)
	if err != nil {
		return nil, errors.New(errors.PhaseMarshal, errors.KindInvalidInput).
			Path(path...).
			GuestType(t.String()).
			Cause(err).
			Build()
	}
	return h, nil
}

func (s *EncodeSession) hostCallable(fn guestbridge.HostFunc, path []string) (guestbridge.Handle, error) {
	if s.e.hosts == nil {
		return nil, errors.New(errors.PhaseMarshal, errors.KindUnsupported).
			Path(path...).
			HostType("guestbridge.HostFunc").
			Detail("no host registry to lend callables").
			Build()
	}
	id := s.e.hosts.RegisterCallable(fn)
	if id == 0 {
		return nil, closedRegistry(path, "guestbridge.HostFunc")
	}
	s.lent = append(s.lent, id)
	s.containsHostFun = true
	return s.scalar(tag.HostCallable, uint32(id), path)
}

func (s *EncodeSession) hostValue(v any, path []string) (guestbridge.Handle, error) {
	if s.e.hosts == nil {
		return nil, errors.TypeMismatch(errors.PhaseMarshal, path, fmt.Sprintf("%T", v), tag.HostValue.String())
	}
	id := s.e.hosts.RegisterValue(v)
	if id == 0 {
		return nil, closedRegistry(path, fmt.Sprintf("%T", v))
	}
	s.lent = append(s.lent, id)
	return s.scalar(tag.HostValue, uint32(id), path)
}

// closedRegistry reports a lend into a registry that no longer accepts
// entries. A zero handle is never issued to a live entry.
func closedRegistry(path []string, hostType string) error {
	return errors.New(errors.PhaseMarshal, errors.KindFinalized).
		Path(path...).
		HostType(hostType).
		Detail("host registry is closed").
		Build()
}

// sequence builds a list, tuple or set. A non-nil key is registered before
// the items are encoded.
func (s *EncodeSession) sequence(t tag.Tag, key any, items []any, path []string) (guestbridge.Handle, error) {
	if key != nil {
		if h, ok := s.seen.Test(key); ok {
			return h, nil
		}
	}
	c, err := s.e.engine.NewContainer(t, len(items))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindInvalidInput, err, "create "+t.String())
	}
	if key != nil {
		s.seen.Register(key, c)
	}
	for i, item := range items {
		p := append(path[:len(path):len(path)], index(i))
		h, err := s.encode(item, p)
		if err != nil {
			return nil, err
		}
		if err := s.e.engine.AddItem(c, nil, h); err != nil {
			return nil, errors.New(errors.PhaseMarshal, errors.KindInvalidInput).
				Path(p...).
				GuestType(t.String()).
				Cause(err).
				Build()
		}
	}
	return c, nil
}

// dict builds a dict. A nil key skips identity tracking.
func (s *EncodeSession) dict(key any, entries []Entry, path []string) (guestbridge.Handle, error) {
	if key != nil {
		if h, ok := s.seen.Test(key); ok {
			return h, nil
		}
	}
	c, err := s.e.engine.NewContainer(tag.Dict, len(entries))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindInvalidInput, err, "create dict")
	}
	if key != nil {
		s.seen.Register(key, c)
	}
	for _, entry := range entries {
		p := append(path[:len(path):len(path)], fmt.Sprint(entry.Key))
		k, err := s.encode(entry.Key, p)
		if err != nil {
			return nil, err
		}
		val, err := s.encode(entry.Value, p)
		if err != nil {
			return nil, err
		}
		if err := s.e.engine.AddItem(c, k, val); err != nil {
			return nil, errors.New(errors.PhaseMarshal, errors.KindInvalidInput).
				Path(p...).
				GuestType(tag.Dict.String()).
				Cause(err).
				Build()
		}
	}
	return c, nil
}

func isUndefined(v any) bool {
	return guestbridge.IsUndefined(v)
}

// integer converts any Go integer kind to *big.Int.
func integer(v any) (*big.Int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Int).SetUint64(rv.Uint()), true
	}
	return nil, false
}
