package transcoder_test

import (
	"context"
	stderrors "errors"
	"math"
	"math/big"
	"testing"
	"time"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/engine"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/resource"
	"github.com/wippyai/guest-bridge/tag"
	"github.com/wippyai/guest-bridge/transcoder"
)

type wrapped struct {
	h guestbridge.Handle
}

type wrappedException struct {
	r *guestbridge.Raised
}

type stubWrapper struct{}

func (stubWrapper) Wrap(h guestbridge.Handle) any { return &wrapped{h: h} }

func (stubWrapper) WrapException(r *guestbridge.Raised) any { return &wrappedException{r: r} }

type tableLookup struct {
	t *resource.Table
}

func (l tableLookup) Lookup(_ tag.Tag, id uint32) (any, bool) {
	return l.t.Get(resource.Handle(id))
}

func newCodec(t *testing.T) (*engine.Engine, *transcoder.Decoder, *transcoder.Encoder, *resource.Table) {
	t.Helper()
	e := engine.New()
	table := resource.NewTable()
	t.Cleanup(func() {
		_ = e.Close()
		table.Close()
	})
	return e, transcoder.NewDecoder(e, stubWrapper{}, tableLookup{table}), transcoder.NewEncoder(e, table), table
}

func TestDecode_Scalars(t *testing.T) {
	e, dec, _, _ := newCodec(t)

	v, err := dec.Decode(e.Int(1789), transcoder.DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	n, ok := v.(*big.Int)
	if !ok || n.Cmp(big.NewInt(1789)) != 0 {
		t.Errorf("Decode(1789) = %v (%T)", v, v)
	}

	v, err = dec.Decode(e.Bytes([]byte("hello")), transcoder.DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	b, ok := v.([]byte)
	if !ok || string(b) != "hello" {
		t.Errorf("Decode(b'hello') = %v (%T)", v, v)
	}

	v, _ = dec.Decode(e.None(), transcoder.DecodeOptions{})
	if v != nil {
		t.Errorf("Decode(None) = %v", v)
	}

	v, _ = dec.Decode(e.ByteArray([]byte{1, 2}), transcoder.DecodeOptions{})
	if ba, ok := v.(transcoder.ByteArray); !ok || len(ba) != 2 {
		t.Errorf("Decode(bytearray) = %v (%T)", v, v)
	}

	v, _ = dec.Decode(e.Complex(1+2i), transcoder.DecodeOptions{})
	if v != complex128(1+2i) {
		t.Errorf("Decode(complex) = %v", v)
	}
}

func TestDecode_ObjectLike(t *testing.T) {
	e, dec, _, _ := newCodec(t)

	for _, h := range []guestbridge.Handle{e.Main(), e.Type("int"), e.Func("f", nil)} {
		v, err := dec.Decode(h, transcoder.DecodeOptions{})
		if err != nil {
			t.Fatal(err)
		}
		w, ok := v.(*wrapped)
		if !ok || w.h != h {
			t.Errorf("Decode(%v) = %v, want wrapper", e.Tag(h), v)
		}
	}

	exc := e.NewException(e.Type("ValueError"), "boom")
	v, _ := dec.Decode(exc, transcoder.DecodeOptions{})
	we, ok := v.(*wrappedException)
	if !ok || we.r.Message != "boom" {
		t.Errorf("Decode(exception) = %v", v)
	}
}

func TestDecode_ReferenceMode(t *testing.T) {
	e, dec, _, _ := newCodec(t)
	l := e.List(e.Int(1))
	v, err := dec.Decode(l, transcoder.DecodeOptions{Reference: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(*wrapped); !ok {
		t.Errorf("reference decode = %T, want wrapper", v)
	}
	v, _ = dec.Decode(e.None(), transcoder.DecodeOptions{Reference: true})
	if v != nil {
		t.Errorf("reference decode of None = %v", v)
	}
}

func TestDecode_SharedIdentity(t *testing.T) {
	e, dec, _, _ := newCodec(t)
	inner := e.List(e.Str("x"))
	obj := e.Main()
	outer := e.List(inner, inner, obj, obj)

	v, err := dec.Decode(outer, transcoder.DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	items := v.(*transcoder.List).Items
	if items[0] != items[1] {
		t.Error("shared list decoded to two values")
	}
	if items[2] != items[3] {
		t.Error("shared object decoded to two wrappers")
	}
}

func TestDecode_SelfCycle(t *testing.T) {
	e, dec, _, _ := newCodec(t)

	l := e.List(e.Int(1))
	if err := e.AddItem(l, nil, l); err != nil {
		t.Fatal(err)
	}
	v, err := dec.Decode(l, transcoder.DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	list := v.(*transcoder.List)
	if list.Items[1] != any(list) {
		t.Error("self reference does not point back to the list")
	}

	d := e.Dict()
	if err := e.AddItem(d, e.Str("self"), d); err != nil {
		t.Fatal(err)
	}
	v, err = dec.Decode(d, transcoder.DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	dict := v.(*transcoder.Dict)
	got, ok := dict.Get("self")
	if !ok || got != any(dict) {
		t.Error("dict self reference does not point back to the dict")
	}
}

func TestDecode_Unsupported(t *testing.T) {
	e, dec, _, _ := newCodec(t)
	_, err := dec.Decode(e.List(e.Opaque("ellipsis")), transcoder.DecodeOptions{})
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	var be *errors.Error
	if !stderrors.As(err, &be) || len(be.Path) != 1 || be.Path[0] != "[0]" {
		t.Errorf("path = %v", be)
	}
}

func TestDecode_ForeignValuePanics(t *testing.T) {
	_, dec, _, _ := newCodec(t)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.IsKind(err, errors.KindContract) {
			t.Errorf("recovered %v, want contract error", r)
		}
	}()
	_, _ = dec.Decode(fakeHandle(1), transcoder.DecodeOptions{})
}

type fakeHandle uint64

func (h fakeHandle) HandleID() uint64 { return uint64(h) }

func TestDeserialize_ContractViolations(t *testing.T) {
	tests := []struct {
		name    string
		tag     tag.Tag
		payload any
	}{
		{"unknown tag", tag.Tag(200), nil},
		{"unsupported", tag.Unsupported, nil},
		{"bad integer", tag.Integer, "12x"},
		{"bad bool", tag.Bool, 1},
		{"bad list", tag.List, "abc"},
		{"bad exception", tag.Exception, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				err, ok := recover().(error)
				if !ok || !errors.IsKind(err, errors.KindContract) {
					t.Errorf("expected contract panic, got %v", err)
				}
			}()
			_, _ = transcoder.Deserialize(tt.tag, tt.payload, nil)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	_, dec, enc, _ := newCodec(t)
	when := time.Date(1789, 7, 14, 0, 0, 0, 0, time.UTC)
	huge, _ := new(big.Int).SetString("-98765432109876543210", 10)

	scalars := []any{
		huge,
		3.25,
		true,
		"héllo wörld ✓",
		[]byte("hello"),
		when,
	}
	for _, v := range scalars {
		h, err := enc.Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v): %v", v, err)
		}
		got, err := dec.Decode(h, transcoder.DecodeOptions{})
		if err != nil {
			t.Fatalf("Decode(%v): %v", v, err)
		}
		switch want := v.(type) {
		case *big.Int:
			if got.(*big.Int).Cmp(want) != 0 {
				t.Errorf("round trip %v = %v", want, got)
			}
		case []byte:
			if string(got.([]byte)) != string(want) {
				t.Errorf("round trip %q = %q", want, got)
			}
		case time.Time:
			if !got.(time.Time).Equal(want) {
				t.Errorf("round trip %v = %v", want, got)
			}
		default:
			if got != v {
				t.Errorf("round trip %v = %v", v, got)
			}
		}
	}

	h, err := enc.Encode(map[string]any{
		"list":  []any{1, "two", 3.0},
		"tuple": transcoder.NewTuple(true, nil),
		"set":   transcoder.NewSet("a", "b", "a"),
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := dec.Decode(h, transcoder.DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	d := v.(*transcoder.Dict)
	if d.Len() != 3 {
		t.Fatalf("dict len = %d", d.Len())
	}
	list, _ := d.Get("list")
	items := list.(*transcoder.List).Items
	if items[0].(*big.Int).Int64() != 1 || items[1] != "two" || items[2] != 3.0 {
		t.Errorf("list = %v", items)
	}
	tup, _ := d.Get("tuple")
	if ti := tup.(*transcoder.Tuple).Items; ti[0] != true || ti[1] != nil {
		t.Errorf("tuple = %v", ti)
	}
	set, _ := d.Get("set")
	if s := set.(*transcoder.Set); s.Len() != 2 || !s.Has("a") || !s.Has("b") {
		t.Errorf("set = %v", s.Items())
	}
}

func TestEncode_Cycle(t *testing.T) {
	e, _, enc, _ := newCodec(t)
	l := transcoder.NewList(1)
	l.Append(l)

	h, err := enc.Encode(l)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := e.Payload(h)
	items := p.([]guestbridge.Handle)
	if len(items) != 2 || items[1] != h {
		t.Error("encoded self reference does not point back to the list")
	}
}

func TestEncode_HostCallable(t *testing.T) {
	e, dec, enc, table := newCodec(t)
	fn := guestbridge.HostFunc(func(context.Context, []any, map[string]any) (any, error) {
		return nil, nil
	})

	s := enc.NewSession()
	if _, err := s.Encode([]any{1, "x"}); err != nil {
		t.Fatal(err)
	}
	if s.ContainsHostCallable() {
		t.Error("plain values should not mark the session")
	}

	h, err := s.Encode(map[string]any{"cb": []any{fn}})
	if err != nil {
		t.Fatal(err)
	}
	if !s.ContainsHostCallable() {
		t.Error("nested host callable not detected")
	}
	if len(s.Lent()) != 1 || table.Len() != 1 {
		t.Errorf("lent = %v, table len = %d", s.Lent(), table.Len())
	}

	v, err := dec.Decode(h, transcoder.DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	cb, _ := v.(*transcoder.Dict).Get("cb")
	inner := cb.(*transcoder.List).Items[0]
	if _, ok := inner.(guestbridge.HostFunc); !ok {
		t.Errorf("host callable decoded to %T", inner)
	}

	type opaque struct{ n int }
	ov := &opaque{n: 3}
	h, err = enc.Encode(ov)
	if err != nil {
		t.Fatal(err)
	}
	if e.Tag(h) != tag.HostValue {
		t.Errorf("opaque host value tag = %v", e.Tag(h))
	}
	v, _ = dec.Decode(h, transcoder.DecodeOptions{})
	if v != any(ov) {
		t.Errorf("host value decoded to %v", v)
	}
}

func TestEncode_Undefined(t *testing.T) {
	e, _, enc, _ := newCodec(t)
	h, err := enc.Encode(guestbridge.Undefined)
	if err != nil {
		t.Fatal(err)
	}
	if e.Tag(h) != tag.None {
		t.Errorf("Undefined encoded as %v", e.Tag(h))
	}
}

func TestSequenceMap(t *testing.T) {
	m := transcoder.NewSequenceMap[string, *transcoder.List]()
	if _, ok := m.Test("a"); ok {
		t.Fatal("empty map reported a hit")
	}
	l := transcoder.NewList()
	m.Register("a", l)
	got, ok := m.Test("a")
	if !ok || got != l {
		t.Error("Test did not return the registered value")
	}

	snap := m.Snapshot()
	m.Register("b", transcoder.NewList())
	if len(snap) != 1 || m.Len() != 2 {
		t.Errorf("snapshot len = %d, map len = %d", len(snap), m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Error("Clear left registrations")
	}
}

func TestKeyOf(t *testing.T) {
	d := transcoder.NewDict()
	d.Set(big.NewInt(7), "big")
	d.Set(7, "int")
	d.Set([]byte("k"), "bytes")
	if d.Len() != 2 {
		t.Errorf("len = %d, want 2", d.Len())
	}
	if v, _ := d.Get(int64(7)); v != "int" {
		t.Errorf("Get(7) = %v", v)
	}
	if v, _ := d.Get(transcoder.ByteArray("k")); v != "bytes" {
		t.Errorf("Get(bytearray) = %v", v)
	}

	tests := []struct {
		name string
		a, b any
		same bool
	}{
		{"integral float", 1, 1.0, true},
		{"negative zero", 0, math.Copysign(0, -1), true},
		{"float32", big.NewInt(3), float32(3), true},
		{"large float", new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil), 1e21, true},
		{"fraction", 1, 1.5, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transcoder.KeyOf(tt.a) == transcoder.KeyOf(tt.b); got != tt.same {
				t.Errorf("KeyOf(%v) == KeyOf(%v) is %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}

	n := transcoder.NewDict()
	n.Set(2, "int")
	n.Set(2.0, "float")
	if n.Len() != 1 {
		t.Errorf("2 and 2.0 stored as %d keys", n.Len())
	}
	if v, _ := n.Get(2); v != "float" {
		t.Errorf("Get(2) = %v", v)
	}
}

func TestEncode_NilMapsStayDistinct(t *testing.T) {
	e, _, enc, _ := newCodec(t)
	h, err := enc.Encode([]any{map[string]any(nil), map[string]any(nil), map[int]string(nil), map[int]string(nil)})
	if err != nil {
		t.Fatal(err)
	}
	p, _ := e.Payload(h)
	items := p.([]guestbridge.Handle)
	if len(items) != 4 {
		t.Fatalf("items = %d", len(items))
	}
	for i, pair := range [][2]int{{0, 1}, {2, 3}} {
		if items[pair[0]] == items[pair[1]] {
			t.Errorf("pair %d: nil maps share one guest dict", i)
		}
	}

	shared := map[string]any{"k": 1}
	h, err = enc.Encode([]any{shared, shared})
	if err != nil {
		t.Fatal(err)
	}
	p, _ = e.Payload(h)
	items = p.([]guestbridge.Handle)
	if items[0] != items[1] {
		t.Error("the same map encoded to two guest dicts")
	}
}

func TestEncode_ClosedRegistry(t *testing.T) {
	_, _, enc, table := newCodec(t)
	table.Close()

	fn := guestbridge.HostFunc(func(context.Context, []any, map[string]any) (any, error) {
		return nil, nil
	})
	type opaque struct{}
	tests := []struct {
		name string
		in   any
	}{
		{"callable", fn},
		{"nested callable", []any{1, fn}},
		{"host value", &opaque{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := enc.NewSession()
			if _, err := s.Encode(tt.in); !errors.IsKind(err, errors.KindFinalized) {
				t.Errorf("Encode = %v, want finalized error", err)
			}
			if len(s.Lent()) != 0 {
				t.Errorf("lent = %v", s.Lent())
			}
		})
	}
}
