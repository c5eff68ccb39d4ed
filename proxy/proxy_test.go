package proxy

import (
	"context"
	stderrors "errors"
	"iter"
	"math/big"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/engine"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/transcoder"
)

type fixture struct {
	e       *engine.Engine
	f       *Factory
	mod     *Proxy
	applied atomic.Int32
}

// newFixture builds a guest module "demo" with a class, a function that
// calls its first argument and a function that raises.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	e := engine.New()
	fx := &fixture{e: e}
	t.Cleanup(func() { _ = e.Close() })

	mod := e.Module("demo")
	e.Define(mod, "Counter", e.NewClass("Counter", nil, map[string]engine.NativeFunc{
		"__init__": func(_ context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
			start := e.Int(0)
			if len(args) > 1 {
				start = args[1]
			}
			return nil, e.SetAttr(args[0], "value", start)
		},
		"__iter__": func(_ context.Context, _ []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
			return e.Iterator([]*engine.Object{e.Int(1), e.Int(2), e.Int(3)}), nil
		},
	}))
	e.Define(mod, "apply", e.Func("apply", func(ctx context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
		fx.applied.Add(1)
		return e.CallObject(ctx, args[0], args[1:], nil)
	}))
	e.Define(mod, "boom", e.Func("boom", func(context.Context, []*engine.Object, map[string]*engine.Object) (*engine.Object, error) {
		return nil, e.Raise("ValueError", "bad value")
	}))
	e.Define(mod, "year", e.Int(1789))
	e.Define(mod, "greeting", e.Bytes([]byte("hello")))

	fx.f = NewFactory(e)
	fx.mod = fx.f.Proxy(mod)
	return fx
}

func (fx *fixture) get(t *testing.T, p *Proxy, name string) *Proxy {
	t.Helper()
	v, err := p.Get(name)
	if err != nil {
		t.Fatalf("Get(%q): %v", name, err)
	}
	px, ok := v.(*Proxy)
	if !ok {
		t.Fatalf("Get(%q) = %T, want *Proxy", name, v)
	}
	return px
}

func TestProxy_Scalars(t *testing.T) {
	fx := newFixture(t)

	v, err := fx.mod.Get("year")
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := v.(*big.Int); !ok || n.Cmp(big.NewInt(1789)) != 0 {
		t.Errorf("year = %v (%T), want 1789", v, v)
	}

	v, err = fx.mod.Get("greeting")
	if err != nil {
		t.Fatal(err)
	}
	if b, ok := v.([]byte); !ok || string(b) != "hello" {
		t.Errorf("greeting = %v (%T), want hello", v, v)
	}
}

func TestProxy_CapabilityGating(t *testing.T) {
	fx := newFixture(t)

	if fx.mod.Has(KeyApply) || fx.mod.IsCallable() {
		t.Error("module should expose no call application")
	}
	if fx.mod.Variant() != Plain {
		t.Errorf("module variant = %v", fx.mod.Variant())
	}

	cls := fx.get(t, fx.mod, "Counter")
	if !cls.IsClass() || !cls.Has(KeyApply) {
		t.Error("class should expose class test and construction")
	}
	if v, _ := cls.Get(KeyIsClass); !v.(func() bool)() {
		t.Error("$isClass() = false")
	}
	if cls.Variant() != ClassLike {
		t.Errorf("class variant = %v", cls.Variant())
	}

	fn := fx.get(t, fx.mod, "boom")
	if !fn.Has(KeyApply) || fn.Variant() != Callable {
		t.Error("function should expose $apply")
	}

	for _, key := range alwaysKeys {
		if !fx.mod.Has(key) {
			t.Errorf("module missing capability %s", key)
		}
	}

	num := fx.f.Proxy(fx.e.Int(2))
	if _, ok := num.Dunder("$add"); !ok {
		t.Error("int should expose $add")
	}
	if _, ok := fx.mod.Dunder("$add"); ok {
		t.Error("module should not expose $add")
	}
	if num.Has(KeyIter) {
		t.Error("int should not expose $iter")
	}
}

func TestProxy_ReservedKeysWin(t *testing.T) {
	fx := newFixture(t)
	if err := fx.mod.Set(KeyIsCallable, "shadow"); err != nil {
		t.Fatal(err)
	}
	v, err := fx.mod.Get(KeyIsCallable)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(func() bool); !ok {
		t.Errorf("Get($isCallable) = %T, want capability", v)
	}
}

func TestProxy_AttributeCheck(t *testing.T) {
	fx := newFixture(t)

	v, err := fx.mod.Get("missing")
	if err != nil {
		t.Fatalf("strict miss returned error: %v", err)
	}
	if !guestbridge.IsUndefined(v) {
		t.Errorf("strict miss = %v, want Undefined", v)
	}

	relaxed := fx.mod.NewMode(WithAttributeCheck(false))
	_, err = relaxed.Get("missing")
	var exc *Exception
	if !stderrors.As(err, &exc) {
		t.Fatalf("relaxed miss = %v, want *Exception", err)
	}
	if name, _ := exc.ClassName(); name != "AttributeError" {
		t.Errorf("class = %q", name)
	}
	if !fx.mod.Mode().AttributeCheck {
		t.Error("NewMode changed the original proxy")
	}
}

func TestProxy_ModeMutation(t *testing.T) {
	fx := newFixture(t)

	if got := fx.mod.Mode().Mode; got != DefaultMode() {
		t.Errorf("initial mode = %+v", got)
	}
	same := fx.mod.SetMode(WithGetReference(true), WithAsyncOverride(true))
	if same != fx.mod {
		t.Error("SetMode should return the receiver")
	}
	m := fx.mod.Mode()
	if !m.GetReference || !m.AsyncOverride || !m.AttributeCheck {
		t.Errorf("mode after SetMode = %+v", m)
	}

	derived := fx.mod.NewMode(WithGetReference(false))
	if derived == fx.mod || !derived.Equal(fx.mod) {
		t.Error("NewMode should derive a new proxy over the same value")
	}
	if derived.Mode().GetReference || !derived.Mode().AsyncOverride {
		t.Errorf("derived mode = %+v", derived.Mode())
	}
	if !fx.mod.Mode().GetReference {
		t.Error("NewMode mutated the original")
	}

	v, _ := fx.mod.Get("year")
	if _, ok := v.(*Proxy); !ok {
		t.Errorf("GetReference read = %T, want *Proxy", v)
	}

	setMode, _ := fx.mod.Get(KeyMode)
	setMode.(func(...ModeOption) *Proxy)(WithGetReference(false))
	if fx.mod.Mode().GetReference {
		t.Error("$mode did not apply")
	}
}

func TestProxy_CallNonCallable(t *testing.T) {
	fx := newFixture(t)
	v, err := fx.mod.Call(context.Background(), 1)
	if err != nil || !guestbridge.IsUndefined(v) {
		t.Errorf("call on module = %v, %v; want Undefined", v, err)
	}
}

func TestProxy_Construct(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	cls := fx.get(t, fx.mod, "Counter")

	v, err := cls.CallKw(ctx, []any{41}, nil)
	if err != nil {
		t.Fatal(err)
	}
	inst, err := As(v)
	if err != nil {
		t.Fatal(err)
	}
	val, _ := inst.Get("value")
	if val.(*big.Int).Int64() != 41 {
		t.Errorf("value = %v", val)
	}
	if got := inst.Type(); !got.Equal(cls) {
		t.Errorf("Type() = %s", got)
	}
	if !strings.Contains(inst.String(), "<class 'Counter'>") {
		t.Errorf("String() = %s", inst.String())
	}
	if label := cls.Inspect(); !strings.Contains(label, "[instantiates]") || !strings.HasPrefix(label, "Guest Class #Counter") {
		t.Errorf("Inspect() = %s", label)
	}

	v, err = cls.Construct(ctx, 2)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if p, _ := As(v); p == nil || !p.Type().Equal(cls) {
		t.Errorf("Construct = %v", v)
	}
	boom := fx.get(t, fx.mod, "boom")
	if _, err := boom.Construct(ctx); !errors.IsKind(err, errors.KindUsage) {
		t.Errorf("Construct on a function = %v, want usage error", err)
	}
}

func TestProxy_Dunder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	num := fx.f.Proxy(fx.e.Int(7))

	tests := []struct {
		key  string
		arg  any
		want string
	}{
		{"$add", 3, "10"},
		{"$sub", 2, "5"},
		{"$mul", 2, "14"},
		{"$div", 2, "3.5"},
		{"$lt", 8, "true"},
		{"$gte", 8, "false"},
		{"$eq", 7, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, ok := num.Dunder(tt.key)
			if !ok {
				t.Fatalf("missing %s", tt.key)
			}
			v, err := m.Call(ctx, tt.arg)
			if err != nil {
				t.Fatal(err)
			}
			var got string
			switch x := v.(type) {
			case *big.Int:
				got = x.String()
			case float64:
				got = big.NewFloat(x).Text('g', -1)
			case bool:
				if x {
					got = "true"
				} else {
					got = "false"
				}
			}
			if got != tt.want {
				t.Errorf("%s(%v) = %v, want %s", tt.key, tt.arg, v, tt.want)
			}
		})
	}

	length, ok := fx.f.Proxy(fx.e.Str("héllo")).Dunder("$length")
	if !ok {
		t.Fatal("str should expose $length")
	}
	v, _ := length.Call(ctx)
	if v.(*big.Int).Int64() != 5 {
		t.Errorf("$length = %v", v)
	}
}

func TestProxy_KeysAndHas(t *testing.T) {
	fx := newFixture(t)
	keys := fx.mod.Keys()
	for _, want := range []string{KeyIsCallable, KeyAsync, "Counter", "apply", "year"} {
		if !slices.Contains(keys, want) {
			t.Errorf("Keys() missing %s", want)
		}
	}
	if !fx.mod.Has("apply") || fx.mod.Has("missing") {
		t.Error("Has reported wrong membership")
	}
}

func TestProxy_Set(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.mod.Set("answer", 42); err != nil {
		t.Fatal(err)
	}
	v, _ := fx.mod.Get("answer")
	if v.(*big.Int).Int64() != 42 {
		t.Errorf("answer = %v", v)
	}

	cls := fx.get(t, fx.mod, "Counter")
	if err := fx.mod.Set("alias", cls); err != nil {
		t.Fatal(err)
	}
	alias := fx.get(t, fx.mod, "alias")
	if !alias.Equal(cls) {
		t.Error("proxy did not pass through unchanged")
	}

	fn := guestbridge.HostFunc(func(context.Context, []any, map[string]any) (any, error) {
		return "from host", nil
	})
	if err := fx.mod.Set("hostfn", fn); err != nil {
		t.Fatal(err)
	}
	if v, _ := fx.mod.Get("hostfn"); v == nil {
		t.Error("host callable did not decode")
	} else if _, ok := v.(guestbridge.HostFunc); !ok {
		t.Errorf("hostfn decoded to %T, want the host function", v)
	}
	apply := fx.get(t, fx.mod, "apply").SetMode(WithAsyncOverride(true))
	hostfn := fx.get(t, fx.mod.NewMode(WithGetReference(true)), "hostfn")
	if !hostfn.IsCallable() {
		t.Error("host callable should be callable from the host")
	}
	v, err := apply.Call(ctx, hostfn)
	if err != nil || v != "from host" {
		t.Errorf("apply(hostfn) = %v, %v", v, err)
	}

	num := fx.f.Proxy(fx.e.Int(1))
	err = num.Set("x", 1)
	var exc *Exception
	if !stderrors.As(err, &exc) {
		t.Errorf("write to int = %v, want guest error", err)
	}
}

func TestProxy_Exception(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	boom := fx.get(t, fx.mod, "boom")

	_, err := boom.Call(ctx)
	var exc *Exception
	if !stderrors.As(err, &exc) {
		t.Fatalf("boom() = %v, want *Exception", err)
	}
	if exc.Message != "bad value" {
		t.Errorf("message = %q", exc.Message)
	}
	if name, ok := exc.ClassName(); !ok || name != "ValueError" {
		t.Errorf("class = %q, %v", name, ok)
	}
	if exc.Name() != "GuestException [#ValueError]" {
		t.Errorf("name = %s", exc.Name())
	}
	if exc.IsStopIteration(ctx) {
		t.Error("ValueError reported as StopIteration")
	}
	if !exc.IsInstance(ctx, "Exception") {
		t.Error("ValueError is an Exception")
	}
	if exc.Guest == nil || exc.Guest.Type().String() != "#ValueError <class 'type'>" {
		t.Errorf("guest exception type label = %v", exc.Guest.Type())
	}

	fallback := fx.f.exception("lost", nil)
	if _, ok := fallback.ClassName(); ok || fallback.Name() != FallbackName {
		t.Errorf("fallback = %s", fallback.Name())
	}
	if fallback.IsStopIteration(ctx) {
		t.Error("fallback reported as StopIteration")
	}
	if fallback.Error() != "GuestException: lost" {
		t.Errorf("Error() = %s", fallback.Error())
	}
}

func TestProxy_AsyncGate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	apply := fx.get(t, fx.mod, "apply")

	var hostCalls atomic.Int32
	cb := guestbridge.HostFunc(func(_ context.Context, args []any, _ map[string]any) (any, error) {
		hostCalls.Add(1)
		n := args[0].(*big.Int)
		return new(big.Int).Add(n, big.NewInt(1)), nil
	})

	_, err := apply.Call(ctx, cb, 1)
	if !errors.IsKind(err, errors.KindUsage) {
		t.Fatalf("sync call with host function = %v, want usage error", err)
	}
	if fx.applied.Load() != 0 || hostCalls.Load() != 0 {
		t.Error("guest code ran before the gate")
	}
	if fx.f.Table().Len() != 0 {
		t.Errorf("gate left %d lent entries", fx.f.Table().Len())
	}

	_, err = apply.Call(ctx, []any{transcoder.NewList(cb)})
	if !errors.IsKind(err, errors.KindUsage) {
		t.Errorf("nested host function not gated: %v", err)
	}

	v, err := apply.NewMode(WithAsyncOverride(true)).Call(ctx, cb, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v.(*big.Int).Int64() != 2 {
		t.Errorf("override call = %v", v)
	}

	type outcome struct {
		v   any
		err error
	}
	results := make(chan outcome, 2)
	async := apply.Async(func(v any, err error) { results <- outcome{v, err} })
	if !async.Mode().ExplicitAsync || apply.Mode().ExplicitAsync {
		t.Error("Async should derive a proxy with explicit async set")
	}
	ret, err := async.Call(ctx, cb, 41)
	if err != nil || !guestbridge.IsUndefined(ret) {
		t.Fatalf("async call returned %v, %v", ret, err)
	}
	select {
	case r := <-results:
		if r.err != nil || r.v.(*big.Int).Int64() != 42 {
			t.Errorf("callback got %v, %v", r.v, r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
	_ = fx.e.Close()
	if len(results) != 0 {
		t.Error("callback fired more than once")
	}
}

func TestProxy_NewModeKeepsAsync(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	apply := fx.get(t, fx.mod, "apply")

	cb := guestbridge.HostFunc(func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return new(big.Int).Mul(args[0].(*big.Int), big.NewInt(3)), nil
	})

	remoded := apply.Async(nil).NewMode(WithGetReference(true))
	if !remoded.Mode().ExplicitAsync || !remoded.Mode().GetReference {
		t.Fatalf("mode = %+v, want explicit async with get reference", remoded.Mode())
	}
	ret, err := remoded.Call(ctx, cb, 5)
	if err != nil {
		t.Fatalf("call through re-moded async proxy: %v", err)
	}
	fut, ok := ret.(*Future)
	if !ok {
		t.Fatalf("call returned %T, want *Future", ret)
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	v, err := fut.Await(wctx)
	if err != nil {
		t.Fatal(err)
	}
	if p, ok := v.(*Proxy); ok {
		v, err = p.Materialize()
		if err != nil {
			t.Fatal(err)
		}
	}
	if n, ok := v.(*big.Int); !ok || n.Int64() != 15 {
		t.Errorf("result = %v", v)
	}
}

func TestProxy_AsyncFuture(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	apply := fx.get(t, fx.mod, "apply").Async(nil)

	threads := make(chan string, 1)
	cb := guestbridge.HostFunc(func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
		threads <- fx.e.ThreadID(ctx)
		return "done", nil
	})

	v, err := apply.Call(ctx, cb)
	if err != nil {
		t.Fatal(err)
	}
	fut, ok := v.(*Future)
	if !ok {
		t.Fatalf("async call without callback = %T, want *Future", v)
	}
	res, err := fut.Await(ctx)
	if err != nil || res != "done" {
		t.Errorf("Await = %v, %v", res, err)
	}
	if th := <-threads; th == fx.e.ThreadID(ctx) {
		t.Error("host callback ran on the main guest thread")
	}

	boom := fx.get(t, fx.mod, "apply").Async(nil)
	fail := guestbridge.HostFunc(func(context.Context, []any, map[string]any) (any, error) {
		return nil, stderrors.New("host failed")
	})
	v, _ = boom.Call(ctx, fail)
	_, err = v.(*Future).Await(ctx)
	var exc *Exception
	if !stderrors.As(err, &exc) || !strings.Contains(exc.Message, "host failed") {
		t.Errorf("future error = %v", err)
	}
}

func TestProxy_HostRaisesGuestException(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	apply := fx.get(t, fx.mod, "apply").SetMode(WithAsyncOverride(true))
	boom := fx.get(t, fx.mod, "boom")

	var original *Exception
	cb := guestbridge.HostFunc(func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
		_, err := boom.Call(ctx)
		stderrors.As(err, &original)
		return nil, err
	})
	_, err := apply.Call(ctx, cb)
	var exc *Exception
	if !stderrors.As(err, &exc) {
		t.Fatalf("err = %v", err)
	}
	if original == nil || !exc.Guest.Equal(original.Guest) {
		t.Error("guest exception did not keep its identity across the host callback")
	}
}

func TestProxy_Iterate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	list := fx.f.Proxy(fx.e.List(fx.e.Str("a"), fx.e.Str("b"), fx.e.Str("c")))
	got, err := list.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []any{"a", "b", "c"}) {
		t.Errorf("items = %v", got)
	}

	cls := fx.get(t, fx.mod, "Counter")
	inst, _ := cls.Call(ctx)
	counter := inst.(*Proxy)
	if !counter.IsIterable() || counter.Variant() != Iterable {
		t.Fatal("Counter instance should be iterable")
	}
	n := 0
	for v, err := range counter.Iterate(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if v.(*big.Int).Int64() != int64(n) {
			t.Errorf("item %d = %v", n, v)
		}
	}
	if n != 3 {
		t.Errorf("iterated %d items, want 3", n)
	}

	refs, err := counter.NewMode(WithGetReferenceOnIterate(true)).All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range refs {
		if _, ok := r.(*Proxy); !ok {
			t.Errorf("GetReferenceOnIterate item = %T", r)
		}
	}

	empty, err := fx.mod.All(ctx)
	if err != nil || len(empty) != 0 {
		t.Errorf("non-iterable yielded %v, %v", empty, err)
	}

	fnIter, _ := list.Get(KeyIter)
	count := 0
	for range fnIter.(func(context.Context) iter.Seq2[any, error])(ctx) {
		count++
	}
	if count != 3 {
		t.Errorf("$iter yielded %d", count)
	}
}

func TestProxy_IterateStopSubclass(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	e := fx.e

	exhausted := e.NewClass("Exhausted", []*engine.Object{e.Type("StopIteration")}, nil)
	remaining := 2
	countdown := e.NewClass("Countdown", nil, map[string]engine.NativeFunc{
		"__iter__": func(_ context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
			return args[0], nil
		},
		"__next__": func(_ context.Context, _ []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
			if remaining == 0 {
				return nil, e.RaiseClass(exhausted, "finished")
			}
			remaining--
			return e.Int(int64(remaining)), nil
		},
	})
	failing := e.NewClass("Failing", nil, map[string]engine.NativeFunc{
		"__iter__": func(_ context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
			return args[0], nil
		},
		"__next__": func(context.Context, []*engine.Object, map[string]*engine.Object) (*engine.Object, error) {
			return nil, e.Raise("ValueError", "broken iterator")
		},
	})

	inst, err := fx.f.Proxy(countdown).Call(ctx)
	if err != nil {
		t.Fatal(err)
	}
	items, err := inst.(*Proxy).All(ctx)
	if err != nil || len(items) != 2 {
		t.Errorf("countdown = %v, %v", items, err)
	}

	inst, _ = fx.f.Proxy(failing).Call(ctx)
	items, err = inst.(*Proxy).All(ctx)
	var exc *Exception
	if !stderrors.As(err, &exc) || len(items) != 0 {
		t.Fatalf("failing iterator = %v, %v", items, err)
	}
	if name, _ := exc.ClassName(); name != "ValueError" {
		t.Errorf("class = %s", name)
	}
}

func TestProxy_IdentityAndCycles(t *testing.T) {
	fx := newFixture(t)
	e := fx.e

	shared := e.List(e.Int(1))
	outer := e.List(shared, shared)
	self := e.List()
	if err := e.AddItem(self, nil, self); err != nil {
		t.Fatal(err)
	}
	mod := e.Module("demo")
	e.Define(mod, "outer", outer)
	e.Define(mod, "self", self)

	v, err := fx.mod.Get("outer")
	if err != nil {
		t.Fatal(err)
	}
	items := v.(*transcoder.List).Items
	if items[0] != items[1] {
		t.Error("shared sub-list decoded twice")
	}

	v, err = fx.mod.Get("self")
	if err != nil {
		t.Fatal(err)
	}
	l := v.(*transcoder.List)
	if l.Items[0] != any(l) {
		t.Error("self reference does not point back to the list")
	}
}

func TestProxy_ForeignHandlePanics(t *testing.T) {
	fx := newFixture(t)
	other := engine.New()
	defer func() {
		err, ok := recover().(error)
		if !ok || !errors.IsKind(err, errors.KindContract) {
			t.Errorf("recovered %v, want contract error", err)
		}
	}()
	fx.f.Proxy(other.Int(1))
}
