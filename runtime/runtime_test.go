package runtime

import (
	"context"
	stderrors "errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/config"
	"github.com/wippyai/guest-bridge/engine"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/proxy"
)

// newRuntime starts a runtime with a guest module "demo" holding apply,
// which calls its first argument with the rest.
func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Finalize(ctx) })

	e := rt.Engine()
	mod := e.Module("demo")
	e.Define(mod, "apply", e.Func("apply", func(ctx context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
		return e.CallObject(ctx, args[0], args[1:], nil)
	}))
	e.Define(mod, "answer", e.Int(42))
	return rt
}

func bigEq(v any, want int64) bool {
	n, ok := v.(*big.Int)
	return ok && n.Cmp(big.NewInt(want)) == 0
}

func double(_ context.Context, args []any, _ map[string]any) (any, error) {
	n, ok := args[0].(*big.Int)
	if !ok {
		return nil, stderrors.New("expected an int")
	}
	return new(big.Int).Mul(n, big.NewInt(2)), nil
}

func TestRuntime_Import(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	mod, err := rt.Import(ctx, "demo")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	v, err := mod.Get("answer")
	if err != nil || !bigEq(v, 42) {
		t.Errorf("answer = %v, %v", v, err)
	}

	_, err = rt.Import(ctx, "missing")
	var exc *proxy.Exception
	if !stderrors.As(err, &exc) {
		t.Fatalf("Import(missing) error = %v, want *proxy.Exception", err)
	}
	if name, _ := exc.ClassName(); name != "ModuleNotFoundError" {
		t.Errorf("exception class = %q", name)
	}
}

func TestRuntime_GlobalAndBuiltins(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	g, err := rt.Global(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Set("counter", 7); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := g.Get("counter"); !bigEq(v, 7) {
		t.Errorf("counter = %v", v)
	}

	b, err := rt.Builtins(ctx)
	if err != nil {
		t.Fatal(err)
	}
	length, err := b.Attr("len")
	if err != nil || length == nil {
		t.Fatalf("len = %v, %v", length, err)
	}
	v, err := length.Call(ctx, []any{1, 2, 3})
	if err != nil || !bigEq(v, 3) {
		t.Errorf("len([1,2,3]) = %v, %v", v, err)
	}
}

func TestRuntime_ConfigMode(t *testing.T) {
	cfg := config.Default()
	cfg.Mode.AttributeCheck = false
	cfg.Engine.Workers = 2
	rt := newRuntime(t, WithConfig(cfg))

	mod, err := rt.Import(context.Background(), "demo")
	if err != nil {
		t.Fatal(err)
	}
	if mod.Mode().AttributeCheck {
		t.Error("configured mode not applied")
	}
	if _, err := mod.Get("nope"); err == nil {
		t.Error("lookup without attribute check should fail")
	}

	rt2 := newRuntime(t, WithConfig(cfg), WithDefaultMode(proxy.DefaultMode()))
	mod2, _ := rt2.Import(context.Background(), "demo")
	if !mod2.Mode().AttributeCheck {
		t.Error("WithDefaultMode should override config")
	}
}

func TestRuntime_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Workers = 0
	if _, err := New(context.Background(), WithConfig(cfg)); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("New with invalid config = %v", err)
	}
}

func TestRuntime_NotInitialized(t *testing.T) {
	var rt *Runtime
	ctx := context.Background()

	if _, err := rt.Import(ctx, "demo"); !errors.IsKind(err, errors.KindNotInitialized) {
		t.Errorf("Import = %v", err)
	}
	if _, err := rt.ThreadID(ctx); !errors.IsKind(err, errors.KindNotInitialized) {
		t.Errorf("ThreadID = %v", err)
	}
	if err := rt.Finalize(ctx); !errors.IsKind(err, errors.KindNotInitialized) {
		t.Errorf("Finalize = %v", err)
	}
}

func TestRuntime_Finalize(t *testing.T) {
	ctx := context.Background()
	var exits atomic.Int32
	rt, err := New(ctx, WithLogger(zap.NewNop()), WithExitHandler(func(context.Context) error {
		exits.Add(1)
		return nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Hosts().RegisterFunc("host", "double", double); err != nil {
		t.Fatal(err)
	}
	if rt.Factory().Table().Len() == 0 {
		t.Fatal("registered function should be lent")
	}

	if err := rt.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if exits.Load() != 1 {
		t.Errorf("exit handler ran %d times", exits.Load())
	}
	if rt.Factory().Table().Len() != 0 {
		t.Error("table not released")
	}

	calls := []struct {
		name string
		fn   func() error
	}{
		{"Finalize", func() error { return rt.Finalize(ctx) }},
		{"Import", func() error { _, err := rt.Import(ctx, "demo"); return err }},
		{"Global", func() error { _, err := rt.Global(ctx); return err }},
		{"Builtins", func() error { _, err := rt.Builtins(ctx); return err }},
		{"ThreadID", func() error { _, err := rt.ThreadID(ctx); return err }},
		{"Callback", func() error { _, err := rt.Callback(ctx, double); return err }},
		{"Drain", func() error { return rt.Drain(ctx) }},
		{"RegisterFunc", func() error { return rt.Hosts().RegisterFunc("host", "x", double) }},
	}
	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			err := c.fn()
			if !errors.IsKind(err, errors.KindFinalized) {
				t.Errorf("%s after Finalize = %v", c.name, err)
			}
		})
	}
	if exits.Load() != 1 {
		t.Errorf("exit handler ran again: %d", exits.Load())
	}
}

func TestRuntime_MarshalAfterFinalize(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	mod, err := rt.Import(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}
	apply, _ := mod.Attr("apply")
	if err := rt.Finalize(ctx); err != nil {
		t.Fatal(err)
	}

	_, err = apply.NewMode(proxy.WithAsyncOverride(true)).Call(ctx, guestbridge.HostFunc(double), 21)
	if !errors.IsKind(err, errors.KindFinalized) {
		t.Errorf("call lending a host function after Finalize = %v, want finalized", err)
	}
	var exc *proxy.Exception
	if stderrors.As(err, &exc) {
		t.Errorf("lend failure surfaced as a guest exception: %v", exc)
	}
}

func TestRuntime_FinalizeExitError(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx, WithLogger(zap.NewNop()), WithExitHandler(func(context.Context) error {
		return stderrors.New("flush failed")
	}))
	if err != nil {
		t.Fatal(err)
	}
	err = rt.Finalize(ctx)
	if err == nil || !errors.IsKind(err, errors.KindUsage) {
		t.Errorf("Finalize = %v, want wrapped exit error", err)
	}
}

func TestRuntime_Callback(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	cb, err := rt.Callback(ctx, double)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if !cb.IsCallable() {
		t.Fatal("callback should be callable")
	}
	v, err := cb.Call(ctx, 21)
	if err != nil || !bigEq(v, 42) {
		t.Errorf("cb(21) = %v, %v", v, err)
	}

	// Guest code can call the callback without the async path.
	mod, _ := rt.Import(ctx, "demo")
	apply, _ := mod.Attr("apply")
	v, err = apply.Call(ctx, cb, 5)
	if err != nil || !bigEq(v, 10) {
		t.Errorf("apply(cb, 5) = %v, %v", v, err)
	}

	if _, err := rt.Callback(ctx, nil); !errors.IsKind(err, errors.KindUsage) {
		t.Errorf("Callback(nil) = %v", err)
	}
}

func TestRuntime_AsyncThroughLoop(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	mainThread, err := rt.ThreadID(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var hostThread atomic.Value
	hostFn := func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		id, _ := rt.ThreadID(ctx)
		hostThread.Store(id)
		return double(ctx, args, nil)
	}

	mod, _ := rt.Import(ctx, "demo")
	apply, _ := mod.Attr("apply")

	var (
		calls atomic.Int32
		got   any
		gerr  error
	)
	res, err := apply.Async(func(v any, err error) {
		calls.Add(1)
		got, gerr = v, err
	}).Call(ctx, guestbridge.HostFunc(hostFn), 4)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !guestbridge.IsUndefined(res) {
		t.Errorf("callback call returned %v", res)
	}

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rt.Drain(dctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("callback ran %d times", calls.Load())
	}
	if gerr != nil || !bigEq(got, 8) {
		t.Errorf("result = %v, %v", got, gerr)
	}
	if id, _ := hostThread.Load().(string); id == "" || id == mainThread {
		t.Errorf("host function ran on thread %q, main is %q", id, mainThread)
	}
}

func TestRuntime_BridgeModule(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	rt := newRuntime(t, WithLogger(zap.New(core)))
	ctx := context.Background()

	b, err := rt.Import(ctx, BridgeModule)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"callback_factory", "log", "thread_id", "debug_enabled"} {
		if !b.Has(name) {
			t.Errorf("%s missing from %s", name, BridgeModule)
		}
	}

	logFn, _ := b.Attr("log")
	if _, err := logFn.Call(ctx, "hello", 3); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage("guest").All()
	if len(entries) != 1 {
		t.Fatalf("guest log entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["thread"] == "" {
		t.Error("guest log without thread field")
	}

	debug, _ := b.Attr("debug_enabled")
	if v, _ := debug.Call(ctx); v != true {
		t.Errorf("debug_enabled() = %v", v)
	}

	threadID, _ := b.Attr("thread_id")
	want, _ := rt.ThreadID(ctx)
	if v, _ := threadID.Call(ctx); v != want {
		t.Errorf("thread_id() = %v, want %s", v, want)
	}
}
