package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/wippyai/guest-bridge/engine"
	"github.com/wippyai/guest-bridge/runtime"
	"github.com/wippyai/guest-bridge/transcoder"
)

// clock is exposed to the guest as the "clock" module.
type clock struct{}

func (clock) Module() string { return "clock" }

func (clock) Now(context.Context, []any, map[string]any) (any, error) {
	return time.Now().UTC(), nil
}

// echo is the host function -async passes to the guest. It returns its
// arguments as a tuple.
func echo(_ context.Context, args []any, _ map[string]any) (any, error) {
	return transcoder.NewTuple(args...), nil
}

// installDemo defines the "demo" guest module.
func installDemo(rt *runtime.Runtime) error {
	if err := rt.Hosts().RegisterHost(clock{}); err != nil {
		return err
	}
	if err := rt.Hosts().RegisterFunc("host", "echo", echo); err != nil {
		return err
	}

	e := rt.Engine()
	mod := e.Module("demo")

	e.Define(mod, "version", e.Str("1.0"))
	e.Define(mod, "year", e.Int(1789))
	e.Define(mod, "pi", e.Float(3.14159))
	e.Define(mod, "primes", e.List(e.Int(2), e.Int(3), e.Int(5), e.Int(7)))

	e.Define(mod, "greet", e.Func("greet", func(_ context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
		name := "World"
		if len(args) > 0 {
			name = engine.Str(args[0])
		}
		return e.Str(fmt.Sprintf("Hello, %s!", name)), nil
	}))

	e.Define(mod, "add", e.Func("add", func(ctx context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
		if len(args) == 0 {
			return e.Int(0), nil
		}
		acc := args[0]
		for _, a := range args[1:] {
			add, err := e.GetAttr(acc, "__add__")
			if err != nil {
				return nil, err
			}
			if acc, err = e.CallObject(ctx, add.(*engine.Object), []*engine.Object{a}, nil); err != nil {
				return nil, err
			}
		}
		return acc, nil
	}))

	e.Define(mod, "apply", e.Func("apply", func(ctx context.Context, args []*engine.Object, kwargs map[string]*engine.Object) (*engine.Object, error) {
		if len(args) == 0 {
			return nil, e.Raise("TypeError", "apply() missing the function argument")
		}
		return e.CallObject(ctx, args[0], args[1:], kwargs)
	}))

	e.Define(mod, "fail", e.Func("fail", func(_ context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
		msg := "demo failure"
		if len(args) > 0 {
			msg = engine.Str(args[0])
		}
		return nil, e.Raise("ValueError", "%s", msg)
	}))

	e.Define(mod, "stamp", e.Func("stamp", func(ctx context.Context, _ []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
		clk, err := e.Import("clock")
		if err != nil {
			return nil, err
		}
		now, err := e.GetAttr(clk, "now")
		if err != nil {
			return nil, err
		}
		return e.CallObject(ctx, now.(*engine.Object), nil, nil)
	}))

	e.Define(mod, "Counter", e.NewClass("Counter", nil, map[string]engine.NativeFunc{
		"__init__": func(_ context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
			limit := e.Int(3)
			if len(args) > 1 {
				limit = args[1]
			}
			return nil, e.SetAttr(args[0], "limit", limit)
		},
		"__iter__": func(_ context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
			limit, err := e.GetAttr(args[0], "limit")
			if err != nil {
				return nil, err
			}
			n, err := e.Payload(limit)
			if err != nil {
				return nil, err
			}
			bound, ok := n.(*big.Int)
			if !ok || !bound.IsInt64() {
				return nil, e.Raise("TypeError", "limit must be an int")
			}
			items := make([]*engine.Object, 0, bound.Int64())
			for i := int64(1); i <= bound.Int64(); i++ {
				items = append(items, e.Int(i))
			}
			return e.Iterator(items), nil
		},
	}))
	return nil
}
