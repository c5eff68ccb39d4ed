package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/guest-bridge/engine"
)

// BridgeModule is the guest module holding the bootstrap helpers.
const BridgeModule = "__bridge"

const (
	callbackFactoryName = "callback_factory"
	callbackTarget      = "_fn"
)

// installBridge defines the __bridge module:
//
//	callback_factory(fn)  callable instance forwarding to fn
//	log(*parts)           debug log tagged with the calling guest thread
//	thread_id()           id of the calling guest thread
//	debug_enabled()       whether debug logging is on
func (r *Runtime) installBridge() *engine.Object {
	e := r.eng
	mod := e.Module(BridgeModule)

	factory := e.NewClass(callbackFactoryName, nil, map[string]engine.NativeFunc{
		"__init__": func(_ context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
			if len(args) != 2 || !e.IsCallable(args[1]) {
				return nil, e.Raise("TypeError", "callback_factory expects one callable")
			}
			e.Define(args[0], callbackTarget, args[1])
			return nil, nil
		},
		"__call__": func(ctx context.Context, args []*engine.Object, kwargs map[string]*engine.Object) (*engine.Object, error) {
			fn, err := e.GetAttr(args[0], callbackTarget)
			if err != nil {
				return nil, err
			}
			return e.CallObject(ctx, fn.(*engine.Object), args[1:], kwargs)
		},
	})
	e.Define(mod, callbackFactoryName, factory)

	e.Define(mod, "log", e.Func("log", func(ctx context.Context, args []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = engine.Str(a)
		}
		r.log.Debug("guest",
			zap.Strings("message", parts),
			zap.String("thread", e.ThreadID(ctx)))
		return nil, nil
	}))
	e.Define(mod, "thread_id", e.Func("thread_id", func(ctx context.Context, _ []*engine.Object, _ map[string]*engine.Object) (*engine.Object, error) {
		return e.Str(e.ThreadID(ctx)), nil
	}))
	e.Define(mod, "debug_enabled", e.Func("debug_enabled", func(context.Context, []*engine.Object, map[string]*engine.Object) (*engine.Object, error) {
		return e.Bool(r.log.Core().Enabled(zap.DebugLevel)), nil
	}))
	return mod
}
