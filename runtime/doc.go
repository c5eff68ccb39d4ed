// Package runtime provides the top-level API of the bridge.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Finalize(ctx)
//
//	// Import a guest module
//	mod, err := rt.Import(ctx, "demo")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Read and call attributes through the proxy
//	greet, _ := mod.Attr("greet")
//	result, err := greet.Call(ctx, "World")
//	fmt.Println(result) // "Hello, World!"
//
// # Lifecycle
//
// New is initialization. Every operation of a nil runtime fails with a
// not-initialized error, and after Finalize every operation, including a
// second Finalize, fails with a finalized error.
//
// # Host Functions
//
// Host functions reach the guest in two ways. Passing one as a call
// argument lends it for that call and requires the async path:
//
//	apply, _ := mod.Attr("apply")
//	apply.Async(func(v any, err error) {
//	    fmt.Println(v, err)
//	}).Call(ctx, hostFn, 1, 2)
//	rt.Drain(ctx)
//
// Registering one defines it on a guest module for the lifetime of the
// runtime:
//
//	rt.Hosts().RegisterFunc("host", "now", nowFn)
//
// Structs implementing Host are registered method by method:
//
//	type Clock struct{}
//	func (Clock) Module() string { return "clock" }
//	func (Clock) UnixNano(ctx context.Context, args []any, kw map[string]any) (any, error)
//
//	rt.Hosts().RegisterHost(Clock{}) // clock.unix_nano
//
// # Completions
//
// Async callbacks are posted to the runtime Loop and run on the goroutine
// that calls Loop.RunOnce, Loop.Run or Runtime.Drain.
//
// # Coercion
//
// CoerceInt and CoerceTuple force guest int and tuple representations for
// values that would otherwise marshal as float or list.
package runtime
