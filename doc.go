// Package guestbridge marshals values and calls between Go host code and an
// embedded, dynamically typed guest runtime living in the same process.
//
// Host code works with guest functions, classes, instances and iterables as if
// they were native values; guest code can call back into host functions that
// were handed to it.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	guestbridge/         Root package with the Guest Engine boundary
//	├── tag/             Type tags reported for guest values
//	├── transcoder/      Host value model, cycle tracking, decode/encode dispatch
//	├── proxy/           Lazy proxies, call modes, invocation, iteration, exceptions
//	├── engine/          Reference in-process guest engine
//	├── runtime/         High-level API: lifecycle, imports, coercion, host loop
//	├── resource/        Handle table for host values lent to the guest
//	├── config/          TOML configuration
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Finalize(ctx)
//
//	mod, err := rt.Import(ctx, "demo")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	greet, _ := mod.Get(ctx, "greet")
//	out, err := greet.(*proxy.Proxy).Call(ctx, "World")
//	fmt.Println(out) // "Hello, World!"
//
// # Values
//
// Scalars cross the boundary as native Go values: guest None is nil, integers
// are *big.Int, floats are float64, strings are string, bytes are []byte.
// Guest lists, tuples, dicts and sets are materialized into pointer containers
// so shared and cyclic structure keeps its identity. Everything else (objects,
// functions, classes) is wrapped in a *proxy.Proxy.
//
// # Host Callables
//
// A guestbridge.HostFunc passed as a call argument may be invoked by the guest from
// a thread it owns. Such calls must go through the proxy's Async entry point
// unless the caller opts out with the AsyncOverride mode.
//
// # Thread Safety
//
// Proxies carry unsynchronized mode state and must be used from a single host
// goroutine. Engines are safe for concurrent use.
package guestbridge
