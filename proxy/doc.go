// Package proxy presents guest values to host code.
//
// A Factory wraps guest handles into *Proxy values and marshals values in
// both directions. A proxy's surface is computed from what the guest
// value declares:
//
//	Get, Set, Has, Keys   attribute access and enumeration
//	Call, CallKw          invocation, a no-op on non-callables
//	Iterate, All          lazy iteration until the guest StopIteration
//	Type, Inspect         introspection and display
//
// Reserved capability keys ($isCallable, $mode, $async, $add, ...) take
// precedence over guest attributes of the same name and are resolved by
// Get into Go values.
//
// # Modes
//
// Each proxy carries a Mode. SetMode changes it in place; NewMode derives
// a new proxy over the same guest value. Results of calls and attribute
// reads are wrapped with the factory default mode.
//
// # Invocation
//
// Arguments are marshalled in one session. When a host function is among
// them the call may be reentered from a guest thread, so it must go
// through a proxy obtained from Async, unless Mode.AsyncOverride is set.
// Otherwise the call fails with a usage error before guest code runs.
// Async calls complete through the factory's Poster, either into the
// supplied Callback or into a *Future.
//
// # Errors
//
// Guest exceptions surface as *Exception, which keeps the guest exception
// object and its class name. Usage errors are *errors.Error with
// errors.KindUsage. Handing a foreign value to the factory is a contract
// violation and panics.
package proxy
