// Package engine provides an in-process guest runtime for the bridge.
//
// The engine is a heap of dynamically typed objects. Every object carries
// a type tag, a class and an ordered attribute dictionary; classes carry a
// method resolution order. It implements guestbridge.Engine, so the proxy
// layer drives it exactly as it would drive an embedded interpreter.
//
// # Object Model
//
//	Object    - any guest value; *Object is the guestbridge.Handle
//	Class     - tag.Type object with bases and MRO, see NewClass
//	Function  - NativeFunc wrapped as a guest function, see Func
//	Method    - function bound to an instance on attribute lookup
//	Module    - named namespace, see Module and Import
//
// Builtin values cover the tag set: None, bool, int (arbitrary precision),
// float, complex, str, bytes, bytearray, tuple, list, dict, set and
// datetime, each with the operator methods the bridge shortcuts target.
//
// # Builtins
//
// The builtins module exposes isinstance, len, str, repr, iter, next,
// callable and hasattr, the builtin types and an exception hierarchy
// rooted at BaseException, StopIteration included.
//
// # Exceptions
//
// Native functions raise by returning the error from Raise or RaiseClass,
// a *guestbridge.Raised carrying the exception instance. Any other error
// is raised as RuntimeError.
//
// # Host Callables
//
// Host wrappers (tag.HostCallable, tag.HostValue) hold a host entry id.
// Calling a host callable dispatches through the installed
// guestbridge.HostInvoker; Drop hands the entry back to the host.
//
// # Threads
//
// Call runs on the caller's goroutine, reported as the main thread.
// CallAsync runs on a worker goroutine with its own thread id; at most
// WithWorkers calls run at once. Close waits for in-flight async calls.
package engine
