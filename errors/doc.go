// Package errors provides structured error types for the guest bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: attribute path, host/guest type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
//		Path("config", "port").
//		HostType("chan int").
//		GuestType("integer").
//		Detail("channels have no guest representation").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Usage(errors.PhaseInvoke, "explicit async call with host callable arguments")
//	err := errors.Finalized(errors.PhaseRuntime)
//
// Usage errors are returned to the caller. Contract errors signal a broken
// internal invariant and are raised with panic. Exceptions raised by guest
// code are not represented here; the proxy package bridges them.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
