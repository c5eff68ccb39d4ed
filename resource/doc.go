// Package resource keeps the host values and host callables that have been
// lent to the guest runtime.
//
// The guest never holds a Go value directly. When the marshalling layer hands
// a host function or an opaque Go value to the guest it registers the value
// here and passes the returned Handle instead. The guest engine stores the
// handle inside a wrapper object and releases it when the wrapper is dropped.
//
// # Handle Table
//
//	table := resource.NewTable()
//
//	// Lend a host callable
//	h := table.Register(resource.KindCallable, fn)
//
//	// Resolve it when the guest calls back
//	err := table.WithCallable(h, func(fn guestbridge.HostFunc) error {
//	    ...
//	})
//
//	// The guest dropped its wrapper
//	table.Release(h)
//
// # Borrows
//
// A callable is borrowed for the duration of each invocation. Releasing a
// handle with outstanding borrows marks it and the entry is dropped when
// the last borrow returns, so a host function can never vanish mid-call.
//
// # Observers
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    if e.Type == resource.EventReleased {
//	        log.Printf("host entry %d released", e.Handle)
//	    }
//	}))
//
// Values implementing Dropper get Drop called once their entry is gone.
// Close drops everything and rejects further registrations.
package resource
