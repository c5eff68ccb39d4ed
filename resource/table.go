package resource

import (
	"context"
	"fmt"
	"sync"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
)

// Table maps handles to host values and host callables lent to the guest.
// It is safe for concurrent use; guest worker threads call back through it.
type Table struct {
	store     *store
	observers map[uint64]Observer
	nextObs   uint64
	obsMu     sync.RWMutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		store:     newStore(),
		observers: make(map[uint64]Observer),
	}
}

// Register stores value and returns its handle. It returns 0 once the
// table is closed.
func (t *Table) Register(kind Kind, value any) Handle {
	h, ok := t.store.create(kind, value)
	if !ok {
		return 0
	}
	t.notify(Event{Type: EventRegistered, Handle: h, Kind: kind, Value: value})
	return h
}

// RegisterCallable lends fn to the guest.
func (t *Table) RegisterCallable(fn guestbridge.HostFunc) Handle {
	return t.Register(KindCallable, fn)
}

// RegisterValue lends an opaque host value to the guest.
func (t *Table) RegisterValue(v any) Handle {
	return t.Register(KindValue, v)
}

// Get retrieves a live entry by handle.
func (t *Table) Get(h Handle) (any, bool) {
	v, _, ok := t.store.get(h)
	return v, ok
}

// GetKind retrieves a live entry only if it has the expected kind.
func (t *Table) GetKind(h Handle, kind Kind) (any, bool) {
	v, k, ok := t.store.get(h)
	if !ok || k != kind {
		return nil, false
	}
	return v, true
}

// Value returns the host value registered under h.
func (t *Table) Value(h Handle) (any, bool) {
	return t.GetKind(h, KindValue)
}

// WithCallable borrows the callable under h for the duration of fn.
// A release that arrives meanwhile takes effect when fn returns.
func (t *Table) WithCallable(h Handle, fn func(guestbridge.HostFunc) error) error {
	v, kind, ok := t.store.borrow(h)
	if !ok {
		return errors.NotFound(errors.PhaseInvoke, nil, fmt.Sprintf("host callable %d", h))
	}
	t.notify(Event{Type: EventBorrowed, Handle: h, Kind: kind, Value: v})
	defer t.giveBack(h)

	f, isFunc := v.(guestbridge.HostFunc)
	if kind != KindCallable || !isFunc {
		return errors.TypeMismatch(errors.PhaseInvoke, nil, fmt.Sprintf("%T", v), kind.String())
	}
	return fn(f)
}

// Invoke calls the host callable under h.
func (t *Table) Invoke(ctx context.Context, h Handle, args []any, kwargs map[string]any) (any, error) {
	var out any
	err := t.WithCallable(h, func(fn guestbridge.HostFunc) error {
		var err error
		out, err = fn(ctx, args, kwargs)
		return err
	})
	return out, err
}

func (t *Table) giveBack(h Handle) {
	v, kind, dropped := t.store.giveBack(h)
	t.notify(Event{Type: EventReturned, Handle: h, Kind: kind, Value: v})
	if dropped {
		t.dropped(h, kind, v)
	}
}

// Release drops the entry under h. With invocations in flight the drop is
// deferred until the last one returns. It reports whether h was live.
func (t *Table) Release(h Handle) bool {
	v, kind, found, dropped := t.store.release(h)
	if dropped {
		t.dropped(h, kind, v)
	}
	return found
}

func (t *Table) dropped(h Handle, kind Kind, v any) {
	if d, ok := v.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventReleased, Handle: h, Kind: kind, Value: v})
}

// Borrows reports the number of invocations in flight for h.
func (t *Table) Borrows(h Handle) uint32 {
	return t.store.borrows(h)
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (t *Table) Subscribe(o Observer) (unsubscribe func()) {
	t.obsMu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = o
	t.obsMu.Unlock()

	return func() {
		t.obsMu.Lock()
		delete(t.observers, id)
		t.obsMu.Unlock()
	}
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return len(t.store.live())
}

// Clear releases every live entry.
func (t *Table) Clear() {
	for _, h := range t.store.live() {
		t.Release(h)
	}
}

// Close drops all entries and stops accepting registrations.
func (t *Table) Close() error {
	for _, v := range t.store.close() {
		if d, ok := v.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
