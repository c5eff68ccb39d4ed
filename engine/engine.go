package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/tag"
)

// DefaultWorkers bounds the number of concurrent async guest calls.
const DefaultWorkers = 4

// Engine is an in-process guest runtime: a heap of dynamically typed
// objects with classes, modules, exceptions and iterators. It implements
// guestbridge.Engine and is safe for concurrent use.
type Engine struct {
	invoker    atomic.Pointer[invokerBox]
	sem        *semaphore.Weighted
	modules    map[string]*Object
	types      map[string]*Object
	builtins   *Object
	main       *Object
	none       *Object
	yes        *Object
	no         *Object
	mainThread string
	wg         sync.WaitGroup
	closeMu    sync.Mutex
	nextID     atomic.Uint64
	pending    atomic.Int64
	modMu      sync.RWMutex
	workers    int64
	closed     atomic.Bool
}

type invokerBox struct {
	inv guestbridge.HostInvoker
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of guest worker threads for async calls.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = int64(n)
		}
	}
}

var _ guestbridge.Engine = (*Engine)(nil)

// New creates an engine with the builtins module, the __main__ module and
// the builtin type and exception hierarchy installed.
func New(opts ...Option) *Engine {
	e := &Engine{
		modules:    make(map[string]*Object),
		types:      make(map[string]*Object),
		workers:    DefaultWorkers,
		mainThread: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = semaphore.NewWeighted(e.workers)
	e.bootstrap()

	Logger().Debug("engine started",
		zap.Int64("workers", e.workers),
		zap.String("thread", e.mainThread))
	return e
}

func (e *Engine) newObject(t tag.Tag, cls *Object, payload any) *Object {
	return &Object{
		id:      e.nextID.Add(1),
		eng:     e,
		tag:     t,
		class:   cls,
		payload: payload,
	}
}

// SetHostInvoker installs the dispatcher for host callables.
func (e *Engine) SetHostInvoker(inv guestbridge.HostInvoker) {
	e.invoker.Store(&invokerBox{inv: inv})
}

func (e *Engine) hostInvoker() guestbridge.HostInvoker {
	if b := e.invoker.Load(); b != nil {
		return b.inv
	}
	return nil
}

// IsHandle reports whether v is an object of this engine.
func (e *Engine) IsHandle(v any) bool {
	o, ok := v.(*Object)
	return ok && o != nil && o.eng == e
}

// object converts a handle to an object of this engine. Foreign handles
// are a bug in the caller.
func (e *Engine) object(h guestbridge.Handle) *Object {
	if h == nil {
		return e.none
	}
	o, ok := h.(*Object)
	if !ok || o == nil || o.eng != e {
		panic(errors.New(errors.PhaseEngine, errors.KindContract).
			HostType(fmt.Sprintf("%T", h)).
			Detail("handle does not belong to this engine").
			Build())
	}
	return o
}

// Tag reports the type tag of h.
func (e *Engine) Tag(h guestbridge.Handle) tag.Tag {
	return e.object(h).tag
}

// TypeOf returns the class of h.
func (e *Engine) TypeOf(h guestbridge.Handle) guestbridge.Handle {
	return e.object(h).class
}

// Builtins returns the builtins module.
func (e *Engine) Builtins() guestbridge.Handle {
	return e.builtins
}

// BuiltinsModule returns the builtins module as an object.
func (e *Engine) BuiltinsModule() *Object {
	return e.builtins
}

// Main returns the __main__ module.
func (e *Engine) Main() *Object {
	return e.main
}

// Type returns the builtin type or exception class with the given name.
func (e *Engine) Type(name string) *Object {
	return e.types[name]
}

// Clone returns a new reference to h. Objects are shared, so the
// reference is h itself.
func (e *Engine) Clone(h guestbridge.Handle) guestbridge.Handle {
	if h == nil {
		panic(errors.Contract(errors.PhaseEngine, "clone of nil handle"))
	}
	return e.object(h)
}

// Drop tells the engine the host no longer references h. Host wrappers
// give their entry back to the host.
func (e *Engine) Drop(h guestbridge.Handle) {
	o := e.object(h)
	if o.tag != tag.HostCallable && o.tag != tag.HostValue {
		return
	}
	ref := o.payload.(*hostRef)
	o.mu.Lock()
	released := ref.released
	ref.released = true
	o.mu.Unlock()
	if released {
		return
	}
	if inv := e.hostInvoker(); inv != nil {
		inv.ReleaseHost(ref.id)
	}
}

// ThreadID reports the guest thread running under ctx. Calls made on the
// caller's goroutine report the main thread.
func (e *Engine) ThreadID(ctx context.Context) string {
	if id, ok := ctx.Value(threadKey{}).(string); ok {
		return id
	}
	return e.mainThread
}

type threadKey struct{}

// Pending returns the number of async calls not yet completed.
func (e *Engine) Pending() int64 {
	return e.pending.Load()
}

// Close waits for in-flight async calls and rejects new ones.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	if !e.closed.CompareAndSwap(false, true) {
		e.closeMu.Unlock()
		return nil
	}
	e.closeMu.Unlock()
	e.wg.Wait()
	Logger().Debug("engine closed")
	return nil
}

// Module returns the module registered under name, creating an empty one
// if needed.
func (e *Engine) Module(name string) *Object {
	e.modMu.Lock()
	defer e.modMu.Unlock()
	if m, ok := e.modules[name]; ok {
		return m
	}
	m := e.newObject(tag.Object, e.types["module"], nil)
	m.store("__name__", e.Str(name))
	e.modules[name] = m
	return m
}

// Import returns a registered module or raises ModuleNotFoundError.
func (e *Engine) Import(name string) (*Object, error) {
	e.modMu.RLock()
	m, ok := e.modules[name]
	e.modMu.RUnlock()
	if !ok {
		return nil, e.Raise("ModuleNotFoundError", "No module named '%s'", name)
	}
	return m, nil
}

// Modules lists the registered module names.
func (e *Engine) Modules() []string {
	e.modMu.RLock()
	defer e.modMu.RUnlock()
	names := make([]string, 0, len(e.modules))
	for n := range e.modules {
		names = append(names, n)
	}
	return names
}

// Define stores v as attribute name of target. Host Go values are not
// accepted; build them with the value constructors first.
func (e *Engine) Define(target *Object, name string, v *Object) *Object {
	target.store(name, v)
	return v
}

// None returns the None singleton.
func (e *Engine) None() *Object { return e.none }

// Bool returns the True or False singleton.
func (e *Engine) Bool(b bool) *Object {
	if b {
		return e.yes
	}
	return e.no
}

// Int creates an integer.
func (e *Engine) Int(n int64) *Object {
	return e.newObject(tag.Integer, e.types["int"], big.NewInt(n))
}

// BigInt creates an integer from an arbitrary precision value.
func (e *Engine) BigInt(n *big.Int) *Object {
	return e.newObject(tag.Integer, e.types["int"], new(big.Int).Set(n))
}

// Float creates a float.
func (e *Engine) Float(f float64) *Object {
	return e.newObject(tag.Float, e.types["float"], f)
}

// Complex creates a complex number.
func (e *Engine) Complex(c complex128) *Object {
	return e.newObject(tag.Complex, e.types["complex"], c)
}

// Str creates a string.
func (e *Engine) Str(s string) *Object {
	return e.newObject(tag.String, e.types["str"], s)
}

// Bytes creates an immutable byte string.
func (e *Engine) Bytes(b []byte) *Object {
	return e.newObject(tag.Bytes, e.types["bytes"], append([]byte(nil), b...))
}

// ByteArray creates a mutable byte buffer.
func (e *Engine) ByteArray(b []byte) *Object {
	return e.newObject(tag.ByteArray, e.types["bytearray"], append([]byte(nil), b...))
}

// DateTime creates a datetime.
func (e *Engine) DateTime(t time.Time) *Object {
	return e.newObject(tag.DateTime, e.types["datetime"], t)
}

// List creates a list.
func (e *Engine) List(items ...*Object) *Object {
	return e.newObject(tag.List, e.types["list"], &seq{items: items})
}

// Tuple creates a tuple.
func (e *Engine) Tuple(items ...*Object) *Object {
	return e.newObject(tag.Tuple, e.types["tuple"], &seq{items: items})
}

// Set creates a set. Unhashable members raise TypeError.
func (e *Engine) Set(items ...*Object) (*Object, error) {
	s := e.newObject(tag.Set, e.types["set"], &seq{index: make(map[string]int)})
	for _, it := range items {
		if err := e.setAdd(s, it); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dict creates an empty dict.
func (e *Engine) Dict() *Object {
	return e.newObject(tag.Dict, e.types["dict"], &dict{index: make(map[string]int)})
}

// Func creates a function object.
func (e *Engine) Func(name string, fn NativeFunc) *Object {
	f := e.newObject(tag.Function, e.types["function"], &function{name: name, fn: fn})
	f.store("__name__", e.Str(name))
	return f
}

// Opaque creates a value the bridge has no representation for.
func (e *Engine) Opaque(typeName string) *Object {
	cls := e.types[typeName]
	if cls == nil {
		cls = e.NewClass(typeName, nil, nil)
	}
	return e.newObject(tag.Unsupported, cls, nil)
}

// NewClass creates a class. bases defaults to object. Methods become class
// attributes and bind to instances on lookup.
func (e *Engine) NewClass(name string, bases []*Object, methods map[string]NativeFunc) *Object {
	if len(bases) == 0 && e.types["object"] != nil {
		bases = []*Object{e.types["object"]}
	}
	info := &class{name: name, bases: bases}
	cls := e.newObject(tag.Type, e.types["type"], info)
	info.mro = linearize(cls, bases)
	cls.store("__name__", e.Str(name))
	for _, mname := range sortedKeys(methods) {
		cls.store(mname, e.Func(mname, methods[mname]))
	}
	return cls
}

// linearize computes a depth-first, left-to-right method resolution order
// with each class after all of its subclasses.
func linearize(cls *Object, bases []*Object) []*Object {
	mro := []*Object{cls}
	seen := map[*Object]int{}
	var tail []*Object
	for _, b := range bases {
		if info := b.classInfo(); info != nil {
			tail = append(tail, info.mro...)
		}
	}
	for i := len(tail) - 1; i >= 0; i-- {
		if _, ok := seen[tail[i]]; !ok {
			seen[tail[i]] = i
		}
	}
	for i, c := range tail {
		if seen[c] == i {
			mro = append(mro, c)
		}
	}
	return mro
}
