package runtime

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/config"
	"github.com/wippyai/guest-bridge/engine"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/proxy"
	"github.com/wippyai/guest-bridge/resource"
)

// Runtime owns one guest engine together with the proxy factory, the table
// of lent host entries and the host completion loop.
type Runtime struct {
	eng       *engine.Engine
	factory   *proxy.Factory
	table     *resource.Table
	loop      *Loop
	log       *zap.Logger
	exit      ExitHandler
	bridge    *engine.Object
	hosts     *HostRegistry
	finalized atomic.Bool
}

// New initializes a runtime: the engine, the factory installed as its host
// invoker and the __bridge bootstrap module. ctx bounds initialization
// only.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := config.Default()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := o.logger
	if log == nil {
		var err error
		if log, err = cfg.Log.Build(); err != nil {
			return nil, err
		}
	}
	engine.SetLogger(log.Named("engine"))
	proxy.SetLogger(log.Named("proxy"))

	workers := cfg.Engine.Workers
	if o.workers > 0 {
		workers = o.workers
	}
	mode := modeFromConfig(cfg.Mode)
	if o.mode != nil {
		mode = *o.mode
	}

	r := &Runtime{
		eng:   engine.New(engine.WithWorkers(workers)),
		table: resource.NewTable(),
		loop:  NewLoop(),
		log:   log.Named("runtime"),
		exit:  o.exit,
	}
	r.factory = proxy.NewFactory(r.eng,
		proxy.WithTable(r.table),
		proxy.WithDefaultMode(mode),
		proxy.WithPoster(r.loop))
	r.hosts = newHostRegistry(r)
	r.bridge = r.installBridge()

	if err := ctx.Err(); err != nil {
		_ = r.eng.Close()
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindUsage, err, "initialization cancelled")
	}

	r.log.Debug("runtime initialized",
		zap.Int("workers", workers),
		zap.Bool("attribute_check", mode.AttributeCheck),
		zap.String("thread", r.eng.ThreadID(ctx)))
	return r, nil
}

// check fails when r was never initialized or is already finalized.
func (r *Runtime) check() error {
	if r == nil || r.eng == nil {
		return errors.NotInitialized(errors.PhaseRuntime)
	}
	if r.finalized.Load() {
		return errors.Finalized(errors.PhaseRuntime)
	}
	return nil
}

// Engine returns the guest engine.
func (r *Runtime) Engine() *engine.Engine { return r.eng }

// Factory returns the proxy factory.
func (r *Runtime) Factory() *proxy.Factory { return r.factory }

// Loop returns the host completion loop async callbacks are posted to.
func (r *Runtime) Loop() *Loop { return r.loop }

// Hosts returns the registry used to expose host functions as guest
// modules.
func (r *Runtime) Hosts() *HostRegistry { return r.hosts }

// Import returns a proxy over the guest module name. A missing module
// surfaces as the guest exception raised by the import.
func (r *Runtime) Import(ctx context.Context, name string) (*proxy.Proxy, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	m, err := r.eng.Import(name)
	if err != nil {
		return nil, r.factory.Bridge(err)
	}
	r.log.Debug("import",
		zap.String("module", name),
		zap.String("thread", r.eng.ThreadID(ctx)))
	return r.factory.Proxy(m), nil
}

// Global returns a proxy over the __main__ module.
func (r *Runtime) Global(_ context.Context) (*proxy.Proxy, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.factory.Proxy(r.eng.Main()), nil
}

// Builtins returns a proxy over the guest builtins module.
func (r *Runtime) Builtins(_ context.Context) (*proxy.Proxy, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.factory.Proxy(r.eng.Builtins()), nil
}

// ThreadID reports the guest thread running under ctx.
func (r *Runtime) ThreadID(ctx context.Context) (string, error) {
	if err := r.check(); err != nil {
		return "", err
	}
	return r.eng.ThreadID(ctx), nil
}

// Callback wraps fn in an instance of the __bridge callback factory, a
// guest callable forwarding to fn. The returned proxy can be stored on
// guest objects and passed around like any guest function.
func (r *Runtime) Callback(ctx context.Context, fn guestbridge.HostFunc) (*proxy.Proxy, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.Usage(errors.PhaseRuntime, "callback function is nil")
	}
	factory, err := r.eng.GetAttr(r.bridge, callbackFactoryName)
	if err != nil {
		return nil, r.factory.Bridge(err)
	}
	cls := r.factory.Proxy(factory).NewMode(
		proxy.WithAsyncOverride(true),
		proxy.WithGetReference(true))
	v, err := cls.Call(ctx, fn)
	if err != nil {
		return nil, err
	}
	return proxy.As(v)
}

// Drain runs posted completions until no async guest call is pending and
// the queue is empty.
func (r *Runtime) Drain(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.loop.Drain(ctx, func() bool { return r.eng.Pending() > 0 })
}
