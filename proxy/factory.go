package proxy

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/resource"
	"github.com/wippyai/guest-bridge/tag"
	"github.com/wippyai/guest-bridge/transcoder"
)

// Poster runs completion work on the host's thread. Async call results
// are delivered through it.
type Poster interface {
	Post(fn func())
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(fn func())

// Post calls p(fn).
func (p PosterFunc) Post(fn func()) { p(fn) }

// inline runs completions on the goroutine that finished the call.
var inline = PosterFunc(func(fn func()) { fn() })

// Factory wraps guest handles into proxies and marshals values in both
// directions. It is installed on the engine as its host invoker, so guest
// code can call host functions lent through it.
type Factory struct {
	engine guestbridge.Engine
	table  *resource.Table
	dec    *transcoder.Decoder
	enc    *transcoder.Encoder
	poster Poster
	mode   Mode
}

// Option configures a Factory.
type Option func(*Factory)

// WithTable sets the table host callables and values are lent through.
func WithTable(t *resource.Table) Option {
	return func(f *Factory) { f.table = t }
}

// WithDefaultMode sets the mode of every new proxy.
func WithDefaultMode(m Mode) Option {
	return func(f *Factory) { f.mode = m }
}

// WithPoster sets where async completions run.
func WithPoster(p Poster) Option {
	return func(f *Factory) {
		if p != nil {
			f.poster = p
		}
	}
}

// NewFactory creates a factory over engine and installs it as the
// engine's host invoker.
func NewFactory(engine guestbridge.Engine, opts ...Option) *Factory {
	f := &Factory{
		engine: engine,
		mode:   DefaultMode(),
		poster: inline,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.table == nil {
		f.table = resource.NewTable()
	}
	f.dec = transcoder.NewDecoder(engine, f, f)
	f.enc = transcoder.NewEncoder(engine, f.table)
	engine.SetHostInvoker(f)
	return f
}

// Engine returns the guest engine.
func (f *Factory) Engine() guestbridge.Engine { return f.engine }

// Table returns the table of lent host entries.
func (f *Factory) Table() *resource.Table { return f.table }

// DefaultMode returns the mode new proxies start with.
func (f *Factory) DefaultMode() Mode { return f.mode }

// Proxy wraps h with the default mode. It panics with a contract error
// when h is not a handle of the factory's engine.
func (f *Factory) Proxy(h guestbridge.Handle) *Proxy {
	return f.newProxy(h, f.mode, hiddenMode{})
}

func (f *Factory) newProxy(h guestbridge.Handle, m Mode, hidden hiddenMode) *Proxy {
	if h == nil || !f.engine.IsHandle(h) {
		panic(errors.New(errors.PhaseMarshal, errors.KindContract).
			Detail("proxy over a value that is not a guest handle").
			Value(h).
			Build())
	}
	p := &Proxy{f: f, h: h, mode: m, hidden: hidden}
	p.caps = f.capabilities(p)
	return p
}

// Wrap implements transcoder.Wrapper.
func (f *Factory) Wrap(h guestbridge.Handle) any {
	return f.Proxy(h)
}

// WrapException implements transcoder.Wrapper.
func (f *Factory) WrapException(r *guestbridge.Raised) any {
	return f.exception(r.Message, r.Exception)
}

// Lookup implements transcoder.HostLookup.
func (f *Factory) Lookup(t tag.Tag, id uint32) (any, bool) {
	switch t {
	case tag.HostCallable:
		return f.table.GetKind(resource.Handle(id), resource.KindCallable)
	case tag.HostValue:
		return f.table.GetKind(resource.Handle(id), resource.KindValue)
	}
	return nil, false
}

// Value converts h to a host value: nil for None, native Go values for
// scalars and containers, proxies for everything else.
func (f *Factory) Value(h guestbridge.Handle, m Mode) (any, error) {
	return f.dec.Decode(h, transcoder.DecodeOptions{Reference: m.GetReference})
}

// Marshal converts a host value into a guest value.
func (f *Factory) Marshal(v any) (guestbridge.Handle, error) {
	s := f.enc.NewSession()
	h, err := s.Encode(v)
	if err != nil {
		f.release(s.Lent())
		return nil, err
	}
	return h, nil
}

// bridge converts an engine error into the error callers see. Guest
// exceptions become *Exception.
func (f *Factory) bridge(err error) error {
	var r *guestbridge.Raised
	if stderrors.As(err, &r) {
		return f.exception(r.Message, r.Exception)
	}
	return err
}

// Bridge converts an error returned by the engine the same way proxy
// operations do.
func (f *Factory) Bridge(err error) error {
	if err == nil {
		return nil
	}
	return f.bridge(err)
}

func (f *Factory) release(lent []resource.Handle) {
	for _, h := range lent {
		f.table.Release(h)
	}
}

// InvokeHost implements guestbridge.HostInvoker. Arguments are decoded in
// one fresh session and the result is encoded in another, never in the
// session of an enclosing call.
func (f *Factory) InvokeHost(ctx context.Context, id uint32, args []guestbridge.Handle, kwargs []guestbridge.Keyword) (guestbridge.Handle, error) {
	Logger().Debug("host call",
		zap.Uint32("handle", id),
		zap.Int("args", len(args)),
		zap.String("thread", f.engine.ThreadID(ctx)))

	s := f.dec.NewSession(transcoder.DecodeOptions{})
	hostArgs := make([]any, len(args))
	for i, a := range args {
		v, err := s.Decode(a)
		if err != nil {
			return nil, err
		}
		hostArgs[i] = v
	}
	var hostKw map[string]any
	if len(kwargs) > 0 {
		hostKw = make(map[string]any, len(kwargs))
		for _, kw := range kwargs {
			v, err := s.Decode(kw.Value)
			if err != nil {
				return nil, err
			}
			hostKw[kw.Name] = v
		}
	}

	res, err := f.table.Invoke(ctx, resource.Handle(id), hostArgs, hostKw)
	if err != nil {
		var exc *Exception
		if stderrors.As(err, &exc) {
			return nil, &guestbridge.Raised{Exception: exc.Guest.Handle(), Message: exc.Message}
		}
		return nil, err
	}
	return f.Marshal(res)
}

// HostValue implements guestbridge.HostInvoker.
func (f *Factory) HostValue(id uint32) (any, bool) {
	return f.table.Value(resource.Handle(id))
}

// ReleaseHost implements guestbridge.HostInvoker.
func (f *Factory) ReleaseHost(id uint32) {
	f.table.Release(resource.Handle(id))
}
