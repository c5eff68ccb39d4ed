package transcoder

import (
	"fmt"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/tag"
)

// Wrapper turns guest values that stay in the guest into host objects.
// The proxy factory implements it.
type Wrapper interface {
	// Wrap returns a host proxy for h.
	Wrap(h guestbridge.Handle) any

	// WrapException returns the bridged host error for a guest exception.
	WrapException(r *guestbridge.Raised) any
}

// HostLookup resolves host wrapper ids back to the lent host values.
type HostLookup interface {
	Lookup(t tag.Tag, id uint32) (any, bool)
}

// DecodeOptions controls one decode session.
type DecodeOptions struct {
	// Reference proxies every value instead of materializing containers
	// and scalars. Guest None still decodes to nil.
	Reference bool
}

// Decoder converts guest values into host values.
type Decoder struct {
	engine guestbridge.Inspector
	wrap   Wrapper
	hosts  HostLookup
}

// NewDecoder creates a decoder over engine. hosts may be nil when no host
// values are ever lent to the guest.
func NewDecoder(engine guestbridge.Inspector, wrap Wrapper, hosts HostLookup) *Decoder {
	return &Decoder{engine: engine, wrap: wrap, hosts: hosts}
}

// Decode converts h in a fresh session.
func (d *Decoder) Decode(h guestbridge.Handle, opts DecodeOptions) (any, error) {
	return d.NewSession(opts).Decode(h)
}

// DecodeAll converts several values in one session, so values shared
// between them keep their identity.
func (d *Decoder) DecodeAll(hs []guestbridge.Handle, opts DecodeOptions) ([]any, error) {
	s := d.NewSession(opts)
	out := make([]any, len(hs))
	for i, h := range hs {
		v, err := s.decode(h, []string{index(i)})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Session is one decode pass. Its SequenceMap maps guest handle ids to
// the host values already produced for them.
type Session struct {
	d    *Decoder
	seen *SequenceMap[uint64, any]
	opts DecodeOptions
}

// NewSession starts a decode session.
func (d *Decoder) NewSession(opts DecodeOptions) *Session {
	return &Session{
		d:    d,
		seen: NewSequenceMap[uint64, any](),
		opts: opts,
	}
}

// Decode converts h within the session.
func (s *Session) Decode(h guestbridge.Handle) (any, error) {
	return s.decode(h, nil)
}

// Seen exposes the session's cycle tracker.
func (s *Session) Seen() *SequenceMap[uint64, any] {
	return s.seen
}

func (s *Session) decode(h guestbridge.Handle, path []string) (any, error) {
	if h == nil {
		return nil, nil
	}
	if !s.d.engine.IsHandle(h) {
		panic(errors.New(errors.PhaseUnmarshal, errors.KindContract).
			Path(path...).
			HostType(typeName(h)).
			Detail("value is not a guest handle").
			Build())
	}

	t := s.d.engine.Tag(h)
	if t == tag.Unsupported || !t.Valid() {
		return nil, errors.New(errors.PhaseUnmarshal, errors.KindUnsupported).
			Path(path...).
			GuestType(t.String()).
			Detail("no host representation").
			Build()
	}
	if t == tag.None {
		return nil, nil
	}

	key := h.HandleID()
	if v, ok := s.seen.Test(key); ok {
		return v, nil
	}

	if s.opts.Reference || t.IsObjectLike() {
		v := s.d.wrap.Wrap(h)
		s.seen.Register(key, v)
		return v, nil
	}

	payload, err := s.d.engine.Payload(h)
	if err != nil {
		return nil, errors.New(errors.PhaseUnmarshal, errors.KindInvalidInput).
			Path(path...).
			GuestType(t.String()).
			Detail("read payload").
			Cause(err).
			Build()
	}
	v, err := Deserialize(t, payload, &frame{s: s, key: key, path: path})
	if err != nil {
		return nil, err
	}
	if t.IsContainer() {
		return v, nil
	}
	s.seen.Register(key, v)
	return v, nil
}

// frame is the Env for one Deserialize call.
type frame struct {
	s    *Session
	path []string
	key  uint64
}

func (f *frame) Placeholder(v any) {
	f.s.seen.Register(f.key, v)
}

func (f *frame) Element(h guestbridge.Handle, segment string) (any, error) {
	path := append(f.path[:len(f.path):len(f.path)], segment)
	return f.s.decode(h, path)
}

func (f *frame) Object(h guestbridge.Handle) any {
	return f.s.d.wrap.Wrap(h)
}

func (f *frame) Exception(r *guestbridge.Raised) any {
	return f.s.d.wrap.WrapException(r)
}

func (f *frame) HostEntry(t tag.Tag, id uint32) (any, error) {
	if f.s.d.hosts != nil {
		if v, ok := f.s.d.hosts.Lookup(t, id); ok {
			return v, nil
		}
	}
	return nil, errors.NotFound(errors.PhaseUnmarshal, f.path, t.String()+" entry")
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
