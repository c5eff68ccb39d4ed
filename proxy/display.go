package proxy

import (
	"fmt"
	"strings"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/tag"
)

// Label is the display description of a guest value.
type Label struct {
	Name  string
	Class string
	Kind  string
	Keys  []string
	// Flags holds "callable" and "instantiates" when they apply.
	Flags []string
}

// Label derives the display description from the guest class name and the
// declared attributes. Without a resolvable class the type name of the
// value is used.
func (p *Proxy) Label() Label {
	eng := p.f.engine
	l := Label{Kind: "Object", Keys: p.Keys()}
	if p.caps.class {
		l.Kind = "Class"
	}
	l.Name = p.f.stringAttr(p.h, "__name__")
	if cls, err := eng.GetAttr(p.h, "__class__"); err == nil {
		l.Class = p.f.stringAttr(cls, "__name__")
	}
	if l.Class == "" {
		l.Class = p.f.stringAttr(eng.TypeOf(p.h), "__name__")
	}
	if l.Class == "" {
		l.Class = eng.Tag(p.h).String()
	}
	if p.caps.callable {
		l.Flags = append(l.Flags, "callable")
	}
	if p.caps.class {
		l.Flags = append(l.Flags, "instantiates")
	}
	return l
}

// Inspect returns the full display label, listing flags and keys.
func (p *Proxy) Inspect() string {
	l := p.Label()
	var b strings.Builder
	b.WriteString("Guest ")
	b.WriteString(l.Kind)
	b.WriteString(l.head())
	items := make([]string, 0, len(l.Flags)+len(l.Keys))
	for _, f := range l.Flags {
		items = append(items, "["+f+"]")
	}
	for _, k := range l.Keys {
		items = append(items, "'"+k+"'")
	}
	b.WriteString(" { ")
	b.WriteString(strings.Join(items, ", "))
	b.WriteString(" }")
	return b.String()
}

// String returns the short display label.
func (p *Proxy) String() string {
	return strings.TrimSpace(p.Label().head())
}

func (l Label) head() string {
	var b strings.Builder
	if l.Name != "" {
		fmt.Fprintf(&b, " #%s", l.Name)
	}
	fmt.Fprintf(&b, " <class '%s'>", l.Class)
	return b.String()
}

// stringAttr reads a string attribute, or "" when it is missing or not a
// string.
func (f *Factory) stringAttr(h guestbridge.Handle, name string) string {
	if h == nil {
		return ""
	}
	v, err := f.engine.GetAttr(h, name)
	if err != nil || f.engine.Tag(v) != tag.String {
		return ""
	}
	payload, err := f.engine.Payload(v)
	if err != nil {
		return ""
	}
	s, _ := payload.(string)
	return s
}
