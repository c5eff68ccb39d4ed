package engine

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/tag"
)

// NewValue creates a scalar or host wrapper value.
func (e *Engine) NewValue(t tag.Tag, payload any) (guestbridge.Handle, error) {
	switch t {
	case tag.None:
		return e.none, nil
	case tag.Bool:
		if b, ok := payload.(bool); ok {
			return e.Bool(b), nil
		}
	case tag.Integer:
		switch n := payload.(type) {
		case *big.Int:
			return e.BigInt(n), nil
		case int64:
			return e.Int(n), nil
		case int:
			return e.Int(int64(n)), nil
		case string:
			if v, ok := new(big.Int).SetString(n, 10); ok {
				return e.BigInt(v), nil
			}
		}
	case tag.Float:
		if f, ok := payload.(float64); ok {
			return e.Float(f), nil
		}
	case tag.Complex:
		if c, ok := payload.(complex128); ok {
			return e.Complex(c), nil
		}
	case tag.Bytes:
		if b, ok := payload.([]byte); ok {
			return e.Bytes(b), nil
		}
	case tag.ByteArray:
		if b, ok := payload.([]byte); ok {
			return e.ByteArray(b), nil
		}
	case tag.String:
		if s, ok := payload.(string); ok {
			return e.Str(s), nil
		}
	case tag.DateTime:
		if ts, ok := payload.(time.Time); ok {
			return e.DateTime(ts), nil
		}
	case tag.HostCallable:
		if id, ok := payload.(uint32); ok {
			return e.newObject(tag.HostCallable, e.types["host_callable"], &hostRef{id: id}), nil
		}
	case tag.HostValue:
		if id, ok := payload.(uint32); ok {
			return e.newObject(tag.HostValue, e.types["host_value"], &hostRef{id: id}), nil
		}
	default:
		return nil, errors.New(errors.PhaseEngine, errors.KindUnsupported).
			GuestType(t.String()).
			Detail("cannot build value from host payload").
			Build()
	}
	return nil, errors.New(errors.PhaseEngine, errors.KindTypeMismatch).
		HostType(fmt.Sprintf("%T", payload)).
		GuestType(t.String()).
		Build()
}

// NewContainer creates an empty list, tuple, dict or set.
func (e *Engine) NewContainer(t tag.Tag, sizeHint int) (guestbridge.Handle, error) {
	switch t {
	case tag.List:
		return e.newObject(t, e.types["list"], &seq{items: make([]*Object, 0, sizeHint)}), nil
	case tag.Tuple:
		return e.newObject(t, e.types["tuple"], &seq{items: make([]*Object, 0, sizeHint)}), nil
	case tag.Set:
		return e.newObject(t, e.types["set"], &seq{index: make(map[string]int, sizeHint)}), nil
	case tag.Dict:
		return e.newObject(t, e.types["dict"], &dict{index: make(map[string]int, sizeHint)}), nil
	}
	return nil, errors.New(errors.PhaseEngine, errors.KindInvalidInput).
		GuestType(t.String()).
		Detail("not a container tag").
		Build()
}

// AddItem appends value to a list, tuple or set, or stores key/value into
// a dict.
func (e *Engine) AddItem(container, key, value guestbridge.Handle) error {
	c := e.object(container)
	v := e.object(value)
	switch c.tag {
	case tag.List, tag.Tuple:
		s := c.payload.(*seq)
		c.mu.Lock()
		s.items = append(s.items, v)
		c.mu.Unlock()
		return nil
	case tag.Set:
		return e.setAdd(c, v)
	case tag.Dict:
		if key == nil {
			return errors.InvalidInput(errors.PhaseEngine, nil, "dict item without key")
		}
		return e.dictSet(c, e.object(key), v)
	}
	return errors.New(errors.PhaseEngine, errors.KindInvalidInput).
		GuestType(c.tag.String()).
		Detail("not a container").
		Build()
}

func (e *Engine) setAdd(s, v *Object) error {
	k, ok := hashKey(v)
	if !ok {
		return e.Raise("TypeError", "unhashable type: '%s'", v.TypeName())
	}
	data := s.payload.(*seq)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := data.index[k]; !dup {
		data.index[k] = len(data.items)
		data.items = append(data.items, v)
	}
	return nil
}

func (e *Engine) dictSet(d, k, v *Object) error {
	hk, ok := hashKey(k)
	if !ok {
		return e.Raise("TypeError", "unhashable type: '%s'", k.TypeName())
	}
	data := d.payload.(*dict)
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := data.index[hk]; ok {
		data.vals[i] = v
		return nil
	}
	data.index[hk] = len(data.keys)
	data.keys = append(data.keys, k)
	data.vals = append(data.vals, v)
	return nil
}

func (e *Engine) dictGet(d, k *Object) (*Object, bool) {
	hk, ok := hashKey(k)
	if !ok {
		return nil, false
	}
	data := d.payload.(*dict)
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := data.index[hk]
	if !ok {
		return nil, false
	}
	return data.vals[i], true
}

func (o *Object) dictItems() (keys, vals []*Object) {
	data := o.payload.(*dict)
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Object(nil), data.keys...), append([]*Object(nil), data.vals...)
}

// Payload returns the raw payload of h in the shapes transcoder.Deserialize
// expects.
func (e *Engine) Payload(h guestbridge.Handle) (any, error) {
	o := e.object(h)
	switch o.tag {
	case tag.None:
		return nil, nil
	case tag.Integer, tag.Bool, tag.Float, tag.Complex, tag.String, tag.Bytes, tag.DateTime:
		return o.payload, nil
	case tag.ByteArray:
		o.mu.Lock()
		defer o.mu.Unlock()
		return append([]byte(nil), o.payload.([]byte)...), nil
	case tag.List, tag.Tuple, tag.Set:
		items := o.items()
		out := make([]guestbridge.Handle, len(items))
		for i, it := range items {
			out[i] = it
		}
		return out, nil
	case tag.Dict:
		keys, vals := o.dictItems()
		out := make([]guestbridge.Pair, len(keys))
		for i := range keys {
			out[i] = guestbridge.Pair{Key: keys[i], Value: vals[i]}
		}
		return out, nil
	case tag.HostCallable, tag.HostValue:
		return o.payload.(*hostRef).id, nil
	case tag.Exception:
		return &guestbridge.Raised{Exception: o, Message: o.payload.(*exception).message}, nil
	case tag.Object, tag.Function, tag.Method, tag.Type:
		return o, nil
	}
	return nil, errors.Unsupported(errors.PhaseEngine, o.tag.String())
}

// hashKey returns the dict/set key of o. Mutable containers are unhashable.
func hashKey(o *Object) (string, bool) {
	switch o.tag {
	case tag.None:
		return "n", true
	case tag.Bool, tag.Integer:
		n, _ := o.bigInt()
		return "i" + n.String(), true
	case tag.Float:
		f := o.payload.(float64)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			bf := new(big.Float).SetFloat64(f)
			n, _ := bf.Int(nil)
			return "i" + n.String(), true
		}
		return "f" + strconv.FormatFloat(f, 'g', -1, 64), true
	case tag.Complex:
		return "c" + fmt.Sprint(o.payload), true
	case tag.String:
		return "s" + o.payload.(string), true
	case tag.Bytes:
		return "b" + string(o.payload.([]byte)), true
	case tag.DateTime:
		return "d" + o.payload.(time.Time).UTC().Format(time.RFC3339Nano), true
	case tag.Tuple:
		var b strings.Builder
		b.WriteString("t(")
		for _, it := range o.items() {
			k, ok := hashKey(it)
			if !ok {
				return "", false
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(',')
		}
		b.WriteByte(')')
		return b.String(), true
	case tag.List, tag.Dict, tag.Set, tag.ByteArray:
		return "", false
	}
	return "o" + strconv.FormatUint(o.id, 10), true
}

// equal implements value equality for builtin values and identity for
// everything else.
func equal(a, b *Object) bool {
	if a == b {
		return true
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x.Cmp(y) == 0
	}
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case tag.String:
		return a.payload.(string) == b.payload.(string)
	case tag.Bytes:
		return string(a.payload.([]byte)) == string(b.payload.([]byte))
	case tag.Complex:
		return a.payload.(complex128) == b.payload.(complex128)
	case tag.DateTime:
		return a.payload.(time.Time).Equal(b.payload.(time.Time))
	case tag.List, tag.Tuple:
		xs, ys := a.items(), b.items()
		if len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if !equal(xs[i], ys[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// number returns a numeric view of ints, bools and floats.
func number(o *Object) (*big.Float, bool) {
	if n, ok := o.bigInt(); ok {
		return new(big.Float).SetInt(n), true
	}
	if o.tag == tag.Float {
		f := o.payload.(float64)
		if math.IsNaN(f) {
			return nil, false
		}
		return big.NewFloat(f), true
	}
	return nil, false
}

// compare orders numbers and strings.
func compare(a, b *Object) (int, bool) {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x.Cmp(y), true
		}
		return 0, false
	}
	if a.tag == tag.String && b.tag == tag.String {
		return strings.Compare(a.payload.(string), b.payload.(string)), true
	}
	return 0, false
}

// Repr formats o the way the guest's repr() does.
func Repr(o *Object) string {
	return format(o, true, map[*Object]bool{})
}

// Str formats o the way the guest's str() does for builtin values.
func Str(o *Object) string {
	return format(o, false, map[*Object]bool{})
}

func format(o *Object, quote bool, active map[*Object]bool) string {
	switch o.tag {
	case tag.None:
		return "None"
	case tag.Bool:
		if o.payload.(bool) {
			return "True"
		}
		return "False"
	case tag.Integer:
		return o.payload.(*big.Int).String()
	case tag.Float:
		return formatFloat(o.payload.(float64))
	case tag.Complex:
		c := o.payload.(complex128)
		return fmt.Sprintf("(%s%+gj)", formatFloat(real(c)), imag(c))
	case tag.String:
		if quote {
			return "'" + strings.ReplaceAll(o.payload.(string), "'", `\'`) + "'"
		}
		return o.payload.(string)
	case tag.Bytes:
		return formatBytes(o.payload.([]byte))
	case tag.ByteArray:
		o.mu.Lock()
		b := append([]byte(nil), o.payload.([]byte)...)
		o.mu.Unlock()
		return "bytearray(" + formatBytes(b) + ")"
	case tag.DateTime:
		return o.payload.(time.Time).Format("2006-01-02 15:04:05.999999")
	case tag.Exception:
		if quote {
			return fmt.Sprintf("%s('%s')", o.TypeName(), o.payload.(*exception).message)
		}
		return o.payload.(*exception).message
	case tag.Function:
		return "<function " + o.payload.(*function).name + ">"
	case tag.Method:
		m := o.payload.(*method)
		return "<bound method " + m.fn.payload.(*function).name + " of " + format(m.self, true, active) + ">"
	case tag.Type:
		return "<class '" + o.classInfo().name + "'>"
	case tag.HostCallable:
		return fmt.Sprintf("<host callable #%d>", o.payload.(*hostRef).id)
	case tag.HostValue:
		return fmt.Sprintf("<host value #%d>", o.payload.(*hostRef).id)
	}

	if o.tag.IsContainer() {
		if active[o] {
			switch o.tag {
			case tag.Dict:
				return "{...}"
			case tag.List:
				return "[...]"
			}
			return "(...)"
		}
		active[o] = true
		defer delete(active, o)
	}

	switch o.tag {
	case tag.List, tag.Tuple, tag.Set:
		items := o.items()
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = format(it, true, active)
		}
		body := strings.Join(parts, ", ")
		switch o.tag {
		case tag.List:
			return "[" + body + "]"
		case tag.Set:
			if len(items) == 0 {
				return "set()"
			}
			return "{" + body + "}"
		}
		if len(items) == 1 {
			return "(" + body + ",)"
		}
		return "(" + body + ")"
	case tag.Dict:
		keys, vals := o.dictItems()
		parts := make([]string, len(keys))
		for i := range keys {
			parts[i] = format(keys[i], true, active) + ": " + format(vals[i], true, active)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}

	if o.class == o.eng.types["module"] {
		if n, ok := o.own("__name__"); ok && n.tag == tag.String {
			return "<module '" + n.payload.(string) + "'>"
		}
	}
	return fmt.Sprintf("<%s object #%d>", o.TypeName(), o.id)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func formatBytes(b []byte) string {
	var sb strings.Builder
	sb.WriteString("b'")
	for _, c := range b {
		switch {
		case c == '\'' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
