package transcoder

import (
	"math/big"
	"strconv"
	"time"

	guestbridge "github.com/wippyai/guest-bridge"
	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/tag"
)

// Env supplies what Deserialize needs beyond the raw payload.
type Env interface {
	// Placeholder registers v as the host value of the container being
	// deserialized. It is called before any element is converted.
	Placeholder(v any)

	// Element converts a nested guest value within the same session.
	Element(h guestbridge.Handle, segment string) (any, error)

	// Object wraps an object-like guest value.
	Object(h guestbridge.Handle) any

	// Exception bridges a guest exception value.
	Exception(r *guestbridge.Raised) any

	// HostEntry resolves a host wrapper to the host value it carries.
	HostEntry(t tag.Tag, id uint32) (any, error)
}

// Deserialize converts the payload of a guest value with tag t into its
// host representation. Payload shapes per tag:
//
//	object, function, method, type  guestbridge.Handle
//	none                            nil
//	integer                         *big.Int, decimal string, int64 or int
//	bool                            bool
//	float                           float64
//	complex                         complex128 or [2]float64
//	bytes, bytearray                []byte
//	string                          string
//	tuple, list, set                []guestbridge.Handle
//	dict                            []guestbridge.Pair
//	datetime                        time.Time
//	host-callable, host-value       uint32 host entry id
//	exception                       *guestbridge.Raised
//
// A tag outside this table or a payload of the wrong shape is a bug in the
// engine or the caller and panics with a contract error.
func Deserialize(t tag.Tag, payload any, env Env) (any, error) {
	switch t {
	case tag.Object, tag.Function, tag.Method, tag.Type:
		h, ok := payload.(guestbridge.Handle)
		if !ok || h == nil {
			badPayload(t, payload)
		}
		return env.Object(h), nil

	case tag.None:
		return nil, nil

	case tag.Integer:
		return deserializeInt(payload), nil

	case tag.Bool:
		b, ok := payload.(bool)
		if !ok {
			badPayload(t, payload)
		}
		return b, nil

	case tag.Float:
		f, ok := payload.(float64)
		if !ok {
			badPayload(t, payload)
		}
		return f, nil

	case tag.Complex:
		switch c := payload.(type) {
		case complex128:
			return c, nil
		case [2]float64:
			return complex(c[0], c[1]), nil
		}
		badPayload(t, payload)

	case tag.Bytes:
		b, ok := payload.([]byte)
		if !ok {
			badPayload(t, payload)
		}
		return append([]byte(nil), b...), nil

	case tag.ByteArray:
		switch b := payload.(type) {
		case []byte:
			return ByteArray(append([]byte(nil), b...)), nil
		case ByteArray:
			return append(ByteArray(nil), b...), nil
		}
		badPayload(t, payload)

	case tag.String:
		s, ok := payload.(string)
		if !ok {
			badPayload(t, payload)
		}
		return s, nil

	case tag.Tuple:
		items := handles(t, payload)
		out := &Tuple{Items: make([]any, 0, len(items))}
		env.Placeholder(out)
		for i, h := range items {
			v, err := env.Element(h, index(i))
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, v)
		}
		return out, nil

	case tag.List:
		items := handles(t, payload)
		out := &List{Items: make([]any, 0, len(items))}
		env.Placeholder(out)
		for i, h := range items {
			v, err := env.Element(h, index(i))
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, v)
		}
		return out, nil

	case tag.Set:
		items := handles(t, payload)
		out := NewSet()
		env.Placeholder(out)
		for i, h := range items {
			v, err := env.Element(h, index(i))
			if err != nil {
				return nil, err
			}
			out.Add(v)
		}
		return out, nil

	case tag.Dict:
		pairs, ok := payload.([]guestbridge.Pair)
		if !ok {
			badPayload(t, payload)
		}
		out := NewDict()
		env.Placeholder(out)
		for i, p := range pairs {
			k, err := env.Element(p.Key, index(i)+".key")
			if err != nil {
				return nil, err
			}
			v, err := env.Element(p.Value, index(i)+".value")
			if err != nil {
				return nil, err
			}
			out.Set(k, v)
		}
		return out, nil

	case tag.DateTime:
		ts, ok := payload.(time.Time)
		if !ok {
			badPayload(t, payload)
		}
		return ts, nil

	case tag.HostCallable, tag.HostValue:
		id, ok := payload.(uint32)
		if !ok {
			badPayload(t, payload)
		}
		return env.HostEntry(t, id)

	case tag.Exception:
		r, ok := payload.(*guestbridge.Raised)
		if !ok || r == nil {
			badPayload(t, payload)
		}
		return env.Exception(r), nil
	}

	panic(errors.Contract(errors.PhaseUnmarshal, "no deserializer for tag %s", t))
}

func deserializeInt(payload any) *big.Int {
	switch n := payload.(type) {
	case *big.Int:
		if n != nil {
			return new(big.Int).Set(n)
		}
	case string:
		if v, ok := new(big.Int).SetString(n, 10); ok {
			return v
		}
	case int64:
		return big.NewInt(n)
	case int:
		return big.NewInt(int64(n))
	}
	badPayload(tag.Integer, payload)
	return nil
}

func handles(t tag.Tag, payload any) []guestbridge.Handle {
	items, ok := payload.([]guestbridge.Handle)
	if !ok && payload != nil {
		badPayload(t, payload)
	}
	return items
}

func badPayload(t tag.Tag, payload any) {
	panic(errors.New(errors.PhaseUnmarshal, errors.KindContract).
		GuestType(t.String()).
		Value(payload).
		Detail("malformed payload of type %T", payload).
		Build())
}

func index(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}
