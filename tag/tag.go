// Package tag enumerates the kinds of guest values the bridge distinguishes.
//
// Every guest handle reports exactly one Tag. Values the bridge cannot
// represent report Unsupported and must not be dereferenced further.
package tag

// Tag is the small integer code of a guest value kind.
type Tag uint8

const (
	Object Tag = iota
	None
	Integer
	Bool
	Float
	Complex
	Bytes
	ByteArray
	String
	Tuple
	List
	Dict
	Set
	Function
	Method
	Type
	DateTime
	HostCallable
	HostValue
	Exception
	Unsupported
)

var tagNames = [...]string{
	Object:       "object",
	None:         "none",
	Integer:      "integer",
	Bool:         "bool",
	Float:        "float",
	Complex:      "complex",
	Bytes:        "bytes",
	ByteArray:    "bytearray",
	String:       "string",
	Tuple:        "tuple",
	List:         "list",
	Dict:         "dict",
	Set:          "set",
	Function:     "function",
	Method:       "method",
	Type:         "type",
	DateTime:     "datetime",
	HostCallable: "host-callable",
	HostValue:    "host-value",
	Exception:    "exception",
	Unsupported:  "unsupported",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}

// Valid reports whether t is one of the defined codes.
func (t Tag) Valid() bool {
	return int(t) < len(tagNames)
}

// Parse returns the tag with the given name.
func Parse(name string) (Tag, bool) {
	for i, n := range tagNames {
		if n == name {
			return Tag(i), true
		}
	}
	return Unsupported, false
}

// IsScalar reports whether values of t cross the boundary by copy.
func (t Tag) IsScalar() bool {
	switch t {
	case None, Integer, Bool, Float, Complex, Bytes, ByteArray, String, DateTime:
		return true
	default:
		return false
	}
}

// IsContainer reports whether t is a guest-native container.
func (t Tag) IsContainer() bool {
	switch t {
	case Tuple, List, Dict, Set:
		return true
	default:
		return false
	}
}

// IsObjectLike reports whether values of t are exposed as live proxies.
func (t Tag) IsObjectLike() bool {
	switch t {
	case Object, Function, Method, Type:
		return true
	default:
		return false
	}
}

// IsHostWrapper reports whether t wraps a value owned by the host.
func (t Tag) IsHostWrapper() bool {
	return t == HostCallable || t == HostValue
}
