// Package transcoder converts values between the host and a guest engine.
//
// # Host Value Model
//
//	guest              host
//	None               nil
//	int                *big.Int
//	bool, float, str   bool, float64, string
//	complex            complex128
//	bytes              []byte
//	bytearray          ByteArray
//	datetime           time.Time
//	list, tuple        *List, *Tuple
//	dict, set          *Dict, *Set
//	exception          bridged exception from the Wrapper
//	objects            proxy from the Wrapper
//
// Containers are pointers so shared and self referencing guest values
// keep their identity on the host.
//
// # Sessions
//
// Each top level Decode or Encode runs in a session with its own
// SequenceMap. A container registers its partially built value before its
// elements are converted; a second visit returns that value. Sessions
// are never shared, so a host callback running inside a guest call
// marshals with a fresh one.
//
// # Contract Violations
//
// Deserialize is total over the tag set. An unknown tag or a payload of
// the wrong shape is a bug in the engine and panics with an
// errors.KindContract error. Unsupported guest values are an ordinary
// errors.KindUnsupported error.
package transcoder
