package runtime

import (
	"math"
	"math/big"
	"strings"

	"github.com/wippyai/guest-bridge/errors"
	"github.com/wippyai/guest-bridge/transcoder"
)

// CoerceInt returns v as an arbitrary precision integer so it marshals to
// a guest int. Go integers and *big.Int are taken as is, finite floats are
// truncated toward zero and strings must hold a decimal integer, with an
// optional sign and surrounding space.
func CoerceInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			break
		}
		return new(big.Int).Set(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float32:
		return truncate(float64(n))
	case float64:
		return truncate(n)
	case string:
		s := strings.TrimSpace(n)
		out, ok := new(big.Int).SetString(s, 10)
		if !ok || s == "" {
			return nil, errors.InvalidInput(errors.PhaseMarshal, n, "not a decimal integer")
		}
		return out, nil
	}
	return nil, errors.Usage(errors.PhaseMarshal, "cannot coerce %T to an integer", v)
}

func truncate(f float64) (*big.Int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errors.InvalidInput(errors.PhaseMarshal, f, "not a finite number")
	}
	out, _ := big.NewFloat(math.Trunc(f)).Int(nil)
	return out, nil
}

// CoerceTuple returns items as a tuple so it marshals to a guest tuple
// rather than a list. The items are not copied.
func CoerceTuple(items any) (*transcoder.Tuple, error) {
	switch s := items.(type) {
	case *transcoder.Tuple:
		return s, nil
	case *transcoder.List:
		return transcoder.NewTuple(s.Items...), nil
	case []any:
		return transcoder.NewTuple(s...), nil
	}
	return nil, errors.Usage(errors.PhaseMarshal, "cannot coerce %T to a tuple", items)
}
