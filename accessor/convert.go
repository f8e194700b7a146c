package accessor

import "daqcore/rawconv"

// numericFromRaw and rawFromNumeric bridge the generic Scalar[T] surface to
// rawconv's split Integer/Float entry points. T is already known to satisfy
// rawconv.Numeric (the union); a concrete-type switch recovers which half
// of the union it belongs to so the right rawconv function can be called,
// since Go's generics cannot narrow a type parameter's constraint at a call
// site the way a virtual-function-per-user-type dispatch would (spec.md §9
// design notes).
func numericFromRaw[T rawconv.Numeric](c *rawconv.Converter, raw uint64) T {
	var z T
	switch any(z).(type) {
	case int8:
		return any(rawconv.ToCookedInt[int8](c, raw)).(T)
	case uint8:
		return any(rawconv.ToCookedInt[uint8](c, raw)).(T)
	case int16:
		return any(rawconv.ToCookedInt[int16](c, raw)).(T)
	case uint16:
		return any(rawconv.ToCookedInt[uint16](c, raw)).(T)
	case int32:
		return any(rawconv.ToCookedInt[int32](c, raw)).(T)
	case uint32:
		return any(rawconv.ToCookedInt[uint32](c, raw)).(T)
	case int64:
		return any(rawconv.ToCookedInt[int64](c, raw)).(T)
	case uint64:
		return any(rawconv.ToCookedInt[uint64](c, raw)).(T)
	case float32:
		return any(rawconv.ToCookedFloat[float32](c, raw)).(T)
	case float64:
		return any(rawconv.ToCookedFloat[float64](c, raw)).(T)
	default:
		panic("accessor: unsupported user type")
	}
}

func rawFromNumeric[T rawconv.Numeric](c *rawconv.Converter, v T) uint64 {
	switch x := any(v).(type) {
	case int8:
		return rawconv.ToRawInt(c, x)
	case uint8:
		return rawconv.ToRawInt(c, x)
	case int16:
		return rawconv.ToRawInt(c, x)
	case uint16:
		return rawconv.ToRawInt(c, x)
	case int32:
		return rawconv.ToRawInt(c, x)
	case uint32:
		return rawconv.ToRawInt(c, x)
	case int64:
		return rawconv.ToRawInt(c, x)
	case uint64:
		return rawconv.ToRawInt(c, x)
	case float32:
		return rawconv.ToRawFloat(c, x)
	case float64:
		return rawconv.ToRawFloat(c, x)
	default:
		panic("accessor: unsupported user type")
	}
}
