package rawconv

import "strconv"

// ToCookedBool converts raw into a boolean: any non-zero masked raw value
// is true.
func ToCookedBool(c *Converter, raw uint64) bool {
	return raw&c.usedBitsMask != 0
}

// ToRawBool converts a boolean into the channel's raw encoding (0 or 1).
func ToRawBool(c *Converter, cooked bool) uint64 {
	if cooked {
		return 1 & c.usedBitsMask
	}
	return 0
}

// ToCookedString renders raw as its decimal (or fixed-point decimal)
// string form, per spec.md §4.A ("string converts by formatted decimal
// round-trip, using integer or double intermediates depending on
// nFractionalBits").
func ToCookedString(c *Converter, raw uint64) string {
	if c.fracCase == caseInteger {
		return strconv.FormatInt(ToCookedInt[int64](c, raw), 10)
	}
	return strconv.FormatFloat(ToCookedFloat[float64](c, raw), 'g', -1, 64)
}

// ToRawString parses s back to raw, using the same integer/double
// intermediate rule as ToCookedString. A string that does not parse
// converts as zero, matching the saturate-don't-fail contract of toRaw
// (malformed input is a logic error to be caught earlier, at the point
// the string was produced or accepted, not here).
func ToRawString(c *Converter, s string) uint64 {
	if c.fracCase == caseInteger {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0
		}
		return ToRawInt(c, v)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return ToRawFloat(c, v)
}

// ToCookedVoid and ToRawVoid are the Void specialisation: both directions
// convert to/from a zero-sized payload, per spec.md §4.A.
func ToCookedVoid(*Converter, uint64) struct{} { return struct{}{} }
func ToRawVoid(*Converter, struct{}) uint64     { return 0 }
