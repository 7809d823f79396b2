package msgpack

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// maxSafeInt mirrors the source encoder's "safely-representable magnitude"
// boundary: 2^53-1, the largest integer a float64 can hold exactly.
const maxSafeInt = int64(1)<<53 - 1

// EncodeOptions configures Marshal.
type EncodeOptions struct {
	multiple                bool
	invalidTypeReplacement  any
	hasReplacement          bool
	invalidTypeReplacerFunc func(any) any
}

// EncodeOption mutates EncodeOptions.
type EncodeOption func(*EncodeOptions)

// WithMultipleEncode requires v to be a slice and concatenates the encodings of
// its elements rather than encoding v as a single array.
func WithMultipleEncode() EncodeOption {
	return func(o *EncodeOptions) { o.multiple = true }
}

// WithInvalidTypeReplacement substitutes replacement for any value this
// encoder cannot otherwise serialize. The substitute itself is encoded
// verbatim — it is not replaced again if it too is unsupported.
func WithInvalidTypeReplacement(replacement any) EncodeOption {
	return func(o *EncodeOptions) {
		o.invalidTypeReplacement = replacement
		o.hasReplacement = true
	}
}

// WithInvalidTypeReplacementFunc is the functional form of
// WithInvalidTypeReplacement: it is called with the offending value and
// its return value is encoded in its place.
func WithInvalidTypeReplacementFunc(f func(any) any) EncodeOption {
	return func(o *EncodeOptions) {
		o.invalidTypeReplacerFunc = f
		o.hasReplacement = true
	}
}

// Marshal encodes v to MessagePack bytes per the supported value
// universe: nil, bool, finite numbers, strings, time.Time, []byte,
// other slices/arrays, and string-keyed maps.
func Marshal(v any, opts ...EncodeOption) ([]byte, error) {
	var o EncodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	buf := newBuffer()

	if o.multiple {
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return nil, fmt.Errorf("msgpack: WithMultipleEncode requires an ordered sequence, got %T", v)
		}
		for i := 0; i < rv.Len(); i++ {
			if err := encodeValue(buf, rv.Index(i).Interface(), &o); err != nil {
				return nil, err
			}
		}
		return buf.bytes(), nil
	}

	if err := encodeValue(buf, v, &o); err != nil {
		return nil, err
	}
	return buf.bytes(), nil
}

func encodeValue(buf *buffer, v any, o *EncodeOptions) error {
	switch val := v.(type) {
	case nil:
		buf.writeByte(0xC0)
		return nil
	case undefinedType:
		buf.writeByte(0xC0)
		return nil
	case bool:
		if val {
			buf.writeByte(0xC3)
		} else {
			buf.writeByte(0xC2)
		}
		return nil
	case string:
		return encodeString(buf, val)
	case []byte:
		return encodeBin(buf, val)
	case time.Time:
		return encodeDate(buf, val)
	case int:
		return encodeInt(buf, int64(val))
	case int8:
		return encodeInt(buf, int64(val))
	case int16:
		return encodeInt(buf, int64(val))
	case int32:
		return encodeInt(buf, int64(val))
	case int64:
		return encodeInt(buf, val)
	case uint:
		return encodeUint(buf, uint64(val))
	case uint8:
		return encodeUint(buf, uint64(val))
	case uint16:
		return encodeUint(buf, uint64(val))
	case uint32:
		return encodeUint(buf, uint64(val))
	case uint64:
		return encodeUint(buf, val)
	case float32:
		return encodeFloat(buf, float64(val))
	case float64:
		return encodeFloat(buf, val)
	}

	return encodeReflect(buf, reflect.ValueOf(v), o)
}

func encodeReflect(buf *buffer, rv reflect.Value, o *EncodeOptions) error {
	if !rv.IsValid() {
		buf.writeByte(0xC0)
		return nil
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			buf.writeByte(0xC0)
			return nil
		}
		return encodeArray(buf, rv, o)

	case reflect.Map:
		if rv.IsNil() {
			buf.writeByte(0xC0)
			return nil
		}
		return encodeMap(buf, rv, o)

	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			buf.writeByte(0xC0)
			return nil
		}
		return encodeValue(buf, rv.Elem().Interface(), o)
	}

	return substituteOrFail(buf, rv.Interface(), o)
}

func substituteOrFail(buf *buffer, v any, o *EncodeOptions) error {
	// The substitute is encoded with replacement switched off, so an
	// unsupported substitute fails instead of being replaced again.
	inner := *o
	inner.invalidTypeReplacerFunc = nil
	inner.hasReplacement = false
	if o.invalidTypeReplacerFunc != nil {
		return encodeValue(buf, o.invalidTypeReplacerFunc(v), &inner)
	}
	if o.hasReplacement {
		return encodeValue(buf, o.invalidTypeReplacement, &inner)
	}
	return fmt.Errorf("msgpack: unsupported value of type %T", v)
}

func encodeArray(buf *buffer, rv reflect.Value, o *EncodeOptions) error {
	n := rv.Len()
	if err := writeArrayHeader(buf, n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := encodeValue(buf, rv.Index(i).Interface(), o); err != nil {
			return err
		}
	}
	return nil
}

func writeArrayHeader(buf *buffer, n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("msgpack: negative array length %d", n)
	case n <= 0x0F:
		buf.writeByte(0x90 | byte(n))
	case n <= 0xFFFF:
		buf.writeByte(0xDC)
		writeBE16(buf, uint16(n))
	default:
		buf.writeByte(0xDD)
		writeBE32(buf, uint32(n))
	}
	return nil
}

func encodeMap(buf *buffer, rv reflect.Value, o *EncodeOptions) error {
	if rv.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("msgpack: map keys must be strings, got %s", rv.Type().Key())
	}

	keys := rv.MapKeys()
	members := make([]reflect.Value, 0, len(keys))
	for _, k := range keys {
		val := rv.MapIndex(k)
		if isUndefined(val) {
			continue
		}
		members = append(members, k)
	}

	switch {
	case len(members) <= 0x0F:
		buf.writeByte(0x80 | byte(len(members)))
	case len(members) <= 0xFFFF:
		buf.writeByte(0xDE)
		writeBE16(buf, uint16(len(members)))
	default:
		buf.writeByte(0xDF)
		writeBE32(buf, uint32(len(members)))
	}

	for _, k := range members {
		if err := encodeString(buf, k.String()); err != nil {
			return err
		}
		if err := encodeValue(buf, rv.MapIndex(k).Interface(), o); err != nil {
			return err
		}
	}
	return nil
}

func isUndefined(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	iv := v
	if iv.Kind() == reflect.Interface {
		if iv.IsNil() {
			return false
		}
		iv = iv.Elem()
	}
	_, ok := iv.Interface().(undefinedType)
	return ok
}

func encodeString(buf *buffer, s string) error {
	b, err := encodeUTF8(s)
	if err != nil {
		return err
	}
	switch {
	case len(b) <= 0x1F:
		buf.writeByte(0xA0 | byte(len(b)))
	case len(b) <= 0xFF:
		buf.writeByte(0xD9)
		buf.writeByte(byte(len(b)))
	case len(b) <= 0xFFFF:
		buf.writeByte(0xDA)
		writeBE16(buf, uint16(len(b)))
	default:
		buf.writeByte(0xDB)
		writeBE32(buf, uint32(len(b)))
	}
	buf.write(b)
	return nil
}

// encodeBin always uses the bin8/16/32 family (0xC4/0xC5/0xC6); there is
// no fixbin form in this codec, even for very short inputs.
func encodeBin(buf *buffer, b []byte) error {
	switch {
	case len(b) <= 0xFF:
		buf.writeByte(0xC4)
		buf.writeByte(byte(len(b)))
	case len(b) <= 0xFFFF:
		buf.writeByte(0xC5)
		writeBE16(buf, uint16(len(b)))
	default:
		buf.writeByte(0xC6)
		writeBE32(buf, uint32(len(b)))
	}
	buf.write(b)
	return nil
}

func encodeInt(buf *buffer, v int64) error {
	if v >= 0 {
		return encodeNonNegativeInt(buf, uint64(v), v)
	}

	switch {
	case v >= -0x20:
		buf.writeByte(byte(int8(v)))
	case v >= -0x80:
		buf.writeByte(0xD0)
		buf.writeByte(byte(int8(v)))
	case v >= -0x8000:
		buf.writeByte(0xD1)
		writeBE16(buf, uint16(int16(v)))
	case v >= -0x80000000:
		buf.writeByte(0xD2)
		writeBE32(buf, uint32(int32(v)))
	default:
		buf.writeByte(0xD3)
		writeBE64(buf, uint64(v))
	}
	return nil
}

// encodeNonNegativeInt selects the narrowest unsigned form for values
// known to be non-negative, falling back to the int64 sentinel within
// the safe-integer range and the uint64 sentinel beyond it.
func encodeNonNegativeInt(buf *buffer, u uint64, signedVal int64) error {
	switch {
	case u <= 0x7F:
		buf.writeByte(byte(u))
	case u <= 0xFF:
		buf.writeByte(0xCC)
		buf.writeByte(byte(u))
	case u <= 0xFFFF:
		buf.writeByte(0xCD)
		writeBE16(buf, uint16(u))
	case u <= 0xFFFFFFFF:
		buf.writeByte(0xCE)
		writeBE32(buf, uint32(u))
	case signedVal >= 0 && signedVal <= maxSafeInt:
		buf.writeByte(0xD3)
		writeBE64(buf, u)
	default:
		buf.writeByte(0xCF)
		writeBE64(buf, u)
	}
	return nil
}

func encodeUint(buf *buffer, u uint64) error {
	if u <= math.MaxInt64 {
		return encodeNonNegativeInt(buf, u, int64(u))
	}
	// Beyond int64's positive range: only the uint64 sentinel can hold it.
	buf.writeByte(0xCF)
	writeBE64(buf, u)
	return nil
}

func encodeFloat(buf *buffer, v float64) error {
	if isFiniteInteger(v) {
		return encodeInt(buf, int64(v))
	}
	buf.writeByte(0xCB)
	writeBE64(buf, math.Float64bits(v))
	return nil
}

func isFiniteInteger(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if v != math.Trunc(v) {
		return false
	}
	return v >= -9.223372036854776e18 && v < 9.223372036854776e18
}

// encodeDate implements the three Date payload shapes: fixext4 when
// sub-second precision is zero and seconds fit uint32, fixext8 when
// seconds fit 34 bits, and ext8 (length 12) otherwise.
func encodeDate(buf *buffer, t time.Time) error {
	secs := t.Unix()
	nsec := int64(t.Nanosecond())

	if nsec == 0 && secs >= 0 && secs <= 0xFFFFFFFF {
		buf.writeByte(0xD6)
		buf.writeByte(0xFF)
		writeBE32(buf, uint32(secs))
		return nil
	}

	if secs >= 0 && secs < (1<<34) {
		buf.writeByte(0xD7)
		buf.writeByte(0xFF)
		data := (uint64(nsec) << 34) | uint64(secs)
		writeBE64(buf, data)
		return nil
	}

	buf.writeByte(0xC7)
	buf.writeByte(12)
	buf.writeByte(0xFF)
	writeBE32(buf, uint32(nsec))
	writeBE64(buf, uint64(secs))
	return nil
}

func writeBE16(buf *buffer, v uint16) {
	buf.write([]byte{byte(v >> 8), byte(v)})
}

func writeBE32(buf *buffer, v uint32) {
	buf.write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func writeBE64(buf *buffer, v uint64) {
	buf.write([]byte{
		byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32),
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	})
}
