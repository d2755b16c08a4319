package tags

// Atomic value encoding for Read/Write Tag data

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/tonylturner/enipctl/internal/cip/codec"
	"github.com/tonylturner/enipctl/internal/cip/spec"
)

// DecodeValue decodes one atomic value of type typ from the front of data
// and returns it with the number of bytes consumed. Signed types decode to
// the matching Go signed type, BOOL to bool, REAL/LREAL to float32/float64.
func DecodeValue(typ spec.DataType, data []byte) (any, int, error) {
	size := typ.Size()
	if size == 0 {
		return nil, 0, fmt.Errorf("%w: %s is not an atomic type", ErrUnsupportedType, typ)
	}
	if len(data) < size {
		return nil, 0, fmt.Errorf("decode %s: %w", typ, codec.ErrShortBuffer)
	}

	le := binary.LittleEndian
	var v any
	switch typ {
	case spec.TypeBOOL:
		v = data[0] != 0
	case spec.TypeSINT:
		v = int8(data[0])
	case spec.TypeUSINT, spec.TypeBYTE:
		v = data[0]
	case spec.TypeINT:
		v = int16(le.Uint16(data))
	case spec.TypeUINT, spec.TypeWORD:
		v = le.Uint16(data)
	case spec.TypeDINT:
		v = int32(le.Uint32(data))
	case spec.TypeUDINT, spec.TypeDWORD:
		v = le.Uint32(data)
	case spec.TypeLINT:
		v = int64(le.Uint64(data))
	case spec.TypeULINT, spec.TypeLWORD:
		v = le.Uint64(data)
	case spec.TypeREAL:
		v = math.Float32frombits(le.Uint32(data))
	case spec.TypeLREAL:
		v = math.Float64frombits(le.Uint64(data))
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	return v, size, nil
}

// DecodeValues decodes count consecutive values of typ.
func DecodeValues(typ spec.DataType, data []byte, count int) ([]any, error) {
	values := make([]any, 0, count)
	offset := 0
	for i := 0; i < count; i++ {
		v, n, err := DecodeValue(typ, data[offset:])
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		values = append(values, v)
		offset += n
	}
	return values, nil
}

// EncodeValue appends the little-endian encoding of v as typ. Any Go numeric
// type or bool is accepted as long as it fits the target type.
func EncodeValue(dst []byte, typ spec.DataType, v any) ([]byte, error) {
	le := binary.LittleEndian
	switch typ {
	case spec.TypeBOOL:
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		if b {
			return append(dst, 0x01), nil
		}
		return append(dst, 0x00), nil
	case spec.TypeREAL:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return codec.AppendUint32(le, dst, math.Float32bits(float32(f))), nil
	case spec.TypeLREAL:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return codec.AppendUint64(le, dst, math.Float64bits(f)), nil
	}

	size := typ.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	n, err := toInt(v)
	if err != nil {
		return nil, err
	}
	if !fits(typ, n) {
		return nil, fmt.Errorf("value %d out of range for %s", n, typ)
	}
	switch size {
	case 1:
		return append(dst, byte(n)), nil
	case 2:
		return codec.AppendUint16(le, dst, uint16(n)), nil
	case 4:
		return codec.AppendUint32(le, dst, uint32(n)), nil
	default:
		return codec.AppendUint64(le, dst, uint64(n)), nil
	}
}

// EncodeValues encodes a slice (or a single value when count is 1) and
// returns the element count written.
func EncodeValues(dst []byte, typ spec.DataType, v any) ([]byte, int, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		out, err := EncodeValue(dst, typ, v)
		return out, 1, err
	}
	if rv.Len() == 0 {
		return nil, 0, fmt.Errorf("empty value list")
	}
	for i := 0; i < rv.Len(); i++ {
		var err error
		dst, err = EncodeValue(dst, typ, rv.Index(i).Interface())
		if err != nil {
			return nil, 0, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return dst, rv.Len(), nil
}

func fits(typ spec.DataType, n int64) bool {
	switch typ {
	case spec.TypeSINT:
		return n >= math.MinInt8 && n <= math.MaxInt8
	case spec.TypeUSINT, spec.TypeBYTE:
		return n >= math.MinInt8 && n <= math.MaxUint8
	case spec.TypeINT:
		return n >= math.MinInt16 && n <= math.MaxInt16
	case spec.TypeUINT, spec.TypeWORD:
		return n >= math.MinInt16 && n <= math.MaxUint16
	case spec.TypeDINT:
		return n >= math.MinInt32 && n <= math.MaxInt32
	case spec.TypeUDINT, spec.TypeDWORD:
		return n >= math.MinInt32 && n <= math.MaxUint32
	}
	return true
}

func toInt(v any) (int64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("value %v is not an integer", f)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("cannot encode %T as an integer", v)
}

func toFloat(v any) (float64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return 0, fmt.Errorf("cannot encode %T as a float", v)
}

func toBool(v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	n, err := toInt(v)
	if err != nil {
		return false, fmt.Errorf("cannot encode %T as BOOL", v)
	}
	return n != 0, nil
}

// ParseValue parses the text form of one value of typ, as typed on a command
// line. BOOL accepts true/false/1/0, integers accept 0x prefixes.
func ParseValue(typ spec.DataType, s string) (any, error) {
	s = strings.TrimSpace(s)
	switch typ {
	case spec.TypeBOOL:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("parse %q as BOOL", s)
		}
		return b, nil
	case spec.TypeREAL:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("parse %q as REAL", s)
		}
		return float32(f), nil
	case spec.TypeLREAL:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q as LREAL", s)
		}
		return f, nil
	case spec.TypeULINT, spec.TypeLWORD:
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q as %s", s, typ)
		}
		return n, nil
	}
	if typ.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %q as %s", s, typ)
	}
	if !fits(typ, n) {
		return nil, fmt.Errorf("value %d out of range for %s", n, typ)
	}
	return n, nil
}

// ParseValues parses a comma separated list. A single element is returned
// as a scalar.
func ParseValues(typ spec.DataType, s string) (any, error) {
	parts := strings.Split(s, ",")
	if len(parts) == 1 {
		return ParseValue(typ, parts[0])
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		v, err := ParseValue(typ, p)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
