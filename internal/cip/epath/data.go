package epath

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/tonylturner/enipctl/internal/cip/codec"
)

const (
	symbolicSegment = 0x91
	simpleData      = 0x80
	element8        = 0x28
	element16       = 0x29
	element32       = 0x2A
)

// BuildData builds a DATA segment from a string. Strings made only of digits
// are element indices, anything else is an ANSI extended symbolic name.
func BuildData(value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: empty data segment", ErrInvalidSegment)
	}
	if isDigits(value) {
		index, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: element index %q: %v", ErrInvalidSegment, value, err)
		}
		return BuildElement(uint32(index)), nil
	}
	if strings.HasPrefix(value, "-") {
		return nil, fmt.Errorf("%w: negative element index %q", ErrInvalidSegment, value)
	}
	return BuildSymbolic(value)
}

// BuildSymbolic builds an ANSI extended symbolic segment padded to even length.
func BuildSymbolic(name string) ([]byte, error) {
	if name == "" || len(name) > 0xFF {
		return nil, fmt.Errorf("%w: symbolic name length %d outside 1-255", ErrInvalidSegment, len(name))
	}
	buf := make([]byte, 0, 2+len(name)+1)
	buf = append(buf, symbolicSegment, byte(len(name)))
	buf = append(buf, name...)
	return codec.PadEven(buf), nil
}

// BuildElement builds a member/element index segment using the smallest form.
func BuildElement(index uint32) []byte {
	switch {
	case index <= 0xFF:
		return []byte{element8, byte(index)}
	case index <= 0xFFFF:
		return codec.AppendUint16(binary.LittleEndian, []byte{element16, 0x00}, uint16(index))
	default:
		return codec.AppendUint32(binary.LittleEndian, []byte{element32, 0x00}, index)
	}
}

// BuildSimpleData builds a simple data segment. The payload must be a whole
// number of 16-bit words.
func BuildSimpleData(data []byte) ([]byte, error) {
	if len(data)%2 != 0 || len(data)/2 > 0xFF {
		return nil, fmt.Errorf("%w: simple data of %d bytes", ErrInvalidSegment, len(data))
	}
	buf := []byte{simpleData, byte(len(data) / 2)}
	return append(buf, data...), nil
}

// DecodeSymbolic renders a path made of symbolic and element segments back
// into tag syntax, e.g. "Program:Main.arr[3].x". Decoding stops at the first
// segment it does not recognise.
func DecodeSymbolic(path []byte) (string, error) {
	var b strings.Builder
	r := codec.NewReader(path)
	for r.Len() > 0 {
		segment := r.Uint8()
		switch segment {
		case symbolicSegment:
			n := int(r.Uint8())
			name := r.Bytes(n)
			if n%2 != 0 && r.Len() > 0 {
				r.Skip(1)
			}
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.Write(name)
		case element8:
			fmt.Fprintf(&b, "[%d]", r.Uint8())
		case element16:
			r.Skip(1)
			fmt.Fprintf(&b, "[%d]", r.Uint16())
		case element32:
			r.Skip(1)
			fmt.Fprintf(&b, "[%d]", r.Uint32())
		default:
			if b.Len() == 0 {
				return "", fmt.Errorf("%w: not a symbolic path (segment 0x%02X)", ErrInvalidSegment, segment)
			}
			return strings.ReplaceAll(b.String(), "][", ","), nil
		}
		if err := r.Err(); err != nil {
			return "", fmt.Errorf("decode symbolic path: %w", err)
		}
	}
	return strings.ReplaceAll(b.String(), "][", ","), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
