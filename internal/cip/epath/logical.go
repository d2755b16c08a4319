package epath

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/codec"
)

// ErrInvalidSegment is wrapped by every segment builder error.
var ErrInvalidSegment = errors.New("invalid EPATH segment")

// LogicalType is the logical segment type, already shifted into the
// segment byte.
type LogicalType byte

const (
	ClassID         LogicalType = 0x20
	InstanceID      LogicalType = 0x24
	MemberID        LogicalType = 0x28
	ConnectionPoint LogicalType = 0x2C
	AttributeID     LogicalType = 0x30
)

const (
	logicalFormat8  = 0x00
	logicalFormat16 = 0x01
	logicalFormat32 = 0x02
)

func (t LogicalType) String() string {
	switch t {
	case ClassID:
		return "ClassID"
	case InstanceID:
		return "InstanceID"
	case MemberID:
		return "MemberID"
	case ConnectionPoint:
		return "ConnectionPoint"
	case AttributeID:
		return "AttributeID"
	}
	return fmt.Sprintf("LogicalType(0x%02X)", byte(t))
}

func (t LogicalType) valid() bool {
	switch t {
	case ClassID, InstanceID, MemberID, ConnectionPoint, AttributeID:
		return true
	}
	return false
}

// BuildLogical builds a LOGICAL segment. Addresses up to 255 use the 8-bit
// form. Larger addresses use the 16-bit form, preceded by a pad byte when
// padded is set. Instance and connection point addresses above 65535 use the
// padded 32-bit form.
func BuildLogical(t LogicalType, address int, padded bool) ([]byte, error) {
	if !t.valid() {
		return nil, fmt.Errorf("%w: unsupported logical type 0x%02X", ErrInvalidSegment, byte(t))
	}
	if address < 0 {
		return nil, fmt.Errorf("%w: negative %s address %d", ErrInvalidSegment, t, address)
	}

	switch {
	case address <= 0xFF:
		return []byte{byte(t) | logicalFormat8, byte(address)}, nil
	case address <= 0xFFFF:
		return logical16(t, uint16(address), padded), nil
	case int64(address) <= 0xFFFFFFFF && (t == InstanceID || t == ConnectionPoint):
		buf := []byte{byte(t) | logicalFormat32, 0x00}
		return codec.AppendUint32(binary.LittleEndian, buf, uint32(address)), nil
	}
	return nil, fmt.Errorf("%w: %s address %d too large", ErrInvalidSegment, t, address)
}

// BuildLogical16 always uses the padded 16-bit form, as some objects
// (Symbol instance enumeration) expect regardless of the value.
func BuildLogical16(t LogicalType, address uint16) ([]byte, error) {
	if !t.valid() {
		return nil, fmt.Errorf("%w: unsupported logical type 0x%02X", ErrInvalidSegment, byte(t))
	}
	return logical16(t, address, true), nil
}

func logical16(t LogicalType, address uint16, padded bool) []byte {
	buf := []byte{byte(t) | logicalFormat16}
	if padded {
		buf = append(buf, 0x00)
	}
	return codec.AppendUint16(binary.LittleEndian, buf, address)
}

// ClassInstance builds the common class/instance path in padded form.
func ClassInstance(class, instance int) ([]byte, error) {
	c, err := BuildLogical(ClassID, class, true)
	if err != nil {
		return nil, err
	}
	i, err := BuildLogical(InstanceID, instance, true)
	if err != nil {
		return nil, err
	}
	return append(c, i...), nil
}

// ClassInstanceAttribute builds a class/instance/attribute path.
func ClassInstanceAttribute(class, instance, attribute int) ([]byte, error) {
	path, err := ClassInstance(class, instance)
	if err != nil {
		return nil, err
	}
	a, err := BuildLogical(AttributeID, attribute, true)
	if err != nil {
		return nil, err
	}
	return append(path, a...), nil
}

// MustClassInstance is ClassInstance for compile-time constant addresses.
func MustClassInstance(class, instance int) []byte {
	path, err := ClassInstance(class, instance)
	if err != nil {
		panic(err)
	}
	return path
}
