package connmgr

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is wrapped by every connection parameter error.
var ErrInvalidParameter = errors.New("invalid connection parameter")

// Owner is the redundant owner flag.
type Owner int

const (
	OwnerExclusive Owner = 0
	OwnerMulticast Owner = 1
)

// ConnectionType selects how the connection is delivered.
type ConnectionType int

const (
	ConnectionNull         ConnectionType = 0
	ConnectionMulticast    ConnectionType = 1
	ConnectionPointToPoint ConnectionType = 2
	ConnectionReserved     ConnectionType = 3
)

// Priority is the connection priority.
type Priority int

const (
	PriorityLow       Priority = 0
	PriorityHigh      Priority = 1
	PriorityScheduled Priority = 2
	PriorityUrgent    Priority = 3
)

// SizeType selects fixed or variable sized connection data.
type SizeType int

const (
	SizeFixed    SizeType = 0
	SizeVariable SizeType = 1
)

// Maximum connection sizes for the standard and large encodings.
const (
	MaxStandardSize = 511
	MaxLargeSize    = 0xFFFF
)

func checkFields(owner Owner, ct ConnectionType, prio Priority, st SizeType) error {
	if owner != OwnerExclusive && owner != OwnerMulticast {
		return fmt.Errorf("%w: owner %d", ErrInvalidParameter, owner)
	}
	if ct < ConnectionNull || ct > ConnectionReserved {
		return fmt.Errorf("%w: connection type %d", ErrInvalidParameter, ct)
	}
	if prio < PriorityLow || prio > PriorityUrgent {
		return fmt.Errorf("%w: priority %d", ErrInvalidParameter, prio)
	}
	if st != SizeFixed && st != SizeVariable {
		return fmt.Errorf("%w: fixed/variable %d", ErrInvalidParameter, st)
	}
	return nil
}

// ConnectionParameters packs the 16-bit network connection parameter word:
// owner (bit 15), connection type (bits 13-14), priority (bits 10-11),
// fixed/variable (bit 9) and size (bits 0-8).
func ConnectionParameters(owner Owner, ct ConnectionType, prio Priority, st SizeType, size int) (uint16, error) {
	if err := checkFields(owner, ct, prio, st); err != nil {
		return 0, err
	}
	if size < 0 || size > MaxStandardSize {
		return 0, fmt.Errorf("%w: size %d outside 0-%d", ErrInvalidParameter, size, MaxStandardSize)
	}
	return uint16(owner)<<15 | uint16(ct)<<13 | uint16(prio)<<10 | uint16(st)<<9 | uint16(size), nil
}

// LargeConnectionParameters packs the 32-bit word used by Large Forward Open.
// The field layout is the standard one shifted up 16 bits with a 16-bit size.
func LargeConnectionParameters(owner Owner, ct ConnectionType, prio Priority, st SizeType, size int) (uint32, error) {
	if err := checkFields(owner, ct, prio, st); err != nil {
		return 0, err
	}
	if size < 0 || size > MaxLargeSize {
		return 0, fmt.Errorf("%w: size %d outside 0-%d", ErrInvalidParameter, size, MaxLargeSize)
	}
	return uint32(owner)<<31 | uint32(ct)<<29 | uint32(prio)<<26 | uint32(st)<<25 | uint32(size), nil
}
