package status

import (
	"fmt"
	"strings"
)

// Error is a decoded non-success Message Router status.
type Error struct {
	GeneralStatus  uint8
	ExtendedStatus []uint8
	Message        string
	Service        string
}

func (e *Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s failed with status 0x%02X: %s", e.Service, e.GeneralStatus, e.Message)
	}
	return fmt.Sprintf("CIP status 0x%02X: %s", e.GeneralStatus, e.Message)
}

// Lookup decodes a general status and its extended codes. Service is the
// name of the operation that failed and may be empty.
func Lookup(general uint8, extended []uint8, service string) *Error {
	return &Error{
		GeneralStatus:  general,
		ExtendedStatus: append([]uint8(nil), extended...),
		Message:        Message(general, extended),
		Service:        service,
	}
}

// Message renders "<general>. Extended: <ext>; <ext>" for a known general
// code. Unknown general codes ignore the extended list.
func Message(general uint8, extended []uint8) string {
	entries, ok := table[general]
	if !ok {
		return fmt.Sprintf("Unknown general status code 0x%02x", general)
	}
	msg := entries[0x00]
	if len(extended) == 0 {
		return msg
	}

	parts := make([]string, len(extended))
	for i, code := range extended {
		if text, ok := entries[code]; ok {
			parts[i] = text
		} else {
			parts[i] = fmt.Sprintf("0x%02x is UNKNOWN", code)
		}
	}
	return msg + ". Extended: " + strings.Join(parts, "; ")
}

// Known reports whether general has an entry in the table.
func Known(general uint8) bool {
	_, ok := table[general]
	return ok
}
