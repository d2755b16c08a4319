package spec

import (
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/protocol"
)

var cipServiceNames = map[uint8]string{
	0x01: "Get Attribute All",
	0x03: "Get Attributes",
	0x0A: "Multiple Service Packet",
	0x0E: "Get Attribute Single",
	0x10: "Set Attribute Single",
	0x4C: "Read Tag",
	0x4D: "Write Tag",
	0x4E: "Read Modify Write Tag",
	0x52: "Read Tag Fragmented",
	0x53: "Write Tag Fragmented",
	0x55: "Get Instance Attribute List",
}

var connectionManagerNames = map[uint8]string{
	0x4E: "Forward Close",
	0x52: "Unconnected Send",
	0x54: "Forward Open",
	0x5B: "Large Forward Open",
}

// ServiceName returns the outcome name of a service code, reply bit ignored.
// Connection Manager services are only resolved when connMgr is set.
func ServiceName(code protocol.CIPServiceCode, connMgr bool) string {
	c := uint8(code.Request())
	if connMgr {
		if name, ok := connectionManagerNames[c]; ok {
			return name
		}
	}
	if name, ok := cipServiceNames[c]; ok {
		return name
	}
	if name, ok := connectionManagerNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02X)", c)
}

// IsKnownService returns true when a service code is recognized.
func IsKnownService(code protocol.CIPServiceCode) bool {
	c := uint8(code.Request())
	_, ok := cipServiceNames[c]
	if !ok {
		_, ok = connectionManagerNames[c]
	}
	return ok
}

// AddressesConnectionManager reports whether an encoded request path starts
// with the Connection Manager class segment.
func AddressesConnectionManager(path []byte) bool {
	return len(path) >= 2 && path[0] == 0x20 && uint16(path[1]) == CIPClassConnectionManager
}
