package epath

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/tonylturner/enipctl/internal/cip/codec"
)

const (
	portSegment      = 0x00
	portExtendedLink = 0x10
	portExtendedID   = 0x0F
)

// BuildPort builds a PORT segment with a one byte link address, e.g. the
// backplane slot. Ports 1-14 are encoded in the segment byte; larger port
// numbers use the extended 16-bit port identifier.
func BuildPort(port int, link int) ([]byte, error) {
	if err := checkPort(port); err != nil {
		return nil, err
	}
	if link < 0 || link > 0xFF {
		return nil, fmt.Errorf("%w: link address %d outside 0-255", ErrInvalidSegment, link)
	}

	buf := portHeader(port, false)
	return append(buf, byte(link)), nil
}

// BuildPortAddress builds a PORT segment whose link address is a dotted IPv4
// string, e.g. a remote Ethernet bridge target.
func BuildPortAddress(port int, address string) ([]byte, error) {
	if err := checkPort(port); err != nil {
		return nil, err
	}
	if ip := net.ParseIP(address); ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: link address %q is not a dotted IPv4 address", ErrInvalidSegment, address)
	}

	head := portHeader(port, true)
	buf := make([]byte, 0, len(head)+len(address)+2)
	buf = append(buf, head[0], byte(len(address)))
	buf = append(buf, head[1:]...)
	buf = append(buf, address...)
	return codec.PadEven(buf), nil
}

func checkPort(port int) error {
	if port <= 0 || port > 0xFFFF {
		return fmt.Errorf("%w: port %d outside 1-65535", ErrInvalidSegment, port)
	}
	return nil
}

func portHeader(port int, extendedLink bool) []byte {
	var segment byte = portSegment
	if extendedLink {
		segment |= portExtendedLink
	}
	if port < portExtendedID {
		return []byte{segment | byte(port)}
	}
	return codec.AppendUint16(binary.LittleEndian, []byte{segment | portExtendedID}, uint16(port))
}
