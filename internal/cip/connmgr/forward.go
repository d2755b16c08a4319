package connmgr

// Forward Open / Forward Close request building and reply parsing.

import (
	"encoding/binary"
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/codec"
	"github.com/tonylturner/enipctl/internal/cip/epath"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
)

// Path addresses the Connection Manager object, class 0x06 instance 1.
var Path = []byte{0x20, byte(spec.CIPClassConnectionManager), 0x24, 0x01}

// Originator defaults carried by every Forward Open and Forward Close.
const (
	DefaultConnectionSerial  uint16 = 0x4242
	DefaultVendorID          uint16 = 0x3333
	DefaultOriginatorSerial  uint32 = 0x1337
	DefaultTimeoutMs                = 1000
	DefaultTimeoutMultiplier        = 32
	DefaultRPI               uint32 = 10000
	DefaultConnectionSize           = 500
	DefaultTransportTrigger  uint8  = 0xA3
)

var timeoutMultipliers = map[int]uint8{
	4: 0, 8: 1, 16: 2, 32: 3, 64: 4, 128: 5, 256: 6, 512: 7,
}

// ForwardOpen holds the parameters of a Forward Open request.
type ForwardOpen struct {
	// Large selects Large Forward Open (0x5B) with 32-bit network
	// connection parameters. Otherwise standard Forward Open (0x54).
	Large bool

	TimeoutMs         int
	OTConnectionID    uint32
	TOConnectionID    uint32
	ConnectionSerial  uint16
	VendorID          uint16
	OriginatorSerial  uint32
	TimeoutMultiplier int
	OTRPI             uint32 // microseconds
	TORPI             uint32 // microseconds
	ConnectionSize    int
	TransportTrigger  uint8

	// OTParams/TOParams override the parameters derived from ConnectionSize.
	OTParams uint32
	TOParams uint32

	// ConnectionPath is appended as a word count and path.
	ConnectionPath []byte
}

// DefaultForwardOpen returns the originator defaults with the given
// connection path.
func DefaultForwardOpen(connectionPath []byte) ForwardOpen {
	return ForwardOpen{
		TimeoutMs:         DefaultTimeoutMs,
		ConnectionSerial:  DefaultConnectionSerial,
		VendorID:          DefaultVendorID,
		OriginatorSerial:  DefaultOriginatorSerial,
		TimeoutMultiplier: DefaultTimeoutMultiplier,
		OTRPI:             DefaultRPI,
		TORPI:             DefaultRPI,
		ConnectionSize:    DefaultConnectionSize,
		TransportTrigger:  DefaultTransportTrigger,
		ConnectionPath:    connectionPath,
	}
}

// Service returns the Connection Manager service the request is sent with.
func (f ForwardOpen) Service() protocol.CIPServiceCode {
	if f.Large {
		return spec.CIPServiceLargeForwardOpen
	}
	return spec.CIPServiceForwardOpen
}

func (f ForwardOpen) params() (uint32, uint32, error) {
	ot, to := f.OTParams, f.TOParams
	if ot != 0 && to != 0 {
		return ot, to, nil
	}

	var derived uint32
	if f.Large {
		p, err := LargeConnectionParameters(OwnerExclusive, ConnectionPointToPoint, PriorityLow, SizeVariable, f.ConnectionSize)
		if err != nil {
			return 0, 0, err
		}
		derived = p
	} else {
		p, err := ConnectionParameters(OwnerExclusive, ConnectionPointToPoint, PriorityLow, SizeVariable, f.ConnectionSize)
		if err != nil {
			return 0, 0, err
		}
		derived = uint32(p)
	}
	if ot == 0 {
		ot = derived
	}
	if to == 0 {
		to = derived
	}
	return ot, to, nil
}

// Payload encodes the fixed part of the request, without the connection
// path: 35 bytes for standard and 39 bytes for Large Forward Open.
func (f ForwardOpen) Payload() ([]byte, error) {
	timeTick, ticks, err := EncodeTimeout(f.TimeoutMs)
	if err != nil {
		return nil, err
	}
	multiplier, ok := timeoutMultipliers[f.TimeoutMultiplier]
	if !ok {
		return nil, fmt.Errorf("%w: timeout multiplier %d", ErrInvalidParameter, f.TimeoutMultiplier)
	}
	otParams, toParams, err := f.params()
	if err != nil {
		return nil, err
	}

	le := binary.LittleEndian
	buf := make([]byte, 0, 39)
	buf = append(buf, timeTick, ticks)
	buf = codec.AppendUint32(le, buf, f.OTConnectionID)
	buf = codec.AppendUint32(le, buf, f.TOConnectionID)
	buf = codec.AppendUint16(le, buf, f.ConnectionSerial)
	buf = codec.AppendUint16(le, buf, f.VendorID)
	buf = codec.AppendUint32(le, buf, f.OriginatorSerial)
	buf = append(buf, multiplier, 0, 0, 0)
	buf = codec.AppendUint32(le, buf, f.OTRPI)
	buf = f.appendParams(buf, otParams)
	buf = codec.AppendUint32(le, buf, f.TORPI)
	buf = f.appendParams(buf, toParams)
	buf = append(buf, f.TransportTrigger)
	return buf, nil
}

func (f ForwardOpen) appendParams(buf []byte, params uint32) []byte {
	if f.Large {
		return codec.AppendUint32(binary.LittleEndian, buf, params)
	}
	return codec.AppendUint16(binary.LittleEndian, buf, uint16(params))
}

// Request encodes the complete Message Router request addressed to the
// Connection Manager.
func (f ForwardOpen) Request() ([]byte, error) {
	payload, err := f.Payload()
	if err != nil {
		return nil, err
	}
	payload, err = appendConnectionPath(payload, f.ConnectionPath, false)
	if err != nil {
		return nil, err
	}
	return protocol.BuildRequest(f.Service(), Path, payload)
}

// Close returns the Forward Close matching this Forward Open.
func (f ForwardOpen) Close() ForwardClose {
	return ForwardClose{
		TimeoutMs:        f.TimeoutMs,
		ConnectionSerial: f.ConnectionSerial,
		VendorID:         f.VendorID,
		OriginatorSerial: f.OriginatorSerial,
		ConnectionPath:   f.ConnectionPath,
	}
}

// ForwardOpenReply is the successful reply to a Forward Open.
type ForwardOpenReply struct {
	OTConnectionID   uint32
	TOConnectionID   uint32
	ConnectionSerial uint16
	VendorID         uint16
	OriginatorSerial uint32
	OTAPI            uint32
	TOAPI            uint32
	ApplicationReply []byte
}

// ParseForwardOpenReply decodes the data of a successful Forward Open reply.
func ParseForwardOpenReply(data []byte) (ForwardOpenReply, error) {
	r := codec.NewReader(data)
	var reply ForwardOpenReply
	reply.OTConnectionID = r.Uint32()
	reply.TOConnectionID = r.Uint32()
	reply.ConnectionSerial = r.Uint16()
	reply.VendorID = r.Uint16()
	reply.OriginatorSerial = r.Uint32()
	if err := r.Err(); err != nil {
		return ForwardOpenReply{}, fmt.Errorf("decode forward open reply: %w", err)
	}
	// API and application reply are optional on some targets.
	if r.Len() >= 8 {
		reply.OTAPI = r.Uint32()
		reply.TOAPI = r.Uint32()
	}
	if r.Len() >= 2 {
		words := int(r.Uint8())
		r.Skip(1)
		reply.ApplicationReply = r.Bytes(words * 2)
		if err := r.Err(); err != nil {
			return ForwardOpenReply{}, fmt.Errorf("decode forward open application reply: %w", err)
		}
	}
	return reply, nil
}

// ForwardClose holds the parameters of a Forward Close request.
type ForwardClose struct {
	TimeoutMs        int
	ConnectionSerial uint16
	VendorID         uint16
	OriginatorSerial uint32
	ConnectionPath   []byte
}

// Payload encodes the fixed 10 byte part of the request.
func (f ForwardClose) Payload() ([]byte, error) {
	timeTick, ticks, err := EncodeTimeout(f.TimeoutMs)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	buf := make([]byte, 0, 10)
	buf = append(buf, timeTick, ticks)
	buf = codec.AppendUint16(le, buf, f.ConnectionSerial)
	buf = codec.AppendUint16(le, buf, f.VendorID)
	buf = codec.AppendUint32(le, buf, f.OriginatorSerial)
	return buf, nil
}

// Request encodes the complete Forward Close request.
func (f ForwardClose) Request() ([]byte, error) {
	payload, err := f.Payload()
	if err != nil {
		return nil, err
	}
	payload, err = appendConnectionPath(payload, f.ConnectionPath, true)
	if err != nil {
		return nil, err
	}
	return protocol.BuildRequest(spec.CIPServiceForwardClose, Path, payload)
}

// appendConnectionPath appends the path size in words, an optional reserved
// byte and the path padded to an even length.
func appendConnectionPath(buf, path []byte, reserved bool) ([]byte, error) {
	words := (len(path) + 1) / 2
	if words > 0xFF {
		return nil, fmt.Errorf("%w: connection path of %d bytes", epath.ErrInvalidSegment, len(path))
	}
	buf = append(buf, byte(words))
	if reserved {
		buf = append(buf, 0)
	}
	buf = append(buf, path...)
	if len(path)%2 != 0 {
		buf = append(buf, 0)
	}
	return buf, nil
}

// BackplanePath returns the connection path to a controller in a chassis
// slot: backplane port 1, the slot, then the Message Router.
func BackplanePath(slot int) ([]byte, error) {
	port, err := epath.BuildPort(1, slot)
	if err != nil {
		return nil, err
	}
	return append(port, protocol.MessageRouterPath...), nil
}
