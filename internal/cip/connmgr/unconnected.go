package connmgr

import (
	"encoding/binary"
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/codec"
	"github.com/tonylturner/enipctl/internal/cip/epath"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
)

// DefaultUnconnectedTimeoutMs is the routing timeout of an Unconnected Send.
const DefaultUnconnectedTimeoutMs = 2000

// BuildUnconnectedSend wraps a Message Router request for routing along
// route, e.g. the backplane port segment of a controller slot.
func BuildUnconnectedSend(mr, route []byte, timeoutMs int) ([]byte, error) {
	timeTick, ticks, err := EncodeTimeout(timeoutMs)
	if err != nil {
		return nil, err
	}
	if len(mr) > 0xFFFF {
		return nil, fmt.Errorf("%w: embedded request of %d bytes", ErrInvalidParameter, len(mr))
	}
	routeWords := (len(route) + 1) / 2
	if routeWords > 0xFF {
		return nil, fmt.Errorf("%w: route path of %d bytes", epath.ErrInvalidSegment, len(route))
	}

	buf := make([]byte, 0, 4+len(mr)+1+2+len(route)+1)
	buf = append(buf, timeTick, ticks)
	buf = codec.AppendUint16(binary.LittleEndian, buf, uint16(len(mr)))
	buf = append(buf, mr...)
	buf = codec.PadEven(buf)
	buf = append(buf, byte(routeWords), 0)
	buf = append(buf, route...)
	buf = codec.PadEven(buf)

	return protocol.BuildRequest(spec.CIPServiceUnconnectedSend, Path, buf)
}

// UnconnectedSendError describes a routing failure reported by the
// Connection Manager in place of the embedded reply.
type UnconnectedSendError struct {
	GeneralStatus     uint8
	ExtendedStatus    []uint16
	RemainingPathSize uint8
}

func (e *UnconnectedSendError) Error() string {
	return fmt.Sprintf("unconnected send failed: status 0x%02X, remaining path %d words", e.GeneralStatus, e.RemainingPathSize)
}

// RoutingError returns a non-nil error when resp is an Unconnected Send
// failure reply rather than the embedded service's own reply.
func RoutingError(resp protocol.CIPResponse) *UnconnectedSendError {
	if resp.Service.Request() != spec.CIPServiceUnconnectedSend || resp.OK() {
		return nil
	}
	e := &UnconnectedSendError{GeneralStatus: resp.GeneralStatus, ExtendedStatus: resp.ExtStatus}
	if len(resp.Payload) > 0 {
		e.RemainingPathSize = resp.Payload[0]
	}
	return e
}
