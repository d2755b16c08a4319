package enip

import (
	"encoding/binary"
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/codec"
)

// ProtocolVersion is the only encapsulation revision defined.
const ProtocolVersion = 1

// DefaultRRDataTimeout is the SendRRData timeout field in seconds.
const DefaultRRDataTimeout = 10

// RegisterSession builds a RegisterSession request.
func RegisterSession() []byte {
	var data []byte
	data = codec.AppendUint16(binary.LittleEndian, data, ProtocolVersion)
	data = codec.AppendUint16(binary.LittleEndian, data, 0) // option flags
	return BuildHeader(CommandRegisterSession, 0, data)
}

// UnregisterSession builds an UnregisterSession request.
func UnregisterSession(session uint32) []byte {
	return BuildHeader(CommandUnregisterSession, session, nil)
}

// ListIdentity builds a ListIdentity request. It carries no payload.
func ListIdentity() []byte {
	return BuildHeader(CommandListIdentity, 0, nil)
}

// ListServices builds a ListServices request.
func ListServices() []byte {
	return BuildHeader(CommandListServices, 0, nil)
}

// NOP builds a NOP frame. Targets never reply to it.
func NOP(data []byte) []byte {
	return BuildHeader(CommandNOP, 0, data)
}

// SendRRDataPayload builds the command specific data of a SendRRData frame:
// interface handle, timeout and a [Null, UCMM] item list.
func SendRRDataPayload(data []byte, timeout uint16) []byte {
	var buf []byte
	buf = codec.AppendUint32(binary.LittleEndian, buf, 0) // interface handle, CIP
	buf = codec.AppendUint16(binary.LittleEndian, buf, timeout)
	return append(buf, EncodeCPF([]CPFItem{
		{TypeID: ItemNull},
		{TypeID: ItemUCMM, Data: data},
	})...)
}

// SendRRData builds an unconnected SendRRData frame.
func SendRRData(session uint32, data []byte, timeout uint16) []byte {
	return BuildHeader(CommandSendRRData, session, SendRRDataPayload(data, timeout))
}

// SendUnitDataPayload builds the command specific data of a SendUnitData
// frame. Interface handle and timeout are always zero.
func SendUnitDataPayload(data []byte, connectionID uint32, seq uint16) []byte {
	var buf []byte
	buf = codec.AppendUint32(binary.LittleEndian, buf, 0)
	buf = codec.AppendUint16(binary.LittleEndian, buf, 0)

	addr := codec.AppendUint32(binary.LittleEndian, nil, connectionID)
	packet := codec.AppendUint16(binary.LittleEndian, make([]byte, 0, 2+len(data)), seq)
	packet = append(packet, data...)

	return append(buf, EncodeCPF([]CPFItem{
		{TypeID: ItemConnectionBased, Data: addr},
		{TypeID: ItemConnectedTransportPacket, Data: packet},
	})...)
}

// SendUnitData builds a connected SendUnitData frame.
func SendUnitData(session uint32, data []byte, connectionID uint32, seq uint16) []byte {
	return BuildHeader(CommandSendUnitData, session, SendUnitDataPayload(data, connectionID, seq))
}

// ParseRRData strips the interface handle and timeout of a SendRRData or
// SendUnitData body and decodes the item list that follows.
func ParseRRData(data []byte) ([]CPFItem, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("command data too short: %d bytes (minimum 6)", len(data))
	}
	return DecodeCPF(data[6:])
}

// UnconnectedData returns the message router bytes of a SendRRData body.
func UnconnectedData(data []byte) ([]byte, error) {
	items, err := ParseRRData(data)
	if err != nil {
		return nil, err
	}
	item, ok := FindItem(items, ItemUCMM)
	if !ok {
		return nil, fmt.Errorf("no unconnected data item in %d CPF items", len(items))
	}
	return item.Data, nil
}

// ConnectedData returns the connection id, sequence number and message
// router bytes of a SendUnitData body.
func ConnectedData(data []byte) (uint32, uint16, []byte, error) {
	items, err := ParseRRData(data)
	if err != nil {
		return 0, 0, nil, err
	}
	addr, ok := FindItem(items, ItemConnectionBased)
	if !ok || len(addr.Data) < 4 {
		return 0, 0, nil, fmt.Errorf("no connected address item in %d CPF items", len(items))
	}
	packet, ok := FindItem(items, ItemConnectedTransportPacket)
	if !ok || len(packet.Data) < 2 {
		return 0, 0, nil, fmt.Errorf("no connected data item in %d CPF items", len(items))
	}
	connID := binary.LittleEndian.Uint32(addr.Data)
	seq := binary.LittleEndian.Uint16(packet.Data)
	return connID, seq, packet.Data[2:], nil
}

// RegisteredSession extracts the session handle from a RegisterSession reply.
func RegisteredSession(encap Encapsulation) (uint32, error) {
	if encap.Command != CommandRegisterSession {
		return 0, fmt.Errorf("unexpected command %s", encap.Command)
	}
	if encap.Status != StatusSuccess {
		return 0, fmt.Errorf("register session rejected: %s", encap.StatusText())
	}
	if encap.SessionID == 0 {
		return 0, fmt.Errorf("register session reply carries no session handle")
	}
	return encap.SessionID, nil
}
