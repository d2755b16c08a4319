package enip

// EtherNet/IP encapsulation header

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of an encapsulation header.
const HeaderSize = 24

// DefaultPort is the registered EtherNet/IP TCP/UDP port.
const DefaultPort = 44818

// Command is an encapsulation command code.
type Command uint16

const (
	CommandNOP               Command = 0x0000
	CommandListServices      Command = 0x0004
	CommandListIdentity      Command = 0x0063
	CommandListInterfaces    Command = 0x0064
	CommandRegisterSession   Command = 0x0065
	CommandUnregisterSession Command = 0x0066
	CommandSendRRData        Command = 0x006F
	CommandSendUnitData      Command = 0x0070
	CommandIndicateStatus    Command = 0x0072
	CommandCancel            Command = 0x0073
)

var commandNames = map[Command]string{
	CommandNOP:               "NOP",
	CommandListServices:      "ListServices",
	CommandListIdentity:      "ListIdentity",
	CommandListInterfaces:    "ListInterfaces",
	CommandRegisterSession:   "RegisterSession",
	CommandUnregisterSession: "UnregisterSession",
	CommandSendRRData:        "SendRRData",
	CommandSendUnitData:      "SendUnitData",
	CommandIndicateStatus:    "IndicateStatus",
	CommandCancel:            "Cancel",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%04X)", uint16(c))
}

// Valid reports whether c is a known encapsulation command.
func (c Command) Valid() bool {
	_, ok := commandNames[c]
	return ok
}

// Encapsulation status codes
const (
	StatusSuccess            uint32 = 0x00
	StatusInvalidCommand     uint32 = 0x01
	StatusInsufficientMemory uint32 = 0x02
	StatusIncorrectData      uint32 = 0x03
	StatusInvalidSession     uint32 = 0x64
	StatusInvalidLength      uint32 = 0x65
	StatusUnsupportedVersion uint32 = 0x69
)

// StatusText returns the human readable form of an encapsulation status.
func StatusText(code uint32) string {
	switch code {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidCommand:
		return "FAIL: Sender issued an invalid encapsulation command."
	case StatusInsufficientMemory:
		return "FAIL: Insufficient memory resources to handle command."
	case StatusIncorrectData:
		return "FAIL: Poorly formed or incorrect data in encapsulation packet."
	case StatusInvalidSession:
		return "FAIL: Originator used an invalid session handle."
	case StatusInvalidLength:
		return "FAIL: Target received a message of invalid length."
	case StatusUnsupportedVersion:
		return "FAIL: Unsupported encapsulation protocol revision."
	default:
		return fmt.Sprintf("FAIL: General failure <%d> occurred.", code)
	}
}

// Encapsulation is one encapsulation frame.
type Encapsulation struct {
	Command       Command
	Length        uint16
	SessionID     uint32
	Status        uint32
	SenderContext [8]byte
	Options       uint32
	Data          []byte
}

// StatusText returns the decoded status of the frame.
func (e Encapsulation) StatusText() string {
	return StatusText(e.Status)
}

// EncodeENIP encodes an encapsulation frame. Length is always taken from Data.
func EncodeENIP(encap Encapsulation) []byte {
	packet := make([]byte, HeaderSize, HeaderSize+len(encap.Data))
	binary.LittleEndian.PutUint16(packet[0:2], uint16(encap.Command))
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(encap.Data)))
	binary.LittleEndian.PutUint32(packet[4:8], encap.SessionID)
	binary.LittleEndian.PutUint32(packet[8:12], encap.Status)
	copy(packet[12:20], encap.SenderContext[:])
	binary.LittleEndian.PutUint32(packet[20:24], encap.Options)
	return append(packet, encap.Data...)
}

// BuildHeader frames payload with a zero status, zero context header.
func BuildHeader(cmd Command, session uint32, payload []byte) []byte {
	return EncodeENIP(Encapsulation{Command: cmd, SessionID: session, Data: payload})
}

// DecodeENIP decodes one encapsulation frame. Bytes past the declared length
// are ignored.
func DecodeENIP(data []byte) (Encapsulation, error) {
	if len(data) < HeaderSize {
		return Encapsulation{}, fmt.Errorf("packet too short: %d bytes (minimum %d)", len(data), HeaderSize)
	}

	var encap Encapsulation
	encap.Command = Command(binary.LittleEndian.Uint16(data[0:2]))
	encap.Length = binary.LittleEndian.Uint16(data[2:4])
	encap.SessionID = binary.LittleEndian.Uint32(data[4:8])
	encap.Status = binary.LittleEndian.Uint32(data[8:12])
	copy(encap.SenderContext[:], data[12:20])
	encap.Options = binary.LittleEndian.Uint32(data[20:24])

	end := HeaderSize + int(encap.Length)
	if len(data) < end {
		return Encapsulation{}, fmt.Errorf("truncated %s frame: have %d data bytes, header declares %d",
			encap.Command, len(data)-HeaderSize, encap.Length)
	}
	if encap.Length > 0 {
		encap.Data = data[HeaderSize:end]
	}

	return encap, nil
}

// FrameLength returns the full frame size announced by a header prefix, or 0
// if fewer than HeaderSize bytes are available.
func FrameLength(prefix []byte) int {
	if len(prefix) < HeaderSize {
		return 0
	}
	return HeaderSize + int(binary.LittleEndian.Uint16(prefix[2:4]))
}
