package spec

import "github.com/tonylturner/enipctl/internal/cip/protocol"

// CIP service codes used by this client.
const (
	CIPServiceGetAttributeAll     protocol.CIPServiceCode = 0x01
	CIPServiceGetAttributeList    protocol.CIPServiceCode = 0x03
	CIPServiceMultipleService     protocol.CIPServiceCode = 0x0A
	CIPServiceGetAttributeSingle  protocol.CIPServiceCode = 0x0E
	CIPServiceSetAttributeSingle  protocol.CIPServiceCode = 0x10
	CIPServiceReadTag             protocol.CIPServiceCode = 0x4C
	CIPServiceWriteTag            protocol.CIPServiceCode = 0x4D
	CIPServiceReadModifyWrite     protocol.CIPServiceCode = 0x4E
	CIPServiceReadTagFragmented   protocol.CIPServiceCode = 0x52
	CIPServiceWriteTagFragmented  protocol.CIPServiceCode = 0x53
	CIPServiceGetInstanceAttrList protocol.CIPServiceCode = 0x55
)

// Connection Manager services. Two of them share codes with Logix tag
// services and are told apart by the addressed class.
const (
	CIPServiceForwardClose     protocol.CIPServiceCode = 0x4E
	CIPServiceUnconnectedSend  protocol.CIPServiceCode = 0x52
	CIPServiceForwardOpen      protocol.CIPServiceCode = 0x54
	CIPServiceLargeForwardOpen protocol.CIPServiceCode = 0x5B
)

// CIP object classes used by this client.
const (
	CIPClassIdentity          uint16 = 0x01
	CIPClassMessageRouter     uint16 = 0x02
	CIPClassConnectionManager uint16 = 0x06
	CIPClassSymbol            uint16 = 0x6B
	CIPClassTemplate          uint16 = 0x6C
)

// General status codes with protocol meaning beyond the error table.
const (
	StatusSuccess       uint8 = 0x00
	StatusPartialReply  uint8 = 0x06 // "too much data", more follows
	StatusEmbeddedError uint8 = 0x1E // a Multiple Service Packet entry failed
)
