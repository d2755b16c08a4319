package enip

// Common Packet Format item lists

import (
	"encoding/binary"
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/codec"
)

// ItemID identifies a CPF item.
type ItemID uint16

const (
	ItemNull                     ItemID = 0x0000
	ItemListIdentity             ItemID = 0x000C
	ItemConnectionBased          ItemID = 0x00A1
	ItemConnectedTransportPacket ItemID = 0x00B1
	ItemUCMM                     ItemID = 0x00B2
	ItemListServices             ItemID = 0x0100
	ItemSockaddrO2T              ItemID = 0x8000
	ItemSockaddrT2O              ItemID = 0x8001
	ItemSequencedAddress         ItemID = 0x8002
)

// CPFItem is one entry of a Common Packet Format list.
type CPFItem struct {
	TypeID ItemID
	Data   []byte
}

// EncodeCPF encodes an item list: count, then type/length/data per item.
func EncodeCPF(items []CPFItem) []byte {
	size := 2
	for _, item := range items {
		size += 4 + len(item.Data)
	}
	buf := make([]byte, 0, size)
	buf = codec.AppendUint16(binary.LittleEndian, buf, uint16(len(items)))
	for _, item := range items {
		buf = codec.AppendUint16(binary.LittleEndian, buf, uint16(item.TypeID))
		buf = codec.AppendUint16(binary.LittleEndian, buf, uint16(len(item.Data)))
		buf = append(buf, item.Data...)
	}
	return buf
}

// DecodeCPF decodes an item list produced by EncodeCPF.
func DecodeCPF(data []byte) ([]CPFItem, error) {
	r := codec.NewReader(data)
	count := int(r.Uint16())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read CPF item count: %w", err)
	}

	items := make([]CPFItem, 0, count)
	for i := 0; i < count; i++ {
		typeID := ItemID(r.Uint16())
		length := int(r.Uint16())
		payload := r.Bytes(length)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("read CPF item %d of %d: %w", i+1, count, err)
		}
		items = append(items, CPFItem{TypeID: typeID, Data: payload})
	}
	return items, nil
}

// FindItem returns the first item of the given type.
func FindItem(items []CPFItem, typeID ItemID) (CPFItem, bool) {
	for _, item := range items {
		if item.TypeID == typeID {
			return item, true
		}
	}
	return CPFItem{}, false
}
