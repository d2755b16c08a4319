package enip

// ListIdentity reply decoding

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/tonylturner/enipctl/internal/cip/codec"
)

// SocketAddress is the sockaddr_in carried in a ListIdentity reply. Family
// and port are big-endian on the wire.
type SocketAddress struct {
	Family  uint16 `json:"sin_family"`
	Port    uint16 `json:"sin_port"`
	Address string `json:"sin_addr"`
	Zero    []byte `json:"-"`
}

// Identity describes one device as reported by ListIdentity or by the
// Identity object's Get_Attributes_All.
type Identity struct {
	EncapsulationVersion uint16        `json:"encapsulation_version"`
	SocketAddress        SocketAddress `json:"socket_address"`
	VendorID             uint16        `json:"vendor_id"`
	DeviceType           uint16        `json:"device_type"`
	ProductCode          uint16        `json:"product_code"`
	Revision             string        `json:"revision"`
	Status               uint16        `json:"status"`
	SerialNumber         string        `json:"serial_number"`
	ProductName          string        `json:"product_name"`
	State                uint8         `json:"state"`
}

// ParseListIdentity decodes the first identity item of a ListIdentity reply
// frame.
func ParseListIdentity(frame []byte) (Identity, error) {
	encap, err := DecodeENIP(frame)
	if err != nil {
		return Identity{}, err
	}
	if encap.Command != CommandListIdentity {
		return Identity{}, fmt.Errorf("unexpected command %s", encap.Command)
	}
	if len(encap.Data) < 2 {
		return Identity{}, fmt.Errorf("list identity reply has no item list")
	}
	items, err := DecodeCPF(encap.Data)
	if err != nil {
		return Identity{}, fmt.Errorf("decode item list: %w", err)
	}
	if len(items) == 0 {
		return Identity{}, fmt.Errorf("list identity reply has no items")
	}
	return DecodeIdentityItem(items[0].Data)
}

// DecodeIdentityItem decodes the data of a ListIdentity CPF item.
func DecodeIdentityItem(data []byte) (Identity, error) {
	var id Identity
	r := codec.NewReader(data)
	id.EncapsulationVersion = r.Uint16()

	be := codec.NewReaderOrder(binary.BigEndian, r.Bytes(4))
	id.SocketAddress.Family = be.Uint16()
	id.SocketAddress.Port = be.Uint16()
	if ip := r.Bytes(4); ip != nil {
		id.SocketAddress.Address = fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
	}
	id.SocketAddress.Zero = r.Bytes(8)
	if err := r.Err(); err != nil {
		return Identity{}, fmt.Errorf("decode socket address: %w", err)
	}

	if err := decodeIdentityBody(r, &id); err != nil {
		return Identity{}, err
	}
	id.State = r.Uint8()
	if err := r.Err(); err != nil {
		return Identity{}, fmt.Errorf("decode device state: %w", err)
	}
	return id, nil
}

// DecodeIdentityAttributes decodes a Get_Attributes_All reply from the
// Identity object (class 0x01, instance 1). The trailing state byte is
// optional there.
func DecodeIdentityAttributes(data []byte) (Identity, error) {
	var id Identity
	r := codec.NewReader(data)
	if err := decodeIdentityBody(r, &id); err != nil {
		return Identity{}, err
	}
	if r.Len() > 0 {
		id.State = r.Uint8()
	}
	return id, nil
}

func decodeIdentityBody(r *codec.Reader, id *Identity) error {
	id.VendorID = r.Uint16()
	id.DeviceType = r.Uint16()
	id.ProductCode = r.Uint16()
	major := r.Uint8()
	minor := r.Uint8()
	id.Revision = strconv.Itoa(int(major)) + "." + strconv.Itoa(int(minor))
	id.Status = r.Uint16()
	id.SerialNumber = "0x" + strconv.FormatUint(uint64(r.Uint32()), 16)
	nameLen := int(r.Uint8())
	id.ProductName = string(r.Bytes(nameLen))
	if err := r.Err(); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}
	return nil
}
