package enip

import "testing"

func identityItem() []byte {
	data := []byte{
		0x01, 0x00, // encapsulation version
		0x00, 0x02, 0xAF, 0x12, // family, port (big-endian)
		192, 168, 1, 10, // address
		0, 0, 0, 0, 0, 0, 0, 0, // zero
		0x01, 0x00, // vendor
		0x0E, 0x00, // device type
		0x36, 0x00, // product code
		20, 11, // revision
		0x60, 0x30, // status
		0x78, 0x56, 0x34, 0x12, // serial
		7, // name length
	}
	data = append(data, []byte("1756-L7")...)
	return append(data, 0x03)
}

func TestParseListIdentity(t *testing.T) {
	item := identityItem()
	frame := BuildHeader(CommandListIdentity, 0, EncodeCPF([]CPFItem{{TypeID: ItemListIdentity, Data: item}}))

	id, err := ParseListIdentity(frame)
	if err != nil {
		t.Fatalf("ParseListIdentity() error: %v", err)
	}

	if id.EncapsulationVersion != 1 {
		t.Errorf("EncapsulationVersion = %d", id.EncapsulationVersion)
	}
	if id.SocketAddress.Family != 2 || id.SocketAddress.Port != 44818 {
		t.Errorf("socket family/port = %d/%d", id.SocketAddress.Family, id.SocketAddress.Port)
	}
	if id.SocketAddress.Address != "192.168.1.10" {
		t.Errorf("address = %q", id.SocketAddress.Address)
	}
	if id.VendorID != 1 || id.DeviceType != 0x0E || id.ProductCode != 0x36 {
		t.Errorf("vendor/type/product = %d/%d/%d", id.VendorID, id.DeviceType, id.ProductCode)
	}
	if id.Revision != "20.11" {
		t.Errorf("revision = %q", id.Revision)
	}
	if id.Status != 0x3060 {
		t.Errorf("status = 0x%04X", id.Status)
	}
	if id.SerialNumber != "0x12345678" {
		t.Errorf("serial = %q", id.SerialNumber)
	}
	if id.ProductName != "1756-L7" || id.State != 3 {
		t.Errorf("name/state = %q/%d", id.ProductName, id.State)
	}
}

func TestParseListIdentityErrors(t *testing.T) {
	if _, err := ParseListIdentity(RegisterSession()); err == nil {
		t.Error("expected error for non ListIdentity frame")
	}
	if _, err := ParseListIdentity(ListIdentity()); err == nil {
		t.Error("expected error for empty reply")
	}
	short := BuildHeader(CommandListIdentity, 0, EncodeCPF([]CPFItem{{TypeID: ItemListIdentity, Data: identityItem()[:20]}}))
	if _, err := ParseListIdentity(short); err == nil {
		t.Error("expected error for truncated identity item")
	}
}

func TestDecodeIdentityAttributes(t *testing.T) {
	item := identityItem()
	id, err := DecodeIdentityAttributes(item[18:])
	if err != nil {
		t.Fatalf("DecodeIdentityAttributes() error: %v", err)
	}
	if id.ProductName != "1756-L7" || id.SerialNumber != "0x12345678" || id.State != 3 {
		t.Errorf("unexpected identity: %+v", id)
	}
}
