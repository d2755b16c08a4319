package connmgr

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tonylturner/enipctl/internal/cip/epath"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
)

func TestConnectionParameters(t *testing.T) {
	got, err := ConnectionParameters(OwnerExclusive, ConnectionPointToPoint, PriorityLow, SizeVariable, 500)
	if err != nil {
		t.Fatalf("ConnectionParameters() error = %v", err)
	}
	if got != 17396 {
		t.Errorf("ConnectionParameters() = %d, want 17396", got)
	}

	tests := []struct {
		name  string
		owner Owner
		ct    ConnectionType
		prio  Priority
		st    SizeType
		size  int
	}{
		{"bad owner", Owner(2), ConnectionPointToPoint, PriorityLow, SizeVariable, 500},
		{"bad type", OwnerExclusive, ConnectionType(4), PriorityLow, SizeVariable, 500},
		{"bad priority", OwnerExclusive, ConnectionPointToPoint, Priority(-1), SizeVariable, 500},
		{"bad size type", OwnerExclusive, ConnectionPointToPoint, PriorityLow, SizeType(2), 500},
		{"size too large", OwnerExclusive, ConnectionPointToPoint, PriorityLow, SizeVariable, 512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConnectionParameters(tt.owner, tt.ct, tt.prio, tt.st, tt.size)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestLargeConnectionParameters(t *testing.T) {
	got, err := LargeConnectionParameters(OwnerExclusive, ConnectionPointToPoint, PriorityLow, SizeVariable, 4002)
	if err != nil {
		t.Fatalf("LargeConnectionParameters() error = %v", err)
	}
	if want := uint32(0x42000FA2); got != want {
		t.Errorf("LargeConnectionParameters() = 0x%08X, want 0x%08X", got, want)
	}
	if _, err := LargeConnectionParameters(OwnerExclusive, ConnectionPointToPoint, PriorityLow, SizeVariable, 0x10000); err == nil {
		t.Error("expected error for size above 65535")
	}
}

func TestEncodeTimeout(t *testing.T) {
	tests := []struct {
		ms       int
		tick     uint8
		ticks    uint8
		wantFail bool
	}{
		{ms: 2304, tick: 8, ticks: 9},
		{ms: 2400, tick: 5, ticks: 75},
		{ms: 2000, tick: 4, ticks: 125},
		{ms: 1000, tick: 3, ticks: 125},
		{ms: 0, wantFail: true},
		{ms: 255*32768 + 1, wantFail: true},
	}
	for _, tt := range tests {
		tick, ticks, err := EncodeTimeout(tt.ms)
		if tt.wantFail {
			if err == nil {
				t.Errorf("EncodeTimeout(%d) expected error", tt.ms)
			}
			continue
		}
		if err != nil {
			t.Errorf("EncodeTimeout(%d) error = %v", tt.ms, err)
			continue
		}
		if tick != tt.tick || ticks != tt.ticks {
			t.Errorf("EncodeTimeout(%d) = {%d,%d}, want {%d,%d}", tt.ms, tick, ticks, tt.tick, tt.ticks)
		}
	}
}

func TestForwardOpenPayload(t *testing.T) {
	fo := DefaultForwardOpen(nil)
	fo.TOConnectionID = 1234567
	got, err := fo.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	want := []byte{3, 125, 0, 0, 0, 0, 135, 214, 18, 0, 66, 66, 51, 51, 55, 19, 0, 0, 3, 0, 0, 0,
		16, 39, 0, 0, 244, 67, 16, 39, 0, 0, 244, 67, 163}
	if !bytes.Equal(got, want) {
		t.Errorf("Payload() = %v\nwant %v", got, want)
	}
}

func TestForwardOpenRequest(t *testing.T) {
	path, err := BackplanePath(0)
	if err != nil {
		t.Fatalf("BackplanePath() error = %v", err)
	}
	if !bytes.Equal(path, []byte{0x01, 0x00, 0x20, 0x02, 0x24, 0x01}) {
		t.Fatalf("BackplanePath() = %v", path)
	}

	fo := DefaultForwardOpen(path)
	req, err := fo.Request()
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	decoded, err := protocol.DecodeCIPRequest(req)
	if err != nil {
		t.Fatalf("DecodeCIPRequest() error = %v", err)
	}
	if decoded.Service != 0x54 {
		t.Errorf("service = 0x%02X, want 0x54", decoded.Service)
	}
	if !bytes.Equal(decoded.Path, Path) {
		t.Errorf("path = %v, want %v", decoded.Path, Path)
	}
	if len(decoded.Payload) != 35+1+len(path) {
		t.Fatalf("payload length = %d", len(decoded.Payload))
	}
	if decoded.Payload[35] != 3 {
		t.Errorf("connection path words = %d, want 3", decoded.Payload[35])
	}

	fo.Large = true
	req, err = fo.Request()
	if err != nil {
		t.Fatalf("large Request() error = %v", err)
	}
	if req[0] != 0x5B {
		t.Errorf("large service = 0x%02X, want 0x5B", req[0])
	}
	// 4 header bytes, 39 fixed bytes, path words, path.
	if len(req) != 6+39+1+len(path) {
		t.Errorf("large request length = %d", len(req))
	}
}

func TestForwardOpenBadMultiplier(t *testing.T) {
	fo := DefaultForwardOpen(nil)
	fo.TimeoutMultiplier = 3
	if _, err := fo.Payload(); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Payload() error = %v, want ErrInvalidParameter", err)
	}
}

func TestForwardClose(t *testing.T) {
	fc := DefaultForwardOpen(nil).Close()
	got, err := fc.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	want := []byte{3, 125, 66, 66, 51, 51, 55, 19, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("Payload() = %v, want %v", got, want)
	}

	fc.ConnectionPath = []byte{0x01, 0x00, 0x20, 0x02, 0x24, 0x01}
	req, err := fc.Request()
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	wantReq := append([]byte{0x4E, 0x02, 0x20, 0x06, 0x24, 0x01}, want...)
	wantReq = append(wantReq, 3, 0, 0x01, 0x00, 0x20, 0x02, 0x24, 0x01)
	if !bytes.Equal(req, wantReq) {
		t.Errorf("Request() = %v\nwant %v", req, wantReq)
	}
}

func TestParseForwardOpenReply(t *testing.T) {
	data := []byte{65, 2, 188, 0, 34, 34, 34, 34, 66, 66, 51, 51, 55, 19, 0, 0, 16, 39, 0, 0, 16, 39, 0, 0, 0, 0}
	reply, err := ParseForwardOpenReply(data)
	if err != nil {
		t.Fatalf("ParseForwardOpenReply() error = %v", err)
	}
	if reply.OTConnectionID != 0x00BC0241 || reply.TOConnectionID != 0x22222222 {
		t.Errorf("connection ids = 0x%08X/0x%08X", reply.OTConnectionID, reply.TOConnectionID)
	}
	if reply.ConnectionSerial != 0x4242 || reply.VendorID != 0x3333 || reply.OriginatorSerial != 0x1337 {
		t.Errorf("originator triad = %04X/%04X/%08X", reply.ConnectionSerial, reply.VendorID, reply.OriginatorSerial)
	}
	if reply.OTAPI != 10000 || reply.TOAPI != 10000 {
		t.Errorf("API = %d/%d", reply.OTAPI, reply.TOAPI)
	}

	if _, err := ParseForwardOpenReply(data[:10]); err == nil {
		t.Error("expected error for truncated reply")
	}
}

func TestBuildUnconnectedSend(t *testing.T) {
	mr := []byte{76, 4}
	mr = append(mr, "sometag"...)
	mr = append(mr, 0, 1, 0)
	route, err := epath.BuildPort(1, 5)
	if err != nil {
		t.Fatalf("BuildPort() error = %v", err)
	}

	got, err := BuildUnconnectedSend(mr, route, DefaultUnconnectedTimeoutMs)
	if err != nil {
		t.Fatalf("BuildUnconnectedSend() error = %v", err)
	}
	want := []byte{82, 2, 32, 6, 36, 1, 4, 125, 12, 0}
	want = append(want, mr...)
	want = append(want, 1, 0, 1, 5)
	if !bytes.Equal(got, want) {
		t.Errorf("BuildUnconnectedSend() = %v\nwant %v", got, want)
	}
}

func TestBuildUnconnectedSendOddMessage(t *testing.T) {
	got, err := BuildUnconnectedSend([]byte{0x01, 0x02, 0x20}, []byte{0x01, 0x00}, 2000)
	if err != nil {
		t.Fatalf("BuildUnconnectedSend() error = %v", err)
	}
	want := []byte{82, 2, 32, 6, 36, 1, 4, 125, 3, 0, 0x01, 0x02, 0x20, 0x00, 1, 0, 1, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("BuildUnconnectedSend() = %v\nwant %v", got, want)
	}
}

func TestRoutingError(t *testing.T) {
	ok := protocol.CIPResponse{Service: 0xCC}
	if RoutingError(ok) != nil {
		t.Error("embedded reply must not be a routing error")
	}
	fail := protocol.CIPResponse{Service: 0xD2, GeneralStatus: 0x01, ExtStatus: []uint16{0x0204}, Payload: []byte{2}}
	e := RoutingError(fail)
	if e == nil {
		t.Fatal("expected routing error")
	}
	if e.RemainingPathSize != 2 || e.GeneralStatus != 0x01 {
		t.Errorf("RoutingError() = %+v", e)
	}
}
