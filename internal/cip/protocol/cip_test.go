package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeCIPRequest(t *testing.T) {
	got, err := BuildRequest(0x41, []byte("Hello World"), []byte("Hello World"))
	if err != nil {
		t.Fatalf("BuildRequest() error: %v", err)
	}
	want := []byte{65, 6}
	want = append(want, []byte("Hello World")...)
	want = append(want, 0)
	want = append(want, []byte("Hello World")...)
	if !bytes.Equal(got, want) {
		t.Errorf("BuildRequest() = %v, want %v", got, want)
	}
}

func TestEncodeCIPRequestPathTooLong(t *testing.T) {
	if _, err := BuildRequest(0x4C, make([]byte, 600), nil); err == nil {
		t.Error("expected error for oversized path")
	}
}

func TestDecodeCIPRequestRoundTrip(t *testing.T) {
	req := CIPRequest{Service: 0x4C, Path: []byte{0x91, 0x03, 't', 'a', 'g', 0x00}, Payload: []byte{1, 0}}
	encoded, err := EncodeCIPRequest(req)
	if err != nil {
		t.Fatalf("EncodeCIPRequest() error: %v", err)
	}
	decoded, err := DecodeCIPRequest(encoded)
	if err != nil {
		t.Fatalf("DecodeCIPRequest() error: %v", err)
	}
	if decoded.Service != req.Service || !bytes.Equal(decoded.Path, req.Path) || !bytes.Equal(decoded.Payload, req.Payload) {
		t.Errorf("round trip = %+v, want %+v", decoded, req)
	}
}

func TestDecodeCIPResponse(t *testing.T) {
	data := []byte{0x41, 0x00, 0x0A, 0x03, 0x01, 0x03, 0x05, 0x01, 0x03, 0x05, 1, 2, 3, 4, 5}
	resp, err := DecodeCIPResponse(data)
	if err != nil {
		t.Fatalf("DecodeCIPResponse() error: %v", err)
	}
	if resp.Service != 65 {
		t.Errorf("service = %d, want 65", resp.Service)
	}
	if resp.GeneralStatus != 10 {
		t.Errorf("general status = %d, want 10", resp.GeneralStatus)
	}
	if resp.ExtStatusLength != 3 {
		t.Errorf("ext status length = %d, want 3", resp.ExtStatusLength)
	}
	wantExt := []uint16{769, 261, 1283}
	for i, w := range wantExt {
		if resp.ExtStatus[i] != w {
			t.Errorf("ext status[%d] = %d, want %d", i, resp.ExtStatus[i], w)
		}
	}
	if !bytes.Equal(resp.Payload, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("payload = %v", resp.Payload)
	}
}

func TestDecodeCIPResponseTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only partly", []byte{0xCC, 0x00, 0x00}},
		{"missing ext status", []byte{0xCC, 0x00, 0x01, 0x02, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCIPResponse(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	payloads := [][]byte{nil, {0x00}, {0xC4, 0x00, 0x01, 0x02, 0x03, 0x04}, bytes.Repeat([]byte{0x55}, 500)}
	for _, payload := range payloads {
		encoded := EncodeCIPResponse(CIPResponse{Service: 0x4C, Payload: payload})
		resp, err := DecodeCIPResponse(encoded)
		if err != nil {
			t.Fatalf("DecodeCIPResponse() error: %v", err)
		}
		if !bytes.Equal(resp.Payload, payload) {
			t.Errorf("payload round trip = %v, want %v", resp.Payload, payload)
		}
		if !resp.Service.IsReply() || resp.Service.Request() != 0x4C {
			t.Errorf("service = 0x%02X", resp.Service)
		}
	}
}

func TestExtStatusBytes(t *testing.T) {
	resp := CIPResponse{ExtStatus: []uint16{0x0000, 0x0105, 0x00FF}}
	if got := resp.ExtStatusBytes(); !bytes.Equal(got, []byte{0x00, 0x05, 0xFF}) {
		t.Errorf("ExtStatusBytes() = %v", got)
	}
}
