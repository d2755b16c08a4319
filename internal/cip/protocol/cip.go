package protocol

// CIP (Common Industrial Protocol) Message Router encoding and decoding.

import (
	"encoding/binary"
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/codec"
)

// CIPServiceCode represents a CIP service code.
type CIPServiceCode uint8

// ReplyFlag is set on the service code of every Message Router reply.
const ReplyFlag CIPServiceCode = 0x80

// IsReply reports whether the reply bit is set.
func (c CIPServiceCode) IsReply() bool {
	return c&ReplyFlag != 0
}

// Request returns the service code with the reply bit cleared.
func (c CIPServiceCode) Request() CIPServiceCode {
	return c &^ ReplyFlag
}

// CIPRequest represents a CIP service request.
type CIPRequest struct {
	Service CIPServiceCode
	Path    []byte // encoded EPATH
	Payload []byte // request data following the path
}

// CIPResponse represents a CIP service response.
type CIPResponse struct {
	Service         CIPServiceCode
	GeneralStatus   uint8
	ExtStatusLength uint8    // in 16-bit words
	ExtStatus       []uint16 // additional status words
	Payload         []byte
}

// OK reports whether the general status is success.
func (r CIPResponse) OK() bool {
	return r.GeneralStatus == 0
}

// ExtStatusBytes returns the low byte of each extended status word, which is
// what the status table is keyed by.
func (r CIPResponse) ExtStatusBytes() []uint8 {
	out := make([]uint8, len(r.ExtStatus))
	for i, w := range r.ExtStatus {
		out[i] = uint8(w)
	}
	return out
}

// EncodeCIPRequest encodes a request: service, path size in words, path
// (padded to an even length), data.
func EncodeCIPRequest(req CIPRequest) ([]byte, error) {
	path := req.Path
	words := (len(path) + 1) / 2
	if words > 0xFF {
		return nil, fmt.Errorf("EPATH too long: %d bytes", len(path))
	}

	data := make([]byte, 0, 2+words*2+len(req.Payload))
	data = append(data, uint8(req.Service), uint8(words))
	data = append(data, path...)
	data = codec.PadEven(data)
	return append(data, req.Payload...), nil
}

// BuildRequest is EncodeCIPRequest for callers holding the parts.
func BuildRequest(service CIPServiceCode, path, payload []byte) ([]byte, error) {
	return EncodeCIPRequest(CIPRequest{Service: service, Path: path, Payload: payload})
}

// DecodeCIPRequest decodes a request produced by EncodeCIPRequest.
func DecodeCIPRequest(data []byte) (CIPRequest, error) {
	r := codec.NewReader(data)
	req := CIPRequest{Service: CIPServiceCode(r.Uint8())}
	words := int(r.Uint8())
	req.Path = r.Bytes(words * 2)
	if err := r.Err(); err != nil {
		return CIPRequest{}, fmt.Errorf("decode CIP request: %w", err)
	}
	if r.Len() > 0 {
		req.Payload = r.Rest()
	}
	return req, nil
}

// EncodeCIPResponse encodes a reply. The reply bit is set on the service.
func EncodeCIPResponse(resp CIPResponse) []byte {
	data := make([]byte, 0, 4+2*len(resp.ExtStatus)+len(resp.Payload))
	data = append(data, uint8(resp.Service|ReplyFlag), 0x00, resp.GeneralStatus, uint8(len(resp.ExtStatus)))
	for _, w := range resp.ExtStatus {
		data = codec.AppendUint16(binary.LittleEndian, data, w)
	}
	return append(data, resp.Payload...)
}

// DecodeCIPResponse decodes a Message Router reply: service, reserved,
// general status, extended status size in words, extended status, data.
func DecodeCIPResponse(data []byte) (CIPResponse, error) {
	r := codec.NewReader(data)
	var resp CIPResponse
	resp.Service = CIPServiceCode(r.Uint8())
	r.Skip(1) // reserved
	resp.GeneralStatus = r.Uint8()
	resp.ExtStatusLength = r.Uint8()
	if err := r.Err(); err != nil {
		return CIPResponse{}, fmt.Errorf("decode CIP response header: %w", err)
	}

	resp.ExtStatus = make([]uint16, 0, resp.ExtStatusLength)
	for i := 0; i < int(resp.ExtStatusLength); i++ {
		resp.ExtStatus = append(resp.ExtStatus, r.Uint16())
	}
	if err := r.Err(); err != nil {
		return CIPResponse{}, fmt.Errorf("decode CIP extended status: %w", err)
	}
	if r.Len() > 0 {
		resp.Payload = r.Rest()
	}
	return resp, nil
}
