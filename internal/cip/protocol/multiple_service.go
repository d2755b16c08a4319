package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/codec"
)

// Multiple Service Packet service code and Message Router path.
const (
	ServiceMultipleService CIPServiceCode = 0x0A
	classMessageRouter                    = 0x02
)

// MessageRouterPath addresses the Message Router object, instance 1.
var MessageRouterPath = []byte{0x20, classMessageRouter, 0x24, 0x01}

// MultipleServiceOverhead is the encoded size of a Multiple Service Packet
// carrying n embedded requests, excluding the requests themselves.
func MultipleServiceOverhead(n int) int {
	return 2 + len(MessageRouterPath) + 2 + 2*n
}

// BuildMultipleServicePayload lays out already encoded requests behind a
// count and offset table. Offsets are relative to the count field.
func BuildMultipleServicePayload(requests [][]byte) ([]byte, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("multiple service payload requires at least one request")
	}
	count := len(requests)
	headerLen := 2 + 2*count
	payload := make([]byte, headerLen)
	binary.LittleEndian.PutUint16(payload[0:2], uint16(count))

	offset := headerLen
	for i, req := range requests {
		if offset > 0xFFFF {
			return nil, fmt.Errorf("multiple service payload too large")
		}
		binary.LittleEndian.PutUint16(payload[2+i*2:], uint16(offset))
		payload = append(payload, req...)
		offset += len(req)
	}
	return payload, nil
}

// BuildMultipleServiceRequest wraps encoded requests in a complete Multiple
// Service Packet request addressed to the Message Router.
func BuildMultipleServiceRequest(requests [][]byte) ([]byte, error) {
	payload, err := BuildMultipleServicePayload(requests)
	if err != nil {
		return nil, err
	}
	return EncodeCIPRequest(CIPRequest{
		Service: ServiceMultipleService,
		Path:    MessageRouterPath,
		Payload: payload,
	})
}

// ParseMultipleServiceResponse splits a Multiple Service Packet reply payload
// into its embedded replies, in packing order.
func ParseMultipleServiceResponse(payload []byte) ([]CIPResponse, error) {
	return parseMultipleServicePayload(payload, DecodeCIPResponse)
}

// ParseMultipleServiceRequest splits a Multiple Service Packet request payload.
func ParseMultipleServiceRequest(payload []byte) ([]CIPRequest, error) {
	return parseMultipleServicePayload(payload, DecodeCIPRequest)
}

// BuildMultipleServiceResponsePayload encodes replies behind a count and
// offset table.
func BuildMultipleServiceResponsePayload(responses []CIPResponse) ([]byte, error) {
	encoded := make([][]byte, len(responses))
	for i, resp := range responses {
		encoded[i] = EncodeCIPResponse(resp)
	}
	return BuildMultipleServicePayload(encoded)
}

func parseMultipleServicePayload[T any](payload []byte, decode func([]byte) (T, error)) ([]T, error) {
	r := codec.NewReader(payload)
	count := int(r.Uint16())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("multiple service payload too short: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("multiple service payload missing services")
	}
	headerLen := 2 + 2*count
	offsets := make([]int, count)
	for i := range offsets {
		offsets[i] = int(r.Uint16())
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("multiple service offset table: %w", err)
	}

	results := make([]T, 0, count)
	for i := 0; i < count; i++ {
		start := offsets[i]
		if start < headerLen || start >= len(payload) {
			return nil, fmt.Errorf("multiple service offset %d out of range", start)
		}
		end := len(payload)
		if i+1 < count {
			end = offsets[i+1]
			if end <= start || end > len(payload) {
				return nil, fmt.Errorf("multiple service offsets out of order")
			}
		}
		decoded, err := decode(payload[start:end])
		if err != nil {
			return nil, fmt.Errorf("decode embedded service %d: %w", i, err)
		}
		results = append(results, decoded)
	}
	return results, nil
}
