package taglist

// Template object (UDT layout) retrieval and decoding

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/codec"
	"github.com/tonylturner/enipctl/internal/cip/epath"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/errors"
)

// Template attributes requested by AttributesRequest, in order.
const (
	attrObjectDefinitionSize = 4
	attrStructureSize        = 5
	attrMemberCount          = 2
	attrStructureHandle      = 1
)

var templateAttributes = []uint16{attrObjectDefinitionSize, attrStructureSize, attrMemberCount, attrStructureHandle}

const memberDescriptorSize = 8

// Member is one field of a structure template.
type Member struct {
	Name   string              `json:"name"`
	Info   uint16              `json:"info"` // array length, or bit number for BOOL
	Type   spec.TypeDescriptor `json:"type"`
	Offset uint32              `json:"offset"`
}

// Template is the layout of a structured data type.
type Template struct {
	ID                   uint16   `json:"id"`
	Name                 string   `json:"name"`
	ObjectDefinitionSize uint32   `json:"object_definition_size"` // in 32-bit words
	StructureSize        uint32   `json:"structure_size"`         // in bytes
	MemberCount          uint16   `json:"member_count"`
	Handle               uint16   `json:"handle"`
	Members              []Member `json:"members"`
}

func templatePath(id uint16) ([]byte, error) {
	return epath.ClassInstance(int(spec.CIPClassTemplate), int(id))
}

// AttributesRequest builds a Get Attribute List request for the definition
// size, structure size, member count and structure handle.
func AttributesRequest(id uint16) ([]byte, error) {
	path, err := templatePath(id)
	if err != nil {
		return nil, err
	}
	var data []byte
	data = codec.AppendUint16(binary.LittleEndian, data, uint16(len(templateAttributes)))
	for _, attr := range templateAttributes {
		data = codec.AppendUint16(binary.LittleEndian, data, attr)
	}
	return protocol.BuildRequest(spec.CIPServiceGetAttributeList, path, data)
}

// ParseAttributes decodes the AttributesRequest reply. Each attribute is
// returned as id, status, value in request order. A missing attribute or a
// non-zero attribute status is a protocol error.
func (t *Template) ParseAttributes(data []byte) error {
	r := codec.NewReader(data)
	if n := r.Uint16(); r.Err() == nil && int(n) != len(templateAttributes) {
		return t.attributeError(fmt.Errorf("reply carries %d attributes, want %d", n, len(templateAttributes)))
	}
	for _, want := range templateAttributes {
		id, st := r.Uint16(), r.Uint16()
		if r.Err() != nil {
			break
		}
		if id != want {
			return t.attributeError(fmt.Errorf("attribute %d in place of %d", id, want))
		}
		if st != 0 {
			return t.attributeError(fmt.Errorf("attribute %d status 0x%04X", id, st))
		}
		switch id {
		case attrObjectDefinitionSize:
			t.ObjectDefinitionSize = r.Uint32()
		case attrStructureSize:
			t.StructureSize = r.Uint32()
		case attrMemberCount:
			t.MemberCount = r.Uint16()
		case attrStructureHandle:
			t.Handle = r.Uint16()
		}
	}
	if err := r.Err(); err != nil {
		return t.attributeError(err)
	}
	return nil
}

func (t *Template) attributeError(err error) error {
	return errors.Classify(errors.CategoryProtocol, "template attributes", fmt.Errorf("template %d: %w", t.ID, err))
}

// DefinitionSize is the byte size of the member definition blob.
func (t *Template) DefinitionSize() int {
	size := int(t.ObjectDefinitionSize)*4 - 16
	if size < 0 {
		return 0
	}
	return size
}

// ReadRequest builds a Read Template request for size bytes at offset.
func (t *Template) ReadRequest(offset uint32, size uint16) ([]byte, error) {
	path, err := templatePath(t.ID)
	if err != nil {
		return nil, err
	}
	data := codec.AppendUint32(binary.LittleEndian, nil, offset)
	data = codec.AppendUint16(binary.LittleEndian, data, size)
	return protocol.BuildRequest(spec.CIPServiceReadTag, path, data)
}

// ParseDefinition decodes the member definition blob: MemberCount 8-byte
// descriptors, the template name (cut at ';'), then one name per member.
func (t *Template) ParseDefinition(data []byte) error {
	r := codec.NewReader(data)
	members := make([]Member, 0, t.MemberCount)
	for i := 0; i < int(t.MemberCount); i++ {
		info := r.Uint16()
		word := r.Uint16()
		offset := r.Uint32()
		if err := r.Err(); err != nil {
			return fmt.Errorf("template %d member %d descriptor: %w", t.ID, i, err)
		}
		members = append(members, Member{Info: info, Type: spec.DecodeTypeWord(word), Offset: offset})
	}

	rest := r.Rest()
	name, rest, ok := cutNull(rest)
	if !ok {
		return fmt.Errorf("template %d: unterminated template name", t.ID)
	}
	if i := bytes.IndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	t.Name = string(name)

	for i := range members {
		var member []byte
		member, rest, ok = cutNull(rest)
		if !ok {
			return fmt.Errorf("template %d: unterminated name for member %d", t.ID, i)
		}
		members[i].Name = string(member)
	}
	t.Members = members
	return nil
}

func cutNull(b []byte) (before, after []byte, ok bool) {
	i := bytes.IndexByte(b, 0x00)
	if i < 0 {
		return nil, nil, false
	}
	return b[:i], b[i+1:], true
}

// Member returns the member with the given name.
func (t *Template) Member(name string) (Member, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// FetchTemplate reads the attributes and the definition blob of template id.
// A 0x06 reply to a read means more data follows at the next offset.
func FetchTemplate(ctx context.Context, r Requester, id uint16) (*Template, error) {
	t := &Template{ID: id}

	req, err := AttributesRequest(id)
	if err != nil {
		return nil, err
	}
	resp, err := r.Request(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("template %d attributes: %w", id, err)
	}
	if err := t.ParseAttributes(resp.Payload); err != nil {
		return nil, err
	}

	total := t.DefinitionSize()
	blob := make([]byte, 0, total)
	for len(blob) < total {
		remaining := total - len(blob)
		if remaining > 0xFFFF {
			remaining = 0xFFFF
		}
		req, err := t.ReadRequest(uint32(len(blob)), uint16(remaining))
		if err != nil {
			return nil, err
		}
		resp, err := r.Request(ctx, req)
		partial := resp.GeneralStatus == spec.StatusPartialReply
		if err != nil && !partial {
			return nil, fmt.Errorf("read template %d at offset %d: %w", id, len(blob), err)
		}
		blob = append(blob, resp.Payload...)
		if !partial {
			break
		}
		if len(resp.Payload) == 0 {
			return nil, fmt.Errorf("read template %d: partial reply without data", id)
		}
	}

	if err := t.ParseDefinition(blob); err != nil {
		return nil, err
	}
	return t, nil
}
