package tags

// Structure decoding with template layouts

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tonylturner/enipctl/internal/cip/codec"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/taglist"
)

// hiddenPrefix marks compiler generated host members, e.g. the SINT that
// carries packed BOOL members.
const hiddenPrefix = "ZZZZZZZZZZ"

// TemplateLookup resolves a nested structure's template by id.
type TemplateLookup func(id uint16) (*taglist.Template, error)

// Field is one decoded structure member.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Structure is a decoded structure value with members in template order.
type Structure struct {
	Type   string  `json:"type"`
	Fields []Field `json:"fields"`
}

// Get returns the value of the named member.
func (s *Structure) Get(name string) (any, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (s *Structure) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("%s=%v", f.Name, f.Value)
	}
	return s.Type + "{" + strings.Join(parts, " ") + "}"
}

// IsString reports whether tmpl has the Logix string layout: a DINT LEN
// followed by a SINT array DATA.
func IsString(tmpl *taglist.Template) bool {
	length, ok := tmpl.Member("LEN")
	if !ok || length.Type.Code != uint16(spec.TypeDINT) {
		return false
	}
	data, ok := tmpl.Member("DATA")
	return ok && data.Type.Code == uint16(spec.TypeSINT) && data.Type.ArrayDims > 0
}

// DecodeStructure decodes data laid out by tmpl. String layouts decode to a
// Go string, everything else to a *Structure. lookup may be nil when tmpl
// has no nested structures.
func DecodeStructure(tmpl *taglist.Template, data []byte, lookup TemplateLookup) (any, error) {
	if IsString(tmpl) {
		return decodeString(tmpl, data)
	}

	out := &Structure{Type: tmpl.Name}
	for _, m := range tmpl.Members {
		if strings.HasPrefix(m.Name, hiddenPrefix) || strings.HasPrefix(m.Name, "__") {
			continue
		}
		v, err := decodeMember(m, data, lookup)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", tmpl.Name, m.Name, err)
		}
		out.Fields = append(out.Fields, Field{Name: m.Name, Value: v})
	}
	return out, nil
}

func decodeMember(m taglist.Member, data []byte, lookup TemplateLookup) (any, error) {
	off := int(m.Offset)
	if off > len(data) {
		return nil, fmt.Errorf("offset %d beyond %d bytes: %w", off, len(data), codec.ErrShortBuffer)
	}
	body := data[off:]
	count := 1
	if m.Type.ArrayDims > 0 {
		count = int(m.Info)
	}

	if m.Type.Structure {
		if lookup == nil {
			return nil, fmt.Errorf("nested template 0x%03X: no template lookup", m.Type.Code)
		}
		nested, err := lookup(m.Type.Code)
		if err != nil {
			return nil, err
		}
		size := int(nested.StructureSize)
		if m.Type.ArrayDims == 0 {
			return DecodeStructure(nested, body, lookup)
		}
		values := make([]any, 0, count)
		for i := 0; i < count; i++ {
			if (i+1)*size > len(body) {
				return nil, fmt.Errorf("element %d: %w", i, codec.ErrShortBuffer)
			}
			v, err := DecodeStructure(nested, body[i*size:(i+1)*size], lookup)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	}

	typ := spec.DataType(m.Type.Code)
	if typ == spec.TypeBOOL && m.Type.ArrayDims == 0 {
		if len(body) < 1 {
			return nil, codec.ErrShortBuffer
		}
		return body[0]>>(m.Info&0x07)&1 == 1, nil
	}
	if count > 1 || m.Type.ArrayDims > 0 {
		return DecodeValues(typ, body, count)
	}
	v, _, err := DecodeValue(typ, body)
	return v, err
}

func decodeString(tmpl *taglist.Template, data []byte) (string, error) {
	length, _ := tmpl.Member("LEN")
	chars, _ := tmpl.Member("DATA")
	if int(length.Offset)+4 > len(data) {
		return "", fmt.Errorf("%s.LEN: %w", tmpl.Name, codec.ErrShortBuffer)
	}
	n := int(binary.LittleEndian.Uint32(data[length.Offset:]))
	start := int(chars.Offset)
	if n < 0 || start > len(data) {
		return "", fmt.Errorf("%s.DATA: %w", tmpl.Name, codec.ErrShortBuffer)
	}
	if limit := int(chars.Info); limit > 0 && n > limit {
		n = limit
	}
	if start+n > len(data) {
		n = len(data) - start
	}
	return string(data[start : start+n]), nil
}
