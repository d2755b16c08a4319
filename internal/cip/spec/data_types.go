package spec

import (
	"fmt"
	"strings"
)

// DataType is an elementary CIP data type code.
type DataType uint16

const (
	TypeBOOL         DataType = 0xC1
	TypeSINT         DataType = 0xC2
	TypeINT          DataType = 0xC3
	TypeDINT         DataType = 0xC4
	TypeLINT         DataType = 0xC5
	TypeUSINT        DataType = 0xC6
	TypeUINT         DataType = 0xC7
	TypeUDINT        DataType = 0xC8
	TypeULINT        DataType = 0xC9
	TypeREAL         DataType = 0xCA
	TypeLREAL        DataType = 0xCB
	TypeSTIME        DataType = 0xCC
	TypeDATE         DataType = 0xCD
	TypeTIMEOFDAY    DataType = 0xCE
	TypeDATEANDTIME  DataType = 0xCF
	TypeSTRING       DataType = 0xD0
	TypeBYTE         DataType = 0xD1
	TypeWORD         DataType = 0xD2
	TypeDWORD        DataType = 0xD3
	TypeLWORD        DataType = 0xD4
	TypeSTRING2      DataType = 0xD5
	TypeFTIME        DataType = 0xD6
	TypeLTIME        DataType = 0xD7
	TypeITIME        DataType = 0xD8
	TypeSTRINGN      DataType = 0xD9
	TypeSHORTSTRING  DataType = 0xDA
	TypeTIME         DataType = 0xDB
	TypeEPATH        DataType = 0xDC
	TypeENGUNIT      DataType = 0xDD
	TypeSTRINGI      DataType = 0xDE
	TypeBITSTRING    DataType = TypeDWORD
	TypeStructHandle DataType = 0x02A0 // abbreviated structure type prefix
)

var dataTypeNames = map[DataType]string{
	TypeBOOL:        "BOOL",
	TypeSINT:        "SINT",
	TypeINT:         "INT",
	TypeDINT:        "DINT",
	TypeLINT:        "LINT",
	TypeUSINT:       "USINT",
	TypeUINT:        "UINT",
	TypeUDINT:       "UDINT",
	TypeULINT:       "ULINT",
	TypeREAL:        "REAL",
	TypeLREAL:       "LREAL",
	TypeSTIME:       "STIME",
	TypeDATE:        "DATE",
	TypeTIMEOFDAY:   "TIME_OF_DAY",
	TypeDATEANDTIME: "DATE_AND_TIME",
	TypeSTRING:      "STRING",
	TypeBYTE:        "BYTE",
	TypeWORD:        "WORD",
	TypeDWORD:       "DWORD",
	TypeLWORD:       "LWORD",
	TypeSTRING2:     "STRING2",
	TypeFTIME:       "FTIME",
	TypeLTIME:       "LTIME",
	TypeITIME:       "ITIME",
	TypeSTRINGN:     "STRINGN",
	TypeSHORTSTRING: "SHORT_STRING",
	TypeTIME:        "TIME",
	TypeEPATH:       "EPATH",
	TypeENGUNIT:     "ENGUNIT",
	TypeSTRINGI:     "STRINGI",
}

var dataTypeSizes = map[DataType]int{
	TypeBOOL:  1,
	TypeSINT:  1,
	TypeUSINT: 1,
	TypeBYTE:  1,
	TypeINT:   2,
	TypeUINT:  2,
	TypeWORD:  2,
	TypeDINT:  4,
	TypeUDINT: 4,
	TypeDWORD: 4,
	TypeREAL:  4,
	TypeLINT:  8,
	TypeULINT: 8,
	TypeLWORD: 8,
	TypeLREAL: 8,
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(t))
}

// Size returns the fixed encoded size of an atomic type, or 0.
func (t DataType) Size() int {
	return dataTypeSizes[t]
}

// IsValidTypeCode reports whether code is an elementary data type.
func IsValidTypeCode(code uint16) bool {
	_, ok := dataTypeNames[DataType(code)]
	return ok
}

// ParseDataType resolves a type name such as "DINT". Matching ignores case;
// BIT_STRING is accepted for the 32-bit bit string.
func ParseDataType(name string) (DataType, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "BIT_STRING" {
		return TypeBITSTRING, nil
	}
	for t, n := range dataTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", name)
}

// TypeDescriptor is the decoded 16-bit symbol type word used by the Symbol
// and Template objects. For BOOL, bits 8-10 carry the bit position within
// the host SINT.
type TypeDescriptor struct {
	Code       uint16 `json:"code"`
	Structure  bool   `json:"structure"`
	Reserved   bool   `json:"reserved"`
	ArrayDims  int    `json:"array_dims"`
	SintBitPos *int   `json:"sint_bit_pos,omitempty"`
}

// DecodeTypeWord splits a symbol type word. The bit position of a BOOL that
// aliases a SINT bit is only present for BOOL codes.
func DecodeTypeWord(word uint16) TypeDescriptor {
	desc := TypeDescriptor{
		Code:      word & 0x0FFF,
		Structure: word&0x8000 != 0,
		Reserved:  word&0x1000 != 0,
		ArrayDims: int(word>>13) & 0x3,
	}
	if !desc.Structure && word&0x00FF == uint16(TypeBOOL) {
		pos := int(word&0x0700) >> 8
		desc.Code = uint16(TypeBOOL)
		desc.SintBitPos = &pos
	}
	return desc
}

// Name renders the type for display.
func (d TypeDescriptor) Name() string {
	if d.Structure {
		return fmt.Sprintf("STRUCT(0x%03X)", d.Code)
	}
	return DataType(d.Code).String()
}
