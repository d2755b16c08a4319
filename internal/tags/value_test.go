package tags

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tonylturner/enipctl/internal/cip/spec"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		typ     spec.DataType
		in      string
		want    any
		wantErr bool
	}{
		{"bool true", spec.TypeBOOL, "true", true, false},
		{"bool digit", spec.TypeBOOL, "0", false, false},
		{"bool junk", spec.TypeBOOL, "maybe", nil, true},
		{"dint", spec.TypeDINT, " -9999 ", int64(-9999), false},
		{"dint hex", spec.TypeDINT, "0x10", int64(16), false},
		{"sint range", spec.TypeSINT, "200", nil, true},
		{"int", spec.TypeINT, "32767", int64(32767), false},
		{"real", spec.TypeREAL, "1.5", float32(1.5), false},
		{"lreal", spec.TypeLREAL, "-2.25", -2.25, false},
		{"ulint", spec.TypeULINT, "18446744073709551615", uint64(18446744073709551615), false},
		{"not a number", spec.TypeUDINT, "ten", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue(tt.typ, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseValue() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}

	if _, err := ParseValue(spec.TypeStructHandle, "1"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("structure parse error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseValues(t *testing.T) {
	got, err := ParseValues(spec.TypeINT, "1, 2,3")
	if err != nil {
		t.Fatalf("ParseValues() error = %v", err)
	}
	want := []any{int64(1), int64(2), int64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseValues() = %v, want %v", got, want)
	}

	single, err := ParseValues(spec.TypeINT, "7")
	if err != nil || single != int64(7) {
		t.Errorf("ParseValues(single) = %v, %v", single, err)
	}
	if _, err := ParseValues(spec.TypeINT, "1,x"); err == nil {
		t.Error("ParseValues() accepted a bad element")
	}

	// parsed lists feed straight into the encoder
	data, n, err := EncodeValues(nil, spec.TypeINT, got)
	if err != nil || n != 3 || len(data) != 6 {
		t.Errorf("EncodeValues() = %v, %d, %v", data, n, err)
	}
}
