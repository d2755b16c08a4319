package tags

import (
	"strings"
	"testing"
)

func TestIsValidTagName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"_sometagname", true},
		{"hello311", true},
		{"hello.how3", true},
		{"randy.julian.bubbles", true},
		{"a.b.c", true},
		{"1.1.1", false},
		{strings.Repeat("f", 41), false},
		{strings.Repeat("f", 40), true},
		{"4hello", false},
		{"someTagArray[12]", true},
		{"someTagArray[1a]", false},
		{"hello[f]", false},
		{"someOtherTag[0]a", false},
		{"tagname", true},
		{"tag_with_underscores45", true},
		{"someTagArray[0]", true},
		{"a", true},
		{"", false},
		{"tagBitIndex.0", true},
		{"tagBitIndex.31", true},
		{"tagBitIndex.32", false},
		{"tagBitIndex.0a", false},
		{"tagBitIndex.-1", false},
		{"tagArray[0,0]", true},
		{"tagArray[0,0,0]", true},
		{"tagArray[0,0,0,0]", false},
		{"tagArray[-1]", false},
		{"tagArray[0,0,-1]", false},
		{"Program:program.tag", true},
		{"Program:noProgramArray[0].tag", false},
		{"notProgram:program.tag", false},
		{"Program::noDoubleColon.tag", false},
		{"Program:noExtraColon:tag", false},
		{"Program:program.tag.singleDimMemArrayOk[0]", true},
		{"Program:program.tag.noMultiDimMemArray[0,0]", false},
		{"Program:program.tag.memberArray[0]._0member[4]._another_1member.f1nal_member.5", true},
		{"Program:9noNumberProgram.tag", false},
		{"tag.9noNumberMember", false},
		{"tag.noDouble__underscore1", false},
		{"tag.__noDoubleUnderscore2", false},
		{"tag.noEndInUnderscore_", false},
		{"tag._member_Length_Ok_And_ShouldPassAt40Char", true},
		{"tag._memberLengthTooLongAndShouldFailAt41Char", false},
		{"tag..noDoubleDelimitters", false},
		{"tag.1.2", false},
		{"Local:1:I.Data", true},
		{"Local:1:I.Data.3", true},
		{"Remote_Rack:I.Data[1].5", true},
		{"Remote_Rack:O.Data[1].5", true},
		{"Remote_Rack:C.Data[1].5", true},
		{"Remote_Rack:1:I.0", true},
		{"Remote_Rack:X.Data", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidTagName(tt.name); got != tt.valid {
				t.Errorf("IsValidTagName(%q) = %v, want %v", tt.name, got, tt.valid)
			}
		})
	}
}
