package pcap

import (
	"strings"
	"testing"

	"github.com/tonylturner/enipctl/internal/enip"
)

func TestHexDump(t *testing.T) {
	data := []byte("ENIP\x00\x01\x02\x03\x04\x05\x06\x07\x08\x09\x0A\x0B\x0C")
	dump := HexDump(data, 16)

	lines := strings.Split(strings.TrimSuffix(dump, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("HexDump() produced %d lines, want 2:\n%s", len(lines), dump)
	}
	if !strings.HasPrefix(lines[0], "0000: 45 4e 49 50 00 01") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], "|ENIP............|") {
		t.Errorf("ASCII column = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0010: 0c ") {
		t.Errorf("second line = %q", lines[1])
	}
	if HexDump(nil, 0) != "" {
		t.Error("HexDump(nil) should be empty")
	}
}

func TestFormatFrame(t *testing.T) {
	raw := enip.RegisterSession()
	encap, err := enip.DecodeENIP(raw)
	if err != nil {
		t.Fatalf("DecodeENIP() error = %v", err)
	}
	out := FormatFrame(Frame{Encapsulation: encap, Raw: raw, Request: true, DstPort: ENIPPort})

	for _, want := range []string{"RegisterSession Request", "command=0x0065", "length=4", "ENIP Header:", "ENIP Data:"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatFrame() missing %q:\n%s", want, out)
		}
	}
}
