package pcap

// Hex dumps of captured frames.

import (
	"fmt"
	"strings"

	"github.com/tonylturner/enipctl/internal/enip"
)

// HexDump renders data as offset, hex and ASCII columns.
func HexDump(data []byte, width int) string {
	if width <= 0 {
		width = 16
	}

	var sb strings.Builder
	for i := 0; i < len(data); i += width {
		fmt.Fprintf(&sb, "%04x: ", i)
		for j := 0; j < width; j++ {
			if i+j < len(data) {
				fmt.Fprintf(&sb, "%02x ", data[i+j])
			} else {
				sb.WriteString("   ")
			}
		}

		sb.WriteString(" |")
		for j := 0; j < width && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b < 127 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}

// FormatFrame renders a frame with its decoded header fields followed by a
// dump of the header and the command data.
func FormatFrame(f Frame) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s:%d -> %s:%d %s\n",
		f.Timestamp.Format("15:04:05.000000"), f.SrcIP, f.SrcPort, f.DstIP, f.DstPort, f.Describe())
	fmt.Fprintf(&sb, "  command=0x%04X length=%d session=0x%08X status=0x%08X context=%x\n",
		uint16(f.Command), f.Length, f.SessionID, f.Status, f.SenderContext)

	if len(f.Raw) < enip.HeaderSize {
		sb.WriteString(HexDump(f.Raw, 16))
		return sb.String()
	}
	sb.WriteString("ENIP Header:\n")
	sb.WriteString(HexDump(f.Raw[:enip.HeaderSize], 16))
	if len(f.Raw) > enip.HeaderSize {
		sb.WriteString("ENIP Data:\n")
		sb.WriteString(HexDump(f.Raw[enip.HeaderSize:], 16))
	}
	return sb.String()
}
