package pcap

// Offline capture reading: EtherNet/IP frames carried on TCP or UDP 44818.

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/enip"
)

// ENIPPort is the EtherNet/IP explicit messaging port.
const ENIPPort = 44818

// pcapng section header block type.
var ngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// Frame is one encapsulation frame found in a capture.
type Frame struct {
	enip.Encapsulation
	Raw       []byte // header and data as captured
	Request   bool
	Timestamp time.Time
	Transport string
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
}

// CIP returns the Message Router bytes carried by a SendRRData or
// SendUnitData frame.
func (f Frame) CIP() ([]byte, bool) {
	switch f.Command {
	case enip.CommandSendRRData:
		mr, err := enip.UnconnectedData(f.Data)
		return mr, err == nil && len(mr) > 0
	case enip.CommandSendUnitData:
		_, _, mr, err := enip.ConnectedData(f.Data)
		return mr, err == nil && len(mr) > 0
	}
	return nil, false
}

// Reply decodes the Message Router reply of a response frame.
func (f Frame) Reply() (protocol.CIPResponse, bool) {
	mr, ok := f.CIP()
	if !ok || f.Request {
		return protocol.CIPResponse{}, false
	}
	resp, err := protocol.DecodeCIPResponse(mr)
	return resp, err == nil
}

// Service returns the name of the CIP service a frame carries, or "".
func (f Frame) Service() string {
	mr, ok := f.CIP()
	if !ok {
		return ""
	}
	code := protocol.CIPServiceCode(mr[0])
	connMgr := false
	if !code.IsReply() {
		if req, err := protocol.DecodeCIPRequest(mr); err == nil {
			connMgr = spec.AddressesConnectionManager(req.Path)
		}
	}
	return spec.ServiceName(code, connMgr)
}

// Describe renders a one-line summary such as
// "SendRRData Request (Read Tag)".
func (f Frame) Describe() string {
	dir := "Request"
	if !f.Request {
		dir = "Reply"
	}
	out := fmt.Sprintf("%s %s", f.Command, dir)
	if svc := f.Service(); svc != "" {
		out += " (" + svc + ")"
	}
	if f.Status != enip.StatusSuccess {
		out += " encap status: " + f.StatusText()
	}
	if resp, ok := f.Reply(); ok && !resp.OK() {
		out += fmt.Sprintf(" CIP status 0x%02X", resp.GeneralStatus)
	}
	return out
}

// ReadFile extracts the EtherNet/IP frames of a pcap or pcapng file.
func ReadFile(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return Extract(f)
}

type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Extract reads a capture from r and returns its EtherNet/IP frames in
// capture order. TCP payloads are reassembled per direction so frames split
// across segments are recovered. On a read error the frames found so far are
// returned with the error.
func Extract(r io.Reader) ([]Frame, error) {
	br := bufio.NewReader(r)
	var (
		src packetSource
		err error
	)
	if magic, _ := br.Peek(4); len(magic) == 4 && string(magic) == string(ngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	source := gopacket.NewPacketSource(src, src.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	var frames []Frame
	streams := make(map[string][]byte)
	for {
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("read packet %d: %w", len(frames)+1, err)
		}

		meta := packetMeta(packet)
		if tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
			meta.Transport = "tcp"
			meta.SrcPort, meta.DstPort = uint16(tcp.SrcPort), uint16(tcp.DstPort)
			if !isENIPPort(meta.SrcPort, meta.DstPort) || len(tcp.Payload) == 0 {
				continue
			}
			key := fmt.Sprintf("%s:%d->%s:%d", meta.SrcIP, meta.SrcPort, meta.DstIP, meta.DstPort)
			buf := append(streams[key], tcp.Payload...)
			found, rest := splitFrames(buf, meta)
			frames = append(frames, found...)
			streams[key] = rest
			continue
		}
		if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
			meta.Transport = "udp"
			meta.SrcPort, meta.DstPort = uint16(udp.SrcPort), uint16(udp.DstPort)
			if !isENIPPort(meta.SrcPort, meta.DstPort) || len(udp.Payload) == 0 {
				continue
			}
			found, _ := splitFrames(udp.Payload, meta)
			frames = append(frames, found...)
		}
	}
}

// splitFrames cuts complete frames off the front of buf and returns them
// with the unconsumed tail. Bytes that do not start a known command are
// skipped to resynchronize a stream joined midway.
func splitFrames(buf []byte, meta Frame) ([]Frame, []byte) {
	var frames []Frame
	offset := 0
	for len(buf)-offset >= enip.HeaderSize {
		cmd := enip.Command(binary.LittleEndian.Uint16(buf[offset:]))
		if !cmd.Valid() {
			offset++
			continue
		}
		n := enip.FrameLength(buf[offset:])
		if offset+n > len(buf) {
			break
		}
		raw := append([]byte(nil), buf[offset:offset+n]...)
		offset += n

		encap, err := enip.DecodeENIP(raw)
		if err != nil {
			continue
		}
		f := meta
		f.Encapsulation = encap
		f.Raw = raw
		f.Request = isRequest(f)
		frames = append(frames, f)
	}
	if offset >= len(buf) {
		return frames, nil
	}
	return frames, append([]byte(nil), buf[offset:]...)
}

// isRequest decides direction from the reply bit of the carried CIP service
// and otherwise from the destination port.
func isRequest(f Frame) bool {
	if mr, ok := f.CIP(); ok {
		return !protocol.CIPServiceCode(mr[0]).IsReply()
	}
	if f.Command == enip.CommandRegisterSession && f.SessionID != 0 {
		return false
	}
	return f.DstPort == ENIPPort
}

func isENIPPort(src, dst uint16) bool {
	return src == ENIPPort || dst == ENIPPort
}

func packetMeta(packet gopacket.Packet) Frame {
	var meta Frame
	if md := packet.Metadata(); md != nil {
		meta.Timestamp = md.Timestamp
	}
	if nl := packet.NetworkLayer(); nl != nil {
		src, dst := nl.NetworkFlow().Endpoints()
		meta.SrcIP, meta.DstIP = src.String(), dst.String()
	}
	return meta
}
