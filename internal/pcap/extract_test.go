package pcap

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/enip"
)

var (
	clientIP = net.IPv4(192, 168, 1, 10)
	plcIP    = net.IPv4(192, 168, 1, 20)
	captured = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type captureWriter struct {
	t   *testing.T
	w   *pcapgo.Writer
	n   int
	seq map[uint16]uint32
}

func newCaptureWriter(t *testing.T, buf *bytes.Buffer) *captureWriter {
	t.Helper()
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("WriteFileHeader() error = %v", err)
	}
	return &captureWriter{t: t, w: w, seq: make(map[uint16]uint32)}
}

func (c *captureWriter) write(transport gopacket.SerializableLayer, ip *layers.IPv4, payload []byte) {
	c.t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x1d, 0x9c, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x00, 0x1d, 0x9c, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		c.t.Fatalf("SerializeLayers() error = %v", err)
	}
	data := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     captured.Add(time.Duration(c.n) * time.Millisecond),
		CaptureLength: len(data),
		Length:        len(data),
	}
	c.n++
	if err := c.w.WritePacket(ci, data); err != nil {
		c.t.Fatalf("WritePacket() error = %v", err)
	}
}

func (c *captureWriter) tcp(src, dst net.IP, srcPort, dstPort uint16, payload []byte) {
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: src, DstIP: dst}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     c.seq[srcPort],
		ACK:     true,
		PSH:     true,
		Window:  8192,
	}
	c.seq[srcPort] += uint32(len(payload))
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		c.t.Fatalf("SetNetworkLayerForChecksum() error = %v", err)
	}
	c.write(tcp, ip, payload)
}

func (c *captureWriter) udp(src, dst net.IP, srcPort, dstPort uint16, payload []byte) {
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: src, DstIP: dst}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		c.t.Fatalf("SetNetworkLayerForChecksum() error = %v", err)
	}
	c.write(udp, ip, payload)
}

func readTagFrames(t *testing.T) (request, reply []byte) {
	t.Helper()
	mr, err := protocol.BuildRequest(spec.CIPServiceReadTag, []byte{0x91, 0x03, 'a', 'b', 'c', 0x00}, []byte{0x01, 0x00})
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	request = enip.SendRRData(0x1234, mr, 0)
	resp := protocol.EncodeCIPResponse(protocol.CIPResponse{
		Service:       spec.CIPServiceReadTag,
		GeneralStatus: 0x04,
		ExtStatus:     []uint16{0},
	})
	reply = enip.EncodeENIP(enip.Encapsulation{
		Command:   enip.CommandSendRRData,
		SessionID: 0x1234,
		Data:      enip.SendRRDataPayload(resp, 0),
	})
	return request, reply
}

func buildCapture(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	c := newCaptureWriter(t, &buf)

	register := enip.RegisterSession()
	registerReply := enip.EncodeENIP(enip.Encapsulation{
		Command:   enip.CommandRegisterSession,
		SessionID: 0x1234,
		Data:      []byte{1, 0, 0, 0},
	})
	request, reply := readTagFrames(t)

	c.tcp(clientIP, plcIP, 51000, ENIPPort, register)
	c.tcp(plcIP, clientIP, ENIPPort, 51000, registerReply)
	// request split across two segments
	c.tcp(clientIP, plcIP, 51000, ENIPPort, request[:30])
	c.tcp(clientIP, plcIP, 51000, ENIPPort, request[30:])
	c.tcp(plcIP, clientIP, ENIPPort, 51000, reply)
	c.udp(clientIP, net.IPv4bcast, 50000, ENIPPort, enip.ListIdentity())
	c.udp(clientIP, plcIP, 50001, 53, []byte("not enip traffic at all, just filler bytes"))
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	frames, err := Extract(bytes.NewReader(buildCapture(t)))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := []struct {
		cmd       enip.Command
		request   bool
		transport string
		describe  string
	}{
		{enip.CommandRegisterSession, true, "tcp", "RegisterSession Request"},
		{enip.CommandRegisterSession, false, "tcp", "RegisterSession Reply"},
		{enip.CommandSendRRData, true, "tcp", "SendRRData Request (Read Tag)"},
		{enip.CommandSendRRData, false, "tcp", "SendRRData Reply (Read Tag) CIP status 0x04"},
		{enip.CommandListIdentity, true, "udp", "ListIdentity Request"},
	}
	if len(frames) != len(want) {
		t.Fatalf("Extract() found %d frames, want %d", len(frames), len(want))
	}
	for i, w := range want {
		f := frames[i]
		if f.Command != w.cmd || f.Request != w.request || f.Transport != w.transport {
			t.Errorf("frame %d = %s request=%v %s, want %s request=%v %s",
				i, f.Command, f.Request, f.Transport, w.cmd, w.request, w.transport)
		}
		if got := f.Describe(); got != w.describe {
			t.Errorf("frame %d Describe() = %q, want %q", i, got, w.describe)
		}
	}

	req := frames[2]
	if req.SrcIP != "192.168.1.10" || req.DstIP != "192.168.1.20" || req.DstPort != ENIPPort {
		t.Errorf("request endpoints = %s:%d -> %s:%d", req.SrcIP, req.SrcPort, req.DstIP, req.DstPort)
	}
	if !req.Timestamp.Equal(captured.Add(3 * time.Millisecond)) {
		t.Errorf("request timestamp = %s, want the second segment's", req.Timestamp)
	}
	if req.SessionID != 0x1234 || len(req.Raw) != enip.HeaderSize+int(req.Length) {
		t.Errorf("request header = %+v", req.Encapsulation)
	}
}

func TestExtractResynchronizesMidStream(t *testing.T) {
	var buf bytes.Buffer
	c := newCaptureWriter(t, &buf)
	_, reply := readTagFrames(t)
	garbage := []byte{0xde, 0xad}
	c.tcp(plcIP, clientIP, ENIPPort, 51000, append(garbage, reply...))

	frames, err := Extract(&buf)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(frames) != 1 || frames[0].Command != enip.CommandSendRRData {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestExtractRejectsNonCapture(t *testing.T) {
	if _, err := Extract(strings.NewReader("definitely not a pcap file")); err == nil {
		t.Error("Extract() accepted garbage")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pcap")
	if err := os.WriteFile(path, buildCapture(t), 0o644); err != nil {
		t.Fatal(err)
	}
	frames, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(frames) != 5 {
		t.Errorf("ReadFile() found %d frames, want 5", len(frames))
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.pcap")); err == nil {
		t.Error("ReadFile() of a missing file should fail")
	}
}

func TestSummarize(t *testing.T) {
	frames, err := Extract(bytes.NewReader(buildCapture(t)))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	s := Summarize(frames)
	if s.Frames != 5 || s.Requests != 3 || s.Replies != 2 {
		t.Errorf("counts = %d/%d/%d", s.Frames, s.Requests, s.Replies)
	}
	if s.CIPErrors != 1 {
		t.Errorf("CIPErrors = %d, want 1", s.CIPErrors)
	}
	if s.Commands["RegisterSession"] != 2 || s.Services["Read Tag"] != 1 {
		t.Errorf("Commands = %v, Services = %v", s.Commands, s.Services)
	}
	if len(s.Sessions) != 1 {
		t.Errorf("Sessions = %v", s.Sessions)
	}
	if got := s.LastFrame.Sub(s.FirstFrame); got != 5*time.Millisecond {
		t.Errorf("duration = %s, want 5ms", got)
	}
	out := s.Format()
	for _, want := range []string{"Frames: 5 (3 requests, 2 replies)", "CIP errors: 1", "Read Tag"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
}
