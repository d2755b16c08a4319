package client

// Transport abstraction for TCP/UDP connections

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tonylturner/enipctl/internal/enip"
)

// DefaultDialTimeout bounds TCP connection setup when ctx has no deadline.
const DefaultDialTimeout = 5 * time.Second

// Transport is a reliable, framed byte stream to one target.
type Transport interface {
	Connect(ctx context.Context, addr string) error
	Disconnect() error
	Send(ctx context.Context, data []byte) error
	// ReadFrame blocks until one complete encapsulation frame arrives.
	ReadFrame() ([]byte, error)
	IsConnected() bool
}

// TCPTransport implements TCP transport
type TCPTransport struct {
	conn    net.Conn
	addr    string
	connMu  sync.RWMutex
	writeMu sync.Mutex
}

var _ Transport = (*TCPTransport)(nil)

// NewTCPTransport creates a new TCP transport
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

// NewConnTransport wraps an established stream, e.g. one end of net.Pipe.
func NewConnTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn, addr: conn.RemoteAddr().String()}
}

// Connect establishes a TCP connection
func (t *TCPTransport) Connect(ctx context.Context, addr string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("already connected")
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("resolve TCP address: %w", err)
	}

	dialer := net.Dialer{Timeout: DefaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", tcpAddr.String())
	if err != nil {
		return fmt.Errorf("dial TCP: %w", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			tcpConn.Close()
			return fmt.Errorf("set keep-alive: %w", err)
		}
		if err := tcpConn.SetNoDelay(true); err != nil {
			tcpConn.Close()
			return fmt.Errorf("set no-delay: %w", err)
		}
	}

	t.conn = conn
	t.addr = addr
	return nil
}

// Disconnect closes the TCP connection
func (t *TCPTransport) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.addr = ""
	return err
}

func (t *TCPTransport) current() net.Conn {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn
}

// Send writes one frame. Concurrent senders are serialized so frames never
// interleave on the stream.
func (t *TCPTransport) Send(ctx context.Context, data []byte) error {
	conn := t.current()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads the 24-byte encapsulation header, then the number of data
// bytes it announces.
func (t *TCPTransport) ReadFrame() ([]byte, error) {
	conn := t.current()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	header := make([]byte, enip.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	frame := make([]byte, enip.FrameLength(header))
	copy(frame, header)
	if _, err := io.ReadFull(conn, frame[enip.HeaderSize:]); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	return frame, nil
}

// IsConnected returns whether the transport is connected
func (t *TCPTransport) IsConnected() bool {
	return t.current() != nil
}

// UDPTransport is a datagram socket bound to a local address, used for
// ListIdentity broadcasts and their unicast replies.
type UDPTransport struct {
	conn   *net.UDPConn
	local  string
	target *net.UDPAddr
	connMu sync.RWMutex
}

// NewUDPTransport creates a UDP transport bound to local on Connect. An
// empty local lets the OS choose the port.
func NewUDPTransport(local string) *UDPTransport {
	if local == "" {
		local = ":0"
	}
	return &UDPTransport{local: local}
}

// Connect binds the local socket and sets the send target (typically a
// broadcast address).
func (t *UDPTransport) Connect(ctx context.Context, addr string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("already connected")
	}

	target, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("resolve UDP address: %w", err)
	}
	localAddr, err := net.ResolveUDPAddr("udp4", t.local)
	if err != nil {
		return fmt.Errorf("resolve local UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp4", localAddr)
	if err != nil {
		return fmt.Errorf("listen UDP: %w", err)
	}

	t.conn = conn
	t.target = target
	return nil
}

// Disconnect closes the UDP socket
func (t *UDPTransport) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.target = nil
	return err
}

// Send sends one datagram to the target.
func (t *UDPTransport) Send(ctx context.Context, data []byte) error {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil || t.target == nil {
		return fmt.Errorf("not connected")
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	_, err := t.conn.WriteToUDP(data, t.target)
	return err
}

// ReceiveFrom blocks until a datagram arrives or timeout elapses and returns
// it with its sender.
func (t *UDPTransport) ReceiveFrom(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()

	if conn == nil {
		return nil, nil, fmt.Errorf("not connected")
	}
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	buffer := make([]byte, enip.HeaderSize+65535)
	n, addr, err := conn.ReadFromUDP(buffer)
	if err != nil {
		return nil, nil, fmt.Errorf("read UDP: %w", err)
	}
	if n < enip.HeaderSize {
		return nil, addr, fmt.Errorf("incomplete packet: %d bytes (minimum %d)", n, enip.HeaderSize)
	}
	return buffer[:n], addr, nil
}

// LocalAddr returns the bound address.
func (t *UDPTransport) LocalAddr() net.Addr {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// IsConnected returns whether the socket is bound
func (t *UDPTransport) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}
