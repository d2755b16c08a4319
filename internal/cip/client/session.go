package client

// Session engine: one EtherNet/IP session and at most one class 3 connection
// over a single stream, with concurrent correlated requests.

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tonylturner/enipctl/internal/cip/connmgr"
	"github.com/tonylturner/enipctl/internal/cip/epath"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/cip/status"
	"github.com/tonylturner/enipctl/internal/enip"
	"github.com/tonylturner/enipctl/internal/errors"
	"github.com/tonylturner/enipctl/internal/logging"
	"github.com/tonylturner/enipctl/internal/metrics"
)

// DefaultRequestTimeout bounds each request when Options leaves it unset.
const DefaultRequestTimeout = 10 * time.Second

// Options configures a Session.
type Options struct {
	// RoutePath is the port segment path from the adapter to the controller,
	// e.g. backplane port 1 slot 0. Unconnected requests are wrapped in an
	// Unconnected Send along it and Forward Open uses it as the connection
	// path prefix. Empty means the target is addressed directly.
	RoutePath []byte

	// Connected requests a class 3 connection after the session registers.
	Connected        bool
	LargeForwardOpen bool
	RPI              uint32 // microseconds
	ConnectionSize   int

	RequestTimeout           time.Duration
	UnconnectedSendTimeoutMs int

	// Target names the controller in logs and metrics.
	Target  string
	Logger  *logging.Logger
	Metrics *metrics.Sink
}

func (o Options) withDefaults() Options {
	if o.RPI == 0 {
		o.RPI = connmgr.DefaultRPI
	}
	if o.ConnectionSize == 0 {
		o.ConnectionSize = connmgr.DefaultConnectionSize
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.UnconnectedSendTimeoutMs <= 0 {
		o.UnconnectedSendTimeoutMs = connmgr.DefaultUnconnectedTimeoutMs
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

type connection struct {
	id          uint32
	seq         uint16
	established bool
	forward     connmgr.ForwardOpen
}

// Session is a client session with one controller. All request methods are
// safe for concurrent use.
type Session struct {
	opts      Options
	log       *logging.Logger
	transport Transport

	mu         sync.Mutex
	state      State
	stopped    bool
	sessionID  uint32
	connection connection
	pending    map[pendingKey]chan result
	readDone   chan struct{}

	nextContext atomic.Uint64
}

// NewSession creates a session that dials TCP on Connect.
func NewSession(opts Options) *Session {
	return NewSessionWithTransport(NewTCPTransport(), opts)
}

// NewSessionWithTransport creates a session over t. If t is already
// connected, Connect skips dialing.
func NewSessionWithTransport(t Transport, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:      opts,
		log:       opts.Logger,
		transport: t,
		state:     StateDisconnected,
		stopped:   true,
		pending:   make(map[pendingKey]chan result),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the handle assigned by RegisterSession, or 0.
func (s *Session) SessionID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ConnectionID returns the O->T connection id of the class 3 connection and
// whether one is established.
func (s *Session) ConnectionID() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connection.id, s.connection.established
}

// Connect opens the transport, registers a session and, when configured,
// opens a class 3 connection. A failed Forward Open leaves the session usable
// for unconnected messaging.
func (s *Session) Connect(ctx context.Context, addr string) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	// A read loop from the previous connection may still be unwinding.
	if prev := s.readDone; prev != nil {
		s.mu.Unlock()
		select {
		case <-prev:
		case <-ctx.Done():
			return errors.Classify(errors.CategoryCancelled, "connect", fmt.Errorf("%w: %w", errors.ErrCancelled, ctx.Err()))
		}
		s.mu.Lock()
		if s.state != StateDisconnected || s.readDone != prev {
			s.mu.Unlock()
			return fmt.Errorf("already connected")
		}
	}
	s.state = StateConnecting
	s.stopped = false
	s.sessionID = 0
	s.connection = connection{}
	done := make(chan struct{})
	s.readDone = done
	s.mu.Unlock()

	if !s.transport.IsConnected() {
		if err := s.transport.Connect(ctx, addr); err != nil {
			s.abort()
			return errors.Classify(errors.CategoryTransport, "connect", err)
		}
	}
	go s.readLoop(done)

	start := time.Now()
	res, err := s.roundTripUnconnected(ctx, enip.RegisterSession(), "register session")
	var sessionID uint32
	if err == nil {
		sessionID, err = enip.RegisteredSession(res.encap)
		if err != nil {
			err = errors.Classify(errors.CategoryProtocol, "register session", err)
		}
	}
	s.observe(metrics.OperationRegisterSession, "RegisterSession", start, 0, err)
	if err != nil {
		s.stop(err)
		return err
	}

	if err := s.advance(StateSessionEstablished, "register session", func() { s.sessionID = sessionID }); err != nil {
		return err
	}
	s.log.Verbose("Registered session 0x%08X with %s", sessionID, s.target(addr))

	if s.opts.Connected {
		if err := s.forwardOpen(ctx); err != nil {
			if s.isStopped() {
				return errors.Classify(errors.CategoryTransport, "forward open", errors.ErrNotConnected)
			}
			s.log.Info("Forward Open failed, using unconnected messaging: %v", err)
		}
	}
	return nil
}

// advance moves the session to state and applies update under the lock. It
// fails once the session has stopped.
func (s *Session) advance(state State, op string, update func()) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.Classify(errors.CategoryTransport, op, errors.ErrNotConnected)
	}
	prev := s.state
	s.state = state
	if update != nil {
		update()
	}
	s.mu.Unlock()
	if prev != state {
		s.log.Verbose("Session %s -> %s", prev, state)
	}
	return nil
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) target(addr string) string {
	if s.opts.Target != "" {
		return s.opts.Target
	}
	return addr
}

// abort undoes a Connect that failed before the read loop started.
func (s *Session) abort() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.stopped = true
	close(s.readDone)
	s.mu.Unlock()
}

func (s *Session) forwardOpen(ctx context.Context) error {
	if err := s.advance(StateConnectionEstablishing, "forward open", nil); err != nil {
		return err
	}

	path := append(append([]byte(nil), s.opts.RoutePath...), protocol.MessageRouterPath...)
	fo := connmgr.DefaultForwardOpen(path)
	fo.Large = s.opts.LargeForwardOpen
	fo.OTRPI = s.opts.RPI
	fo.TORPI = s.opts.RPI
	fo.ConnectionSize = s.opts.ConnectionSize
	var id [4]byte
	_, _ = rand.Read(id[:])
	fo.TOConnectionID = binary.LittleEndian.Uint32(id[:])

	start := time.Now()
	reply, err := s.doForwardOpen(ctx, fo)
	s.observe(metrics.OperationForwardOpen, spec.ServiceName(fo.Service(), true), start, statusOf(err), err)
	if err != nil {
		s.mu.Lock()
		if s.state == StateConnectionEstablishing {
			s.state = StateSessionEstablished
		}
		s.mu.Unlock()
		return err
	}

	established := connection{id: reply.OTConnectionID, established: true, forward: fo}
	if err := s.advance(StateConnectionEstablished, "forward open", func() { s.connection = established }); err != nil {
		return err
	}
	s.log.Verbose("Connection 0x%08X established (T->O 0x%08X)", reply.OTConnectionID, reply.TOConnectionID)
	return nil
}

func (s *Session) doForwardOpen(ctx context.Context, fo connmgr.ForwardOpen) (connmgr.ForwardOpenReply, error) {
	mr, err := fo.Request()
	if err != nil {
		return connmgr.ForwardOpenReply{}, errors.Classify(errors.CategoryValidation, "forward open", err)
	}
	resp, err := s.sendRRData(ctx, mr, fo.Service(), true)
	if err != nil {
		return connmgr.ForwardOpenReply{}, err
	}
	reply, err := connmgr.ParseForwardOpenReply(resp.Payload)
	if err != nil {
		return connmgr.ForwardOpenReply{}, errors.Classify(errors.CategoryProtocol, "forward open", err)
	}
	return reply, nil
}

// Close sends a best effort Forward Close and UnregisterSession, then drops
// the transport. Requests still waiting fail with ErrCancelled.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateClosing
	conn := s.connection
	sessionID := s.sessionID
	readDone := s.readDone
	s.mu.Unlock()
	s.log.Verbose("Session %s -> %s", prev, StateClosing)

	if conn.established {
		start := time.Now()
		fc := conn.forward.Close()
		mr, err := fc.Request()
		if err == nil {
			_, err = s.sendRRData(ctx, mr, spec.CIPServiceForwardClose, true)
		}
		s.observe(metrics.OperationForwardClose, "Forward Close", start, statusOf(err), err)
		if err != nil {
			s.log.Verbose("Forward Close failed: %v", err)
		}
	}
	if sessionID != 0 {
		if err := s.transport.Send(ctx, enip.UnregisterSession(sessionID)); err != nil {
			s.log.Verbose("UnregisterSession failed: %v", err)
		}
	}

	s.stop(nil)
	select {
	case <-readDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Request sends a Message Router request over the class 3 connection when one
// is established and unconnected otherwise. A non-success general status is
// returned as a *status.Error along with the decoded reply.
func (s *Session) Request(ctx context.Context, mr []byte) (protocol.CIPResponse, error) {
	if len(mr) == 0 {
		return protocol.CIPResponse{}, errors.Classify(errors.CategoryValidation, "request", fmt.Errorf("empty request"))
	}
	s.mu.Lock()
	connected := s.state == StateConnectionEstablished
	s.mu.Unlock()

	service := protocol.CIPServiceCode(mr[0])
	start := time.Now()
	var resp protocol.CIPResponse
	var err error
	if connected {
		resp, err = s.SendConnected(ctx, mr)
	} else {
		resp, err = s.SendUnconnected(ctx, mr)
	}
	s.observe(operationFor(service), spec.ServiceName(service, false), start, resp.GeneralStatus, err)
	return resp, err
}

// SendUnconnected sends mr with SendRRData, wrapped in an Unconnected Send
// along RoutePath when one is configured.
func (s *Session) SendUnconnected(ctx context.Context, mr []byte) (protocol.CIPResponse, error) {
	if err := s.requireSession(); err != nil {
		return protocol.CIPResponse{}, err
	}
	if len(mr) == 0 {
		return protocol.CIPResponse{}, errors.Classify(errors.CategoryValidation, "unconnected send", fmt.Errorf("empty request"))
	}
	service := protocol.CIPServiceCode(mr[0])
	if len(s.opts.RoutePath) == 0 {
		return s.sendRRData(ctx, mr, service, false)
	}

	wrapped, err := connmgr.BuildUnconnectedSend(mr, s.opts.RoutePath, s.opts.UnconnectedSendTimeoutMs)
	if err != nil {
		return protocol.CIPResponse{}, errors.Classify(errors.CategoryValidation, "unconnected send", err)
	}
	return s.sendRRData(ctx, wrapped, service, false)
}

// SendConnected sends mr with SendUnitData on the class 3 connection.
func (s *Session) SendConnected(ctx context.Context, mr []byte) (protocol.CIPResponse, error) {
	if len(mr) == 0 {
		return protocol.CIPResponse{}, errors.Classify(errors.CategoryValidation, "connected send", fmt.Errorf("empty request"))
	}
	service := protocol.CIPServiceCode(mr[0])

	s.mu.Lock()
	if s.stopped || !s.connection.established {
		s.mu.Unlock()
		return protocol.CIPResponse{}, errors.Classify(errors.CategoryValidation, "connected send", errors.ErrNoConnection)
	}
	s.connection.seq++
	seq := s.connection.seq
	key := pendingKey{connected: true, id: uint64(seq)}
	ch := make(chan result, 1)
	s.pending[key] = ch
	frame := enip.SendUnitData(s.sessionID, mr, s.connection.id, seq)
	s.mu.Unlock()

	res, err := s.send(ctx, key, ch, frame, "connected send")
	if err != nil {
		return protocol.CIPResponse{}, err
	}
	return s.decodeReply(res.data, service, false)
}

// MultipleService packs requests into one Multiple Service Packet and returns
// the embedded replies in request order. Individual failures are reported
// through each reply's status.
func (s *Session) MultipleService(ctx context.Context, requests [][]byte) ([]protocol.CIPResponse, error) {
	mr, err := protocol.BuildMultipleServiceRequest(requests)
	if err != nil {
		return nil, errors.Classify(errors.CategoryValidation, "multiple service", err)
	}
	resp, err := s.Request(ctx, mr)
	if err != nil && resp.GeneralStatus != spec.StatusEmbeddedError {
		return nil, err
	}
	replies, perr := protocol.ParseMultipleServiceResponse(resp.Payload)
	if perr != nil {
		return nil, errors.Classify(errors.CategoryProtocol, "multiple service", perr)
	}
	return replies, nil
}

// GetAttributeAll reads every attribute of an object instance.
func (s *Session) GetAttributeAll(ctx context.Context, class, instance int) (protocol.CIPResponse, error) {
	path, err := epath.ClassInstance(class, instance)
	if err != nil {
		return protocol.CIPResponse{}, errors.Classify(errors.CategoryValidation, "get attribute all", err)
	}
	mr, err := protocol.BuildRequest(spec.CIPServiceGetAttributeAll, path, nil)
	if err != nil {
		return protocol.CIPResponse{}, errors.Classify(errors.CategoryValidation, "get attribute all", err)
	}
	return s.Request(ctx, mr)
}

func (s *Session) requireSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.Classify(errors.CategoryTransport, "request", errors.ErrNotConnected)
	}
	if !s.state.SessionReady() {
		return errors.Classify(errors.CategoryValidation, "request", errors.ErrNoSession)
	}
	return nil
}

// sendRRData sends an unconnected frame and decodes the reply to service.
func (s *Session) sendRRData(ctx context.Context, mr []byte, service protocol.CIPServiceCode, connMgr bool) (protocol.CIPResponse, error) {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	frame := enip.SendRRData(sessionID, mr, enip.DefaultRRDataTimeout)
	res, err := s.roundTripUnconnected(ctx, frame, spec.ServiceName(service, connMgr))
	if err != nil {
		return protocol.CIPResponse{}, err
	}
	return s.decodeReply(res.data, service, connMgr)
}

func (s *Session) decodeReply(data []byte, service protocol.CIPServiceCode, connMgr bool) (protocol.CIPResponse, error) {
	name := spec.ServiceName(service, connMgr)
	resp, err := protocol.DecodeCIPResponse(data)
	if err != nil {
		return protocol.CIPResponse{}, errors.Classify(errors.CategoryProtocol, name, err)
	}
	if rerr := connmgr.RoutingError(resp); rerr != nil && service != spec.CIPServiceUnconnectedSend {
		st := status.Lookup(rerr.GeneralStatus, resp.ExtStatusBytes(), "Unconnected Send")
		return resp, errors.Classify(errors.CategoryCIPStatus, name, fmt.Errorf("%w: %w", rerr, st))
	}
	if !resp.Service.IsReply() || resp.Service.Request() != service {
		return resp, errors.Classify(errors.CategoryProtocol, name,
			fmt.Errorf("reply service 0x%02X does not answer request 0x%02X", uint8(resp.Service), uint8(service)))
	}
	if !resp.OK() {
		return resp, errors.Classify(errors.CategoryCIPStatus, name,
			status.Lookup(resp.GeneralStatus, resp.ExtStatusBytes(), name))
	}
	return resp, nil
}

// roundTripUnconnected stamps frame with a fresh sender context and waits for
// the reply carrying it.
func (s *Session) roundTripUnconnected(ctx context.Context, frame []byte, op string) (result, error) {
	id := s.nextContext.Add(1)
	setSenderContext(frame, id)
	key := pendingKey{id: id}
	ch, err := s.register(key)
	if err != nil {
		return result{}, err
	}
	return s.send(ctx, key, ch, frame, op)
}

func (s *Session) send(ctx context.Context, key pendingKey, ch chan result, frame []byte, op string) (result, error) {
	s.log.LogHex("send", frame)
	if err := s.transport.Send(ctx, frame); err != nil {
		s.forget(key)
		return result{}, errors.Classify(errors.CategoryTransport, op, err)
	}

	timer := time.NewTimer(s.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return result{}, res.err
		}
		return res, nil
	case <-ctx.Done():
		s.forget(key)
		if ctx.Err() == context.DeadlineExceeded {
			return result{}, errors.Classify(errors.CategoryTimeout, op, fmt.Errorf("%w: %w", errors.ErrTimeout, ctx.Err()))
		}
		return result{}, errors.Classify(errors.CategoryCancelled, op, fmt.Errorf("%w: %w", errors.ErrCancelled, ctx.Err()))
	case <-timer.C:
		s.forget(key)
		return result{}, errors.Classify(errors.CategoryTimeout, op,
			fmt.Errorf("%w after %s", errors.ErrTimeout, s.opts.RequestTimeout))
	}
}

func (s *Session) observe(op metrics.OperationType, service string, start time.Time, st uint8, err error) {
	rtt := float64(time.Since(start).Microseconds()) / 1000.0
	s.log.LogOperation(string(op), s.opts.Target, service, err == nil, rtt, st, err)
	s.opts.Metrics.Record(metrics.Metric{
		Operation:   op,
		TargetName:  s.opts.Target,
		ServiceCode: service,
		RTTMs:       rtt,
		Status:      st,
	}.FromError(err))
}

func statusOf(err error) uint8 {
	var se *status.Error
	if errors.As(err, &se) {
		return se.GeneralStatus
	}
	return 0
}

func operationFor(service protocol.CIPServiceCode) metrics.OperationType {
	switch service {
	case spec.CIPServiceReadTag:
		return metrics.OperationRead
	case spec.CIPServiceWriteTag, spec.CIPServiceReadModifyWrite:
		return metrics.OperationWrite
	case spec.CIPServiceMultipleService:
		return metrics.OperationMultipleService
	case spec.CIPServiceGetInstanceAttrList:
		return metrics.OperationTagList
	case spec.CIPServiceGetAttributeList:
		return metrics.OperationTemplate
	default:
		return metrics.OperationType(spec.ServiceName(service, false))
	}
}
