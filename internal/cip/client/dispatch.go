package client

// Inbound frame demultiplexing

import (
	"encoding/binary"
	"fmt"

	"github.com/tonylturner/enipctl/internal/enip"
	"github.com/tonylturner/enipctl/internal/errors"
)

// pendingKey identifies one outstanding request. Unconnected frames are
// matched by the sender context echoed in the encapsulation header,
// connected frames by the CPF sequence count echoed by the target.
type pendingKey struct {
	connected bool
	id        uint64
}

type result struct {
	encap enip.Encapsulation
	data  []byte // message router bytes
	err   error
}

func setSenderContext(frame []byte, id uint64) {
	binary.LittleEndian.PutUint64(frame[12:20], id)
}

// register adds a waiter for key. It fails once the session has stopped.
func (s *Session) register(key pendingKey) (chan result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errors.Classify(errors.CategoryTransport, "send", errors.ErrNotConnected)
	}
	ch := make(chan result, 1)
	s.pending[key] = ch
	return ch, nil
}

func (s *Session) forget(key pendingKey) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

func (s *Session) deliver(key pendingKey, res result) bool {
	s.mu.Lock()
	ch, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}

// readLoop owns the read side of the transport until it fails.
func (s *Session) readLoop(done chan struct{}) {
	defer close(done)
	for {
		frame, err := s.transport.ReadFrame()
		if err != nil {
			s.stop(errors.Classify(errors.CategoryTransport, "read", err))
			return
		}
		s.log.LogHex("recv", frame)
		s.dispatch(frame)
	}
}

func (s *Session) dispatch(frame []byte) {
	encap, err := enip.DecodeENIP(frame)
	if err != nil {
		s.log.Error("Dropping undecodable frame: %v", err)
		return
	}

	switch encap.Command {
	case enip.CommandSendUnitData:
		connID, seq, data, err := enip.ConnectedData(encap.Data)
		if err != nil {
			s.log.Error("Dropping connected frame: %v", err)
			return
		}
		key := pendingKey{connected: true, id: uint64(seq)}
		if !s.deliver(key, result{encap: encap, data: data}) {
			s.log.Verbose("No waiter for connected reply seq=%d conn=0x%08X", seq, connID)
		}

	case enip.CommandSendRRData:
		res := result{encap: encap}
		if encap.Status == enip.StatusSuccess {
			res.data, res.err = enip.UnconnectedData(encap.Data)
			if res.err != nil {
				res.err = errors.Classify(errors.CategoryProtocol, "decode reply", res.err)
			}
		}
		s.deliverUnconnected(encap, res)

	case enip.CommandRegisterSession, enip.CommandListIdentity, enip.CommandListServices:
		s.deliverUnconnected(encap, result{encap: encap})

	default:
		s.log.Verbose("Ignoring %s frame", encap.Command)
	}
}

func (s *Session) deliverUnconnected(encap enip.Encapsulation, res result) {
	if res.err == nil && encap.Status != enip.StatusSuccess {
		res.err = errors.Classify(errors.CategoryProtocol, encap.Command.String(),
			fmt.Errorf("encapsulation status 0x%02X: %s", encap.Status, encap.StatusText()))
	}
	key := pendingKey{id: binary.LittleEndian.Uint64(encap.SenderContext[:])}
	if !s.deliver(key, res) {
		s.log.Verbose("No waiter for %s reply context=%d", encap.Command, key.id)
	}
}

// stop moves the session to Disconnected and fails every waiter. Only the
// first call has any effect.
func (s *Session) stop(cause error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.state = StateDisconnected
	s.connection = connection{}
	pending := s.pending
	s.pending = make(map[pendingKey]chan result)
	s.mu.Unlock()

	if cause != nil {
		s.log.Verbose("Session stopped: %v", cause)
	}
	_ = s.transport.Disconnect()
	for _, ch := range pending {
		ch <- result{err: errors.Classify(errors.CategoryCancelled, "request", errors.ErrCancelled)}
	}
}
