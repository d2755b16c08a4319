package tags

// Multi-tag batching into Multiple Service Packet requests

import (
	"errors"
	"fmt"

	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/cip/status"
)

// DefaultMaxPacketSize is the Multiple Service Packet budget used when none
// is configured. It fits a standard 500 byte connection.
const DefaultMaxPacketSize = 500

var (
	// ErrDuplicateTag is returned when a tag with the same id is already grouped.
	ErrDuplicateTag = errors.New("tag already in group")
	// ErrRequestTooLarge is returned when one tag's request cannot fit a
	// Multiple Service Packet within the packet budget.
	ErrRequestTooLarge = errors.New("request exceeds packet budget")
)

// Request is one packed Multiple Service Packet and the ids of the tags it
// carries, in packing order.
type Request struct {
	Data   []byte
	TagIDs []string
}

type nameKey struct {
	program string
	name    string
}

// Group is an ordered set of tags. Tags live in an insertion ordered arena;
// lookups by id and by name go through indexes into it.
type Group struct {
	maxPacket int
	tags      []*Tag
	byID      map[string]int
	byName    map[nameKey]int
}

// NewGroup creates a group whose packed requests never exceed maxPacket
// bytes. A non-positive maxPacket uses DefaultMaxPacketSize.
func NewGroup(maxPacket int) *Group {
	if maxPacket <= 0 {
		maxPacket = DefaultMaxPacketSize
	}
	return &Group{
		maxPacket: maxPacket,
		byID:      make(map[string]int),
		byName:    make(map[nameKey]int),
	}
}

// Add appends t to the group.
func (g *Group) Add(t *Tag) error {
	if _, ok := g.byID[t.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTag, t.FullName())
	}
	g.byID[t.ID()] = len(g.tags)
	g.byName[nameKey{t.Program(), t.Name()}] = len(g.tags)
	g.tags = append(g.tags, t)
	return nil
}

// Remove drops the tag with the given id and reports whether it was present.
func (g *Group) Remove(id string) bool {
	idx, ok := g.byID[id]
	if !ok {
		return false
	}
	g.tags = append(g.tags[:idx], g.tags[idx+1:]...)
	g.reindex()
	return true
}

func (g *Group) reindex() {
	clear(g.byID)
	clear(g.byName)
	for i, t := range g.tags {
		g.byID[t.ID()] = i
		g.byName[nameKey{t.Program(), t.Name()}] = i
	}
}

// Get returns the tag with the given id, or nil.
func (g *Group) Get(id string) *Tag {
	if idx, ok := g.byID[id]; ok {
		return g.tags[idx]
	}
	return nil
}

// Lookup returns the tag with the given name and program, or nil.
func (g *Group) Lookup(name, program string) *Tag {
	if idx, ok := g.byName[nameKey{program, name}]; ok {
		return g.tags[idx]
	}
	return nil
}

// Tags returns the grouped tags in insertion order.
func (g *Group) Tags() []*Tag {
	out := make([]*Tag, len(g.tags))
	copy(out, g.tags)
	return out
}

// Len returns the number of tags.
func (g *Group) Len() int { return len(g.tags) }

// MaxPacketSize returns the packing budget.
func (g *Group) MaxPacketSize() int { return g.maxPacket }

// ReadRequests packs a Read Tag request for every tag.
func (g *Group) ReadRequests() ([]Request, error) {
	return g.pack(func(t *Tag) ([]byte, bool, error) {
		req, err := t.ReadRequest()
		return req, true, err
	})
}

// WriteRequests packs a Write Tag request for every tag with a pending
// value. It returns no requests when nothing is pending.
func (g *Group) WriteRequests() ([]Request, error) {
	return g.pack(func(t *Tag) ([]byte, bool, error) {
		v, ok := t.PendingValue()
		if !ok {
			return nil, false, nil
		}
		req, err := t.WriteRequest(v)
		return req, true, err
	})
}

// pack fills packets in tag order, starting a new packet whenever the next
// request would push the current one past the budget. A request that cannot
// fit even in a packet of its own fails the whole batch.
func (g *Group) pack(build func(*Tag) ([]byte, bool, error)) ([]Request, error) {
	var out []Request
	var reqs [][]byte
	var ids []string
	size := 0

	flush := func() error {
		if len(reqs) == 0 {
			return nil
		}
		data, err := protocol.BuildMultipleServiceRequest(reqs)
		if err != nil {
			return err
		}
		out = append(out, Request{Data: data, TagIDs: ids})
		reqs, ids, size = nil, nil, 0
		return nil
	}

	for _, t := range g.tags {
		req, ok, err := build(t)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", t.FullName(), err)
		}
		if !ok {
			continue
		}
		if alone := protocol.MultipleServiceOverhead(1) + len(req); alone > g.maxPacket {
			return nil, fmt.Errorf("%s: %w (%d bytes, budget %d)", t.FullName(), ErrRequestTooLarge, alone, g.maxPacket)
		}
		if len(reqs) > 0 && protocol.MultipleServiceOverhead(len(reqs)+1)+size+len(req) > g.maxPacket {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		reqs = append(reqs, req)
		ids = append(ids, t.ID())
		size += len(req)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyReadResponses zips the embedded replies of a Multiple Service Packet
// onto the tags of req. Failed replies are recorded on their tag and
// returned joined.
func (g *Group) ApplyReadResponses(req Request, responses []protocol.CIPResponse) error {
	return g.apply(req, responses, "Read Tag", func(t *Tag, resp protocol.CIPResponse) error {
		return t.ParseReadResponse(resp.Payload)
	})
}

// ApplyWriteResponses zips write replies onto the tags of req and clears the
// pending value of every tag whose write succeeded.
func (g *Group) ApplyWriteResponses(req Request, responses []protocol.CIPResponse) error {
	return g.apply(req, responses, "Write Tag", func(t *Tag, _ protocol.CIPResponse) error {
		t.CommitWrite()
		return nil
	})
}

func (g *Group) apply(req Request, responses []protocol.CIPResponse, op string, handle func(*Tag, protocol.CIPResponse) error) error {
	if len(responses) != len(req.TagIDs) {
		return fmt.Errorf("%s: %d replies for %d tags", op, len(responses), len(req.TagIDs))
	}
	var errs []error
	for i, id := range req.TagIDs {
		t := g.Get(id)
		if t == nil {
			continue
		}
		resp := responses[i]
		if !resp.OK() {
			cipErr := status.Lookup(resp.GeneralStatus, resp.ExtStatusBytes(), spec.ServiceName(resp.Service.Request(), false))
			err := fmt.Errorf("%s %s: %w", op, t.FullName(), cipErr)
			t.Fail(err)
			errs = append(errs, err)
			continue
		}
		if err := handle(t, resp); err != nil {
			t.Fail(err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
