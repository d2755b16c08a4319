package taglist

// Symbol object enumeration

import (
	"context"
	"fmt"
	"strings"

	"github.com/tonylturner/enipctl/internal/cip/codec"
	"github.com/tonylturner/enipctl/internal/cip/epath"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
)

const programPrefix = "Program:"

// Requester sends one Message Router request and returns the decoded reply.
// A non-success status is returned as an error together with the reply, so
// callers can act on partial (0x06) replies.
type Requester interface {
	Request(ctx context.Context, mr []byte) (protocol.CIPResponse, error)
}

// Entry is one symbol instance.
type Entry struct {
	ID      uint32              `json:"id"`
	Name    string              `json:"name"`
	Program string              `json:"program"`
	Type    spec.TypeDescriptor `json:"type"`
}

// FullName renders the entry including its program scope.
func (e Entry) FullName() string {
	if e.Program == "" {
		return e.Name
	}
	return programPrefix + e.Program + "." + e.Name
}

// TagList holds the symbols of a controller and the templates fetched for
// them. It is not safe for concurrent use.
type TagList struct {
	tags      []Entry
	programs  []string
	templates map[uint16]*Template
}

// New returns an empty tag list.
func New() *TagList {
	return &TagList{templates: make(map[uint16]*Template)}
}

// ListRequest builds a Get Instance Attribute List request for symbol
// names and types, starting at instance. A non-empty program scopes the
// enumeration to that program.
func ListRequest(program string, instance uint32) ([]byte, error) {
	var path []byte
	if program != "" {
		seg, err := epath.BuildSymbolic(programPrefix + program)
		if err != nil {
			return nil, err
		}
		path = append(path, seg...)
	}
	class, err := epath.BuildLogical(epath.ClassID, int(spec.CIPClassSymbol), true)
	if err != nil {
		return nil, err
	}
	path = append(path, class...)

	var inst []byte
	if instance <= 0xFFFF {
		inst, err = epath.BuildLogical16(epath.InstanceID, uint16(instance))
	} else {
		inst, err = epath.BuildLogical(epath.InstanceID, int(instance), true)
	}
	if err != nil {
		return nil, err
	}
	path = append(path, inst...)

	// attribute count, then attribute 1 (name) and 2 (type)
	data := []byte{0x02, 0x00, 0x01, 0x00, 0x02, 0x00}
	return protocol.BuildRequest(spec.CIPServiceGetInstanceAttrList, path, data)
}

// ParseAttributeList decodes one Get Instance Attribute List reply:
// instance id, name length, name and type word per entry.
func ParseAttributeList(data []byte, program string) ([]Entry, error) {
	r := codec.NewReader(data)
	var entries []Entry
	for r.Len() > 0 {
		id := r.Uint32()
		nameLen := int(r.Uint16())
		name := r.Bytes(nameLen)
		word := r.Uint16()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("symbol entry %d: %w", len(entries), err)
		}
		entries = append(entries, Entry{
			ID:      id,
			Name:    string(name),
			Program: program,
			Type:    spec.DecodeTypeWord(word),
		})
	}
	return entries, nil
}

// Load replaces the controller scope entries with entries and rebuilds the
// program list from the Program:<name> symbols among them.
func (l *TagList) Load(entries []Entry) {
	l.tags = l.tags[:0]
	l.programs = l.programs[:0]
	l.add(entries)
}

func (l *TagList) add(entries []Entry) {
	for _, e := range entries {
		l.tags = append(l.tags, e)
		if e.Program != "" || !strings.HasPrefix(e.Name, programPrefix) {
			continue
		}
		prog := strings.TrimPrefix(e.Name, programPrefix)
		if !contains(l.programs, prog) {
			l.programs = append(l.programs, prog)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Fetch enumerates controller scope symbols and then the symbols of every
// program found.
func (l *TagList) Fetch(ctx context.Context, r Requester) error {
	controller, err := fetchScope(ctx, r, "")
	if err != nil {
		return err
	}
	l.Load(controller)
	for _, prog := range l.Programs() {
		entries, err := fetchScope(ctx, r, prog)
		if err != nil {
			return err
		}
		l.add(entries)
	}
	return nil
}

// fetchScope pages through one scope. A 0x06 reply carries a partial list;
// the next request starts after the last instance returned.
func fetchScope(ctx context.Context, r Requester, program string) ([]Entry, error) {
	var all []Entry
	var instance uint32
	for {
		req, err := ListRequest(program, instance)
		if err != nil {
			return nil, err
		}
		resp, err := r.Request(ctx, req)
		partial := resp.GeneralStatus == spec.StatusPartialReply
		if err != nil && !partial {
			return nil, fmt.Errorf("list symbols %q from instance %d: %w", program, instance, err)
		}
		entries, perr := ParseAttributeList(resp.Payload, program)
		if perr != nil {
			return nil, fmt.Errorf("list symbols %q: %w", program, perr)
		}
		all = append(all, entries...)
		if !partial {
			return all, nil
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("list symbols %q: partial reply without entries", program)
		}
		instance = entries[len(entries)-1].ID + 1
	}
}

// Tags returns every symbol, controller scope first.
func (l *TagList) Tags() []Entry {
	out := make([]Entry, len(l.tags))
	copy(out, l.tags)
	return out
}

// Programs returns the distinct program names in discovery order.
func (l *TagList) Programs() []string {
	out := make([]string, len(l.programs))
	copy(out, l.programs)
	return out
}

// GetTag returns the entry for name in program scope ("" for controller).
func (l *TagList) GetTag(name, program string) (Entry, bool) {
	for _, e := range l.tags {
		if e.Name == name && e.Program == program {
			return e, true
		}
	}
	return Entry{}, false
}

// TemplateID returns the template instance of a structure tag.
func (l *TagList) TemplateID(name, program string) (uint16, bool) {
	e, ok := l.GetTag(baseName(name), program)
	if !ok || !e.Type.Structure {
		return 0, false
	}
	return e.Type.Code, true
}

// baseName strips member and index parts: "a[2].b" -> "a".
func baseName(name string) string {
	if i := strings.IndexAny(name, ".["); i >= 0 {
		return name[:i]
	}
	return name
}

// Template returns the template with the given id, fetching and caching it
// on first use.
func (l *TagList) Template(ctx context.Context, r Requester, id uint16) (*Template, error) {
	if t, ok := l.templates[id]; ok {
		return t, nil
	}
	t, err := FetchTemplate(ctx, r, id)
	if err != nil {
		return nil, err
	}
	l.templates[id] = t
	return t, nil
}

// CachedTemplate returns a previously fetched template.
func (l *TagList) CachedTemplate(id uint16) (*Template, bool) {
	t, ok := l.templates[id]
	return t, ok
}
