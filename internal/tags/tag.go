package tags

// Tag addressing and Read/Write Tag request generation

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tonylturner/enipctl/internal/cip/codec"
	"github.com/tonylturner/enipctl/internal/cip/epath"
	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
)

var (
	// ErrUnsupportedType is returned when a value cannot be encoded or
	// decoded as the tag's data type.
	ErrUnsupportedType = errors.New("unsupported data type")
	// ErrInvalidTag is returned by New for inconsistent tag definitions.
	ErrInvalidTag = errors.New("invalid tag")
)

const bitStringWidth = 32

// Tag is one controller tag. A Tag is not safe for concurrent use; the scan
// loop owns the tags it polls and hands out snapshots.
type Tag struct {
	name      string
	program   string
	typ       spec.DataType
	elements  int
	keepAlive time.Duration
	bitIndex  int
	id        string
	path      []byte

	value        any
	raw          []byte
	structHandle uint16
	updated      time.Time
	err          error

	pending    any
	hasPending bool
}

// Option configures a Tag.
type Option func(*Tag)

// WithElements sets the element count for array reads and writes.
func WithElements(n int) Option {
	return func(t *Tag) { t.elements = n }
}

// WithKeepAlive makes the tag report itself stale when no update was seen
// for d, so unchanged values are still republished.
func WithKeepAlive(d time.Duration) Option {
	return func(t *Tag) { t.keepAlive = d }
}

// New validates name and builds the request path. program scopes the tag to
// a program; an empty program means controller scope. A zero typ means DINT.
func New(name, program string, typ spec.DataType, opts ...Option) (*Tag, error) {
	if !IsValidTagName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTagName, name)
	}
	if program != "" && !isIdent(program) {
		return nil, fmt.Errorf("%w: program %q", ErrInvalidTagName, program)
	}
	if typ == 0 {
		typ = spec.TypeDINT
	}
	if typ != spec.TypeStructHandle && !spec.IsValidTypeCode(uint16(typ)) {
		return nil, fmt.Errorf("%w: type code 0x%X", ErrInvalidTag, uint16(typ))
	}

	t := &Tag{
		name:     name,
		program:  program,
		typ:      typ,
		elements: 1,
		bitIndex: -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.elements < 1 || t.elements > 0xFFFF {
		return nil, fmt.Errorf("%w: element count %d", ErrInvalidTag, t.elements)
	}
	if t.keepAlive < 0 {
		return nil, fmt.Errorf("%w: keep alive must be >= 0, got %v", ErrInvalidTag, t.keepAlive)
	}

	base := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 && isDigits(name[i+1:]) {
		if typ == spec.TypeBITSTRING {
			return nil, fmt.Errorf("%w: BIT_STRING tag %q addresses bits by index, not by suffix", ErrInvalidTag, name)
		}
		t.bitIndex, _ = strconv.Atoi(name[i+1:])
		base = name[:i]
	}

	path, err := t.buildPath(base)
	if err != nil {
		return nil, err
	}
	t.path = path

	sum := md5.Sum([]byte(program + "\x00" + name))
	t.id = hex.EncodeToString(sum[:])
	return t, nil
}

// buildPath encodes the symbolic segments of base, one element segment per
// array index. A BIT_STRING index selects a 32-bit word and a bit in it.
func (t *Tag) buildPath(base string) ([]byte, error) {
	var path []byte
	if t.program != "" {
		seg, err := epath.BuildSymbolic(programPrefix + t.program)
		if err != nil {
			return nil, err
		}
		path = append(path, seg...)
	}

	for _, part := range strings.Split(base, ".") {
		ident, indices := part, ""
		if open := strings.IndexByte(part, '['); open >= 0 {
			ident, indices = part[:open], part[open+1:len(part)-1]
		}
		seg, err := epath.BuildSymbolic(ident)
		if err != nil {
			return nil, err
		}
		path = append(path, seg...)
		if indices == "" {
			continue
		}
		for _, idx := range strings.Split(indices, ",") {
			n, err := strconv.ParseUint(idx, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: index %q: %v", ErrInvalidTagName, idx, err)
			}
			if t.typ == spec.TypeBITSTRING {
				t.bitIndex = int(n % bitStringWidth)
				n /= bitStringWidth
			}
			path = append(path, epath.BuildElement(uint32(n))...)
		}
	}
	return path, nil
}

// ID returns the stable correlation key derived from program and name.
func (t *Tag) ID() string { return t.id }

// Name returns the tag name as given.
func (t *Tag) Name() string { return t.name }

// Program returns the program scope, empty for controller scope.
func (t *Tag) Program() string { return t.program }

// Type returns the tag data type.
func (t *Tag) Type() spec.DataType { return t.typ }

// Elements returns the element count requested on reads.
func (t *Tag) Elements() int { return t.elements }

// BitIndex returns the addressed bit, if any.
func (t *Tag) BitIndex() (int, bool) { return t.bitIndex, t.bitIndex >= 0 }

// Path returns the encoded request path.
func (t *Tag) Path() []byte { return t.path }

// Value returns the last value read or written. Arrays are []any, structures
// are the raw structure bytes.
func (t *Tag) Value() any { return t.value }

// Raw returns the undecoded structure bytes and template handle of the last
// structure read.
func (t *Tag) Raw() ([]byte, uint16) { return t.raw, t.structHandle }

// Updated returns when the value was last refreshed.
func (t *Tag) Updated() time.Time { return t.updated }

// Err returns the error of the last read or write, if any.
func (t *Tag) Err() error { return t.err }

// Stale reports whether the keep alive interval elapsed since the last update.
func (t *Tag) Stale(now time.Time) bool {
	return t.keepAlive > 0 && now.Sub(t.updated) >= t.keepAlive
}

// FullName renders the tag including its program scope.
func (t *Tag) FullName() string {
	if t.program == "" {
		return t.name
	}
	return programPrefix + t.program + "." + t.name
}

func (t *Tag) String() string {
	return fmt.Sprintf("%s (%s)", t.FullName(), t.typ)
}

// SetValue queues v for the next group write.
func (t *Tag) SetValue(v any) {
	t.pending = v
	t.hasPending = true
}

// PendingValue returns the queued write value, if any.
func (t *Tag) PendingValue() (any, bool) { return t.pending, t.hasPending }

// ReadRequest builds a Read Tag request for the tag's element count.
func (t *Tag) ReadRequest() ([]byte, error) {
	data := codec.AppendUint16(binary.LittleEndian, nil, uint16(t.elements))
	return protocol.BuildRequest(spec.CIPServiceReadTag, t.path, data)
}

// WriteRequest builds a Write Tag request for v. Bit addressed tags use
// Read-Modify-Write with OR and AND masks sized to the host type.
func (t *Tag) WriteRequest(v any) ([]byte, error) {
	le := binary.LittleEndian
	if t.bitIndex >= 0 {
		size := t.typ.Size()
		if size == 0 || t.typ == spec.TypeBOOL {
			return nil, fmt.Errorf("%w: bit write on %s", ErrUnsupportedType, t.typ)
		}
		set, err := toBool(v)
		if err != nil {
			return nil, err
		}
		var orMask, andMask uint64 = 0, ^uint64(0)
		if set {
			orMask = 1 << uint(t.bitIndex)
		} else {
			andMask &^= 1 << uint(t.bitIndex)
		}
		data := codec.AppendUint16(le, nil, uint16(size))
		data = appendMask(data, orMask, size)
		data = appendMask(data, andMask, size)
		return protocol.BuildRequest(spec.CIPServiceReadModifyWrite, t.path, data)
	}

	if t.typ == spec.TypeStructHandle {
		return nil, fmt.Errorf("%w: structure writes", ErrUnsupportedType)
	}
	data := codec.AppendUint16(le, nil, uint16(t.typ))
	data = append(data, 0, 0) // element count, set below
	data, count, err := EncodeValues(data, t.typ, v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t.FullName(), err)
	}
	le.PutUint16(data[2:4], uint16(count))
	return protocol.BuildRequest(spec.CIPServiceWriteTag, t.path, data)
}

func appendMask(dst []byte, mask uint64, size int) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], mask)
	return append(dst, buf[:size]...)
}

// ParseReadResponse decodes Read Tag reply data (type code followed by the
// value) into the tag.
func (t *Tag) ParseReadResponse(data []byte) error {
	r := codec.NewReader(data)
	typ := spec.DataType(r.Uint16())
	if typ == spec.TypeStructHandle {
		handle := r.Uint16()
		if err := r.Err(); err != nil {
			return fmt.Errorf("read %s: structure handle: %w", t.FullName(), err)
		}
		t.raw = append([]byte(nil), r.Rest()...)
		t.structHandle = handle
		t.typ = spec.TypeStructHandle
		t.setValue(t.raw)
		return nil
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("read %s: type code: %w", t.FullName(), err)
	}

	body := r.Rest()
	if t.bitIndex >= 0 {
		v, _, err := DecodeValue(typ, body)
		if err != nil {
			return fmt.Errorf("read %s: %w", t.FullName(), err)
		}
		word, err := toInt(v)
		if err != nil {
			return err
		}
		t.typ = typ
		t.setValue(uint64(word)>>uint(t.bitIndex)&1 == 1)
		return nil
	}

	if t.elements > 1 {
		values, err := DecodeValues(typ, body, t.elements)
		if err != nil {
			return fmt.Errorf("read %s: %w", t.FullName(), err)
		}
		t.typ = typ
		t.setValue(values)
		return nil
	}

	v, _, err := DecodeValue(typ, body)
	if err != nil {
		return fmt.Errorf("read %s: %w", t.FullName(), err)
	}
	t.typ = typ
	t.setValue(v)
	return nil
}

func (t *Tag) setValue(v any) {
	t.value = v
	t.updated = time.Now()
	t.err = nil
}

// CommitWrite records a successful write of the pending value.
func (t *Tag) CommitWrite() {
	if t.hasPending {
		t.setValue(t.pending)
	}
	t.pending = nil
	t.hasPending = false
}

// Fail records err as the outcome of the last operation.
func (t *Tag) Fail(err error) {
	t.err = err
}
