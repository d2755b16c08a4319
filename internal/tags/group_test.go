package tags

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tonylturner/enipctl/internal/cip/protocol"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/cip/status"
)

func helloGroup(t *testing.T, n, maxPacket int) (*Group, []*Tag) {
	t.Helper()
	g := NewGroup(maxPacket)
	var list []*Tag
	for i := 1; i <= n; i++ {
		tag := mustTag(t, fmt.Sprintf("helloTag%d", i), "prog", spec.TypeDINT)
		if err := g.Add(tag); err != nil {
			t.Fatal(err)
		}
		list = append(list, tag)
	}
	return g, list
}

func TestGroupReadRequests(t *testing.T) {
	g, _ := helloGroup(t, 5, 0)
	reqs, err := g.ReadRequests()
	if err != nil {
		t.Fatalf("ReadRequests() error = %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(reqs))
	}

	want := []byte{10, 2, 32, 2, 36, 1, 5, 0, 12, 0, 42, 0, 72, 0, 102, 0, 132, 0}
	for i := 1; i <= 5; i++ {
		want = append(want, 76, 13, 145, 12)
		want = append(want, "Program:prog"...)
		want = append(want, 145, 9)
		want = append(want, fmt.Sprintf("helloTag%d", i)...)
		want = append(want, 0, 1, 0)
	}
	if !bytes.Equal(reqs[0].Data, want) {
		t.Errorf("ReadRequests()[0].Data =\n%v\nwant\n%v", reqs[0].Data, want)
	}
	if len(reqs[0].TagIDs) != 5 {
		t.Fatalf("expected 5 tag ids, got %d", len(reqs[0].TagIDs))
	}
	for _, id := range reqs[0].TagIDs {
		if len(id) != 32 {
			t.Errorf("tag id %q is not an md5 hex digest", id)
		}
	}
}

func TestGroupWriteRequestsEmpty(t *testing.T) {
	g, _ := helloGroup(t, 5, 0)
	reqs, err := g.WriteRequests()
	if err != nil {
		t.Fatalf("WriteRequests() error = %v", err)
	}
	if len(reqs) != 0 {
		t.Errorf("expected no write requests, got %d", len(reqs))
	}
}

func TestGroupWriteRequestsPending(t *testing.T) {
	g, list := helloGroup(t, 3, 0)
	list[1].SetValue(7)
	reqs, err := g.WriteRequests()
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 1 || len(reqs[0].TagIDs) != 1 || reqs[0].TagIDs[0] != list[1].ID() {
		t.Fatalf("WriteRequests() = %+v", reqs)
	}

	if err := g.ApplyWriteResponses(reqs[0], []protocol.CIPResponse{{Service: 0xCD}}); err != nil {
		t.Fatalf("ApplyWriteResponses() error = %v", err)
	}
	if _, pending := list[1].PendingValue(); pending {
		t.Error("pending value should be cleared after a successful write")
	}
	if list[1].Value() != 7 {
		t.Errorf("Value() = %v, want 7", list[1].Value())
	}
}

func TestGroupPacking(t *testing.T) {
	// Each request is 30 bytes; overhead is 6 + 2 + 2n.
	tests := []struct {
		name      string
		n         int
		maxPacket int
		packets   []int
	}{
		{"all fit", 5, 500, []int{5}},
		{"exact fit", 3, 8 + 3*32, []int{3}},
		{"one over", 3, 8 + 3*32 - 1, []int{2, 1}},
		{"many packets", 10, 8 + 3*32, []int{3, 3, 3, 1}},
		{"one per packet", 3, 8 + 32, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, list := helloGroup(t, tt.n, tt.maxPacket)
			reqs, err := g.ReadRequests()
			if err != nil {
				t.Fatal(err)
			}
			if len(reqs) != len(tt.packets) {
				t.Fatalf("got %d packets, want %d", len(reqs), len(tt.packets))
			}
			var ids []string
			for i, req := range reqs {
				if len(req.TagIDs) != tt.packets[i] {
					t.Errorf("packet %d carries %d tags, want %d", i, len(req.TagIDs), tt.packets[i])
				}
				if len(req.Data) > tt.maxPacket {
					t.Errorf("packet %d is %d bytes, budget %d", i, len(req.Data), tt.maxPacket)
				}
				ids = append(ids, req.TagIDs...)
			}
			for i, tag := range list {
				if ids[i] != tag.ID() {
					t.Fatalf("tag order not preserved at %d", i)
				}
			}
		})
	}
}

func TestGroupRejectsRequestLargerThanBudget(t *testing.T) {
	tests := []struct {
		name      string
		maxPacket int
		write     bool
	}{
		{"read below one request", 10, false},
		{"read one byte short", 8 + 32 - 1, false},
		{"write below one request", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, list := helloGroup(t, 2, tt.maxPacket)
			var err error
			if tt.write {
				list[1].SetValue(7)
				_, err = g.WriteRequests()
			} else {
				_, err = g.ReadRequests()
			}
			if !errors.Is(err, ErrRequestTooLarge) {
				t.Fatalf("error = %v, want ErrRequestTooLarge", err)
			}
			want := list[0]
			if tt.write {
				want = list[1]
			}
			if !strings.Contains(err.Error(), want.FullName()) {
				t.Errorf("error %q does not name %s", err, want.FullName())
			}
		})
	}
}

func TestGroupLookup(t *testing.T) {
	g, list := helloGroup(t, 3, 0)
	if got := g.Get(list[0].ID()); got != list[0] {
		t.Errorf("Get() = %v", got)
	}
	if got := g.Get("non-existent-id"); got != nil {
		t.Errorf("Get(unknown) = %v, want nil", got)
	}
	if got := g.Lookup("helloTag2", "prog"); got != list[1] {
		t.Errorf("Lookup() = %v", got)
	}
	if got := g.Lookup("helloTag2", ""); got != nil {
		t.Errorf("Lookup(wrong scope) = %v", got)
	}
	if err := g.Add(mustTag(t, "helloTag1", "prog", spec.TypeDINT)); !errors.Is(err, ErrDuplicateTag) {
		t.Errorf("Add(duplicate) error = %v", err)
	}

	if !g.Remove(list[0].ID()) || g.Len() != 2 {
		t.Fatal("Remove() failed")
	}
	if got := g.Lookup("helloTag3", "prog"); got != list[2] {
		t.Error("index not rebuilt after Remove")
	}
}

func TestGroupApplyReadResponses(t *testing.T) {
	g, list := helloGroup(t, 2, 0)
	reqs, err := g.ReadRequests()
	if err != nil {
		t.Fatal(err)
	}
	responses := []protocol.CIPResponse{
		{Service: 0xCC, Payload: []byte{0xC3, 0x00, 0xF1, 0xD8}},
		{Service: 0xCC, GeneralStatus: 0x04, ExtStatusLength: 1, ExtStatus: []uint16{0}},
	}
	err = g.ApplyReadResponses(reqs[0], responses)
	var cipErr *status.Error
	if !errors.As(err, &cipErr) || cipErr.GeneralStatus != 0x04 {
		t.Fatalf("ApplyReadResponses() error = %v", err)
	}
	if list[0].Value() != int16(-9999) || list[0].Err() != nil {
		t.Errorf("tag 1 = %v, %v", list[0].Value(), list[0].Err())
	}
	if list[1].Err() == nil {
		t.Error("tag 2 should record its failure")
	}

	if err := g.ApplyReadResponses(reqs[0], responses[:1]); err == nil {
		t.Error("expected error for reply count mismatch")
	}
}
