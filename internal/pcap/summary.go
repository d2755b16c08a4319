package pcap

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Summary counts the traffic in a set of frames.
type Summary struct {
	Frames     int
	Requests   int
	Replies    int
	CIPErrors  int // replies with a non-zero general status
	Commands   map[string]int
	Services   map[string]int
	Sessions   map[uint32]bool
	FirstFrame time.Time
	LastFrame  time.Time
}

// Summarize builds a Summary of frames.
func Summarize(frames []Frame) Summary {
	s := Summary{
		Commands: make(map[string]int),
		Services: make(map[string]int),
		Sessions: make(map[uint32]bool),
	}
	for _, f := range frames {
		s.Frames++
		if f.Request {
			s.Requests++
		} else {
			s.Replies++
		}
		s.Commands[f.Command.String()]++
		if svc := f.Service(); svc != "" && f.Request {
			s.Services[svc]++
		}
		if resp, ok := f.Reply(); ok && !resp.OK() {
			s.CIPErrors++
		}
		if f.SessionID != 0 {
			s.Sessions[f.SessionID] = true
		}
		if !f.Timestamp.IsZero() {
			if s.FirstFrame.IsZero() || f.Timestamp.Before(s.FirstFrame) {
				s.FirstFrame = f.Timestamp
			}
			if f.Timestamp.After(s.LastFrame) {
				s.LastFrame = f.Timestamp
			}
		}
	}
	return s
}

// Format renders the summary as text.
func (s Summary) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frames: %d (%d requests, %d replies)\n", s.Frames, s.Requests, s.Replies)
	fmt.Fprintf(&b, "Sessions: %d\n", len(s.Sessions))
	if !s.FirstFrame.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", s.LastFrame.Sub(s.FirstFrame))
	}
	fmt.Fprintf(&b, "CIP errors: %d\n", s.CIPErrors)
	writeCounts(&b, "Commands", s.Commands)
	writeCounts(&b, "CIP services", s.Services)
	return b.String()
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	fmt.Fprintf(b, "%s:\n", title)
	for _, name := range names {
		fmt.Fprintf(b, "  %-28s %d\n", name, counts[name])
	}
}
