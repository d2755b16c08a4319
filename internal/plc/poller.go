package plc

// Scan loop: write pending tag values, wait, then read the whole group.

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/config"
	"github.com/tonylturner/enipctl/internal/metrics"
	"github.com/tonylturner/enipctl/internal/tags"
)

// Snapshot is a copy of one tag's state after a scan.
type Snapshot struct {
	ID      string
	Name    string
	Program string
	Type    spec.DataType
	Value   any
	Updated time.Time
	Err     error
}

// FullName renders the tag including its program scope.
func (s Snapshot) FullName() string {
	if s.Program == "" {
		return s.Name
	}
	return "Program:" + s.Program + "." + s.Name
}

// Poller scans a tag group at a fixed rate while the controller is
// connected.
type Poller struct {
	ctrl           *Controller
	group          *tags.Group
	scanRate       time.Duration
	writeReadDelay time.Duration

	mu       sync.Mutex // guards group and the tags in it
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	scans    int
	lastScan time.Time

	updates chan []Snapshot
}

// NewPoller creates a poller for group. Zero durations in cfg fall back to
// the configuration defaults.
func NewPoller(ctrl *Controller, group *tags.Group, cfg config.PollConfig) *Poller {
	scanRate := cfg.ScanRate
	if scanRate <= 0 {
		scanRate = config.DefaultScanRate
	}
	delay := cfg.WriteReadDelay
	if delay < 0 {
		delay = config.DefaultWriteReadDelay
	}
	return &Poller{
		ctrl:           ctrl,
		group:          group,
		scanRate:       scanRate,
		writeReadDelay: delay,
		updates:        make(chan []Snapshot, 1),
	}
}

// ScanRate returns the interval between scans.
func (p *Poller) ScanRate() time.Duration { return p.scanRate }

// Updates delivers the snapshots of each completed scan. Only the latest
// undelivered scan is kept.
func (p *Poller) Updates() <-chan []Snapshot { return p.updates }

// Scanning reports whether the scan loop is running.
func (p *Poller) Scanning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Scans returns the number of completed scans.
func (p *Poller) Scans() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scans
}

// Start runs the scan loop until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("poller already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	return nil
}

// Stop ends the scan loop and waits for the current scan to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.cancel = nil
		p.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(p.scanRate)
	defer ticker.Stop()

	for {
		if p.ctrl.Connected() {
			if err := p.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				p.ctrl.log.Verbose("Scan failed: %v", err)
			}
		} else {
			p.ctrl.log.Debug("Skipping scan, controller not connected")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ScanOnce writes pending values, waits the write/read delay and reads the
// group.
func (p *Poller) ScanOnce(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	var jitter float64
	if !p.lastScan.IsZero() {
		jitter = math.Abs(float64(start.Sub(p.lastScan)-p.scanRate)) / float64(time.Millisecond)
	}
	p.lastScan = start

	err := p.ctrl.WriteGroup(ctx, p.group)
	if err == nil && p.writeReadDelay > 0 {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(p.writeReadDelay):
		}
	}
	if err == nil {
		err = p.ctrl.ReadGroup(ctx, p.group)
	}
	p.scans++

	p.ctrl.metrics.Record(metrics.Metric{
		Operation:   metrics.OperationScan,
		TargetName:  p.ctrl.endpoint,
		ServiceCode: spec.ServiceName(spec.CIPServiceMultipleService, false),
		RTTMs:       float64(time.Since(start).Microseconds()) / 1000.0,
		JitterMs:    jitter,
	}.FromError(err))

	p.publish(p.snapshotLocked())
	return err
}

func (p *Poller) publish(snaps []Snapshot) {
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- snaps:
	default:
	}
}

// SetValue queues v to be written on the next scan. It returns false when no
// tag has the given id.
func (p *Poller) SetValue(id string, v any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.group.Get(id)
	if t == nil {
		return false
	}
	t.SetValue(v)
	return true
}

// Snapshots returns the current state of every tag in group order.
func (p *Poller) Snapshots() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() []Snapshot {
	list := p.group.Tags()
	out := make([]Snapshot, len(list))
	for i, t := range list {
		out[i] = Snapshot{
			ID:      t.ID(),
			Name:    t.Name(),
			Program: t.Program(),
			Type:    t.Type(),
			Value:   t.Value(),
			Updated: t.Updated(),
			Err:     t.Err(),
		}
	}
	return out
}
