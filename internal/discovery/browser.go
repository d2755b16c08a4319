package discovery

// EtherNet/IP device discovery with broadcast ListIdentity requests.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tonylturner/enipctl/internal/cip/client"
	"github.com/tonylturner/enipctl/internal/config"
	"github.com/tonylturner/enipctl/internal/enip"
	"github.com/tonylturner/enipctl/internal/logging"
)

const (
	eventBuffer = 64
	readTimeout = 250 * time.Millisecond
)

// EventType identifies a browser event.
type EventType int

const (
	EventNewDevice EventType = iota
	EventBroadcastRequest
	EventDeviceDisconnected
	EventDeviceListUpdated
)

func (e EventType) String() string {
	switch e {
	case EventNewDevice:
		return "New Device"
	case EventBroadcastRequest:
		return "Broadcast Request"
	case EventDeviceDisconnected:
		return "Device Disconnected"
	case EventDeviceListUpdated:
		return "Device List Updated"
	default:
		return fmt.Sprintf("EventType(%d)", int(e))
	}
}

// Device is one responder to ListIdentity.
type Device struct {
	enip.Identity
	// Source is the address the reply came from.
	Source   string    `json:"source"`
	LastSeen time.Time `json:"last_seen"`
}

// Key returns the address the device is tracked by: the socket address it
// reports, or the reply source when it reports none.
func (d Device) Key() string {
	if addr := d.SocketAddress.Address; addr != "" && addr != "0.0.0.0" {
		return addr
	}
	return d.Source
}

// Event is emitted on the browser's event channel. Device is set for
// NewDevice and DeviceDisconnected, Devices for DeviceListUpdated.
type Event struct {
	Type    EventType
	Device  Device
	Devices []Device
}

// Browser periodically broadcasts ListIdentity and tracks the devices that
// answer. Devices silent for UpdateRate*DisconnectMultiplier are dropped.
type Browser struct {
	cfg       config.DiscoveryConfig
	log       *logging.Logger
	transport *client.UDPTransport
	events    chan Event

	mu      sync.Mutex
	devices []Device
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a browser. Zero fields of cfg take the configuration defaults.
func New(cfg config.DiscoveryConfig, logger *logging.Logger) *Browser {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultDiscoveryListen
	}
	if cfg.Broadcast == "" {
		cfg.Broadcast = config.DefaultDiscoveryBroadcast
	}
	if cfg.UpdateRate <= 0 {
		cfg.UpdateRate = config.DefaultUpdateRate
	}
	if cfg.DisconnectMultiplier <= 0 {
		cfg.DisconnectMultiplier = config.DefaultDisconnectMultiplier
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Browser{
		cfg:       cfg,
		log:       logger,
		transport: client.NewUDPTransport(cfg.Listen),
		events:    make(chan Event, eventBuffer),
	}
}

// Events returns the event channel. Events are dropped when it is full.
func (b *Browser) Events() <-chan Event { return b.events }

// Start binds the socket, broadcasts immediately and then every UpdateRate.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return fmt.Errorf("browser already started")
	}
	if err := b.transport.Connect(ctx, b.cfg.Broadcast); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("bind discovery socket %s: %w", b.cfg.Listen, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	now := time.Now()
	for i := range b.devices {
		b.devices[i].LastSeen = now
	}
	b.mu.Unlock()

	b.log.Verbose("Discovery listening on %s, broadcasting to %s every %s",
		b.transport.LocalAddr(), b.cfg.Broadcast, b.cfg.UpdateRate)

	b.wg.Add(2)
	go b.receiveLoop(ctx)
	go b.broadcastLoop(ctx)
	return nil
}

// Stop ends browsing and closes the socket. The device list is kept.
func (b *Browser) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	_ = b.transport.Disconnect()
	b.wg.Wait()
}

// Devices returns the known devices in discovery order.
func (b *Browser) Devices() []Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Device(nil), b.devices...)
}

func (b *Browser) broadcastLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.UpdateRate)
	defer ticker.Stop()

	for {
		b.prune(time.Now())
		if err := b.transport.Send(ctx, enip.ListIdentity()); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Error("ListIdentity broadcast failed: %v", err)
		} else {
			b.emit(Event{Type: EventBroadcastRequest})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Browser) receiveLoop(ctx context.Context) {
	defer b.wg.Done()
	for ctx.Err() == nil {
		frame, from, err := b.transport.ReceiveFrom(readTimeout)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || !b.transport.IsConnected() {
				return
			}
			b.log.Debug("Discovery receive: %v", err)
			continue
		}
		source := ""
		if from != nil {
			source = from.IP.String()
		}
		b.handleReply(frame, source, time.Now())
	}
}

// handleReply records a ListIdentity reply. Other frames, including our own
// looped back broadcast, are ignored.
func (b *Browser) handleReply(frame []byte, source string, now time.Time) {
	encap, err := enip.DecodeENIP(frame)
	if err != nil || encap.Command != enip.CommandListIdentity || len(encap.Data) == 0 {
		return
	}
	id, err := enip.ParseListIdentity(frame)
	if err != nil {
		b.log.Debug("Ignoring ListIdentity reply from %s: %v", source, err)
		return
	}
	dev := Device{Identity: id, Source: source, LastSeen: now}

	b.mu.Lock()
	idx := -1
	for i, d := range b.devices {
		if d.Key() == dev.Key() {
			idx = i
			break
		}
	}
	if idx >= 0 {
		b.devices[idx] = dev
		b.mu.Unlock()
		return
	}
	b.devices = append(b.devices, dev)
	list := append([]Device(nil), b.devices...)
	b.mu.Unlock()

	b.log.Verbose("New device %s at %s", dev.ProductName, dev.Key())
	b.emit(Event{Type: EventNewDevice, Device: dev})
	b.emit(Event{Type: EventDeviceListUpdated, Devices: list})
}

// prune drops devices not seen within UpdateRate*DisconnectMultiplier.
func (b *Browser) prune(now time.Time) {
	limit := b.cfg.UpdateRate * time.Duration(b.cfg.DisconnectMultiplier)

	b.mu.Lock()
	var gone []Device
	kept := b.devices[:0]
	for _, d := range b.devices {
		if now.Sub(d.LastSeen) > limit {
			gone = append(gone, d)
			continue
		}
		kept = append(kept, d)
	}
	b.devices = kept
	list := append([]Device(nil), kept...)
	b.mu.Unlock()

	for _, d := range gone {
		b.log.Verbose("Device %s at %s disconnected", d.ProductName, d.Key())
		b.emit(Event{Type: EventDeviceDisconnected, Device: d})
	}
	if len(gone) > 0 {
		b.emit(Event{Type: EventDeviceListUpdated, Devices: list})
	}
}

func (b *Browser) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
		b.log.Debug("Dropping %s event, channel full", ev.Type)
	}
}
