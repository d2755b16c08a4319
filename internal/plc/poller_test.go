package plc

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/tonylturner/enipctl/internal/cip/client"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/config"
	"github.com/tonylturner/enipctl/internal/metrics"
	"github.com/tonylturner/enipctl/internal/tags"
)

func TestPollerWritesThenReads(t *testing.T) {
	ctrl, fake := newFakeController(t, map[string]storedTag{
		"setpoint": {typ: uint16(spec.TypeDINT), data: []byte{0x01, 0x00, 0x00, 0x00}},
	})
	ctrl.metrics = metrics.NewSink()
	connectController(t, ctrl)

	group := ctrl.NewGroup()
	tag, _ := tags.New("setpoint", "", spec.TypeDINT)
	if err := group.Add(tag); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	poller := NewPoller(ctrl, group, config.PollConfig{ScanRate: 10 * time.Millisecond, WriteReadDelay: time.Millisecond})
	if !poller.SetValue(tag.ID(), 99) {
		t.Fatal("SetValue() did not find the tag")
	}
	if poller.SetValue("nope", 1) {
		t.Error("SetValue() accepted an unknown id")
	}

	if err := poller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := poller.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if !poller.Scanning() {
		t.Error("Scanning() = false after Start")
	}

	deadline := time.After(2 * time.Second)
wait:
	for {
		select {
		case snaps := <-poller.Updates():
			if len(snaps) == 1 && snaps[0].Value == int32(99) {
				break wait
			}
		case <-deadline:
			t.Fatal("no scan observed the written value")
		}
	}
	poller.Stop()
	if poller.Scanning() {
		t.Error("Scanning() = true after Stop")
	}
	if got := binary.LittleEndian.Uint32(fake.value("setpoint").data); got != 99 {
		t.Errorf("stored setpoint = %d, want 99", got)
	}

	summary := ctrl.metrics.GetSummary()
	stats, ok := summary.RTTByOperation[metrics.OperationScan]
	if !ok || stats.Count == 0 {
		t.Errorf("no scan metrics recorded: %+v", summary.RTTByOperation)
	}
}

func TestPollerSkipsWhileDisconnected(t *testing.T) {
	ctrl := NewWithSession(client.NewSession(client.Options{}), "plc:44818", nil)
	poller := NewPoller(ctrl, ctrl.NewGroup(), config.PollConfig{ScanRate: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	if err := poller.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	cancel()
	poller.Stop()

	if got := poller.Scans(); got != 0 {
		t.Errorf("Scans() = %d while disconnected, want 0", got)
	}
	if poller.Scanning() {
		t.Error("Scanning() = true after context cancel")
	}
}

func TestNewPollerDefaults(t *testing.T) {
	ctrl := NewWithSession(client.NewSession(client.Options{}), "plc:44818", nil)
	poller := NewPoller(ctrl, ctrl.NewGroup(), config.PollConfig{})
	if poller.ScanRate() != config.DefaultScanRate {
		t.Errorf("ScanRate() = %s, want %s", poller.ScanRate(), config.DefaultScanRate)
	}
	poller.Stop() // no-op before Start
}

func TestSnapshotFullName(t *testing.T) {
	tests := []struct {
		snap Snapshot
		want string
	}{
		{Snapshot{Name: "counter"}, "counter"},
		{Snapshot{Name: "setpoint", Program: "MainProgram"}, "Program:MainProgram.setpoint"},
	}
	for _, tt := range tests {
		if got := tt.snap.FullName(); got != tt.want {
			t.Errorf("FullName() = %q, want %q", got, tt.want)
		}
	}
}
