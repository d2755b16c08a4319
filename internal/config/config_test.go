package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default config",
			mutate: func(*Config) {},
		},
		{
			name:    "empty address",
			mutate:  func(c *Config) { c.Controller.Address = "" },
			wantErr: "controller.address is required",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Controller.Address = "10.0.0.1:notaport" },
			wantErr: "controller.address",
		},
		{
			name:    "connection size beyond standard limit",
			mutate:  func(c *Config) { c.Controller.ConnectionSize = 4000 },
			wantErr: "between 1 and 511",
		},
		{
			name: "connection size allowed with large forward open",
			mutate: func(c *Config) {
				c.Controller.LargeForwardOpen = true
				c.Controller.ConnectionSize = 4000
			},
		},
		{
			name: "connection size beyond large limit",
			mutate: func(c *Config) {
				c.Controller.LargeForwardOpen = true
				c.Controller.ConnectionSize = 4001
			},
			wantErr: "between 1 and 4000",
		},
		{
			name:    "odd route path",
			mutate:  func(c *Config) { c.Controller.RoutePathHex = "010002" },
			wantErr: "even number of bytes",
		},
		{
			name:    "invalid tag name",
			mutate:  func(c *Config) { c.Poll.Tags[0].Name = "4hello" },
			wantErr: "invalid tag name",
		},
		{
			name:    "invalid program name",
			mutate:  func(c *Config) { c.Poll.Tags[0].Program = "9prog" },
			wantErr: "invalid program name",
		},
		{
			name:    "unknown type",
			mutate:  func(c *Config) { c.Poll.Tags[0].Type = "FOO" },
			wantErr: "unknown type",
		},
		{
			name:    "non-positive scan rate",
			mutate:  func(c *Config) { c.Poll.ScanRate = 0 },
			wantErr: "scan_rate",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
controller:
  address: 10.1.1.5:2222
  slot: 3
poll:
  scan_rate: 500ms
  tags:
    - name: counter
    - name: speeds
      program: Line1
      type: real
      elements: 4
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !cfg.Controller.Connected() {
		t.Error("connected messaging should default to true")
	}
	if cfg.Controller.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("request timeout = %v", cfg.Controller.RequestTimeout)
	}
	if cfg.Controller.UnconnectedSendTimeout != 2*time.Second {
		t.Errorf("unconnected send timeout = %v", cfg.Controller.UnconnectedSendTimeout)
	}
	if cfg.Controller.ConnectionSize != 500 || cfg.Controller.MaxPacketSize != 500 {
		t.Errorf("sizes = %d/%d", cfg.Controller.ConnectionSize, cfg.Controller.MaxPacketSize)
	}
	if cfg.Poll.ScanRate != 500*time.Millisecond || cfg.Poll.WriteReadDelay != 10*time.Millisecond {
		t.Errorf("poll timings = %v/%v", cfg.Poll.ScanRate, cfg.Poll.WriteReadDelay)
	}
	if cfg.Poll.Tags[0].Type != "DINT" || cfg.Poll.Tags[0].Elements != 1 {
		t.Errorf("tag defaults = %+v", cfg.Poll.Tags[0])
	}
	if cfg.Discovery.Listen != "0.0.0.0:51687" || cfg.Discovery.DisconnectMultiplier != 4 {
		t.Errorf("discovery defaults = %+v", cfg.Discovery)
	}

	host, port, err := cfg.Controller.HostPort()
	if err != nil || host != "10.1.1.5" || port != 2222 {
		t.Errorf("HostPort() = %s, %d, %v", host, port, err)
	}
	route, err := cfg.Controller.RoutePath()
	if err != nil || !bytes.Equal(route, []byte{0x01, 0x03}) {
		t.Errorf("RoutePath() = %v, %v", route, err)
	}
}

func TestParseDisablesConnectedMessaging(t *testing.T) {
	cfg, err := Parse([]byte("controller:\n  address: plc\n  connected_messaging: false\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Controller.Connected() {
		t.Error("connected messaging should be disabled")
	}
	if got := cfg.Controller.Endpoint(); got != "plc:44818" {
		t.Errorf("Endpoint() = %q", got)
	}
}

func TestRoutePathHex(t *testing.T) {
	c := ControllerConfig{RoutePathHex: "01 00 12 0B"}
	path, err := c.RoutePath()
	if err != nil {
		t.Fatalf("RoutePath() error = %v", err)
	}
	if !bytes.Equal(path, []byte{0x01, 0x00, 0x12, 0x0B}) {
		t.Errorf("RoutePath() = %v", path)
	}
}

func TestLoadAutoCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enipctl.yaml")

	if _, err := Load(path, false); err == nil {
		t.Fatal("expected error for missing config without autoCreate")
	}

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Controller.Address != Default().Controller.Address {
		t.Errorf("address = %q", cfg.Controller.Address)
	}
	if len(cfg.Poll.Tags) != 2 {
		t.Errorf("expected 2 default poll tags, got %d", len(cfg.Poll.Tags))
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round.yaml")
	cfg := Default()
	cfg.Controller.Slot = 2
	cfg.Poll.ScanRate = time.Second
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Controller.Slot != 2 || loaded.Poll.ScanRate != time.Second {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("controller: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, false); err == nil {
		t.Fatal("expected parse error")
	}
}
