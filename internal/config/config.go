package config

// Configuration loading and validation for enipctl

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tonylturner/enipctl/internal/cip/connmgr"
	"github.com/tonylturner/enipctl/internal/cip/epath"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/errors"
	"github.com/tonylturner/enipctl/internal/logging"
	"github.com/tonylturner/enipctl/internal/tags"
)

// Defaults applied by Load and Default.
const (
	DefaultPort                   = 44818
	DefaultRPIMicros              = 10000
	DefaultConnectionSize         = 500
	DefaultMaxPacketSize          = 500
	DefaultRequestTimeout         = 10 * time.Second
	DefaultUnconnectedSendTimeout = 2000 * time.Millisecond
	DefaultScanRate               = 200 * time.Millisecond
	DefaultWriteReadDelay         = 10 * time.Millisecond
	DefaultDiscoveryListen        = "0.0.0.0:51687"
	DefaultDiscoveryBroadcast     = "255.255.255.255:44818"
	DefaultUpdateRate             = 3 * time.Second
	DefaultDisconnectMultiplier   = 4

	// MaxLargeConnectionSize caps connection_size when large_forward_open is set.
	MaxLargeConnectionSize = 4000
)

// ControllerConfig describes how to reach the controller.
type ControllerConfig struct {
	Address                string        `yaml:"address"`
	Slot                   uint8         `yaml:"slot"`
	RoutePathHex           string        `yaml:"route_path_hex,omitempty"`
	ConnectedMessaging     *bool         `yaml:"connected_messaging,omitempty"`
	LargeForwardOpen       bool          `yaml:"large_forward_open"`
	RPIMicros              int           `yaml:"rpi_us"`
	ConnectionSize         int           `yaml:"connection_size"`
	RequestTimeout         time.Duration `yaml:"request_timeout"`
	UnconnectedSendTimeout time.Duration `yaml:"unconnected_send_timeout"`
	MaxPacketSize          int           `yaml:"max_packet_size"`
}

// Connected reports whether explicit connected messaging is enabled.
func (c ControllerConfig) Connected() bool {
	return c.ConnectedMessaging == nil || *c.ConnectedMessaging
}

// HostPort splits Address, applying the default EtherNet/IP port.
func (c ControllerConfig) HostPort() (string, int, error) {
	host, portStr, err := net.SplitHostPort(c.Address)
	if err != nil {
		// No port given.
		return c.Address, DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

// Endpoint returns host:port for dialing.
func (c ControllerConfig) Endpoint() string {
	host, port, err := c.HostPort()
	if err != nil {
		return c.Address
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// RoutePath returns the PORT segments that reach the processor: the explicit
// route_path_hex when set, otherwise backplane port 1 at Slot.
func (c ControllerConfig) RoutePath() ([]byte, error) {
	if c.RoutePathHex == "" {
		return epath.BuildPort(1, int(c.Slot))
	}
	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(c.RoutePathHex)
	path, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode route_path_hex: %w", err)
	}
	return path, nil
}

// PollTag is one tag scanned by the poll loop.
type PollTag struct {
	Name     string `yaml:"name"`
	Program  string `yaml:"program,omitempty"`
	Type     string `yaml:"type,omitempty"`
	Elements int    `yaml:"elements,omitempty"`
}

// PollConfig drives the scan loop.
type PollConfig struct {
	ScanRate       time.Duration `yaml:"scan_rate"`
	WriteReadDelay time.Duration `yaml:"write_read_delay"`
	Tags           []PollTag     `yaml:"tags"`
}

// DiscoveryConfig drives the ListIdentity browser.
type DiscoveryConfig struct {
	Listen               string        `yaml:"listen"`
	Broadcast            string        `yaml:"broadcast"`
	UpdateRate           time.Duration `yaml:"update_rate"`
	DisconnectMultiplier int           `yaml:"disconnect_multiplier"`
}

// LoggingConfig selects log verbosity and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file,omitempty"`
	Format string `yaml:"format,omitempty"` // "text" or "json"
}

// Config represents the enipctl configuration file.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Poll       PollConfig       `yaml:"poll"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default creates a default configuration.
func Default() *Config {
	cfg := &Config{
		Controller: ControllerConfig{
			Address: "192.168.1.10",
		},
		Poll: PollConfig{
			Tags: []PollTag{
				{Name: "counter", Type: "DINT"},
				{Name: "setpoint", Program: "MainProgram", Type: "REAL"},
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	c := &cfg.Controller
	if c.ConnectedMessaging == nil {
		enabled := true
		c.ConnectedMessaging = &enabled
	}
	if c.RPIMicros == 0 {
		c.RPIMicros = DefaultRPIMicros
	}
	if c.ConnectionSize == 0 {
		c.ConnectionSize = DefaultConnectionSize
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.UnconnectedSendTimeout == 0 {
		c.UnconnectedSendTimeout = DefaultUnconnectedSendTimeout
	}
	if c.MaxPacketSize == 0 {
		c.MaxPacketSize = DefaultMaxPacketSize
	}

	if cfg.Poll.ScanRate == 0 {
		cfg.Poll.ScanRate = DefaultScanRate
	}
	if cfg.Poll.WriteReadDelay == 0 {
		cfg.Poll.WriteReadDelay = DefaultWriteReadDelay
	}
	for i := range cfg.Poll.Tags {
		if cfg.Poll.Tags[i].Type == "" {
			cfg.Poll.Tags[i].Type = "DINT"
		}
		if cfg.Poll.Tags[i].Elements == 0 {
			cfg.Poll.Tags[i].Elements = 1
		}
	}

	d := &cfg.Discovery
	if d.Listen == "" {
		d.Listen = DefaultDiscoveryListen
	}
	if d.Broadcast == "" {
		d.Broadcast = DefaultDiscoveryBroadcast
	}
	if d.UpdateRate == 0 {
		d.UpdateRate = DefaultUpdateRate
	}
	if d.DisconnectMultiplier == 0 {
		d.DisconnectMultiplier = DefaultDisconnectMultiplier
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// WriteDefault writes a default configuration to a file
func WriteDefault(path string) error {
	return Save(Default(), path)
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Load loads a configuration from a YAML file.
// If the file doesn't exist and autoCreate is true, a default config is written first.
func Load(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
		}
		if !autoCreate {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		if err := WriteDefault(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapConfigError(fmt.Errorf("read created config file: %w", err), path)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a configuration for errors.
func Validate(cfg *Config) error {
	if err := validateController(cfg.Controller); err != nil {
		return err
	}

	if cfg.Poll.ScanRate <= 0 {
		return fmt.Errorf("poll.scan_rate must be > 0")
	}
	if cfg.Poll.WriteReadDelay < 0 {
		return fmt.Errorf("poll.write_read_delay must be >= 0")
	}
	for i, tag := range cfg.Poll.Tags {
		if err := validatePollTag(tag, i); err != nil {
			return err
		}
	}

	if cfg.Discovery.UpdateRate <= 0 {
		return fmt.Errorf("discovery.update_rate must be > 0")
	}
	if cfg.Discovery.DisconnectMultiplier < 1 {
		return fmt.Errorf("discovery.disconnect_multiplier must be >= 1")
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "" && cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got '%s'", cfg.Logging.Format)
	}
	return nil
}

func validateController(c ControllerConfig) error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("controller.address is required")
	}
	if _, _, err := c.HostPort(); err != nil {
		return fmt.Errorf("controller.address: %w", err)
	}
	if c.RoutePathHex != "" {
		path, err := c.RoutePath()
		if err != nil {
			return fmt.Errorf("controller.%w", err)
		}
		if len(path)%2 != 0 {
			return fmt.Errorf("controller.route_path_hex must be an even number of bytes, got %d", len(path))
		}
	}

	limit := connmgr.MaxStandardSize
	if c.LargeForwardOpen {
		limit = MaxLargeConnectionSize
	}
	if c.ConnectionSize < 1 || c.ConnectionSize > limit {
		return fmt.Errorf("controller.connection_size must be between 1 and %d, got %d", limit, c.ConnectionSize)
	}
	if c.RPIMicros <= 0 {
		return fmt.Errorf("controller.rpi_us must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("controller.request_timeout must be > 0")
	}
	if c.UnconnectedSendTimeout <= 0 {
		return fmt.Errorf("controller.unconnected_send_timeout must be > 0")
	}
	if _, _, err := connmgr.EncodeTimeout(int(c.UnconnectedSendTimeout / time.Millisecond)); err != nil {
		return fmt.Errorf("controller.unconnected_send_timeout: %w", err)
	}
	if c.MaxPacketSize < 16 {
		return fmt.Errorf("controller.max_packet_size must be >= 16, got %d", c.MaxPacketSize)
	}
	return nil
}

// validatePollTag validates a single poll tag entry
func validatePollTag(tag PollTag, index int) error {
	if !tags.IsValidTagName(tag.Name) {
		return fmt.Errorf("poll.tags[%d]: invalid tag name '%s'", index, tag.Name)
	}
	if tag.Program != "" && !tags.IsValidTagName(tag.Program) {
		return fmt.Errorf("poll.tags[%d]: invalid program name '%s'", index, tag.Program)
	}
	if _, err := spec.ParseDataType(tag.Type); err != nil {
		return fmt.Errorf("poll.tags[%d]: unknown type '%s'", index, tag.Type)
	}
	if tag.Elements < 1 {
		return fmt.Errorf("poll.tags[%d]: elements must be >= 1", index)
	}
	return nil
}
