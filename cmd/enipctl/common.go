package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tonylturner/enipctl/internal/config"
	"github.com/tonylturner/enipctl/internal/errors"
	"github.com/tonylturner/enipctl/internal/logging"
	"github.com/tonylturner/enipctl/internal/metrics"
	"github.com/tonylturner/enipctl/internal/plc"
)

const defaultConfigPath = "enipctl.yaml"

// globalFlags are the persistent flags shared by every command that talks to
// a controller.
type globalFlags struct {
	configPath  string
	address     string
	slot        int
	unconnected bool
	timeout     time.Duration
	logLevel    string
	logFile     string
	stats       bool
	metricsFile string
}

func (f *globalFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", defaultConfigPath, "Config file (optional unless it names a non-default path)")
	pf.StringVarP(&f.address, "address", "a", "", "Controller address host[:port] (overrides config)")
	pf.IntVar(&f.slot, "slot", -1, "Processor slot on the backplane (overrides config)")
	pf.BoolVar(&f.unconnected, "unconnected", false, "Skip Forward Open and use unconnected messaging")
	pf.DurationVar(&f.timeout, "timeout", 0, "Request timeout (overrides config)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: silent|error|info|verbose|debug")
	pf.StringVar(&f.logFile, "log-file", "", "Also write the log to this file")
	pf.BoolVar(&f.stats, "stats", false, "Print request statistics on exit")
	pf.StringVar(&f.metricsFile, "metrics-file", "", "Write per-request metrics to a CSV file")
}

// loadConfig reads the config file and applies flag overrides. A missing
// file at the default path yields the built-in defaults with no address.
func (f *globalFlags) loadConfig(requireController bool) (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(f.configPath); err == nil {
		if cfg, err = config.Load(f.configPath, false); err != nil {
			return nil, err
		}
	} else if f.configPath != defaultConfigPath {
		return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", f.configPath), f.configPath)
	} else {
		cfg = config.Default()
		cfg.Controller.Address = ""
		cfg.Poll.Tags = nil
	}

	c := &cfg.Controller
	if f.address != "" {
		c.Address = f.address
	}
	if f.slot >= 0 {
		if f.slot > 255 {
			return nil, fmt.Errorf("--slot %d out of range 0-255", f.slot)
		}
		c.Slot = uint8(f.slot)
		c.RoutePathHex = ""
	}
	if f.unconnected {
		off := false
		c.ConnectedMessaging = &off
	}
	if f.timeout > 0 {
		c.RequestTimeout = f.timeout
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFile != "" {
		cfg.Logging.File = f.logFile
	}

	if !requireController && strings.TrimSpace(c.Address) == "" {
		return cfg, nil
	}
	if err := config.Validate(cfg); err != nil {
		if strings.TrimSpace(c.Address) == "" {
			return nil, fmt.Errorf("%w (set it in %s or pass --address)", err, f.configPath)
		}
		return nil, errors.WrapConfigError(err, f.configPath)
	}
	return cfg, nil
}

// runtime holds what a command needs to talk to a controller.
type runtime struct {
	flags *globalFlags
	cfg   *config.Config
	log   *logging.Logger
	sink  *metrics.Sink
	ctrl  *plc.Controller
}

func (f *globalFlags) setup(requireController bool) (*runtime, error) {
	cfg, err := f.loadConfig(requireController)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLoggerWithOptions(level, cfg.Logging.File, cfg.Logging.Format, 1)
	if err != nil {
		return nil, err
	}
	return &runtime{flags: f, cfg: cfg, log: logger, sink: metrics.NewSink()}, nil
}

// connect creates the controller and opens the session.
func (r *runtime) connect(ctx context.Context, command string, fetchTags bool) (*plc.Controller, error) {
	ctrl, err := plc.New(r.cfg.Controller, r.log, r.sink)
	if err != nil {
		return nil, err
	}
	host, port, _ := r.cfg.Controller.HostPort()
	r.log.LogStartup(command, host, port, int(r.cfg.Controller.Slot), r.cfg.Controller.Connected(), r.flags.configPath)
	if err := ctrl.Connect(ctx, fetchTags); err != nil {
		return nil, err
	}
	r.ctrl = ctrl
	return ctrl, nil
}

// close disconnects, then writes the metrics file and the statistics when
// requested.
func (r *runtime) close(out io.Writer) error {
	defer r.log.Close()
	if r.ctrl != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.ctrl.Disconnect(ctx); err != nil {
			r.log.Verbose("Disconnect: %v", err)
		}
		cancel()
	}

	if r.flags.metricsFile != "" {
		w, err := metrics.NewWriter(r.flags.metricsFile)
		if err != nil {
			return err
		}
		for _, m := range r.sink.GetMetrics() {
			if err := w.WriteMetric(m); err != nil {
				w.Close()
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	if r.flags.stats {
		fmt.Fprintf(out, "\n%s", metrics.FormatSummary(r.sink.GetSummary()))
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func validateOutput(output string) error {
	if output != "text" && output != "json" {
		return fmt.Errorf("invalid output format '%s'; must be 'text' or 'json'", output)
	}
	return nil
}
