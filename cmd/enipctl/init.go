package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/tonylturner/enipctl/internal/config"
)

type initFlags struct {
	output         string
	force          bool
	nonInteractive bool
}

// initAnswers holds the form fields as text until they are applied.
type initAnswers struct {
	address   string
	slot      string
	connected bool
	scanRate  string
	tags      string
}

func newInitCmd(global *globalFlags) *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file",
		Long: `Create an enipctl config file, asking for the controller address, processor
slot, messaging mode, scan rate and the tags to poll.

With --non-interactive the built-in defaults are written without asking.`,
		Example: `  # Answer a few questions and write enipctl.yaml
  enipctl init

  # Write the defaults to another file
  enipctl init --output plant.yaml --non-interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.output == "" {
				flags.output = global.configPath
			}
			return runInit(cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Config file to write (default: --config)")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&flags.nonInteractive, "non-interactive", false, "Write the defaults without asking")

	return cmd
}

func runInit(out io.Writer, flags *initFlags) error {
	if _, err := os.Stat(flags.output); err == nil && !flags.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", flags.output)
	}

	cfg := config.Default()
	if !flags.nonInteractive {
		answers := answersFromConfig(cfg)
		if err := buildInitForm(answers).Run(); err != nil {
			return fmt.Errorf("init form: %w", err)
		}
		if err := applyInitAnswers(cfg, answers); err != nil {
			return err
		}
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(cfg, flags.output); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", flags.output)
	return nil
}

func answersFromConfig(cfg *config.Config) *initAnswers {
	names := make([]string, 0, len(cfg.Poll.Tags))
	for _, t := range cfg.Poll.Tags {
		names = append(names, formatPollTag(t))
	}
	return &initAnswers{
		address:   cfg.Controller.Address,
		slot:      strconv.Itoa(int(cfg.Controller.Slot)),
		connected: cfg.Controller.Connected(),
		scanRate:  cfg.Poll.ScanRate.String(),
		tags:      strings.Join(names, ", "),
	}
}

func buildInitForm(a *initAnswers) *huh.Form {
	controllerGroup := huh.NewGroup(
		huh.NewInput().
			Title("Controller address").
			Description("IP address or host name, optionally with :port (default 44818).").
			Key("address").
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("address is required")
				}
				return nil
			}).
			Value(&a.address),
		huh.NewInput().
			Title("Processor slot").
			Description("Backplane slot of the Logix processor.").
			Key("slot").
			Validate(func(s string) error {
				_, err := parseSlot(s)
				return err
			}).
			Value(&a.slot),
		huh.NewConfirm().
			Title("Use connected messaging?").
			Description("Open a Class 3 connection with Forward Open. Falls back to unconnected messaging if refused.").
			Key("connected").
			Value(&a.connected),
	)

	pollGroup := huh.NewGroup(
		huh.NewInput().
			Title("Scan rate").
			Description("Interval between scans for watch (e.g. 500ms, 1s).").
			Key("scan_rate").
			Validate(func(s string) error {
				_, err := time.ParseDuration(strings.TrimSpace(s))
				return err
			}).
			Value(&a.scanRate),
		huh.NewInput().
			Title("Tags to poll").
			Description("Comma separated; NAME[:TYPE] or Program:PROG.NAME[:TYPE].").
			Key("tags").
			Value(&a.tags),
	)

	return huh.NewForm(controllerGroup, pollGroup)
}

// applyInitAnswers copies the form answers into cfg.
func applyInitAnswers(cfg *config.Config, a *initAnswers) error {
	cfg.Controller.Address = strings.TrimSpace(a.address)

	slot, err := parseSlot(a.slot)
	if err != nil {
		return err
	}
	cfg.Controller.Slot = slot

	connected := a.connected
	cfg.Controller.ConnectedMessaging = &connected

	rate, err := time.ParseDuration(strings.TrimSpace(a.scanRate))
	if err != nil {
		return fmt.Errorf("scan rate: %w", err)
	}
	cfg.Poll.ScanRate = rate

	cfg.Poll.Tags = nil
	for _, item := range strings.Split(a.tags, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		cfg.Poll.Tags = append(cfg.Poll.Tags, parsePollTag(item))
	}
	return nil
}

func parseSlot(s string) (uint8, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("slot must be 0-255")
	}
	return uint8(n), nil
}

// parsePollTag parses NAME[:TYPE] with an optional Program:PROG. prefix.
// The type defaults to DINT.
func parsePollTag(s string) config.PollTag {
	pt := config.PollTag{Type: "DINT", Elements: 1}
	if rest, ok := strings.CutPrefix(s, "Program:"); ok {
		if prog, name, found := strings.Cut(rest, "."); found {
			pt.Program = prog
			s = name
		}
	}
	if name, typ, found := strings.Cut(s, ":"); found {
		pt.Name = name
		pt.Type = strings.ToUpper(typ)
	} else {
		pt.Name = s
	}
	return pt
}

func formatPollTag(t config.PollTag) string {
	s := t.Name
	if t.Program != "" {
		s = "Program:" + t.Program + "." + s
	}
	if t.Type != "" {
		s += ":" + t.Type
	}
	return s
}
