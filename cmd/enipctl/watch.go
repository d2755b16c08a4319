package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tonylturner/enipctl/internal/config"
	"github.com/tonylturner/enipctl/internal/plc"
	"github.com/tonylturner/enipctl/internal/tui"
)

type watchFlags struct {
	program  string
	scanRate time.Duration
	noTUI    bool
	fetch    bool
}

func newWatchCmd(global *globalFlags) *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch [TAG...]",
		Short: "Poll tags and show them live",
		Long: `Poll the tags listed under poll.tags in the config file, plus any named on
the command line, at poll.scan_rate and show the values in a live table.

In the table, enter edits the selected tag. The new value is written on the
next scan, poll.write_read_delay before the group is read back. y copies the
selected tag and value to the clipboard.`,
		Example: `  # Watch the tags from enipctl.yaml
  enipctl watch

  # Watch two tags every 250ms without the config file
  enipctl watch counter setpoint --address 192.168.1.10 --scan-rate 250ms

  # Print scans to stdout instead of the table
  enipctl watch counter --no-tui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runWatch(cmd, global, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.program, "program", "p", "", "Program scope of the tags named on the command line")
	cmd.Flags().DurationVar(&flags.scanRate, "scan-rate", 0, "Scan interval (overrides config)")
	cmd.Flags().BoolVar(&flags.noTUI, "no-tui", false, "Print each scan instead of the live table")
	cmd.Flags().BoolVar(&flags.fetch, "fetch-tags", false, "Upload the tag list first to learn tag types")

	return cmd
}

func runWatch(cmd *cobra.Command, global *globalFlags, flags *watchFlags, names []string) (err error) {
	rt, err := global.setup(true)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	defer func() {
		if cerr := rt.close(out); err == nil {
			err = cerr
		}
	}()

	pollCfg := rt.cfg.Poll
	for _, name := range names {
		pollCfg.Tags = append(pollCfg.Tags, config.PollTag{Name: name, Program: flags.program})
	}
	if len(pollCfg.Tags) == 0 {
		return missingArgError(cmd, "TAG")
	}
	if flags.scanRate > 0 {
		pollCfg.ScanRate = flags.scanRate
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	ctrl, err := rt.connect(ctx, "watch", flags.fetch)
	if err != nil {
		return err
	}

	group := ctrl.NewGroup()
	for _, pt := range pollCfg.Tags {
		t, err := ctrl.NewTag(pt)
		if err != nil {
			return fmt.Errorf("%s: %w", pt.Name, err)
		}
		if err := group.Add(t); err != nil {
			return err
		}
	}

	poller := plc.NewPoller(ctrl, group, pollCfg)
	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer poller.Stop()

	if flags.noTUI {
		printScans(ctx.Done(), out, poller)
		return nil
	}
	return tui.RunWatch(ctx, poller, ctrl.Endpoint())
}

// printScans writes every published scan until done is closed.
func printScans(done <-chan struct{}, out io.Writer, src tui.Source) {
	for {
		select {
		case <-done:
			return
		case snaps := <-src.Updates():
			fmt.Fprintf(out, "--- scan %d at %s\n", src.Scans(), time.Now().Format("15:04:05.000"))
			for _, s := range snaps {
				if s.Err != nil {
					fmt.Fprintf(out, "%s: error: %v\n", s.FullName(), s.Err)
					continue
				}
				fmt.Fprintf(out, "%s (%s) = %v\n", s.FullName(), s.Type, s.Value)
			}
		}
	}
}
