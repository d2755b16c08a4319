package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/config"
	"github.com/tonylturner/enipctl/internal/plc"
	"github.com/tonylturner/enipctl/internal/tags"
)

type readFlags struct {
	program  string
	typ      string
	elements int
	output   string
}

type readResult struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

func newReadCmd(global *globalFlags) *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read TAG [TAG...]",
		Short: "Read one or more tags",
		Long: `Read tags from the controller.

A single tag is read with Read Tag. Several tags are packed into as few
Multiple Service Packets as the controller.max_packet_size budget allows.
Structure tags are decoded with their template, which needs the tag list, so
the first structure read also fetches it.`,
		Example: `  # Read a controller scoped DINT
  enipctl read counter --address 192.168.1.10

  # Read a program scoped array
  enipctl read temps --program MainProgram --elements 4

  # Read several tags in one request and print JSON
  enipctl read counter setpoint running --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "TAG")
			}
			return runRead(cmd, global, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.program, "program", "p", "", "Program scope of the tags")
	cmd.Flags().StringVarP(&flags.typ, "type", "t", "", "Data type (default from the reply)")
	cmd.Flags().IntVarP(&flags.elements, "elements", "n", 1, "Array elements to read")
	cmd.Flags().StringVar(&flags.output, "output", "text", "Output format: text|json")

	return cmd
}

func runRead(cmd *cobra.Command, global *globalFlags, flags *readFlags, names []string) (err error) {
	if err := validateOutput(flags.output); err != nil {
		return err
	}
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

	ctx, stop := signalContext(cmd)
	defer stop()

	ctrl, err := rt.connect(ctx, "read", false)
	if err != nil {
		return err
	}

	list := make([]*tags.Tag, 0, len(names))
	for _, name := range names {
		t, err := ctrl.NewTag(config.PollTag{Name: name, Program: flags.program, Type: flags.typ, Elements: flags.elements})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		list = append(list, t)
	}

	var readErr error
	if len(list) == 1 {
		readErr = ctrl.ReadTag(ctx, list[0])
	} else {
		group := ctrl.NewGroup()
		for _, t := range list {
			if err := group.Add(t); err != nil {
				return err
			}
		}
		readErr = ctrl.ReadGroup(ctx, group)
	}

	results, failed := collectReads(ctx, ctrl, list, readErr)
	if err := printReads(out, results, flags.output); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reads failed", failed, len(results))
	}
	return nil
}

// collectReads renders each tag's value, decoding structures with their
// template. Tags that never received a reply report readErr.
func collectReads(ctx context.Context, ctrl *plc.Controller, list []*tags.Tag, readErr error) ([]readResult, int) {
	results := make([]readResult, 0, len(list))
	failed := 0
	for _, t := range list {
		res := readResult{Name: t.FullName(), Type: t.Type().String(), Value: t.Value()}
		err := t.Err()
		if err == nil && t.Updated().IsZero() {
			err = readErr
			if err == nil {
				err = fmt.Errorf("no reply")
			}
		}
		if err == nil && t.Type() == spec.TypeStructHandle {
			if len(ctrl.TagList().Tags()) == 0 {
				_, err = ctrl.FetchTagList(ctx)
			}
			if err == nil {
				res.Value, err = ctrl.ReadStructure(ctx, t)
			}
			res.Type = "STRUCT"
		}
		if err != nil {
			res.Value = nil
			res.Error = err.Error()
			failed++
		}
		results = append(results, res)
	}
	return results, failed
}

func printReads(out io.Writer, results []readResult, output string) error {
	if output == "json" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintf(out, "%s\n", data)
		return nil
	}
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(out, "%s: error: %s\n", r.Name, r.Error)
			continue
		}
		fmt.Fprintf(out, "%s (%s) = %v\n", r.Name, r.Type, r.Value)
	}
	return nil
}
