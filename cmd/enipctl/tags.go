package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"github.com/tonylturner/enipctl/internal/taglist"
)

type tagsFlags struct {
	program string
	output  string
	copy    bool
}

func newTagsCmd(global *globalFlags) *cobra.Command {
	flags := &tagsFlags{}

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List the controller's tags",
		Long: `Upload the controller scoped and program scoped tag list with the Symbol
object and print each tag with its data type and array dimensions.

System and module-defined tags are skipped.`,
		Example: `  # List every tag
  enipctl tags --address 192.168.1.10

  # List one program's tags and copy the names to the clipboard
  enipctl tags --program MainProgram --copy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runTags(cmd, global, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.program, "program", "p", "", "Only list tags of this program (\"-\" for controller scope)")
	cmd.Flags().StringVar(&flags.output, "output", "text", "Output format: text|json")
	cmd.Flags().BoolVar(&flags.copy, "copy", false, "Copy the listed tag names to the clipboard")

	return cmd
}

func runTags(cmd *cobra.Command, global *globalFlags, flags *tagsFlags) (err error) {
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

	ctrl, err := rt.connect(ctx, "tags", true)
	if err != nil {
		return err
	}

	entries := filterTags(ctrl.TagList().Tags(), flags.program)
	if err := printTags(out, entries, flags.output); err != nil {
		return err
	}
	if flags.copy {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.FullName())
		}
		if err := clipboard.WriteAll(strings.Join(names, "\n")); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		rt.log.Info("Copied %d tag names to the clipboard", len(names))
	}
	return nil
}

// filterTags keeps the tags of one program. "-" selects controller scope and
// an empty program keeps everything.
func filterTags(entries []taglist.Entry, program string) []taglist.Entry {
	if program == "" {
		return entries
	}
	if program == "-" {
		program = ""
	}
	var out []taglist.Entry
	for _, e := range entries {
		if strings.EqualFold(e.Program, program) {
			out = append(out, e)
		}
	}
	return out
}

func printTags(out io.Writer, entries []taglist.Entry, output string) error {
	if output == "json" {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintf(out, "%s\n", data)
		return nil
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No tags\n")
		return nil
	}
	width := 0
	for _, e := range entries {
		if n := len(e.FullName()); n > width {
			width = n
		}
	}
	for _, e := range entries {
		dims := ""
		if e.Type.ArrayDims > 0 {
			dims = fmt.Sprintf(" [%dD]", e.Type.ArrayDims)
		}
		fmt.Fprintf(out, "%-*s  %s%s\n", width, e.FullName(), e.Type.Name(), dims)
	}
	fmt.Fprintf(out, "\n%d tag(s)\n", len(entries))
	return nil
}
