package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/taglist"
)

type templateFlags struct {
	program string
	output  string
}

func newTemplateCmd(global *globalFlags) *cobra.Command {
	flags := &templateFlags{}

	cmd := &cobra.Command{
		Use:   "template TAG",
		Short: "Show the structure layout of a tag",
		Long: `Fetch the Template object of a structure tag and print its members with
their data types and byte offsets.`,
		Example: `  # Show the layout of a UDT tag
  enipctl template recipe --address 192.168.1.10 --program MainProgram`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "TAG")
			}
			return runTemplate(cmd, global, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.program, "program", "p", "", "Program scope of the tag")
	cmd.Flags().StringVar(&flags.output, "output", "text", "Output format: text|json")

	return cmd
}

func runTemplate(cmd *cobra.Command, global *globalFlags, flags *templateFlags, name string) (err error) {
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

	ctrl, err := rt.connect(ctx, "template", true)
	if err != nil {
		return err
	}

	id, ok := ctrl.TagList().TemplateID(name, flags.program)
	if !ok {
		if _, found := ctrl.TagList().GetTag(name, flags.program); found {
			return fmt.Errorf("%s is not a structure", name)
		}
		return fmt.Errorf("tag %s not found", name)
	}
	tmpl, err := ctrl.Template(ctx, id)
	if err != nil {
		return err
	}
	return printTemplate(out, tmpl, flags.output)
}

func printTemplate(out io.Writer, tmpl *taglist.Template, output string) error {
	if output == "json" {
		data, err := json.MarshalIndent(tmpl, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintf(out, "%s\n", data)
		return nil
	}
	fmt.Fprintf(out, "Template %s (id 0x%04X, handle 0x%04X, %d bytes, %d members)\n\n",
		tmpl.Name, tmpl.ID, tmpl.Handle, tmpl.StructureSize, tmpl.MemberCount)
	fmt.Fprintf(out, "  %-6s  %-24s  %-16s  %s\n", "Offset", "Member", "Type", "Info")
	for _, m := range tmpl.Members {
		info := ""
		switch {
		case m.Type.Code == uint16(spec.TypeBOOL) && !m.Type.Structure:
			info = fmt.Sprintf("bit %d", m.Info)
		case m.Info > 0:
			info = fmt.Sprintf("[%d]", m.Info)
		}
		fmt.Fprintf(out, "  %6d  %-24s  %-16s  %s\n", m.Offset, m.Name, m.Type.Name(), info)
	}
	return nil
}
