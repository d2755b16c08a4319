package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/config"
	"github.com/tonylturner/enipctl/internal/tags"
)

type writeFlags struct {
	program string
	typ     string
}

func newWriteCmd(global *globalFlags) *cobra.Command {
	flags := &writeFlags{}

	cmd := &cobra.Command{
		Use:   "write TAG VALUE",
		Short: "Write a tag",
		Long: `Write an atomic tag or array.

Without --type the tag is read first and written with the type the controller
reports. Arrays take a comma separated list; the element count is the list
length. Structure tags cannot be written.`,
		Example: `  # Write a DINT
  enipctl write counter 42 --address 192.168.1.10

  # Write a REAL without the initial read
  enipctl write setpoint 72.5 --program MainProgram --type REAL

  # Write the first three elements of an INT array
  enipctl write recipe 10,20,30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) < 1 {
				return missingArgError(cmd, "TAG")
			}
			if len(args) < 2 {
				return missingArgError(cmd, "VALUE")
			}
			return runWrite(cmd, global, flags, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&flags.program, "program", "p", "", "Program scope of the tag")
	cmd.Flags().StringVarP(&flags.typ, "type", "t", "", "Data type (default: read the tag first)")

	return cmd
}

func runWrite(cmd *cobra.Command, global *globalFlags, flags *writeFlags, name, text string) (err error) {
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

	ctrl, err := rt.connect(ctx, "write", false)
	if err != nil {
		return err
	}

	tag, err := ctrl.NewTag(config.PollTag{Name: name, Program: flags.program, Type: flags.typ})
	if err != nil {
		return err
	}
	if flags.typ == "" {
		if err := ctrl.ReadTag(ctx, tag); err != nil {
			return fmt.Errorf("read %s to learn its type: %w", tag.FullName(), err)
		}
	}
	if tag.Type() == spec.TypeStructHandle {
		return fmt.Errorf("%s is a structure; write its members instead", tag.FullName())
	}

	value, err := tags.ParseValues(tag.Type(), text)
	if err != nil {
		return err
	}
	if list, ok := value.([]any); ok && len(list) > 1 {
		if tag, err = tags.New(tag.Name(), tag.Program(), tag.Type(), tags.WithElements(len(list))); err != nil {
			return err
		}
	}
	if err := ctrl.WriteTag(ctx, tag, value); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s) <- %s\n", tag.FullName(), tag.Type(), text)
	return nil
}
