package main

import (
	"errors"
	"fmt"

	"callflow-platform/internal/callflow"

	"github.com/spf13/cobra"
)

var errInvalidFlows = errors.New("one or more flows are invalid")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check flow files for structural errors and print warnings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := false
			for _, path := range args {
				f, legacy, err := readFlowFile(path)
				if err != nil {
					return err
				}
				report, err := callflow.ValidateFlow(f)
				if err != nil {
					failed = true
					fmt.Fprintf(out, "%s: INVALID: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "%s: ok, entry %s", path, report.EntryBlockID)
				if legacy {
					fmt.Fprint(out, " (legacy format)")
				}
				fmt.Fprintln(out)
				for _, w := range report.Warnings {
					fmt.Fprintf(out, "  warning %s: %s\n", w.Code, w.Message)
				}
			}
			if failed {
				return errInvalidFlows
			}
			return nil
		},
	}
}
