package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"video2notes/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check external tools on this machine",
		Long:  "Check the external binaries the pipeline shells out to. This runs locally and does not need the daemon.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			if jsonOutput {
				return writeJSON(cmd, statuses)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderDepsTable(statuses))
			ready, summary := deps.Summarize(statuses)
			kind := statusOK
			if !ready {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine("Dependencies", kind, summary, shouldColorize(out)))
			if !ready {
				return fmt.Errorf("required dependencies missing")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderDepsTable(statuses []deps.Status) string {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		state := "missing"
		if st.Available {
			state = "ok"
		} else if st.Optional {
			state = "missing (optional)"
		}
		rows = append(rows, []string{st.Name, st.Command, state, st.Detail})
	}
	return renderTable([]string{"Tool", "Command", "State", "Detail"}, rows, nil)
}
