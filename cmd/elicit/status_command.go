package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"elicit/internal/annotations"
	"elicit/internal/config"
	"elicit/internal/daemon"
	"elicit/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, job, and preflight status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store annotations.Store) error {
				out := cmd.OutOrStdout()

				running, err := daemon.LockHeld(cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Daemon running: %s\n", yesNo(running))
				fmt.Fprintf(out, "API address: %s\n", cfg.Paths.APIBind)
				fmt.Fprintf(out, "Storage: %s\n\n", cfg.Storage.Driver)

				summary, err := store.Summary(cmd.Context())
				if err != nil {
					return fmt.Errorf("job summary: %w", err)
				}
				renderSummary(out, summary)

				results := preflight.RunAll(cmd.Context(), cfg)
				if remote {
					results = append(results, preflight.RunRemote(cmd.Context(), cfg)...)
				}
				fmt.Fprintln(out)
				renderChecks(out, results)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Also probe the remote transcription and enhancement endpoints")
	return cmd
}

func renderSummary(out io.Writer, summary annotations.Summary) {
	headers := []string{"Stage"}
	aligns := []columnAlignment{alignLeft}
	for _, status := range annotations.Statuses {
		headers = append(headers, string(status))
		aligns = append(aligns, alignRight)
	}
	rows := make([][]string, 0, len(annotations.Stages))
	for _, stage := range annotations.Stages {
		row := []string{string(stage)}
		for _, status := range annotations.Statuses {
			row = append(row, strconv.Itoa(summary[stage][status]))
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(out, renderTable(out, headers, rows, aligns))
}

func renderChecks(out io.Writer, results []preflight.Result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		state := "ok"
		if !r.Passed {
			state = "FAIL"
		}
		rows = append(rows, []string{r.Name, state, r.Detail})
	}
	fmt.Fprintln(out, renderTable(out, []string{"Check", "Result", "Detail"}, rows, nil))
}
