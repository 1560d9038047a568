package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"elicit/internal/annotations"
	"elicit/internal/api"
	"elicit/internal/config"
	"elicit/internal/language"
)

func newAnnotationsCommand(ctx *commandContext) *cobra.Command {
	annotationsCmd := &cobra.Command{
		Use:     "annotations",
		Aliases: []string{"annotation"},
		Short:   "Inspect annotation jobs",
	}
	annotationsCmd.AddCommand(newAnnotationsListCommand(ctx))
	annotationsCmd.AddCommand(newAnnotationsShowCommand(ctx))
	return annotationsCmd
}

func newAnnotationsListCommand(ctx *commandContext) *cobra.Command {
	var mediaID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List annotation jobs and their stage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store annotations.Store) error {
				jobs, err := store.ListJobs(cmd.Context(), mediaID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No annotations found")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, dto := range api.FromJobs(jobs) {
					rows = append(rows, []string{
						strconv.FormatInt(dto.ID, 10),
						strconv.FormatInt(dto.MediaID, 10),
						formatSeconds(dto.StartTime) + " - " + formatSeconds(dto.EndTime),
						dto.Transcription.Status,
						dto.Enhancement.Status,
						truncate(dto.Transcription.Text, 48),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Media", "Range", "Transcription", "Enhancement", "Transcript"}, rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&mediaID, "media", 0, "Only list annotations for this media id")
	return cmd
}

func newAnnotationsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one annotation with its full transcripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid annotation id %q", args[0])
			}
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store annotations.Store) error {
				job, err := store.GetJob(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("annotation %d: %w", id, err)
				}
				dto := api.FromJob(job)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Annotation %d (media %d)\n", dto.ID, dto.MediaID)
				fmt.Fprintf(out, "Range: %s - %s\n", formatSeconds(dto.StartTime), formatSeconds(dto.EndTime))
				if dto.Language != "" {
					fmt.Fprintf(out, "Language: %s (%s)\n", language.DisplayName(dto.Language), dto.Language)
				}
				printStage(out, "Transcription", dto.Transcription)
				printStage(out, "Enhancement", dto.Enhancement)
				return nil
			})
		},
	}
}

func printStage(out io.Writer, label string, stage api.StageState) {
	fmt.Fprintf(out, "\n%s: %s\n", label, stage.Status)
	if stage.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", stage.Error)
	}
	if stage.Text != "" {
		fmt.Fprintf(out, "  %s\n", strings.ReplaceAll(stage.Text, "\n", "\n  "))
	}
}
