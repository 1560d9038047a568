package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"elicit/internal/annotations"
	"elicit/internal/api"
	"elicit/internal/config"
	"elicit/internal/daemon"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Register and list media files",
	}
	mediaCmd.AddCommand(newMediaAddCommand(ctx))
	mediaCmd.AddCommand(newMediaListCommand(ctx))
	return mediaCmd
}

func newMediaAddCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a local video file for annotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store annotations.Store) error {
				media, err := daemon.RegisterMediaFile(cmd.Context(), store, args[0], title)
				if err != nil {
					return err
				}
				dto := api.FromMedia(media)
				fmt.Fprintf(cmd.OutOrStdout(), "Registered media %d: %s (%s)\n", dto.ID, dto.Title, formatSize(dto.Size))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Display title (derived from the file name when empty)")
	return cmd
}

func newMediaListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered media files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store annotations.Store) error {
				return printMediaList(cmd, store)
			})
		},
	}
}

func printMediaList(cmd *cobra.Command, store annotations.Store) error {
	items, err := store.ListMedia(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No media registered")
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, dto := range api.FromMediaList(items) {
		rows = append(rows, []string{
			strconv.FormatInt(dto.ID, 10),
			dto.Title,
			formatSize(dto.Size),
			dto.Path,
		})
	}
	fmt.Fprintln(out, renderTable(out, []string{"ID", "Title", "Size", "Path"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
	return nil
}
