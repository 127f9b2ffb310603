package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediapipe/internal/api"
	"mediapipe/internal/staging"
	"mediapipe/internal/store"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Inspect uploaded file records",
	}
	filesCmd.AddCommand(newFilesListCommand(ctx))
	filesCmd.AddCommand(newFilesShowCommand(ctx))
	filesCmd.AddCommand(newFilesStatsCommand(ctx))
	filesCmd.AddCommand(newFilesStagedCommand(ctx))
	return filesCmd
}

func newFilesListCommand(ctx *commandContext) *cobra.Command {
	var kindFlag, statusFlag string
	var limit, page int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List file records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := store.ResourceQuery{Page: page, Limit: limit}
			if value := strings.TrimSpace(kindFlag); value != "" {
				kind := store.Kind(strings.ToLower(value))
				if !kind.Valid() {
					return fmt.Errorf("invalid --kind %q (image, audio, other)", value)
				}
				query.Kind = kind
			}
			if value := strings.TrimSpace(statusFlag); value != "" {
				status, ok := store.ParseStatus(value)
				if !ok {
					return fmt.Errorf("invalid --status %q (processing, safe, unsafe)", value)
				}
				query.Status = status
			}

			return ctx.withStore(func(st *store.Store) error {
				result, err := st.ListResources(cmd.Context(), query)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.FromResourcePage(result))
				}
				out := cmd.OutOrStdout()
				if len(result.Items) == 0 {
					printLine(out, "No files")
					return nil
				}
				rows := make([][]string, 0, len(result.Items))
				for _, f := range result.Items {
					rows = append(rows, []string{
						f.ID,
						string(f.Kind),
						string(f.Status),
						f.OriginalName,
						f.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Kind", "Status", "Name", "Created"}, rows))
				printLine(out, "Page %d, %d of %d files", result.Page, len(result.Items), result.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Filter by kind (image, audio, other)")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (processing, safe, unsafe)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newFilesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one file record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				file, err := lookupFile(cmd.Context(), st, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, file.Public())
				}
				out := cmd.OutOrStdout()
				printLine(out, "ID:          %s", file.ID)
				printLine(out, "Kind:        %s", file.Kind)
				printLine(out, "Status:      %s", file.Status)
				printLine(out, "Media type:  %s", valueOrDash(file.MediaType))
				printLine(out, "Name:        %s", valueOrDash(file.OriginalName))
				printLine(out, "URL:         %s", valueOrDash(file.URL))
				if file.BlurredURL != "" {
					printLine(out, "Blurred URL: %s", file.BlurredURL)
				}
				if file.Description != nil {
					printLine(out, "Description: %s", *file.Description)
				}
				if file.StagingPath != "" {
					printLine(out, "Staged at:   %s", file.StagingPath)
				}
				printLine(out, "Created:     %s", file.CreatedAt.Local().Format(time.DateTime))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newFilesStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count file records by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				counts := api.MergeFileStats(stats)
				if jsonOut {
					return writeJSON(cmd, api.StatsResponse{Counts: counts})
				}
				rows := make([][]string, 0, len(counts))
				for _, status := range []store.Status{store.StatusProcessing, store.StatusSafe, store.StatusUnsafe} {
					rows = append(rows, []string{string(status), strconv.Itoa(counts[string(status)])})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Files"}, rows, 2))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newFilesStagedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "staged",
		Short: "List staged uploads and whether a record still owns them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			files, err := staging.ListFiles(cfg.Paths.StagingDir)
			if err != nil {
				return fmt.Errorf("list staging dir: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				printLine(out, "Staging directory is empty")
				return nil
			}
			return ctx.withStore(func(st *store.Store) error {
				ids := make([]string, len(files))
				for i, f := range files {
					ids[i] = staging.IDFromName(f.Name)
				}
				known, err := st.KnownIDs(cmd.Context(), ids)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(files))
				for i, f := range files {
					owner := "orphaned"
					if _, ok := known[ids[i]]; ok {
						owner = "record"
					}
					rows = append(rows, []string{f.Name, strconv.FormatInt(f.Size, 10), f.ModTime.Local().Format(time.DateTime), owner})
				}
				fmt.Fprintln(out, renderTable([]string{"File", "Bytes", "Modified", "Owner"}, rows, 2))
				return nil
			})
		},
	}
}

func lookupFile(ctx context.Context, st *store.Store, id string) (*store.File, error) {
	file, err := st.GetFile(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("file %s not found", id)
	}
	return file, nil
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
