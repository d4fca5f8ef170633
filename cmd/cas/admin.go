package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cas-go/internal/app"
)

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage and deduplication statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "GetStorageStats", func(ctx context.Context, a *app.CasApp) error {
			s, err := a.GetStorageStats(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Files:              %s\n", humanize.Comma(s.TotalFiles))
			fmt.Printf("Folders:            %s\n", humanize.Comma(s.TotalFolders))
			fmt.Printf("Versions:           %s\n", humanize.Comma(s.TotalVersions))
			fmt.Printf("Storage used:       %s\n", formatBytes(s.TotalStorageUsed))
			fmt.Printf("Chunk references:   %s\n", humanize.Comma(s.TotalChunks))
			fmt.Printf("Unique chunks:      %s\n", humanize.Comma(s.UniqueChunks))
			fmt.Printf("Stored bytes:       %s\n", formatBytes(s.StoredBytes))
			fmt.Printf("Saved by dedup:     %s\n", formatBytes(s.StorageSaved))
			fmt.Printf("Duplicates avoided: %s\n", humanize.Comma(s.DuplicatesAvoided))
			fmt.Printf("Awaiting GC:        %s\n", humanize.Comma(s.ReclaimableChunks))

			categories := make([]string, 0, len(s.Breakdown))
			for c := range s.Breakdown {
				categories = append(categories, c)
			}
			sort.Strings(categories)
			fmt.Println("\nBy type:")
			for _, c := range categories {
				fmt.Printf("  %-14s %s\n", c, formatBytes(s.Breakdown[c]))
			}
			return nil
		})
	},
}

// gc command
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim chunks no version references",
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")

		return withApp(cmd, "CollectGarbage", func(ctx context.Context, a *app.CasApp) error {
			if watch {
				return a.RunCollector(ctx)
			}

			res, err := a.CollectGarbage(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Reclaimed %d of %d chunk(s), %s; %d skipped\n",
				res.Reclaimed, res.Candidates, formatBytes(res.Bytes), res.Skipped)
			return nil
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(cmd, "GetHistory", func(ctx context.Context, a *app.CasApp) error {
			ops, err := a.GetHistory(ctx, limit)
			if err != nil {
				return err
			}

			if len(ops) == 0 {
				fmt.Println("No operations recorded.")
				return nil
			}

			for _, op := range ops {
				duration := ""
				if op.FinishedAt != nil {
					d := op.FinishedAt.Sub(op.StartedAt)
					duration = d.Truncate(time.Millisecond).String()
				}
				fmt.Printf("#%d  %-16s  %s  %-8s  %-8s  %s\n",
					op.ID,
					op.Operation,
					formatTime(op.StartedAt),
					op.Status,
					duration,
					op.Parameters,
				)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(gcCmd)
	gcCmd.Flags().Bool("watch", false, "Keep sweeping at the configured gc_interval")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
