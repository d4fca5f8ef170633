package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cas-go/internal/app"
	"cas-go/internal/cas"
)

// trash command
var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Manage the trash",
}

var trashListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List trashed files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListTrash", func(ctx context.Context, a *app.CasApp) error {
			entries, err := a.ListTrash(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Trash is empty.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-12s  %10s  deleted %s  %s\n",
					shortID(e.File.ID),
					formatBytes(e.File.Size),
					formatTime(e.DeletedAt),
					color.New(color.Faint).Sprint(e.File.Name),
				)
			}
			return nil
		})
	},
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore FILE_ID",
	Short: "Move a file back out of the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RestoreFromTrash", func(ctx context.Context, a *app.CasApp) error {
			if err := a.RestoreFromTrash(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Restored %s\n", args[0])
			return nil
		})
	},
}

var trashPurgeCmd = &cobra.Command{
	Use:   "purge FILE_ID",
	Short: "Delete a trashed file permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "PurgeFile", func(ctx context.Context, a *app.CasApp) error {
			res, err := a.PurgeFile(ctx, args[0])
			if err != nil {
				return err
			}
			printPurgeResult(res)
			return nil
		})
	},
}

var trashEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Delete every trashed file permanently",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "EmptyTrash", func(ctx context.Context, a *app.CasApp) error {
			res, err := a.EmptyTrash(ctx)
			if err != nil {
				return err
			}
			printPurgeResult(res)
			return nil
		})
	},
}

func printPurgeResult(res cas.PurgeResult) {
	fmt.Printf("Purged %d file(s), %d version(s); reclaimed %d chunk(s), %s\n",
		res.Files, res.Versions, res.Reclaimed, formatBytes(res.ReclaimedBytes))
}

func init() {
	trashCmd.AddCommand(trashListCmd)
	trashCmd.AddCommand(trashRestoreCmd)
	trashCmd.AddCommand(trashPurgeCmd)
	trashCmd.AddCommand(trashEmptyCmd)
	rootCmd.AddCommand(trashCmd)
}
