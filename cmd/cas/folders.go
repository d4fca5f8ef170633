package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cas-go/internal/app"
)

// mkdir command
var mkdirCmd = &cobra.Command{
	Use:   "mkdir NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentID, _ := cmd.Flags().GetString("parent")
		folderColor, _ := cmd.Flags().GetString("color")

		return withApp(cmd, "CreateFolder", func(ctx context.Context, a *app.CasApp) error {
			f, err := a.CreateFolder(ctx, args[0], parentID, folderColor)
			if err != nil {
				return err
			}
			fmt.Printf("Created folder %s (%s)\n", f.Name, f.ID)
			return nil
		})
	},
}

// mvdir command
var mvdirCmd = &cobra.Command{
	Use:   "mvdir FOLDER_ID PARENT_ID",
	Short: `Move a folder under another folder ("" for the root)`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "MoveFolder", func(ctx context.Context, a *app.CasApp) error {
			return a.MoveFolder(ctx, args[0], args[1])
		})
	},
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
	mkdirCmd.Flags().String("parent", "", "Parent folder ID (default: root)")
	mkdirCmd.Flags().String("color", "", "Folder color")

	rootCmd.AddCommand(mvdirCmd)
}
