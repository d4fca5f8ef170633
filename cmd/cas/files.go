package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cas-go/internal/app"
)

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload PATH",
	Short: "Upload a file or directory (- reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		folderID, _ := cmd.Flags().GetString("folder")
		fileType, _ := cmd.Flags().GetString("type")
		owner, _ := cmd.Flags().GetString("owner")
		name, _ := cmd.Flags().GetString("name")

		opts := app.UploadOptions{
			FolderID:     folderID,
			DeclaredType: fileType,
			OwnerID:      owner,
			Recursive:    recursive,
			Observe:      showProgress,
		}

		return withApp(cmd, "Upload", func(ctx context.Context, a *app.CasApp) error {
			if args[0] == "-" {
				if name == "" {
					return fmt.Errorf("--name is required when reading stdin")
				}
				res, err := a.UploadStream(ctx, os.Stdin, name, opts)
				if err != nil {
					return err
				}
				printUploadResult(name, res)
				return nil
			}

			uploaded, err := a.Upload(ctx, args[0], opts)
			for _, u := range uploaded {
				printUploadResult(u.Path, u.Result)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded %d file(s)\n", len(uploaded))
			return nil
		})
	},
}

// update command
var updateCmd = &cobra.Command{
	Use:   "update FILE_ID PATH",
	Short: "Upload a new version of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "UpdateFile", func(ctx context.Context, a *app.CasApp) error {
			res, err := a.UpdateFile(ctx, args[0], args[1], showProgress)
			if err != nil {
				return err
			}
			printUploadResult(args[1], res)
			return nil
		})
	},
}

// versions command
var versionsCmd = &cobra.Command{
	Use:   "versions FILE_ID",
	Short: "List the versions of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ListVersions", func(ctx context.Context, a *app.CasApp) error {
			versions, err := a.ListVersions(ctx, args[0])
			if err != nil {
				return err
			}
			for i, v := range versions {
				current := ""
				if i == len(versions)-1 {
					current = "  [current]"
				}
				fmt.Printf("v%-3d %s  %s  %10s  %s  %s%s\n",
					v.Seq,
					v.ID,
					formatTime(v.CreatedAt),
					formatBytes(v.Size),
					shortID(v.Digest),
					v.Note,
					current,
				)
			}
			return nil
		})
	},
}

// restore-version command
var restoreVersionCmd = &cobra.Command{
	Use:   "restore-version FILE_ID VERSION_ID",
	Short: "Make an older version current",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RestoreVersion", func(ctx context.Context, a *app.CasApp) error {
			v, err := a.RestoreVersion(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Restored as v%d: %s\n", v.Seq, v.Note)
			return nil
		})
	},
}

// cat command
var catCmd = &cobra.Command{
	Use:   "cat FILE_ID",
	Short: "Write a file's content to stdout or a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versionID, _ := cmd.Flags().GetString("version")
		output, _ := cmd.Flags().GetString("output")

		return withApp(cmd, "ReadFile", func(ctx context.Context, a *app.CasApp) error {
			if output == "" {
				_, err := a.ReadFile(ctx, args[0], versionID, os.Stdout)
				return err
			}
			v, err := a.ReadFileTo(ctx, args[0], versionID, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote v%d (%s) to %s\n", v.Seq, formatBytes(v.Size), output)
			return nil
		})
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List a folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID, _ := cmd.Flags().GetString("folder")
		recent, _ := cmd.Flags().GetInt("recent")
		starred, _ := cmd.Flags().GetBool("starred")

		return withApp(cmd, "ListFolder", func(ctx context.Context, a *app.CasApp) error {
			switch {
			case recent > 0:
				files, err := a.RecentFiles(ctx, recent)
				if err != nil {
					return err
				}
				for _, f := range files {
					printFile(f)
				}
				return nil
			case starred:
				files, err := a.StarredFiles(ctx)
				if err != nil {
					return err
				}
				for _, f := range files {
					printFile(f)
				}
				return nil
			}

			listing, crumbs, err := a.ListFolder(ctx, folderID)
			if err != nil {
				return err
			}
			names := make([]string, len(crumbs))
			for i, c := range crumbs {
				names[i] = c.Name
			}
			fmt.Println(strings.Join(names, " / "))

			if len(listing.Folders) == 0 && len(listing.Files) == 0 {
				fmt.Println("Empty folder.")
				return nil
			}
			for _, f := range listing.Folders {
				printFolder(f)
			}
			for _, f := range listing.Files {
				printFile(f)
			}
			return nil
		})
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm FILE_ID",
	Short: "Move a file to the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "DeleteFile", func(ctx context.Context, a *app.CasApp) error {
			if err := a.DeleteFile(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Moved %s to trash\n", args[0])
			return nil
		})
	},
}

// star command
var starCmd = &cobra.Command{
	Use:   "star FILE_ID",
	Short: "Toggle the star on a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ToggleStar", func(ctx context.Context, a *app.CasApp) error {
			starred, err := a.ToggleStar(ctx, args[0])
			if err != nil {
				return err
			}
			if starred {
				fmt.Println("Starred")
			} else {
				fmt.Println("Unstarred")
			}
			return nil
		})
	},
}

// share command
var shareCmd = &cobra.Command{
	Use:   "share FILE_ID",
	Short: "Mark a file shared",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")
		return withApp(cmd, "SetShared", func(ctx context.Context, a *app.CasApp) error {
			return a.SetShared(ctx, args[0], !off)
		})
	},
}

// rename command
var renameCmd = &cobra.Command{
	Use:   "rename FILE_ID NAME",
	Short: "Rename a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Rename", func(ctx context.Context, a *app.CasApp) error {
			return a.Rename(ctx, args[0], args[1])
		})
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	uploadCmd.Flags().String("folder", "", "Destination folder ID (default: root)")
	uploadCmd.Flags().String("type", "", "Declared file type (default: from extension)")
	uploadCmd.Flags().String("owner", "", "Owner ID")
	uploadCmd.Flags().String("name", "", "File name when reading stdin")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(restoreVersionCmd)

	rootCmd.AddCommand(catCmd)
	catCmd.Flags().String("version", "", "Version ID (default: current)")
	catCmd.Flags().StringP("output", "o", "", "Write to this path instead of stdout")

	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().String("folder", "", "Folder ID (default: root)")
	lsCmd.Flags().Int("recent", 0, "List the N most recently modified files instead")
	lsCmd.Flags().Bool("starred", false, "List starred files instead")

	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(starCmd)
	rootCmd.AddCommand(shareCmd)
	shareCmd.Flags().Bool("off", false, "Unshare instead")
	rootCmd.AddCommand(renameCmd)
}
