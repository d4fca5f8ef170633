package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cas-go/internal/app"
	"cas-go/internal/cas"
	"cas-go/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

// formatError prefixes an error with its kind so scripts and users can
// tell a missing file from a storage outage.
func formatError(err error) string {
	kind := cas.KindOf(err)
	label := color.New(color.FgRed, color.Bold).Sprint("error")
	switch {
	case errors.Is(kind, context.Canceled):
		return fmt.Sprintf("%s: cancelled", label)
	case cas.IsRetryable(err):
		return fmt.Sprintf("%s: %v %s", label, err, color.YellowString("(retryable)"))
	default:
		return fmt.Sprintf("%s: %v", label, err)
	}
}

// newApp reads the config and creates a CasApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Upload", "EmptyTrash").
func newApp(ctx context.Context, operation string) (*app.CasApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewCasApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// withApp runs fn against a fresh CasApp and reports the first error of
// fn or Close.
func withApp(cmd *cobra.Command, operation string, fn func(context.Context, *app.CasApp) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, operation)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	closeErr := a.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

var rootCmd = &cobra.Command{
	Use:           "cas",
	Short:         "Content-addressed file storage",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Generate a new tenant ID
		tenantID := uuid.New().String()

		// Create config with defaults: a local vault, a SQLite index and a
		// filesystem spool, all under the base directory.
		baseDir := defaults["base_dir"]
		cfg := config.NewConfig(tenantID, baseDir)
		cfg.Vaults = []config.VaultConfig{{Type: "filesystem", Name: "local", FSVaultRoot: defaults["vault_dir"]}}
		cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: defaults["data_dir"]}
		cfg.Staging = config.StagingConfig{Type: "filesystem", StagingDir: filepath.Join(baseDir, "staging"), MaxSize: 1 << 30}

		// Initialize config file
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Tenant ID: %s\n", tenantID)
		fmt.Printf("Base Dir:  %s\n", baseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Read config
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		// Display config
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Tenant ID:  %s\n", cfg.TenantID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Chunk Size: %s\n", formatBytes(int64(cfg.Storage.ChunkSize)))
		fmt.Printf("Hash:       %s\n", cfg.Storage.Hash)
		fmt.Printf("GC Mode:    %s\n", cfg.Storage.GCMode)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vault",
}

var configVaultValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the vault is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ValidateVault", func(ctx context.Context, a *app.CasApp) error {
			if err := a.ValidateVault(ctx); err != nil {
				return fmt.Errorf("vault check failed: %w", err)
			}
			fmt.Println(color.GreenString("Vault OK"))
			return nil
		})
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configVaultCmd)
	configVaultCmd.AddCommand(configVaultValidateCmd)

	rootCmd.AddCommand(configCmd)
}
