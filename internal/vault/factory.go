package vault

import (
	"context"
	"fmt"

	"cas-go/internal/cas"
	"cas-go/internal/config"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (cas.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		return NewS3Vault(ctx, cfg)
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		return NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
	case "badger":
		return NewBadgerVault(cfg.Name, cfg.BadgerDir, cfg.BadgerInMemory)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
