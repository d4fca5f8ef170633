package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CAS_CONFIG_PATH: config file location (default: ~/.config/cas.toml)
//   - CAS_HOME: base directory for cas data (default: ~/.local/share/cas)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"data_dir":    filepath.Join(baseDir, "db"),
		"vault_dir":   filepath.Join(baseDir, "vault"),
	}, nil
}

// getConfigPath returns the config file path, checking CAS_CONFIG_PATH env var first,
// then falling back to the default ~/.config/cas.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CAS_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "cas.toml"), nil
}

// getBaseDir returns the base directory for cas data, checking CAS_HOME env var first,
// then falling back to the XDG default ~/.local/share/cas.
func getBaseDir() (string, error) {
	if path := os.Getenv("CAS_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "cas"), nil
}
