// Package vault locates and initializes nota vaults and the scribe
// configuration they carry.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotInVault is returned when no vault encloses the starting directory.
var ErrNotInVault = errors.New("not in a vault")

// ErrNoConfig is returned when a vault has no scribe.yaml, or when
// SCRIBE_CONFIG names a file that does not exist.
var ErrNoConfig = errors.New("no scribe config found")

const (
	// VaultMarkerDir is the directory that marks a vault root.
	VaultMarkerDir = ".nota"
	// VaultConfigFile holds the vault metadata written by Init.
	VaultConfigFile = "vault.json"
	// ScribeConfigFile is the scribe configuration inside VaultMarkerDir.
	ScribeConfigFile = "scribe.yaml"

	// EnvVaultRoot pins the vault root, skipping the directory walk.
	EnvVaultRoot = "NOTA_VAULT_ROOT"
	// EnvScribeConfig names a scribe config file directly.
	EnvScribeConfig = "SCRIBE_CONFIG"
)

// ConfigPath returns where the scribe config of the vault at root lives.
func ConfigPath(root string) string {
	return filepath.Join(root, VaultMarkerDir, ScribeConfigFile)
}

// IsVault reports whether path is a vault root: a .nota directory holding
// either a readable vault.json or a scribe.yaml. Folders set up for scribe
// alone count as vaults.
func IsVault(path string) bool {
	if hasScribeConfig(path) {
		return true
	}
	data, err := os.ReadFile(filepath.Join(path, VaultMarkerDir, VaultConfigFile))
	if err != nil {
		return false
	}
	var meta VaultMetadata
	return json.Unmarshal(data, &meta) == nil
}

func hasScribeConfig(root string) bool {
	info, err := os.Stat(ConfigPath(root))
	return err == nil && info.Mode().IsRegular()
}

// FindConfig returns the absolute path of the scribe config for the working
// directory. SCRIBE_CONFIG wins when set; otherwise the enclosing vault's
// .nota/scribe.yaml is used.
func FindConfig() (string, error) {
	if env := os.Getenv(EnvScribeConfig); env != "" {
		path, err := filepath.Abs(env)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return "", fmt.Errorf("%s=%s: %w", EnvScribeConfig, env, ErrNoConfig)
		}
		return path, nil
	}

	root, err := FindVaultRoot()
	if err != nil {
		return "", err
	}
	if !hasScribeConfig(root) {
		return "", fmt.Errorf("%s: %w", ConfigPath(root), ErrNoConfig)
	}
	return ConfigPath(root), nil
}

// FindVaultRoot finds the vault enclosing the working directory. A set
// NOTA_VAULT_ROOT takes precedence and must itself be a vault.
func FindVaultRoot() (string, error) {
	if env := os.Getenv(EnvVaultRoot); env != "" {
		root, err := filepath.Abs(env)
		if err != nil || !IsVault(root) {
			return "", ErrNotInVault
		}
		return root, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindVaultRootFrom(cwd)
}

// FindVaultRootFrom walks up from start to the nearest vault root.
func FindVaultRootFrom(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if IsVault(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotInVault
		}
		dir = parent
	}
}
