package vault

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// VaultMetadata represents the contents of vault.json
type VaultMetadata struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	Version   string `json:"version"`
}

// InitResult reports what Init did.
type InitResult struct {
	// AlreadyExisted is true when a vault.json was found and left untouched.
	AlreadyExisted bool
	// FoldersCreated lists the folders created, relative to the vault root.
	FoldersCreated []string
}

// paraFolders defines the PARA+ folder structure
var paraFolders = []string{
	"Inbox",
	"Journal",
	"Projects",
	"Areas",
	"Resources",
	"Archive",
}

var ErrNameEmpty = errors.New("vault name cannot be empty")

// Init initializes a vault at path. It is idempotent: an existing vault.json is
// preserved and only missing folders are created. extra lists additional
// folders (relative, slash-separated) to create below the vault root, such as
// the scribe inbox folders. Existing top-level folders are matched
// case-insensitively.
func Init(path, name string, extra ...string) (*InitResult, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}

	result := &InitResult{}
	notaDir := filepath.Join(path, VaultMarkerDir)

	if IsVault(path) {
		result.AlreadyExisted = true
	} else {
		if err := os.MkdirAll(notaDir, 0755); err != nil {
			return nil, err
		}
		if err := writeMetadata(notaDir, name); err != nil {
			return nil, err
		}
	}

	existingFolders, err := getExistingFolders(path)
	if err != nil {
		return nil, err
	}

	for _, folder := range paraFolders {
		if folderExistsCaseInsensitive(folder, existingFolders) {
			continue
		}
		if err := os.MkdirAll(filepath.Join(path, folder), 0755); err != nil {
			return nil, err
		}
		existingFolders = append(existingFolders, folder)
		result.FoldersCreated = append(result.FoldersCreated, folder)
	}

	for _, rel := range extra {
		target := resolveFolder(path, filepath.FromSlash(rel), existingFolders)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.MkdirAll(target, 0755); err != nil {
			return nil, err
		}
		result.FoldersCreated = append(result.FoldersCreated, filepath.ToSlash(rel))
	}

	return result, nil
}

func writeMetadata(notaDir, name string) error {
	metadata := VaultMetadata{
		Name:      name,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0",
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(notaDir, VaultConfigFile), metadataJSON, 0644)
}

// resolveFolder maps rel onto an existing top-level folder of a different case,
// so "Inbox/Audio" lands in "inbox/Audio" when the vault already has "inbox".
func resolveFolder(root, rel string, existingFolders []string) string {
	first, rest, _ := strings.Cut(rel, string(filepath.Separator))
	for _, existing := range existingFolders {
		if strings.EqualFold(existing, first) {
			first = existing
			break
		}
	}
	return filepath.Join(root, first, rest)
}

// getExistingFolders returns a list of existing folder names in the given path
func getExistingFolders(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var folders []string
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, entry.Name())
		}
	}
	return folders, nil
}

// folderExistsCaseInsensitive checks if a folder name exists in the list (case-insensitive)
func folderExistsCaseInsensitive(name string, existingFolders []string) bool {
	for _, existing := range existingFolders {
		if strings.EqualFold(existing, name) {
			return true
		}
	}
	return false
}
