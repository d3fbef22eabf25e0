package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive keeps local copies of generated artifacts (design binaries and
// converted rasters) for debugging and delivery. It is optional; production
// delivery goes through the remote staging tier.
type Archive struct {
	basePath string
}

// NewArchive initializes an Archive rooted at basePath.
func NewArchive(basePath string) (*Archive, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &Archive{basePath: basePath}, nil
}

// SaveArtifact persists one job artifact under <base>/<jobID>/<filename> and
// returns the relative key. Names are cleaned to prevent directory traversal.
func (a *Archive) SaveArtifact(jobID, filename string, data []byte) (string, error) {
	if a == nil {
		return "", errors.New("storage: no archive configured")
	}
	key, err := sanitizeKey(jobID + "/" + filename)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(a.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write artifact: %w", err)
	}
	return key, nil
}

// sanitizeKey normalizes a key and prevents escaping the archive root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
