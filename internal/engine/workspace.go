package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// materializeWorkspace writes the job's files into a fresh, uniquely named
// directory under root (os.TempDir when root is empty). File paths are
// untrusted: anything absolute or escaping the workspace is rejected and
// the partially built directory is removed.
func materializeWorkspace(root string, files map[string]string) (string, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "tesseracs-job-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}

	for name, content := range files {
		path, err := safeJoin(dir, name)
		if err != nil {
			os.RemoveAll(dir)
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("creating workspace subdirectory: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return dir, nil
}

// safeJoin resolves name inside dir, rejecting absolute paths and
// parent-directory traversal.
func safeJoin(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file path")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("absolute path not allowed: %s", name)
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", name)
	}
	path := filepath.Join(dir, clean)
	if !strings.HasPrefix(path, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", name)
	}
	return path, nil
}

// readArtifact returns the contents of the configured artifact file if the
// job produced one, or nil.
func readArtifact(workspaceDir, artifactFile string) []byte {
	if artifactFile == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(workspaceDir, artifactFile))
	if err != nil {
		return nil
	}
	return data
}
