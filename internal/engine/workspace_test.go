package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializeWorkspace(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"main.py":        "print('hi')\n",
		"pkg/helpers.py": "X = 1\n",
	}

	dir, err := materializeWorkspace(root, files)
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	assert.True(t, strings.HasPrefix(filepath.Base(dir), "tesseracs-job-"))
	assert.Equal(t, root, filepath.Dir(dir))

	data, err := os.ReadFile(filepath.Join(dir, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "pkg", "helpers.py"))
	require.NoError(t, err)
	assert.Equal(t, "X = 1\n", string(data))
}

func TestMaterializeWorkspaceRejectsEscapes(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"traversal", "../evil.py"},
		{"nested traversal", "a/../../evil.py"},
		{"absolute", "/etc/passwd"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := materializeWorkspace(root, map[string]string{tt.path: "x"})
			require.Error(t, err)

			// The partial workspace must not survive a rejected job.
			entries, readErr := os.ReadDir(root)
			require.NoError(t, readErr)
			assert.Empty(t, entries)
		})
	}
}

func TestReadArtifact(t *testing.T) {
	dir := t.TempDir()

	assert.Nil(t, readArtifact(dir, "plot.png"), "absent artifact reads as nil")
	assert.Nil(t, readArtifact(dir, ""), "empty artifact name disables collection")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "plot.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, readArtifact(dir, "plot.png"))
}
