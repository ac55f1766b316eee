package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{name: "tilde only", path: "~", expected: home},
		{name: "tilde prefix", path: "~/.xray", expected: filepath.Join(home, ".xray")},
		{name: "absolute", path: "/var/lib/xray", expected: "/var/lib/xray"},
		{name: "relative", path: "models", expected: "models"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.False(t, IsDir(file))
	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(filepath.Join(dir, "missing")))
}
