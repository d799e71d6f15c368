package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "array.ini")
	contents := `
[server]
addr = raid-1.internal:9000

[array]
disk_count = 6
cache_capacity = 512

[log]
level = debug
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "raid-1.internal:9000", cfg.ServerAddr)
	assert.Equal(t, 6, cfg.DiskCount)
	assert.Equal(t, 512, cfg.CacheCapacity)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched keys keep their compiled-in defaults.
	def := Default()
	assert.Equal(t, def.BlockSize, cfg.BlockSize)
	assert.Equal(t, def.MaxTagBlocks, cfg.MaxTagBlocks)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.ini")
	assert.Error(t, err)
}
