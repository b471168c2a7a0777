package lindconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverlaysIniOnDefaults(t *testing.T) {
	dir := t.TempDir()
	iniPath := filepath.Join(dir, "lind.ini")
	contents := "[microvisor]\nmax_fd = 64\nlog_level = debug\n"
	require.NoError(t, os.WriteFile(iniPath, []byte(contents), 0o644))

	cfg, err := Load(iniPath)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.MaxFD)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultConfig().PipeCapacity, cfg.PipeCapacity)
}
