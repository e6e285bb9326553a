package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsWhenSectionsAbsent(t *testing.T) {
	path := writeTempConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadParsesLocalMirrorSection(t *testing.T) {
	path := writeTempConfig(t, `
[local_mirror]
dir = "/srv/mirror"
cached = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/mirror", cfg.LocalMirror.Dir)
	assert.True(t, cfg.LocalMirror.Cached)
}

func TestLocalMirrorAttrTimeoutReflectsCached(t *testing.T) {
	c := LocalMirrorConfig{Cached: true}
	assert.NotZero(t, c.AttrTimeout())

	c.Cached = false
	assert.Zero(t, c.AttrTimeout())
}

func TestLoadRejectsNFSExportWithoutLeadingSlash(t *testing.T) {
	path := writeTempConfig(t, `
[nfs]
server = "nfs.example.com"
export = "bad-export"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAcceptsValidNFSSection(t *testing.T) {
	path := writeTempConfig(t, `
[nfs]
server = "nfs.example.com"
export = "/export/vol0"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/export/vol0", cfg.NFS.Export)
}

func TestLoadRejectsSnapHALMissingRequiredFields(t *testing.T) {
	path := writeTempConfig(t, `
[snap_hal]
emu_manager = "mlx5_vfio"
pf_ids = [0, 1]
`)
	_, err := Load(path)
	assert.Error(t, err, "tag is required and has no default")
}

func TestLoadAcceptsCompleteSnapHALSection(t *testing.T) {
	path := writeTempConfig(t, `
[snap_hal]
emu_manager = "mlx5_vfio"
pf_ids = [0, 1]
queue_depth = 64
nthreads = 2
tag = "dpfs0"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dpfs0", cfg.SnapHAL.Tag)
}
