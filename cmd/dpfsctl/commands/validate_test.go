package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCmdPrintsNonEmptyFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	const doc = `
[logging]
level = "debug"

[kv]
name = "store-a"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cmd := newValidateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-c", path})

	require.NoError(t, cmd.Execute())

	rendered := out.String()
	assert.Contains(t, rendered, "DEBUG")
	assert.Contains(t, rendered, "store-a")
}

func TestValidateCmdFailsOnMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = valid = toml"), 0o644))

	cmd := newValidateCmd()
	cmd.SetArgs([]string{"-c", path})
	assert.Error(t, cmd.Execute())
}
