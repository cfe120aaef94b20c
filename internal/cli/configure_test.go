package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigFile(t *testing.T, path string) {
	t.Helper()
	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
}

func TestConfigureWritesConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	withConfigFile(t, configPath)
	t.Setenv("MNEMO_DB_PATH", filepath.Join(dir, "memories.db"))

	cmd := &cobra.Command{}
	output := &bytes.Buffer{}
	cmd.SetOut(output)

	require.NoError(t, runConfigure(cmd, nil))

	assert.FileExists(t, configPath)
	assert.Contains(t, output.String(), configPath)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "duplicate_threshold")
	assert.Contains(t, string(data), "embedding")
}
