package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesHomeLayout(t *testing.T) {
	dir := t.TempDir()

	cmd := newInitCmd()
	cmd.SetArgs([]string{"--dir", dir})
	require.NoError(t, cmd.Execute())

	home := filepath.Join(dir, ".reviewfleet")
	for _, p := range []string{
		filepath.Join(home, "plans"),
		filepath.Join(home, "work"),
		filepath.Join(home, "var", "state"),
		filepath.Join(home, "var", "logs"),
	} {
		info, err := os.Stat(p)
		require.NoError(t, err, "missing %s", p)
		assert.True(t, info.IsDir())
	}

	for _, p := range []string{
		filepath.Join(home, "setting.json"),
		filepath.Join(home, "fleet.yaml"),
	} {
		_, err := os.Stat(p)
		require.NoError(t, err, "missing %s", p)
	}
}

func TestInitDoesNotClobberExistingFiles(t *testing.T) {
	dir := t.TempDir()

	cmd := newInitCmd()
	cmd.SetArgs([]string{"--dir", dir})
	require.NoError(t, cmd.Execute())

	settingPath := filepath.Join(dir, ".reviewfleet", "setting.json")
	custom := []byte(`{"parallel": 8}`)
	require.NoError(t, os.WriteFile(settingPath, custom, 0o644))

	again := newInitCmd()
	again.SetArgs([]string{"--dir", dir})
	require.NoError(t, again.Execute())

	data, err := os.ReadFile(settingPath)
	require.NoError(t, err)
	assert.Equal(t, custom, data)
}

func TestWriteIfNotExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	require.NoError(t, writeIfNotExists(path, []byte("first")))
	require.NoError(t, writeIfNotExists(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestNewRootRegistersCommands(t *testing.T) {
	root := NewRoot()

	want := []string{"init", "run", "resume", "status", "governor", "ledger", "version"}
	have := make(map[string]bool)
	for _, c := range root.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, have[name], "missing command %q", name)
	}
}
