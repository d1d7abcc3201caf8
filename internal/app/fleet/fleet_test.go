package fleet

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFleet(t *testing.T, content string) (afero.Fs, string) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "fleet.yaml", []byte(content), 0o644))
	return fsys, "fleet.yaml"
}

func TestLoadFleet(t *testing.T) {
	fsys, path := writeFleet(t, `
mode: full
repos:
  - name: octo/widgets
    workdir: /srv/work/widgets
  - name: octo/gadgets
    skip_days: 7
`)
	f, err := Load(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, "full", f.Mode)
	assert.Equal(t, []string{"octo/widgets", "octo/gadgets"}, f.Names())
	assert.Equal(t, 7, f.Repos[1].SkipDays)
}

func TestLoadFleetDefaultMode(t *testing.T) {
	fsys, path := writeFleet(t, "repos:\n  - name: octo/widgets\n")
	f, err := Load(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, "full", f.Mode)
}

func TestLoadFleetRejectsEmpty(t *testing.T) {
	fsys, path := writeFleet(t, "mode: full\n")
	_, err := Load(fsys, path)
	assert.Error(t, err)
}

func TestLoadFleetRejectsMalformedRepo(t *testing.T) {
	fsys, path := writeFleet(t, "repos:\n  - name: not-a-repo\n")
	_, err := Load(fsys, path)
	assert.Error(t, err)
}

func TestLoadFleetRejectsDuplicates(t *testing.T) {
	fsys, path := writeFleet(t, `
repos:
  - name: octo/widgets
  - name: octo/widgets
`)
	_, err := Load(fsys, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadFleetMissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "nope.yaml")
	assert.Error(t, err)
}
