package dsconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dirload.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
suffix = "o=example"
data_dir = "/tmp/does-not-matter"
attributes = ["cn", "mail"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.ThreadMax)
	require.Equal(t, uint64(16), cfg.DBSizeThreshold)
	require.Equal(t, 2, cfg.IndexNAttrs)
}

func TestLoadClampsIndexNAttrs(t *testing.T) {
	path := writeConfig(t, `
suffix = "o=example"
data_dir = "/tmp/does-not-matter"
attributes = ["cn", "mail"]
index_nattrs = 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.IndexNAttrs)
}

func TestLoadRejectsMissingSuffix(t *testing.T) {
	path := writeConfig(t, `data_dir = "/tmp/does-not-matter"`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsLinearIndexWithoutAttributes(t *testing.T) {
	path := writeConfig(t, `
suffix = "o=example"
data_dir = "/tmp/does-not-matter"
linear_index = true
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "linear_index requires")
}
