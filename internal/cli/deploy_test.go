package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainpress/chainpress/internal/manifest"
)

func writeSiteFiles(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for p, data := range files {
		abs := filepath.Join(dir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, data, 0o644))
	}
}

func fixtureSite(t *testing.T) string {
	t.Helper()
	site := filepath.Join(t.TempDir(), "site")
	writeSiteFiles(t, site, map[string][]byte{
		"index.html":  []byte(`<link href="styles.css"><img src="logo.png"><script src="app.js"></script>`),
		"styles.css":  []byte(`body { background: url('logo.png'); }`),
		"app.js":      []byte(`import './lib/util.js';`),
		"lib/util.js": []byte(`export const n = 1;`),
		"logo.png":    []byte("png-bytes"),
	})
	return site
}

func TestDeployCommand_DryRunJSON(t *testing.T) {
	site := fixtureSite(t)

	stdout, _, err := execute(t, "deploy", site, "--dry-run", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Record manifest.DeploymentRecord `json:"record"`
			Waves  [][]string                `json:"waves"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)

	require.Len(t, resp.Data.Record.Units, 5)
	for _, u := range resp.Data.Record.Units {
		assert.False(t, u.Cached)
		assert.NotEmpty(t, u.AccessPath)
	}
	assert.False(t, resp.Data.Record.Aborted)

	// The wave plan depends only on the dependency graph, so it is
	// stable across runs.
	plan, err := json.MarshalIndent(resp.Data.Waves, "", "  ")
	require.NoError(t, err)
	g := goldie.New(t)
	g.Assert(t, "deploy_waves", plan)
}

func TestDeployCommand_TextSummary(t *testing.T) {
	site := fixtureSite(t)

	stdout, _, err := execute(t, "deploy", site, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, "deployed 5 unit(s): 5 published, 0 reused")
	assert.Contains(t, stdout, "entry: ")
}

func TestDeployCommand_MissingBuildDir(t *testing.T) {
	_, stderr, err := execute(t, "deploy", "--dry-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "build directory is required")
}

func TestDeployCommand_NoLiveIndexer(t *testing.T) {
	site := fixtureSite(t)

	_, stderr, err := execute(t, "deploy", site, "--address", "addr1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "use --dry-run")
}

func TestDeployCommand_ConfigFile(t *testing.T) {
	site := fixtureSite(t)
	cfgPath := filepath.Join(filepath.Dir(site), "chainpress.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("build_dir: "+site+"\ndry_run: true\nproject: demo\n"), 0o644))

	stdout, _, err := execute(t, "deploy", "--config", cfgPath, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
}
