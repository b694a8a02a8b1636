package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/models/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id": 7, "name": "Test Model", "type": "Checkpoint", "creator": {"username": "carol"},
			"modelVersions": [{"id": 70, "modelId": 7, "name": "v1", "downloadUrl": "http://%[1]s/dl/70",
			"files": [{"name": "test.safetensors", "primary": true, "downloadUrl": "http://%[1]s/dl/70"}]}]}`, r.Host)
	})
	mux.HandleFunc("/dl/70", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="test.safetensors"`)
		w.Write([]byte("model bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, apiBase string) (cfgPath, dir string) {
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`
ApiBaseUrl = %q
SavePath = %q
DatabasePath = %q
BleveIndexPath = %q
MaxImages = 0
PauseTime = 0
RetryCount = 0

[Aliases]
"@ckpt" = %q

[[Sorters]]
Name = "flat"
Description = "Everything in one directory"
ModelDir = "{{.Root}}"
MetadataDir = "{{.Root}}"
ImageDir = "{{.Root}}"
PromptDir = "{{.Root}}"
`, apiBase, filepath.Join(dir, "models"), filepath.Join(dir, "ledger"), filepath.Join(dir, "index.bleve"), filepath.Join(dir, "ckpt"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSorterList(t *testing.T) {
	cfg, _ := testConfig(t, "http://unused")
	out, err := execute(t, "--config", cfg, "sorter", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "basic")
	assert.Contains(t, out, "tags")
	assert.Contains(t, out, "flat")
	assert.Contains(t, out, "Everything in one directory")
}

func TestDownloadThenDbView(t *testing.T) {
	srv := newTestServer(t)
	cfg, dir := testConfig(t, srv.URL+"/api/v1")

	out, err := execute(t, "--config", cfg, "--no-color", "download", "--no-progress", "7", "@ckpt/sub")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 downloaded")

	model := filepath.Join(dir, "ckpt", "sub", "Test Model", "test-mid_7-vid_70", "test-mid_7-vid_70.safetensors")
	content, err := os.ReadFile(model)
	require.NoError(t, err)
	assert.Equal(t, "model bytes", string(content))

	out, err = execute(t, "--config", cfg, "db", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Model")
	assert.Contains(t, out, "70")

	out, err = execute(t, "--config", cfg, "db", "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "1 ok")
}

func TestTorrentRequiresAnnounce(t *testing.T) {
	cfg, _ := testConfig(t, "http://unused")
	_, err := execute(t, "--config", cfg, "torrent")
	assert.ErrorContains(t, err, "--announce")
}

func TestCleanDryRun(t *testing.T) {
	cfg, dir := testConfig(t, "http://unused")
	root := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(root, 0755))
	tmp := filepath.Join(root, "partial.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("x"), 0644))

	out, err := execute(t, "--config", cfg, "clean", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Clean complete")
	assert.FileExists(t, tmp)
}
