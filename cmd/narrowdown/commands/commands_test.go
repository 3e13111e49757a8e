package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/narrowdown/pkg/storage"
)

const (
	textBase = "the quick brown fox jumps over the lazy dog while the farmer watches from the old wooden porch at sunset"
	textDup  = "the quick brown fox jumps over the lazy dog while the farmer watches from the old wooden porch at dawn"
	textFar  = "stock markets rallied on tuesday after the central bank signalled that interest rates would remain unchanged"
)

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T, backend, level string) env {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "narrowdown.yaml")

	content := ""
	if level != "" {
		content = "index:\n  storage_level: " + level + "\n"
	}

	content += "storage:\n" +
		"  backend: " + backend + "\n" +
		"  path: " + filepath.Join(dir, "index.snap") + "\n" +
		"  compress: true\n" +
		"logging:\n" +
		"  level: warn\n" +
		"telemetry:\n" +
		"  metrics_textfile: " + filepath.Join(dir, "narrowdown.prom") + "\n"

	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	return env{dir: dir, config: cfgPath}
}

func (e env) write(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (e env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := NewRootCommand()
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.Execute()

	return out.String(), err
}

func TestIndexAndQuery_Memory(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")
	base := e.write(t, "base.txt", textBase)
	far := e.write(t, "far.txt", textFar)

	out, err := e.run(t, "", "index", "--label-data", base, far)
	require.NoError(t, err)
	assert.Contains(t, out, "base.txt")
	assert.Contains(t, out, "Indexed 2 document(s)")

	out, err = e.run(t, "", "query", "--top", "3", textDup)
	require.NoError(t, err)
	assert.Contains(t, out, "0.9531")
	assert.Contains(t, out, base)
	assert.NotContains(t, out, far)

	assert.FileExists(t, filepath.Join(e.dir, "narrowdown.prom"))
}

func TestQuery_JSON(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")

	_, err := e.run(t, textBase+"\n"+textFar+"\n", "index", "--lines", "--exact", "en")
	require.NoError(t, err)

	out, err := e.run(t, textDup, "query", "--exact", "en", "--format", "json")
	require.NoError(t, err)

	var results []queryResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)

	assert.Equal(t, uint64(1), results[0].ID)
	assert.Equal(t, "en", deref(results[0].ExactPart))
	assert.Equal(t, textBase, deref(results[0].Text))
	assert.Nil(t, results[0].Similarity)

	out, err = e.run(t, "", "query", "--format", "json", textDup)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestIndex_ExplicitID(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "minimal")

	out, err := e.run(t, textBase, "index", "--id", "77")
	require.NoError(t, err)
	assert.Contains(t, out, "77")

	out, err = e.run(t, textFar, "index", "--id", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 document(s)")

	out, err = e.run(t, "", "query", "--format", "json", textFar)
	require.NoError(t, err)
	assert.Contains(t, out, `"id": 0`)

	_, err = e.run(t, textBase+"\n"+textFar, "index", "--lines", "--id", "5")
	require.ErrorIs(t, err, ErrIDWithManyDocuments)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "sqlite", "fingerprint")

	_, err := e.run(t, textBase, "index")
	require.NoError(t, err)

	out, err := e.run(t, "", "remove", "--check", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 document(s)")

	_, err = e.run(t, "", "remove", "--check", "1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	out, err = e.run(t, "", "query", textBase)
	require.NoError(t, err)
	assert.Contains(t, out, "No similar documents")
}

func TestRemove_DefaultStorageLevel(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "")

	_, err := e.run(t, textBase+"\n"+textFar+"\n", "index", "--lines")
	require.NoError(t, err)

	out, err := e.run(t, "", "query", "--top", "1", textDup)
	require.NoError(t, err)
	assert.Contains(t, out, "0.9531")

	out, err = e.run(t, "", "remove", "--check", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 document(s)")
}

func TestRemove_InvalidID(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")

	_, err := e.run(t, "", "remove", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid id "abc"`)
}

func TestQuery_NoIndex(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")

	_, err := e.run(t, "", "query", textBase)

	require.ErrorIs(t, err, ErrNoIndex)
}

func TestInspect(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")

	_, err := e.run(t, textBase+"\n"+textFar, "index", "--lines")
	require.NoError(t, err)

	out, err := e.run(t, "", "inspect")
	require.NoError(t, err)

	for _, want := range []string{"memory", "7 x 9", "full", "words:3", "Documents", "File size"} {
		assert.Contains(t, out, want)
	}
}

func TestTune_YAML(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")

	out, err := e.run(t, "", "tune", "--threshold", "0.8", "--format", "yaml")
	require.NoError(t, err)

	var report tuneReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))

	assert.InDelta(t, 0.8, report.Threshold, 0)
	assert.Equal(t, 64, report.Config.NumHashes)
	assert.Equal(t, 6, report.Config.NumBands)
	assert.Equal(t, 10, report.Config.RowsPerBand)
	assert.True(t, report.BoundsMet)
	assert.Contains(t, out, "n_bands: 6")
}

func TestTune_Plot(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "")
	plot := filepath.Join(e.dir, "scurve.html")

	out, err := e.run(t, "", "tune", "--threshold", "0.8", "--plot", plot)
	require.NoError(t, err)
	assert.Contains(t, out, "S-curve written to "+plot)

	html, err := os.ReadFile(plot)
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")
	assert.Contains(t, string(html), "LSH S-curve: 6 bands x 10 rows")
	assert.Contains(t, string(html), "threshold")

	_, err = e.run(t, "", "tune", "--plot", filepath.Join(e.dir, "missing", "scurve.html"))
	require.Error(t, err)
}

func TestTune_Text(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")

	out, err := e.run(t, "", "tune")
	require.NoError(t, err)
	assert.Contains(t, out, "Error bounds met")

	out, err = e.run(t, "", "tune", "--threshold", "0", "--max-fn", "0", "--max-fp", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Error bounds unreachable")

	_, err = e.run(t, "", "tune", "--format", "xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestHash(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")

	out, err := e.run(t, "", "hash", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "613153351")
	assert.Contains(t, out, "0x248bfa47")

	out, err = e.run(t, "", "hash", "--all", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "xxhash_32bit")
	assert.Contains(t, out, "xxhash_64bit")

	_, err = e.run(t, "", "hash", "--algorithm", "md5", "hello")
	require.Error(t, err)
}

func TestHash_Fingerprint(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")

	out, err := e.run(t, "", "hash", "--fingerprint", "8", textBase)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), 8)
}

func TestVersion(t *testing.T) {
	t.Parallel()

	e := newEnv(t, "memory", "full")

	out, err := e.run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "narrowdown "))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b", truncate("a \n b", 10))
	assert.Equal(t, "abc…", truncate("abcdef", 4))
}
