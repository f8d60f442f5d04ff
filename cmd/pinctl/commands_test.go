package main

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DragonSwordMap/internal/pincsv"
)

const sampleCSV = "type,comment,x,y,faded\n" +
	"퀘,\"마을 의뢰\",10,20,true\n" +
	"토,\"돌발 임무\",30,40,false\n"

func newTestOptions(t *testing.T) *options {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("PROFILE", "test")
	t.Setenv("TIMEZONE", "UTC")
	return &options{
		now: func() time.Time { return time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC) },
	}
}

func run(t *testing.T, opts *options, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pins.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestImportListExport(t *testing.T) {
	opts := newTestOptions(t)
	file := writeCSV(t, sampleCSV)

	out, err := run(t, opts, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 pins, 0 duplicates, 0 bad rows")

	out, err = run(t, opts, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to import (2 duplicates)")

	out, err = run(t, opts, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "마을 의뢰")
	assert.Contains(t, out, "2 pins")

	out, err = run(t, opts, "list", "--admin")
	require.NoError(t, err)
	assert.Contains(t, out, "2 pins")
	assert.NotContains(t, out, "true", "admin view shows every pin unexplored")

	out, err = run(t, opts, "list", "-t", "토")
	require.NoError(t, err)
	assert.Contains(t, out, "1 pins")

	out, err = run(t, opts, "export")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, pincsv.BOM+pincsv.Header))
	records, rowErrs := pincsv.DecodeString(out)
	assert.Empty(t, rowErrs)
	assert.Len(t, records, 2)
}

func TestExportEmptyFails(t *testing.T) {
	opts := newTestOptions(t)
	_, err := run(t, opts, "export")
	assert.Error(t, err)
}

func TestListRejectsUnknownCategory(t *testing.T) {
	opts := newTestOptions(t)
	_, err := run(t, opts, "list", "-t", "nope")
	assert.Error(t, err)
}

func TestResetOncePerWeek(t *testing.T) {
	opts := newTestOptions(t)
	_, err := run(t, opts, "import", writeCSV(t, sampleCSV))
	require.NoError(t, err)

	out, err := run(t, opts, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 1 pins (boundary 2024-01-08T09:00:00Z)")

	out, err = run(t, opts, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "already reset since")
}

func TestResetForce(t *testing.T) {
	opts := newTestOptions(t)
	_, err := run(t, opts, "import", writeCSV(t, sampleCSV))
	require.NoError(t, err)

	out, err := run(t, opts, "reset", "--force", "-t", "도")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 0 pins")

	out, err = run(t, opts, "reset", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 1 pins")
}

func TestSyncMergesSeed(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	const url = "https://seed.test/pins.csv"
	httpmock.RegisterResponder(http.MethodGet, url, httpmock.NewStringResponder(200, sampleCSV))

	opts := newTestOptions(t)
	out, err := run(t, opts, "sync", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "remote 2, added 2, shadowed 0, kept 0")

	out, err = run(t, opts, "sync", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "added 0")
}

func TestSyncFailure(t *testing.T) {
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	const url = "https://seed.test/missing.csv"
	httpmock.RegisterResponder(http.MethodGet, url, httpmock.NewStringResponder(404, "not found"))

	opts := newTestOptions(t)
	_, err := run(t, opts, "sync", "--url", url)
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, &options{now: time.Now}, "hash-password", "10051")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "$2"))
}
