package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/chromecache/internal/testutil"
)

// captureOutput swaps the package writers for buffers. Tests using it must
// not run in parallel.
func captureOutput(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	origOut, origErr := stdOut, stdErr
	stdOut, stdErr = stdout, stderr
	t.Cleanup(func() {
		stdOut, stdErr = origOut, origErr
	})
	return stdout, stderr
}

func decodeLines[T any](t *testing.T, buf *bytes.Buffer) []T {
	t.Helper()
	var out []T
	dec := json.NewDecoder(buf)
	for dec.More() {
		var v T
		require.NoError(t, dec.Decode(&v))
		out = append(out, v)
	}
	return out
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeCache(t *testing.T) string {
	t.Helper()
	b := testutil.NewBuilder(t, 16)
	b.Insert(testutil.EntrySpec{
		Key: "http://example.com/app.js",
		Streams: [][]byte{
			testutil.PickledHeaderBlock("HTTP/1.1 200 OK", "Content-Encoding", "gzip"),
			gzipBytes(t, []byte("console.log(1)")),
		},
	})
	b.Insert(testutil.EntrySpec{
		Key:     "http://example.com/",
		Streams: [][]byte{testutil.RawHeaderBlock("HTTP/1.1 301 Moved Permanently")},
	})
	return b.WriteTemp()
}

func TestRunScan(t *testing.T) {
	stdout, stderr := captureOutput(t)
	dir := writeCache(t)

	code := run(context.Background(), []string{"--dir", dir, "scan"})
	require.Equal(t, 0, code, stderr.String())

	lines := decodeLines[recordLine](t, stdout)
	require.Len(t, lines, 2)
	keys := []string{lines[0].Key, lines[1].Key}
	assert.ElementsMatch(t, []string{"http://example.com/app.js", "http://example.com/"}, keys)
	assert.Contains(t, stderr.String(), "2 entries, 0 diagnostics")
}

func TestRunLookup(t *testing.T) {
	stdout, stderr := captureOutput(t)
	dir := writeCache(t)

	code := run(context.Background(), []string{"-d", dir, "lookup", "http://example.com/", "http://nope/"})
	require.Equal(t, 0, code, stderr.String())

	lines := decodeLines[recordLine](t, stdout)
	require.Len(t, lines, 2)
	assert.Equal(t, "http://example.com/", lines[0].Key)
	require.NotNil(t, lines[0].Found)
	assert.True(t, *lines[0].Found)
	require.Len(t, lines[0].Streams, 1)
	assert.Equal(t, 301, lines[0].Streams[0].Status)

	assert.Equal(t, "http://nope/", lines[1].Key)
	require.NotNil(t, lines[1].Found)
	assert.False(t, *lines[1].Found)
}

func TestRunExtract(t *testing.T) {
	stdout, stderr := captureOutput(t)
	dir := writeCache(t)
	outDir := filepath.Join(t.TempDir(), "out")

	code := run(context.Background(), []string{"--dir", dir, "extract", outDir})
	require.Equal(t, 0, code, stderr.String())

	lines := decodeLines[extractLine](t, stdout)
	require.Len(t, lines, 2)
	var js extractLine
	for _, l := range lines {
		if l.Key == "http://example.com/app.js" {
			js = l
		}
	}
	require.True(t, js.Stored)
	got, err := os.ReadFile(js.Path)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(got))
	assert.True(t, strings.HasPrefix(js.Path, outDir))
}

func TestRunExtractRaw(t *testing.T) {
	stdout, stderr := captureOutput(t)
	dir := writeCache(t)
	outDir := t.TempDir()

	code := run(context.Background(), []string{"--dir", dir, "--extract-raw", "extract", outDir, "http://example.com/app.js"})
	require.Equal(t, 0, code, stderr.String())

	lines := decodeLines[extractLine](t, stdout)
	require.Len(t, lines, 1)
	got, err := os.ReadFile(lines[0].Path)
	require.NoError(t, err)
	assert.Equal(t, gzipBytes(t, []byte("console.log(1)"))[:2], got[:2])
}

func TestRunExtractUnsupportedEncoding(t *testing.T) {
	stdout, stderr := captureOutput(t)
	b := testutil.NewBuilder(t, 4)
	b.Insert(testutil.EntrySpec{
		Key: "http://example.com/app.css",
		Streams: [][]byte{
			testutil.PickledHeaderBlock("HTTP/1.1 200 OK", "Content-Encoding", "br"),
			[]byte("not really brotli"),
		},
	})
	dir := b.WriteTemp()

	code := run(context.Background(), []string{"--dir", dir, "extract", t.TempDir()})
	require.Equal(t, 0, code, stderr.String())

	lines := decodeLines[extractLine](t, stdout)
	require.Len(t, lines, 1)
	assert.Equal(t, "br", lines[0].Encoding)
	assert.Equal(t, "unsupported encoding kept raw", lines[0].Reason)
	require.True(t, lines[0].Stored)
	got, err := os.ReadFile(lines[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "not really brotli", string(got))
}

func TestRunInfo(t *testing.T) {
	stdout, stderr := captureOutput(t)
	dir := writeCache(t)

	code := run(context.Background(), []string{"--dir", dir, "info"})
	require.Equal(t, 0, code, stderr.String())

	raw := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, raw, 5)

	var idx indexLine
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &idx))
	assert.Equal(t, "0x20001", idx.Version)
	assert.Equal(t, int32(2), idx.NumEntries)
	assert.Equal(t, uint32(16), idx.TableSize)

	files := make([]blockFileLine, 0, 4)
	for _, line := range raw[1:] {
		var f blockFileLine
		require.NoError(t, json.Unmarshal([]byte(line), &f))
		files = append(files, f)
	}
	assert.Equal(t, "data_0", files[0].Name)
	assert.Equal(t, "data_1", files[1].Name)
	assert.Equal(t, int32(256), files[1].EntrySize)
	assert.Equal(t, 5, files[1].UsedBlocks)
	assert.Equal(t, 0, files[3].UsedBlocks)
}

func TestRunSnapshotAndInspect(t *testing.T) {
	stdout, stderr := captureOutput(t)
	dir := writeCache(t)
	file := filepath.Join(t.TempDir(), "cache.snap")

	code := run(context.Background(), []string{"--dir", dir, "snapshot", file})
	require.Equal(t, 0, code, stderr.String())
	assert.FileExists(t, file)

	stdout.Reset()
	code = run(context.Background(), []string{"inspect", file})
	require.Equal(t, 0, code, stderr.String())

	lines := decodeLines[recordLine](t, stdout)
	require.Len(t, lines, 2)
	assert.Equal(t, "http://example.com/", lines[0].Key)
	assert.Equal(t, "http://example.com/app.js", lines[1].Key)
}

func TestRunUsageErrors(t *testing.T) {
	_, stderr := captureOutput(t)

	assert.Equal(t, 2, run(context.Background(), nil))
	assert.Contains(t, stderr.String(), "usage: chromecache")

	assert.Equal(t, 2, run(context.Background(), []string{"scan"}))
	assert.Equal(t, 2, run(context.Background(), []string{"--dir", t.TempDir(), "bogus"}))
	assert.Equal(t, 2, run(context.Background(), []string{"--no-such-flag"}))
	assert.Equal(t, 0, run(context.Background(), []string{"--help"}))
}

func TestRunMissingIndex(t *testing.T) {
	_, stderr := captureOutput(t)

	code := run(context.Background(), []string{"--dir", t.TempDir(), "scan"})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "missing")
}

func TestRunLogFile(t *testing.T) {
	_, stderr := captureOutput(t)
	logFile := filepath.Join(t.TempDir(), "logs", "chromecache.log")

	code := run(context.Background(), []string{
		"--dir", writeCache(t),
		"--log-file", logFile,
		"--log-level", "debug",
		"--log-format", "json",
		"scan",
	})
	require.Equal(t, 0, code, stderr.String())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"opened cache"`)
	assert.Contains(t, string(data), `"session":`)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, rest, err := loadConfig([]string{"--dir", "/tmp/c", "scan", "--not-a-flag"})
	require.NoError(t, err)
	assert.Equal(t, []string{"scan", "--not-a-flag"}, rest)
	assert.Equal(t, "/tmp/c", cfg.Dir)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 100*time.Nanosecond, cfg.TickResolution)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 2, cfg.ExtractShardLen)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("CHROMECACHE_DIR", "/env/cache")
	t.Setenv("CHROMECACHE_WORKERS", "4")
	t.Setenv("CHROMECACHE_TIMEOUT", "90")

	cfg, _, err := loadConfig([]string{"--workers", "8", "scan"})
	require.NoError(t, err)
	assert.Equal(t, "/env/cache", cfg.Dir)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chromecache.yaml")
	content := "dir: /file/cache\ntick-resolution: 1us\ntimeout: 2m\nmax-entries: -1\nlog-format: json\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, _, err := loadConfig([]string{"--config", path, "scan"})
	require.NoError(t, err)
	assert.Equal(t, "/file/cache", cfg.Dir)
	assert.Equal(t, time.Microsecond, cfg.TickResolution)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, -1, cfg.MaxEntries)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "format", args: []string{"--log-format", "xml"}, want: "log-format"},
		{name: "level", args: []string{"--log-level", "loud"}, want: "log-level"},
		{name: "duration", args: []string{"--timeout", "soon"}, want: "invalid duration"},
		{name: "tick", args: []string{"--tick-resolution", "0"}, want: "tick-resolution"},
		{name: "missing file", args: []string{"--config", "/does/not/exist.yaml"}, want: "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := loadConfig(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
