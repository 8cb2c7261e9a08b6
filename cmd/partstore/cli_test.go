package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the command tree with args and returns its stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, root string) string {
	t.Helper()
	path := filepath.Join(root, "partstore.yml")
	cfg := "directory: " + filepath.Join(root, "data") + "\n" +
		"partition: orders-0\n" +
		"storage:\n  batch_size: 64\n" +
		"archive:\n  backend: local\n  codec: lz4\n  local:\n    root: " + filepath.Join(root, "archive") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestCLI(t *testing.T) {
	root := t.TempDir()
	config := writeConfig(t, root)

	_, err := run(t, "", "-c", config, "put", "user:1", "alice")
	require.NoError(t, err)
	_, err = run(t, "bob from stdin", "-c", config, "put", "user:2")
	require.NoError(t, err)
	_, err = run(t, "", "-c", config, "put", "order:1", "pending")
	require.NoError(t, err)

	out, err := run(t, "", "-c", config, "get", "user:2")
	require.NoError(t, err)
	assert.Equal(t, "bob from stdin", out)

	_, err = run(t, "", "-c", config, "get", "user:3")
	assert.ErrorContains(t, err, "not found")

	out, err = run(t, "", "-c", config, "scan")
	require.NoError(t, err)
	assert.Equal(t, "order:1\nuser:1\nuser:2\n", out)

	out, err = run(t, "", "-c", config, "scan", "--prefix", "user:", "--values")
	require.NoError(t, err)
	assert.Equal(t, "user:1\talice\nuser:2\tbob from stdin\n", out)

	out, err = run(t, "", "-c", config, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "keys")
	assert.Contains(t, out, "3")

	out, err = run(t, "", "-c", config, "segments")
	require.NoError(t, err)
	assert.Contains(t, out, "partition")
	assert.Contains(t, out, "indices")

	_, err = run(t, "", "-c", config, "compact")
	assert.ErrorContains(t, err, "compaction is disabled")
}

func TestCLIArchiveRestore(t *testing.T) {
	root := t.TempDir()
	config := writeConfig(t, root)

	_, err := run(t, "", "-c", config, "put", "k", "archived value")
	require.NoError(t, err)

	out, err := run(t, "", "-c", config, "archive")
	require.NoError(t, err)
	assert.Contains(t, out, "partition orders-0 version 1")

	out, err = run(t, "", "-c", config, "manifest")
	require.NoError(t, err)
	var m struct {
		Version  uint64 `json:"version"`
		Segments []any  `json:"segments"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, uint64(1), m.Version)
	assert.Len(t, m.Segments, 2)

	target := filepath.Join(root, "restored")
	_, err = run(t, "", "-c", config, "restore", "--target", target)
	require.NoError(t, err)

	out, err = run(t, "", "-c", config, "-d", target, "get", "k")
	require.NoError(t, err)
	assert.Equal(t, "archived value", out)

	// Restoring over a populated directory is refused.
	_, err = run(t, "", "-c", config, "restore")
	assert.Error(t, err)
}

func TestCLIFlagOverrides(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	_, err := run(t, "", "-d", dir, "--log-level", "error", "put", "a", "1")
	require.NoError(t, err)
	out, err := run(t, "", "--dir", dir, "get", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", out)

	_, err = run(t, "", "-d", dir, "--log-level", "chatty", "get", "a")
	assert.Error(t, err)
}
