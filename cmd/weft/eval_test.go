package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greeting = `
name: greeting
root:
  async: concat
  args:
    - "Hello, "
    - effect: {type: name}
    - result: "!"
`

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestEval(t *testing.T) {
	dir := t.TempDir()
	doc := write(t, dir, "greeting.yaml", greeting)
	cfg := filepath.Join(dir, "weft.yaml")
	none := filepath.Join(dir, "none.yaml")

	t.Run("Pending", func(t *testing.T) {
		out, err := execute(t, "eval", doc, "--config", cfg, "--effects", none, "--run=false", "--graph=false")
		require.NoError(t, err)
		assert.Contains(t, out, "pending\n")
		assert.Contains(t, out, "  waiting name ")
	})

	t.Run("Resolved", func(t *testing.T) {
		effects := write(t, dir, "effects.yaml", "- type: name\n  value: weft\n")
		out, err := execute(t, "eval", doc, "--config", cfg, "--effects", effects, "--run=false", "--graph=false")
		require.NoError(t, err)
		assert.Equal(t, "success Hello, weft!\n", out)
	})

	t.Run("Rejected", func(t *testing.T) {
		effects := write(t, dir, "rejected.yaml", "- type: name\n  error: unknown user\n")
		out, err := execute(t, "eval", doc, "--config", cfg, "--effects", effects, "--run=false", "--graph=false")
		require.NoError(t, err)
		assert.Equal(t, "error unknown user\n", out)
	})

	t.Run("Graph", func(t *testing.T) {
		out, err := execute(t, "eval", doc, "--config", cfg, "--effects", none, "--run=false", "--graph=true")
		require.NoError(t, err)
		assert.Contains(t, out, "graph TD")
		assert.Contains(t, out, "unresolved")
	})

	t.Run("Missing Document", func(t *testing.T) {
		_, err := execute(t, "eval", filepath.Join(dir, "missing.yaml"), "--config", cfg, "--run=false", "--graph=false")
		assert.Error(t, err)
	})
}

func TestEval_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires echo")
	}
	dir := t.TempDir()
	doc := write(t, dir, "greeting.yaml", greeting)
	cfg := filepath.Join(dir, "weft.yaml")
	handlers := write(t, dir, "handlers.yaml", `
handlers:
  - name: name
    command: echo
    args: [weft]
`)

	out, err := execute(t, "eval", doc, "--config", cfg, "--effects", "", "--handlers", handlers, "--run=true", "--graph=false")
	require.NoError(t, err)
	assert.Equal(t, "success Hello, weft!\n", out)

	t.Run("Denied", func(t *testing.T) {
		out, err := execute(t, "eval", doc, "--config", cfg, "--effects", "", "--handlers", handlers, "--run=true", "--allow", "fetch", "--graph=false")
		require.NoError(t, err)
		assert.Contains(t, out, "error ")
		assert.Contains(t, out, "denied by policy")
	})
}

func TestConfig_LogLevelOverride(t *testing.T) {
	dir := t.TempDir()
	cfg := write(t, dir, "weft.yaml", "log:\n  level: warn\n")
	t.Cleanup(func() {
		_ = rootCmd.PersistentFlags().Set("log-level", "")
	})

	_, err := execute(t, "version", "--config", cfg, "--log-level", "verbose")
	require.NoError(t, err)

	_, _, err = loadConfig(versionCmd)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "weft version ")
}
