package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func TestRunner_Handle(t *testing.T) {
	skipWithoutShell(t)

	r := NewRunner()
	r.Register("greet", "echo", "hello")
	r.Register("echo_env", "sh", "-c", "echo $WEFT_ARG_MSG")
	r.Register("payload", "sh", "-c", "echo $WEFT_PAYLOAD")
	r.Register("json", "sh", "-c", `echo '{"n": 2, "ok": true}'`)
	r.Register("crash", "sh", "-c", "echo 'something went wrong' >&2; exit 3")

	ctx := context.Background()

	t.Run("Executes Registered Command", func(t *testing.T) {
		v, err := r.Handle(ctx, domain.NewEffect("greet", nil))
		require.NoError(t, err)
		assert.Equal(t, "hello", v)
	})

	t.Run("Fails For Unregistered Type", func(t *testing.T) {
		_, err := r.Handle(ctx, domain.NewEffect("hacker_script", nil))
		assert.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("Passes Map Payload via Env Vars", func(t *testing.T) {
		v, err := r.Handle(ctx, domain.NewEffect("echo_env", map[string]any{"msg": "SecretMessage"}))
		require.NoError(t, err)
		assert.Equal(t, "SecretMessage", v)
	})

	t.Run("Passes Scalar Payload", func(t *testing.T) {
		v, err := r.Handle(ctx, domain.NewEffect("payload", "/a"))
		require.NoError(t, err)
		assert.Equal(t, "/a", v)
	})

	t.Run("Parses JSON Output", func(t *testing.T) {
		v, err := r.Handle(ctx, domain.NewEffect("json", nil))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"n": float64(2), "ok": true}, v)
	})

	t.Run("Reports Exit Status and Stderr", func(t *testing.T) {
		_, err := r.Handle(ctx, domain.NewEffect("crash", nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit status 3")
		assert.Contains(t, err.Error(), "something went wrong")
	})

	assert.Equal(t, []string{"crash", "echo_env", "greet", "json", "payload"}, r.Types())
}

func TestRunner_Cancel(t *testing.T) {
	skipWithoutShell(t)

	r := NewRunner(WithGracePeriod(time.Second))
	r.Register("sleep", "sleep", "30")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Handle(ctx, domain.NewEffect("sleep", nil))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLoadHandlers(t *testing.T) {
	dir := t.TempDir()

	t.Run("Missing File", func(t *testing.T) {
		procs, err := LoadHandlers(filepath.Join(dir, "nope.yaml"))
		require.NoError(t, err)
		assert.Empty(t, procs)
	})

	t.Run("YAML", func(t *testing.T) {
		path := filepath.Join(dir, "handlers.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
handlers:
  - name: fetch
    command: curl
    args: ["-s"]
    env:
      TIMEOUT: "5"
`), 0o644))

		procs, err := LoadHandlers(path)
		require.NoError(t, err)
		require.Contains(t, procs, "fetch")
		assert.Equal(t, "curl", procs["fetch"].Command)
		assert.Equal(t, []string{"-s"}, procs["fetch"].Args)
		assert.Equal(t, "5", procs["fetch"].Environment["TIMEOUT"])

		r := NewRunner(WithRegistry(procs))
		assert.Equal(t, []string{"fetch"}, r.Types())
	})

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "handlers.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"handlers":[{"name":"env","command":"printenv"}]}`), 0o644))

		procs, err := LoadHandlers(path)
		require.NoError(t, err)
		assert.Equal(t, "printenv", procs["env"].Command)
	})

	t.Run("Missing Command", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("handlers:\n  - name: x\n"), 0o644))

		_, err := LoadHandlers(path)
		assert.ErrorContains(t, err, "needs a name and a command")
	})
}
