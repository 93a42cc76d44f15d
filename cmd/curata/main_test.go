package main

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/curata/config"
	"github.com/poiesic/curata/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
store:
  path: %s
index:
  path: %s
  dim: 16
  capacity: 1000
  m: 8
  ef_construction: 64
  ef_search: 32
  seed: 7
service:
  workers: 2
  drain_timeout: 2s
embedding:
  provider: anchor
log:
  level: error
`, filepath.Join(dir, "store"), filepath.Join(dir, "items.idx"))
	path := filepath.Join(dir, "curata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// run executes the CLI and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"curata"}, args...))
	return out.String(), err
}

func findFlag(t *testing.T, app *cli.App, command, name string) cli.Flag {
	t.Helper()
	cmd := app.Command(command)
	require.NotNil(t, cmd, "command %s", command)
	for _, flag := range cmd.Flags {
		for _, n := range flag.Names() {
			if n == name {
				return flag
			}
		}
	}
	t.Fatalf("flag %s not found on %s", name, command)
	return nil
}

func TestCommandFlags(t *testing.T) {
	app := newApp()

	t.Run("search mode defaults to hybrid", func(t *testing.T) {
		flag, ok := findFlag(t, app, "search", "mode").(*cli.StringFlag)
		require.True(t, ok)
		assert.Equal(t, "hybrid", flag.Value)
	})

	t.Run("search query is required", func(t *testing.T) {
		flag, ok := findFlag(t, app, "search", "q").(*cli.StringFlag)
		require.True(t, ok)
		assert.True(t, flag.Required)
	})

	t.Run("recommend user is required", func(t *testing.T) {
		flag, ok := findFlag(t, app, "recommend", "user").(*cli.Uint64Flag)
		require.True(t, ok)
		assert.True(t, flag.Required)
	})

	t.Run("reembed batch-size default", func(t *testing.T) {
		flag, ok := findFlag(t, app, "reembed", "batch-size").(*cli.IntFlag)
		require.True(t, ok)
		assert.Equal(t, 100, flag.Value)
	})

	t.Run("config reads environment", func(t *testing.T) {
		var flag *cli.StringFlag
		for _, f := range app.Flags {
			if sf, ok := f.(*cli.StringFlag); ok && sf.Name == "config" {
				flag = sf
			}
		}
		require.NotNil(t, flag)
		assert.Equal(t, []string{config.PathEnvVar}, flag.EnvVars)
	})
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
	}{
		{"text info", config.LogConfig{Level: "info", Format: "text"}, false},
		{"json debug", config.LogConfig{Level: "debug", Format: "json"}, false},
		{"warn", config.LogConfig{Level: "warn", Format: "text"}, false},
		{"error", config.LogConfig{Level: "error", Format: "json"}, false},
		{"bad level", config.LogConfig{Level: "verbose", Format: "text"}, true},
		{"bad format", config.LogConfig{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := newLogger(&bytes.Buffer{}, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestSetup_Errors(t *testing.T) {
	path := writeTestConfig(t)

	t.Run("missing config file", func(t *testing.T) {
		_, err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "rebuild")
		assert.ErrorIs(t, err, config.ErrConfigNotFound)
	})

	t.Run("invalid log level", func(t *testing.T) {
		_, err := run(t, "--config", path, "--log-level", "loud", "rebuild")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("invalid search mode", func(t *testing.T) {
		_, err := run(t, "--config", path, "search", "--q", "lamp", "--mode", "semantic")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid mode")
	})

	t.Run("invalid seed size", func(t *testing.T) {
		_, err := run(t, "--config", path, "seed", "--per-category", "0")
		require.Error(t, err)
	})
}

func TestSeedSearchRecommend(t *testing.T) {
	path := writeTestConfig(t)

	out, err := run(t, "--config", path, "seed", "--per-category", "10", "--users", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 40 items and 3 users")

	out, err = run(t, "--config", path, "search", "--q", "lamp", "--mode", "keyword", "-k", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "lamp")
	assert.Contains(t, out, "[Home]")

	out, err = run(t, "--config", path, "search", "--q", "jacket clothing", "-k", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 3 hits")
	assert.Contains(t, out, "[Clothing]")

	out, err = run(t, "--config", path, "recommend", "--user", "1000001", "-k", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 4 hits")

	_, err = run(t, "--config", path, "recommend", "--user", "42")
	assert.Error(t, err, "unknown user")
}

func TestRebuildAndReembed(t *testing.T) {
	path := writeTestConfig(t)

	_, err := run(t, "--config", path, "seed", "--per-category", "5", "--users", "1")
	require.NoError(t, err)

	out, err := run(t, "--config", path, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "Rebuilt")

	out, err = run(t, "--config", path, "reembed", "--batch-size", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Reembedded 20 items")

	_, err = run(t, "--config", path, "reembed", "--batch-size", "0")
	assert.Error(t, err)

	out, err = run(t, "--config", path, "search", "--q", "books", "-k", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "[Books]")
}

func TestDemoCatalog_ContentIDs(t *testing.T) {
	items := demoCatalog(10, rand.New(rand.NewPCG(3, 3)))
	again := demoCatalog(10, rand.New(rand.NewPCG(3, 3)))
	require.Len(t, items, 40)

	ids := make(map[core.ID]bool, len(items))
	for i, item := range items {
		assert.Equal(t, core.IDFromContent(item.Category.String()+"/"+item.Title), item.Id)
		assert.Equal(t, item.Id, again[i].Id, "same seed, same ids")
		assert.False(t, ids[item.Id], "duplicate id for %q", item.Title)
		ids[item.Id] = true
	}
}
