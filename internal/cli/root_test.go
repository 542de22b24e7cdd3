package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	assert.Equal(t, "dbpipeline", cmd.Use)
	for _, name := range []string{"run", "fetch", "tables", "runs", "serve", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	for _, flag := range []string{"env-file", "store", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRootCmd_OpensStoreFromFlags(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	cmd, r := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--env-file", "", "--store", dbPath, "--log-level", "error", "tables"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.NotNil(t, r.store)
	r.close()
	assert.Nil(t, r.store)

	assert.Contains(t, stdout.String(), "(no tables)")
	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "store file should exist")
}

func TestRootCmd_EnvFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "from_env.db")
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("STORE_URL="+dbPath+"\n"), 0o644))
	t.Setenv("STORE_URL", "")
	os.Unsetenv("STORE_URL")

	cmd, r := newRootCmd()
	t.Cleanup(r.close)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", envPath, "runs", "--json"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "store file from env file should exist")
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	t.Setenv("PIPELINE_COERCION", "maybe")

	cmd, r := newRootCmd()
	t.Cleanup(r.close)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", "", "--store", filepath.Join(t.TempDir(), "x.db"), "tables"})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "PIPELINE_COERCION")
}

func TestRootCmd_VersionSkipsSetup(t *testing.T) {
	t.Setenv("PIPELINE_COERCION", "maybe")

	cmd, r := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Nil(t, r.store)
	assert.Contains(t, stdout.String(), "dbpipeline v"+Version)
}
