package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/covrun/internal/coverage"
	"github.com/psantana5/covrun/internal/symbols/symbolstest"
	covtls "github.com/psantana5/covrun/pkg/tls"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cfgFile, outputFormat, logLevel = "", "table", ""
	rootCmd.SetArgs(args)
	return Execute()
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "covrun.yaml")
	content := fmt.Sprintf(`retry:
  max_attempts: 2
  backoff: 1ms
logging:
  level: error
metrics:
  textfile: %s
history:
  driver: sqlite3
  dsn: %s
`, filepath.Join(dir, "covrun.prom"), filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInstrumentRestoreHistory(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	module := filepath.Join(dir, "app", "App.dll")
	require.NoError(t, os.MkdirAll(filepath.Dir(module), 0755))
	original := symbolstest.Image(true)
	require.NoError(t, os.WriteFile(module, original, 0644))

	require.NoError(t, execute(t, "--config", cfg, "instrument", module))

	backup := filepath.Join(filepath.Dir(module), coverage.DefaultBackupDirName, "App.dll")
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(original, data))

	prom, err := os.ReadFile(filepath.Join(dir, "covrun.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `covrun_runs_total{outcome="success"} 1`)

	require.NoError(t, os.WriteFile(module, []byte("instrumented"), 0644))
	require.NoError(t, execute(t, "--config", cfg, "restore", module))
	data, err = os.ReadFile(module)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(original, data))

	require.NoError(t, execute(t, "--config", cfg, "history", "--limit", "5"))
}

func TestInstrumentMissingModuleExitsOne(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	err := execute(t, "--config", cfg, "instrument", filepath.Join(dir, "Missing.dll"))
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestBadConfigExitsTwo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "covrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  max_attempts: 0\n"), 0644))

	err := execute(t, "--config", path, "config", "show")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.True(t, strings.Contains(err.Error(), "retry.max_attempts"), err.Error())
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "covrun.yaml")
	require.NoError(t, execute(t, "config", "init", path))
	require.NoError(t, execute(t, "--config", path, "config", "show"))

	err := execute(t, "config", "init", path)
	assert.Equal(t, 2, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrapped: %w", &ExitError{Code: 2, Err: errors.New("bad")})))
}

func TestConfigCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	require.NoError(t, execute(t, "config", "cert", cert, key, "--host", "covrun.internal"))

	cfg, err := covtls.LoadServerConfig(cert, key, "")
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
}

func TestConfigAPIKey(t *testing.T) {
	require.NoError(t, execute(t, "config", "apikey"))
}

func TestServeRefusesOpenAddrWithoutKeys(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	err := execute(t, "--config", cfg, "serve", "--addr", "0.0.0.0:0")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, err.Error(), "server.addr")
}
