package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_MatchDocumentedValues(t *testing.T) {
	d := Defaults()
	assert.Equal(t, 60, d.Workflow.NodeTimeoutSeconds)
	assert.Equal(t, 300, d.Workflow.OverallDeadlineSeconds)
	assert.Equal(t, 10, d.Workflow.MaxIterations)
	assert.Equal(t, 500, d.Consolidator.LLMRowCap)
	assert.Equal(t, "end", d.Router.UnknownNodePolicy)
	assert.Equal(t, 30, d.Transport.IdlePingSeconds)
	assert.EqualValues(t, 1<<20, d.Transport.MaxFrameBytes)
	require.NoError(t, d.Validate())
}

func TestLoad_FileOmittingASectionKeepsItsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  max_iterations: 5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workflow.MaxIterations)
	assert.Equal(t, 60, cfg.Workflow.NodeTimeoutSeconds)
	assert.Equal(t, 500, cfg.Consolidator.LLMRowCap)
}

func TestLoad_ExpandsEnvVarsWithAndWithoutDefault(t *testing.T) {
	t.Setenv("RUNTIMECONFIG_TEST_POLICY", "error")
	os.Unsetenv("RUNTIMECONFIG_TEST_CAP")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "router:\n  unknown_node_policy: ${RUNTIMECONFIG_TEST_POLICY}\n" +
		"consolidator:\n  llm_row_cap: ${RUNTIMECONFIG_TEST_CAP:-250}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Router.UnknownNodePolicy)
	assert.Equal(t, 250, cfg.Consolidator.LLMRowCap)
}

func TestLoad_RejectsInvalidUnknownNodePolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router:\n  unknown_node_policy: retry\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveDurationFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  node_timeout_seconds: 0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_GraphOptionsAndChatOptionsAdaptFields(t *testing.T) {
	cfg := Defaults()
	cfg.Workflow.NodeTimeoutSeconds = 45
	cfg.Workflow.MaxIterations = 3
	cfg.Router.UnknownNodePolicy = "error"

	gopts := cfg.GraphOptions()
	assert.Equal(t, 45*time.Second, gopts.NodeTimeout)
	assert.Equal(t, 3, gopts.MaxIterations)
	assert.Equal(t, "error", gopts.UnknownNodePolicy)

	copts := cfg.ChatOptions()
	assert.Equal(t, cfg.Transport.IdlePingSeconds, copts.IdlePingSeconds)
	assert.Equal(t, cfg.Transport.MaxFrameBytes, copts.MaxFrameBytes)
}

func TestWatcher_ReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  max_iterations: 1\n"), 0o644))

	changed := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { changed <- c }, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  max_iterations: 7\n"), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, 7, cfg.Workflow.MaxIterations)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
