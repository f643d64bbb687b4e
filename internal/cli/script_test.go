package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: forward_edit
description: "edited request is delivered"
steps:
  - capture: { channel: client, kind: read, data: "hello" }
  - select: 0
  - edit: "HELLO"
  - execute: {}
assertions:
  - type: delivered
    payloads: ["HELLO"]
  - type: pending
    count: 0
`

const failingScenario = `
name: wrong_count
description: "expects a pending event that was executed"
steps:
  - capture: { channel: client, kind: active }
  - execute: {}
assertions:
  - type: pending
    count: 1
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runScriptCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewScriptCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestScriptCommandMissingArgs(t *testing.T) {
	_, err := runScriptCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestScriptCommandMissingPath(t *testing.T) {
	_, err := runScriptCommand(t, "text", "/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestScriptCommandEmptyDir(t *testing.T) {
	out, err := runScriptCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestScriptCommandPassingText(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "forward.yaml", passingScenario)

	out, err := runScriptCommand(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ forward_edit")
	assert.Contains(t, out, "Received")
	assert.Contains(t, out, "Buffer (5 bytes)")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScriptCommandFailingJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "forward.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)
	writeScenario(t, dir, "notes.txt", "ignored")

	out, err := runScriptCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 scenarios failed")

	var resp struct {
		Status string       `json:"status"`
		Data   ScriptResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)

	byName := map[string]ScenarioResult{}
	for _, s := range resp.Data.Scenarios {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "forward_edit")
	require.Len(t, byName["forward_edit"].Deliveries, 1)
	assert.Equal(t, "HELLO", byName["forward_edit"].Deliveries[0].Payload)
	require.Contains(t, byName, "wrong_count")
	assert.False(t, byName["wrong_count"].Pass)
	require.Len(t, byName["wrong_count"].Errors, 1)
	assert.Contains(t, byName["wrong_count"].Errors[0], "expected 1, got 0")
}

func TestScriptCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "forward.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := runScriptCommand(t, "text", dir, "--filter", "for*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
	assert.NotContains(t, out, "wrong_count")
}

func TestScriptCommandLoadError(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "broken.yaml", "name: broken\nsteps: [\n")

	out, err := runScriptCommand(t, "text", path)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}
