package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/edit_and_forward.yaml")
	require.NoError(t, err)

	assert.Equal(t, "edit_and_forward", s.Name)
	require.Len(t, s.Steps, 7)
	require.NotNil(t, s.Steps[1].Capture)
	assert.Equal(t, KindRead, s.Steps[1].Capture.Kind)
	assert.Equal(t, "GET /", s.Steps[1].Capture.Data)
	require.NotNil(t, s.Steps[3].Select)
	assert.Equal(t, 1, *s.Steps[3].Select)
	require.NotNil(t, s.Steps[5].Execute)
	assert.Nil(t, s.Steps[5].Execute.UpTo)
	require.NotNil(t, s.Steps[6].Drop)
	assert.Len(t, s.Assertions, 5)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	data := `
name: typo
description: "typo in assertions key"
steps:
  - capture: { channel: c, kind: active }
assertion:
  - type: pending
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps:\n  - heal: true\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps:\n  - heal: true\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "two actions in one step",
			yaml:    "name: n\ndescription: d\nsteps:\n  - select: 0\n    heal: true\n",
			wantErr: "exactly one action is required, got 2",
		},
		{
			name:    "unknown capture kind",
			yaml:    "name: n\ndescription: d\nsteps:\n  - capture: { channel: c, kind: flush }\n",
			wantErr: `unknown capture kind "flush"`,
		},
		{
			name:    "capture without channel",
			yaml:    "name: n\ndescription: d\nsteps:\n  - capture: { kind: read }\n",
			wantErr: "capture channel is required",
		},
		{
			name:    "empty fault",
			yaml:    "name: n\ndescription: d\nsteps:\n  - fail: {}\n",
			wantErr: "fail needs call or channel",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps:\n  - heal: true\nassertions:\n  - type: trace\n",
			wantErr: `unknown assertion type "trace"`,
		},
		{
			name:    "delivered without payloads",
			yaml:    "name: n\ndescription: d\nsteps:\n  - heal: true\nassertions:\n  - type: delivered\n",
			wantErr: "payloads is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
