package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procagent/procagent/pkg/config"
	"github.com/procagent/procagent/pkg/guardrail"
)

func defaultsWithMocks(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.LoadFromBytes([]byte(`
short_term:
  type: mock
long_term:
  type: mock
source:
  type: memory
completion:
  provider: mock
`))
	require.NoError(t, err)
	return cfg
}

func TestNewFromConfig_ChromemInMemory(t *testing.T) {
	cfg := defaultsWithMocks(t)
	cfg.LongTerm.Type = "chromem"
	cfg.LongTerm.Chromem.Collection = "test_conversations"

	orch, err := NewFromConfig(cfg)
	require.NoError(t, err)
	defer orch.Close()

	ctx := sessionContext("session-chromem")
	result, err := orch.SendTurn(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, string(StateDone), result.Metadata[MetaState])
}

func TestNewFromConfig_LuaGuardrailHook(t *testing.T) {
	dir := t.TempDir()
	script := `
function check_input(input)
	if string.find(input, "forbidden") then
		return false
	end
	return true
end
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.lua"), []byte(script), 0o644))

	cfg := defaultsWithMocks(t)
	cfg.Scripting.Enabled = true
	cfg.Scripting.Paths = []string{dir}

	orch, err := NewFromConfig(cfg)
	require.NoError(t, err)
	defer orch.Close()

	ctx := sessionContext("session-lua")

	result, err := orch.SendTurn(ctx, "tell me the forbidden thing")
	require.NoError(t, err)
	assert.Equal(t, guardrail.RefusalMessage, result.Text)
	assert.Equal(t, string(StateRejected), result.Metadata[MetaState])

	result, err = orch.SendTurn(ctx, "tell me something nice")
	require.NoError(t, err)
	assert.Equal(t, string(StateDone), result.Metadata[MetaState])
}

func TestNewFromConfig_MissingScriptDir(t *testing.T) {
	cfg := defaultsWithMocks(t)
	cfg.Scripting.Enabled = true
	cfg.Scripting.Paths = []string{filepath.Join(t.TempDir(), "does-not-exist")}

	_, err := NewFromConfig(cfg)
	assert.Error(t, err)
}
