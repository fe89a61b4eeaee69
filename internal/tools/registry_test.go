package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextkit/orchestrator/internal/domain"
)

func newBuiltinRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(Builtin())
	require.NoError(t, err)
	return r
}

func TestResolveKnownTool(t *testing.T) {
	r := newBuiltinRegistry(t)

	tool, derr := r.Resolve("context.read", domain.ProviderOllama)
	require.Nil(t, derr)
	assert.Equal(t, domain.CapabilityRead, tool.Capability)
	assert.False(t, tool.RequiresApproval)

	tool, derr = r.Resolve("context.write", "")
	require.Nil(t, derr)
	assert.True(t, tool.RequiresApproval)
}

func TestResolveUnknownTool(t *testing.T) {
	r := newBuiltinRegistry(t)

	_, derr := r.Resolve("context.delete", "")
	require.NotNil(t, derr)
	assert.Equal(t, domain.ErrCodeToolNotFound, derr.Code)
}

func TestResolveProviderRestriction(t *testing.T) {
	r, err := NewRegistry([]domain.ToolDescriptor{{
		ID:               "cloud.only",
		Capability:       domain.CapabilityRead,
		AllowedProviders: []string{domain.ProviderAzureOpenAI},
	}})
	require.NoError(t, err)

	_, derr := r.Resolve("cloud.only", domain.ProviderAzureOpenAI)
	assert.Nil(t, derr)

	_, derr = r.Resolve("cloud.only", domain.ProviderOllama)
	require.NotNil(t, derr)
	assert.Equal(t, domain.ErrCodeToolDisabled, derr.Code)
}

func TestValidateParameters(t *testing.T) {
	r := newBuiltinRegistry(t)

	derr := r.ValidateParameters("context.read", map[string]any{
		"entity_type": "feature",
		"entity_id":   "FEAT-1",
	})
	assert.Nil(t, derr)

	derr = r.ValidateParameters("context.read", map[string]any{"entity_type": "feature"})
	require.NotNil(t, derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)

	derr = r.ValidateParameters("context.read", map[string]any{
		"entity_type": "feature",
		"entity_id":   "FEAT-1",
		"extra":       true,
	})
	require.NotNil(t, derr)

	derr = r.ValidateParameters("pipeline.run", map[string]any{"pipeline": "compile"})
	require.NotNil(t, derr)
	derr = r.ValidateParameters("pipeline.run", map[string]any{"pipeline": "validate", "args": map[string]any{"force": true}})
	assert.Nil(t, derr)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]domain.ToolDescriptor{
		{ID: "a.tool"},
		{ID: "a.tool"},
	})
	require.Error(t, err)
}

func TestNewRegistryRejectsBadSchema(t *testing.T) {
	_, err := NewRegistry([]domain.ToolDescriptor{{
		ID:          "bad.schema",
		InputSchema: json.RawMessage(`{"type": 12}`),
	}})
	require.Error(t, err)
}

func TestCapabilityProfileListsAllTools(t *testing.T) {
	r := newBuiltinRegistry(t)
	profile := r.CapabilityProfile()

	assert.Len(t, profile.Capabilities, len(Builtin()))
	for _, d := range Builtin() {
		entry, ok := profile.Capabilities[d.ID]
		require.True(t, ok)
		assert.Equal(t, domain.CapabilityEnabled, entry.Status)
	}
}
