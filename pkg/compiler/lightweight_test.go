package compiler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexrun/cortex/pkg/compiler"
	"github.com/cortexrun/cortex/pkg/config"
)

func TestLightweightCompilerSplitsPromptOnWhenIfThen(t *testing.T) {
	c := compiler.NewLightweightCompiler()

	unit, err := c.Compile(context.Background(), compiler.CompileRequest{
		Owner:  "user1",
		Prompt: "when a new email arrives if it is from my boss then draft a reply",
	})

	require.NoError(t, err)
	assert.Equal(t, "user1", unit.Owner)
	assert.Equal(t, "a new email arrives", unit.Raw.When)
	assert.Equal(t, "it is from my boss", unit.Raw.If)
	assert.Equal(t, "draft a reply", unit.Raw.Then)
	assert.Equal(t, config.TriggerTypeManual, unit.When.Type)
	assert.Equal(t, config.UnitStatusActive, unit.Status)
	require.Len(t, unit.Then, 1)
	assert.Equal(t, config.ActionTypeLLM, unit.Then[0].Type)
	assert.Equal(t, "draft a reply", unit.Then[0].Input)
	assert.NotEmpty(t, unit.ID)
}

func TestLightweightCompilerPromptWithoutIf(t *testing.T) {
	c := compiler.NewLightweightCompiler()

	unit, err := c.Compile(context.Background(), compiler.CompileRequest{
		Owner:  "user1",
		Prompt: "when a calendar event starts then summarize it",
	})

	require.NoError(t, err)
	assert.Equal(t, "a calendar event starts", unit.Raw.When)
	assert.Empty(t, unit.Raw.If)
	assert.Equal(t, "summarize it", unit.Raw.Then)
}

func TestLightweightCompilerRejectsPromptMissingWhenOrThen(t *testing.T) {
	c := compiler.NewLightweightCompiler()

	_, err := c.Compile(context.Background(), compiler.CompileRequest{
		Owner:  "user1",
		Prompt: "summarize my emails",
	})

	assert.Error(t, err)
}

func TestLightweightCompilerAcceptsStructuredRequestDirectly(t *testing.T) {
	c := compiler.NewLightweightCompiler()

	unit, err := c.Compile(context.Background(), compiler.CompileRequest{
		Owner:   "user1",
		RawWhen: "a lead converts",
		RawThen: "notify the account owner",
		Name:    "lead conversion notifier",
	})

	require.NoError(t, err)
	assert.Equal(t, "lead conversion notifier", unit.Name)
	assert.Equal(t, "a lead converts", unit.Raw.When)
	assert.Equal(t, "notify the account owner", unit.Raw.Then)
}
