package googleai

import (
	"testing"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestConvertMessages(t *testing.T) {
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "Be brief."),
		llms.MessageFromTextParts(llms.RoleHuman, "Which collections are in mydb?"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:           "call_1",
			FunctionCall: &llms.FunctionCall{Name: "list-collections", Arguments: `{"database":"mydb"}`},
		}),
		llms.MessageFromParts(llms.RoleTool,
			llms.ToolCallResponse{ToolCallID: "call_1", Name: "list-collections", Content: "users"},
			llms.ToolCallResponse{ToolCallID: "call_2", Name: "list-databases", Content: "denied", IsError: true},
		),
	}

	system, history, err := ConvertMessages(msgs)
	require.NoError(t, err)
	require.NotNil(t, system)
	assert.Equal(t, "Be brief.", system.Parts[0].Text)

	require.Len(t, history, 3)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, RoleModel, history[1].Role)
	require.NotNil(t, history[1].Parts[0].FunctionCall)
	assert.Equal(t, "mydb", history[1].Parts[0].FunctionCall.Args["database"])
	assert.Equal(t, RoleUser, history[2].Role)
	require.Len(t, history[2].Parts, 2)
	assert.Equal(t, map[string]any{"output": "users"}, history[2].Parts[0].FunctionResponse.Response)
	assert.Equal(t, map[string]any{"error": "denied"}, history[2].Parts[1].FunctionResponse.Response)

	_, _, err = ConvertMessages([]llms.Message{llms.MessageFromTextParts("generic", "hi")})
	assert.ErrorIs(t, err, llms.ErrUnexpectedRole)
}

func TestConvertCandidates(t *testing.T) {
	resp, err := convertCandidates([]*genai.Candidate{
		{
			Content: &genai.Content{
				Role: RoleModel,
				Parts: []*genai.Part{
					{Text: "Looking"},
					{Text: " up."},
					{FunctionCall: &genai.FunctionCall{Name: "list-collections", Args: map[string]any{"database": "mydb"}}},
				},
			},
			FinishReason: genai.FinishReasonStop,
		},
	}, &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     12,
		CandidatesTokenCount: 3,
		TotalTokenCount:      15,
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	c := resp.Choices[0]
	assert.Equal(t, "Looking up.", c.Content)
	assert.Equal(t, "STOP", c.StopReason)
	require.Len(t, c.ToolCalls, 1)
	assert.NotEmpty(t, c.ToolCalls[0].ID)
	assert.Equal(t, "list-collections", c.ToolCalls[0].FunctionCall.Name)
	assert.JSONEq(t, `{"database":"mydb"}`, c.ToolCalls[0].FunctionCall.Arguments)
	assert.Equal(t, int64(15), c.GenerationInfo["TotalTokens"])
	assert.Equal(t, int64(12), c.GenerationInfo["InputTokens"])

	_, err = convertCandidates([]*genai.Candidate{
		{Content: &genai.Content{Parts: []*genai.Part{{}}}},
	}, nil)
	assert.ErrorIs(t, err, ErrUnknownPartInResponse)
}

func TestGenerateConfig(t *testing.T) {
	opts := llms.NewCallOptions(
		llms.WithMaxTokens(256),
		llms.WithTemperature(0.2),
		llms.WithTools([]llms.Tool{{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:       "list-collections",
				Parameters: schema.EmptyObject(),
			},
		}}),
		llms.WithToolChoice("required"),
	)

	cfg, err := GenerateConfig(opts, genai.HarmBlockThresholdBlockOnlyHigh)
	require.NoError(t, err)
	assert.Equal(t, int32(256), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 0.0001)
	assert.Nil(t, cfg.TopP)
	assert.Len(t, cfg.SafetySettings, 4)
	require.Len(t, cfg.Tools, 1)
	require.NotNil(t, cfg.ToolConfig)
	assert.Equal(t, genai.FunctionCallingConfigModeAny, cfg.ToolConfig.FunctionCallingConfig.Mode)

	cfg, err = GenerateConfig(llms.NewCallOptions(), "")
	require.NoError(t, err)
	assert.Empty(t, cfg.SafetySettings)
	assert.Nil(t, cfg.ToolConfig)
}

func TestOptions(t *testing.T) {
	t.Setenv(APIKeyEnvVarName, "env-key")

	o := DefaultOptions()
	o.EnsureAuthPresent()
	assert.Equal(t, "env-key", o.APIKey)
	assert.Equal(t, genai.BackendGeminiAPI, o.Backend())

	WithAPIKey("explicit")(&o)
	WithCloudProject("proj")(&o)
	WithDefaultModel("")(&o)
	o.EnsureAuthPresent()
	assert.Equal(t, "explicit", o.APIKey)
	assert.Equal(t, genai.BackendVertexAI, o.Backend())
	assert.Equal(t, DefaultModel, o.DefaultModel)
}
