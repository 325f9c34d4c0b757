package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/openai"
	"github.com/effective-security/mcpchat/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolCallsResponse = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [{
		"index": 0,
		"finish_reason": "tool_calls",
		"message": {
			"role": "assistant",
			"content": null,
			"tool_calls": [{
				"id": "call_1",
				"type": "function",
				"function": {"name": "list-collections", "arguments": "{\"database\":\"mydb\"}"}
			}]
		}
	}],
	"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

const textResponse = `{
	"id": "chatcmpl-2",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": {"role": "assistant", "content": "users, orders"}
	}],
	"usage": {"prompt_tokens": 20, "completion_tokens": 3, "total_tokens": 23}
}`

type capture struct {
	path string
	body map[string]any
}

func newServer(t *testing.T, response string, status int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		bs, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(bs, &c.body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestNew(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := openai.New()
	assert.ErrorIs(t, err, openai.ErrMissingToken)

	llm, err := openai.New(openai.WithToken("fakekey"))
	require.NoError(t, err)
	assert.Equal(t, openai.DefaultModel, llm.GetName())
	assert.Equal(t, llms.ProviderOpenAI, llm.GetProviderType())

	_, err = openai.New(openai.WithToken("fakekey"), openai.WithAPIType(openai.APITypeAzure))
	assert.EqualError(t, err, "base URL is required for Azure")

	llm, err = openai.New(
		openai.WithToken("fakekey"),
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithBaseURL("https://example.openai.azure.com"),
		openai.WithModel("gpt-4o"),
	)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", llm.GetName())
	assert.Equal(t, llms.ProviderAzure, llm.GetProviderType())
}

func TestGenerateContent_ToolCalls(t *testing.T) {
	srv, c := newServer(t, toolCallsResponse, http.StatusOK)

	llm, err := openai.New(
		openai.WithToken("fakekey"),
		openai.WithBaseURL(srv.URL),
		openai.WithMaxRetries(0),
		openai.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	tools := []llms.Tool{{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "list-collections",
			Description: "List collections of a database",
			Parameters: schema.MustFromAny(map[string]any{
				"type":       "object",
				"properties": map[string]any{"database": map[string]any{"type": "string"}},
				"required":   []string{"database"},
			}),
		},
	}}

	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "You are a MongoDB assistant."),
		llms.MessageFromTextParts(llms.RoleHuman, "Which collections are in mydb?"),
	}
	resp, err := llm.GenerateContent(context.Background(), msgs,
		llms.WithTools(tools),
		llms.WithToolChoice("auto"),
		llms.WithMaxTokens(256),
		llms.WithTemperature(0.2),
	)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)

	choice := resp.Choices[0]
	assert.Equal(t, "tool_calls", choice.StopReason)
	require.Len(t, choice.ToolCalls, 1)
	assert.Equal(t, "call_1", choice.ToolCalls[0].ID)
	assert.Equal(t, "list-collections", choice.ToolCalls[0].FunctionCall.Name)
	assert.Equal(t, `{"database":"mydb"}`, choice.ToolCalls[0].FunctionCall.Arguments)
	assert.EqualValues(t, 15, choice.GenerationInfo["TotalTokens"])

	assert.True(t, strings.HasSuffix(c.path, "/chat/completions"), c.path)
	assert.Equal(t, openai.DefaultModel, c.body["model"])
	assert.Equal(t, "auto", c.body["tool_choice"])
	assert.EqualValues(t, 256, c.body["max_completion_tokens"])

	sent, ok := c.body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, sent, 2)
	assert.Equal(t, "system", sent[0].(map[string]any)["role"])
	assert.Equal(t, "user", sent[1].(map[string]any)["role"])

	sentTools, ok := c.body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, sentTools, 1)
	fn := sentTools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "list-collections", fn["name"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])
}

func TestGenerateContent_ToolResponses(t *testing.T) {
	srv, c := newServer(t, textResponse, http.StatusOK)

	llm, err := openai.New(
		openai.WithToken("fakekey"),
		openai.WithBaseURL(srv.URL),
		openai.WithMaxRetries(0),
		openai.WithModel("gpt-4o"),
	)
	require.NoError(t, err)

	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "Which collections are in mydb?"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:           "call_1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "list-collections", Arguments: `{"database":"mydb"}`},
		}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: "call_1",
			Name:       "list-collections",
			Content:    "users\norders",
		}),
	}
	resp, err := llm.GenerateContent(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "users, orders", resp.Choices[0].Content)
	assert.Empty(t, resp.Choices[0].ToolCalls)

	assert.Equal(t, "gpt-4o", c.body["model"])
	sent := c.body["messages"].([]any)
	require.Len(t, sent, 3)

	assistant := sent[1].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].(map[string]any)["id"])

	tool := sent[2].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
	assert.Equal(t, "users\norders", tool["content"])
}

func TestGenerateContent_Errors(t *testing.T) {
	srv, _ := newServer(t, `{"error":{"message":"invalid key","type":"invalid_request_error"}}`, http.StatusUnauthorized)
	llm, err := openai.New(openai.WithToken("fakekey"), openai.WithBaseURL(srv.URL), openai.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = llm.GenerateContent(context.Background(), []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai: failed to create chat completion")

	srv, _ = newServer(t, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, http.StatusOK)
	llm, err = openai.New(openai.WithToken("fakekey"), openai.WithBaseURL(srv.URL), openai.WithMaxRetries(0))
	require.NoError(t, err)
	_, err = llm.GenerateContent(context.Background(), []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "hi")})
	assert.ErrorIs(t, err, llms.ErrEmptyResponse)

	_, err = llm.GenerateContent(context.Background(), []llms.Message{{Role: "generic"}})
	assert.ErrorIs(t, err, llms.ErrUnexpectedRole)
}

func TestIntegration(t *testing.T) {
	if key := os.Getenv("OPENAI_API_KEY"); key == "" || key == "fakekey" {
		t.Skip("OPENAI_API_KEY not set")
	}
	llm, err := openai.New()
	require.NoError(t, err)

	resp, err := llm.GenerateContent(context.Background(), []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "Reply with the single word: pong"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Choices)
	assert.Contains(t, strings.ToLower(resp.Choices[0].Content), "pong")
}
