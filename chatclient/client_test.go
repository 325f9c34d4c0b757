package chatclient_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatclient"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/mocks/mockllms"
	"github.com/effective-security/mcpchat/mocks/mocktools"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/prompts"
	"github.com/effective-security/mcpchat/store"
	"github.com/effective-security/mcpchat/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMockModel(ctrl *gomock.Controller) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("gpt-4o-mini").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	return m
}

func newMockTool(ctrl *gomock.Controller, name string) *mocktools.MockITool {
	t := mocktools.NewMockITool(ctrl)
	t.EXPECT().Name().Return(name).AnyTimes()
	t.EXPECT().Description().Return("useful tool").AnyTimes()
	t.EXPECT().Parameters().Return(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"database": map[string]any{"type": "string"},
		},
	}).AnyTimes()
	return t
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: text,
				GenerationInfo: map[string]any{
					"InputTokens":  int64(10),
					"OutputTokens": int64(5),
					"TotalTokens":  int64(15),
				},
			},
		},
	}
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestCall_Content(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := newMockModel(ctrl)
	ms := store.NewMemoryStore(0)

	client, err := chatclient.New(model,
		chatclient.WithSystemPrompt("You are {{ .role }}."),
		chatclient.WithPromptInput(map[string]any{"role": "a MongoDB assistant"}),
		chatclient.WithMessageStore(ms),
	)
	require.NoError(t, err)
	assert.Equal(t, chatclient.DefaultName, client.Name())
	assert.Equal(t, "You are a MongoDB assistant.", client.SystemPrompt())
	assert.Equal(t, model, client.Model())
	assert.Empty(t, client.Tools())

	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 2)
			assert.Equal(t, llms.RoleSystem, msgs[0].Role)
			assert.Equal(t, "You are a MongoDB assistant.", msgs[0].Text())
			assert.Equal(t, llms.RoleHuman, msgs[1].Role)
			assert.Equal(t, "Hello MCP Client", msgs[1].Text())
			return textResponse("  Hi! How can I help?\n"), nil
		})

	ctx := chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext("t1", "c1", nil))
	resp, err := client.Call(ctx, "Hello MCP Client")
	require.NoError(t, err)
	// unchanged
	assert.Equal(t, "  Hi! How can I help?\n", resp.Content())
	assert.Equal(t, chatclient.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, LLMCalls: 1}, resp.Usage())
	require.Len(t, resp.Messages(), 2)
	assert.Equal(t, llms.RoleAI, resp.Messages()[1].Role)
	require.NotNil(t, resp.Raw())

	history := ms.Messages(ctx)
	require.Len(t, history, 2)
	assert.Equal(t, "Hello MCP Client", history[0].Text())

	// the next call sends the history
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 4)
			assert.Equal(t, "what now?", msgs[3].Text())
			return textResponse("bye"), nil
		})
	resp, err = client.Call(ctx, "what now?")
	require.NoError(t, err)
	assert.Equal(t, "bye", resp.Content())
}

func TestCall_TrimHistory(t *testing.T) {
	long := strings.Repeat("x", 200)

	tcases := []struct {
		name string
		opts []chatclient.Option
	}{
		{name: "messages", opts: []chatclient.Option{chatclient.WithMaxMessages(4)}},
		{name: "content", opts: []chatclient.Option{chatclient.WithMaxContentBytes(60)}},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			model := newMockModel(ctrl)
			ms := store.NewMemoryStore(0)

			ctx := chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext("t1", "c1", nil))
			require.NoError(t, ms.Add(ctx,
				llms.MessageFromTextParts(llms.RoleHuman, long),
				llms.MessageFromTextParts(llms.RoleAI, long),
				llms.MessageFromTextParts(llms.RoleHuman, "q2"),
				llms.MessageFromTextParts(llms.RoleAI, "a2"),
			))

			opts := append([]chatclient.Option{
				chatclient.WithSystemPrompt("be brief"),
				chatclient.WithMessageStore(ms),
			}, tc.opts...)
			client, err := chatclient.New(model, opts...)
			require.NoError(t, err)

			// the oldest pair is dropped instead of failing the call
			model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
					require.Len(t, msgs, 4)
					assert.Equal(t, "be brief", msgs[0].Text())
					assert.Equal(t, "q2", msgs[1].Text())
					assert.Equal(t, "a2", msgs[2].Text())
					assert.Equal(t, "q3", msgs[3].Text())
					return textResponse("a3"), nil
				}).Times(1)

			resp, err := client.Call(ctx, "q3")
			require.NoError(t, err)
			assert.Equal(t, "a3", resp.Content())
		})
	}
}

func TestCall_MultipleChoices(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := newMockModel(ctrl)
	client, err := chatclient.New(model)
	require.NoError(t, err)

	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "one"}, {Content: "two"}}}, nil)

	resp, err := client.Call(context.Background(), "count")
	require.NoError(t, err)
	assert.Equal(t, "one\n\ntwo", resp.Content())
}

func TestCall_Tools(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := newMockModel(ctrl)
	listTool := newMockTool(ctrl, "list-collections")
	failTool := newMockTool(ctrl, "drop-database")
	parseTool := newMockTool(ctrl, "find")

	cb := &recorder{}
	client, err := chatclient.New(model,
		chatclient.WithTools(listTool, failTool, parseTool),
		chatclient.WithCallback(cb),
		chatclient.WithCallOptions(llms.WithTemperature(0.2)),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"list-collections", "drop-database", "find"}, tools.Names(client.Tools()...))

	listTool.EXPECT().Call(gomock.Any(), `{"database":"mydb"}`).Return("users\norders", nil)
	failTool.EXPECT().Call(gomock.Any(), `{}`).Return("", errors.New("not allowed"))
	parseTool.EXPECT().Call(gomock.Any(), `{bad`).Return("", errors.Mark(errors.New("invalid json"), tools.ErrFailedUnmarshalInput))

	first := model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
			co := llms.NewCallOptions(opts...)
			assert.Equal(t, 0.2, co.Temperature)
			require.Len(t, co.Tools, 3)
			assert.Equal(t, "list-collections", co.Tools[0].Function.Name)
			require.NotNil(t, co.Tools[0].Function.Parameters)
			assert.Equal(t, "object", co.Tools[0].Function.Parameters.Type)

			return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
				Content: "Let me check.",
				ToolCalls: []llms.ToolCall{
					toolCall("c1", "list-collections", `{"database":"mydb"}`),
					toolCall("c2", "LIST-INDEXES", `{}`),
					toolCall("c3", "drop-database", `{}`),
					toolCall("", "find", `{bad`),
				},
			}}}, nil
		})
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).After(first).
		DoAndReturn(func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, msgs, 3)
			ai := msgs[1]
			assert.Equal(t, llms.RoleAI, ai.Role)
			assert.Equal(t, "Let me check.", ai.Text())
			calls := ai.ToolCalls()
			require.Len(t, calls, 4)
			assert.Equal(t, "find_3", calls[3].ID)

			tm := msgs[2]
			assert.Equal(t, llms.RoleTool, tm.Role)
			require.Len(t, tm.Parts, 4)

			r0 := tm.Parts[0].(llms.ToolCallResponse)
			assert.Equal(t, "c1", r0.ToolCallID)
			assert.Equal(t, "users\norders", r0.Content)
			assert.False(t, r0.IsError)

			r1 := tm.Parts[1].(llms.ToolCallResponse)
			assert.True(t, r1.IsError)
			assert.Contains(t, r1.Content, "Tool `LIST-INDEXES` not found")
			assert.Contains(t, r1.Content, "Available tools: list-collections, drop-database, find")

			r2 := tm.Parts[2].(llms.ToolCallResponse)
			assert.True(t, r2.IsError)
			assert.Equal(t, "Tool call failed: not allowed", r2.Content)

			r3 := tm.Parts[3].(llms.ToolCallResponse)
			assert.Equal(t, "find_3", r3.ToolCallID)
			assert.True(t, r3.IsError)
			assert.Contains(t, r3.Content, "Failed to parse the arguments")

			return textResponse("You have users and orders."), nil
		})

	resp, err := client.Call(context.Background(), "list my collections")
	require.NoError(t, err)
	assert.Equal(t, "You have users and orders.", resp.Content())
	assert.Equal(t, 2, resp.Usage().LLMCalls)
	assert.Equal(t, 4, resp.Usage().ToolCalls)
	assert.Len(t, resp.Messages(), 4)

	assert.Equal(t, []string{
		"chat_start",
		"llm_start", "llm_end",
		"llm_start", "llm_end",
		"chat_end",
	}, cb.chatEvents())
	assert.ElementsMatch(t, []string{
		"tool_start:list-collections", "tool_end:list-collections",
		"tool_not_found:LIST-INDEXES",
		"tool_start:drop-database", "tool_error:drop-database",
		"tool_start:find", "tool_error:find",
	}, cb.toolEvents())
}

func TestCall_EmptyResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := newMockModel(ctrl)
	client, err := chatclient.New(model)
	require.NoError(t, err)

	t.Run("retried", func(t *testing.T) {
		gomock.InOrder(
			model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(&llms.ContentResponse{}, nil),
			model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, llms.ErrEmptyResponse),
			model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(textResponse("finally"), nil),
		)
		resp, err := client.Call(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "finally", resp.Content())
		assert.Equal(t, 3, resp.Usage().LLMCalls)
	})

	t.Run("exceeded", func(t *testing.T) {
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{Choices: []*llms.ContentChoice{{}}}, nil).
			Times(chatclient.DefaultMaxRetries)
		_, err := client.Call(context.Background(), "hi")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chatclient.ErrEmptyResponse))
	})

	t.Run("failed", func(t *testing.T) {
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("rate limited"))
		_, err := client.Call(context.Background(), "hi")
		assert.EqualError(t, err, "failed to generate content from LLM: rate limited")
	})
}

func TestCall_Limits(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := newMockModel(ctrl)
	tool := newMockTool(ctrl, "list-collections")

	t.Run("tool_calls", func(t *testing.T) {
		client, err := chatclient.New(model,
			chatclient.WithTools(tool),
			chatclient.WithMaxToolCalls(1),
		)
		require.NoError(t, err)

		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{Choices: []*llms.ContentChoice{{
				ToolCalls: []llms.ToolCall{
					toolCall("c1", "list-collections", `{}`),
					toolCall("c2", "list-collections", `{}`),
				},
			}}}, nil)

		_, err = client.Call(context.Background(), "hi")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chatclient.ErrToolCallsLimit))
	})

	t.Run("messages", func(t *testing.T) {
		client, err := chatclient.New(model,
			chatclient.WithSystemPrompt("be brief"),
			chatclient.WithMaxMessages(1),
		)
		require.NoError(t, err)

		_, err = client.Call(context.Background(), "hi")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chatclient.ErrMessagesLimit))
	})

	t.Run("content", func(t *testing.T) {
		client, err := chatclient.New(model, chatclient.WithMaxContentBytes(8))
		require.NoError(t, err)

		_, err = client.Call(context.Background(), "a long question")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chatclient.ErrMessagesLimit))
	})

	t.Run("canceled", func(t *testing.T) {
		client, err := chatclient.New(model)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = client.Call(ctx, "hi")
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestNew_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	model := newMockModel(ctrl)

	_, err := chatclient.New(model, chatclient.WithSystemPrompt("Hello {{ .name }}"))
	require.Error(t, err)

	client, err := chatclient.New(model,
		chatclient.WithSystemPrompt("Hello {{ name }}"),
		chatclient.WithTemplateFormat(prompts.TemplateFormatJinja2),
		chatclient.WithPromptInput(map[string]any{"name": "Bob"}),
		chatclient.WithName("demo"),
	)
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob", client.SystemPrompt())
	assert.Equal(t, "demo", client.Name())
}

func TestConfig(t *testing.T) {
	cfg := chatclient.NewConfig(
		chatclient.WithMaxToolCalls(0),
		chatclient.WithMaxMessages(-1),
		chatclient.WithMaxContentBytes(0),
		chatclient.WithName(""),
		chatclient.WithTemplateFormat(""),
	)
	assert.Equal(t, chatclient.DefaultName, cfg.Name)
	assert.Equal(t, prompts.TemplateFormatGoTemplate, cfg.TemplateFormat)
	assert.Equal(t, chatclient.DefaultMaxToolCalls, cfg.MaxToolCalls)
	assert.Equal(t, chatclient.DefaultMaxMessages, cfg.MaxMessages)
	assert.Equal(t, uint64(chatclient.DefaultMaxContentBytes), cfg.MaxContentBytes)
}

type recorder struct {
	lock  sync.Mutex
	chat  []string
	tools []string
}

var _ chatclient.Callback = (*recorder)(nil)

func (r *recorder) addChat(e string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.chat = append(r.chat, e)
}

func (r *recorder) addTool(e string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tools = append(r.tools, e)
}

func (r *recorder) chatEvents() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.chat
}

func (r *recorder) toolEvents() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.tools
}

func (r *recorder) OnChatStart(context.Context, chatclient.IChat, string) { r.addChat("chat_start") }
func (r *recorder) OnChatEnd(context.Context, chatclient.IChat, string, *chatclient.Response) {
	r.addChat("chat_end")
}
func (r *recorder) OnChatError(context.Context, chatclient.IChat, string, error) {
	r.addChat("chat_error")
}
func (r *recorder) OnLLMCallStart(context.Context, chatclient.IChat, []llms.Message) {
	r.addChat("llm_start")
}
func (r *recorder) OnLLMCallEnd(context.Context, chatclient.IChat, *llms.ContentResponse) {
	r.addChat("llm_end")
}
func (r *recorder) OnToolNotFound(_ context.Context, _ chatclient.IChat, tool string) {
	r.addTool("tool_not_found:" + tool)
}
func (r *recorder) OnToolStart(_ context.Context, tool tools.ITool, _, _ string) {
	r.addTool("tool_start:" + tool.Name())
}
func (r *recorder) OnToolEnd(_ context.Context, tool tools.ITool, _, _, _ string) {
	r.addTool("tool_end:" + tool.Name())
}
func (r *recorder) OnToolError(_ context.Context, tool tools.ITool, _, _ string, _ error) {
	r.addTool("tool_error:" + tool.Name())
}
