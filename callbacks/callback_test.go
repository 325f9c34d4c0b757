package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/mcpchat/callbacks"
	"github.com/effective-security/mcpchat/chatclient"
	"github.com/effective-security/mcpchat/mocks/mockllms"
	"github.com/effective-security/mcpchat/mocks/mocktools"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

type fakeChat struct {
	name  string
	model llms.Model
}

func (f *fakeChat) Name() string      { return f.name }
func (f *fakeChat) Model() llms.Model { return f.model }

func newFakeChat(t *testing.T) *fakeChat {
	ctrl := gomock.NewController(t)
	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GetName().Return("gpt-4o").AnyTimes()
	return &fakeChat{name: "test-chat", model: model}
}

func newFakeTool(t *testing.T) *mocktools.MockITool {
	ctrl := gomock.NewController(t)
	tool := mocktools.NewMockITool(ctrl)
	tool.EXPECT().Name().Return("test-tool").AnyTimes()
	return tool
}

func testResponse() *chatclient.Response {
	raw := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: "test output",
				GenerationInfo: map[string]any{
					"InputTokens":  int64(10),
					"OutputTokens": int64(5),
					"TotalTokens":  int64(15),
				},
			},
		},
	}
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "test input"),
		llms.MessageFromTextParts(llms.RoleAI, "test output"),
	}
	return chatclient.NewResponse(raw, msgs, chatclient.Usage{LLMCalls: 2, ToolCalls: 1, TotalTokens: 15})
}

func fire(ctx context.Context, cb chatclient.Callback, chat chatclient.IChat, tool *mocktools.MockITool) {
	resp := testResponse()
	cb.OnChatStart(ctx, chat, "test input")
	cb.OnLLMCallStart(ctx, chat, []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "test input")})
	cb.OnLLMCallEnd(ctx, chat, resp.Raw())
	cb.OnToolStart(ctx, tool, chat.Name(), "test input")
	cb.OnToolEnd(ctx, tool, chat.Name(), "test input", "test output")
	cb.OnToolError(ctx, tool, chat.Name(), "test input", errors.New("test error"))
	cb.OnToolNotFound(ctx, chat, "missing-tool")
	cb.OnChatEnd(ctx, chat, "test input", resp)
	cb.OnChatError(ctx, chat, "test input", errors.New("chat error"))
}

func TestPrinter(t *testing.T) {
	chat := newFakeChat(t)
	tool := newFakeTool(t)

	t.Run("verbose", func(t *testing.T) {
		var buf bytes.Buffer
		fire(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeVerbose), chat, tool)

		res := buf.String()
		assert.Contains(t, res, "Chat Start: test-chat")
		assert.Contains(t, res, "Input: test input")
		assert.Contains(t, res, "LLM Call: test-chat: gpt-4o model, 1 messages")
		assert.Contains(t, res, "LLM Call End: test-chat: gpt-4o model, 1 choices")
		assert.Contains(t, res, "Tool Start: test-tool (test-chat)")
		assert.Contains(t, res, "Tool End: test-tool (test-chat)")
		assert.Contains(t, res, "Output: test output")
		assert.Contains(t, res, "Tool Error: test-tool (test-chat): test error")
		assert.Contains(t, res, "Tool Not Found: missing-tool")
		assert.Contains(t, res, "Chat End: test-chat: 2 LLM calls, 1 tool calls, 15 tokens")
		assert.Contains(t, res, "Chat Error: test-chat: chat error")
	})

	t.Run("default", func(t *testing.T) {
		var buf bytes.Buffer
		fire(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeDefault), chat, tool)

		res := buf.String()
		assert.Contains(t, res, "Tool End: test-tool (test-chat)")
		assert.NotContains(t, res, "Output: test output")
	})
}

func TestFanout(t *testing.T) {
	chat := newFakeChat(t)
	tool := newFakeTool(t)

	var buf1, buf2 bytes.Buffer
	fanout := callbacks.NewFanout(callbacks.NewPrinter(&buf1, callbacks.ModeDefault))
	fanout.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))
	fanout.Add(callbacks.NewNoop())

	fire(context.Background(), fanout, chat, tool)

	assert.NotEmpty(t, buf1.String())
	assert.Equal(t, buf1.String(), buf2.String())
}

func TestPackageLogger(t *testing.T) {
	var buf bytes.Buffer
	xlog.SetFormatter(xlog.NewStringFormatter(&buf))
	xlog.SetGlobalLogLevel(xlog.DEBUG)
	defer xlog.SetGlobalLogLevel(xlog.INFO)

	logger := xlog.NewPackageLogger("github.com/effective-security/mcpchat", "callbacks_test")
	fire(context.Background(), callbacks.NewPackageLogger(logger), newFakeChat(t), newFakeTool(t))

	res := buf.String()
	assert.Contains(t, res, "chat_start")
	assert.Contains(t, res, "llm_call_end")
	assert.Contains(t, res, "tool_error")
	assert.Contains(t, res, "chat_error")
}
