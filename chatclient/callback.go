package chatclient

import (
	"context"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/tools"
)

// IChat is the chat client as seen by the callbacks
type IChat interface {
	Name() string
	Model() llms.Model
}

// Callback receives the events of a chat run
type Callback interface {
	tools.Callback
	OnChatStart(ctx context.Context, chat IChat, input string)
	OnChatEnd(ctx context.Context, chat IChat, input string, resp *Response)
	OnChatError(ctx context.Context, chat IChat, input string, err error)
	OnLLMCallStart(ctx context.Context, chat IChat, payload []llms.Message)
	OnLLMCallEnd(ctx context.Context, chat IChat, resp *llms.ContentResponse)
	OnToolNotFound(ctx context.Context, chat IChat, tool string)
}
