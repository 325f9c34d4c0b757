package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpchat/chatclient"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ chatclient.Callback = (*Noop)(nil)
	_ tools.Callback      = (*Noop)(nil)
	_ chatclient.Callback = (*Printer)(nil)
	_ tools.Callback      = (*Printer)(nil)
	_ chatclient.Callback = (*PackageLogger)(nil)
	_ tools.Callback      = (*PackageLogger)(nil)
	_ chatclient.Callback = (*Fanout)(nil)
	_ tools.Callback      = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []chatclient.Callback
}

func NewFanout(callbacks ...chatclient.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback chatclient.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnChatStart(ctx context.Context, chat chatclient.IChat, input string) {
	for _, callback := range l.callbacks {
		callback.OnChatStart(ctx, chat, input)
	}
}

func (l *Fanout) OnChatEnd(ctx context.Context, chat chatclient.IChat, input string, resp *chatclient.Response) {
	for _, callback := range l.callbacks {
		callback.OnChatEnd(ctx, chat, input, resp)
	}
}

func (l *Fanout) OnChatError(ctx context.Context, chat chatclient.IChat, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnChatError(ctx, chat, input, err)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, chat chatclient.IChat, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, chat, payload)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, chat chatclient.IChat, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, chat, resp)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, chat chatclient.IChat, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, chat, tool)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, chatName, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, chatName, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, chatName, input string, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, chatName, input, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, chatName, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, chatName, input, err)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnChatStart(ctx context.Context, chat chatclient.IChat, input string) {}
func (l *Noop) OnChatEnd(ctx context.Context, chat chatclient.IChat, input string, resp *chatclient.Response) {
}
func (l *Noop) OnChatError(ctx context.Context, chat chatclient.IChat, input string, err error) {}
func (l *Noop) OnLLMCallStart(ctx context.Context, chat chatclient.IChat, payload []llms.Message) {
}
func (l *Noop) OnLLMCallEnd(ctx context.Context, chat chatclient.IChat, resp *llms.ContentResponse) {
}
func (l *Noop) OnToolNotFound(ctx context.Context, chat chatclient.IChat, tool string)    {}
func (l *Noop) OnToolStart(ctx context.Context, tool tools.ITool, chatName, input string) {}
func (l *Noop) OnToolEnd(ctx context.Context, tool tools.ITool, chatName, input string, output string) {
}
func (l *Noop) OnToolError(ctx context.Context, tool tools.ITool, chatName, input string, err error) {
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnChatStart(ctx context.Context, chat chatclient.IChat, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Chat Start: %s\n", chat.Name())
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnChatEnd(ctx context.Context, chat chatclient.IChat, input string, resp *chatclient.Response) {
	l.lock.Lock()
	defer l.lock.Unlock()
	usage := resp.Usage()
	fmt.Fprintf(l.Out, "Chat End: %s: %d LLM calls, %d tool calls, %d tokens\n",
		chat.Name(), usage.LLMCalls, usage.ToolCalls, usage.TotalTokens)
	if l.Mode == ModeVerbose {
		llmutils.PrintMessages(l.Out, resp.Messages())
	}
}

func (l *Printer) OnChatError(ctx context.Context, chat chatclient.IChat, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Chat Error: %s: %s\n", chat.Name(), err.Error())
}

func (l *Printer) OnLLMCallStart(ctx context.Context, chat chatclient.IChat, payload []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s: %s model, %d messages\n", chat.Name(), chat.Model().GetName(), len(payload))
}

func (l *Printer) OnLLMCallEnd(ctx context.Context, chat chatclient.IChat, resp *llms.ContentResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call End: %s: %s model, %d choices\n", chat.Name(), chat.Model().GetName(), len(resp.Choices))
}

func (l *Printer) OnToolNotFound(ctx context.Context, chat chatclient.IChat, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", tool)
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, chatName, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", tool.Name(), chatName)
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, chatName, input string, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s (%s)\n", tool.Name(), chatName)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, chatName, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s (%s): %s\n", tool.Name(), chatName, err.Error())
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnChatStart(ctx context.Context, chat chatclient.IChat, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "chat_start",
		"chat", chat.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnChatEnd(ctx context.Context, chat chatclient.IChat, input string, resp *chatclient.Response) {
	usage := resp.Usage()
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "chat_end",
		"chat", chat.Name(),
		"llm_calls", usage.LLMCalls,
		"tool_calls", usage.ToolCalls,
		"tokens", usage.TotalTokens,
	)
}

func (l *PackageLogger) OnChatError(ctx context.Context, chat chatclient.IChat, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "chat_error",
		"chat", chat.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, chat chatclient.IChat, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"chat", chat.Name(),
		"model", chat.Model().GetName(),
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, chat chatclient.IChat, resp *llms.ContentResponse) {
	in, out, total := llmutils.CountTokens(resp)
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"chat", chat.Name(),
		"model", chat.Model().GetName(),
		"choices", len(resp.Choices),
		"input_tokens", in,
		"output_tokens", out,
		"total_tokens", total,
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, chat chatclient.IChat, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"chat", chat.Name(),
		"tool", tool,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, chatName, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"chat", chatName,
		"tool", tool.Name(),
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, chatName, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"chat", chatName,
		"tool", tool.Name(),
		"output", output,
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, chatName, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"chat", chatName,
		"tool", tool.Name(),
		"err", err.Error(),
	)
}
