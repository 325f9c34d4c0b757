package chatclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/pkg/metricskey"
	"github.com/effective-security/mcpchat/pkg/prompts"
	"github.com/effective-security/mcpchat/pkg/schema"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "chatclient")

var (
	// ErrEmptyResponse is returned when the LLM keeps returning empty responses
	ErrEmptyResponse = errors.New("LLM returned empty response")
	// ErrToolCallsLimit is returned when the run exceeds the tool calls limit
	ErrToolCallsLimit = errors.New("tool calls limit exceeded")
	// ErrMessagesLimit is returned when the messages exceed the count or size limit
	ErrMessagesLimit = errors.New("messages limit exceeded")
	// ErrToolsNotFound is returned when the LLM keeps calling unknown tools
	ErrToolsNotFound = errors.New("too many calls of unknown tools")
)

// Client sends the user prompts to the LLM,
// executing the tool calls requested by the LLM until the final answer
type Client struct {
	model        llms.Model
	cfg          *Config
	systemPrompt string

	toolsByName map[string]tools.ITool
	toolsNames  []string
	tools       []tools.ITool
	llmToolDefs []llms.Tool
}

var _ IChat = (*Client)(nil)

// New returns the chat client for the model
func New(model llms.Model, opts ...Option) (*Client, error) {
	cfg := NewConfig(opts...)
	c := &Client{
		model:       model,
		cfg:         cfg,
		toolsByName: make(map[string]tools.ITool),
	}

	if cfg.SystemPrompt != "" {
		tmpl := prompts.PromptTemplate{
			Template:         cfg.SystemPrompt,
			TemplateFormat:   cfg.TemplateFormat,
			PartialVariables: cfg.PromptInput,
		}
		sp, err := tmpl.Format(nil)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to format system prompt")
		}
		c.systemPrompt = strings.TrimRight(sp, "\n")
	}

	for _, tool := range cfg.Tools {
		name := tool.Name()
		// use lowercase for the key
		key := strings.ToLower(name)
		if c.toolsByName[key] != nil {
			continue
		}
		params, err := toolParameters(tool)
		if err != nil {
			return nil, err
		}
		c.toolsByName[key] = tool
		c.toolsNames = append(c.toolsNames, name)
		c.tools = append(c.tools, tool)
		c.llmToolDefs = append(c.llmToolDefs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        name,
				Description: tool.Description(),
				Parameters:  params,
			},
		})
	}

	if len(c.llmToolDefs) > 0 && !model.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
		return nil, errors.Newf("model %s does not support function calling", model.GetName())
	}
	return c, nil
}

func toolParameters(tool tools.ITool) (*jsonschema.Schema, error) {
	switch p := tool.Parameters().(type) {
	case *jsonschema.Schema:
		if p == nil {
			return schema.EmptyObject(), nil
		}
		return p, nil
	case nil:
		return schema.EmptyObject(), nil
	default:
		s, err := schema.FromToolInput(p)
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid parameters of tool %s", tool.Name())
		}
		return s, nil
	}
}

// Name returns the name of the chat client
func (c *Client) Name() string {
	return c.cfg.Name
}

// Model returns the LLM
func (c *Client) Model() llms.Model {
	return c.model
}

// Tools returns the tools available to the LLM
func (c *Client) Tools() []tools.ITool {
	return c.tools
}

// SystemPrompt returns the formatted system prompt
func (c *Client) SystemPrompt() string {
	return c.systemPrompt
}

// Call sends the prompt to the LLM and returns the final response.
// If ctx has no chat context, the run uses a new chat of the default tenant.
func (c *Client) Call(ctx context.Context, prompt string) (*Response, error) {
	started := time.Now()
	defer metricskey.PerfChatRun.MeasureSince(started, c.cfg.Name)

	if chatmodel.GetChatContext(ctx) == nil {
		ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(chatmodel.DefaultTenantID, chatmodel.NewChatID(), nil))
	}

	cb := c.cfg.Callback
	if cb != nil {
		cb.OnChatStart(ctx, c, prompt)
	}

	resp, err := c.run(ctx, prompt)
	if err != nil {
		metricskey.StatsChatCallsFailed.IncrCounter(1, c.cfg.Name)
		logger.ContextKV(ctx, xlog.ERROR,
			"chat", c.cfg.Name,
			"input", slices.StringUpto(prompt, 64),
			"err", err.Error())
		if cb != nil {
			cb.OnChatError(ctx, c, prompt, err)
		}
		return nil, err
	}

	metricskey.StatsChatCallsSucceeded.IncrCounter(1, c.cfg.Name)
	if cb != nil {
		cb.OnChatEnd(ctx, c, prompt, resp)
	}
	return resp, nil
}

func (c *Client) run(ctx context.Context, prompt string) (*Response, error) {
	chatName := c.cfg.Name
	modelName := c.model.GetName()
	cb := c.cfg.Callback

	var history []llms.Message
	if c.systemPrompt != "" {
		history = append(history, llms.MessageFromTextParts(llms.RoleSystem, c.systemPrompt))
	}
	userMessage := llms.MessageFromTextParts(llms.RoleHuman, prompt)

	if c.cfg.Store != nil {
		prev := c.cfg.Store.Messages(ctx)
		kept := c.trimHistory(prev, append(append([]llms.Message{}, history...), userMessage))
		logger.ContextKV(ctx, xlog.DEBUG,
			"chat", chatName,
			"chat_id", chatmodel.GetChatID(ctx),
			"message_history", len(prev),
			"dropped", len(prev)-len(kept))
		history = append(history, kept...)
	}
	history = append(history, userMessage)
	runMessages := []llms.Message{userMessage}

	callOpts := append([]llms.CallOption{}, c.cfg.CallOptions...)
	if len(c.llmToolDefs) > 0 {
		callOpts = append(callOpts, llms.WithTools(c.llmToolDefs))
	}

	var usage Usage
	var resp *llms.ContentResponse
	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if len(history) > c.cfg.MaxMessages {
			return nil, errors.Wrapf(ErrMessagesLimit, "chat %s: %d messages", chatName, len(history))
		}
		bytesSent := llmutils.CountMessagesContentSize(history)
		if bytesSent > c.cfg.MaxContentBytes {
			return nil, errors.Wrapf(ErrMessagesLimit, "chat %s: content size %d bytes", chatName, bytesSent)
		}

		if cb != nil {
			cb.OnLLMCallStart(ctx, c, history)
		}
		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(history)), chatName, modelName)
		metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), chatName, modelName)

		var err error
		resp, err = c.generate(ctx, history, callOpts)
		usage.LLMCalls++
		if err != nil && !errors.Is(err, llms.ErrEmptyResponse) {
			return nil, errors.WithMessage(err, "failed to generate content from LLM")
		}
		if resp == nil {
			resp = &llms.ContentResponse{}
		}
		if cb != nil {
			cb.OnLLMCallEnd(ctx, c, resp)
		}

		metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(resp)), chatName, modelName)
		tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
		metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), chatName, modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), chatName, modelName)
		metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), chatName, modelName)
		usage.InputTokens += tokensIn
		usage.OutputTokens += tokensOut
		usage.TotalTokens += tokensTotal

		if isEmpty(resp) {
			retries++
			metricskey.StatsChatCallsRetried.IncrCounter(1, chatName)
			if retries >= DefaultMaxRetries {
				return nil, errors.Wrapf(ErrEmptyResponse, "chat %s: after %d attempts", chatName, retries)
			}
			logger.ContextKV(ctx, xlog.WARNING,
				"chat", chatName,
				"status", "retrying_empty_response",
				"retry_count", retries)
			continue
		}

		aiMessage, calls := toolCallsMessage(resp)
		if len(calls) == 0 {
			break
		}
		if usage.ToolCalls+len(calls) > c.cfg.MaxToolCalls {
			return nil, errors.Wrapf(ErrToolCallsLimit, "chat %s: %d calls", chatName, usage.ToolCalls+len(calls))
		}
		usage.ToolCalls += len(calls)

		toolMessage, notFound := c.executeToolCalls(ctx, calls)
		history = append(history, aiMessage, toolMessage)
		runMessages = append(runMessages, aiMessage, toolMessage)
		if notFound > DefaultMaxNotFound {
			return nil, errors.Wrapf(ErrToolsNotFound, "chat %s: %d unknown tools", chatName, notFound)
		}
	}

	res := NewResponse(resp, nil, usage)
	final := llms.MessageFromTextParts(llms.RoleAI, res.content)
	runMessages = append(runMessages, final)
	res.messages = runMessages

	if c.cfg.Store != nil {
		// only the question and the answer are kept in the history,
		// tool calls are not replayed in the next runs
		if err := c.cfg.Store.Add(ctx, userMessage, final); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"chat", chatName,
				"reason", "store",
				"err", err.Error())
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"chat", chatName,
		"status", "completed",
		"llm_calls", usage.LLMCalls,
		"tool_calls", usage.ToolCalls,
		"tokens", usage.TotalTokens,
		"ai", slices.StringUpto(res.content, 64))

	return res, nil
}

// trimHistory drops the oldest question and answer pairs of prev,
// until prev with the run messages fits the message and content limits
func (c *Client) trimHistory(prev, run []llms.Message) []llms.Message {
	runSize := llmutils.CountMessagesContentSize(run)
	for len(prev) > 0 {
		if len(run)+len(prev) <= c.cfg.MaxMessages &&
			runSize+llmutils.CountMessagesContentSize(prev) <= c.cfg.MaxContentBytes {
			break
		}
		prev = prev[min(2, len(prev)):]
	}
	return prev
}

func (c *Client) generate(ctx context.Context, history []llms.Message, opts []llms.CallOption) (*llms.ContentResponse, error) {
	defer metricskey.PerfLLMCall.MeasureSince(time.Now(), c.cfg.Name, c.model.GetName())
	return c.model.GenerateContent(ctx, history, opts...)
}

func isEmpty(resp *llms.ContentResponse) bool {
	for _, choice := range resp.Choices {
		if choice.Content != "" || len(choice.ToolCalls) > 0 {
			return false
		}
	}
	return true
}

// toolCallsMessage returns the AI message with the requested tool calls,
// along with the text of the response, if any
func toolCallsMessage(resp *llms.ContentResponse) (llms.Message, []llms.ToolCall) {
	var parts []llms.ContentPart
	var calls []llms.ToolCall
	for _, choice := range resp.Choices {
		if len(choice.ToolCalls) == 0 {
			continue
		}
		if choice.Content != "" {
			parts = append(parts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			if tc.ID == "" {
				tc.ID = fmt.Sprintf("%s_%d", tc.FunctionCall.Name, len(calls))
			}
			tc.Type = values.StringsCoalesce(tc.Type, "function")
			calls = append(calls, tc)
			parts = append(parts, tc)
		}
	}
	return llms.MessageFromParts(llms.RoleAI, parts...), calls
}

// executeToolCalls runs the tool calls in parallel and returns one tool message
// with the responses in the order of the calls
func (c *Client) executeToolCalls(ctx context.Context, calls []llms.ToolCall) (llms.Message, int) {
	chatName := c.cfg.Name
	cb := c.cfg.Callback

	responses := make([]llms.ToolCallResponse, len(calls))
	notFound := 0
	var lock sync.Mutex
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(index int, tc llms.ToolCall) {
			defer wg.Done()
			toolName := tc.FunctionCall.Name
			toolArgs := tc.FunctionCall.Arguments

			resp := llms.ToolCallResponse{
				ToolCallID: tc.ID,
				Name:       toolName,
			}
			defer func() {
				responses[index] = resp
			}()

			tool := c.toolsByName[strings.ToLower(toolName)]
			if tool == nil {
				lock.Lock()
				notFound++
				lock.Unlock()

				metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
				if cb != nil {
					cb.OnToolNotFound(ctx, c, toolName)
				}
				available := strings.Join(c.toolsNames, ", ")
				logger.ContextKV(ctx, xlog.WARNING,
					"chat", chatName,
					"status", "tool_not_found",
					"tool", toolName,
					"available_tools", available)

				resp.IsError = true
				resp.Content = fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", toolName, available)
				return
			}

			if cb != nil {
				cb.OnToolStart(ctx, tool, chatName, toolArgs)
			}

			started := time.Now()
			res, err := tool.Call(ctx, toolArgs)
			metricskey.PerfToolCall.MeasureSince(started, toolName)

			if err != nil {
				metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
				if cb != nil {
					cb.OnToolError(ctx, tool, chatName, toolArgs, err)
				}
				logger.ContextKV(ctx, xlog.WARNING,
					"chat", chatName,
					"status", "tool_call_failed",
					"tool", toolName,
					"err", err.Error())

				resp.IsError = true
				if errors.Is(err, tools.ErrFailedUnmarshalInput) {
					resp.Content = fmt.Sprintf("Failed to parse the arguments, check the JSON schema and try again: %s", err.Error())
				} else {
					resp.Content = fmt.Sprintf("Tool call failed: %s", err.Error())
				}
				return
			}

			metricskey.StatsToolCallsSucceeded.IncrCounter(1, toolName)
			if cb != nil {
				cb.OnToolEnd(ctx, tool, chatName, toolArgs, res)
			}
			resp.Content = res
		}(i, call)
	}
	wg.Wait()

	parts := make([]llms.ContentPart, 0, len(responses))
	for _, r := range responses {
		parts = append(parts, r)
	}
	return llms.MessageFromParts(llms.RoleTool, parts...), notFound
}
