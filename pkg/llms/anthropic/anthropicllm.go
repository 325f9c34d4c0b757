package anthropic

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/schema"
	"github.com/effective-security/x/values"
)

var (
	ErrMissingToken           = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
	ErrInvalidContentType     = errors.New("anthropic: invalid content type")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = "claude-3-5-haiku-latest"
	// DefaultMaxTokens is the max tokens of a response, required by the API
	DefaultMaxTokens = 4096
)

// LLM is the Anthropic Messages model
type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic LLM client using the official Anthropic SDK.
//
// If no token is provided via options, it will attempt to read the API key
// from the ANTHROPIC_API_KEY environment variable.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:      os.Getenv(TokenEnvVarName),
		Model:      DefaultModel,
		MaxRetries: 2,
		Timeout:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(options)
	}

	if len(options.Token) == 0 {
		return nil, ErrMissingToken
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(options.MaxRetries),
		option.WithRequestTimeout(options.Timeout),
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}
	if options.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HTTPClient))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &LLM{
		Client:  &client,
		Options: options,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent implements the Model interface.
// Text blocks of the response are joined in one choice,
// along with the requested tool calls.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.Options.Model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	params, err := MessageParams(messages, &opts)
	if err != nil {
		return nil, err
	}

	result, err := o.Client.Messages.New(ctx, *params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}
	if len(result.Content) == 0 {
		return nil, llms.ErrEmptyResponse
	}

	choice := &llms.ContentChoice{
		StopReason: string(result.StopReason),
		GenerationInfo: map[string]any{
			"InputTokens":  result.Usage.InputTokens,
			"OutputTokens": result.Usage.OutputTokens,
			"TotalTokens":  result.Usage.InputTokens + result.Usage.OutputTokens,
			"ID":           result.ID,
		},
	}
	var texts []string
	for _, contentBlock := range result.Content {
		switch content := contentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			texts = append(texts, content.Text)
		case anthropic.ToolUseBlock:
			args, err := json.Marshal(content.Input)
			if err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to marshal tool use arguments")
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   content.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      content.Name,
					Arguments: string(args),
				},
			})
		}
	}
	choice.Content = strings.Join(texts, "\n")

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
	}, nil
}

// MessageParams builds the request parameters
func MessageParams(messages []llms.Message, opts *llms.CallOptions) (*anthropic.MessageNewParams, error) {
	sdkMessages, systemPrompt, err := ProcessMessages(messages)
	if err != nil {
		return nil, errors.WithMessage(err, "anthropic: failed to process messages")
	}

	tools, err := ToTools(opts.Tools)
	if err != nil {
		return nil, err
	}

	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  sdkMessages,
		MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}
	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}
	behavior, fn := llms.ToolChoiceName(opts.ToolChoice)
	if len(tools) > 0 && behavior != llms.FunctionCallBehaviorNone {
		params.Tools = tools

		switch {
		case fn != "":
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: fn}}
		case behavior == llms.FunctionCallBehaviorRequired:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		}
	}
	return params, nil
}

// ToTools converts LLM tool definitions to Anthropic SDK tool parameters.
func ToTools(tools []llms.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	sdkTools := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		if tool.Function == nil {
			return nil, errors.Newf("anthropic: unsupported tool type: %s", tool.Type)
		}
		m, err := schema.ToMap(tool.Function.Parameters)
		if err != nil {
			return nil, errors.WithMessagef(err, "anthropic: invalid parameters of tool %s", tool.Function.Name)
		}

		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: m["properties"],
		}
		if tool.Function.Parameters != nil && len(tool.Function.Parameters.Required) > 0 {
			inputSchema.Required = tool.Function.Parameters.Required
		}

		param := &anthropic.ToolParam{
			Name:        tool.Function.Name,
			InputSchema: inputSchema,
		}
		if tool.Function.Description != "" {
			param.Description = anthropic.String(tool.Function.Description)
		}
		sdkTools[i] = anthropic.ToolUnionParam{OfTool: param}
	}
	return sdkTools, nil
}

// ProcessMessages converts messages to Anthropic SDK message parameters,
// the system messages are returned as the system prompt.
func ProcessMessages(messages []llms.Message) ([]anthropic.MessageParam, string, error) {
	systemPrompt, rest := llms.SplitSystem(messages)

	chatMessages := make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		if len(msg.Parts) == 0 {
			continue
		}
		var contents []anthropic.ContentBlockParamUnion
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				if msg.Role == llms.RoleTool {
					return nil, "", errors.WithMessagef(ErrInvalidContentType, "text part in tool message")
				}
				contents = append(contents, anthropic.NewTextBlock(p.Text))
			case llms.ToolCall:
				if msg.Role != llms.RoleAI || p.FunctionCall == nil {
					return nil, "", errors.WithMessagef(ErrInvalidContentType, "tool call in %s message", msg.Role)
				}
				args := json.RawMessage(p.FunctionCall.Arguments)
				if !json.Valid(args) {
					return nil, "", errors.Newf("anthropic: invalid arguments of tool call %s", p.ID)
				}
				contents = append(contents, anthropic.NewToolUseBlock(p.ID, args, p.FunctionCall.Name))
			case llms.ToolCallResponse:
				if msg.Role != llms.RoleTool {
					return nil, "", errors.WithMessagef(ErrInvalidContentType, "tool response in %s message", msg.Role)
				}
				contents = append(contents, anthropic.NewToolResultBlock(p.ToolCallID, p.Content, p.IsError))
			default:
				return nil, "", errors.WithMessagef(ErrInvalidContentType, "%T", part)
			}
		}

		switch msg.Role {
		case llms.RoleHuman, llms.RoleTool:
			chatMessages = append(chatMessages, anthropic.NewUserMessage(contents...))
		case llms.RoleAI:
			chatMessages = append(chatMessages, anthropic.NewAssistantMessage(contents...))
		default:
			return nil, "", errors.WithMessagef(ErrUnsupportedMessageType, "%v", msg.Role)
		}
	}
	return chatMessages, systemPrompt, nil
}
