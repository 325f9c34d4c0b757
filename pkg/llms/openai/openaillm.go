package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat/pkg/llms", "openai")

// ErrMissingToken is returned when the API token is not provided.
var ErrMissingToken = errors.New("missing the OpenAI API key, set it in the OPENAI_API_KEY environment variable")

// LLM is the OpenAI chat completions model
type LLM struct {
	client  openai.Client
	model   string
	apiType APIType
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := newOptions(opts...)
	if o.token == "" {
		return nil, ErrMissingToken
	}

	var reqOpts []option.RequestOption
	switch o.apiType {
	case APITypeAzure:
		if o.baseURL == "" {
			return nil, errors.New("base URL is required for Azure")
		}
		reqOpts = append(reqOpts,
			azure.WithEndpoint(o.baseURL, o.apiVersion),
			azure.WithAPIKey(o.token),
		)
	default:
		reqOpts = append(reqOpts, option.WithAPIKey(o.token))
		if o.baseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
		}
		if o.organization != "" {
			reqOpts = append(reqOpts, option.WithOrganization(o.organization))
		}
	}
	reqOpts = append(reqOpts, option.WithMaxRetries(o.maxRetries))
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}
	if o.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(o.timeout))
	}

	return &LLM{
		client:  openai.NewClient(reqOpts...),
		model:   o.model,
		apiType: o.apiType,
	}, nil
}

// GetName returns the model name
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	if o.apiType == APITypeAzure {
		return llms.ProviderAzure
	}
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(options...)

	params, err := o.chatParams(messages, opts)
	if err != nil {
		return nil, err
	}

	result, err := o.client.Chat.Completions.New(ctx, *params)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "chat_completion", "model", params.Model, "err", err.Error())
		return nil, errors.Wrap(err, "openai: failed to create chat completion")
	}
	if len(result.Choices) == 0 {
		return nil, llms.ErrEmptyResponse
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: fmt.Sprint(c.FinishReason),
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
			},
		}
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func (o *LLM) chatParams(messages []llms.Message, opts *llms.CallOptions) (*openai.ChatCompletionNewParams, error) {
	chatMsgs, err := ChatMessages(messages)
	if err != nil {
		return nil, err
	}

	model := opts.Model
	if model == "" {
		model = o.model
	}

	params := &openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: chatMsgs,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}
	if len(opts.Metadata) > 0 {
		md := shared.Metadata{}
		for k, v := range opts.Metadata {
			md[k] = fmt.Sprint(v)
		}
		params.Metadata = md
	}

	for _, tool := range opts.Tools {
		if tool.Function == nil {
			return nil, errors.Newf("unsupported tool type: %s", tool.Type)
		}
		p, err := schema.ToMap(tool.Function.Parameters)
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid parameters of tool %s", tool.Function.Name)
		}
		fn := shared.FunctionDefinitionParam{
			Name:       tool.Function.Name,
			Parameters: shared.FunctionParameters(p),
		}
		if tool.Function.Description != "" {
			fn.Description = openai.String(tool.Function.Description)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(fn))
	}

	if len(params.Tools) > 0 {
		behavior, fn := llms.ToolChoiceName(opts.ToolChoice)
		if fn != "" {
			// a named function is not forwarded, the model is required to call a tool
			behavior = llms.FunctionCallBehaviorRequired
		}
		if behavior != "" {
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(string(behavior)),
			}
		}
	}
	return params, nil
}

// ChatMessages converts the messages to the chat completion messages
func ChatMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	chatMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, mc := range messages {
		switch mc.Role {
		case llms.RoleSystem:
			chatMsgs = append(chatMsgs, openai.SystemMessage(mc.Text()))
		case llms.RoleHuman:
			chatMsgs = append(chatMsgs, openai.UserMessage(mc.Text()))
		case llms.RoleAI:
			toolCalls := mc.ToolCalls()
			if len(toolCalls) == 0 {
				chatMsgs = append(chatMsgs, openai.AssistantMessage(mc.Text()))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if txt := mc.Text(); txt != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(txt),
				}
			}
			for _, tc := range toolCalls {
				if tc.FunctionCall == nil {
					continue
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.FunctionCall.Name,
							Arguments: tc.FunctionCall.Arguments,
						},
					},
				})
			}
			chatMsgs = append(chatMsgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case llms.RoleTool:
			for _, p := range mc.Parts {
				resp, ok := p.(llms.ToolCallResponse)
				if !ok {
					return nil, errors.Errorf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, p)
				}
				content := resp.Content
				if resp.IsError && !strings.HasPrefix(content, "Error") {
					content = "Error: " + content
				}
				chatMsgs = append(chatMsgs, openai.ToolMessage(content, resp.ToolCallID))
			}
		default:
			return nil, errors.Wrapf(llms.ErrUnexpectedRole, "role %v not supported", mc.Role)
		}
	}
	return chatMsgs, nil
}
