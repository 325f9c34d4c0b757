package bedrock

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/schema"
)

// DefaultModel is used when no model is configured
const DefaultModel = "anthropic.claude-3-5-haiku-20241022-v1:0"

// ConverseAPI is the subset of the bedrockruntime client used by the LLM.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// LLM is a Bedrock LLM implementation on the Converse API.
type LLM struct {
	modelID string
	client  ConverseAPI
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Bedrock LLM implementation.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		modelID: DefaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}
		if o.accessKeyID != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(o.accessKeyID, o.secretAccessKey, o.sessionToken)))
		}
		cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "bedrock: failed to load AWS config")
		}
		o.client = bedrockruntime.NewFromConfig(cfg)
	}

	return &LLM{
		client:  o.client,
		modelID: o.modelID,
	}, nil
}

// GetName implements the Model interface.
func (l *LLM) GetName() string {
	return l.modelID
}

// GetProviderType implements the Model interface.
func (l *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderBedrock
}

// GenerateContent implements llms.Model.
func (l *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: l.modelID,
	}
	for _, opt := range options {
		opt(&opts)
	}

	input, err := ConverseInput(messages, &opts)
	if err != nil {
		return nil, err
	}

	out, err := l.client.Converse(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: converse failed")
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return nil, llms.ErrEmptyResponse
	}

	choice := &llms.ContentChoice{
		StopReason:     string(out.StopReason),
		GenerationInfo: map[string]any{},
	}
	if out.Usage != nil {
		choice.GenerationInfo["InputTokens"] = int64(aws.ToInt32(out.Usage.InputTokens))
		choice.GenerationInfo["OutputTokens"] = int64(aws.ToInt32(out.Usage.OutputTokens))
		choice.GenerationInfo["TotalTokens"] = int64(aws.ToInt32(out.Usage.TotalTokens))
	}

	var texts []string
	for _, block := range msg.Value.Content {
		switch c := block.(type) {
		case *types.ContentBlockMemberText:
			texts = append(texts, c.Value)
		case *types.ContentBlockMemberToolUse:
			args := "{}"
			if c.Value.Input != nil {
				js, err := c.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return nil, errors.Wrap(err, "bedrock: failed to encode tool input")
				}
				args = string(js)
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   aws.ToString(c.Value.ToolUseId),
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      aws.ToString(c.Value.Name),
					Arguments: args,
				},
			})
		}
	}
	choice.Content = strings.Join(texts, "\n")

	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

// ConverseInput builds the Converse request
func ConverseInput(messages []llms.Message, opts *llms.CallOptions) (*bedrockruntime.ConverseInput, error) {
	system, rest := llms.SplitSystem(messages)
	msgs, err := processMessages(rest)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(opts.Model),
		Messages: msgs,
	}
	if system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}

	inf := &types.InferenceConfiguration{}
	hasInf := false
	if opts.MaxTokens > 0 {
		inf.MaxTokens = aws.Int32(int32(opts.MaxTokens))
		hasInf = true
	}
	if opts.Temperature > 0 {
		inf.Temperature = aws.Float32(float32(opts.Temperature))
		hasInf = true
	}
	if opts.TopP > 0 {
		inf.TopP = aws.Float32(float32(opts.TopP))
		hasInf = true
	}
	if len(opts.StopWords) > 0 {
		inf.StopSequences = opts.StopWords
		hasInf = true
	}
	if hasInf {
		input.InferenceConfig = inf
	}

	behavior, fn := llms.ToolChoiceName(opts.ToolChoice)
	if len(opts.Tools) > 0 && behavior != llms.FunctionCallBehaviorNone {
		tc := &types.ToolConfiguration{}
		for _, tool := range opts.Tools {
			if tool.Function == nil {
				return nil, errors.Newf("bedrock: unsupported tool type: %s", tool.Type)
			}
			m, err := schema.ToMap(tool.Function.Parameters)
			if err != nil {
				return nil, errors.WithMessagef(err, "bedrock: invalid parameters of tool %s", tool.Function.Name)
			}
			spec := types.ToolSpecification{
				Name:        aws.String(tool.Function.Name),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(m)},
			}
			if tool.Function.Description != "" {
				spec.Description = aws.String(tool.Function.Description)
			}
			tc.Tools = append(tc.Tools, &types.ToolMemberToolSpec{Value: spec})
		}
		switch {
		case fn != "":
			tc.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(fn)}}
		case behavior == llms.FunctionCallBehaviorRequired:
			tc.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
		}
		input.ToolConfig = tc
	}
	return input, nil
}

// processMessages converts the messages to the Converse messages,
// consecutive messages of the same role are merged as the API requires alternating roles.
func processMessages(messages []llms.Message) ([]types.Message, error) {
	res := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		var role types.ConversationRole
		switch m.Role {
		case llms.RoleHuman, llms.RoleTool:
			role = types.ConversationRoleUser
		case llms.RoleAI:
			role = types.ConversationRoleAssistant
		default:
			return nil, errors.Wrapf(llms.ErrUnexpectedRole, "bedrock: role %v not supported", m.Role)
		}

		var blocks []types.ContentBlock
		for _, part := range m.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				if p.Text == "" {
					continue
				}
				blocks = append(blocks, &types.ContentBlockMemberText{Value: p.Text})
			case llms.ToolCall:
				if p.FunctionCall == nil {
					continue
				}
				var input any = map[string]any{}
				if p.FunctionCall.Arguments != "" {
					if err := json.Unmarshal([]byte(p.FunctionCall.Arguments), &input); err != nil {
						return nil, errors.Wrapf(err, "bedrock: invalid arguments of tool call %s", p.ID)
					}
				}
				blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(p.ID),
					Name:      aws.String(p.FunctionCall.Name),
					Input:     document.NewLazyDocument(input),
				}})
			case llms.ToolCallResponse:
				result := types.ToolResultBlock{
					ToolUseId: aws.String(p.ToolCallID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: p.Content},
					},
				}
				if p.IsError {
					result.Status = types.ToolResultStatusError
				}
				blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: result})
			default:
				return nil, errors.Newf("bedrock: unsupported content part: %T", part)
			}
		}
		if len(blocks) == 0 {
			continue
		}

		if n := len(res); n > 0 && res[n-1].Role == role {
			res[n-1].Content = append(res[n-1].Content, blocks...)
			continue
		}
		res = append(res, types.Message{Role: role, Content: blocks})
	}
	return res, nil
}
