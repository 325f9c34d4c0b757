package googleai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/googleai/internal/genaiutils"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

var (
	ErrNoContentInResponse   = errors.New("no content in generation response")
	ErrUnknownPartInResponse = errors.New("unknown part type in generation response")
)

const (
	CITATIONS = "citations"
	SAFETY    = "safety"
	RoleModel = "model"
	RoleUser  = "user"
)

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.DefaultModel
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the [llms.Model] interface.
func (g *GoogleAI) GenerateContent(
	ctx context.Context,
	messages []llms.Message,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model:       g.opts.DefaultModel,
		MaxTokens:   g.opts.DefaultMaxTokens,
		Temperature: g.opts.DefaultTemperature,
	}
	for _, opt := range options {
		opt(&opts)
	}

	callCfg, err := GenerateConfig(&opts, g.opts.HarmThreshold)
	if err != nil {
		return nil, err
	}

	system, history, err := ConvertMessages(messages)
	if err != nil {
		return nil, err
	}
	callCfg.SystemInstruction = system

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, history, callCfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to generate content")
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrNoContentInResponse
	}
	return convertCandidates(resp.Candidates, resp.UsageMetadata)
}

// GenerateConfig populates generation controls from the call options
func GenerateConfig(opts *llms.CallOptions, harm genai.HarmBlockThreshold) (*genai.GenerateContentConfig, error) {
	callCfg := &genai.GenerateContentConfig{
		StopSequences:   opts.StopWords,
		MaxOutputTokens: int32(opts.MaxTokens),
		Temperature:     genaiutils.Float32Ptr(float32(opts.Temperature)),
		TopP:            genaiutils.Float32Ptr(float32(opts.TopP)),
	}

	if harm != "" {
		for _, cat := range []genai.HarmCategory{
			genai.HarmCategoryDangerousContent,
			genai.HarmCategoryHarassment,
			genai.HarmCategoryHateSpeech,
			genai.HarmCategorySexuallyExplicit,
		} {
			callCfg.SafetySettings = append(callCfg.SafetySettings, &genai.SafetySetting{
				Category:  cat,
				Threshold: harm,
			})
		}
	}

	var err error
	if callCfg.Tools, err = genaiutils.ConvertTools(opts.Tools); err != nil {
		return nil, err
	}
	if len(callCfg.Tools) > 0 {
		callCfg.ToolConfig = genaiutils.ConvertToolChoice(opts.ToolChoice)
	}
	return callCfg, nil
}

// ConvertMessages converts the messages to the system instruction and the history.
func ConvertMessages(messages []llms.Message) (*genai.Content, []*genai.Content, error) {
	system, rest := llms.SplitSystem(messages)

	var instruction *genai.Content
	if system != "" {
		instruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	history := make([]*genai.Content, 0, len(rest))
	for _, mc := range rest {
		content, err := convertContent(mc)
		if err != nil {
			return nil, nil, err
		}
		if len(content.Parts) == 0 {
			continue
		}
		history = append(history, content)
	}
	return instruction, history, nil
}

// convertCandidates converts a sequence of genai.Candidate to a response.
func convertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) (*llms.ContentResponse, error) {
	var contentResponse llms.ContentResponse

	for _, candidate := range candidates {
		buf := strings.Builder{}
		var toolCalls []llms.ToolCall

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.Thought:
					// skip thought summaries
				case part.FunctionCall != nil:
					b, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, errors.Wrap(err, "googleai: failed to marshal function call args")
					}
					id := part.FunctionCall.ID
					if id == "" {
						// the Gemini API does not return IDs, the response is matched by name
						id = "call_" + uuid.NewString()
					}
					toolCalls = append(toolCalls, llms.ToolCall{
						ID:   id,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(b),
						},
					})
				case part.Text != "":
					buf.WriteString(part.Text)
				default:
					return nil, errors.Wrapf(ErrUnknownPartInResponse, "not text or tool")
				}
			}
		}

		metadata := map[string]any{
			CITATIONS: candidate.CitationMetadata,
			SAFETY:    candidate.SafetyRatings,
		}
		if usage != nil {
			metadata["InputTokens"] = int64(usage.PromptTokenCount)
			metadata["OutputTokens"] = int64(usage.CandidatesTokenCount + usage.ToolUsePromptTokenCount + usage.ThoughtsTokenCount)
			metadata["TotalTokens"] = int64(usage.TotalTokenCount)
		}

		contentResponse.Choices = append(contentResponse.Choices,
			&llms.ContentChoice{
				Content:        buf.String(),
				StopReason:     string(candidate.FinishReason),
				GenerationInfo: metadata,
				ToolCalls:      toolCalls,
			})
	}
	return &contentResponse, nil
}

// convertParts converts between a sequence of message parts and genai parts.
func convertParts(parts []llms.ContentPart) ([]*genai.Part, error) {
	convertedParts := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		out := new(genai.Part)

		switch p := part.(type) {
		case llms.TextContent:
			if p.Text == "" {
				continue
			}
			out.Text = p.Text
		case llms.ToolCall:
			fc := p.FunctionCall
			if fc == nil {
				continue
			}
			argsMap := map[string]any{}
			if fc.Arguments != "" {
				if err := json.Unmarshal([]byte(fc.Arguments), &argsMap); err != nil {
					return nil, errors.Wrapf(err, "googleai: invalid arguments of tool call %s", p.ID)
				}
			}
			out.FunctionCall = &genai.FunctionCall{
				Name: fc.Name,
				Args: argsMap,
			}
		case llms.ToolCallResponse:
			key := "output"
			if p.IsError {
				key = "error"
			}
			out.FunctionResponse = &genai.FunctionResponse{
				Name: p.Name,
				Response: map[string]any{
					key: p.Content,
				},
			}
		default:
			return nil, errors.Newf("googleai: unsupported content part: %T", part)
		}

		convertedParts = append(convertedParts, out)
	}
	return convertedParts, nil
}

// convertContent converts a message to genai content.
func convertContent(content llms.Message) (*genai.Content, error) {
	parts, err := convertParts(content.Parts)
	if err != nil {
		return nil, err
	}

	c := &genai.Content{
		Parts: parts,
	}

	switch content.Role {
	case llms.RoleAI:
		c.Role = RoleModel
	case llms.RoleHuman, llms.RoleTool:
		c.Role = RoleUser
	default:
		return nil, errors.Wrapf(llms.ErrUnexpectedRole, "googleai: role %v not supported", content.Role)
	}

	return c, nil
}
