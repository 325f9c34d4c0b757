package chatclient

import (
	"strings"

	"github.com/effective-security/mcpchat/pkg/llms"
)

// Usage is the token and call counts of a run
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
	LLMCalls     int   `json:"llm_calls"`
	ToolCalls    int   `json:"tool_calls"`
}

// Response of a chat run
type Response struct {
	content  string
	raw      *llms.ContentResponse
	messages []llms.Message
	usage    Usage
}

// NewResponse returns the response of a run
func NewResponse(raw *llms.ContentResponse, messages []llms.Message, usage Usage) *Response {
	return &Response{
		content:  choicesContent(raw.Choices),
		raw:      raw,
		messages: messages,
		usage:    usage,
	}
}

// Content returns the text of the final LLM response.
// The content of several choices is separated by a blank line.
func (r *Response) Content() string {
	return r.content
}

// Messages returns the messages of the run,
// starting from the user message
func (r *Response) Messages() []llms.Message {
	return r.messages
}

// Usage returns the token and call counts of the run
func (r *Response) Usage() Usage {
	return r.usage
}

// Raw returns the final LLM response
func (r *Response) Raw() *llms.ContentResponse {
	return r.raw
}

func choicesContent(choices []*llms.ContentChoice) string {
	if len(choices) == 1 {
		return choices[0].Content
	}
	var b strings.Builder
	for i, choice := range choices {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(choice.Content)
	}
	return b.String()
}
