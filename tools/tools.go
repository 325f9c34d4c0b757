package tools

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llmutils"
)

//go:generate mockgen -source=tools.go -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools

// ErrFailedUnmarshalInput is returned when the tool input can not be parsed.
// The chat client returns it to the LLM as the tool response, so the call can be retried.
var ErrFailedUnmarshalInput = errors.New("failed to unmarshal input")

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() any

	// Call executes the tool with the given input and returns the result.
	// If the tool fails to parse the input, it should return ErrFailedUnmarshalInput error.
	Call(context.Context, string) (string, error)
}

// Callback receives the tool events of a chat run
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, chatName, input string)
	OnToolEnd(ctx context.Context, tool ITool, chatName, input string, output string)
	OnToolError(ctx context.Context, tool ITool, chatName, input string, err error)
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions returns the names and descriptions of the tools
// as a JSON block for a prompt
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	return llmutils.BackticksJSON(llmutils.ToJSONIndent(d))
}

// Names returns the names of the tools
func Names(list ...ITool) []string {
	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name())
	}
	return names
}
