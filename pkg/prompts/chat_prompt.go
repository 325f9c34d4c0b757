package prompts

import (
	"strings"

	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llmutils"
)

// ChatPromptValue is a prompt value that is a list of chat messages.
type ChatPromptValue []llms.Message

// String returns the chat message slice as a buffer string.
func (v ChatPromptValue) String() string {
	var buf strings.Builder
	llmutils.PrintMessages(&buf, v)
	return buf.String()
}

// Messages returns the ChatMessage slice.
func (v ChatPromptValue) Messages() []llms.Message {
	return v
}

// MessageFormatter formats the values into messages.
type MessageFormatter interface {
	FormatMessages(values map[string]any) ([]llms.Message, error)
	GetInputVariables() []string
}

// MessagePromptTemplate is a prompt template of a message with a role.
type MessagePromptTemplate struct {
	Role   llms.Role
	Prompt PromptTemplate
}

var _ MessageFormatter = MessagePromptTemplate{}

// NewSystemMessagePromptTemplate creates a system message template
func NewSystemMessagePromptTemplate(template string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:   llms.RoleSystem,
		Prompt: NewPromptTemplate(template, inputVariables),
	}
}

// NewHumanMessagePromptTemplate creates a human message template
func NewHumanMessagePromptTemplate(template string, inputVariables []string) MessagePromptTemplate {
	return MessagePromptTemplate{
		Role:   llms.RoleHuman,
		Prompt: NewPromptTemplate(template, inputVariables),
	}
}

// FormatMessages implements MessageFormatter
func (p MessagePromptTemplate) FormatMessages(values map[string]any) ([]llms.Message, error) {
	text, err := p.Prompt.Format(values)
	if err != nil {
		return nil, err
	}
	return []llms.Message{llms.MessageFromTextParts(p.Role, text)}, nil
}

// GetInputVariables implements MessageFormatter
func (p MessagePromptTemplate) GetInputVariables() []string {
	return p.Prompt.InputVariables
}

// ChatPromptTemplate is a list of message templates.
type ChatPromptTemplate struct {
	Messages []MessageFormatter
}

// NewChatPromptTemplate creates a chat prompt template from the message formatters
func NewChatPromptTemplate(messages []MessageFormatter) ChatPromptTemplate {
	return ChatPromptTemplate{Messages: messages}
}

// FormatPrompt formats the messages into a chat prompt value
func (p ChatPromptTemplate) FormatPrompt(values map[string]any) (ChatPromptValue, error) {
	msgs, err := p.FormatMessages(values)
	if err != nil {
		return nil, err
	}
	return ChatPromptValue(msgs), nil
}

// FormatMessages formats the messages with the values
func (p ChatPromptTemplate) FormatMessages(values map[string]any) ([]llms.Message, error) {
	var res []llms.Message
	for _, m := range p.Messages {
		msgs, err := m.FormatMessages(values)
		if err != nil {
			return nil, err
		}
		res = append(res, msgs...)
	}
	return res, nil
}

// GetInputVariables returns the input variables of all messages
func (p ChatPromptTemplate) GetInputVariables() []string {
	var res []string
	for _, m := range p.Messages {
		res = append(res, m.GetInputVariables()...)
	}
	return res
}
