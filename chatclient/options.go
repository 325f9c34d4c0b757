package chatclient

import (
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/prompts"
	"github.com/effective-security/mcpchat/store"
	"github.com/effective-security/mcpchat/tools"
)

const (
	// DefaultName is the name of the chat client in logs and metrics
	DefaultName = "mcpchat"
	// DefaultMaxRetries is the number of LLM calls on empty response
	DefaultMaxRetries = 3
	// DefaultMaxToolCalls is the limit of tool calls in one run
	DefaultMaxToolCalls = 10
	// DefaultMaxMessages is the limit of messages sent to LLM
	DefaultMaxMessages = 100
	// DefaultMaxContentBytes is the limit of the content size sent to LLM
	DefaultMaxContentBytes = 512 * 1024
	// DefaultMaxNotFound is the limit of calls to unknown tools in one LLM response
	DefaultMaxNotFound = 3
)

// Option is a function that modifies the chat client Config.
type Option func(*Config)

// Config of the chat client
type Config struct {
	Name           string
	SystemPrompt   string
	TemplateFormat prompts.TemplateFormat
	// PromptInput are the values of the system prompt template
	PromptInput map[string]any
	Tools       []tools.ITool
	Store       store.MessageStore
	Callback    Callback

	MaxToolCalls    int
	MaxMessages     int
	MaxContentBytes uint64

	CallOptions []llms.CallOption
}

// NewConfig returns the config with the options applied
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:            DefaultName,
		TemplateFormat:  prompts.TemplateFormatGoTemplate,
		MaxToolCalls:    DefaultMaxToolCalls,
		MaxMessages:     DefaultMaxMessages,
		MaxContentBytes: DefaultMaxContentBytes,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithName sets the name of the chat client
func WithName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.Name = name
		}
	}
}

// WithSystemPrompt sets the system prompt template
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) {
		c.SystemPrompt = prompt
	}
}

// WithTemplateFormat sets the format of the system prompt template
func WithTemplateFormat(format prompts.TemplateFormat) Option {
	return func(c *Config) {
		if format != "" {
			c.TemplateFormat = format
		}
	}
}

// WithPromptInput sets the values of the system prompt template
func WithPromptInput(input map[string]any) Option {
	return func(c *Config) {
		c.PromptInput = input
	}
}

// WithTools adds the tools available to the LLM
func WithTools(list ...tools.ITool) Option {
	return func(c *Config) {
		c.Tools = append(c.Tools, list...)
	}
}

// WithMessageStore sets the chat history store, no history is kept by default
func WithMessageStore(s store.MessageStore) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithCallback sets the callback handler
func WithCallback(cb Callback) Option {
	return func(c *Config) {
		c.Callback = cb
	}
}

// WithMaxToolCalls sets the limit of tool calls in one run
func WithMaxToolCalls(limit int) Option {
	return func(c *Config) {
		if limit > 0 {
			c.MaxToolCalls = limit
		}
	}
}

// WithMaxMessages sets the limit of messages sent to LLM
func WithMaxMessages(limit int) Option {
	return func(c *Config) {
		if limit > 0 {
			c.MaxMessages = limit
		}
	}
}

// WithMaxContentBytes sets the limit of the content size sent to LLM
func WithMaxContentBytes(limit uint64) Option {
	return func(c *Config) {
		if limit > 0 {
			c.MaxContentBytes = limit
		}
	}
}

// WithCallOptions adds the options of every LLM call
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(c *Config) {
		c.CallOptions = append(c.CallOptions, opts...)
	}
}
