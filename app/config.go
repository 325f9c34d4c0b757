package app

import (
	"maps"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/encoding"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/mcpchat/pkg/prompts"
	"github.com/effective-security/mcpchat/store"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

const (
	// DefaultStartupTool is the tool called by the startup sequence
	DefaultStartupTool = "list-collections"
	// DefaultDatabase is the database argument of the startup tool
	DefaultDatabase = "mydb"
)

// DefaultStartupArguments returns the arguments of the startup tool
func DefaultStartupArguments() map[string]any {
	return map[string]any{"database": DefaultDatabase}
}

// Config of the application
type Config struct {
	LLM     *llmfactory.Config `json:"llm,omitempty" yaml:"llm,omitempty"`
	MCP     *mcp.Config        `json:"mcp,omitempty" yaml:"mcp,omitempty"`
	Chat    ChatConfig         `json:"chat" yaml:"chat"`
	Store   store.Config       `json:"store" yaml:"store"`
	Startup StartupConfig      `json:"startup" yaml:"startup"`
}

// ChatConfig of the chat client
type ChatConfig struct {
	// Name of the chat client, used to find the model in llm.chat_models
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Models are the preferred models, the default model of the provider is used otherwise
	Models         []string       `json:"models,omitempty" yaml:"models,omitempty"`
	SystemPrompt   string         `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	TemplateFormat string         `json:"template_format,omitempty" yaml:"template_format,omitempty" validate:"omitempty,oneof=go-template jinja2"`
	PromptInput    map[string]any `json:"prompt_input,omitempty" yaml:"prompt_input,omitempty"`

	MaxToolCalls    int    `json:"max_tool_calls,omitempty" yaml:"max_tool_calls,omitempty" validate:"gte=0"`
	MaxMessages     int    `json:"max_messages,omitempty" yaml:"max_messages,omitempty" validate:"gte=0"`
	MaxContentBytes uint64 `json:"max_content_bytes,omitempty" yaml:"max_content_bytes,omitempty"`

	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`

	// ToolDefaults are the default arguments per tool name,
	// applied when the LLM does not provide them
	ToolDefaults map[string]map[string]any `json:"tool_defaults,omitempty" yaml:"tool_defaults,omitempty"`
	// ValidateToolArgs enables validation of the LLM arguments against the tool input schema
	ValidateToolArgs bool `json:"validate_tool_args,omitempty" yaml:"validate_tool_args,omitempty"`
}

// StartupConfig of the startup sequence
type StartupConfig struct {
	// Tool to call, list-collections by default
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty"`
	// Arguments of the tool, {database: mydb} by default
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	// Format of the printed results: text|json|yaml|toml
	Format string `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=text json yaml toml"`
}

// GetTool returns the startup tool name
func (c *StartupConfig) GetTool() string {
	if c.Tool == "" {
		return DefaultStartupTool
	}
	return c.Tool
}

// GetArguments returns a copy of the startup tool arguments
func (c *StartupConfig) GetArguments() map[string]any {
	if c.Arguments == nil {
		return DefaultStartupArguments()
	}
	return maps.Clone(c.Arguments)
}

// Validate returns an error if the config is invalid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if c.LLM != nil {
		if err := c.LLM.Validate(); err != nil {
			return err
		}
	}
	if c.MCP != nil {
		if err := c.MCP.Validate(); err != nil {
			return err
		}
	}
	if _, err := prompts.ParseTemplateFormat(c.Chat.TemplateFormat); err != nil {
		return err
	}
	if _, err := encoding.ParseFormat(c.Startup.Format); err != nil {
		return err
	}
	return nil
}

// LoadConfig loads the config from file, the ${ENV} values are expanded.
// Empty file returns the default config.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, errors.WithMessagef(err, "failed to load config %q", file)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
