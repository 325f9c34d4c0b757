package llmfactory

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Config of the LLM providers
type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" validate:"dive"`
	// DefaultProvider specifies the default provider to use,
	// the first provider is used if not set
	DefaultProvider string `json:"default_provider,omitempty" yaml:"default_provider,omitempty"`
	// ChatModels specifies the mapping of chat clients to models.
	// key is the chat client name, value is the list of preferred models.
	// Use `default: [<model_name>]` as the default model for chats.
	ChatModels map[string][]string `json:"chat_models,omitempty" yaml:"chat_models,omitempty"`
}

// ProviderConfig for a LLM provider
type ProviderConfig struct {
	Name            string       `json:"name" yaml:"name" validate:"required"`
	Token           string       `json:"token,omitempty" yaml:"token,omitempty"`
	DefaultModel    string       `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string     `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	OpenAI          OpenAIConfig `json:"open_ai" yaml:"open_ai"`
	// Region is the AWS region for BEDROCK,
	// or the cloud location for GOOGLEAI on Vertex.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Project is the GCP project for GOOGLEAI on Vertex.
	Project string `json:"project,omitempty" yaml:"project,omitempty"`
}

// OpenAIConfig specifies options config
type OpenAIConfig struct {
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	// APIType specifies the type of API to use:
	// OPENAI|AZURE|AZURE_AD|ANTHROPIC|GOOGLEAI|BEDROCK
	APIType string `json:"api_type,omitempty" yaml:"api_type,omitempty" validate:"omitempty,oneof=OPENAI OPEN_AI AZURE AZURE_AD ANTHROPIC GOOGLEAI GEMINI BEDROCK openai open_ai azure azure_ad anthropic googleai gemini bedrock"`
	// OrgID specifies which organization's quota and billing should be used when making API requests.
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
}

// FindModel returns the first of preferred models available at the provider,
// or the provider's default model
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// Validate returns an error if the config is invalid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid llm config")
	}
	if c.DefaultProvider != "" && c.findProvider(c.DefaultProvider) == nil {
		return errors.Wrapf(ErrProviderNotFound, "default provider %q", c.DefaultProvider)
	}
	return nil
}

func (c *Config) findProvider(name string) *ProviderConfig {
	for _, p := range c.Providers {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
