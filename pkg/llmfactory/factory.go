package llmfactory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/llms/anthropic"
	"github.com/effective-security/mcpchat/pkg/llms/bedrock"
	"github.com/effective-security/mcpchat/pkg/llms/googleai"
	"github.com/effective-security/mcpchat/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat/pkg", "llmfactory")

// ErrProviderNotFound is returned when no provider matches the request
var ErrProviderNotFound = errors.New("provider not found")

// NewLLM is a wrapper for CreateLLM to allow for overriding the default implementation.
var NewLLM = CreateLLM

// Factory is the interface for creating and managing LLM models.
type Factory interface {
	// DefaultModel returns the default LLM model.
	DefaultModel() (llms.Model, error)
	// ModelByType returns an LLM model by its provider type, e.g.
	// OPENAI, AZURE, ANTHROPIC, GOOGLEAI, BEDROCK
	ModelByType(providerType string) (llms.Model, error)
	// ModelByName returns an LLM model by its name,
	// if the model is not found, it will return the default model.
	ModelByName(preferredModels ...string) (llms.Model, error)
	// ChatModel returns the model for the chat client by its name.
	ChatModel(chatName string, preferredModels ...string) (llms.Model, error)
}

// Load returns the factory for the config file
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg *Config

	defaultProvider *ProviderConfig
	chatModels      map[string][]string
	byType          map[string]llms.Model
	byName          map[string]llms.Model
	lock            sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	f := &factory{
		cfg:        cfg,
		byType:     make(map[string]llms.Model),
		byName:     make(map[string]llms.Model),
		chatModels: make(map[string][]string),
	}

	for k, v := range cfg.ChatModels {
		f.chatModels[k] = slices.Clone(v)
	}

	if cfg.DefaultProvider != "" {
		f.defaultProvider = cfg.findProvider(cfg.DefaultProvider)
	}
	if f.defaultProvider == nil && len(f.cfg.Providers) > 0 {
		f.defaultProvider = f.cfg.Providers[0]
	}

	return f
}

// CreateLLM creates the model of the provider
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	switch llms.ParseProviderType(cfg.OpenAI.APIType) {
	case llms.ProviderAzure:
		return newAzure(cfg, preferredModels...)
	case llms.ProviderAnthropic:
		return newAnthropic(cfg, preferredModels...)
	case llms.ProviderGoogleAI:
		return newGoogleAI(cfg, preferredModels...)
	case llms.ProviderBedrock:
		return newBedrock(cfg, preferredModels...)
	default:
		return newOpenAI(cfg, preferredModels...)
	}
}

func newOpenAI(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithAPIType(openai.APITypeOpenAI),
		openai.WithModel(cfg.FindModel(preferredModels...)),
		openai.WithToken(cfg.Token),
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithOrganization(cfg.OpenAI.OrgID),
	}
	return openai.New(opts...)
}

func newAzure(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithAPIVersion(cfg.OpenAI.APIVersion),
		openai.WithModel(cfg.FindModel(preferredModels...)),
		openai.WithToken(cfg.Token),
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
	}
	return openai.New(opts...)
}

func newAnthropic(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithModel(cfg.FindModel(preferredModels...)),
		anthropic.WithToken(cfg.Token),
		anthropic.WithBaseURL(cfg.OpenAI.BaseURL),
	}
	return anthropic.New(opts...)
}

func newGoogleAI(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithDefaultModel(cfg.FindModel(preferredModels...)),
		googleai.WithCloudProject(cfg.Project),
		googleai.WithCloudLocation(cfg.Region),
		googleai.WithBaseURL(cfg.OpenAI.BaseURL),
	}
	if cfg.Token != "" {
		opts = append(opts, googleai.WithAPIKey(cfg.Token))
	}
	return googleai.New(context.Background(), opts...)
}

func newBedrock(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	opts := []bedrock.Option{
		bedrock.WithModel(cfg.FindModel(preferredModels...)),
		bedrock.WithRegion(cfg.Region),
	}
	return bedrock.New(opts...)
}

// DefaultModel returns the default model of the default provider
func (f *factory) DefaultModel() (llms.Model, error) {
	if f.defaultProvider == nil {
		return nil, errors.WithMessage(ErrProviderNotFound, "no providers configured")
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	key := f.defaultProvider.Name + "/" + f.defaultProvider.DefaultModel
	if model, ok := f.byName[key]; ok {
		return model, nil
	}
	model, err := NewLLM(f.defaultProvider, f.defaultProvider.DefaultModel)
	if err != nil {
		return nil, err
	}
	f.byName[key] = model
	return model, nil
}

func (f *factory) ModelByType(providerType string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if client, ok := f.byType[providerType]; ok {
		return client, nil
	}

	for _, cfg := range f.cfg.Providers {
		if strings.EqualFold(cfg.OpenAI.APIType, providerType) {
			model, err := NewLLM(cfg)
			if err != nil {
				return nil, err
			}

			logger.KV(xlog.DEBUG,
				"status", "created_llm",
				"type", cfg.OpenAI.APIType,
				"version", cfg.OpenAI.APIVersion,
				"name", cfg.Name)

			f.byType[providerType] = model
			return model, nil
		}
	}
	return nil, errors.Wrapf(ErrProviderNotFound, "type: %s", providerType)
}

func (f *factory) ModelByName(modelNames ...string) (llms.Model, error) {
	f.lock.Lock()
	for _, modelName := range modelNames {
		if client, ok := f.byName[modelName]; ok {
			f.lock.Unlock()
			return client, nil
		}

		for _, cfg := range f.cfg.Providers {
			if slices.Contains(cfg.AvailableModels, modelName) {
				model, err := NewLLM(cfg, modelName)
				if err != nil {
					logger.KV(xlog.ERROR,
						"reason", "NewLLM",
						"type", cfg.OpenAI.APIType,
						"models", modelNames,
						"err", err.Error(),
					)
					continue
				}

				logger.KV(xlog.DEBUG,
					"status", "created_llm",
					"type", cfg.OpenAI.APIType,
					"model", modelName,
					"name", cfg.Name)

				f.byName[modelName] = model
				f.lock.Unlock()
				return model, nil
			}
		}
	}
	f.lock.Unlock()
	return f.DefaultModel()
}

// ChatModel returns the model for the chat client by its name.
func (f *factory) ChatModel(chatName string, preferredModels ...string) (llms.Model, error) {
	if modelNames, ok := f.chatModels[chatName]; ok {
		return f.ModelByName(modelNames...)
	}
	if modelNames, ok := f.chatModels["default"]; ok {
		return f.ModelByName(modelNames...)
	}
	return f.ModelByName(preferredModels...)
}
