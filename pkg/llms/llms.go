package llms

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrEmptyResponse is returned when a provider returns no choices.
	ErrEmptyResponse = errors.New("no response")
	// ErrUnexpectedRole is returned when a message role is of an unexpected type.
	ErrUnexpectedRole = errors.New("unexpected role")
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the Anthropic Messages API.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderAzure is the Azure OpenAI deployment.
	ProviderAzure ProviderType = "AZURE"
	// ProviderBedrock is the AWS Bedrock Converse API.
	ProviderBedrock ProviderType = "BEDROCK"
	// ProviderGoogleAI is the Gemini API.
	ProviderGoogleAI ProviderType = "GOOGLEAI"
	// ProviderOpenAI is the OpenAI chat completions API, or any compatible endpoint.
	ProviderOpenAI ProviderType = "OPENAI"
)

// ParseProviderType returns the provider type for the API type string,
// case-insensitive. Unknown types default to ProviderOpenAI.
func ParseProviderType(apiType string) ProviderType {
	switch strings.ToUpper(apiType) {
	case "ANTHROPIC":
		return ProviderAnthropic
	case "AZURE", "AZURE_AD":
		return ProviderAzure
	case "BEDROCK":
		return ProviderBedrock
	case "GOOGLEAI", "GEMINI":
		return ProviderGoogleAI
	default:
		return ProviderOpenAI
	}
}

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llms_mock.gen.go -package mockllms

// Model is an interface chat models implement.
type Model interface {
	// GetName returns the name of the model.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// CapabilityText is basic text or chat generation
	CapabilityText Capability = 1 << iota
	// CapabilityFunctionCalling is function/tool calling
	CapabilityFunctionCalling
	// CapabilityMultiToolCalling is several tool calls in one response
	CapabilityMultiToolCalling
	// CapabilitySystemPrompt is system prompt support
	CapabilitySystemPrompt
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderOpenAI: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderAzure: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderAnthropic: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	ProviderGoogleAI: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilitySystemPrompt,

	// Use Bedrock with models that support the Converse tool config
	ProviderBedrock: CapabilityText |
		CapabilityFunctionCalling |
		CapabilitySystemPrompt,
}

// ProviderCapabilities returns the capabilities of the provider
func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

// Supports returns true if the provider supports the capability
func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap != 0
}
