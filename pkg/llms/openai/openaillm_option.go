package openai

import (
	"net/http"
	"os"
	"time"
)

const (
	tokenEnvVarName        = "OPENAI_API_KEY"      //nolint:gosec
	modelEnvVarName        = "OPENAI_MODEL"        //nolint:gosec
	baseURLEnvVarName      = "OPENAI_BASE_URL"     //nolint:gosec
	organizationEnvVarName = "OPENAI_ORGANIZATION" //nolint:gosec
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = "gpt-4o-mini"
	// DefaultAPIVersion is the Azure API version
	DefaultAPIVersion = "2024-10-21"
)

// APIType is the type of OpenAI compatible API
type APIType string

const (
	// APITypeOpenAI is the OpenAI API, or a compatible endpoint
	APITypeOpenAI APIType = "OPENAI"
	// APITypeAzure is the Azure OpenAI deployment
	APITypeAzure APIType = "AZURE"
)

type options struct {
	token        string
	model        string
	baseURL      string
	organization string
	apiType      APIType
	apiVersion   string
	httpClient   *http.Client
	maxRetries   int
	timeout      time.Duration
}

// Option is a functional option for the OpenAI client.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		token:        os.Getenv(tokenEnvVarName),
		model:        os.Getenv(modelEnvVarName),
		baseURL:      os.Getenv(baseURLEnvVarName),
		organization: os.Getenv(organizationEnvVarName),
		apiType:      APITypeOpenAI,
		maxRetries:   2,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.model == "" {
		o.model = DefaultModel
	}
	if o.apiType == APITypeAzure && o.apiVersion == "" {
		o.apiVersion = DefaultAPIVersion
	}
	return o
}

// WithToken passes the OpenAI API token to the client. If not set, the token
// is read from the OPENAI_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		if token != "" {
			opts.token = token
		}
	}
}

// WithModel passes the OpenAI model to the client. If not set, the model
// is read from the OPENAI_MODEL environment variable.
func WithModel(model string) Option {
	return func(opts *options) {
		if model != "" {
			opts.model = model
		}
	}
}

// WithBaseURL passes the OpenAI base url to the client. If not set, the base url
// is read from the OPENAI_BASE_URL environment variable, then the SDK default is used.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		if baseURL != "" {
			opts.baseURL = baseURL
		}
	}
}

// WithOrganization passes the OpenAI organization to the client. If not set, the
// organization is read from the OPENAI_ORGANIZATION.
func WithOrganization(organization string) Option {
	return func(opts *options) {
		if organization != "" {
			opts.organization = organization
		}
	}
}

// WithAPIType passes the api type to the client. If not set, the default value
// is APITypeOpenAI.
func WithAPIType(apiType APIType) Option {
	return func(opts *options) {
		if apiType != "" {
			opts.apiType = apiType
		}
	}
}

// WithAPIVersion passes the api version to the client. If not set, the default value
// is DefaultAPIVersion for Azure.
func WithAPIVersion(apiVersion string) Option {
	return func(opts *options) {
		if apiVersion != "" {
			opts.apiVersion = apiVersion
		}
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithMaxRetries sets the number of retries of the SDK, 2 by default.
func WithMaxRetries(retries int) Option {
	return func(opts *options) {
		opts.maxRetries = retries
	}
}

// WithRequestTimeout sets the timeout of a single request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(opts *options) {
		opts.timeout = timeout
	}
}
