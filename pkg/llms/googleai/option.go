package googleai

import (
	"net/http"
	"os"

	"cloud.google.com/go/auth"
	"google.golang.org/genai"
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = "gemini-2.5-flash"
	// APIKeyEnvVarName is the environment variable with the API key
	APIKeyEnvVarName = "GOOGLE_API_KEY" //nolint:gosec
)

// Options is a set of options for GoogleAI and Vertex clients.
type Options struct {
	CloudProject       string
	CloudLocation      string
	BaseURL            string
	DefaultModel       string
	DefaultMaxTokens   int
	DefaultTemperature float64
	HarmThreshold      genai.HarmBlockThreshold
	APIKey             string
	Credentials        *auth.Credentials
	HTTPClient         *http.Client
}

// DefaultOptions returns the default options
func DefaultOptions() Options {
	return Options{
		DefaultModel:  DefaultModel,
		HarmThreshold: genai.HarmBlockThresholdBlockOnlyHigh,
	}
}

// EnsureAuthPresent attempts to ensure that the client has authentication information.
// If it does not, it will attempt to use the GOOGLE_API_KEY environment variable.
func (o *Options) EnsureAuthPresent() {
	if o.Credentials == nil && o.APIKey == "" {
		if key := os.Getenv(APIKeyEnvVarName); key != "" {
			WithAPIKey(key)(o)
		}
	}
}

// Backend returns Vertex AI backend when the cloud project is set,
// otherwise the Gemini API.
func (o *Options) Backend() genai.Backend {
	if o.CloudProject != "" {
		return genai.BackendVertexAI
	}
	return genai.BackendGeminiAPI
}

// Option is a functional option for the GoogleAI client.
type Option func(*Options)

// WithAPIKey passes the API KEY (token) to the client.
func WithAPIKey(apiKey string) Option {
	return func(opts *Options) {
		opts.APIKey = apiKey
	}
}

// WithCredentials authenticates API calls with the given credentials.
func WithCredentials(credentials *auth.Credentials) Option {
	return func(opts *Options) {
		if credentials == nil {
			return
		}
		opts.Credentials = credentials
	}
}

// WithHTTPClient uses the provided HTTP client to make requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = httpClient
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithCloudProject passes the GCP cloud project name to the client,
// this enables Vertex AI backend.
func WithCloudProject(p string) Option {
	return func(opts *Options) {
		opts.CloudProject = p
	}
}

// WithCloudLocation passes the GCP cloud location (region) name to the client.
func WithCloudLocation(l string) Option {
	return func(opts *Options) {
		opts.CloudLocation = l
	}
}

// WithDefaultModel passes a default content model name to the client.
func WithDefaultModel(defaultModel string) Option {
	return func(opts *Options) {
		if defaultModel != "" {
			opts.DefaultModel = defaultModel
		}
	}
}

// WithDefaultMaxTokens sets the maximum token count for the model.
func WithDefaultMaxTokens(maxTokens int) Option {
	return func(opts *Options) {
		opts.DefaultMaxTokens = maxTokens
	}
}

// WithDefaultTemperature sets the temperature for the model.
func WithDefaultTemperature(defaultTemperature float64) Option {
	return func(opts *Options) {
		opts.DefaultTemperature = defaultTemperature
	}
}

// WithHarmThreshold sets the safety/harm setting for the model.
func WithHarmThreshold(ht genai.HarmBlockThreshold) Option {
	return func(opts *Options) {
		opts.HarmThreshold = ht
	}
}
