package anthropic

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// TokenEnvVarName is the environment variable with the API key
	TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec
)

// Options for the Anthropic client
type Options struct {
	Token      string
	Model      string
	BaseURL    string
	HTTPClient option.HTTPClient
	MaxRetries int
	Timeout    time.Duration
}

// Option is a functional option for the Anthropic client.
type Option func(*Options)

// WithToken passes the Anthropic API token to the client. If not set, the token
// is read from the ANTHROPIC_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *Options) {
		if token != "" {
			opts.Token = token
		}
	}
}

// WithModel passes the Anthropic model to the client.
func WithModel(model string) Option {
	return func(opts *Options) {
		if model != "" {
			opts.Model = model
		}
	}
}

// WithBaseURL passes the Anthropic base URL to the client.
// If not set, the default base URL is used.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		if baseURL != "" {
			opts.BaseURL = baseURL
		}
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithMaxRetries sets the number of retries of the SDK, 2 by default.
func WithMaxRetries(retries int) Option {
	return func(opts *Options) {
		opts.MaxRetries = retries
	}
}

// WithRequestTimeout sets the timeout of a single request, 5 minutes by default.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.Timeout = timeout
	}
}
