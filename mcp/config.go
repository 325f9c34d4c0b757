package mcp

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Connection types
const (
	TypeStdio      = "stdio"
	TypeSSE        = "sse"
	TypeStreamable = "streamable"
)

const (
	// DefaultClientName is the client name sent in the initialize request
	DefaultClientName = "mcpchat"
	// DefaultClientVersion is the client version sent in the initialize request
	DefaultClientVersion = "1.0.0"
	// DefaultRequestTimeout is the timeout of a single MCP request
	DefaultRequestTimeout = 20 * time.Second
)

// Config of the MCP clients
type Config struct {
	// Name of the client implementation
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Version of the client implementation
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// RequestTimeout is the duration string for a single request, 20s by default
	RequestTimeout string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	// Connections in the order of use, the first one serves the startup sequence
	Connections []*Connection `json:"connections,omitempty" yaml:"connections,omitempty" validate:"dive"`
}

// Connection to a MCP server
type Connection struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	// Type is stdio, sse or streamable
	Type string `json:"type" yaml:"type" validate:"required,oneof=stdio sse streamable"`
	// Command and Args start the stdio server
	Command string            `json:"command,omitempty" yaml:"command,omitempty" validate:"required_if=Type stdio"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	// URL is the endpoint of sse and streamable servers
	URL     string            `json:"url,omitempty" yaml:"url,omitempty" validate:"required_unless=Type stdio"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// GetName returns the client name, or the default
func (c *Config) GetName() string {
	if c == nil || c.Name == "" {
		return DefaultClientName
	}
	return c.Name
}

// GetVersion returns the client version, or the default
func (c *Config) GetVersion() string {
	if c == nil || c.Version == "" {
		return DefaultClientVersion
	}
	return c.Version
}

// GetRequestTimeout returns the request timeout, or the default
func (c *Config) GetRequestTimeout() time.Duration {
	if c == nil || c.RequestTimeout == "" {
		return DefaultRequestTimeout
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return DefaultRequestTimeout
	}
	return d
}

// Validate returns an error if the config is invalid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid mcp config")
	}
	if c.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
			return errors.Wrapf(err, "invalid mcp request_timeout")
		}
	}
	seen := map[string]bool{}
	for _, conn := range c.Connections {
		if seen[conn.Name] {
			return errors.Newf("duplicate mcp connection: %s", conn.Name)
		}
		seen[conn.Name] = true
	}
	return nil
}
