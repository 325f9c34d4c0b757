package app

import (
	"io"

	"github.com/effective-security/mcpchat/chatclient"
	"github.com/effective-security/mcpchat/encoding"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/store"
)

// Option configures the App
type Option func(*options)

type options struct {
	clients   []mcp.Client
	model     llms.Model
	factory   llmfactory.Factory
	store     store.MessageStore
	callbacks []chatclient.Callback
	format    encoding.Format
	trace     io.Writer
}

// WithClients sets the connected MCP clients,
// the MCP connections of the config are not used.
// The App owns the clients and closes them.
func WithClients(clients ...mcp.Client) Option {
	return func(o *options) {
		o.clients = clients
	}
}

// WithModel sets the chat model, the LLM factory is not used
func WithModel(model llms.Model) Option {
	return func(o *options) {
		o.model = model
	}
}

// WithFactory sets the LLM factory, created from the config by default
func WithFactory(f llmfactory.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithMessageStore sets the chat history store, created from the config by default.
// The App owns the store and closes it.
func WithMessageStore(s store.MessageStore) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithCallback adds the chat callback
func WithCallback(cb chatclient.Callback) Option {
	return func(o *options) {
		if cb != nil {
			o.callbacks = append(o.callbacks, cb)
		}
	}
}

// WithFormat overrides the format of the startup output
func WithFormat(format encoding.Format) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithTrace enables the run trace of each chat written to w
func WithTrace(w io.Writer) Option {
	return func(o *options) {
		o.trace = w
	}
}
