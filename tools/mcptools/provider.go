package mcptools

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/schema"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/xlog"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat/tools", "mcptools")

// Option configures the Provider
type Option func(*options)

type options struct {
	defaults  map[string]map[string]any
	validate  bool
	validator *schema.Validator
}

// WithDefaults sets the default arguments per tool name,
// applied when the LLM does not provide them
func WithDefaults(defaults map[string]map[string]any) Option {
	return func(o *options) {
		o.defaults = defaults
	}
}

// WithValidation enables validation of the arguments against the tool input schema
func WithValidation(validate bool) Option {
	return func(o *options) {
		o.validate = validate
	}
}

// WithValidator sets the schema validator, the shared one is used by default
func WithValidator(v *schema.Validator) Option {
	return func(o *options) {
		if v != nil {
			o.validator = v
		}
	}
}

// Provider exposes the tools of the MCP servers to the chat client
type Provider struct {
	tools  []tools.ITool
	byName map[string]*Tool
}

type serverTool struct {
	client mcp.Client
	tool   *sdk.Tool
}

// New lists the tools of every client and returns the provider.
// When the same tool name is served by several clients,
// the name is prefixed with the client name.
func New(ctx context.Context, clients []mcp.Client, opts ...Option) (*Provider, error) {
	o := &options{
		validator: schema.DefaultValidator,
	}
	for _, opt := range opts {
		opt(o)
	}

	var list []serverTool
	counts := map[string]int{}
	for _, cl := range clients {
		res, err := cl.ListTools(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to load tools")
		}
		for _, t := range res.Tools {
			list = append(list, serverTool{client: cl, tool: t})
			counts[t.Name]++
		}
		logger.KV(xlog.INFO,
			"status", "tools_loaded",
			"server", cl.Name(),
			"count", len(res.Tools))
	}

	p := &Provider{
		byName: make(map[string]*Tool, len(list)),
	}
	for _, st := range list {
		name := st.tool.Name
		if counts[name] > 1 {
			name = ToolName(st.client.Name(), name)
		}
		t, err := newTool(st.client, st.tool, name, o)
		if err != nil {
			return nil, err
		}
		if _, ok := p.byName[name]; ok {
			return nil, errors.Newf("duplicate tool name: %s", name)
		}
		p.byName[name] = t
		p.tools = append(p.tools, t)
	}
	return p, nil
}

// Tools returns the tools in the order of clients and listing
func (p *Provider) Tools() []tools.ITool {
	return p.tools
}

// Get returns the tool by its exposed name
func (p *Provider) Get(name string) (*Tool, bool) {
	t, ok := p.byName[name]
	return t, ok
}

// Names returns the sorted tool names
func (p *Provider) Names() []string {
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ToolName returns the prefixed tool name,
// limited to the characters accepted by the LLM providers
func ToolName(client, tool string) string {
	name := invalidNameChars.ReplaceAllString(client, "_") + "_" + tool
	if len(name) > 64 {
		name = name[:64]
	}
	return strings.Trim(name, "_")
}
