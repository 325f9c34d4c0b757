package mcptools

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/schema"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrToolResult marks the errors reported by the MCP server in the tool result
var ErrToolResult = errors.New("tool returned an error")

// Tool is a MCP server tool exposed to the LLM
type Tool struct {
	client   mcp.Client
	tool     *sdk.Tool
	name     string
	params   *jsonschema.Schema
	defaults map[string]any

	validate  bool
	validator *schema.Validator
}

var _ tools.ITool = (*Tool)(nil)

func newTool(client mcp.Client, tool *sdk.Tool, name string, o *options) (*Tool, error) {
	params, err := schema.FromToolInput(tool.InputSchema)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid input schema of tool %s", tool.Name)
	}

	defaults := o.defaults[name]
	if defaults == nil {
		defaults = o.defaults[tool.Name]
	}

	return &Tool{
		client:    client,
		tool:      tool,
		name:      name,
		params:    params,
		defaults:  defaults,
		validate:  o.validate,
		validator: o.validator,
	}, nil
}

// Name returns the name exposed to the LLM
func (t *Tool) Name() string {
	return t.name
}

// ServerToolName returns the tool name on the MCP server
func (t *Tool) ServerToolName() string {
	return t.tool.Name
}

// Client returns the MCP client serving the tool
func (t *Tool) Client() mcp.Client {
	return t.client
}

func (t *Tool) Description() string {
	if t.tool.Description != "" {
		return t.tool.Description
	}
	return t.tool.Title
}

func (t *Tool) Parameters() any {
	return t.params
}

// Call parses the LLM arguments, calls the MCP tool and returns the result text
func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	args, err := t.Arguments(input)
	if err != nil {
		return "", err
	}

	started := time.Now()
	res, err := t.client.CallTool(ctx, t.tool.Name, args)
	if err != nil {
		return "", err
	}

	text, err := ResultText(res)
	if err != nil {
		return "", err
	}
	if res.IsError {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_error",
			"tool", t.name,
			"result", text)
		return "", errors.Mark(errors.Newf("tool %s: %s", t.name, text), ErrToolResult)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", t.name,
		"elapsed", time.Since(started).String(),
		"size", len(text))
	return text, nil
}

// Arguments parses the LLM input, applies the default arguments
// and validates the result when enabled
func (t *Tool) Arguments(input string) (map[string]any, error) {
	doc, err := normalizeInput(input)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid arguments of tool %s", t.name), tools.ErrFailedUnmarshalInput)
	}

	for key, val := range t.defaults {
		if gjson.Get(doc, key).Exists() {
			continue
		}
		doc, err = sjson.Set(doc, key, val)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to set default %s of tool %s", key, t.name)
		}
	}

	if t.validate {
		if err = t.validator.Validate(t.tool.InputSchema, []byte(doc)); err != nil {
			return nil, errors.Mark(errors.WithMessagef(err, "tool %s", t.name), tools.ErrFailedUnmarshalInput)
		}
	}

	args := map[string]any{}
	if err = json.Unmarshal([]byte(doc), &args); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid arguments of tool %s", t.name), tools.ErrFailedUnmarshalInput)
	}
	return args, nil
}

// normalizeInput returns the input as a JSON object,
// the LLMs may send an empty input, a fenced block or a JSON string with the object
func normalizeInput(input string) (string, error) {
	input = trimFence(input)
	if input == "" {
		return "{}", nil
	}

	var val any
	if err := ljson.Unmarshal([]byte(input), &val); err != nil {
		return "", err
	}
	if s, ok := val.(string); ok {
		return normalizeInput(s)
	}
	if val == nil {
		return "{}", nil
	}
	if _, ok := val.(map[string]any); !ok {
		return "", errors.Newf("expected JSON object, got %T", val)
	}
	js, err := json.Marshal(val)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(js), nil
}

func trimFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ResultText returns the text of the tool result.
// Text content is joined with new lines, other content is rendered as JSON.
func ResultText(res *sdk.CallToolResult) (string, error) {
	if res == nil {
		return "", nil
	}
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		js, err := json.Marshal(c)
		if err != nil {
			return "", errors.Wrap(err, "failed to encode tool result")
		}
		parts = append(parts, string(js))
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		js, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return "", errors.Wrap(err, "failed to encode tool result")
		}
		parts = append(parts, string(js))
	}
	return strings.Join(parts, "\n"), nil
}
