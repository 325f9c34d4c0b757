package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/metricskey"
	"github.com/effective-security/xlog"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "mcp")

// ErrNoClients is returned when no MCP connection is configured
var ErrNoClients = errors.New("no MCP clients configured")

// MCP methods used in metrics and logs
const (
	MethodListTools = "tools/list"
	MethodCallTool  = "tools/call"
	MethodPing      = "ping"
)

//go:generate mockgen -source=client.go -destination=../mocks/mockmcp/client_mock.gen.go -package mockmcp

// Client is a connected MCP client session
type Client interface {
	// Name returns the configured connection name
	Name() string
	// ServerInfo returns the server implementation reported on initialize
	ServerInfo() *sdk.Implementation
	// ListTools returns all the tools of the server, following the pagination cursor
	ListTools(ctx context.Context) (*sdk.ListToolsResult, error)
	// CallTool calls the tool with the arguments
	CallTool(ctx context.Context, name string, args map[string]any) (*sdk.CallToolResult, error)
	// Ping checks the server is alive
	Ping(ctx context.Context) error
	// Close closes the session, it is safe to call more than once
	Close() error
}

type client struct {
	name    string
	session *sdk.ClientSession
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Connect starts the configured connection and runs the initialize handshake
func Connect(ctx context.Context, cfg *Config, conn *Connection) (Client, error) {
	t, err := NewTransport(conn)
	if err != nil {
		return nil, err
	}
	return ConnectTransport(ctx, cfg, conn.Name, t)
}

// ConnectTransport runs the initialize handshake on the transport
func ConnectTransport(ctx context.Context, cfg *Config, name string, t sdk.Transport) (Client, error) {
	impl := &sdk.Implementation{
		Name:    cfg.GetName(),
		Version: cfg.GetVersion(),
	}
	c := sdk.NewClient(impl, nil)

	timeout := cfg.GetRequestTimeout()
	session, err := connectSession(ctx, c, t, timeout)
	if err != nil {
		logger.KV(xlog.ERROR,
			"reason", "connect",
			"server", name,
			"err", err.Error())
		return nil, errors.Wrapf(err, "failed to connect to MCP server %q", name)
	}

	cl := &client{
		name:    name,
		session: session,
		timeout: timeout,
	}
	if info := cl.ServerInfo(); info != nil {
		logger.KV(xlog.INFO,
			"status", "connected",
			"server", name,
			"impl", info.Name,
			"version", info.Version)
	}
	return cl, nil
}

type connectResult struct {
	session *sdk.ClientSession
	err     error
}

// connectSession runs the initialize handshake within the timeout.
// The SSE and streamable transports bind the session to the Connect context,
// so ctx must outlive the session and is not canceled on timeout.
func connectSession(ctx context.Context, c *sdk.Client, t sdk.Transport, timeout time.Duration) (*sdk.ClientSession, error) {
	done := make(chan connectResult, 1)
	go func() {
		session, err := c.Connect(ctx, t, nil)
		done <- connectResult{session: session, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.session, res.err
	case <-timer.C:
		// close the session if the handshake completes later
		go func() {
			if res := <-done; res.session != nil {
				_ = res.session.Close()
			}
		}()
		return nil, errors.Newf("initialize timed out after %s", timeout)
	}
}

// ConnectAll connects all configured servers in order.
// On failure, the sessions opened so far are closed.
func ConnectAll(ctx context.Context, cfg *Config) ([]Client, error) {
	if cfg == nil {
		return nil, nil
	}
	var clients []Client
	for _, conn := range cfg.Connections {
		cl, err := Connect(ctx, cfg, conn)
		if err != nil {
			_ = CloseAll(clients)
			return nil, err
		}
		clients = append(clients, cl)
	}
	return clients, nil
}

// First returns the first client, or ErrNoClients
func First(clients []Client) (Client, error) {
	if len(clients) == 0 {
		return nil, ErrNoClients
	}
	return clients[0], nil
}

// CloseAll closes every client and joins the errors
func CloseAll(clients []Client) error {
	var errs []error
	for _, cl := range clients {
		if err := cl.Close(); err != nil {
			errs = append(errs, errors.WithMessagef(err, "failed to close %q", cl.Name()))
		}
	}
	return errors.Join(errs...)
}

func (c *client) Name() string {
	return c.name
}

func (c *client) ServerInfo() *sdk.Implementation {
	res := c.session.InitializeResult()
	if res == nil {
		return nil
	}
	return res.ServerInfo
}

func (c *client) ListTools(ctx context.Context) (res *sdk.ListToolsResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer c.observe(MethodListTools, time.Now(), &err)

	res = &sdk.ListToolsResult{}
	params := &sdk.ListToolsParams{}
	for {
		page, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools of %q", c.name)
		}
		res.Tools = append(res.Tools, page.Tools...)
		if page.NextCursor == "" {
			break
		}
		params = &sdk.ListToolsParams{Cursor: page.NextCursor}
	}
	return res, nil
}

func (c *client) CallTool(ctx context.Context, name string, args map[string]any) (res *sdk.CallToolResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer c.observe(MethodCallTool, time.Now(), &err)

	if args == nil {
		args = map[string]any{}
	}
	res, err = c.session.CallTool(ctx, &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call tool %q of %q", name, c.name)
	}
	return res, nil
}

func (c *client) Ping(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer c.observe(MethodPing, time.Now(), &err)

	if err = c.session.Ping(ctx, nil); err != nil {
		return errors.Wrapf(err, "failed to ping %q", c.name)
	}
	return nil
}

func (c *client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
		logger.KV(xlog.DEBUG,
			"status", "closed",
			"server", c.name)
	})
	return c.closeErr
}

func (c *client) observe(method string, started time.Time, err *error) {
	metricskey.PerfMCPCall.MeasureSince(started, c.name, method)
	if *err != nil {
		metricskey.StatsMCPCallsFailed.IncrCounter(1, c.name, method)
		logger.KV(xlog.ERROR,
			"server", c.name,
			"method", method,
			"err", (*err).Error())
		return
	}
	metricskey.StatsMCPCallsSucceeded.IncrCounter(1, c.name, method)
	logger.KV(xlog.DEBUG,
		"server", c.name,
		"method", method,
		"elapsed", time.Since(started).String())
}
