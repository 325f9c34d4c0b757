package app

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/callbacks"
	"github.com/effective-security/mcpchat/chatclient"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/encoding"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llmfactory"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/pkg/prompts"
	"github.com/effective-security/mcpchat/store"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/mcpchat/tools/mcptools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "app")

const (
	// LabelListTools is the label of the list-tools result
	LabelListTools = "listToolsResult"
	// LabelListCollections is the label of the startup tool result
	LabelListCollections = "listCollections"
)

// ErrToolNotFound is returned when the tool is not provided by the MCP servers
var ErrToolNotFound = errors.New("tool not found")

// App owns the MCP clients, the message store and the chat client
type App struct {
	cfg     *Config
	opts    options
	clients []mcp.Client
	store   store.MessageStore
	encoder encoding.Encoder

	// the tools and the chat client are created on the first use,
	// so the startup sequence lists the tools only once
	lock       sync.Mutex
	provider   *mcptools.Provider
	chat       *chatclient.Client
	scratchpad *callbacks.Scratchpad

	closeOnce sync.Once
	closeErr  error
}

// New returns the App connected to the MCP servers of the config
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = new(Config)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(&a.opts)
	}

	format := a.opts.format
	if format == "" {
		var err error
		if format, err = encoding.ParseFormat(cfg.Startup.Format); err != nil {
			return nil, err
		}
	}
	enc, err := encoding.New(format)
	if err != nil {
		return nil, err
	}
	a.encoder = enc

	a.store = a.opts.store
	if a.store == nil {
		if a.store, err = store.New(&cfg.Store); err != nil {
			return nil, err
		}
	}

	a.clients = a.opts.clients
	if a.clients == nil {
		if a.clients, err = mcp.ConnectAll(ctx, cfg.MCP); err != nil {
			_ = a.store.Close()
			return nil, err
		}
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "started",
		"mcp_clients", len(a.clients),
		"format", format)

	return a, nil
}

// Clients returns the MCP clients in the config order
func (a *App) Clients() []mcp.Client {
	return a.clients
}

// Store returns the chat history store
func (a *App) Store() store.MessageStore {
	return a.store
}

// Startup lists the tools of the first MCP server,
// then calls the startup tool, printing both results to w.
// The tool result with isError is printed as is.
func (a *App) Startup(ctx context.Context, w io.Writer) error {
	client, err := mcp.First(a.clients)
	if err != nil {
		return err
	}

	listTools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}
	if err = encoding.Print(w, a.encoder, LabelListTools, listTools); err != nil {
		return err
	}

	tool := a.cfg.Startup.GetTool()
	res, err := client.CallTool(ctx, tool, a.cfg.Startup.GetArguments())
	if err != nil {
		return err
	}
	if res.IsError {
		logger.ContextKV(ctx, xlog.WARNING,
			"client", client.Name(),
			"tool", tool,
			"reason", "is_error")
	}
	return encoding.Print(w, a.encoder, LabelListCollections, res)
}

// Chat sends the text to the chat client and returns its content unchanged
func (a *App) Chat(ctx context.Context, text string) (string, error) {
	chat, err := a.chatClient(ctx)
	if err != nil {
		return "", err
	}

	if chatmodel.GetChatContext(ctx) == nil {
		ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(chatmodel.DefaultTenantID, chatmodel.NewChatID(), nil))
	}
	if a.scratchpad != nil {
		a.scratchpad.StartRun(ctx)
		defer func() {
			if _, trace := a.scratchpad.EndRun(ctx); len(trace) > 0 {
				_, _ = a.opts.trace.Write(trace)
			}
		}()
	}

	resp, err := chat.Call(ctx, text)
	if err != nil {
		return "", err
	}
	return resp.Content(), nil
}

// Tools returns the tools of the MCP servers, sorted by name
func (a *App) Tools(ctx context.Context) ([]tools.ITool, error) {
	provider, err := a.toolProvider(ctx)
	if err != nil {
		return nil, err
	}
	list := append([]tools.ITool(nil), provider.Tools()...)
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list, nil
}

// CallTool calls the tool by name with the JSON input,
// the same way the chat client does
func (a *App) CallTool(ctx context.Context, name, input string) (string, error) {
	provider, err := a.toolProvider(ctx)
	if err != nil {
		return "", err
	}
	tool, ok := provider.Get(name)
	if !ok {
		return "", errors.Wrapf(ErrToolNotFound, "%q", name)
	}
	return tool.Call(ctx, input)
}

// Reset removes the chat history of the chat in ctx
func (a *App) Reset(ctx context.Context) error {
	return a.store.Reset(ctx)
}

// Close closes the MCP clients and the store,
// it is safe to call Close more than once
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if err := mcp.CloseAll(a.clients); err != nil {
			errs = append(errs, err)
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, errors.WithMessage(err, "failed to close store"))
			}
		}
		a.closeErr = errors.Join(errs...)

		logger.KV(xlog.INFO, "status", "closed")
	})
	return a.closeErr
}

func (a *App) toolProvider(ctx context.Context) (*mcptools.Provider, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.toolProviderLocked(ctx)
}

func (a *App) toolProviderLocked(ctx context.Context) (*mcptools.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	provider, err := mcptools.New(ctx, a.clients,
		mcptools.WithDefaults(a.cfg.Chat.ToolDefaults),
		mcptools.WithValidation(a.cfg.Chat.ValidateToolArgs),
	)
	if err != nil {
		return nil, err
	}
	a.provider = provider
	return provider, nil
}

func (a *App) chatClient(ctx context.Context) (*chatclient.Client, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.chat != nil {
		return a.chat, nil
	}

	model, err := a.chatModel()
	if err != nil {
		return nil, err
	}
	provider, err := a.toolProviderLocked(ctx)
	if err != nil {
		return nil, err
	}

	chatCfg := &a.cfg.Chat
	format, err := prompts.ParseTemplateFormat(chatCfg.TemplateFormat)
	if err != nil {
		return nil, err
	}

	fanout := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	for _, cb := range a.opts.callbacks {
		fanout.Add(cb)
	}
	if a.opts.trace != nil {
		a.scratchpad = callbacks.NewScratchpad(callbacks.ModeDefault)
		fanout.Add(a.scratchpad)
	}

	var callOpts []llms.CallOption
	if chatCfg.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(chatCfg.Temperature))
	}
	if chatCfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(chatCfg.MaxTokens))
	}

	chat, err := chatclient.New(model,
		chatclient.WithName(chatCfg.Name),
		chatclient.WithSystemPrompt(chatCfg.SystemPrompt),
		chatclient.WithTemplateFormat(format),
		chatclient.WithPromptInput(chatCfg.PromptInput),
		chatclient.WithTools(provider.Tools()...),
		chatclient.WithMessageStore(a.store),
		chatclient.WithCallback(fanout),
		chatclient.WithMaxToolCalls(chatCfg.MaxToolCalls),
		chatclient.WithMaxMessages(chatCfg.MaxMessages),
		chatclient.WithMaxContentBytes(chatCfg.MaxContentBytes),
		chatclient.WithCallOptions(callOpts...),
	)
	if err != nil {
		return nil, err
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "chat_client_created",
		"chat", chat.Name(),
		"model", model.GetName(),
		"tools", provider.Names())

	a.chat = chat
	return chat, nil
}

func (a *App) chatModel() (llms.Model, error) {
	if a.opts.model != nil {
		return a.opts.model, nil
	}
	f := a.opts.factory
	if f == nil {
		if a.cfg.LLM == nil {
			return nil, errors.WithMessage(llmfactory.ErrProviderNotFound, "llm is not configured")
		}
		f = llmfactory.New(a.cfg.LLM)
	}
	name := a.cfg.Chat.Name
	if name == "" {
		name = chatclient.DefaultName
	}
	return f.ChatModel(name, a.cfg.Chat.Models...)
}
