package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// DefaultTenantID is used when the chat context is created without a tenant
const DefaultTenantID = "default"

// ErrInvalidChatContext is returned when the context has no chat context
var ErrInvalidChatContext = errors.New("invalid chat context")

// ChatContext is the context for the chat client,
// it contains the tenant ID, chat ID and the ID of the current run.
type ChatContext interface {
	GetTenantID() string
	GetChatID() string
	// SetChatID changes the chat ID, the history is keyed by it
	SetChatID(chatID string)
	// RunID is unique per chat context
	RunID() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	tenantID string
	runID    string
	appData  any
	metadata sync.Map

	lock   sync.RWMutex
	chatID string
}

func (c *chatContext) GetTenantID() string {
	return c.tenantID
}

func (c *chatContext) GetChatID() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.chatID
}

func (c *chatContext) SetChatID(chatID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.chatID = chatID
}

func (c *chatContext) RunID() string {
	return c.runID
}

func (c *chatContext) AppData() any {
	return c.appData
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext returns a chat context,
// empty IDs are replaced with the default tenant and a new chat ID.
func NewChatContext(tenantID, chatID string, appData any) ChatContext {
	return &chatContext{
		tenantID: values.StringsCoalesce(tenantID, DefaultTenantID),
		chatID:   values.StringsCoalesce(chatID, NewChatID()),
		runID:    NewChatID(),
		appData:  appData,
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// NewFromContext returns a new background context
// with the chat context of ctx, if any.
// It is used for work that outlives ctx, like saving the history.
func NewFromContext(ctx context.Context) context.Context {
	res := context.Background()
	if c := GetChatContext(ctx); c != nil {
		res = WithChatContext(res, c)
	}
	return res
}

// SetChatID changes the chat ID of the chat context in ctx
func SetChatID(ctx context.Context, chatID string) (context.Context, error) {
	c := GetChatContext(ctx)
	if c == nil {
		return ctx, errors.WithStack(ErrInvalidChatContext)
	}
	c.SetChatID(chatID)
	return ctx, nil
}

// GetChatID retrieves the chat ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetChatID(ctx context.Context) string {
	if v := GetChatContext(ctx); v != nil {
		return v.GetChatID()
	}
	return ""
}

// GetTenantAndChatID returns the tenant and chat IDs of the chat context in ctx
func GetTenantAndChatID(ctx context.Context) (tenantID string, chatID string, err error) {
	c := GetChatContext(ctx)
	if c == nil {
		return "", "", errors.WithStack(ErrInvalidChatContext)
	}
	return c.GetTenantID(), c.GetChatID(), nil
}

// NewChatID generates a new chat ID using the flake ID generator.
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
