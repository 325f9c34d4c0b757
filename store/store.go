// Package store keeps the chat history,
// keyed by the tenant and chat IDs of the chat context.
package store

import (
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "store")

// DefaultMaxMessages is the number of messages kept per chat
const DefaultMaxMessages = 50

// MessageStore is the chat history
type MessageStore interface {
	io.Closer
	// Messages returns the messages of the chat in ctx,
	// or nil if ctx has no chat context
	Messages(ctx context.Context) []llms.Message
	// Add appends the messages to the chat in ctx
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset removes the messages of the chat in ctx
	Reset(ctx context.Context) error
	// ListChats returns the IDs of chats of the tenant in ctx
	ListChats(ctx context.Context) ([]string, error)
}

// Config of the message store
type Config struct {
	// Type is memory or redis
	Type string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=memory redis"`
	// RedisURL is the redis connection URL, e.g. redis://localhost:6379/0
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty" validate:"required_if=Type redis"`
	// Prefix of the redis keys
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// MaxMessages is the number of last messages kept per chat
	MaxMessages int `json:"max_messages,omitempty" yaml:"max_messages,omitempty" validate:"gte=0"`
}

// New returns the store for the config
func New(cfg *Config) (MessageStore, error) {
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemoryStore(maxMessages), nil
	case "redis":
		options, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid redis URL")
		}
		return NewRedisStore(redis.NewClient(options), cfg.Prefix, maxMessages), nil
	default:
		return nil, errors.Newf("unsupported store type: %s", cfg.Type)
	}
}

// trim returns the last limit messages
func trim(msgs []llms.Message, limit int) []llms.Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}
