package store

import (
	"context"
	"slices"
	"sync"

	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
)

type inMemory struct {
	mu          sync.RWMutex
	maxMessages int
	// tenant => chat => messages
	storage map[string]map[string][]llms.Message
}

// NewMemoryStore returns the in-memory store,
// maxMessages of zero does not limit the history
func NewMemoryStore(maxMessages int) MessageStore {
	return &inMemory{
		maxMessages: maxMessages,
		storage:     make(map[string]map[string][]llms.Message),
	}
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.storage[tenantID][chatID])
}

func (m *inMemory) Add(ctx context.Context, msgs ...llms.Message) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chats := m.storage[tenantID]
	if chats == nil {
		chats = make(map[string][]llms.Message)
		m.storage[tenantID] = chats
	}
	chats[chatID] = trim(append(chats[chatID], msgs...), m.maxMessages)
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage[tenantID], chatID)
	return nil
}

func (m *inMemory) ListChats(ctx context.Context) ([]string, error) {
	tenantID, _, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []string
	for chatID := range m.storage[tenantID] {
		res = append(res, chatID)
	}
	slices.Sort(res)
	return res, nil
}

func (m *inMemory) Close() error {
	return nil
}
