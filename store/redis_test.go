package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
	"github.com/effective-security/mcpchat/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"
)

func Test_RedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7",
		testcontainers.WithConfigModifier(func(config *container.Config) {
			config.Env = []string{
				"ALLOW_EMPTY_PASSWORD=yes",
			}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	root := fmt.Sprintf("test-%d", time.Now().Unix())

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(host)
	require.NoError(t, err)

	client := redis.NewClient(options)
	require.NoError(t, client.Ping(ctx).Err(), "failed to connect to Redis")

	st := store.NewRedisStore(client, root, 4)
	t.Cleanup(func() {
		_ = st.Close()
	})

	msg1 := llms.MessageFromTextParts(llms.RoleHuman, "Which collections are in mydb?")
	msg2 := llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
		ID:           "call_1",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: "list-collections", Arguments: `{"database":"mydb"}`},
	})
	msg3 := llms.MessageFromParts(llms.RoleTool,
		llms.ToolCallResponse{ToolCallID: "call_1", Name: "list-collections", Content: "users\norders"},
	)
	msg4 := llms.MessageFromTextParts(llms.RoleAI, "users and orders")

	assert.ErrorIs(t, st.Reset(ctx), chatmodel.ErrInvalidChatContext)
	assert.ErrorIs(t, st.Add(ctx, msg1), chatmodel.ErrInvalidChatContext)
	_, err = st.ListChats(ctx)
	assert.ErrorIs(t, err, chatmodel.ErrInvalidChatContext)
	assert.Empty(t, st.Messages(ctx))

	ctx1 := chatmodel.WithChatContext(ctx, chatmodel.NewChatContext("tenant1", "chat1", nil))
	require.NoError(t, st.Add(ctx1))
	assert.Empty(t, st.Messages(ctx1))

	require.NoError(t, st.Add(ctx1, msg1, msg2, msg3, msg4))
	assert.Equal(t, []llms.Message{msg1, msg2, msg3, msg4}, st.Messages(ctx1))

	// trimmed to the last 4
	msg5 := llms.MessageFromTextParts(llms.RoleHuman, "thanks")
	require.NoError(t, st.Add(ctx1, msg5))
	assert.Equal(t, []llms.Message{msg2, msg3, msg4, msg5}, st.Messages(ctx1))

	ctx2 := chatmodel.WithChatContext(ctx, chatmodel.NewChatContext("tenant1", "chat2", nil))
	require.NoError(t, st.Add(ctx2, msg1))

	chats, err := st.ListChats(ctx2)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat1", "chat2"}, chats)

	require.NoError(t, st.Reset(ctx1))
	assert.Empty(t, st.Messages(ctx1))
	assert.Len(t, st.Messages(ctx2), 1)

	chats, err = st.ListChats(ctx2)
	require.NoError(t, err)
	assert.Equal(t, []string{"chat2"}, chats)
}
