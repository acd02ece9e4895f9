package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*DatabaseStore)(nil)
)

func TestNewRedisStoreRequiresAddress(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{Address: "  "})
	require.ErrorContains(t, err, "address is required")
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStoreFromClient(client, "")
	require.Equal(t, "fitos:push:daily:u1", store.key("push:daily:u1"))

	store = NewRedisStoreFromClient(client, "notify:")
	require.Equal(t, "notify:push:daily:u1", store.key("push:daily:u1"))
}
