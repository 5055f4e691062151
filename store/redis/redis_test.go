package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/smallnest/fabflow/store"
	"github.com/smallnest/fabflow/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCheckpointStore_Contract(t *testing.T) {
	mr := miniredis.RunT(t)

	s := NewRedisCheckpointStore(RedisOptions{Addr: mr.Addr()})
	storetest.RunCheckpointStoreContract(t, s)
}

func TestRedisCheckpointStore_Keys(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisCheckpointStore(RedisOptions{Addr: mr.Addr(), Prefix: "test:"})
	ctx := context.Background()

	cp := &store.Checkpoint{ID: "cp-1", ThreadID: "t-1", State: json.RawMessage(`{}`), Version: 1}
	require.NoError(t, s.Save(ctx, cp))

	assert.True(t, mr.Exists("test:checkpoint:cp-1"))
	members, err := mr.Members("test:thread:t-1:checkpoints")
	require.NoError(t, err)
	assert.Equal(t, []string{"cp-1"}, members)
}

func TestRedisCheckpointStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisCheckpointStore(RedisOptions{Addr: mr.Addr(), TTL: time.Minute})
	ctx := context.Background()

	cp := &store.Checkpoint{ID: "cp-ttl", ThreadID: "t-ttl", State: json.RawMessage(`{}`), Version: 1}
	require.NoError(t, s.Save(ctx, cp))

	assert.Equal(t, time.Minute, mr.TTL("fabflow:checkpoint:cp-ttl"))
	assert.Equal(t, time.Minute, mr.TTL("fabflow:thread:t-ttl:checkpoints"))

	mr.FastForward(2 * time.Minute)

	_, err := s.Load(ctx, "cp-ttl")
	assert.ErrorIs(t, err, store.ErrNotFound)
	list, err := s.List(ctx, "t-ttl")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisCheckpointStore_SkipsExpiredMembers(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisCheckpointStore(RedisOptions{Addr: mr.Addr()})
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &store.Checkpoint{ID: "a", ThreadID: "t", State: json.RawMessage(`{}`), Version: 1}))
	require.NoError(t, s.Save(ctx, &store.Checkpoint{ID: "b", ThreadID: "t", State: json.RawMessage(`{}`), Version: 2}))
	mr.Del("fabflow:checkpoint:a")

	list, err := s.List(ctx, "t")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
}

func TestRedisCheckpointStore_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisCheckpointStore(RedisOptions{Addr: mr.Addr()})
	mr.Close()

	_, err := s.Load(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}
