package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var missing string
	ok, err := s.Get(ctx, KeyUUID, &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyUUID, "abc-123"))
	require.NoError(t, s.Set(ctx, KeyNotificationsEnabled, true))

	var id string
	ok, err = s.Get(ctx, KeyUUID, &id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc-123", id)

	var enabled bool
	_, err = s.Get(ctx, KeyNotificationsEnabled, &enabled)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	items := []string{"a", "b"}
	require.NoError(t, s.Set(ctx, KeyPendingLog, items))
	items[0] = "changed"

	var got []string
	_, err := s.Get(ctx, KeyPendingLog, &got)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestMemoryStoreDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	keys := []string{KeyCurrentStudy, KeyStudyTasks, KeyUUID, KeyPendingData, KeyPendingLog}
	for _, k := range keys {
		require.NoError(t, s.Set(ctx, k, k))
	}
	assert.Equal(t, len(keys), s.Len())

	require.NoError(t, s.Delete(ctx, keys...))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreEncodeError(t *testing.T) {
	s := NewMemoryStore()
	err := s.Set(context.Background(), KeyUUID, make(chan int))
	assert.ErrorIs(t, err, ErrEncode)
}

func TestRedisStoreKeyNamespace(t *testing.T) {
	s := NewRedisStore(nil, "device-1")
	assert.Equal(t, "device-1:study-tasks", s.key(KeyStudyTasks))

	bare := NewRedisStore(nil, "")
	assert.Equal(t, "uuid", bare.key(KeyUUID))
}
