package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/certify-backend/pkg/config"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func newTestManager(t *testing.T) (*Manager, *mockStore) {
	t.Helper()
	store := newMockStore()
	mgr, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60})
	require.NoError(t, err)
	return mgr, store
}

func TestNewManagerValidatesTTL(t *testing.T) {
	_, err := NewManager(newMockStore(), config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 30})
	assert.Error(t, err)

	_, err = NewManager(nil, config.JWTConfig{ExpirationMinutes: 1, RefreshTokenTTLMinutes: 30})
	assert.Error(t, err)
}

func TestGenerateAndRotate(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager(t)

	token, err := mgr.Generate(ctx, "access-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	has, err := mgr.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.True(t, has)

	newID, newToken, err := mgr.Rotate(ctx, "access-1", token)
	require.NoError(t, err)
	assert.NotEqual(t, "access-1", newID)
	assert.NotEqual(t, token, newToken)

	_, stillThere := store.data["sess:access-1"]
	assert.False(t, stillThere, "old session must be removed")

	has, err = mgr.HasSession(ctx, newID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRotateRejectsWrongOrMissingToken(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	_, err := mgr.Generate(ctx, "access-1")
	require.NoError(t, err)

	_, _, err = mgr.Rotate(ctx, "access-1", "not-the-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = mgr.Rotate(ctx, "unknown", "whatever")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = mgr.Rotate(ctx, "", "whatever")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager(t)

	_, err := mgr.Generate(ctx, "access-2")
	require.NoError(t, err)
	require.NoError(t, mgr.Revoke(ctx, "access-2"))

	has, err := mgr.HasSession(ctx, "access-2")
	require.NoError(t, err)
	assert.False(t, has)
}
