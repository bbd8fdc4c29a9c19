package ephemeral

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewLocal(zap.NewNop().Sugar())
	t.Cleanup(store.Close)
	return store
}

func TestSetAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SetWithTTL(ctx, PresenceKey(1), map[string]string{"status": "online"}, time.Minute)
	require.NoError(t, err)

	fields, err := store.Get(ctx, PresenceKey(1))
	require.NoError(t, err)
	assert.Equal(t, "online", fields["status"])
}

func TestExpiredKeyIsAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SetWithTTL(ctx, TypingKey(5, 1), map[string]string{"at": "now"}, 30*time.Millisecond)
	require.NoError(t, err)

	exists, err := store.Exists(ctx, TypingKey(5, 1))
	require.NoError(t, err)
	assert.True(t, exists)

	time.Sleep(60 * time.Millisecond)

	exists, err = store.Exists(ctx, TypingKey(5, 1))
	require.NoError(t, err)
	assert.False(t, exists, "typing marker must vanish after its TTL with no explicit stop")
}

func TestRefreshExtendsExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, PresenceKey(2), map[string]string{"status": "idle"}, 50*time.Millisecond))
	require.NoError(t, store.Refresh(ctx, PresenceKey(2), time.Minute))

	time.Sleep(80 * time.Millisecond)

	exists, err := store.Exists(ctx, PresenceKey(2))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRefreshMissingKeyIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Refresh(ctx, PresenceKey(3), time.Minute))

	exists, err := store.Exists(ctx, PresenceKey(3))
	require.NoError(t, err)
	assert.False(t, exists, "refresh must not resurrect a missing key")
}

func TestScanAndDeleteByPattern(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, TypingKey(10, 1), map[string]string{}, time.Minute))
	require.NoError(t, store.SetWithTTL(ctx, TypingKey(11, 1), map[string]string{}, time.Minute))
	require.NoError(t, store.SetWithTTL(ctx, TypingKey(10, 2), map[string]string{}, time.Minute))
	require.NoError(t, store.SetWithTTL(ctx, PresenceKey(1), map[string]string{"status": "online"}, time.Minute))

	keys, err := store.Scan(ctx, TypingPattern(1))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{TypingKey(10, 1), TypingKey(11, 1)}, keys)

	require.NoError(t, store.DeleteByPattern(ctx, TypingPattern(1)))

	keys, err = store.Scan(ctx, "typing:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{TypingKey(10, 2)}, keys)

	// presence untouched
	exists, err := store.Exists(ctx, PresenceKey(1))
	require.NoError(t, err)
	assert.True(t, exists)
}
