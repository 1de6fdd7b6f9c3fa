package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendinglibrary/internal/models"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	s := New(&models.Member{ID: 3, Username: "alice", Role: models.MemberRoleMember}, time.Now())
	require.NotEmpty(t, s.Token)
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, uint(3), got.MemberID)
	assert.False(t, got.IsAdmin())

	require.NoError(t, store.Delete(ctx, s.Token))
	_, err = store.Get(ctx, s.Token)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	s := New(&models.Member{ID: 1, Username: "admin", Role: models.MemberRoleAdmin}, now)
	require.NoError(t, store.Save(ctx, s))

	now = now.Add(59 * time.Second)
	_, err := store.Get(ctx, s.Token)
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.Get(ctx, s.Token)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTokensAreUnique(t *testing.T) {
	m := &models.Member{ID: 1}
	assert.NotEqual(t, New(m, time.Now()).Token, New(m, time.Now()).Token)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := Session{Token: "t", MemberID: 9, Role: models.MemberRoleAdmin}
	got, ok := FromContext(WithSession(context.Background(), s))
	require.True(t, ok)
	assert.True(t, got.IsAdmin())
	assert.Equal(t, uint(9), got.MemberID)
}
