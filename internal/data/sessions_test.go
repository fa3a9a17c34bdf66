package data

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	store, err := NewSessionStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionStore_FindUnknownTokenReturnsNil(t *testing.T) {
	store := newTestStore(t)

	session, err := store.Find("never-seen")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionStore_PutThenFind(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(&PlayerSession{
		SessionToken:     "tok-1",
		Nickname:         "Alice",
		CustomProperties: `{"rank":"9"}`,
	}))

	session, err := store.Find("tok-1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "Alice", session.Nickname)
	assert.Equal(t, `{"rank":"9"}`, session.CustomProperties)
	assert.False(t, session.LastSeenAt.IsZero())
}

func TestSessionStore_PutUpdatesExistingRow(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Put(&PlayerSession{SessionToken: "tok-1", Nickname: "Alice"}))
	require.NoError(t, store.Put(&PlayerSession{SessionToken: "tok-1", Nickname: "Alicia"}))

	session, err := store.Find("tok-1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "Alicia", session.Nickname)
}
