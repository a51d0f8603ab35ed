package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kyleking/gh-actionboard/internal/api"
	"github.com/kyleking/gh-actionboard/internal/github"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s, err := NewSQLStore(db)
	require.NoError(t, err)
	return s
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   newFileStore(t),
		"sqlite": newSQLStore(t),
	}
}

func TestStores_GetSetClear(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("a", []byte("one")))
			require.NoError(t, s.Set("a", []byte("two")))

			got, ok, err := s.Get("a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "two", string(got))

			require.NoError(t, s.Clear("a"))
			_, ok, err = s.Get("a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Clear("never-set"))
		})
	}
}

func TestStores_KeysByPrefix(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("workflows_cache_bob", []byte("{}")))
			require.NoError(t, s.Set("workflows_cache_alice", []byte("{}")))
			require.NoError(t, s.Set("workflowsXcache_eve", []byte("{}")))
			require.NoError(t, s.Set("gh_user_info", []byte("{}")))

			keys, err := s.Keys(KeyPrefix + "_")
			require.NoError(t, err)
			assert.Equal(t, []string{"workflows_cache_alice", "workflows_cache_bob"}, keys)
		})
	}
}

func TestStores_PublishChanges(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ch := s.Subscribe()
			defer s.Unsubscribe(ch)

			require.NoError(t, s.Set("k", []byte("v")))
			require.NoError(t, s.Clear("k"))

			require.Len(t, ch, 2)
			assert.Equal(t, Event{Key: "k", Op: OpSet}, <-ch)
			assert.Equal(t, Event{Key: "k", Op: OpClear}, <-ch)
		})
	}
}

func TestFileStore_EscapesKeys(t *testing.T) {
	s := newFileStore(t)
	require.NoError(t, s.Set("workflows_cache_a/b", []byte("x")))

	got, ok, err := s.Get("workflows_cache_a/b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", string(got))

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")

	keys, err := s.Keys("")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflows_cache_a/b"}, keys)
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	s := newFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("hi"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, ".tmp-123.json"), []byte("{}"), 0o600))

	keys, err := s.Keys("")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func sampleRuns() []github.WorkflowRun {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []github.WorkflowRun{
		{ID: 2, Name: "CI", Status: github.StatusCompleted, Conclusion: github.ConclusionSuccess,
			Repository: github.NewRepository("acme", "api"), CreatedAt: ts, UpdatedAt: ts},
		{ID: 1, Name: "Lint", Status: github.StatusInProgress,
			Repository: github.NewRepository("acme", "web"), CreatedAt: ts, UpdatedAt: ts},
	}
}

func TestWorkflowCache_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	c := NewWorkflowCache(store, nil)
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	batches := map[string]BatchMetadata{
		"batch-1": {DateFrom: "2024-04-24", DateTo: "2024-05-01", LoadedAt: 1, WorkflowCount: 2},
	}
	require.NoError(t, c.Save("octo", sampleRuns(), batches))

	snap, ok := c.Load("octo")
	require.True(t, ok)
	assert.Equal(t, Version, snap.Version)
	assert.Equal(t, int64(1700000000000), snap.Timestamp)
	assert.Len(t, snap.Data, 2)
	assert.Equal(t, batches, snap.Batches)

	_, ok = c.Load("someone-else")
	assert.False(t, ok)
}

func TestWorkflowCache_VersionMismatchPurges(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(Key("octo"), []byte(`{"version":"1.0","data":[],"timestamp":1,"batches":{}}`)))

	c := NewWorkflowCache(store, nil)
	_, ok := c.Load("octo")
	assert.False(t, ok)

	_, present, err := store.Get(Key("octo"))
	require.NoError(t, err)
	assert.False(t, present, "stale entry should be removed")
}

func TestWorkflowCache_CorruptEntryIsMiss(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(Key("octo"), []byte(`not json`)))

	c := NewWorkflowCache(store, nil)
	_, ok := c.Load("octo")
	assert.False(t, ok)
}

func TestWorkflowCache_NilBatchesLoadEmpty(t *testing.T) {
	store := NewMemoryStore()
	c := NewWorkflowCache(store, nil)
	require.NoError(t, c.Save("octo", nil, nil))

	raw, _, err := store.Get(Key("octo"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"data":[]`)
	assert.Contains(t, string(raw), `"batches":{}`)

	snap, ok := c.Load("octo")
	require.True(t, ok)
	assert.NotNil(t, snap.Batches)
	assert.Empty(t, snap.Data)
}

func TestUserCache(t *testing.T) {
	c := NewUserCache(NewMemoryStore(), "octo-token")
	_, ok := c.Get()
	assert.False(t, ok)

	require.NoError(t, c.Save(&api.UserInfo{Authenticated: false, Username: "ghost"}))
	_, ok = c.Get()
	assert.False(t, ok, "unauthenticated info is not cached")

	require.NoError(t, c.Save(&api.UserInfo{Authenticated: true, Username: "octo"}))
	got, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, "octo", got.Username)

	require.NoError(t, c.Clear())
	_, ok = c.Get()
	assert.False(t, ok)
}

func TestUserCache_BoundToToken(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, NewUserCache(store, "alice-token").Save(&api.UserInfo{Authenticated: true, Username: "alice"}))

	_, ok := NewUserCache(store, "bob-token").Get()
	assert.False(t, ok)

	got, ok := NewUserCache(store, "alice-token").Get()
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)

	raw, _, err := store.Get(UserInfoKey)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "alice-token")
	assert.Contains(t, string(raw), TokenFingerprint("alice-token"))
}

func TestUserCache_LegacyEntryIsMiss(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(UserInfoKey, []byte(`{"authenticated":true,"username":"alice"}`)))

	_, ok := NewUserCache(store, "").Get()
	assert.False(t, ok)
}

func TestLogout(t *testing.T) {
	durable := newFileStore(t)
	session := NewMemoryStore()

	wc := NewWorkflowCache(durable, nil)
	require.NoError(t, wc.Save("alice", sampleRuns(), nil))
	require.NoError(t, wc.Save("bob", sampleRuns(), nil))
	require.NoError(t, durable.Set("unrelated", []byte("keep")))
	require.NoError(t, NewUserCache(session, "alice-token").Save(&api.UserInfo{Authenticated: true, Username: "alice"}))

	require.NoError(t, Logout(durable, session))

	keys, err := durable.Keys(KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, ok, err := durable.Get("unrelated")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok = NewUserCache(session, "alice-token").Get()
	assert.False(t, ok)
}
