package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mircrewapi/internal/components/chrono"
	"mircrewapi/internal/components/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, time.January, 24, 12, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T, clock chrono.API, tel telemetry.API) Store

func newTestFileStore(t *testing.T, clock chrono.API, tel telemetry.API) Store {
	store, err := NewFileStore(t.TempDir(), clock, tel)
	require.Nil(t, err)
	return store
}

func newTestSQLiteStore(t *testing.T, clock chrono.API, tel telemetry.API) Store {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), clock, tel)
	require.Nil(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

var factories = map[string]storeFactory{
	"file":   newTestFileStore,
	"sqlite": newTestSQLiteStore,
}

func TestSanitizeKey(t *testing.T) {
	testCases := []struct {
		key    string
		expect string
	}{
		{key: "mircrew_cookie", expect: "mircrew_cookie"},
		{key: "../../etc/passwd", expect: "etcpasswd"},
		{key: "a b-c", expect: "ab-c"},
		{key: "città", expect: "citt"},
		{key: "/..", expect: ""},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, sanitizeKey(test.key), test.key)
	}
}

func TestStoreExpiry(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := chrono.NewFixedImpl(epoch)
			store := factory(t, clock, telemetry.NewRecorderAPI())

			set, err := store.Set(ctx, "mircrew_cookie", "phpbb3_u=1", time.Hour)
			require.Nil(t, err)
			require.True(t, set.ExpiresAt.After(set.CreatedAt))

			clock.Set(epoch.Add(time.Hour - time.Millisecond))
			got, ok := store.Get(ctx, "mircrew_cookie")
			require.True(t, ok)
			if diff := cmp.Diff(set, got); diff != "" {
				t.Fatal(diff)
			}

			clock.Set(epoch.Add(time.Hour))
			_, ok = store.Get(ctx, "mircrew_cookie")
			require.False(t, ok)

			// expired entries are removed, going back in time does not revive them
			clock.Set(epoch)
			_, ok = store.Get(ctx, "mircrew_cookie")
			require.False(t, ok)
		})
	}
}

func TestStoreOverwriteAndDelete(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := chrono.NewFixedImpl(epoch)
			store := factory(t, clock, telemetry.NewRecorderAPI())

			_, err := store.Set(ctx, "key-a", "one", time.Minute)
			require.Nil(t, err)
			_, err = store.Set(ctx, "key-b", "two", time.Minute)
			require.Nil(t, err)
			_, err = store.Set(ctx, "key-a", "three", time.Minute)
			require.Nil(t, err)

			a, ok := store.Get(ctx, "key-a")
			require.True(t, ok)
			require.Equal(t, "three", a.Value)
			b, ok := store.Get(ctx, "key-b")
			require.True(t, ok)
			require.Equal(t, "two", b.Value)

			require.Nil(t, store.Delete(ctx, "key-a"))
			_, ok = store.Get(ctx, "key-a")
			require.False(t, ok)

			// deleting something that doesn't exist is fine
			require.Nil(t, store.Delete(ctx, "key-a"))
			require.Nil(t, store.Delete(ctx, "never-set"))
		})
	}
}

func TestStoreRejects(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, chrono.NewFixedImpl(epoch), telemetry.NewRecorderAPI())

			_, err := store.Set(ctx, "key", "value", 0)
			require.ErrorIs(t, err, ErrInvalidTTL)
			_, err = store.Set(ctx, "key", "value", -time.Second)
			require.ErrorIs(t, err, ErrInvalidTTL)
			_, err = store.Set(ctx, "///", "value", time.Second)
			require.ErrorIs(t, err, ErrInvalidKey)

			_, ok := store.Get(ctx, "///")
			require.False(t, ok)
		})
	}
}

func TestFileStoreDistinctPaths(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, chrono.NewFixedImpl(epoch), telemetry.NewRecorderAPI())
	require.Nil(t, err)

	keys := []string{"a", "b", "A", "a1", "a-1", "a_1", "mircrew_cookie"}
	seen := map[string]string{}
	for _, key := range keys {
		path, ok := store.path(key)
		require.True(t, ok)
		other, dup := seen[path]
		require.False(t, dup, "%s and %s share %s", key, other, path)
		seen[path] = key
		require.Equal(t, dir, filepath.Dir(path))
	}
}

func TestFileStoreCorrupted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tel := telemetry.NewRecorderAPI()
	store, err := NewFileStore(dir, chrono.NewFixedImpl(epoch), tel)
	require.Nil(t, err)

	err = os.WriteFile(filepath.Join(dir, "mircrew_cookie.json"), []byte("{not json"), 0644)
	require.Nil(t, err)

	_, ok := store.Get(ctx, "mircrew_cookie")
	require.False(t, ok)
	require.Len(t, tel.Reports("warning"), 1)

	// a corrupted entry can be overwritten
	_, err = store.Set(ctx, "mircrew_cookie", "fresh", time.Hour)
	require.Nil(t, err)
	entry, ok := store.Get(ctx, "mircrew_cookie")
	require.True(t, ok)
	require.Equal(t, "fresh", entry.Value)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir, chrono.NewFixedImpl(epoch), telemetry.NewRecorderAPI())
	require.Nil(t, err)

	for i := 0; i < 3; i++ {
		_, err = store.Set(ctx, "mircrew_cookie", "value", time.Hour)
		require.Nil(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.Nil(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "mircrew_cookie.json", entries[0].Name())
}
