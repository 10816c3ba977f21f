package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// exerciseStore checks the local-storage contract shared by every backend
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.GetItem(ctx, "imageCache")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetItem(ctx, "imageCache", `{"a":"b"}`))
	v, ok, err := store.GetItem(ctx, "imageCache")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":"b"}`, v)

	require.NoError(t, store.SetItem(ctx, "imageCache", `{}`))
	v, _, err = store.GetItem(ctx, "imageCache")
	require.NoError(t, err)
	assert.Equal(t, `{}`, v)

	require.NoError(t, store.RemoveItem(ctx, "imageCache"))
	_, ok, err = store.GetItem(ctx, "imageCache")
	require.NoError(t, err)
	assert.False(t, ok)

	// удаление отсутствующего ключа не ошибка
	require.NoError(t, store.RemoveItem(ctx, "missing"))
	require.NoError(t, store.Ping(ctx))
}

func exerciseQuota(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, "k", strings.Repeat("x", 16)))
	err := store.SetItem(ctx, "k", strings.Repeat("x", 17))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// отклоненная запись не портит прежнее значение
	v, ok, err := store.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, v, 16)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(0))
	exerciseQuota(t, NewMemoryStore(16))
}

func TestMemoryStore_Writes(t *testing.T) {
	store := NewMemoryStore(4)
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, "k", "1234"))
	assert.Error(t, store.SetItem(ctx, "k", "12345"))
	assert.Equal(t, 2, store.Writes())

	store.SetQuota(0)
	assert.NoError(t, store.SetItem(ctx, "k", "12345"))
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, 0)
	require.NoError(t, err)
	exerciseStore(t, store)

	quoted, err := NewFileStore(filepath.Join(dir, "quota"), 16)
	require.NoError(t, err)
	exerciseQuota(t, quoted)
}

func TestFileStore_Persists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir, 0)
	require.NoError(t, err)
	require.NoError(t, first.SetItem(ctx, "image/cache", "value"))

	second, err := NewFileStore(dir, 0)
	require.NoError(t, err)
	v, ok, err := second.GetItem(ctx, "image/cache")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	// временные файлы не остаются
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFileStore_EmptyDir(t *testing.T) {
	_, err := NewFileStore("", 0)
	assert.Error(t, err)
}

func TestFileStore_CancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.SetItem(ctx, "k", "v"), context.Canceled)
}

func newRedisStore(t *testing.T, quota int64) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, "", quota, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	exerciseStore(t, store)

	require.NoError(t, store.SetItem(context.Background(), "imageCache", "v"))
	got, err := mr.Get(DefaultRedisPrefix + "imageCache")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	quoted, _ := newRedisStore(t, 16)
	exerciseQuota(t, quoted)
}

func TestRedisStore_OutOfMemory(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	require.NoError(t, store.Ping(context.Background()))

	mr.SetError("OOM command not allowed when used memory > 'maxmemory'.")
	err := store.SetItem(context.Background(), "imageCache", "v")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	mr.SetError("ERR something else")
	err = store.SetItem(context.Background(), "imageCache", "v")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
}

func TestNewRedisStoreFromURL(t *testing.T) {
	_, err := NewRedisStoreFromURL("not a url", "", 0, zap.NewNop())
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	store, err := NewRedisStoreFromURL("redis://"+mr.Addr(), "p:", 0, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	store, err := Open(ctx, Config{Backend: BackendMemory}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(ctx, Config{Backend: BackendFile, Dir: t.TempDir()}, logger)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	mr := miniredis.RunT(t)
	store, err = Open(ctx, Config{Backend: BackendRedis, RedisURL: "redis://" + mr.Addr()}, logger)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	_ = store.Close()

	_, err = Open(ctx, Config{Backend: "etcd"}, logger)
	assert.Error(t, err)

	_, err = Open(ctx, Config{Backend: BackendPostgres}, logger)
	assert.Error(t, err)
}

func TestCheckQuota(t *testing.T) {
	assert.NoError(t, checkQuota(0, "k", strings.Repeat("x", 1<<20)))
	assert.NoError(t, checkQuota(3, "k", "abc"))
	assert.ErrorIs(t, checkQuota(3, "k", "abcd"), ErrQuotaExceeded)
}

func TestIsQuotaState(t *testing.T) {
	assert.False(t, isQuotaState(assert.AnError))
	assert.False(t, isOutOfMemory(assert.AnError))
}
