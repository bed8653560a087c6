package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/teamfeed/config"
)

func TestLocalPutOpenRemove(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, l.Put(ctx, "posts/1/a.txt", strings.NewReader("hello"), 5, "text/plain"))

	rc, err := l.Open(ctx, "posts/1/a.txt")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(b))

	require.NoError(t, l.Remove(ctx, "posts/1/a.txt"))
	_, err = l.Open(ctx, "posts/1/a.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	// removing twice is fine
	assert.NoError(t, l.Remove(ctx, "posts/1/a.txt"))
}

func TestLocalKeysStayInsideRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l, err := NewLocal(root)
	require.NoError(t, err)

	// traversal is folded back under the root
	require.NoError(t, l.Put(ctx, "../../escape.txt", strings.NewReader("x"), 1, "text/plain"))
	rc, err := l.Open(ctx, "escape.txt")
	require.NoError(t, err)
	rc.Close()

	assert.Error(t, l.Put(ctx, "", strings.NewReader("x"), 1, "text/plain"))
}

func TestNewKey(t *testing.T) {
	k := NewKey("posts/7/", "Report.PDF")
	assert.Regexp(t, `^posts/7/[0-9a-f-]{36}\.pdf$`, k)

	assert.Regexp(t, `^avatars/1/[0-9a-f-]{36}$`, NewKey("avatars/1", "noext"))
	assert.NotEqual(t, NewKey("p", "a.png"), NewKey("p", "a.png"))
}

func TestRemoveAll(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.Put(ctx, "a", strings.NewReader("1"), 1, ""))
	require.NoError(t, l.Put(ctx, "b", strings.NewReader("2"), 1, ""))

	require.NoError(t, RemoveAll(ctx, l, []string{"a", "b"}))
	_, err = l.Open(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(context.Background(), config.AppConfig{StorageDriver: "local", UploadDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	_, err = New(context.Background(), config.AppConfig{StorageDriver: "ftp"})
	assert.Error(t, err)
}
