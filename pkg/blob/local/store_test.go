package local

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/errors"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), "local", "")
	require.NoError(t, err)
	ctx := context.Background()

	key, err := s.Put(ctx, "parsed/d1/report.md", strings.NewReader("# Title"), "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, "parsed/d1/report.md", key)

	got, err := blob.ReadAll(ctx, s, key)
	require.NoError(t, err)
	assert.Equal(t, "# Title", string(got))

	_, err = s.Put(ctx, key, strings.NewReader("# Replaced"), "text/markdown")
	require.NoError(t, err)
	got, err = blob.ReadAll(ctx, s, key)
	require.NoError(t, err)
	assert.Equal(t, "# Replaced", string(got))

	u, err := s.URL(ctx, key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, errors.ErrBlobNotFound)
	assert.NoError(t, s.Ping(ctx))
}

func TestStoreKeysStayInsideRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "local", "http://files.local/")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Put(ctx, "../../escape.txt", strings.NewReader("x"), "text/plain")
	require.NoError(t, err)
	got, err := blob.ReadAll(ctx, s, "escape.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	u, err := s.URL(ctx, "a/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "http://files.local/a/b.pdf", u)

	_, err = s.Get(ctx, "")
	assert.ErrorIs(t, err, errors.ErrBlobIO)
}
