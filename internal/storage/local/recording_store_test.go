package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveWritesUnderMeetingDir(t *testing.T) {
	root := t.TempDir()
	store, err := NewRecordingStore(root, nil)
	require.NoError(t, err)

	key, err := store.Save(context.Background(), "m1", "u1", "video/webm", strings.NewReader("payload"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "m1"+string(os.PathSeparator)))
	assert.True(t, strings.HasSuffix(key, ".webm"))

	data, err := os.ReadFile(filepath.Join(root, key))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestSaveKeysAreUnique(t *testing.T) {
	store, err := NewRecordingStore(t.TempDir(), nil)
	require.NoError(t, err)

	first, err := store.Save(context.Background(), "m1", "u1", "video/webm", strings.NewReader("a"))
	require.NoError(t, err)
	second, err := store.Save(context.Background(), "m1", "u1", "video/webm", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestSaveSanitizesIdentifiers(t *testing.T) {
	root := t.TempDir()
	store, err := NewRecordingStore(root, nil)
	require.NoError(t, err)

	key, err := store.Save(context.Background(), "../../etc", "u/../1", "video/webm", strings.NewReader("x"))
	require.NoError(t, err)

	full, err := filepath.Abs(filepath.Join(root, key))
	require.NoError(t, err)
	rootAbs, err := filepath.Abs(root)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, rootAbs), "stored file must stay under the root")
}

func TestExtensionByMimeType(t *testing.T) {
	store, err := NewRecordingStore(t.TempDir(), nil)
	require.NoError(t, err)

	key, err := store.Save(context.Background(), "m1", "u1", "video/mp4", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".mp4"))

	key, err = store.Save(context.Background(), "m1", "u1", "application/octet-stream", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".bin"))
}
