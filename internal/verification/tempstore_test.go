package verification

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTempStoreSweepRemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTempStore(dir, zap.NewNop())
	require.NoError(t, err)

	stale := filepath.Join(dir, "stale.jpg")
	fresh := filepath.Join(dir, "fresh.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0o644))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	removed := store.Sweep(time.Hour)

	assert.Equal(t, 1, removed)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestTempStoreRemoveToleratesMissingFile(t *testing.T) {
	store, err := NewTempStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	store.Remove(filepath.Join(t.TempDir(), "never-existed.jpg"))
}
