package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCOnEmptyRepoIsNoop(t *testing.T) {
	dir := t.TempDir()
	s, err := filestore.Open(filestore.Options{Root: dir})
	require.NoError(t, err)
	defer s.Close()

	removed, err := GC(t.Context(), s, 7)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestGCRemovesOldFoldersNotToday(t *testing.T) {
	dir := t.TempDir()
	s, err := filestore.Open(filestore.Options{Root: dir})
	require.NoError(t, err)
	defer s.Close()

	old := time.Now().AddDate(0, 0, -30).UTC().Format("2006-01-02")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "flows", old), 0o755))

	today := time.Now().UTC().Format("2006-01-02")

	removed, err := GC(t.Context(), s, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, removed)

	_, err = os.Stat(filepath.Join(dir, "flows", old))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "flows", today))
	assert.NoError(t, err)
}
