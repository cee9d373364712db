package flowconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  retentionDays: 30
capture:
  sampleRate: 0.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Storage.RetentionDays)
	assert.Equal(t, 0.5, cfg.Capture.SampleRate)
	// Untouched fields keep their default values.
	assert.Equal(t, 1000, cfg.Storage.MemoryStoreSize)
	assert.Equal(t, int64(10<<20), cfg.Capture.MaxResponseBodyBytes)
}

func TestValidateRejectsOutOfRangeSampleRate(t *testing.T) {
	cfg := Default()
	cfg.Capture.SampleRate = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyRedactionRegex(t *testing.T) {
	cfg := Default()
	cfg.RedactionRules = []RedactionRule{{Name: "r1", Regex: ""}}
	assert.Error(t, cfg.Validate())
}

func TestWatcherPicksUpFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  retentionDays: 7\n"), 0o644))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()

	changed := make(chan Config, 1)
	w.OnChange(func(c Config) { changed <- c })

	require.NoError(t, os.WriteFile(path, []byte("storage:\n  retentionDays: 14\n"), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, 14, cfg.Storage.RetentionDays)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
	assert.Equal(t, 14, w.Current().Storage.RetentionDays)
}
