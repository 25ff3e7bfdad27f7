package nativelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDir(t *testing.T) {
	t.Setenv(EnvLogDir, "")
	assert.Equal(t, "/var/log/wsic", ResolveDir("/var/log/wsic"))
	assert.Equal(t, filepath.Join(".", "logs"), ResolveDir(" "))

	t.Setenv(EnvLogDir, "/tmp/override")
	assert.Equal(t, "/tmp/override", ResolveDir("/var/log/wsic"))
}

func TestWriterRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "nested"))
	require.NoError(t, err)

	day := time.Date(2026, 2, 3, 23, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return day }
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)

	day = day.Add(2 * time.Minute)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(dir, "nested", "generator_2026-02-03.log"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(first))

	second, err := os.ReadFile(filepath.Join(dir, "nested", "generator_2026-02-04.log"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(second))

	n, err := w.Write(nil)
	assert.Zero(t, n)
	assert.NoError(t, err)
}
