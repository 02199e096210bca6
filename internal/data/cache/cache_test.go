package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/core/model"
)

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func samplePoints() []model.Point {
	return []model.Point{
		model.NewRegisterPoint(7, 3, "F1", 1700000000),
		model.NewRegisterPoint(9, 4, "F2", 1700000060),
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	input := writeInput(t, t.TempDir(), "modbus.ttl", "blob")

	result := c.Get(input, "register")
	assert.False(t, result.Found)
	assert.Equal(t, MissReasonNotFound, result.MissReason)

	require.NoError(t, c.Set(input, "register", samplePoints()))

	result = c.Get(input, "register")
	require.True(t, result.Found)
	require.Len(t, result.Entry.Points, 2)
	assert.Equal(t, 7.0, result.Entry.Points[0].Value)
	assert.Equal(t, 3, result.Entry.Points[0].Register.Index)
	assert.True(t, samplePoints()[1].Timestamp.Equal(result.Entry.Points[1].Timestamp))

	assert.False(t, c.Get(input, "csv").Found, "modes are cached separately")
}

func TestFileCacheReadsUnnormalizedEntriesFromDisk(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, t.TempDir(), "modbus.ttl", "blob")

	first, err := NewFileCache(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(input, "register", samplePoints()))

	second, err := NewFileCache(dir)
	require.NoError(t, err)
	result := second.Get(input, "register")
	require.True(t, result.Found, result.MissReason.String())
	require.Len(t, result.Entry.Points, 2)
	assert.Equal(t, model.Provenance(0), result.Entry.Points[0].Provenance)
	assert.Equal(t, "F2", result.Entry.Points[1].Register.FunctionName)
}

func TestFileCacheInvalidation(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, path string)
		reason CacheMissReason
	}{
		{
			name: "size changed",
			change: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("longer blob"), 0644))
			},
			reason: MissReasonSize,
		},
		{
			name: "modtime changed",
			change: func(t *testing.T, path string) {
				later := time.Now().Add(time.Hour)
				require.NoError(t, os.Chtimes(path, later, later))
			},
			reason: MissReasonModTime,
		},
		{
			name: "file removed",
			change: func(t *testing.T, path string) {
				require.NoError(t, os.Remove(path))
			},
			reason: MissReasonError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewFileCache(t.TempDir())
			require.NoError(t, err)
			input := writeInput(t, t.TempDir(), "modbus.ttl", "blob")
			require.NoError(t, c.Set(input, "register", samplePoints()))

			tt.change(t, input)

			result := c.Get(input, "register")
			assert.False(t, result.Found)
			assert.Equal(t, tt.reason, result.MissReason, result.MissReason.String())
		})
	}
}

func TestFileCachePreloadAndClear(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, t.TempDir(), "history.csv", "a,b")

	first, err := NewFileCache(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(input, "csv", samplePoints()))

	second, err := NewFileCache(dir)
	require.NoError(t, err)
	mem, files := second.GetCacheStats()
	assert.Equal(t, 0, mem)
	assert.Equal(t, 1, files)

	require.NoError(t, second.Preload())
	mem, _ = second.GetCacheStats()
	assert.Equal(t, 1, mem)
	assert.True(t, second.Get(input, "csv").Found)

	require.NoError(t, second.Clear())
	mem, files = second.GetCacheStats()
	assert.Equal(t, 0, mem)
	assert.Equal(t, 0, files)
	assert.False(t, second.Get(input, "csv").Found)
}

func TestPreloadSkipsCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))

	c, err := NewFileCache(dir)
	require.NoError(t, err)
	require.NoError(t, c.Preload())
	mem, files := c.GetCacheStats()
	assert.Equal(t, 0, mem)
	assert.Equal(t, 1, files)
}
