package gather

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	p, err := NewProgress(dir)
	require.NoError(t, err)

	_, ok := p.LastCompleted()
	assert.False(t, ok)

	require.NoError(t, p.MarkCompleted(day("2024-07-14")))
	last, ok := p.LastCompleted()
	require.True(t, ok)
	assert.Equal(t, day("2024-07-14"), last)

	require.NoError(t, p.MarkCompleted(day("2024-07-15")))
	last, ok = p.LastCompleted()
	require.True(t, ok)
	assert.Equal(t, day("2024-07-15"), last)
}

func TestProgressIgnoresGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".last-completed"), []byte("yesterday"), 0o644))

	p, err := NewProgress(dir)
	require.NoError(t, err)
	_, ok := p.LastCompleted()
	assert.False(t, ok)
}
