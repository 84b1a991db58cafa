package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSinkWritesFileUnderDir(t *testing.T) {
	dir := t.TempDir()
	s := NewSink(dir)

	require.NoError(t, s.Write("quest1.qst", []byte("hello")))
	got, err := os.ReadFile(filepath.Join(dir, "quest1.qst"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestSinkDedupesIdenticalContentAcrossDistinctNames(t *testing.T) {
	dir := t.TempDir()
	s := NewSink(dir)

	require.NoError(t, s.Write("a.bin", []byte("same-bytes")))
	require.NoError(t, s.Write("b.bin", []byte("same-bytes")))

	a, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "b.bin"))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestSanitizeFilenameTrimsNulsAndEscapesUnsafeChars(t *testing.T) {
	raw := append([]byte("quest/1:x"), 0, 0, 0, 0, 0, 0, 0)
	require.Equal(t, "quest_1_x", SanitizeFilename(raw))
}

func TestSanitizeFilenameFallsBackToHexForAllNulName(t *testing.T) {
	raw := make([]byte, 16)
	got := SanitizeFilename(raw)
	require.Len(t, got, 32)
}
