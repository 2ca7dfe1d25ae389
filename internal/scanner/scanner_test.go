package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozkanpakdil/grepwise-sub005/internal/buffer"
)

func newTestBuffer() *buffer.Buffer {
	return buffer.New(buffer.DefaultConfig(), nil, nil)
}

func writeFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanAll_EmitsMatchingFilesIntoBuffer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.log", "2024-01-01T00:00:00Z ERROR boom\n")
	writeFile(t, dir, "ignore.txt", "2024-01-01T00:00:00Z ERROR nope\n")

	buf := newTestBuffer()
	s := New(Config{Sources: []Source{{Dir: dir, Glob: "*.log"}}}, buf, nil)

	s.ScanAll(context.Background())

	drained := buf.Drain(10)
	require.Len(t, drained, 1)
	require.Equal(t, "boom", drained[0].Message)
	require.Equal(t, filepath.Join(dir, "app.log"), drained[0].Source)
}

func TestScanAll_OnlyReadsAppendedBytesOnSecondPass(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.log", "2024-01-01T00:00:00Z INFO first\n")

	buf := newTestBuffer()
	s := New(Config{Sources: []Source{{Dir: dir, Glob: "*.log"}}}, buf, nil)

	s.ScanAll(context.Background())
	require.Len(t, buf.Drain(10), 1)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2024-01-01T00:00:01Z INFO second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s.ScanAll(context.Background())
	drained := buf.Drain(10)
	require.Len(t, drained, 1)
	require.Equal(t, "second", drained[0].Message)
}

func TestScanAll_RotationResetsOffset(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.log", "2024-01-01T00:00:00Z INFO original-content-padding\n")

	buf := newTestBuffer()
	s := New(Config{Sources: []Source{{Dir: dir, Glob: "*.log"}}}, buf, nil)
	s.ScanAll(context.Background())
	require.Len(t, buf.Drain(10), 1)

	require.NoError(t, os.Remove(path))
	writeFile(t, dir, "app.log", "2024-01-01T00:00:02Z INFO rotated\n")

	s.ScanAll(context.Background())
	drained := buf.Drain(10)
	require.Len(t, drained, 1)
	require.Equal(t, "rotated", drained[0].Message)
}

func TestScanAll_RecursiveFindsNestedFiles(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeFile(t, nested, "app.log", "2024-01-01T00:00:00Z WARN deep\n")

	buf := newTestBuffer()
	s := New(Config{Sources: []Source{{Dir: dir, Glob: "*.log", Recursive: true}}}, buf, nil)
	s.ScanAll(context.Background())

	drained := buf.Drain(10)
	require.Len(t, drained, 1)
	require.Equal(t, "deep", drained[0].Message)
}

func TestLoadAndPersist_RoundTripsOffsets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.log", "2024-01-01T00:00:00Z INFO first\n")
	offsetFile := filepath.Join(dir, "offsets.json")

	buf := newTestBuffer()
	s := New(Config{Sources: []Source{{Dir: dir, Glob: "*.log"}}, OffsetFile: offsetFile}, buf, nil)
	s.ScanAll(context.Background())
	require.Len(t, buf.Drain(10), 1)

	s2 := New(Config{Sources: []Source{{Dir: dir, Glob: "*.log"}}, OffsetFile: offsetFile}, buf, nil)
	require.NoError(t, s2.Load())
	s2.ScanAll(context.Background())
	require.Empty(t, buf.Drain(10))
}
