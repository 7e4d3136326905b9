package cracking

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeShell struct {
	out string
	err error
}

func (f *fakeShell) Run(ctx context.Context, argv []string, opts ports.RunOptions) (string, error) {
	return f.out, f.err
}

func (f *fakeShell) Start(ctx context.Context, argv []string, opts ports.RunOptions) (ports.Process, error) {
	return nil, nil
}

func TestFindWordlistResolvesPlainFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rockyou.txt"), []byte("password\n"), 0o644))

	m := New(&fakeShell{}, dir)
	path, err := m.FindWordlist(context.Background(), "rockyou")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rockyou.txt"), path)
}

func TestFindWordlistDecompressesGzip(t *testing.T) {
	dir := t.TempDir()
	gzPath := filepath.Join(dir, "rockyou.txt.gz")
	writeGzipFile(t, gzPath, "password123\nhunter2\n")

	m := New(&fakeShell{}, dir)
	m.tmpDir = t.TempDir()
	path, err := m.FindWordlist(context.Background(), "rockyou")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hunter2")
}

func TestFindWordlistNotFound(t *testing.T) {
	dir := t.TempDir()
	m := New(&fakeShell{}, dir)
	_, err := m.FindWordlist(context.Background(), "nope")
	require.Error(t, err)
}

func TestCrackParsesKeyFound(t *testing.T) {
	shell := &fakeShell{out: "Aircrack-ng 1.7\n\nKEY FOUND! [ hunter2 ]\n\nMaster Key...\n"}
	m := New(shell, t.TempDir())
	result, err := m.Crack(context.Background(), "/tmp/cap-01.cap", "AA:BB:CC:DD:EE:FF", "/tmp/wordlist.txt")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, "hunter2", result.Key)
}

func TestCrackNoKeyFound(t *testing.T) {
	shell := &fakeShell{out: "Aircrack-ng 1.7\n\nFailed. Next try...\n"}
	m := New(shell, t.TempDir())
	result, err := m.Crack(context.Background(), "/tmp/cap-01.cap", "AA:BB:CC:DD:EE:FF", "/tmp/wordlist.txt")
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func writeGzipFile(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
}
