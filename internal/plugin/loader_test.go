package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, pluginDir, name, desc string) {
	t.Helper()
	d := filepath.Join(dir, pluginDir)
	require.NoError(t, os.MkdirAll(d, 0o755))
	content := `{"name": "` + name + `", "description": "` + desc + `", "entry_point": "run"}`
	require.NoError(t, os.WriteFile(filepath.Join(d, "metadata.json"), []byte(content), 0o644))
}

func TestDiscoverAndList(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "evil-twin", "evil_twin", "Evil twin workflow")

	l := New(dir)
	require.NoError(t, l.Discover(context.Background()))

	infos := l.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "evil_twin", infos[0].Name)
}

func TestInvokeUnknownPluginErrors(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	require.NoError(t, l.Discover(context.Background()))
	_, err := l.Invoke(context.Background(), "nope", nil, nil)
	require.Error(t, err)
}

func TestInvokeDiscoveredButUnregisteredErrors(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "ghost", "ghost", "has no registered implementation")

	l := New(dir)
	require.NoError(t, l.Discover(context.Background()))
	_, err := l.Invoke(context.Background(), "ghost", nil, nil)
	require.Error(t, err)
}

func TestInvokeRegisteredPlugin(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "echo", "echo", "echoes args back")
	Register("echo", func(ctx context.Context, rc ports.RunContext, args map[string]string) (bool, error) {
		return args["ok"] == "true", nil
	})

	l := New(dir)
	require.NoError(t, l.Discover(context.Background()))
	ok, err := l.Invoke(context.Background(), "echo", nil, map[string]string{"ok": "true"})
	require.NoError(t, err)
	assert.True(t, ok)
}
