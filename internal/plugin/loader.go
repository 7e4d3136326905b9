// Package plugin discovers and invokes capgate plugins. Go has no runtime
// equivalent of Python's importlib, so where plugin_loader.py dynamically
// imports a module named in each plugin's metadata.json, capgate instead
// reads metadata.json for description and bookkeeping and resolves the
// actual invocation through a compile-time registry: every plugin the repo
// ships with registers a Func under its name (plugin/builtin's RegisterAll,
// called from main), and Invoke refuses a discovered plugin that has no
// matching registry entry.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
)

// Func is a plugin's entry point: given a run context and its invocation
// arguments, it returns whether it succeeded.
type Func func(ctx context.Context, rc ports.RunContext, args map[string]string) (bool, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Func)
)

// Register adds a plugin implementation to the compiled-in registry. It's
// called from plugin/builtin's RegisterAll.
func Register(name string, fn Func) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// manifest mirrors a plugin's metadata.json.
type manifest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	EntryPoint  string `json:"entry_point"`
}

// Loader discovers plugin manifests under a directory tree and invokes the
// registered Func matching each one.
type Loader struct {
	dir   string
	log   *logging.Logger
	mu    sync.RWMutex
	found map[string]ports.PluginInfo
}

// New returns a Loader that discovers plugins under dir.
func New(dir string) *Loader {
	return &Loader{dir: dir, log: logging.Component("plugin"), found: make(map[string]ports.PluginInfo)}
}

var _ ports.PluginLoader = (*Loader)(nil)

// Discover walks dir for metadata.json files, one per plugin subdirectory,
// and records every valid one. It does not consult the registry; a plugin
// with no matching registered Func is still listed, and Invoke reports the
// missing implementation. Unreadable or invalid manifests are skipped
// rather than failing the whole discovery pass.
func (l *Loader) Discover(ctx context.Context) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read plugin directory %s: %w", l.dir, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.found = make(map[string]ports.PluginInfo)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(l.dir, entry.Name(), "metadata.json")
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			l.log.Warn("invalid metadata.json for %s: %v", entry.Name(), err)
			continue
		}
		if m.Name == "" {
			m.Name = entry.Name()
		}
		l.found[m.Name] = ports.PluginInfo{Name: m.Name, Description: m.Description, EntryPoint: m.EntryPoint}
	}
	return nil
}

// List returns every discovered plugin's metadata.
func (l *Loader) List() []ports.PluginInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ports.PluginInfo, 0, len(l.found))
	for _, info := range l.found {
		out = append(out, info)
	}
	return out
}

// Invoke runs the named plugin's registered Func. It returns an error if
// the plugin was never discovered, or was discovered but has no matching
// compiled-in implementation.
func (l *Loader) Invoke(ctx context.Context, name string, rc ports.RunContext, args map[string]string) (bool, error) {
	l.mu.RLock()
	_, discovered := l.found[name]
	l.mu.RUnlock()
	if !discovered {
		return false, fmt.Errorf("plugin %q was not discovered under %s", name, l.dir)
	}

	registryMu.Lock()
	fn, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return false, fmt.Errorf("plugin %q has no compiled-in implementation", name)
	}
	return fn(ctx, rc, args)
}
