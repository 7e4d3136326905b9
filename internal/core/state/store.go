// Package state implements capgate's central, shared application state: the
// merged view of interfaces and devices every adapter and workflow reads
// from and writes to, plus free-form run configuration.
//
// Unlike the Python original this is modeled on, Store is never a package
// level singleton. A capgate run constructs exactly one Store and threads
// it through the run context; this keeps concurrent test runs, and any
// future multi-run server, isolated from each other.
package state

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/nexusdevtools/capgate/internal/core/domain"
)

// Store is the shared, mutex-guarded record of interfaces, devices and
// free-form configuration for a single capgate run. Every exported method
// takes and releases the lock itself; callers never see the lock.
type Store struct {
	mu         sync.RWMutex
	interfaces map[string]domain.Interface
	devices    map[string]domain.Device
	config     map[string]string
}

// New returns an empty Store ready for use.
func New() *Store {
	return &Store{
		interfaces: make(map[string]domain.Interface),
		devices:    make(map[string]domain.Device),
		config:     make(map[string]string),
	}
}

// GetInterfaces returns a snapshot of all known interfaces. The returned
// slice is a copy; mutating it has no effect on the store.
func (s *Store) GetInterfaces() []domain.Interface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Interface, 0, len(s.interfaces))
	for _, ifc := range s.interfaces {
		out = append(out, ifc)
	}
	return out
}

// UpdateInterfaces merges ifaces into the store, keyed by name. An existing
// interface with the same name is replaced wholesale; interfaces not
// present in ifaces are left untouched. This mirrors the original's
// dict.update semantics rather than a full replace.
func (s *Store) UpdateInterfaces(ifaces []domain.Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ifc := range ifaces {
		s.interfaces[ifc.Key()] = ifc
	}
}

// GetDevices returns a snapshot of all known devices.
func (s *Store) GetDevices() []domain.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out
}

// UpdateDevices merges devices into the store, keyed by normalized MAC.
func (s *Store) UpdateDevices(devices []domain.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range devices {
		s.devices[d.Key()] = d
	}
}

// GetConfig returns a single configuration value and whether it was set.
func (s *Store) GetConfig(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.config[key]
	return v, ok
}

// SetConfig sets a single configuration value.
func (s *Store) SetConfig(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
}

// snapshot is the JSON-serializable form of the store, matching the
// original's discovery_graph/user_config shape closely enough that a
// capgate JSON state file and a CapGate one are easy to compare by eye.
type snapshot struct {
	Interfaces map[string]domain.Interface `json:"interfaces"`
	Devices    map[string]domain.Device    `json:"devices"`
	Config     map[string]string           `json:"config"`
}

// Save writes the current state to path as indented JSON.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	snap := snapshot{
		Interfaces: copyInterfaces(s.interfaces),
		Devices:    copyDevices(s.devices),
		Config:     copyConfig(s.config),
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load replaces the store's contents with what's in path. A missing or
// corrupt file is not an error: the store is simply reset to empty, the
// same fallback behaviour as the original's load_from_file.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		s.reset()
		if os.IsNotExist(err) {
			return nil
		}
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.reset()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.interfaces = snap.Interfaces
	s.devices = snap.Devices
	s.config = snap.Config
	if s.interfaces == nil {
		s.interfaces = make(map[string]domain.Interface)
	}
	if s.devices == nil {
		s.devices = make(map[string]domain.Device)
	}
	if s.config == nil {
		s.config = make(map[string]string)
	}
	return nil
}

func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interfaces = make(map[string]domain.Interface)
	s.devices = make(map[string]domain.Device)
	s.config = make(map[string]string)
}

func copyInterfaces(m map[string]domain.Interface) map[string]domain.Interface {
	out := make(map[string]domain.Interface, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyDevices(m map[string]domain.Device) map[string]domain.Device {
	out := make(map[string]domain.Device, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyConfig(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
