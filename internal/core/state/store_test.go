package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateInterfacesMerges(t *testing.T) {
	s := New()
	s.UpdateInterfaces([]domain.Interface{{Name: "wlan0", Mode: domain.ModeManaged}})
	s.UpdateInterfaces([]domain.Interface{{Name: "wlan1", Mode: domain.ModeMonitor}})

	ifaces := s.GetInterfaces()
	assert.Len(t, ifaces, 2)

	s.UpdateInterfaces([]domain.Interface{{Name: "wlan0", Mode: domain.ModeMonitor}})
	ifaces = s.GetInterfaces()
	assert.Len(t, ifaces, 2)

	var found domain.Interface
	for _, ifc := range ifaces {
		if ifc.Name == "wlan0" {
			found = ifc
		}
	}
	assert.Equal(t, domain.ModeMonitor, found.Mode)
}

func TestUpdateDevicesKeyedByNormalizedMAC(t *testing.T) {
	s := New()
	s.UpdateDevices([]domain.Device{{MAC: "AA:BB:CC:DD:EE:FF", IP: "10.0.0.5"}})
	s.UpdateDevices([]domain.Device{{MAC: "aa:bb:cc:dd:ee:ff", IP: "10.0.0.6"}})

	devices := s.GetDevices()
	require.Len(t, devices, 1)
	assert.Equal(t, "10.0.0.6", devices[0].IP)
}

func TestConfigRoundTrip(t *testing.T) {
	s := New()
	_, ok := s.GetConfig("missing")
	assert.False(t, ok)

	s.SetConfig("portal_port", "8080")
	v, ok := s.GetConfig("portal_port")
	require.True(t, ok)
	assert.Equal(t, "8080", v)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s := New()
	s.UpdateInterfaces([]domain.Interface{{Name: "wlan0", Mode: domain.ModeMonitor}})
	s.UpdateDevices([]domain.Device{{MAC: "aa:bb:cc:dd:ee:ff", IP: "10.0.0.5"}})
	s.SetConfig("run_id", "abc123")
	require.NoError(t, s.Save(path))

	loaded := New()
	require.NoError(t, loaded.Load(path))

	assert.Len(t, loaded.GetInterfaces(), 1)
	assert.Len(t, loaded.GetDevices(), 1)
	v, ok := loaded.GetConfig("run_id")
	require.True(t, ok)
	assert.Equal(t, "abc123", v)
}

func TestLoadMissingFileResetsToEmpty(t *testing.T) {
	s := New()
	s.UpdateInterfaces([]domain.Interface{{Name: "wlan0"}})

	err := s.Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, s.GetInterfaces())
}

func TestLoadCorruptFileResetsToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := New()
	s.UpdateDevices([]domain.Device{{MAC: "aa:bb:cc:dd:ee:ff"}})
	require.NoError(t, s.Load(path))
	assert.Empty(t, s.GetDevices())
}
