package runctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsIDAndStore(t *testing.T) {
	rc := New()
	assert.NotEmpty(t, rc.ID())
	require.NotNil(t, rc.State())
}

func TestGetSetDelete(t *testing.T) {
	rc := New()

	_, ok := rc.Get("monitor_iface")
	assert.False(t, ok)

	rc.Set("monitor_iface", "wlan0mon")
	v, ok := rc.Get("monitor_iface")
	require.True(t, ok)
	assert.Equal(t, "wlan0mon", v)
	assert.Equal(t, "wlan0mon", rc.GetString("monitor_iface"))

	rc.Delete("monitor_iface")
	_, ok = rc.Get("monitor_iface")
	assert.False(t, ok)
	assert.Equal(t, "", rc.GetString("monitor_iface"))
}

func TestTwoRunContextsAreIndependent(t *testing.T) {
	a := New()
	b := New()
	assert.NotEqual(t, a.ID(), b.ID())

	a.Set("target_bssid", "AA:BB:CC:DD:EE:FF")
	_, ok := b.Get("target_bssid")
	assert.False(t, ok)
}
