package hostapd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateHostapdConfigFieldOrder(t *testing.T) {
	conf := generateHostapdConfig("wlan0mon", "Free WiFi", "6")
	lines := strings.Split(strings.TrimSpace(conf), "\n")

	expected := []string{
		"interface=wlan0mon",
		"driver=nl80211",
		"ssid=Free WiFi",
		"hw_mode=g",
		"channel=6",
		"macaddr_acl=0",
		"accept_mac_file=/dev/null",
		"auth_algs=1",
		"wmm_enabled=1",
		"ignore_broadcast_ssid=0",
	}
	assert.Equal(t, expected, lines)
}
