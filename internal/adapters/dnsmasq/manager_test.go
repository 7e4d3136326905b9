package dnsmasq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateDnsmasqConfigFieldOrderNoSpoof(t *testing.T) {
	conf := generateDnsmasqConfig("wlan1", "10.0.0.1", "10.0.0.10", "10.0.0.250", "")
	lines := strings.Split(strings.TrimSpace(conf), "\n")

	expected := []string{
		"interface=wlan1",
		"dhcp-range=10.0.0.10,10.0.0.250,12h",
		"dhcp-option=3,10.0.0.1",
		"dhcp-option=6,10.0.0.1",
		"log-queries",
		"log-dhcp",
		"no-resolv",
	}
	assert.Equal(t, expected, lines)
}

func TestGenerateDnsmasqConfigIncludesAddnHostsWhenSpoofing(t *testing.T) {
	conf := generateDnsmasqConfig("wlan1", "10.0.0.1", "10.0.0.10", "10.0.0.250", "/tmp/addn-hosts")
	assert.Contains(t, conf, "addn-hosts=/tmp/addn-hosts")
}

func TestGenerateAddnHostsCoversCanonicalCaptivePortalDomains(t *testing.T) {
	hosts := generateAddnHosts("10.0.0.1", CaptivePortalHosts)
	lines := strings.Split(strings.TrimSpace(hosts), "\n")
	wantLines := len(CaptivePortalHosts) + 1 // + wildcard entry
	assert.Len(t, lines, wantLines)
	assert.Contains(t, hosts, "10.0.0.1 #")
	for _, h := range CaptivePortalHosts {
		assert.Contains(t, hosts, "10.0.0.1 "+h)
	}
}
