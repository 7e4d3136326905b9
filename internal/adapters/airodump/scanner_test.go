package airodump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `BSSID, First seen, Last seen, channel, Speed, Privacy, Cipher, Authentication, Power, # beacons, # IV, LAN IP, ID-length, ESSID, Key

AA:BB:CC:DD:EE:FF, 2026-07-31 10:00:00, 2026-07-31 10:01:00,   6, 54, WPA2, CCMP, PSK, -45,   120,    0,  0.0.0.0,   9, HomeNetwork,
11:22:33:44:55:66, 2026-07-31 10:00:00, 2026-07-31 10:01:00,  11, 54, WPA2, CCMP, PSK, -60,    80,    0,  0.0.0.0,   0, ,

Station MAC, First seen, Last seen, Power, # packets, BSSID, Probed ESSIDs

BB:BB:BB:BB:BB:BB, 2026-07-31 10:00:00, 2026-07-31 10:01:00, -50,    40, AA:BB:CC:DD:EE:FF,
CC:CC:CC:CC:CC:CC, 2026-07-31 10:00:00, 2026-07-31 10:01:00, -70,    10, (not associated), HomeNetwork,OtherNetwork
`

func TestParseCSVAccessPoints(t *testing.T) {
	result := ParseCSV(sampleCSV)
	require.Len(t, result.AccessPoints, 2)

	ap := result.AccessPoints[0]
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", ap.BSSID)
	assert.Equal(t, 6, ap.Channel)
	assert.Equal(t, "WPA2", ap.Privacy)
	assert.Equal(t, -45, ap.Power)
	assert.Equal(t, "HomeNetwork", ap.ESSID)
	assert.False(t, ap.HiddenSSID)

	hidden := result.AccessPoints[1]
	assert.True(t, hidden.HiddenSSID)
}

func TestParseCSVStations(t *testing.T) {
	result := ParseCSV(sampleCSV)
	require.Len(t, result.Stations, 2)

	assoc := result.Stations[0]
	assert.Equal(t, "BB:BB:BB:BB:BB:BB", assoc.MAC)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", assoc.BSSID)

	probing := result.Stations[1]
	assert.Equal(t, "(not associated)", probing.BSSID)
	assert.Contains(t, probing.ProbedSSID, "HomeNetwork")
}

func TestParseCSVEmptyInput(t *testing.T) {
	result := ParseCSV("")
	assert.Empty(t, result.AccessPoints)
	assert.Empty(t, result.Stations)
}
