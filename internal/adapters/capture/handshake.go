package capture

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// HasHandshake opens capFile offline and reports whether it contains at
// least two EAPOL frames, a weak but cheap proxy for "a 4-way handshake was
// captured" that's good enough to decide whether a capture session
// succeeded without shelling out to aircrack-ng just to find out. The
// cracking manager does the authoritative check when it actually attempts
// to recover the key.
func HasHandshake(capFile string) bool {
	handle, err := pcap.OpenOffline(capFile)
	if err != nil {
		return false
	}
	defer handle.Close()

	eapolCount := 0
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		if layer := packet.Layer(layers.LayerTypeEAPOL); layer != nil {
			eapolCount++
			if eapolCount >= 2 {
				return true
			}
		}
	}
	return false
}
