package netscan

import (
	"context"
	"regexp"
	"strings"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
)

// DeviceScanner discovers hosts on a managed-mode interface's local subnet
// by combining a passive read of the kernel ARP table with an active
// arp-scan sweep. There is no other active method: when arp-scan fails,
// only the passive ARP table is used.
type DeviceScanner struct {
	shell ports.ShellRunner
}

// NewDeviceScanner returns a DeviceScanner backed by shell.
func NewDeviceScanner(shell ports.ShellRunner) *DeviceScanner {
	return &DeviceScanner{shell: shell}
}

var _ ports.DeviceScanner = (*DeviceScanner)(nil)

var reArpLine = regexp.MustCompile(`\(([\d.]+)\)\s+at\s+([0-9a-fA-F:]{17})`)
var reArpHostname = regexp.MustCompile(`^(\S+)\s+\(`)

// Scan reads the current ARP table for iface, then runs an active arp-scan
// sweep to surface hosts the passive table hasn't seen traffic from yet.
// The two results are merged by MAC; active-scan entries never overwrite a
// passive entry's hostname, since arp-scan doesn't resolve one.
func (s *DeviceScanner) Scan(ctx context.Context, iface string) ([]domain.Device, error) {
	merged := make(map[string]domain.Device)

	passive, err := s.shell.Run(ctx, []string{"arp", "-an", "-i", iface}, ports.RunOptions{})
	if err == nil {
		for _, d := range parseArpAn(passive) {
			merged[d.Key()] = d
		}
	}

	active, err := s.shell.Run(ctx, []string{"arp-scan", "--interface=" + iface, "--localnet"}, ports.RunOptions{RequireRoot: true})
	if err == nil {
		for _, d := range parseArpScan(active) {
			key := d.Key()
			if existing, ok := merged[key]; ok {
				existing.IP = d.IP
				merged[key] = existing
				continue
			}
			merged[key] = d
		}
	}

	out := make([]domain.Device, 0, len(merged))
	for _, d := range merged {
		out = append(out, d)
	}
	return out, nil
}

// parseArpAn parses `arp -an` lines of the form:
//
//	hostname (192.168.1.5) at aa:bb:cc:dd:ee:ff [ether] on wlan0
//	? (192.168.1.6) at bb:cc:dd:ee:ff:00 [ether] on wlan0
func parseArpAn(out string) []domain.Device {
	var devices []domain.Device
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := reArpLine.FindStringSubmatch(line)
		if len(m) != 3 {
			continue
		}
		hostname := ""
		if h := reArpHostname.FindStringSubmatch(line); len(h) == 2 && h[1] != "?" {
			hostname = h[1]
		}
		devices = append(devices, domain.Device{
			MAC:      m[2],
			IP:       m[1],
			Hostname: hostname,
		})
	}
	return devices
}

// parseArpScan parses arp-scan's tab-separated "ip\tmac\tvendor" lines,
// skipping its banner and summary lines.
func parseArpScan(out string) []domain.Device {
	var devices []domain.Device
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		ip := strings.TrimSpace(fields[0])
		mac := strings.TrimSpace(fields[1])
		if !strings.Contains(mac, ":") || len(mac) != 17 {
			continue
		}
		vendor := ""
		if len(fields) >= 3 {
			vendor = strings.TrimSpace(fields[2])
		}
		devices = append(devices, domain.Device{MAC: mac, IP: ip, Vendor: vendor})
	}
	return devices
}
