// Package netscan implements capgate's interface and device discovery: the
// read-only "what's here" scan the rest of the workflows build on, grounded
// in ip/iw parsing the way the teacher's driver package shells out to them.
package netscan

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
)

// InterfaceScanner enumerates interfaces via ip link/addr and, for wireless
// ones, iw dev and iw phy info.
type InterfaceScanner struct {
	shell ports.ShellRunner
}

// NewInterfaceScanner returns an InterfaceScanner backed by shell.
func NewInterfaceScanner(shell ports.ShellRunner) *InterfaceScanner {
	return &InterfaceScanner{shell: shell}
}

var _ ports.InterfaceScanner = (*InterfaceScanner)(nil)

var reLinkHeader = regexp.MustCompile(`^\d+:\s+([^:@]+)[:@].*state\s+(\S+)`)
var reMAC = regexp.MustCompile(`link/\S+\s+([0-9a-fA-F:]{17})`)
var reCIDR = regexp.MustCompile(`inet\s+(\S+)`)
var rePhy = regexp.MustCompile(`phy#(\d+)`)

// Scan lists every interface ip/iw know about. Wireless interfaces are
// additionally probed with iw dev info and iw phy info for mode and
// capability data; non-wireless interfaces get a minimal record.
func (s *InterfaceScanner) Scan(ctx context.Context) ([]domain.Interface, error) {
	linkOut, err := s.shell.Run(ctx, []string{"ip", "-o", "link", "show"}, ports.RunOptions{})
	if err != nil {
		return nil, err
	}
	addrOut, _ := s.shell.Run(ctx, []string{"ip", "-o", "-4", "addr", "show"}, ports.RunOptions{})
	cidrByIface := parseAddr(addrOut)

	wirelessInfo, _ := s.shell.Run(ctx, []string{"iw", "dev"}, ports.RunOptions{})
	wirelessNames := parseIwDevNames(wirelessInfo)

	var out []domain.Interface
	for _, line := range strings.Split(linkOut, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, isUp := parseLinkLine(line)
		if name == "" || name == "lo" {
			if name == "lo" {
				out = append(out, domain.Interface{Name: name, IsUp: isUp, Mode: domain.ModeLoopback})
			}
			continue
		}

		iface := domain.Interface{
			Name:     name,
			IsUp:     isUp,
			IPv4CIDR: cidrByIface[name],
			Mode:     domain.ModeEthernet,
		}
		if mac := reMAC.FindStringSubmatch(line); len(mac) == 2 {
			iface.MAC = strings.ToLower(mac[1])
		}

		if _, wireless := wirelessNames[name]; wireless {
			iface.IsWireless = true
			s.enrichWireless(ctx, &iface)
		}

		out = append(out, iface)
	}
	return out, nil
}

func parseLinkLine(line string) (name string, isUp bool) {
	m := reLinkHeader.FindStringSubmatch(line)
	if len(m) != 3 {
		return "", false
	}
	return strings.TrimSpace(m[1]), m[2] == "UP" || m[2] == "UNKNOWN"
}

func parseAddr(out string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		name := strings.TrimSuffix(fields[1], ":")
		if m := reCIDR.FindStringSubmatch(line); len(m) == 2 {
			result[name] = m[1]
		}
	}
	return result
}

func parseIwDevNames(out string) map[string]struct{} {
	names := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Interface ") {
			names[strings.TrimPrefix(line, "Interface ")] = struct{}{}
		}
	}
	return names
}

// enrichWireless fills in mode, SSID, channel and PHY capability fields for
// a wireless interface using iw dev <name> info and iw phy <phy> info.
func (s *InterfaceScanner) enrichWireless(ctx context.Context, iface *domain.Interface) {
	info, err := s.shell.Run(ctx, []string{"iw", "dev", iface.Name, "info"}, ports.RunOptions{})
	if err == nil {
		scanner := bufio.NewScanner(strings.NewReader(info))
		var phy string
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case strings.HasPrefix(line, "type "):
				iface.Mode = parseMode(strings.TrimPrefix(line, "type "))
			case strings.HasPrefix(line, "ssid "):
				iface.SSID = strings.TrimPrefix(line, "ssid ")
			case strings.HasPrefix(line, "txpower "):
				iface.TxPower = strings.TrimPrefix(line, "txpower ")
			case strings.HasPrefix(line, "channel "):
				iface.ChannelFrequency = strings.TrimPrefix(line, "channel ")
			case strings.HasPrefix(line, "wiphy "):
				phy = strings.TrimPrefix(line, "wiphy ")
			}
		}
		if phy != "" {
			iface.Wiphy = "phy" + phy
		}
	}

	if iface.Wiphy == "" {
		devOut, _ := s.shell.Run(ctx, []string{"iw", "dev"}, ports.RunOptions{})
		iface.Wiphy = findPhyForInterface(devOut, iface.Name)
	}
	if iface.Wiphy == "" {
		return
	}

	phyInfo, err := s.shell.Run(ctx, []string{"iw", "phy", iface.Wiphy, "info"}, ports.RunOptions{})
	if err != nil {
		return
	}
	applyPhyCapabilities(iface, phyInfo)
}

func findPhyForInterface(devOut, name string) string {
	currentPhy := ""
	for _, line := range strings.Split(devOut, "\n") {
		line = strings.TrimSpace(line)
		if m := rePhy.FindStringSubmatch(line); len(m) == 2 {
			currentPhy = "phy" + m[1]
		} else if strings.HasPrefix(line, "Interface "+name) {
			return currentPhy
		}
	}
	return ""
}

var reFrequencyEntry = regexp.MustCompile(`^\*\s*(\d+)(?:\.\d+)?\s*MHz`)

// applyPhyCapabilities parses iw phy <phy> info output for supported
// interface modes, bands and 802.11 standards.
func applyPhyCapabilities(iface *domain.Interface, phyInfo string) {
	inFrequencies := false
	inModes := false
	for _, raw := range strings.Split(phyInfo, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, "Supported interface modes:"):
			inModes = true
			inFrequencies = false
			continue
		case line == "Frequencies:":
			inFrequencies = true
			inModes = false
			continue
		case strings.HasPrefix(line, "Band "):
			inFrequencies = false
		case strings.HasPrefix(line, "valid interface combinations:"):
			inModes = false
		}

		if inModes && strings.HasPrefix(line, "* ") {
			switch strings.TrimPrefix(line, "* ") {
			case "monitor":
				iface.SupportsMonitor = true
			case "AP":
				iface.SupportsAP = true
			case "managed":
				iface.SupportsManaged = true
			case "mesh point":
				iface.SupportsMesh = true
			case "P2P-client", "P2P-GO":
				iface.SupportsP2P = true
			}
		}

		if inFrequencies && strings.HasPrefix(line, "*") {
			if strings.Contains(line, "disabled") {
				continue
			}
			if m := reFrequencyEntry.FindStringSubmatch(line); len(m) == 2 {
				freqMHz, _ := strconv.Atoi(m[1])
				switch {
				case freqMHz >= 2400 && freqMHz < 2500:
					iface.Supports2GHz = true
				case freqMHz >= 5100 && freqMHz < 5900:
					iface.Supports5GHz = true
				case freqMHz >= 5925:
					iface.Supports6GHz = true
				}
			}
		}

		if strings.Contains(line, "HT20/HT40") || strings.Contains(line, "HT Capabilities") {
			iface.Supports11N = true
		}
		if strings.Contains(line, "VHT Capabilities") {
			iface.Supports11AC = true
		}
		if strings.Contains(line, "HE Iftypes") || strings.Contains(line, "HE PHY Capabilities") {
			iface.Supports11AX = true
		}
	}
}

func parseMode(s string) domain.Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "managed", "station":
		return domain.ModeManaged
	case "monitor":
		return domain.ModeMonitor
	case "ap":
		return domain.ModeAP
	case "mesh point":
		return domain.ModeMesh
	case "p2p-client", "p2p-go":
		return domain.ModeP2P
	case "ibss":
		return domain.ModeAdhoc
	default:
		return domain.ModeUnknown
	}
}
