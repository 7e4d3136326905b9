// Package dnsmasq hands out DHCP leases and answers DNS on the AP-side
// interface, the Go counterpart of dhcp_dns_manager.py.
package dnsmasq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
)

// CaptivePortalHosts is the canonical set of connectivity-check domains the
// evil twin workflow redirects to the gateway so every OS's captive-portal
// detector pops the login page instead of silently deciding it has real
// internet access.
var CaptivePortalHosts = []string{
	"www.google.com",
	"clients1.google.com",
	"www.msftncsi.com",
	"www.apple.com",
	"detectportal.firefox.com",
	"connectivitycheck.gstatic.com",
	"connectivitycheck.platform.hicloud.com",
	"captiveportal.apple.com",
}

// Manager starts and stops a dnsmasq-backed DHCP/DNS server.
type Manager struct {
	shell   ports.ShellRunner
	log     *logging.Logger
	confDir string

	proc         ports.Process
	confPath     string
	addnHostPath string

	// SpoofHosts lists the domains written to the addn-hosts file on the
	// next StartDHCPDNS call. New sets it to CaptivePortalHosts, which is
	// what every evil twin run wants; plain DHCP/DNS use (no captive portal)
	// can set it to nil or an empty slice, and then no addn-hosts file is
	// written.
	SpoofHosts []string
}

// New returns a Manager that writes dnsmasq config files under confDir.
func New(shell ports.ShellRunner, confDir string) *Manager {
	return &Manager{shell: shell, log: logging.Component("dnsmasq"), confDir: confDir, SpoofHosts: CaptivePortalHosts}
}

var _ ports.DHCPDNSManager = (*Manager)(nil)

// StartDHCPDNS kills any previously running dnsmasq instance (dnsmasq
// leaves stale processes behind surprisingly often when an earlier run was
// killed uncleanly), writes a fresh config, and starts a new instance
// detached.
func (m *Manager) StartDHCPDNS(ctx context.Context, iface, gatewayIP, dhcpRangeStart, dhcpRangeEnd string) error {
	_, _ = m.shell.Run(ctx, []string{"killall", "-q", "dnsmasq"}, ports.RunOptions{RequireRoot: true, AllowFailure: true})

	if err := os.MkdirAll(m.confDir, 0o755); err != nil {
		return err
	}
	addnHostPath := ""
	if len(m.SpoofHosts) > 0 {
		addnHostPath = filepath.Join(m.confDir, "addn-hosts")
		if err := os.WriteFile(addnHostPath, []byte(generateAddnHosts(gatewayIP, m.SpoofHosts)), 0o644); err != nil {
			return fmt.Errorf("write addn-hosts: %w", err)
		}
		m.addnHostPath = addnHostPath
	}

	confPath := filepath.Join(m.confDir, "dnsmasq.conf")
	if err := os.WriteFile(confPath, []byte(generateDnsmasqConfig(iface, gatewayIP, dhcpRangeStart, dhcpRangeEnd, addnHostPath)), 0o644); err != nil {
		return fmt.Errorf("write dnsmasq config: %w", err)
	}
	m.confPath = confPath

	proc, err := m.shell.Start(ctx, []string{"dnsmasq", "-C", confPath, "--no-daemon"}, ports.RunOptions{RequireRoot: true})
	if err != nil {
		return fmt.Errorf("start dnsmasq: %w", err)
	}
	m.proc = proc

	time.Sleep(300 * time.Millisecond)
	if !proc.Running() {
		return fmt.Errorf("dnsmasq exited immediately, check %s", confPath)
	}
	return nil
}

// StopDHCPDNS stops dnsmasq and removes its config file.
func (m *Manager) StopDHCPDNS(ctx context.Context) error {
	var err error
	if m.proc != nil {
		err = m.proc.Stop(int64(3 * time.Second))
		m.proc = nil
	}
	if m.confPath != "" {
		_ = os.Remove(m.confPath)
		m.confPath = ""
	}
	if m.addnHostPath != "" {
		_ = os.Remove(m.addnHostPath)
		m.addnHostPath = ""
	}
	return err
}

// generateDnsmasqConfig renders dnsmasq.conf fields in the same order
// dhcp_dns_manager.py's _generate_dnsmasq_config does. addnHostPath is empty
// when no captive-portal DNS spoofing is wanted.
func generateDnsmasqConfig(iface, gatewayIP, rangeStart, rangeEnd, addnHostPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "interface=%s\n", iface)
	fmt.Fprintf(&b, "dhcp-range=%s,%s,12h\n", rangeStart, rangeEnd)
	fmt.Fprintf(&b, "dhcp-option=3,%s\n", gatewayIP)
	fmt.Fprintf(&b, "dhcp-option=6,%s\n", gatewayIP)
	fmt.Fprintf(&b, "log-queries\n")
	fmt.Fprintf(&b, "log-dhcp\n")
	fmt.Fprintf(&b, "no-resolv\n")
	if addnHostPath != "" {
		fmt.Fprintf(&b, "addn-hosts=%s\n", addnHostPath)
	}
	return b.String()
}

// generateAddnHosts renders the wildcard-equivalent hosts file dnsmasq reads
// via addn-hosts: every captive-portal connectivity-check domain resolved to
// the gateway IP, plus the bare wildcard entry.
func generateAddnHosts(gatewayIP string, hosts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s #\n", gatewayIP)
	for _, h := range hosts {
		fmt.Fprintf(&b, "%s %s\n", gatewayIP, h)
	}
	return b.String()
}
