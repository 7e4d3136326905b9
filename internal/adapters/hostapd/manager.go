// Package hostapd brings up a rogue access point, the Go counterpart of
// ap_manager.py's start_ap/stop_ap.
package hostapd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
)

// Manager starts and stops a hostapd-backed access point on one interface
// at a time.
type Manager struct {
	shell   ports.ShellRunner
	log     *logging.Logger
	confDir string

	proc       ports.Process
	confPath   string
	origMAC    string
	spoofedMAC string
}

// New returns a Manager that writes hostapd config files under confDir.
func New(shell ports.ShellRunner, confDir string) *Manager {
	return &Manager{shell: shell, log: logging.Component("hostapd"), confDir: confDir}
}

var _ ports.APManager = (*Manager)(nil)

// StartAP generates a hostapd config for iface/ssid/channel, optionally
// spoofs the interface's MAC to spoofBSSID first, and starts hostapd as a
// detached process. It does not block waiting for clients.
func (m *Manager) StartAP(ctx context.Context, iface, ssid, channel string, spoofBSSID string) error {
	if spoofBSSID != "" {
		orig, err := m.currentMAC(ctx, iface)
		if err == nil {
			m.origMAC = orig
		}
		if err := m.spoofMAC(ctx, iface, spoofBSSID); err != nil {
			return fmt.Errorf("spoof bssid: %w", err)
		}
		m.spoofedMAC = spoofBSSID
	}

	confPath := filepath.Join(m.confDir, "hostapd.conf")
	if err := os.MkdirAll(m.confDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(confPath, []byte(generateHostapdConfig(iface, ssid, channel)), 0o644); err != nil {
		return fmt.Errorf("write hostapd config: %w", err)
	}
	m.confPath = confPath

	proc, err := m.shell.Start(ctx, []string{"hostapd", confPath}, ports.RunOptions{RequireRoot: true})
	if err != nil {
		return fmt.Errorf("start hostapd: %w", err)
	}
	m.proc = proc

	time.Sleep(500 * time.Millisecond)
	if !proc.Running() {
		return fmt.Errorf("hostapd exited immediately, check %s for conflicting AP mode support", confPath)
	}
	return nil
}

// StopAP stops hostapd and restores the interface's original MAC, if it was
// spoofed.
func (m *Manager) StopAP(ctx context.Context, iface string) error {
	var firstErr error
	if m.proc != nil {
		if err := m.proc.Stop(int64(5 * time.Second)); err != nil {
			firstErr = err
		}
		m.proc = nil
	}
	if m.confPath != "" {
		_ = os.Remove(m.confPath)
		m.confPath = ""
	}
	if m.spoofedMAC != "" && m.origMAC != "" {
		if err := m.spoofMAC(ctx, iface, m.origMAC); err != nil && firstErr == nil {
			firstErr = err
		}
		m.spoofedMAC = ""
	}
	return firstErr
}

func (m *Manager) currentMAC(ctx context.Context, iface string) (string, error) {
	out, err := m.shell.Run(ctx, []string{"cat", fmt.Sprintf("/sys/class/net/%s/address", iface)}, ports.RunOptions{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (m *Manager) spoofMAC(ctx context.Context, iface, mac string) error {
	if _, err := m.shell.Run(ctx, []string{"ip", "link", "set", iface, "down"}, ports.RunOptions{RequireRoot: true}); err != nil {
		return err
	}
	if _, err := m.shell.Run(ctx, []string{"ip", "link", "set", iface, "address", mac}, ports.RunOptions{RequireRoot: true}); err != nil {
		return err
	}
	_, err := m.shell.Run(ctx, []string{"ip", "link", "set", iface, "up"}, ports.RunOptions{RequireRoot: true})
	return err
}

// generateHostapdConfig renders the hostapd.conf fields in the same order
// ap_manager.py's _generate_hostapd_config does, so a diff against a
// capture from that tool stays readable. hw_mode is "g" for channels 1-14
// and "a" for higher channels.
func generateHostapdConfig(iface, ssid, channel string) string {
	hwMode := "g"
	if ch, err := strconv.Atoi(strings.TrimSpace(channel)); err == nil && ch > 14 {
		hwMode = "a"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "interface=%s\n", iface)
	fmt.Fprintf(&b, "driver=nl80211\n")
	fmt.Fprintf(&b, "ssid=%s\n", ssid)
	fmt.Fprintf(&b, "hw_mode=%s\n", hwMode)
	fmt.Fprintf(&b, "channel=%s\n", channel)
	fmt.Fprintf(&b, "macaddr_acl=0\n")
	fmt.Fprintf(&b, "accept_mac_file=/dev/null\n")
	fmt.Fprintf(&b, "auth_algs=1\n")
	fmt.Fprintf(&b, "wmm_enabled=1\n")
	fmt.Fprintf(&b, "ignore_broadcast_ssid=0\n")
	return b.String()
}
