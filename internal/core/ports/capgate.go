package ports

import (
	"context"

	"github.com/nexusdevtools/capgate/internal/core/domain"
)

// InterfaceScanner enumerates network interfaces on the host.
type InterfaceScanner interface {
	// Scan lists every interface ip/iw know about, wireless and wired.
	Scan(ctx context.Context) ([]domain.Interface, error)
}

// DeviceScanner discovers hosts on managed-mode network segments.
type DeviceScanner interface {
	// Scan performs a passive ARP table read followed by an active ARP
	// sweep of iface's local subnet, returning the merged result.
	Scan(ctx context.Context, iface string) ([]domain.Device, error)
}

// InterfaceController switches a wireless interface between managed and
// monitor mode and restores it afterward.
type InterfaceController interface {
	// EnableMonitorMode brings iface down, switches its type to monitor,
	// and brings it back up, recording the interface's prior state so it
	// can be restored later.
	EnableMonitorMode(ctx context.Context, iface string) (monitorIface string, err error)

	// RestoreInterfaceState reverses EnableMonitorMode on a best-effort
	// basis: it always attempts every restoration step even if an earlier
	// one fails, returning the first error encountered (if any).
	RestoreInterfaceState(ctx context.Context, iface string) error

	// AssignGatewayIP brings iface down, flushes its addresses, adds
	// cidr, and brings it back up — the sequence the Evil Twin workflow
	// uses to give the rogue AP interface its gateway address before
	// hostapd and dnsmasq start.
	AssignGatewayIP(ctx context.Context, iface, cidr string) error
}

// NetworkScanner drives airodump-ng for a fixed window and parses its CSV
// output into access points and stations.
type NetworkScanner interface {
	Scan(ctx context.Context, monitorIface string, durationSeconds int, securityFilter string) (domain.ScanResult, error)
}

// APManager brings up a rogue access point with hostapd.
type APManager interface {
	StartAP(ctx context.Context, iface, ssid, channel string, spoofBSSID string) error
	StopAP(ctx context.Context, iface string) error
}

// DHCPDNSManager leases addresses and answers DNS on the AP-side interface
// with dnsmasq.
type DHCPDNSManager interface {
	StartDHCPDNS(ctx context.Context, iface, gatewayIP, dhcpRangeStart, dhcpRangeEnd string) error
	StopDHCPDNS(ctx context.Context) error
}

// TrafficRedirector forwards and NATs traffic from the AP-side interface to
// a portal or to the internet-facing interface, in a reversible order.
type TrafficRedirector interface {
	EnableIPForwarding(ctx context.Context) error
	SetupRedirectionRules(ctx context.Context, apIface, wanIface, gatewayIP string, portalPort int) error
	ClearRedirectionRules(ctx context.Context) error
}

// WebServerManager serves the captive portal and exposes the credentials it
// captures through a channel.
type WebServerManager interface {
	Start(ctx context.Context, bindIP string, bindPort int, ssid string) (<-chan domain.Event, error)
	Stop(ctx context.Context) error
}

// CredentialVerifier checks a captured passphrase against the live AP using
// an ephemeral NetworkManager connection profile.
type CredentialVerifier interface {
	VerifyPassword(ctx context.Context, iface, ssid, password string) (bool, error)
}

// CaptureManager runs airodump-ng against a target BSSID/channel while
// optionally forcing a handshake with aireplay-ng deauth frames.
type CaptureManager interface {
	StartCapture(ctx context.Context, monitorIface, bssid string, channel int, outputPrefix string) (domain.CaptureArtifact, error)
	Deauth(ctx context.Context, monitorIface, bssid, clientMAC string, count int) error
	StopCapture(ctx context.Context) (domain.CaptureArtifact, error)
}

// CrackingManager resolves a wordlist and runs aircrack-ng against a
// capture file.
type CrackingManager interface {
	FindWordlist(ctx context.Context, name string) (string, error)
	Crack(ctx context.Context, capFile, bssid, wordlistPath string) (domain.CrackResult, error)
}

// PluginLoader discovers and invokes capgate plugins.
type PluginLoader interface {
	Discover(ctx context.Context) error
	List() []PluginInfo
	Invoke(ctx context.Context, name string, rc RunContext, args map[string]string) (bool, error)
}

// PluginInfo is the metadata.json-derived description of a discovered
// plugin.
type PluginInfo struct {
	Name        string
	Description string
	EntryPoint  string
}

// RunContext is the subset of the run context a plugin needs: scoped
// key/value storage plus access to the shared state store.
type RunContext interface {
	ID() string
	Get(key string) (any, bool)
	Set(key string, value any)
	State() StateStore
}

// StateStore is the shared, mutex-guarded record of interfaces and devices
// observed during a capgate run.
type StateStore interface {
	GetInterfaces() []domain.Interface
	UpdateInterfaces(ifaces []domain.Interface)
	GetDevices() []domain.Device
	UpdateDevices(devices []domain.Device)
	GetConfig(key string) (string, bool)
	SetConfig(key, value string)
	Save(path string) error
	Load(path string) error
}

// EventLog is the append-only record of what a run did, consumed by the
// admin websocket feed and the PDF reporter.
type EventLog interface {
	Append(ctx context.Context, ev domain.Event) error
	Since(ctx context.Context, runID string, afterID string) ([]domain.Event, error)
	Wait(ctx context.Context, runID string, kind string) (domain.Event, error)
}
