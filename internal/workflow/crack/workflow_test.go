package crack

import (
	"context"
	"testing"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/runctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInterfaceController struct {
	monitorIface string
	monitorErr   error
	restoreCalls []string
}

func (f *fakeInterfaceController) EnableMonitorMode(ctx context.Context, iface string) (string, error) {
	if f.monitorIface == "" {
		return iface, f.monitorErr
	}
	return f.monitorIface, f.monitorErr
}
func (f *fakeInterfaceController) RestoreInterfaceState(ctx context.Context, iface string) error {
	f.restoreCalls = append(f.restoreCalls, iface)
	return nil
}
func (f *fakeInterfaceController) AssignGatewayIP(ctx context.Context, iface, cidr string) error {
	return nil
}

type fakeScanner struct {
	result domain.ScanResult
	err    error
}

func (f *fakeScanner) Scan(ctx context.Context, monitorIface string, durationSeconds int, securityFilter string) (domain.ScanResult, error) {
	return f.result, f.err
}

type fakeCaptureManager struct {
	startErr    error
	stopErr     error
	artifact    domain.CaptureArtifact
	deauthCalls int
	started     bool
	stopped     bool
}

func (f *fakeCaptureManager) StartCapture(ctx context.Context, monitorIface, bssid string, channel int, outputPrefix string) (domain.CaptureArtifact, error) {
	f.started = true
	return domain.CaptureArtifact{}, f.startErr
}
func (f *fakeCaptureManager) Deauth(ctx context.Context, monitorIface, bssid, clientMAC string, count int) error {
	f.deauthCalls++
	return nil
}
func (f *fakeCaptureManager) StopCapture(ctx context.Context) (domain.CaptureArtifact, error) {
	f.stopped = true
	return f.artifact, f.stopErr
}

type fakeCrackingManager struct {
	wordlistPath string
	wordlistErr  error
	result       domain.CrackResult
	crackErr     error
}

func (f *fakeCrackingManager) FindWordlist(ctx context.Context, name string) (string, error) {
	return f.wordlistPath, f.wordlistErr
}
func (f *fakeCrackingManager) Crack(ctx context.Context, capFile, bssid, wordlistPath string) (domain.CrackResult, error) {
	return f.result, f.crackErr
}

type fakeEventLog struct {
	events []domain.Event
}

func (f *fakeEventLog) Append(ctx context.Context, ev domain.Event) error {
	f.events = append(f.events, ev)
	return nil
}
func (f *fakeEventLog) Since(ctx context.Context, runID, afterID string) ([]domain.Event, error) {
	return f.events, nil
}
func (f *fakeEventLog) Wait(ctx context.Context, runID, kind string) (domain.Event, error) {
	return domain.Event{}, nil
}

func newTestRunContext(iface string) *runctx.RunContext {
	rc := runctx.New()
	rc.Store().UpdateInterfaces([]domain.Interface{
		{Name: iface, IsWireless: true, IsUp: true, SupportsMonitor: true},
	})
	return rc
}

func TestRunCracksHandshakeEndToEnd(t *testing.T) {
	ifaceCtl := &fakeInterfaceController{}
	scanner := &fakeScanner{result: domain.ScanResult{AccessPoints: []domain.AccessPoint{
		{BSSID: "AA:BB:CC:DD:EE:FF", ESSID: "Target", Channel: 6, Power: -40},
	}}}
	capture := &fakeCaptureManager{artifact: domain.CaptureArtifact{CapFile: "/tmp/capgate-capture-01.cap", HandshakeSeen: true}}
	cracking := &fakeCrackingManager{wordlistPath: "/usr/share/wordlists/rockyou.txt", result: domain.CrackResult{Found: true, Key: "hunter2"}}
	log := &fakeEventLog{}

	wf := New(ifaceCtl, scanner, capture, cracking, log)
	rc := newTestRunContext("wlan0")

	result := wf.Run(context.Background(), rc, Options{AutoSelect: true, CaptureWindow: 10 * time.Millisecond})

	require.NoError(t, result.Err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", result.BSSID)
	assert.Equal(t, "Target", result.ESSID)
	assert.True(t, result.Crack.Found)
	assert.Equal(t, "hunter2", result.Crack.Key)
	assert.True(t, capture.started)
	assert.True(t, capture.stopped)
	assert.Equal(t, 1, capture.deauthCalls)
	assert.Contains(t, ifaceCtl.restoreCalls, "wlan0")
}

func TestRunAbortsWhenScanFindsNothing(t *testing.T) {
	ifaceCtl := &fakeInterfaceController{}
	scanner := &fakeScanner{result: domain.ScanResult{}}
	capture := &fakeCaptureManager{}
	cracking := &fakeCrackingManager{}
	log := &fakeEventLog{}

	wf := New(ifaceCtl, scanner, capture, cracking, log)
	rc := newTestRunContext("wlan0")

	result := wf.Run(context.Background(), rc, Options{AutoSelect: true})

	require.Error(t, result.Err)
	assert.False(t, capture.started)
	assert.Contains(t, ifaceCtl.restoreCalls, "wlan0")
}

func TestRunAbortsWhenNoMonitorCapableInterface(t *testing.T) {
	ifaceCtl := &fakeInterfaceController{}
	scanner := &fakeScanner{}
	capture := &fakeCaptureManager{}
	cracking := &fakeCrackingManager{}
	log := &fakeEventLog{}

	wf := New(ifaceCtl, scanner, capture, cracking, log)
	rc := runctx.New()

	result := wf.Run(context.Background(), rc, Options{AutoSelect: true})

	require.Error(t, result.Err)
	assert.Empty(t, ifaceCtl.restoreCalls)
}

func TestRunHonorsExplicitTargetBSSID(t *testing.T) {
	ifaceCtl := &fakeInterfaceController{}
	scanner := &fakeScanner{result: domain.ScanResult{AccessPoints: []domain.AccessPoint{
		{BSSID: "11:22:33:44:55:66", ESSID: "Decoy", Channel: 1, Power: -20},
		{BSSID: "AA:BB:CC:DD:EE:FF", ESSID: "Target", Channel: 6, Power: -70},
	}}}
	capture := &fakeCaptureManager{artifact: domain.CaptureArtifact{CapFile: "/tmp/x.cap"}}
	cracking := &fakeCrackingManager{result: domain.CrackResult{Found: false}}
	log := &fakeEventLog{}

	wf := New(ifaceCtl, scanner, capture, cracking, log)
	rc := newTestRunContext("wlan0")

	result := wf.Run(context.Background(), rc, Options{
		AutoSelect:    true,
		TargetBSSID:   "AA:BB:CC:DD:EE:FF",
		CaptureWindow: 5 * time.Millisecond,
	})

	require.NoError(t, result.Err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", result.BSSID)
	assert.Equal(t, "Target", result.ESSID)
	assert.False(t, result.Crack.Found)
}
