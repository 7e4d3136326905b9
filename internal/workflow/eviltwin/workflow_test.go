package eviltwin

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
	monitorIface     string
	monitorErr       error
	restoreCalls     []string
	assignedGateway  string
	assignGatewayErr error
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
	f.assignedGateway = cidr
	return f.assignGatewayErr
}

type fakeScanner struct {
	result domain.ScanResult
	err    error
}

func (f *fakeScanner) Scan(ctx context.Context, monitorIface string, durationSeconds int, securityFilter string) (domain.ScanResult, error) {
	return f.result, f.err
}

type fakeAPManager struct {
	started bool
	stopped bool
}

func (f *fakeAPManager) StartAP(ctx context.Context, iface, ssid, channel, spoofBSSID string) error {
	f.started = true
	return nil
}
func (f *fakeAPManager) StopAP(ctx context.Context, iface string) error {
	f.stopped = true
	return nil
}

type fakeDHCPDNS struct {
	started, stopped bool
}

func (f *fakeDHCPDNS) StartDHCPDNS(ctx context.Context, iface, gatewayIP, start, end string) error {
	f.started = true
	return nil
}
func (f *fakeDHCPDNS) StopDHCPDNS(ctx context.Context) error {
	f.stopped = true
	return nil
}

type fakeRedirector struct {
	forwardingEnabled, rulesSetup, rulesCleared bool
}

func (f *fakeRedirector) EnableIPForwarding(ctx context.Context) error {
	f.forwardingEnabled = true
	return nil
}
func (f *fakeRedirector) SetupRedirectionRules(ctx context.Context, apIface, wanIface, gatewayIP string, port int) error {
	f.rulesSetup = true
	return nil
}
func (f *fakeRedirector) ClearRedirectionRules(ctx context.Context) error {
	f.rulesCleared = true
	return nil
}

type fakePortal struct {
	events  chan domain.Event
	stopped bool
}

func (f *fakePortal) Start(ctx context.Context, bindIP string, bindPort int, ssid string) (<-chan domain.Event, error) {
	return f.events, nil
}
func (f *fakePortal) Stop(ctx context.Context) error {
	f.stopped = true
	return nil
}

type fakeVerifier struct {
	ok bool
}

func (f *fakeVerifier) VerifyPassword(ctx context.Context, iface, ssid, password string) (bool, error) {
	return f.ok, nil
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

func newTestRunContext(ap string) *runctx.RunContext {
	rc := runctx.New()
	rc.Store().UpdateInterfaces([]domain.Interface{
		{Name: ap, IsWireless: true, IsUp: true, SupportsAP: true, SupportsMonitor: true, SupportsManaged: true},
	})
	return rc
}

func TestRunCapturesCredentialsAndVerifies(t *testing.T) {
	ifaceCtl := &fakeInterfaceController{}
	scanner := &fakeScanner{result: domain.ScanResult{AccessPoints: []domain.AccessPoint{
		{BSSID: "AA:BB:CC:DD:EE:FF", ESSID: "Target", Channel: 6, Power: -40},
	}}}
	ap := &fakeAPManager{}
	dhcpdns := &fakeDHCPDNS{}
	redirector := &fakeRedirector{}
	events := make(chan domain.Event, 1)
	portal := &fakePortal{events: events}
	verifier := &fakeVerifier{ok: true}
	log := &fakeEventLog{}

	wf := New(ifaceCtl, scanner, ap, dhcpdns, redirector, portal, verifier, log)

	rc := newTestRunContext("wlan0")
	events <- domain.Event{Kind: domain.EventKindCredentialCaptured, Fields: map[string]any{"password": "hunter2"}}

	result := wf.Run(context.Background(), rc, Options{AutoSelect: true, LureTimeout: time.Second})

	require.NoError(t, result.Err)
	assert.True(t, result.CredentialsCaptured)
	assert.Equal(t, "hunter2", result.Password)
	assert.True(t, result.Verified)
	assert.Equal(t, "Target", result.SSID)
	assert.True(t, ap.started)
	assert.True(t, ap.stopped)
	assert.True(t, dhcpdns.started)
	assert.True(t, dhcpdns.stopped)
	assert.True(t, redirector.rulesCleared)
	assert.True(t, portal.stopped)
	assert.Equal(t, "10.0.0.1/24", ifaceCtl.assignedGateway)
}

func TestRunTimesOutWithoutCredentials(t *testing.T) {
	ifaceCtl := &fakeInterfaceController{}
	scanner := &fakeScanner{result: domain.ScanResult{AccessPoints: []domain.AccessPoint{
		{BSSID: "AA:BB:CC:DD:EE:FF", ESSID: "Target", Channel: 6, Power: -40},
	}}}
	ap := &fakeAPManager{}
	dhcpdns := &fakeDHCPDNS{}
	redirector := &fakeRedirector{}
	portal := &fakePortal{events: make(chan domain.Event)}
	verifier := &fakeVerifier{ok: true}
	log := &fakeEventLog{}

	wf := New(ifaceCtl, scanner, ap, dhcpdns, redirector, portal, verifier, log)
	rc := newTestRunContext("wlan0")

	result := wf.Run(context.Background(), rc, Options{AutoSelect: true, LureTimeout: 20 * time.Millisecond})

	require.NoError(t, result.Err)
	assert.False(t, result.CredentialsCaptured)
	assert.False(t, result.Verified)
}

func TestRunAbortsWhenNoWirelessInterfaces(t *testing.T) {
	ifaceCtl := &fakeInterfaceController{}
	scanner := &fakeScanner{}
	ap := &fakeAPManager{}
	dhcpdns := &fakeDHCPDNS{}
	redirector := &fakeRedirector{}
	portal := &fakePortal{events: make(chan domain.Event)}
	verifier := &fakeVerifier{}
	log := &fakeEventLog{}

	wf := New(ifaceCtl, scanner, ap, dhcpdns, redirector, portal, verifier, log)
	rc := runctx.New()

	result := wf.Run(context.Background(), rc, Options{AutoSelect: true})

	require.Error(t, result.Err)
	assert.False(t, ap.started)
}
