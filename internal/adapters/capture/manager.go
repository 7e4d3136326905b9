// Package capture drives a handshake capture session: airodump-ng pinned
// to a target BSSID/channel, optionally forced with aireplay-ng deauth
// frames, the Go counterpart of capture_manager.py's capture_handshake.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
)

// Manager runs one capture session at a time.
type Manager struct {
	shell ports.ShellRunner
	log   *logging.Logger

	proc     ports.Process
	prefix   string
	artifact domain.CaptureArtifact
}

// New returns a Manager backed by shell.
func New(shell ports.ShellRunner) *Manager {
	return &Manager{shell: shell, log: logging.Component("capture")}
}

var _ ports.CaptureManager = (*Manager)(nil)

// StartCapture cleans up any stale capture files at outputPrefix, then
// starts airodump-ng pinned to bssid/channel, writing a .cap file there.
func (m *Manager) StartCapture(ctx context.Context, monitorIface, bssid string, channel int, outputPrefix string) (domain.CaptureArtifact, error) {
	cleanupCaptureFiles(outputPrefix)

	argv := []string{
		"airodump-ng",
		"--bssid", bssid,
		"--channel", strconv.Itoa(channel),
		"--write", outputPrefix,
		"--output-format", "pcap",
		monitorIface,
	}
	proc, err := m.shell.Start(ctx, argv, ports.RunOptions{RequireRoot: true})
	if err != nil {
		return domain.CaptureArtifact{}, fmt.Errorf("start capture: %w", err)
	}
	m.proc = proc
	m.prefix = outputPrefix
	m.artifact = domain.CaptureArtifact{
		CapFile:   outputPrefix + "-01.cap",
		BSSID:     bssid,
		Channel:   channel,
		StartedAt: time.Now(),
	}
	return m.artifact, nil
}

// Deauth synchronously runs a bounded aireplay-ng deauth burst against
// clientMAC (or broadcast, if clientMAC is empty) to force a handshake.
// Unlike StartCapture this blocks until aireplay-ng's fixed burst completes.
func (m *Manager) Deauth(ctx context.Context, monitorIface, bssid, clientMAC string, count int) error {
	if count <= 0 {
		count = 5
	}
	argv := []string{"aireplay-ng", "--deauth", strconv.Itoa(count), "-a", bssid}
	if clientMAC != "" {
		argv = append(argv, "-c", clientMAC)
	}
	argv = append(argv, monitorIface)

	_, err := m.shell.Run(ctx, argv, ports.RunOptions{RequireRoot: true, Timeout: int64(15 * time.Second)})
	return err
}

// StopCapture stops airodump-ng and checks the resulting .cap file with
// HasHandshake (two or more EAPOL frames count as a handshake).
func (m *Manager) StopCapture(ctx context.Context) (domain.CaptureArtifact, error) {
	if m.proc != nil {
		if err := m.proc.Stop(int64(3 * time.Second)); err != nil {
			m.log.Warn("airodump-ng did not stop cleanly: %v", err)
		}
		m.proc = nil
	}
	m.artifact.StoppedAt = time.Now()
	m.artifact.HandshakeSeen = HasHandshake(m.artifact.CapFile)
	return m.artifact, nil
}

func cleanupCaptureFiles(prefix string) {
	matches, _ := filepath.Glob(prefix + "-*")
	for _, f := range matches {
		_ = os.Remove(f)
	}
}
