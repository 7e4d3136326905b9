// Package nmcli verifies a captured passphrase against the live access
// point by cycling an ephemeral NetworkManager connection profile, the Go
// counterpart of credential_verifier.py's verify_password.
package nmcli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
)

// Verifier checks WiFi passphrases using nmcli.
type Verifier struct {
	shell ports.ShellRunner
	log   *logging.Logger
}

// New returns a Verifier backed by shell.
func New(shell ports.ShellRunner) *Verifier {
	return &Verifier{shell: shell, log: logging.Component("nmcli")}
}

var _ ports.CredentialVerifier = (*Verifier)(nil)

// VerifyPassword adds a throwaway WPA-PSK profile for ssid on iface with the
// candidate password, brings it up, and checks whether the connection
// reaches the "activated" state. The throwaway profile is always deleted,
// even on error. VerifyPassword does not change whether NetworkManager
// manages iface: it neither disconnects nor un-manages the device first.
func (v *Verifier) VerifyPassword(ctx context.Context, iface, ssid, password string) (bool, error) {
	connName := "capgate-verify-" + uuid.NewString()[:8]

	defer func() {
		_, _ = v.shell.Run(ctx, []string{"nmcli", "con", "delete", connName}, ports.RunOptions{RequireRoot: true, AllowFailure: true})
	}()

	_, err := v.shell.Run(ctx, []string{
		"nmcli", "con", "add", "type", "wifi", "ifname", iface, "con-name", connName,
		"ssid", ssid,
	}, ports.RunOptions{RequireRoot: true})
	if err != nil {
		return false, fmt.Errorf("create verification profile: %w", err)
	}

	_, err = v.shell.Run(ctx, []string{
		"nmcli", "con", "modify", connName,
		"wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", password,
	}, ports.RunOptions{RequireRoot: true})
	if err != nil {
		return false, fmt.Errorf("set verification psk: %w", err)
	}

	upCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	out, upErr := v.shell.Run(upCtx, []string{"nmcli", "con", "up", connName}, ports.RunOptions{RequireRoot: true, AllowFailure: true})

	defer func() {
		_, _ = v.shell.Run(ctx, []string{"nmcli", "con", "down", connName}, ports.RunOptions{RequireRoot: true, AllowFailure: true})
	}()

	if upErr != nil {
		return false, nil
	}
	return classifyActivation(out), nil
}

// classifyActivation reports whether nmcli con up's output indicates the
// connection reached the activated state, rather than failing with a
// secrets/timeout error that nmcli still exits 0 for in some driver
// combinations.
func classifyActivation(out string) bool {
	lower := strings.ToLower(out)
	if strings.Contains(lower, "error") || strings.Contains(lower, "timeout") {
		return false
	}
	return strings.Contains(lower, "successfully activated") || strings.Contains(lower, "connection successfully activated")
}
