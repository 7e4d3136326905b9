// Package iptables forwards and NATs traffic from the AP-side interface to
// the captive portal and, once a client authenticates, to the upstream WAN
// interface. It is the Go counterpart of traffic_redirector.py, keeping an
// explicit reversal log instead of re-deriving delete rules from the add
// rules (iptables -D requires an exact match, and this avoids any
// transcription drift between the two).
package iptables

import (
	"context"
	"fmt"

	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
)

// Redirector manages IP forwarding and NAT/redirect rules for one run.
type Redirector struct {
	shell ports.ShellRunner
	log   *logging.Logger

	applied [][]string // each entry is the argv that added a rule, in order
}

// New returns a Redirector backed by shell.
func New(shell ports.ShellRunner) *Redirector {
	return &Redirector{shell: shell, log: logging.Component("iptables")}
}

var _ ports.TrafficRedirector = (*Redirector)(nil)

// EnableIPForwarding flips net.ipv4.ip_forward on for the duration of the
// run. It does not attempt to restore the previous value: workflows that
// care should read it themselves before calling this.
func (r *Redirector) EnableIPForwarding(ctx context.Context) error {
	_, err := r.shell.Run(ctx, []string{"sysctl", "-w", "net.ipv4.ip_forward=1"}, ports.RunOptions{RequireRoot: true})
	return err
}

// SetupRedirectionRules installs, in order: a PREROUTING redirect of
// AP-side HTTP traffic to the portal, a PREROUTING redirect of DNS queries
// to the portal's DNS responder, a FORWARD accept for AP-to-WAN traffic, a
// FORWARD accept for the return path, and POSTROUTING masquerade on the WAN
// interface. The order matters for ClearRedirectionRules, which undoes them
// in reverse.
func (r *Redirector) SetupRedirectionRules(ctx context.Context, apIface, wanIface, gatewayIP string, portalPort int) error {
	rules := [][]string{
		{"iptables", "-t", "nat", "-A", "PREROUTING", "-i", apIface, "-p", "tcp", "--dport", "80",
			"-j", "DNAT", "--to-destination", fmt.Sprintf("%s:%d", gatewayIP, portalPort)},
		{"iptables", "-t", "nat", "-A", "PREROUTING", "-i", apIface, "-p", "udp", "--dport", "53",
			"-j", "DNAT", "--to-destination", fmt.Sprintf("%s:53", gatewayIP)},
		{"iptables", "-A", "FORWARD", "-i", apIface, "-o", wanIface, "-j", "ACCEPT"},
		{"iptables", "-A", "FORWARD", "-i", wanIface, "-o", apIface, "-m", "state",
			"--state", "ESTABLISHED,RELATED", "-j", "ACCEPT"},
		{"iptables", "-t", "nat", "-A", "POSTROUTING", "-o", wanIface, "-j", "MASQUERADE"},
	}

	for _, argv := range rules {
		if _, err := r.shell.Run(ctx, argv, ports.RunOptions{RequireRoot: true}); err != nil {
			// unwind whatever was already applied before surfacing the error
			r.clearApplied(ctx)
			return fmt.Errorf("apply rule %v: %w", argv, err)
		}
		r.applied = append(r.applied, argv)
	}
	return nil
}

// ClearRedirectionRules removes every rule SetupRedirectionRules installed,
// in reverse order, continuing past individual failures so a partially
// torn-down ruleset never blocks the rest of teardown.
func (r *Redirector) ClearRedirectionRules(ctx context.Context) error {
	return r.clearApplied(ctx)
}

func (r *Redirector) clearApplied(ctx context.Context) error {
	var firstErr error
	for i := len(r.applied) - 1; i >= 0; i-- {
		deleteArgv := toDelete(r.applied[i])
		if _, err := r.shell.Run(ctx, deleteArgv, ports.RunOptions{RequireRoot: true, AllowFailure: true}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.applied = nil
	return firstErr
}

// toDelete turns an "-A"/"append" argv into its "-D"/"delete" counterpart,
// argument for argument, so the delete always matches the add exactly.
func toDelete(addArgv []string) []string {
	out := make([]string, len(addArgv))
	copy(out, addArgv)
	for i, a := range out {
		if a == "-A" {
			out[i] = "-D"
			break
		}
	}
	return out
}
