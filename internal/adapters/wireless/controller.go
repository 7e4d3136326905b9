// Package wireless implements capgate's interface mode switching: putting a
// wireless card into monitor mode for scanning/capture, and restoring it to
// managed mode (and NetworkManager's care) afterward. It is the Go
// counterpart of interface_controller.py, generalized onto the shell
// executor's detached-process and escalation seams instead of bare
// subprocess calls.
package wireless

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/core/state"
	"github.com/nexusdevtools/capgate/internal/logging"
)

// priorState records what an interface looked like before EnableMonitorMode
// touched it, so RestoreInterfaceState can put it back.
type priorState struct {
	wasNMManaged bool
	monitorIface string
	usedAirmonNG bool
}

// Controller implements ports.InterfaceController.
type Controller struct {
	shell ports.ShellRunner
	store *state.Store
	log   *logging.Logger

	mu    sync.Mutex
	prior map[string]priorState
}

// New returns a Controller that records interface state into store.
func New(shell ports.ShellRunner, store *state.Store) *Controller {
	return &Controller{
		shell: shell,
		store: store,
		log:   logging.Component("wireless"),
		prior: make(map[string]priorState),
	}
}

var _ ports.InterfaceController = (*Controller)(nil)

// EnableMonitorMode switches iface into monitor mode. It first asks
// NetworkManager whether it considers the device managed; if so, it
// disconnects the device and sets it unmanaged (restore hands it back, and
// so does a total failure here). It then tries the ip/iw path; if any ip/iw
// command fails, it falls back to airmon-ng, which on many drivers renames
// the interface (wlan0 -> wlan0mon) and that renamed name is what's
// returned and recorded. The resulting mode is not read back with iw.
func (c *Controller) EnableMonitorMode(ctx context.Context, iface string) (string, error) {
	nmManaged := c.probeNMManaged(ctx, iface)
	nmOpts := ports.RunOptions{RequireRoot: true, AllowFailure: true}
	if nmManaged {
		_, _ = c.shell.Run(ctx, []string{"nmcli", "dev", "disconnect", iface}, nmOpts)
		_, _ = c.shell.Run(ctx, []string{"nmcli", "dev", "set", iface, "managed", "no"}, nmOpts)
	}

	if err := c.tryIPIWMonitor(ctx, iface); err == nil {
		c.recordPrior(iface, priorState{wasNMManaged: nmManaged, monitorIface: iface})
		c.updateStoreMode(iface, domain.ModeMonitor)
		return iface, nil
	}

	monitorIface, err := c.tryAirmonNG(ctx, iface)
	if err != nil {
		if nmManaged {
			_, _ = c.shell.Run(ctx, []string{"nmcli", "dev", "set", iface, "managed", "yes"}, nmOpts)
		}
		return "", fmt.Errorf("enable monitor mode on %s: %w", iface, err)
	}
	c.recordPrior(iface, priorState{wasNMManaged: nmManaged, monitorIface: monitorIface, usedAirmonNG: true})
	c.updateStoreMode(monitorIface, domain.ModeMonitor)
	return monitorIface, nil
}

func (c *Controller) probeNMManaged(ctx context.Context, iface string) bool {
	out, err := c.shell.Run(ctx, []string{"nmcli", "-g", "GENERAL.STATE,GENERAL.NM-MANAGED", "dev", "show", iface}, ports.RunOptions{})
	if err != nil {
		return false
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), "yes") {
			return true
		}
	}
	return false
}

func (c *Controller) tryIPIWMonitor(ctx context.Context, iface string) error {
	if _, err := c.shell.Run(ctx, []string{"ip", "link", "set", iface, "down"}, ports.RunOptions{RequireRoot: true}); err != nil {
		return err
	}
	if _, err := c.shell.Run(ctx, []string{"iw", iface, "set", "type", "monitor"}, ports.RunOptions{RequireRoot: true}); err != nil {
		// best effort: bring the interface back up in its original mode
		_, _ = c.shell.Run(ctx, []string{"ip", "link", "set", iface, "up"}, ports.RunOptions{RequireRoot: true})
		return err
	}
	_, err := c.shell.Run(ctx, []string{"ip", "link", "set", iface, "up"}, ports.RunOptions{RequireRoot: true})
	return err
}

// tryAirmonNG falls back to `airmon-ng start <iface>` for drivers whose
// monitor mode switch isn't a plain iw type change (commonly requiring the
// interface to be renamed with a "mon" suffix).
func (c *Controller) tryAirmonNG(ctx context.Context, iface string) (string, error) {
	out, err := c.shell.Run(ctx, []string{"airmon-ng", "start", iface}, ports.RunOptions{RequireRoot: true})
	if err != nil {
		return "", err
	}
	if renamed := parseAirmonRenamedIface(out); renamed != "" {
		return renamed, nil
	}
	return iface + "mon", nil
}

func parseAirmonRenamedIface(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "monitor mode") && strings.Contains(line, "enabled") {
			fields := strings.Fields(line)
			for i, f := range fields {
				if strings.HasPrefix(f, "[") && i+0 < len(fields) {
					return strings.Trim(f, "[]")
				}
			}
		}
	}
	return ""
}

// RestoreInterfaceState reverses EnableMonitorMode on a best-effort basis:
// every restoration step is attempted even if an earlier one fails. The
// first error encountered (if any) is returned after all steps run.
func (c *Controller) RestoreInterfaceState(ctx context.Context, iface string) error {
	c.mu.Lock()
	p, ok := c.prior[iface]
	if ok {
		delete(c.prior, iface)
	}
	c.mu.Unlock()
	if !ok {
		p = priorState{monitorIface: iface, wasNMManaged: true}
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if p.usedAirmonNG {
		_, err := c.shell.Run(ctx, []string{"airmon-ng", "stop", p.monitorIface}, ports.RunOptions{RequireRoot: true})
		record(err)
	} else {
		_, err := c.shell.Run(ctx, []string{"ip", "addr", "flush", "dev", p.monitorIface}, ports.RunOptions{RequireRoot: true, AllowFailure: true})
		record(err)
		_, err = c.shell.Run(ctx, []string{"ip", "link", "set", p.monitorIface, "down"}, ports.RunOptions{RequireRoot: true})
		record(err)
		_, err = c.shell.Run(ctx, []string{"iw", p.monitorIface, "set", "type", "managed"}, ports.RunOptions{RequireRoot: true, AllowFailure: true})
		record(err)
		_, err = c.shell.Run(ctx, []string{"ip", "link", "set", p.monitorIface, "up"}, ports.RunOptions{RequireRoot: true})
		record(err)
	}

	if p.wasNMManaged {
		_, err := c.shell.Run(ctx, []string{"nmcli", "dev", "set", iface, "managed", "yes"}, ports.RunOptions{RequireRoot: true, AllowFailure: true})
		record(err)
	}

	c.updateStoreMode(iface, domain.ModeManaged)
	return firstErr
}

// AssignGatewayIP brings iface down, flushes its existing addresses, adds
// cidr, and brings it back up, the same down/flush/add/up sequence
// _select_interfaces uses to give the AP interface its gateway address.
func (c *Controller) AssignGatewayIP(ctx context.Context, iface, cidr string) error {
	if _, err := c.shell.Run(ctx, []string{"ip", "link", "set", iface, "down"}, ports.RunOptions{RequireRoot: true}); err != nil {
		return err
	}
	if _, err := c.shell.Run(ctx, []string{"ip", "addr", "flush", "dev", iface}, ports.RunOptions{RequireRoot: true}); err != nil {
		return err
	}
	if _, err := c.shell.Run(ctx, []string{"ip", "addr", "add", cidr, "dev", iface}, ports.RunOptions{RequireRoot: true}); err != nil {
		return err
	}
	if _, err := c.shell.Run(ctx, []string{"ip", "link", "set", iface, "up"}, ports.RunOptions{RequireRoot: true}); err != nil {
		return err
	}
	if c.store != nil {
		c.store.UpdateInterfaces([]domain.Interface{{Name: iface, IPv4CIDR: cidr}})
	}
	return nil
}

func (c *Controller) recordPrior(iface string, p priorState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prior[iface] = p
}

func (c *Controller) updateStoreMode(iface string, mode domain.Mode) {
	if c.store == nil {
		return
	}
	c.store.UpdateInterfaces([]domain.Interface{{Name: iface, Mode: mode}})
}
