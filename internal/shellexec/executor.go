// Package shellexec is capgate's single point of contact with exec.Command.
// Every adapter that shells out to ip, iw, hostapd, dnsmasq, iptables,
// nmcli, airodump-ng, aireplay-ng and aircrack-ng goes through a Runner so
// argv logging, root escalation and process cancellation behave uniformly
// and are mockable in tests through the ports.ShellRunner interface, which
// adapter tests replace with a fake, the same role driver.CommandExecutor
// plays for the wireless driver.
package shellexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/logging"
	"github.com/nexusdevtools/capgate/internal/telemetry"
)

// execCommandContext is a package variable so tests can replace it, mirroring
// the teacher's execCmd/execCommand seam.
var execCommandContext = exec.CommandContext

// Runner is the default ports.ShellRunner, backed by os/exec.
type Runner struct {
	log *logging.Logger
}

// New returns a Runner that logs invocations under the "shellexec" component.
func New() *Runner {
	return &Runner{log: logging.Component("shellexec")}
}

var _ ports.ShellRunner = (*Runner)(nil)

func buildArgv(argv []string, requireRoot bool) []string {
	if !requireRoot || len(argv) == 0 {
		return argv
	}
	if argv[0] == "sudo" {
		return argv
	}
	full := make([]string, 0, len(argv)+1)
	full = append(full, "sudo")
	full = append(full, argv...)
	return full
}

// Run executes argv and waits for it to finish or for ctx to be canceled.
// On non-zero exit it returns a *domain.ShellError unless opts.AllowFailure
// is set, in which case the caller is expected to inspect err itself.
func (r *Runner) Run(ctx context.Context, argv []string, opts ports.RunOptions) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("shellexec: empty argv")
	}
	full := buildArgv(argv, opts.RequireRoot)

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout))
		defer cancel()
	}

	cmd := execCommandContext(runCtx, full[0], full[1:]...)
	// On timeout or cancellation the child gets SIGTERM first, and SIGKILL
	// only if it is still running once the grace period has passed.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	r.log.Debug("run %s", strings.Join(full, " "))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if runCtx.Err() != nil {
			telemetry.ShellInvocations.WithLabelValues(full[0], "timeout").Inc()
			return stdout.String(), fmt.Errorf("%w: %s", domain.ErrCommandTimeout, strings.Join(full, " "))
		}
		var exitErr *exec.ExitError
		exitCode := -1
		if ok := asExitError(err, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		} else if isNotFound(err) {
			telemetry.ShellInvocations.WithLabelValues(full[0], "not_found").Inc()
			return "", fmt.Errorf("%w: %s", domain.ErrCommandNotFound, full[0])
		}
		telemetry.ShellInvocations.WithLabelValues(full[0], "nonzero_exit").Inc()
		if opts.AllowFailure {
			return stdout.String(), err
		}
		return stdout.String(), &domain.ShellError{
			Argv:     full,
			ExitCode: exitCode,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}
	}
	telemetry.ShellInvocations.WithLabelValues(full[0], "ok").Inc()
	return stdout.String(), nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "executable file not found")
}

// Start launches argv as a detached process in its own session, so it
// survives the caller's goroutine returning and can be stopped later by PID
// group rather than by a context that may already be done.
func (r *Runner) Start(ctx context.Context, argv []string, opts ports.RunOptions) (ports.Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("shellexec: empty argv")
	}
	full := buildArgv(argv, opts.RequireRoot)

	cmd := exec.Command(full[0], full[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	r.log.Debug("start %s", strings.Join(full, " "))

	if err := cmd.Start(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCommandNotFound, full[0])
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExternalCommand, strings.Join(full, " "), err)
	}
	return &process{cmd: cmd}, nil
}

// process implements ports.Process around an *exec.Cmd started with its own
// process group.
type process struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

func (p *process) Wait() error {
	return p.cmd.Wait()
}

func (p *process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd.Process == nil {
		return false
	}
	return p.cmd.ProcessState == nil
}

func (p *process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stop sends SIGTERM to the process group, waits up to gracePeriod for it
// to exit on its own, and escalates to SIGKILL if it hasn't. This
// generalizes the SIGKILL-only cancellation the teacher uses for reaver
// into the escalation the capture and AP daemons need so hostapd/dnsmasq
// get a chance to release the interface cleanly.
func (p *process) Stop(gracePeriod int64) error {
	p.mu.Lock()
	proc := p.cmd.Process
	p.mu.Unlock()
	if proc == nil {
		return nil
	}

	pgid := -proc.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return err
	}

	done := make(chan struct{})
	go func() {
		_ = p.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(time.Duration(gracePeriod)):
		if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return err
		}
		<-done
		return nil
	}
}
