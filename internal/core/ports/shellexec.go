package ports

import "context"

// RunOptions configures a single external command invocation.
type RunOptions struct {
	// RequireRoot prepends sudo when the process isn't already running as
	// root.
	RequireRoot bool
	// Timeout, if non-zero, bounds how long the command may run before it
	// is sent SIGTERM, followed by SIGKILL after a grace period.
	Timeout int64 // nanoseconds; kept as int64 so callers can pass time.Duration directly
	// AllowFailure suppresses ShellError construction for non-zero exit;
	// the caller inspects the returned error itself (mirrors run_no_check).
	AllowFailure bool
	// Stdin, if non-empty, is written to the child's standard input.
	Stdin string
}

// ShellRunner executes external commands on the host. It is the only
// component in capgate allowed to call exec.Command; every adapter that
// shells out to iw, ip, hostapd, dnsmasq, iptables, nmcli, aircrack-ng and
// friends goes through it so invocation, logging and cancellation behave
// uniformly.
type ShellRunner interface {
	// Run executes argv[0] with argv[1:], waits for completion or context
	// cancellation, and returns combined semantics: stdout on success, or
	// a *domain.ShellError wrapping the sentinel error on non-zero exit.
	Run(ctx context.Context, argv []string, opts RunOptions) (stdout string, err error)

	// Start launches argv as a detached, long-running process (its own
	// session via setsid) and returns a handle used to stop it later. Used
	// for airodump-ng, hostapd, dnsmasq and similar daemons that must
	// outlive the calling goroutine's own cancellation point.
	Start(ctx context.Context, argv []string, opts RunOptions) (Process, error)
}

// Process is a handle to a detached external command started by Start.
type Process interface {
	// Wait blocks until the process exits and returns its error, if any.
	Wait() error
	// Stop sends SIGTERM, waits up to the given grace period, then sends
	// SIGKILL if the process has not exited.
	Stop(gracePeriod int64) error
	// Running reports whether the process is still alive.
	Running() bool
	// PID returns the process's PID, or 0 if it never started.
	PID() int
}
