package domain

import "time"

// RunReport summarizes one workflow run (Evil Twin or crack automation) for
// the post-run PDF. It never carries a captured credential's value, only
// whether one was captured and whether it verified — spec's no-credentials-
// in-logs rule extends to reports.
type RunReport struct {
	RunID       string
	Workflow    string // "eviltwin" or "crack"
	GeneratedAt time.Time
	GeneratedBy string
	StartedAt   time.Time
	FinishedAt  time.Time
	FinalPhase  string
	Outcome     string // "succeeded", "aborted", "timed_out"
	FailureMsg  string

	Target RunTarget

	Phases   []PhaseTiming
	Teardown []TeardownCheck

	CredentialsCaptured bool
	CredentialVerified  bool
}

// RunTarget is the network the run operated against.
type RunTarget struct {
	SSID    string
	BSSID   string
	Channel int
}

// PhaseTiming records how long a workflow spent in one named phase.
type PhaseTiming struct {
	Phase    string
	Entered  time.Time
	Exited   time.Time
	Duration time.Duration
}

// TeardownCheck is one line of the teardown verification checklist: a step
// name and whether it completed without error.
type TeardownCheck struct {
	Step      string
	Succeeded bool
	Err       string
}
