package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/ports"
)

// Generator builds a RunReport from a run's recorded events.
type Generator struct {
	events ports.EventLog
}

// NewGenerator returns a Generator reading from the given event log.
func NewGenerator(events ports.EventLog) *Generator {
	return &Generator{events: events}
}

// Generate replays every event for runID and folds it into a RunReport.
// Neither workflow emits an explicit phase_exit event: a phase's end is the
// next phase_enter (or, for the last phase reached, the run's last event),
// so PhaseTiming entries are derived from consecutive phase_enter events. A
// phase_exit event, when one is present, also closes the open phase at its
// own time. teardown_step events become the
// teardown checklist, and credentials_captured/verified events set the
// corresponding flags without ever copying a credential value out of the
// event's fields.
func (g *Generator) Generate(ctx context.Context, runID, workflow, generatedBy string) (*domain.RunReport, error) {
	events, err := g.events.Since(ctx, runID, "")
	if err != nil {
		return nil, fmt.Errorf("fetch events for run %s: %w", runID, err)
	}

	report := &domain.RunReport{
		RunID:       runID,
		Workflow:    workflow,
		GeneratedAt: time.Now(),
		GeneratedBy: generatedBy,
		Outcome:     "aborted",
	}

	var openPhase string
	var openPhaseStart time.Time
	closePhase := func(exitedAt time.Time) {
		if openPhase == "" {
			return
		}
		report.Phases = append(report.Phases, domain.PhaseTiming{
			Phase:    openPhase,
			Entered:  openPhaseStart,
			Exited:   exitedAt,
			Duration: exitedAt.Sub(openPhaseStart),
		})
	}

	for _, ev := range events {
		if report.StartedAt.IsZero() {
			report.StartedAt = ev.Time
		}
		report.FinishedAt = ev.Time

		switch ev.Kind {
		case domain.EventKindPhaseEnter:
			closePhase(ev.Time)
			openPhase, openPhaseStart = ev.Message, ev.Time
			report.FinalPhase = ev.Message
		case domain.EventKindPhaseExit:
			entered := openPhaseStart
			if openPhase != ev.Message {
				entered = ev.Time
			}
			report.Phases = append(report.Phases, domain.PhaseTiming{
				Phase:    ev.Message,
				Entered:  entered,
				Exited:   ev.Time,
				Duration: ev.Time.Sub(entered),
			})
			openPhase = ""
		case domain.EventKindTeardownStep:
			report.Teardown = append(report.Teardown, domain.TeardownCheck{Step: ev.Message, Succeeded: true})
		case domain.EventKindTeardownFailed:
			errMsg, _ := ev.Fields["error"].(string)
			report.Teardown = append(report.Teardown, domain.TeardownCheck{Step: ev.Message, Succeeded: false, Err: errMsg})
		case domain.EventKindCredentialCaptured:
			report.CredentialsCaptured = true
			if ssid, ok := ev.Fields["ssid"].(string); ok {
				report.Target.SSID = ssid
			}
		case domain.EventKindCredentialVerified:
			if ok, _ := ev.Fields["verified"].(bool); ok {
				report.CredentialVerified = true
			}
		case domain.EventKindWorkflowComplete:
			report.Outcome = "succeeded"
		case domain.EventKindWorkflowFailed:
			report.Outcome = "aborted"
			if msg, ok := ev.Fields["error"].(string); ok {
				report.FailureMsg = msg
			}
		}

		if bssid, ok := ev.Fields["bssid"].(string); ok && report.Target.BSSID == "" {
			report.Target.BSSID = bssid
		}
		if channel, ok := ev.Fields["channel"].(int); ok && report.Target.Channel == 0 {
			report.Target.Channel = channel
		}
	}
	closePhase(report.FinishedAt)

	return report, nil
}
