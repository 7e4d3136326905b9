package reporting

import (
	"bytes"
	"testing"
	"time"

	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *domain.RunReport {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	return &domain.RunReport{
		RunID:       "run-123",
		Workflow:    "eviltwin",
		GeneratedAt: start.Add(time.Hour),
		GeneratedBy: "operator",
		StartedAt:   start,
		FinishedAt:  start.Add(90 * time.Second),
		FinalPhase:  "S4",
		Outcome:     "succeeded",
		Target:      domain.RunTarget{SSID: "Target", BSSID: "AA:BB:CC:DD:EE:FF", Channel: 6},
		Phases: []domain.PhaseTiming{
			{Phase: "S0", Entered: start, Exited: start.Add(2 * time.Second), Duration: 2 * time.Second},
			{Phase: "S1", Entered: start.Add(2 * time.Second), Exited: start.Add(10 * time.Second), Duration: 8 * time.Second},
		},
		Teardown: []domain.TeardownCheck{
			{Step: "stop portal", Succeeded: true},
			{Step: "restore interface", Succeeded: false, Err: "device busy"},
		},
		CredentialsCaptured: true,
		CredentialVerified:  true,
	}
}

func TestExportRunReportProducesNonEmptyPDF(t *testing.T) {
	exporter := NewPDFExporter()
	out, err := exporter.ExportRunReport(sampleReport())

	require.NoError(t, err)
	assert.True(t, len(out) > 0)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportRunReportHandlesEmptyPhasesAndTeardown(t *testing.T) {
	exporter := NewPDFExporter()
	report := &domain.RunReport{
		RunID:    "run-empty",
		Workflow: "crack",
		Outcome:  "aborted",
	}

	out, err := exporter.ExportRunReport(report)

	require.NoError(t, err)
	assert.True(t, len(out) > 0)
}
