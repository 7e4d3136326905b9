// Package reporting renders a RunReport into a PDF after-action summary:
// phases reached, how long each took, whether credentials were captured and
// verified (never the credential value itself), and a teardown verification
// checklist. It is the Go counterpart of the teacher's executive-summary PDF
// exporter, retargeted from vulnerability-scan statistics onto workflow runs.
package reporting

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/nexusdevtools/capgate/internal/core/domain"
)

// PDFExporter renders a domain.RunReport to PDF bytes.
type PDFExporter struct{}

// NewPDFExporter returns a PDFExporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportRunReport generates an after-action PDF for one workflow run.
func (e *PDFExporter) ExportRunReport(report *domain.RunReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, report)
	e.addOutcomeBanner(pdf, report)
	e.addTarget(pdf, report)
	e.addPhaseTimings(pdf, report)
	e.addTeardownChecklist(pdf, report)
	e.addFooter(pdf, report)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, report *domain.RunReport) {
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 15, "Run Report: "+report.Workflow, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Run ID: %s", report.RunID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	if !report.StartedAt.IsZero() {
		pdf.CellFormat(0, 6, fmt.Sprintf("Window: %s to %s", report.StartedAt.Format("2006-01-02 15:04:05"), report.FinishedAt.Format("15:04:05")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

// addOutcomeBanner mirrors the teacher's prominent colored risk-score box,
// here showing the run's terminal outcome instead of a numeric score.
func (e *PDFExporter) addOutcomeBanner(pdf *gofpdf.Fpdf, report *domain.RunReport) {
	r, g, b := e.outcomeColor(report.Outcome)
	pdf.SetFillColor(r, g, b)
	y := pdf.GetY()
	pdf.Rect(20, y, 170, 24, "F")

	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(25, y+4)
	pdf.CellFormat(100, 16, report.Outcome, "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 12)
	pdf.SetXY(130, y+7)
	pdf.CellFormat(55, 10, "Phase: "+report.FinalPhase, "", 0, "R", false, 0, "")

	pdf.SetY(y + 28)
	if report.FailureMsg != "" {
		pdf.SetFont("Arial", "I", 9)
		pdf.SetTextColor(120, 30, 30)
		pdf.MultiCell(0, 5, report.FailureMsg, "", "L", false)
	}
	pdf.Ln(4)
}

func (e *PDFExporter) outcomeColor(outcome string) (r, g, b int) {
	switch outcome {
	case "succeeded":
		return 52, 199, 89 // Green
	case "timed_out":
		return 255, 149, 0 // Orange
	default:
		return 220, 53, 69 // Red
	}
}

func (e *PDFExporter) addTarget(pdf *gofpdf.Fpdf, report *domain.RunReport) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Target", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, fmt.Sprintf("SSID: %s", report.Target.SSID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("BSSID: %s   Channel: %d", report.Target.BSSID, report.Target.Channel), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 10)
	credStatus := "Not captured"
	if report.CredentialsCaptured {
		credStatus = "Captured"
		if report.CredentialVerified {
			credStatus += " (verified)"
		} else {
			credStatus += " (unverified)"
		}
	}
	pdf.CellFormat(0, 6, "Credentials: "+credStatus, "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

func (e *PDFExporter) addPhaseTimings(pdf *gofpdf.Fpdf, report *domain.RunReport) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Phase Timings", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(report.Phases) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No phases recorded", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(40, 8, "Phase", "1", 0, "L", true, 0, "")
	pdf.CellFormat(50, 8, "Entered", "1", 0, "C", true, 0, "")
	pdf.CellFormat(50, 8, "Exited", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 8, "Duration", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, p := range report.Phases {
		pdf.CellFormat(40, 7, p.Phase, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, p.Entered.Format("15:04:05.000"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 7, p.Exited.Format("15:04:05.000"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 7, p.Duration.Round(1e6*1).String(), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addTeardownChecklist(pdf *gofpdf.Fpdf, report *domain.RunReport) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Teardown Verification", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(report.Teardown) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No teardown steps recorded", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.SetFont("Arial", "", 10)
	for _, step := range report.Teardown {
		mark := "OK"
		r, g, b := 52, 199, 89
		if !step.Succeeded {
			mark = "FAILED"
			r, g, b = 220, 53, 69
		}
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(140, 6, step.Step, "", 0, "L", false, 0, "")
		pdf.SetTextColor(r, g, b)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(30, 6, mark, "", 1, "R", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		if !step.Succeeded && step.Err != "" {
			pdf.SetFont("Arial", "I", 8)
			pdf.SetTextColor(120, 30, 30)
			pdf.CellFormat(0, 5, "  "+step.Err, "", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 10)
		}
	}
	pdf.Ln(6)
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, report *domain.RunReport) {
	pdf.SetY(-20)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	by := report.GeneratedBy
	if by == "" {
		by = "capgate"
	}
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated by %s | Run ID: %s", by, report.RunID), "", 1, "C", false, 0, "")
}
