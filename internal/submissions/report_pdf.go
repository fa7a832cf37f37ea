package submissions

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"civitas/citizen-portal/citizen-portal-backend/internal/verification"
)

// GenerateReportPDF renders the verification report for one submission.
// The summary is recomputed from the stored raw results so the PDF always
// reflects the audit record, not a cached verdict.
func GenerateReportPDF(sub *Submission) ([]byte, error) {
	outcomes := make([]verification.PhotoOutcome, 0, len(sub.VerificationResults))
	for i := range sub.VerificationResults {
		outcomes = append(outcomes, verification.PhotoOutcome{
			Success:  true,
			Data:     &sub.VerificationResults[i],
			Filename: sub.VerificationResults[i].Filename,
		})
	}
	summary := verification.ProcessResults(outcomes)
	report := verification.GenerateReport(summary, verification.TaskDetails{
		TaskID:   sub.TaskID,
		TaskType: sub.TaskType,
	})

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(31, 56, 100)
	pdf.CellFormat(0, 10, "Photo Verification Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(0, 0, 0)
	writeField := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(45, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
	}

	writeField("Submission:", sub.ID.String())
	writeField("User:", sub.UserID)
	writeField("Task:", fmt.Sprintf("%s (%s)", sub.TaskID, sub.TaskType))
	writeField("Submitted:", sub.SubmittedAt.Format("2006-01-02 15:04:05 MST"))
	writeField("Status:", string(sub.Status))
	if sub.AdminReview.Valid {
		writeField("Reviewed by:", sub.AdminReview.ReviewedBy)
		if sub.AdminReview.Comments != "" {
			writeField("Comments:", sub.AdminReview.Comments)
		}
	}
	pdf.Ln(4)

	writeField("Overall result:", report.OverallResult)
	writeField("Average score:", fmt.Sprintf("%.1f / 100", report.Score))
	writeField("Photos:", fmt.Sprintf("%d total, %d valid, %d invalid",
		report.Summary.TotalPhotos, report.Summary.ValidPhotos, report.Summary.InvalidPhotos))
	pdf.Ln(4)

	writeSection := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, line := range lines {
			pdf.MultiCell(0, 6, "- "+line, "", "L", false)
		}
		pdf.Ln(2)
	}

	writeSection("Issues", report.Issues)
	writeSection("Recommendations", report.Recommendations)
	writeSection("Next Steps", report.NextSteps)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}
