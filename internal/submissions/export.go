package submissions

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var exportColumns = []string{
	"Submission ID", "User ID", "Task ID", "Task Type",
	"Photos", "AI Score", "Status", "Submitted At",
	"Reviewed By", "Reviewed At", "Review Comments",
}

// ExportXLSX writes the submission audit log as a spreadsheet for admin
// review and offline reporting
func ExportXLSX(subs []Submission) ([]byte, error) {
	file := excelize.NewFile()
	sheet := "Submissions"
	file.SetSheetName("Sheet1", sheet)

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F3864"}},
	})
	if err != nil {
		return nil, err
	}

	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, col); err != nil {
			return nil, err
		}
	}
	lastCol, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
	if err := file.SetCellStyle(sheet, "A1", lastCol, headerStyle); err != nil {
		return nil, err
	}

	for row, sub := range subs {
		reviewedBy, reviewedAt, comments := "", "", ""
		if sub.AdminReview.Valid {
			reviewedBy = sub.AdminReview.ReviewedBy
			reviewedAt = sub.AdminReview.ReviewedAt.Format("2006-01-02 15:04:05")
			comments = sub.AdminReview.Comments
		}
		values := []interface{}{
			sub.ID.String(),
			sub.UserID,
			sub.TaskID,
			string(sub.TaskType),
			len(sub.Photos),
			sub.AIVerificationScore,
			string(sub.Status),
			sub.SubmittedAt.Format("2006-01-02 15:04:05"),
			reviewedBy,
			reviewedAt,
			comments,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", row+1, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
