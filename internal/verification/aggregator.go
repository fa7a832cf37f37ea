package verification

import (
	"time"
)

// ProcessResults reduces per-photo outcomes into one summary. Pure and
// stateless: the same input always yields the same summary.
//
// Every entry counts toward TotalPhotos, but an outcome without a payload
// (a failed call) buckets into neither valid nor invalid and contributes
// nothing to the score sum, which depresses the average. That matches how
// review treats a photo that never got a verdict: present, not trusted.
func ProcessResults(outcomes []PhotoOutcome) Summary {
	summary := Summary{
		TotalPhotos:     len(outcomes),
		Issues:          []string{},
		Recommendations: []string{},
	}

	var totalScore float64
	seenIssues := map[string]bool{}
	seenRecs := map[string]bool{}

	for _, outcome := range outcomes {
		if !outcome.Success || outcome.Data == nil {
			continue
		}
		if outcome.Data.IsValid {
			summary.ValidPhotos++
		} else {
			summary.InvalidPhotos++
		}
		totalScore += outcome.Data.Score
		for _, issue := range outcome.Data.Issues {
			if !seenIssues[issue] {
				seenIssues[issue] = true
				summary.Issues = append(summary.Issues, issue)
			}
		}
		for _, rec := range outcome.Data.Recommendations {
			if !seenRecs[rec] {
				seenRecs[rec] = true
				summary.Recommendations = append(summary.Recommendations, rec)
			}
		}
	}

	if summary.TotalPhotos > 0 {
		summary.AverageScore = totalScore / float64(summary.TotalPhotos)
	}
	summary.OverallValid = summary.ValidPhotos == summary.TotalPhotos &&
		summary.AverageScore >= AdminApprovalThreshold

	return summary
}

// GenerateReport turns a summary into the human-readable report shown to
// the submitting citizen
func GenerateReport(summary Summary, task TaskDetails) Report {
	result := "REJECTED"
	if summary.OverallValid {
		result = "APPROVED"
	}
	return Report{
		Timestamp:     time.Now().UTC(),
		TaskID:        task.TaskID,
		TaskType:      task.TaskType,
		OverallResult: result,
		Score:         summary.AverageScore,
		Summary: ReportCounts{
			TotalPhotos:   summary.TotalPhotos,
			ValidPhotos:   summary.ValidPhotos,
			InvalidPhotos: summary.InvalidPhotos,
		},
		Issues:          summary.Issues,
		Recommendations: summary.Recommendations,
		NextSteps:       nextSteps(summary),
	}
}

func nextSteps(summary Summary) []string {
	if summary.OverallValid {
		return []string{
			"Photos verified successfully",
			"Task submission approved",
			"Points will be awarded shortly",
		}
	}

	steps := []string{"Please address the following issues:"}
	for _, issue := range summary.Issues {
		steps = append(steps, "• "+issue)
	}
	if len(summary.Recommendations) > 0 {
		steps = append(steps, "Recommendations:")
		for _, rec := range summary.Recommendations {
			steps = append(steps, "• "+rec)
		}
	}
	steps = append(steps, "Resubmit with corrected photos")
	return steps
}
