package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func outcome(valid bool, score float64, issues ...string) PhotoOutcome {
	return PhotoOutcome{
		Success: true,
		Data: &Result{
			IsValid: valid,
			Score:   score,
			Issues:  issues,
		},
	}
}

func TestProcessResultsAveragesAndVerdict(t *testing.T) {
	summary := ProcessResults([]PhotoOutcome{
		outcome(true, 80),
		outcome(true, 60),
	})

	assert.Equal(t, 2, summary.TotalPhotos)
	assert.Equal(t, 2, summary.ValidPhotos)
	assert.Equal(t, 0, summary.InvalidPhotos)
	assert.Equal(t, 70.0, summary.AverageScore)
	assert.True(t, summary.OverallValid)
}

func TestProcessResultsInvalidPhotoBreaksUnanimity(t *testing.T) {
	summary := ProcessResults([]PhotoOutcome{
		outcome(true, 80),
		outcome(true, 60),
		outcome(false, 90),
	})

	// The average rises but one invalid photo vetoes the verdict
	assert.InDelta(t, 76.67, summary.AverageScore, 0.01)
	assert.Equal(t, 1, summary.InvalidPhotos)
	assert.False(t, summary.OverallValid)
}

func TestProcessResultsFailedCallDepressesAverage(t *testing.T) {
	summary := ProcessResults([]PhotoOutcome{
		outcome(true, 90),
		{Success: false, Error: "engine unreachable"},
	})

	// A failed call still counts toward the total but buckets nowhere
	assert.Equal(t, 2, summary.TotalPhotos)
	assert.Equal(t, 1, summary.ValidPhotos)
	assert.Equal(t, 0, summary.InvalidPhotos)
	assert.Equal(t, 45.0, summary.AverageScore)
	assert.False(t, summary.OverallValid)
}

func TestProcessResultsEmptyInput(t *testing.T) {
	summary := ProcessResults(nil)

	assert.Equal(t, 0, summary.TotalPhotos)
	assert.Equal(t, 0.0, summary.AverageScore)
	assert.False(t, summary.OverallValid)
}

func TestProcessResultsDeduplicatesIssues(t *testing.T) {
	summary := ProcessResults([]PhotoOutcome{
		outcome(true, 80, "blurry image", "low light"),
		outcome(true, 85, "blurry image"),
	})

	assert.Equal(t, []string{"blurry image", "low light"}, summary.Issues)
}

func TestProcessResultsIsPure(t *testing.T) {
	input := []PhotoOutcome{
		outcome(true, 72, "shadow detected"),
		outcome(false, 31, "object not found"),
	}

	first := ProcessResults(input)
	second := ProcessResults(input)

	assert.Equal(t, first, second)
}

func TestGenerateReportApprovedNextSteps(t *testing.T) {
	summary := ProcessResults([]PhotoOutcome{outcome(true, 85)})
	report := GenerateReport(summary, TaskDetails{TaskID: "task-1", TaskType: TaskPollutionReport})

	assert.Equal(t, "APPROVED", report.OverallResult)
	assert.Equal(t, []string{
		"Photos verified successfully",
		"Task submission approved",
		"Points will be awarded shortly",
	}, report.NextSteps)
}

func TestGenerateReportRejectedNextSteps(t *testing.T) {
	failed := outcome(false, 20, "no tree visible")
	failed.Data.Recommendations = []string{"retake in daylight"}
	summary := ProcessResults([]PhotoOutcome{failed})
	report := GenerateReport(summary, TaskDetails{TaskID: "task-2", TaskType: TaskTreePlanting})

	assert.Equal(t, "REJECTED", report.OverallResult)
	assert.Equal(t, []string{
		"Please address the following issues:",
		"• no tree visible",
		"Recommendations:",
		"• retake in daylight",
		"Resubmit with corrected photos",
	}, report.NextSteps)
}
