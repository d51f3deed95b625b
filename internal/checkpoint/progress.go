package checkpoint

import (
	"fmt"
	"time"
)

// ProgressTracker is an in-memory running estimate of a migration run's
// completion, throughput, and ETA. It has no on-disk representation and is
// not rebuilt on restart; callers reissue StartProgressTracking when resuming.
type ProgressTracker struct {
	MigrationRecordID      string    `json:"migration_record_id"`
	TotalSteps             int       `json:"total_steps"`
	CompletedSteps         int       `json:"completed_steps"`
	CurrentStep            string    `json:"current_step"`
	CurrentStepProgress    float64   `json:"current_step_progress"`
	OverallProgress        float64   `json:"overall_progress"`
	StartTime              time.Time `json:"start_time"`
	LastUpdate             time.Time `json:"last_update"`
	ThroughputPerMinute    float64   `json:"throughput_per_minute"`
	EstimatedTimeRemaining string    `json:"estimated_time_remaining,omitempty"`
	Status                 string    `json:"status"`
}

// recompute refreshes the derived fields from the counters. Overall progress
// is deliberately not clamped to 100: inconsistent caller reports are
// surfaced rather than masked.
func (p *ProgressTracker) recompute(now time.Time) {
	completedWork := float64(p.CompletedSteps) + p.CurrentStepProgress/100

	if p.TotalSteps > 0 {
		p.OverallProgress = completedWork / float64(p.TotalSteps) * 100
	} else {
		p.OverallProgress = 0
	}

	elapsedMinutes := now.Sub(p.StartTime).Minutes()
	if elapsedMinutes > 0 {
		p.ThroughputPerMinute = completedWork / elapsedMinutes
	} else {
		p.ThroughputPerMinute = 0
	}

	if p.ThroughputPerMinute > 0 {
		remainingWork := float64(p.TotalSteps) - completedWork
		remainingMinutes := remainingWork / p.ThroughputPerMinute
		p.EstimatedTimeRemaining = formatMinutes(remainingMinutes)
	} else {
		p.EstimatedTimeRemaining = ""
	}

	p.LastUpdate = now
}

func (p *ProgressTracker) clone() *ProgressTracker {
	cp := *p
	return &cp
}

func formatMinutes(minutes float64) string {
	if minutes < 60 {
		return fmt.Sprintf("%.1f minutes", minutes)
	}
	return fmt.Sprintf("%.1f hours", minutes/60)
}
