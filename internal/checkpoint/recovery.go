package checkpoint

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Failure types reported by migration steps. The set is open: callers may
// report anything, and unrecognized types fall through to the retry default.
const (
	FailureNetwork    = "network_error"
	FailureTimeout    = "timeout"
	FailureConnection = "connection_error"
	FailureValidation = "validation_error"
	FailureData       = "data_error"
	FailureAuth       = "auth_error"
	FailurePermission = "permission_error"
	FailureSystem     = "system_error"
	FailureCorruption = "corruption_error"
	FailureUnknown    = "unknown_error"
)

// RecoveryAction is the recommended response to a failed checkpoint
type RecoveryAction string

const (
	ActionRetryFromCheckpoint  RecoveryAction = "retry_from_checkpoint"
	ActionRollbackToCheckpoint RecoveryAction = "rollback_to_checkpoint"
	ActionSkipAndContinue      RecoveryAction = "skip_and_continue"
	ActionAbortMigration       RecoveryAction = "abort_migration"
	ActionManualIntervention   RecoveryAction = "manual_intervention"
)

// RecoveryPlan is a persisted decision record produced for one failed
// checkpoint. Plans are written once and never mutated in place.
type RecoveryPlan struct {
	PlanID            string         `json:"plan_id"`
	FailureType       string         `json:"failure_type"`
	ErrorMessage      string         `json:"error_message"`
	RecommendedAction RecoveryAction `json:"recommended_action"`
	CheckpointID      string         `json:"checkpoint_id"`
	RollbackTarget    string         `json:"rollback_target,omitempty"`
	RetryAttempts     int            `json:"retry_attempts"`
	ManualSteps       []string       `json:"manual_steps,omitempty"`
	Metadata          Metadata       `json:"metadata"`
}

// Classify maps a reported failure to a recommended recovery action. It is a
// pure, total function: every input produces an action, with retry as the
// default for anything unrecognized.
func Classify(failureType, errorMessage string) RecoveryAction {
	switch failureType {
	case FailureNetwork, FailureTimeout, FailureConnection:
		return ActionRetryFromCheckpoint

	case FailureValidation, FailureData:
		msg := strings.ToLower(errorMessage)
		if strings.Contains(msg, "required field") || strings.Contains(msg, "invalid format") {
			return ActionManualIntervention
		}
		return ActionSkipAndContinue

	case FailureAuth, FailurePermission:
		return ActionManualIntervention

	case FailureSystem, FailureCorruption:
		return ActionAbortMigration

	default:
		// Prefer retrying over silently skipping or aborting.
		return ActionRetryFromCheckpoint
	}
}

// NewRecoveryPlan builds a plan for a failed checkpoint. When the action
// calls for manual intervention and the caller supplied no steps, a default
// remediation checklist is attached so the plan is actionable on its own.
func NewRecoveryPlan(checkpointID, failureType, errorMessage string, manualSteps []string) *RecoveryPlan {
	action := Classify(failureType, errorMessage)

	steps := manualSteps
	if action == ActionManualIntervention && len(steps) == 0 {
		steps = defaultManualSteps(failureType, errorMessage)
	}

	return &RecoveryPlan{
		PlanID:            uuid.NewString(),
		FailureType:       failureType,
		ErrorMessage:      errorMessage,
		RecommendedAction: action,
		CheckpointID:      checkpointID,
		RetryAttempts:     0,
		ManualSteps:       steps,
		Metadata: Metadata{
			"created_at":    time.Now().Format(time.RFC3339),
			"checkpoint_id": checkpointID,
		},
	}
}

func defaultManualSteps(failureType, errorMessage string) []string {
	switch failureType {
	case FailureAuth, FailurePermission:
		return []string{
			"Verify the API credentials for both trackers are valid and not expired",
			"Confirm the migration account has permission for the failing operation",
			"Re-run the migration with --resume once access is restored",
		}
	default:
		return []string{
			"Inspect the failing record: " + errorMessage,
			"Correct the source data or add a field mapping for it",
			"Re-run the migration with --resume to retry the step",
		}
	}
}
