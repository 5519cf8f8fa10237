// Package db implements the SQLite-backed approval action store.
package db

import "time"

// RiskLevel classifies how dangerous a command is.
// Levels are totally ordered: safe < medium_risk < high_risk < forbidden.
type RiskLevel string

const (
	RiskSafe      RiskLevel = "safe"
	RiskMedium    RiskLevel = "medium_risk"
	RiskHigh      RiskLevel = "high_risk"
	RiskForbidden RiskLevel = "forbidden"
)

var riskRank = map[RiskLevel]int{
	RiskSafe:      0,
	RiskMedium:    1,
	RiskHigh:      2,
	RiskForbidden: 3,
}

// Rank returns the ordinal position of the risk level. Unknown levels rank
// above high_risk so comparisons stay conservative.
func (r RiskLevel) Rank() int {
	if rank, ok := riskRank[r]; ok {
		return rank
	}
	return riskRank[RiskHigh]
}

// AtLeast reports whether r is at or above the given level.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// ActionStatus is the lifecycle state of an approval action.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusApproved  ActionStatus = "approved"
	StatusExecuting ActionStatus = "executing"
	StatusExecuted  ActionStatus = "executed"
	StatusRejected  ActionStatus = "rejected"
	StatusFailed    ActionStatus = "failed"
	StatusCancelled ActionStatus = "cancelled"
	StatusExpired   ActionStatus = "expired"
)

// IsTerminal reports whether no further status mutation is allowed.
func (s ActionStatus) IsTerminal() bool {
	switch s {
	case StatusExecuted, StatusRejected, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// ExecMode identifies which path the executor took for a command.
type ExecMode string

const (
	ModeDryRun           ExecMode = "dry_run"
	ModeExecute          ExecMode = "execute"
	ModeApprovalRequired ExecMode = "approval_required"
)

// ExecutionRecord is the persisted form of an execution outcome. It is
// immutable once written to an action.
type ExecutionRecord struct {
	Success           bool              `json:"success"`
	Command           string            `json:"command"`
	Stdout            string            `json:"stdout,omitempty"`
	Stderr            string            `json:"stderr,omitempty"`
	ExitCode          *int              `json:"exit_code"`
	DurationMs        int64             `json:"duration_ms"`
	RiskLevel         RiskLevel         `json:"risk_level"`
	Mode              ExecMode          `json:"mode,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	RequiresApproval  bool              `json:"requires_approval"`
	ValidationMessage string            `json:"validation_message,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Action is a persisted record of a command that requires (or required)
// human approval before execution. Rows are never deleted; terminal actions
// are retained indefinitely for audit.
type Action struct {
	ID              string       `json:"id"`
	ActionType      string       `json:"action_type"`
	Status          ActionStatus `json:"status"`
	Command         string       `json:"command"`
	Description     string       `json:"description,omitempty"`
	RiskLevel       RiskLevel    `json:"risk_level"`
	RequestedBy     string       `json:"requested_by"`
	RequestedAt     time.Time    `json:"requested_at"`
	ApprovedBy      string       `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	RejectedBy      string       `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time   `json:"rejected_at,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	ExecutedAt      *time.Time   `json:"executed_at,omitempty"`

	// ExecutionResult is set once the stored command has actually run.
	ExecutionResult *ExecutionRecord `json:"execution_result,omitempty"`

	// Metadata and CheckpointData are open-ended key-value maps; their shape
	// depends on the action type and is documented at the call sites.
	Metadata       map[string]any `json:"metadata,omitempty"`
	CheckpointData map[string]any `json:"checkpoint_data,omitempty"`

	// RollbackCommand, when present, is the recommended recovery command if
	// execution fails. It is surfaced to callers, never auto-invoked.
	RollbackCommand    string    `json:"rollback_command,omitempty"`
	ExpiresAt          time.Time `json:"expires_at"`
	RequiresCheckpoint bool      `json:"requires_checkpoint"`
}

// IsExpired reports whether the action's approval window has elapsed.
func (a *Action) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
